package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Print geometry for exported notes: US Letter with 0.75in margins, the
// layout paper charts are filed under.
const (
	paperWidthInches  = 8.5
	paperHeightInches = 11.0
	pageMarginInches  = 0.75

	printTimeout   = 30 * time.Second
	maxFilenameLen = 50
)

// chromeBinaries are tried in order when locating a browser. The browser is
// an optional runtime dependency; hosts without one still export HTML.
var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome"}

func findChrome() (string, error) {
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium or chrome binary on PATH", ErrPDFDependencyMissing)
}

func headlessAllocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
}

const upperhex = "0123456789ABCDEF"

// percentEncodeForDataURL encodes the rendered page for a data: URL.
// url.QueryEscape is not usable here: it turns spaces into "+", which a data
// URL reads literally.
func percentEncodeForDataURL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0f])
		}
	}
	return b.String()
}

// exportPDF prints the rendered note page to PDF through headless Chrome,
// navigated as a data URL so nothing touches disk.
func exportPDF(html string, title string) (*Result, error) {
	if _, err := findChrome(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), printTimeout)
	defer cancel()
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, headlessAllocatorOptions()...)
	defer cancel()
	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var pdfData []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paperWidthInches).
				WithPaperHeight(paperHeightInches).
				WithMarginTop(pageMarginInches).
				WithMarginBottom(pageMarginInches).
				WithMarginLeft(pageMarginInches).
				WithMarginRight(pageMarginInches).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print note to pdf: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// sanitizeFilename reduces a note title to a safe download name: letters,
// digits, hyphens, and underscores, spaces turned into hyphens, capped at
// maxFilenameLen bytes. Titles with nothing left become "note".
func sanitizeFilename(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, title)

	if len(cleaned) > maxFilenameLen {
		cleaned = cleaned[:maxFilenameLen]
	}
	if cleaned == "" {
		return "note"
	}
	return cleaned
}
