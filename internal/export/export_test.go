package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"scribe/api/internal/document"
	"scribe/api/internal/workspace"
)

func TestRenderHTMLParagraphs(t *testing.T) {
	doc := document.FromText("Patient reports anxiety.\nSleeping poorly.")
	html := RenderHTML(doc)
	if !strings.Contains(html, "<p>Patient reports anxiety.</p>") {
		t.Errorf("missing first paragraph: %s", html)
	}
	if !strings.Contains(html, "<p>Sleeping poorly.</p>") {
		t.Errorf("missing second paragraph: %s", html)
	}
}

func TestRenderHTMLStructure(t *testing.T) {
	doc := document.Document{Root: document.Node{Type: "doc", Content: []document.Node{
		{Type: "heading", Attrs: map[string]any{"level": float64(2)}, Content: []document.Node{{Type: "text", Text: "Subjective"}}},
		{Type: "bulletList", Content: []document.Node{
			{Type: "listItem", Content: []document.Node{{Type: "text", Text: "anxious"}}},
		}},
		{Type: "blockquote", Content: []document.Node{
			{Type: "paragraph", Content: []document.Node{{Type: "text", Text: "quoted"}}},
		}},
	}}}
	html := RenderHTML(doc)
	for _, want := range []string{"<h2>Subjective</h2>", "<li>anxious</li>", "<blockquote>", "<p>quoted</p>"} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in %s", want, html)
		}
	}
}

func TestRenderHTMLEscapesText(t *testing.T) {
	doc := document.FromText(`<script>alert("x")</script>`)
	html := RenderHTML(doc)
	if strings.Contains(html, "<script>") {
		t.Errorf("unescaped markup in output: %s", html)
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Errorf("expected escaped markup, got: %s", html)
	}
}

func TestRenderHTMLMarks(t *testing.T) {
	doc := document.Document{Root: document.Node{Type: "doc", Content: []document.Node{
		{Type: "paragraph", Content: []document.Node{
			{Type: "text", Text: "important", Marks: []document.Mark{{Type: "bold"}, {Type: "italic"}}},
		}},
	}}}
	html := RenderHTML(doc)
	if !strings.Contains(html, "<strong><em>important</em></strong>") {
		t.Errorf("marks not applied outside in: %s", html)
	}
}

func TestExportHTML(t *testing.T) {
	note := workspace.Note{
		ID:           "template-soap-note-f1-1",
		Title:        "SOAP for Intake",
		Kind:         workspace.NoteKindTemplated,
		TemplateType: workspace.TemplateSOAP,
		SourceNoteID: "note-f1",
		Content:      document.FromText("Subjective:\nreports anxiety"),
	}

	result, err := NewService().Export(context.Background(), note, "Intake", FormatHTML)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Errorf("mime = %q", result.MimeType)
	}
	if result.Filename != "SOAP-for-Intake.html" {
		t.Errorf("filename = %q", result.Filename)
	}
	page := string(result.Data)
	if !strings.Contains(page, "<h1>SOAP for Intake</h1>") {
		t.Errorf("missing title in page: %s", page)
	}
	if !strings.Contains(page, "reports anxiety") {
		t.Errorf("missing content in page: %s", page)
	}
	if !strings.Contains(page, "Intake") {
		t.Errorf("missing source title in page")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatHTML {
		t.Errorf("empty format = %q, %v, want html default", f, err)
	}
	if f, err := ParseFormat("pdf"); err != nil || f != FormatPDF {
		t.Errorf("pdf format = %q, %v", f, err)
	}
	if _, err := ParseFormat("docx"); err == nil {
		t.Error("docx should be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"SOAP for Intake":     "SOAP-for-Intake",
		"weird/:*chars?":      "weirdchars",
		"":                    "note",
		strings.Repeat("a", 80): strings.Repeat("a", 50),
	}
	for input, want := range cases {
		if got := sanitizeFilename(input); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	if got := percentEncodeForDataURL("a b"); got != "a%20b" {
		t.Errorf("space encoding = %q", got)
	}
	if got := percentEncodeForDataURL("<p>"); got != "%3Cp%3E" {
		t.Errorf("bracket encoding = %q", got)
	}
	if got := percentEncodeForDataURL("note.html~"); got != "note.html~" {
		t.Errorf("unreserved characters should pass through, got %q", got)
	}
}

func TestExportPDFWithoutBrowser(t *testing.T) {
	if _, err := findChrome(); err == nil {
		t.Skip("a browser is installed on this host")
	}
	_, err := exportPDF("<html><body>hi</body></html>", "note")
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("err = %v, want ErrPDFDependencyMissing", err)
	}
}
