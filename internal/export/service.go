package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"scribe/api/internal/workspace"
)

// Service renders notes into downloadable exports.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the note in the requested format. sourceTitle is the title
// of the note a templated note was generated from, empty otherwise.
func (s *Service) Export(ctx context.Context, note workspace.Note, sourceTitle string, format Format) (*Result, error) {
	contentHTML := RenderHTML(note.Content)

	page, err := RenderNoteHTML(TemplateData{
		Title:        note.Title,
		TemplateType: string(note.TemplateType),
		SourceTitle:  sourceTitle,
		ContentHTML:  template.HTML(contentHTML),
		ExportedAt:   time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("render note html: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(note.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(page, note.Title)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
