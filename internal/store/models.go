package store

import "time"

// FolderRecord is a persisted folder row. Note membership is derived from the
// notes table, not stored.
type FolderRecord struct {
	ID         string
	Name       string
	IsExpanded bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NoteRecord is a persisted note row. Content holds the document JSON;
// PlainText is a denormalized projection kept for full-text search.
type NoteRecord struct {
	ID           string
	FolderID     string
	Title        string
	Kind         string
	TemplateType string
	SourceNoteID string
	Content      []byte
	PlainText    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
