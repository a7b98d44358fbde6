// Package search provides full-text search over notes, backed by Meilisearch
// with a PostgreSQL FTS fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	FolderID     string `json:"folderId"`
	Kind         string `json:"kind"`
	TemplateType string `json:"templateType,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over notes.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// NoteRecord is the data indexed per note.
type NoteRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	PlainText    string `json:"plainText"`
	FolderID     string `json:"folderId"`
	Kind         string `json:"kind"`
	TemplateType string `json:"templateType,omitempty"`
}
