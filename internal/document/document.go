// Package document holds the structured editor document value. The editor
// stores note content as a ProseMirror-style node tree; the rest of the
// service treats it as opaque apart from the two projections here.
package document

import (
	"encoding/json"
	"strings"
)

// Node is a node in the document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is a text formatting mark.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Document is the root of a note's content. The zero value is not valid;
// use Empty or FromText.
type Document struct {
	Root Node
}

func Empty() Document {
	return Document{Root: Node{
		Type:    "doc",
		Content: []Node{{Type: "paragraph"}},
	}}
}

// FromText builds a document with one paragraph per input line. Blank lines
// become empty paragraphs so spacing survives a round trip through PlainText.
func FromText(text string) Document {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	content := make([]Node, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			content = append(content, Node{Type: "paragraph"})
			continue
		}
		content = append(content, Node{
			Type:    "paragraph",
			Content: []Node{{Type: "text", Text: line}},
		})
	}
	if len(content) == 0 {
		content = []Node{{Type: "paragraph"}}
	}
	return Document{Root: Node{Type: "doc", Content: content}}
}

// PlainText projects the document to plain text, one line per block node.
func (d Document) PlainText() string {
	var b strings.Builder
	writeBlocks(&b, d.Root.Content)
	return strings.TrimRight(b.String(), "\n")
}

func writeBlocks(b *strings.Builder, nodes []Node) {
	for _, node := range nodes {
		switch node.Type {
		case "paragraph", "heading", "codeBlock", "blockquote", "listItem":
			writeInline(b, node.Content)
			b.WriteString("\n")
		case "bulletList", "orderedList":
			writeBlocks(b, node.Content)
		case "hardBreak":
			b.WriteString("\n")
		case "text":
			b.WriteString(node.Text)
		default:
			writeBlocks(b, node.Content)
		}
	}
}

func writeInline(b *strings.Builder, nodes []Node) {
	for _, node := range nodes {
		switch node.Type {
		case "text":
			b.WriteString(node.Text)
		case "hardBreak":
			b.WriteString("\n")
		default:
			writeInline(b, node.Content)
		}
	}
}

// IsEmpty reports whether the document contains no text.
func (d Document) IsEmpty() bool {
	return strings.TrimSpace(d.PlainText()) == ""
}

func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Root)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Type == "" {
		root.Type = "doc"
	}
	d.Root = root
	return nil
}
