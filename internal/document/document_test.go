package document

import (
	"encoding/json"
	"testing"
)

func TestFromTextPlainTextRoundTrip(t *testing.T) {
	cases := []string{
		"Patient reports anxiety.",
		"Line one\nLine two",
		"Line one\n\nLine three",
		"",
	}
	for _, text := range cases {
		doc := FromText(text)
		if got := doc.PlainText(); got != text {
			t.Errorf("PlainText(FromText(%q)) = %q", text, got)
		}
	}
}

func TestFromTextNormalizesCRLF(t *testing.T) {
	doc := FromText("a\r\nb")
	if got := doc.PlainText(); got != "a\nb" {
		t.Errorf("expected CRLF normalized, got %q", got)
	}
}

func TestEmptyDocument(t *testing.T) {
	doc := Empty()
	if !doc.IsEmpty() {
		t.Error("Empty() should report IsEmpty")
	}
	if doc.Root.Type != "doc" {
		t.Errorf("root type = %q", doc.Root.Type)
	}
}

func TestPlainTextSkipsStructure(t *testing.T) {
	doc := Document{Root: Node{Type: "doc", Content: []Node{
		{Type: "heading", Attrs: map[string]any{"level": float64(1)}, Content: []Node{{Type: "text", Text: "Subjective"}}},
		{Type: "bulletList", Content: []Node{
			{Type: "listItem", Content: []Node{{Type: "text", Text: "reports anxiety"}}},
			{Type: "listItem", Content: []Node{{Type: "text", Text: "sleeping poorly"}}},
		}},
	}}}
	want := "Subjective\nreports anxiety\nsleeping poorly"
	if got := doc.PlainText(); got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	doc := FromText("hello\nworld")
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.PlainText() != "hello\nworld" {
		t.Errorf("round trip text = %q", decoded.PlainText())
	}
}
