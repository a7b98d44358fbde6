package export

import (
	"fmt"
	"html"
	"strings"

	"scribe/api/internal/document"
)

// RenderHTML converts a note document to an HTML fragment.
func RenderHTML(doc document.Document) string {
	return renderNode(doc.Root)
}

func renderNode(node document.Node) string {
	switch node.Type {
	case "doc":
		return renderContent(node.Content)
	case "paragraph":
		return fmt.Sprintf("<p>%s</p>\n", renderContent(node.Content))
	case "heading":
		level := 1
		if lvl, ok := node.Attrs["level"].(float64); ok {
			level = int(lvl)
		}
		return fmt.Sprintf("<h%d>%s</h%d>\n", level, renderContent(node.Content), level)
	case "bulletList":
		return fmt.Sprintf("<ul>\n%s</ul>\n", renderContent(node.Content))
	case "orderedList":
		return fmt.Sprintf("<ol>\n%s</ol>\n", renderContent(node.Content))
	case "listItem":
		return fmt.Sprintf("<li>%s</li>\n", renderContent(node.Content))
	case "blockquote":
		return fmt.Sprintf("<blockquote>\n%s</blockquote>\n", renderContent(node.Content))
	case "codeBlock":
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(plainContent(node.Content)))
	case "text":
		return renderTextWithMarks(node.Text, node.Marks)
	case "hardBreak":
		return "<br>"
	case "horizontalRule":
		return "<hr>\n"
	default:
		// Unknown node type, render content if any.
		return renderContent(node.Content)
	}
}

func renderContent(content []document.Node) string {
	var result strings.Builder
	for _, node := range content {
		result.WriteString(renderNode(node))
	}
	return result.String()
}

func plainContent(content []document.Node) string {
	var result strings.Builder
	for _, node := range content {
		if node.Type == "text" {
			result.WriteString(node.Text)
		} else {
			result.WriteString(plainContent(node.Content))
		}
	}
	return result.String()
}

// renderTextWithMarks applies formatting marks from outside in.
func renderTextWithMarks(text string, marks []document.Mark) string {
	if text == "" {
		return ""
	}

	htmlText := html.EscapeString(text)

	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			htmlText = fmt.Sprintf("<strong>%s</strong>", htmlText)
		case "italic":
			htmlText = fmt.Sprintf("<em>%s</em>", htmlText)
		case "code":
			htmlText = fmt.Sprintf("<code>%s</code>", htmlText)
		case "link":
			href := ""
			if hrefVal, ok := marks[i].Attrs["href"].(string); ok {
				href = hrefVal
			}
			htmlText = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), htmlText)
		case "strike":
			htmlText = fmt.Sprintf("<s>%s</s>", htmlText)
		case "underline":
			htmlText = fmt.Sprintf("<u>%s</u>", htmlText)
		}
	}

	return htmlText
}
