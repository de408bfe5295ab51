// Package htmlutil cleans the HTML fragments that appear in free-text fields
// of API exports (machine descriptions, training outlines).
package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	anyTag     = regexp.MustCompile(`<[^>]+>`)
)

// Sanitize strips markup from a free-text field and returns plain text.
// Anchors survive in readable form: <a href="u">text</a> becomes "text (u)".
// Entities are decoded, unusual line separators (U+2028/U+2029) become
// ordinary whitespace, and runs of whitespace collapse to a single space.
//
// Sanitizing already-plain text is a no-op, so the function is idempotent.
// Markup that arrives entity-encoded (&lt;b&gt;...) decodes into live tags
// on the first pass, so extraction repeats until the text stops changing.
// Malformed markup never causes an error; the HTML5 parser recovers on its
// own and a plain regex strip backs it up.
func Sanitize(s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := sanitizeOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

// two passes settle every input seen in practice; the cap guards against
// deeply nested entity encodings
const maxSanitizePasses = 8

func sanitizeOnce(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, " ", "\n")
	s = strings.ReplaceAll(s, " ", "\n")

	var text string
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		text = anyTag.ReplaceAllString(s, "")
	} else {
		var buffer strings.Builder
		for _, node := range doc.Selection.Nodes {
			writeText(node, &buffer)
		}
		text = buffer.String()
	}

	text = whitespace.ReplaceAllString(text, " ")
	text = removeNonPrintable(text)
	return strings.TrimSpace(text)
}

func writeText(node *html.Node, buffer *strings.Builder) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}

	if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
		return
	}

	if node.Type == html.ElementNode && node.Data == "a" {
		var inner strings.Builder
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			writeText(child, &inner)
		}
		href := ""
		for _, attr := range node.Attr {
			if attr.Key == "href" {
				href = attr.Val
				break
			}
		}

		name := strings.TrimSpace(inner.String())
		if name != "" && href != "" {
			buffer.WriteString(name)
			buffer.WriteString(" (")
			buffer.WriteString(href)
			buffer.WriteString(")")
		} else {
			buffer.WriteString(inner.String())
		}
		return
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writeText(child, buffer)
	}
	if node.Type == html.ElementNode && blockTags[node.Data] {
		buffer.WriteString(" ")
	}
}

// blockTags separate text when stripped; inline tags don't. Without the
// separator "<li>a</li><li>b</li>" would collapse into "ab".
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"tr": true, "td": true, "th": true, "table": true, "section": true,
	"article": true, "blockquote": true, "pre": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func removeNonPrintable(s string) string {
	var out strings.Builder
	for _, c := range s {
		if unicode.IsPrint(c) {
			out.WriteRune(c)
		}
	}
	return out.String()
}
