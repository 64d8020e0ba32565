// Package doctext flattens narrative XHTML fragments into plain text.
//
// Document-kind resources carry their human-readable body as generated XHTML
// (typically a single <div>). The warehouse stores flat text, so markup is
// stripped at extraction time.
package doctext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LooksLikeMarkup reports whether s is plausibly an XHTML fragment rather
// than ordinary text: it must start with a tag and contain a closing tag.
func LooksLikeMarkup(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "<") && strings.Contains(trimmed, "</")
}

// Flatten parses an XHTML fragment and returns its text content, with
// whitespace runs collapsed to single spaces. Unparsable input is returned
// unchanged: a mangled narrative is still better than a dropped one.
func Flatten(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
