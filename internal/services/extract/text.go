package extract

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const nbsp = "\u00a0"

// Normalize collapses every run of whitespace (NBSP included) to one space and trims.
// It is the single whitespace rule applied to all extracted text.
func Normalize(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// splitNBSP splits rendered inner HTML on non-breaking spaces, whether serialised
// as the character or as the entity
func splitNBSP(html string) []string {
	return strings.Split(strings.ReplaceAll(html, "&nbsp;", nbsp), nbsp)
}

// innerHTML returns the inner HTML of the first node in s, or "" when s is empty
func innerHTML(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	html, err := s.First().Html()
	if err != nil {
		return ""
	}
	return html
}

// fragmentText strips tags from an HTML fragment and normalises the remaining text
func fragmentText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + fragment + "</div>"))
	if err != nil {
		return Normalize(fragment)
	}
	return Normalize(doc.Find("div").First().Text())
}

// text returns the normalised text of the first node matching selector within s
func text(s *goquery.Selection, selector string) (string, bool) {
	if selector == "" {
		return "", false
	}
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return "", false
	}
	return Normalize(found.Text()), true
}

// hasClass reports whether s carries class; an unset class never matches
func hasClass(s *goquery.Selection, class string) bool {
	return class != "" && s.HasClass(strings.TrimPrefix(class, "."))
}
