package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FilterTags applies CSS-selector-based inclusion/exclusion to raw HTML
// before the main extraction pipeline runs, letting callers scope or
// exclude boilerplate regions the generic heuristics miss.
//
// Processing order: remove every element matching excludeTags, then, if
// includeTags is non-empty, keep only elements matching it. Returns html
// unchanged if both slices are empty or nothing in includeTags matches.
func FilterTags(html string, includeTags, excludeTags []string) string {
	if len(includeTags) == 0 && len(excludeTags) == 0 {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	for _, selector := range excludeTags {
		doc.Find(selector).Remove()
	}

	if len(includeTags) > 0 {
		combined := strings.Join(includeTags, ", ")
		matches := doc.Find(combined)
		if matches.Length() > 0 {
			var buf strings.Builder
			matches.Each(func(_ int, s *goquery.Selection) {
				if h, err := goquery.OuterHtml(s); err == nil {
					buf.WriteString(h)
				}
			})
			return buf.String()
		}
	}

	result, err := doc.Html()
	if err != nil {
		return html
	}
	return result
}
