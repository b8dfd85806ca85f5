package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mainContentSelectors are tried in order; the first one that matches
// something is used as the content root (spec §4.4 step 2).
var mainContentSelectors = []string{
	"main",
	"article",
	"[role=main]",
}

// noiseSelectors are stripped from the isolated content regardless of
// which root was chosen.
var noiseSelectors = []string{
	"nav", "header", "footer", "aside",
	"script", "style", "noscript", "template",
	"[aria-hidden=true]", "[hidden]",
}

var adClassPatterns = []string{
	"advert", "advertisement", "sponsor", "cookie-banner", "cookie-consent",
	"popup", "modal-overlay", "social-share", "newsletter-signup",
}

// isolateMainContent picks the best candidate container for the article
// body and strips known boilerplate from it. Falls back to a density-scored
// scan of direct <body> children (see pruning.go) when none of the semantic
// selectors match.
func isolateMainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainContentSelectors {
		found := doc.Find(sel).First()
		if found.Length() > 0 && strings.TrimSpace(found.Text()) != "" {
			stripNoise(found)
			return found
		}
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Selection
	}

	if pruned := bestScoredContainer(body); pruned != nil {
		stripNoise(pruned)
		return pruned
	}

	stripNoise(body)
	return body
}

func stripNoise(sel *goquery.Selection) {
	for _, n := range noiseSelectors {
		sel.Find(n).Remove()
	}
	for _, pat := range adClassPatterns {
		sel.Find("[class*=" + pat + "], [id*=" + pat + "]").Remove()
	}
	sel.Find("*").Each(func(_ int, s *goquery.Selection) {
		if d, ok := s.Attr("aria-hidden"); ok && d == "true" {
			s.Remove()
		}
	})
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#comment" {
			s.Remove()
		}
	})
}
