package extractor

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ApplySelector parses rawHTML and returns the concatenated outer HTML of
// every element matched by the given CSS selector. Used by LearningEngine's
// per-domain SelectorChain (spec §4.6) to try learned selectors against a
// page before falling back to the generic Extract algorithm.
//
// If no elements match, ok is false and rawHTML is returned unchanged so a
// caller can fall through to the next selector in its chain.
func ApplySelector(rawHTML, selector string) (out string, ok bool, err error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", false, err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", false, err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return rawHTML, false, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", false, err
		}
	}

	return buf.String(), true, nil
}

// MatchesSelector reports whether the given CSS selector matches anything
// in rawHTML, without rendering output. Used to validate a learned selector
// still applies before recording a success against it.
func MatchesSelector(rawHTML, selector string) bool {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return false
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return false
	}
	return cascadia.Query(doc, sel) != nil
}
