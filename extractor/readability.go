package extractor

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minReadabilityLength is the minimum TextContent length (in characters)
// for readability output to be trusted. Below this we assume Readability
// failed to locate the main content.
const minReadabilityLength = 50

// tryReadability runs the Mozilla Readability algorithm on rawHTML as a
// second opinion alongside the density-scored isolateMainContent path.
// ok is false if the URL doesn't parse, Readability errors, or the result
// is implausibly short.
func tryReadability(rawHTML, sourceURL string) (article readability.Article, ok bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("extractor: invalid source URL for readability", "url", sourceURL, "error", err)
		return readability.Article{}, false
	}

	article, err = readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("extractor: readability failed", "url", sourceURL, "error", err)
		return readability.Article{}, false
	}

	if len(strings.TrimSpace(article.TextContent)) < minReadabilityLength {
		return readability.Article{}, false
	}

	return article, true
}
