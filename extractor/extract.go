// Package extractor implements ContentExtractor: a pure function from raw
// HTML to title/text/markdown/tables/links with per-field, source-tagged
// confidence (spec §4.4).
package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/sift/models"
)

// TitleSource names which signal produced the resolved title.
type TitleSource string

const (
	TitleSourceOGTitle  TitleSource = "og_title"
	TitleSourceTitleTag TitleSource = "title_tag"
	TitleSourceH1       TitleSource = "h1"
	TitleSourceUnknown  TitleSource = "unknown"
)

// Extraction is the full output of Extract.
type Extraction struct {
	Title       string
	TitleSource TitleSource
	Content     models.Content
	Links       []models.Link
	Tables      []models.Table
	Language    string
	Confidence  map[string]models.ConfidenceLevel
}

var titleSuffixSplit = regexp.MustCompile(`\s+(\||—|–)\s+`)

// Extract runs the deterministic extraction algorithm of spec §4.4 against
// rawHTML, resolving relative URLs against sourceURL. It never errors:
// malformed HTML is parsed best-effort and an empty document yields an
// empty Extraction with very_low confidence throughout.
func Extract(rawHTML, sourceURL string) Extraction {
	out := Extraction{
		Confidence: make(map[string]models.ConfidenceLevel),
	}

	base, _ := url.Parse(sourceURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		out.Confidence["title"] = models.ConfidenceVeryLow
		out.Confidence["text"] = models.ConfidenceVeryLow
		return out
	}

	out.Title, out.TitleSource = resolveTitle(doc)
	out.Confidence["title"] = titleConfidence(out.TitleSource)

	main := isolateMainContent(doc)
	densityText := strings.TrimSpace(collapseWhitespace(main.Text()))
	densityHTML, _ := goquery.OuterHtml(main)

	contentHTML, contentText := densityHTML, densityText
	if article, ok := tryReadability(rawHTML, sourceURL); ok {
		readabilityText := strings.TrimSpace(article.TextContent)
		// Prefer whichever extraction produced more text, unless one side
		// is more than 10x the other — then the longer one is probably
		// boilerplate that leaked through, so keep the shorter, denser one.
		useReadability := len(readabilityText) > len(densityText)
		if useReadability && len(densityText) > minReadabilityLength && len(readabilityText) > 10*len(densityText) {
			useReadability = false
		} else if !useReadability && len(readabilityText) > minReadabilityLength && len(densityText) > 10*len(readabilityText) {
			useReadability = true
		}
		if useReadability {
			contentHTML, contentText = article.Content, readabilityText
		}
		if out.Language == "" {
			out.Language = article.Language
		}
	}

	out.Content.Text = contentText
	out.Content.HTML = contentHTML
	out.Confidence["text"] = models.LevelForLength(len(contentText))

	if md, err := ToMarkdown(contentHTML, sourceURL); err == nil {
		out.Content.Markdown = md
	} else {
		out.Content.Markdown = contentText
	}

	out.Tables = extractTables(main)
	out.Links = extractLinks(main, base)

	if lang, ok := doc.Find("html").First().Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		out.Language = strings.TrimSpace(lang)
	}

	out.Confidence["markdown"] = models.LevelForLength(len(out.Content.Markdown))
	out.Confidence["links"] = models.LevelForLength(len(out.Links) * 50)
	out.Confidence["tables"] = models.LevelForLength(len(out.Tables) * 200)

	return out
}

// resolveTitle implements the ordered title-resolution strategy: og:title,
// then <title> (stripped of a trailing " | Site Name"/" — Site Name"
// suffix), then the first non-empty <h1>, else "Untitled".
func resolveTitle(doc *goquery.Document) (string, TitleSource) {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := strings.TrimSpace(og); t != "" {
			return t, TitleSourceOGTitle
		}
	}

	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return stripSiteSuffix(t), TitleSourceTitleTag
	}

	var h1 string
	doc.Find("h1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); t != "" {
			h1 = t
			return false
		}
		return true
	})
	if h1 != "" {
		return h1, TitleSourceH1
	}

	return "Untitled", TitleSourceUnknown
}

// stripSiteSuffix trims a trailing " | Site Name" or " — Site Name" /
// " – Site Name" segment from a <title> value, keeping only the first part.
func stripSiteSuffix(title string) string {
	parts := titleSuffixSplit.Split(title, 2)
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return title
}

func titleConfidence(source TitleSource) models.ConfidenceLevel {
	switch source {
	case TitleSourceOGTitle, TitleSourceTitleTag:
		return models.ConfidenceHigh
	case TitleSourceH1:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceVeryLow
	}
}

var wsRe = regexp.MustCompile(`[ \t]+`)
var blankLinesRe = regexp.MustCompile(`\n{3,}`)

func collapseWhitespace(s string) string {
	s = wsRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return s
}

func extractLinks(sel *goquery.Selection, base *url.URL) []models.Link {
	var links []models.Link
	if base == nil {
		return links
	}
	seen := make(map[string]struct{})
	sel.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, models.Link{
			Href: abs,
			Text: strings.TrimSpace(s.Text()),
		})
	})
	return links
}

func extractTables(sel *goquery.Selection) []models.Table {
	var tables []models.Table
	sel.Find("table").Each(func(_ int, t *goquery.Selection) {
		hasThead := t.Find("thead").Length() > 0
		rowsWithCells := 0
		t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			if tr.Find("td").Length() >= 2 {
				rowsWithCells++
			}
		})
		if !hasThead && rowsWithCells < 2 {
			return
		}

		var headers []string
		headerRow := t.Find("thead tr").First()
		if headerRow.Length() == 0 {
			headerRow = t.Find("tr").First()
		}
		headerRow.Find("th,td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, strings.TrimSpace(c.Text()))
		})

		var rows [][]string
		bodyRows := t.Find("tbody tr")
		if bodyRows.Length() == 0 {
			bodyRows = t.Find("tr")
		}
		bodyRows.Each(func(i int, tr *goquery.Selection) {
			if headerRow.Length() > 0 && tr.Get(0) == headerRow.Get(0) {
				return
			}
			var row []string
			tr.Find("td,th").Each(func(_ int, c *goquery.Selection) {
				row = append(row, strings.TrimSpace(c.Text()))
			})
			if len(row) == 0 {
				return
			}
			for len(row) < len(headers) {
				row = append(row, "")
			}
			rows = append(rows, row)
		})

		caption := strings.TrimSpace(t.Find("caption").First().Text())
		id, _ := t.Attr("id")

		tables = append(tables, models.Table{
			Headers: headers,
			Rows:    rows,
			Caption: caption,
			ID:      id,
		})
	})
	return tables
}
