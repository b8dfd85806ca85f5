// Package intelligence implements ContentIntelligence (spec §4.8): a
// strategy pipeline of cheap extraction methods, tried in order until one
// satisfies the minimum content length.
//
// Grounded on the teacher's engine package (multiple interchangeable
// fetch strategies selected by a dispatcher) generalized from "which HTTP
// engine" to "which content-origin strategy" (learned API, built-in site
// API, framework hydration data, static parse, archive fallback), and on
// transport.NewClient for the same utls Chrome fingerprint used by
// render.Renderer.
package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/sift/extractor"
	"github.com/use-agent/sift/models"
	"github.com/use-agent/sift/transport"
)

// ContentResult is what one strategy attempt (or the whole pipeline)
// produces.
type ContentResult struct {
	Title               string
	Content              models.Content
	Tables               []models.Table
	Links                []models.Link
	DiscoveredAPIs       []models.ApiPattern
	StrategiesAttempted  []string
	Strategy             string
}

// LearningSource is the read-only slice of LearningEngine that
// ContentIntelligence consults for a learned API pattern.
type LearningSource interface {
	SelectBestPattern(domain, targetURL string) *models.ApiPattern
}

// Engine runs the strategy pipeline.
type Engine struct {
	client   *http.Client
	learning LearningSource
	handlers []SiteHandler
}

// New creates an Engine with the built-in site handlers registered.
func New(learning LearningSource) *Engine {
	return &Engine{
		client:   transport.NewClient(10 * time.Second),
		learning: learning,
		handlers: builtinSiteHandlers(),
	}
}

// Extract implements spec §4.8's strategy pipeline, or — if
// opts.ForceStrategy is set — runs only that strategy with no fallback.
func (e *Engine) Extract(ctx context.Context, rawURL string, opts models.BrowseOptions) (ContentResult, error) {
	minLen := opts.MinContentLength
	if minLen == 0 {
		minLen = 50
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ContentResult{}, models.New(models.ErrInvalidURL, models.KindPrecondition, "invalid URL", err)
	}
	domain := u.Hostname()

	if opts.ForceStrategy != "" {
		res, ok, err := e.runStrategy(ctx, opts.ForceStrategy, domain, rawURL, minLen)
		res.StrategiesAttempted = []string{opts.ForceStrategy}
		if err != nil {
			return res, err
		}
		if !ok {
			return res, models.New(models.ErrBrowseError, models.KindPermanent, fmt.Sprintf("forced strategy %q returned insufficient content", opts.ForceStrategy), nil)
		}
		res.Strategy = opts.ForceStrategy
		return res, nil
	}

	order := e.strategyOrder(domain, rawURL)
	var attempted []string
	var best ContentResult

	for _, strategy := range order {
		attempted = append(attempted, strategy)
		res, ok, err := e.runStrategy(ctx, strategy, domain, rawURL, minLen)
		if err != nil {
			continue
		}
		if len(res.Content.Text) > len(best.Content.Text) {
			best = res
		}
		if ok {
			best = res
			best.Strategy = strategy
			best.StrategiesAttempted = attempted
			return best, nil
		}
	}

	best.StrategiesAttempted = attempted
	return best, models.New(models.ErrBrowseError, models.KindTransient, "no strategy produced sufficient content", nil)
}

// strategyOrder builds the default pipeline order named in spec §4.8,
// narrowed to "api:<site>" only when a built-in handler actually matches.
func (e *Engine) strategyOrder(domain, rawURL string) []string {
	order := []string{"api:learned"}
	for _, h := range e.handlers {
		if h.Matches(rawURL) {
			order = append(order, "api:"+h.Name())
		}
	}
	order = append(order, "framework:hydration", "parse:static")
	return order
}

func (e *Engine) runStrategy(ctx context.Context, strategy, domain, rawURL string, minLen int) (ContentResult, bool, error) {
	switch {
	case strategy == "api:learned":
		return e.runLearnedAPI(ctx, domain, rawURL, minLen)
	case strings.HasPrefix(strategy, "api:"):
		name := strings.TrimPrefix(strategy, "api:")
		for _, h := range e.handlers {
			if h.Name() == name {
				return e.runSiteHandler(ctx, h, rawURL, minLen)
			}
		}
		return ContentResult{}, false, fmt.Errorf("intelligence: no site handler named %q", name)
	case strategy == "framework:hydration":
		return e.runFrameworkHydration(ctx, rawURL, minLen)
	case strategy == "parse:static":
		return e.runStaticParse(ctx, rawURL, minLen)
	case strings.HasPrefix(strategy, "archive:"):
		return e.runArchive(ctx, strategy, rawURL, minLen)
	default:
		return ContentResult{}, false, fmt.Errorf("intelligence: unknown strategy %q", strategy)
	}
}

func (e *Engine) runLearnedAPI(ctx context.Context, domain, rawURL string, minLen int) (ContentResult, bool, error) {
	if e.learning == nil {
		return ContentResult{}, false, fmt.Errorf("intelligence: no learning source configured")
	}
	pattern := e.learning.SelectBestPattern(domain, rawURL)
	if pattern == nil {
		return ContentResult{}, false, fmt.Errorf("intelligence: no learned pattern for %s", domain)
	}

	body, err := e.getJSON(ctx, pattern.Endpoint)
	if err != nil {
		return ContentResult{}, false, err
	}

	text := applyContentMappings(body, pattern.ContentMappings)
	res := ContentResult{Content: models.Content{Text: text, Markdown: text}}
	return res, len(text) >= minLen, nil
}

func (e *Engine) runSiteHandler(ctx context.Context, h SiteHandler, rawURL string, minLen int) (ContentResult, bool, error) {
	apiURL, err := h.BuildAPIURL(rawURL)
	if err != nil {
		return ContentResult{}, false, err
	}
	body, err := e.getJSON(ctx, apiURL)
	if err != nil {
		return ContentResult{}, false, err
	}
	res, err := h.Extract(body)
	if err != nil {
		return ContentResult{}, false, err
	}
	return res, len(res.Content.Text) >= minLen, nil
}

// runFrameworkHydration extracts embedded framework hydration data
// (__NEXT_DATA__, __NUXT__, __INITIAL_STATE__, JSON-LD) from a plain GET.
func (e *Engine) runFrameworkHydration(ctx context.Context, rawURL string, minLen int) (ContentResult, bool, error) {
	html, err := e.getHTML(ctx, rawURL)
	if err != nil {
		return ContentResult{}, false, err
	}
	text, title, ok := extractHydrationData(html)
	if !ok {
		return ContentResult{}, false, fmt.Errorf("intelligence: no framework hydration data found")
	}
	res := ContentResult{Title: title, Content: models.Content{Text: text, Markdown: text}}
	return res, len(text) >= minLen, nil
}

func (e *Engine) runStaticParse(ctx context.Context, rawURL string, minLen int) (ContentResult, bool, error) {
	html, err := e.getHTML(ctx, rawURL)
	if err != nil {
		return ContentResult{}, false, err
	}
	ex := extractor.Extract(html, rawURL)
	res := ContentResult{
		Title:   ex.Title,
		Content: ex.Content,
		Tables:  ex.Tables,
		Links:   ex.Links,
	}
	return res, len(ex.Content.Text) >= minLen, nil
}

// runArchive is the last-resort strategy named in spec §4.8. No archive
// provider is wired by default; it always reports failure so the pipeline
// falls through with an explicit error rather than silently succeeding.
func (e *Engine) runArchive(ctx context.Context, strategy, rawURL string, minLen int) (ContentResult, bool, error) {
	return ContentResult{}, false, fmt.Errorf("intelligence: archive strategy %q not configured", strategy)
}

func (e *Engine) getHTML(ctx context.Context, rawURL string) (string, error) {
	body, err := e.get(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (e *Engine) getJSON(ctx context.Context, rawURL string) ([]byte, error) {
	return e.get(ctx, rawURL, map[string]string{"Accept": "application/json"})
}

func (e *Engine) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	transport.ApplyDefaultHeaders(req, headers)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("intelligence: %s returned status %d", rawURL, resp.StatusCode)
	}
	const maxBody = 10 << 20
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

// applyContentMappings pulls each mapped JSON path out of body and joins
// the resulting values in mapping order; mappings that share a logical
// name each contribute their own value.
func applyContentMappings(body []byte, mappings []models.ContentMapping) string {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return string(body)
	}
	var parts []string
	for _, m := range mappings {
		if v, ok := jsonPathLookup(raw, m.SourcePath); ok {
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	if len(parts) == 0 {
		return string(body)
	}
	return strings.Join(parts, "\n\n")
}

func jsonPathLookup(v any, path string) (any, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// frameworkHydrationSelectors names the script tags/attributes carrying
// embedded framework state, tried in order.
var frameworkHydrationSelectors = []string{
	"#__NEXT_DATA__",
	"#__NUXT__",
	"script#__INITIAL_STATE__",
	`script[type="application/ld+json"]`,
}

func extractHydrationData(html string) (text string, title string, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", false
	}
	title = doc.Find("title").First().Text()

	for _, sel := range frameworkHydrationSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		raw := strings.TrimSpace(node.Text())
		if raw == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			continue
		}
		flat := flattenStrings(parsed, 0)
		if len(flat) > 0 {
			return strings.Join(flat, "\n"), title, true
		}
	}
	return "", title, false
}

func flattenStrings(v any, depth int) []string {
	if depth > 6 {
		return nil
	}
	var out []string
	switch val := v.(type) {
	case string:
		if len(val) > 2 {
			out = append(out, val)
		}
	case map[string]any:
		for _, sub := range val {
			out = append(out, flattenStrings(sub, depth+1)...)
		}
	case []any:
		for _, sub := range val {
			out = append(out, flattenStrings(sub, depth+1)...)
		}
	}
	return out
}
