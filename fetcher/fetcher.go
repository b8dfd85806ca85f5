// Package fetcher implements TieredFetcher (spec §4.10): a cost-tier
// escalation pipeline over ContentIntelligence, LightweightRenderer and
// BrowserDriver, with learning-driven tier selection and bypass.
//
// Grounded on the teacher's engine.Dispatcher (staged-delay escalation
// across interchangeable Engine implementations keyed by domain memory),
// generalized from "race every engine, first response wins" to "try tiers
// strictly in cost order, escalate on insufficient content, remember the
// winner" — the model the spec names. dispatcher.go's racing goroutines
// and domain_memory.go's standalone TTL map are superseded here by
// learning.Engine's persisted SuccessProfile, which already carries a
// richer per-domain preferred-tier signal; see DESIGN.md.
package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/use-agent/sift/browser"
	"github.com/use-agent/sift/extractor"
	"github.com/use-agent/sift/intelligence"
	"github.com/use-agent/sift/models"
	"github.com/use-agent/sift/render"
)

// tierOrder fixes the escalation sequence; models.CostTier.Less/Next cover
// pairwise comparisons but fetcher needs to walk a sub-range.
var tierOrder = []models.CostTier{models.TierIntelligence, models.TierLightweight, models.TierPlaywright}

var tierIndex = map[models.CostTier]int{
	models.TierIntelligence: 0,
	models.TierLightweight:  1,
	models.TierPlaywright:   2,
}

// DefaultTierTimeouts matches spec §4.10's stated per-tier budgets.
var DefaultTierTimeouts = map[models.CostTier]time.Duration{
	models.TierIntelligence: 5 * time.Second,
	models.TierLightweight:  10 * time.Second,
	models.TierPlaywright:   30 * time.Second,
}

// IntelligenceTier is the subset of intelligence.Engine the fetcher uses.
type IntelligenceTier interface {
	Extract(ctx context.Context, rawURL string, opts models.BrowseOptions) (intelligence.ContentResult, error)
}

// LightweightTier is the subset of render.Renderer the fetcher uses.
type LightweightTier interface {
	Render(ctx context.Context, rawURL string, opts render.Options) (render.Result, error)
}

// PlaywrightTier is the subset of browser.Driver the fetcher uses.
type PlaywrightTier interface {
	Fetch(ctx context.Context, rawURL string, opts models.BrowseOptions) (browser.FetchResult, error)
}

// LearningSource is the slice of learning.Engine the fetcher consults and
// updates.
type LearningSource interface {
	GetSuccessProfile(domain string) (models.SuccessProfile, bool)
	GetBypassablePatterns(domain string) []*models.ApiPattern
	RecordSuccess(domain string, tier models.CostTier, strategy string, responseTimeMs float64, contentLength int)
	RecordFailure(domain string, fc models.FailureContext)
}

// Timing breaks down TieredFetchResult.timing.perTier.
type Timing struct {
	Total   time.Duration
	PerTier map[models.CostTier]time.Duration
}

// Result is TieredFetchResult (spec §4.10).
type Result struct {
	Tier           models.CostTier
	TiersAttempted []models.CostTier
	FellBack       bool
	HTML           string
	Content        models.Content
	Title          string
	FinalURL       string
	Tables         []models.Table
	Links          []models.Link
	Network        []models.NetworkRequest
	Console        []models.ConsoleMessage
	WebSockets     []models.WebSocketConnection
	DiscoveredAPIs []models.ApiPattern
	StatusCode     int
	Timing         Timing
}

// Fetcher runs the escalation pipeline.
type Fetcher struct {
	intelligence IntelligenceTier
	lightweight  LightweightTier
	playwright   PlaywrightTier
	learning     LearningSource

	hasPlaywright bool
	tierTimeouts  map[models.CostTier]time.Duration
}

// New builds a Fetcher. playwright may be nil, meaning BrowserDriver is
// unavailable (spec §4.10's "playwright if BrowserDriver available else
// lightweight" default maxCostTier).
func New(intel IntelligenceTier, light LightweightTier, play PlaywrightTier, learning LearningSource) *Fetcher {
	return &Fetcher{
		intelligence:  intel,
		lightweight:   light,
		playwright:    play,
		learning:      learning,
		hasPlaywright: play != nil,
		tierTimeouts:  DefaultTierTimeouts,
	}
}

// tierOutcome is the common shape every tier adapter reduces to before the
// escalation loop judges it.
type tierOutcome struct {
	html           string
	content        models.Content
	title          string
	finalURL       string
	tables         []models.Table
	links          []models.Link
	network        []models.NetworkRequest
	console        []models.ConsoleMessage
	webSockets     []models.WebSocketConnection
	discoveredAPIs []models.ApiPattern
	strategy       string
	isAPIStrategy  bool
	statusOK       bool
	statusCode     int
}

// Fetch implements spec §4.10's selection algorithm.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts models.BrowseOptions) (Result, error) {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, models.New(models.ErrInvalidURL, models.KindPrecondition, "invalid URL", err)
	}
	domain := u.Hostname()

	minLen := opts.MinContentLength
	if minLen == 0 {
		minLen = 50
	}

	maxTier := opts.MaxCostTier
	if maxTier == "" {
		if f.hasPlaywright {
			maxTier = models.TierPlaywright
		} else {
			maxTier = models.TierLightweight
		}
	}

	startTier, forcedStrategy := f.selectStartTier(domain, opts)

	sequence := tiersFrom(startTier, maxTier)
	if len(sequence) == 0 {
		sequence = []models.CostTier{maxTier}
	}

	var (
		attempted []models.CostTier
		perTier   = make(map[models.CostTier]time.Duration)
		best      Result
		bestLen   = -1
		fellBack  bool
	)

	for i, tier := range sequence {
		attempted = append(attempted, tier)
		tierOpts := opts
		if i == 0 && forcedStrategy != "" {
			tierOpts.ForceStrategy = forcedStrategy
		}

		tierStart := time.Now()
		outcome, ok, ferr := f.runTier(ctx, tier, rawURL, tierOpts)
		elapsed := time.Since(tierStart)
		perTier[tier] = elapsed

		candidate := Result{
			Tier:           tier,
			HTML:           outcome.html,
			Content:        outcome.content,
			Title:          outcome.title,
			FinalURL:       outcome.finalURL,
			Tables:         outcome.tables,
			Links:          outcome.links,
			Network:        outcome.network,
			Console:        outcome.console,
			WebSockets:     outcome.webSockets,
			DiscoveredAPIs: outcome.discoveredAPIs,
			StatusCode:     outcome.statusCode,
		}
		contentLen := len(outcome.content.Text)
		if contentLen > bestLen {
			best = candidate
			bestLen = contentLen
		}

		succeeded := ferr == nil && ok && contentLen >= minLen && outcome.statusOK &&
			(outcome.isAPIStrategy || outcome.title != "")

		if succeeded {
			total := time.Since(start)
			candidate.TiersAttempted = attempted
			candidate.FellBack = fellBack
			candidate.Timing = Timing{Total: total, PerTier: perTier}

			if f.learning != nil {
				f.learning.RecordSuccess(domain, tier, outcome.strategy, float64(elapsed.Milliseconds()), contentLen)
			}
			return candidate, nil
		}

		fellBack = true
	}

	best.TiersAttempted = attempted
	best.FellBack = fellBack
	best.Timing = Timing{Total: time.Since(start), PerTier: perTier}

	if f.learning != nil {
		f.learning.RecordFailure(domain, models.FailureContext{
			Kind:      models.FailureUnknown,
			Message:   "all tiers exhausted without sufficient content",
			Timestamp: time.Now(),
		})
	}

	return best, models.New(models.ErrTierExhausted, models.KindPermanent, "tier escalation exhausted without sufficient content", nil)
}

// selectStartTier applies spec §4.10's start-tier rule and the
// cost-tier-bypass override: a confidence >= 0.7 bypassable API pattern
// forces the intelligence tier with the api:learned strategy regardless of
// preferredTier.
func (f *Fetcher) selectStartTier(domain string, opts models.BrowseOptions) (models.CostTier, string) {
	if opts.ForceStrategy != "" {
		return models.TierIntelligence, opts.ForceStrategy
	}
	if f.learning != nil {
		if bypass := f.learning.GetBypassablePatterns(domain); len(bypass) > 0 {
			return models.TierIntelligence, "api:learned"
		}
	}

	start := models.TierIntelligence
	if f.learning != nil {
		if profile, ok := f.learning.GetSuccessProfile(domain); ok && profile.PreferredTier != "" {
			if _, known := tierIndex[models.CostTier(profile.PreferredTier)]; known {
				start = models.CostTier(profile.PreferredTier)
			}
		}
	}
	return start, ""
}

// tiersFrom returns the cost-ordered tier sequence [start, max], clamping
// start down to max when a stale preferredTier would otherwise overshoot
// the caller's budget.
func tiersFrom(start, max models.CostTier) []models.CostTier {
	si, ok := tierIndex[start]
	if !ok {
		si = 0
	}
	mi, ok := tierIndex[max]
	if !ok {
		mi = len(tierOrder) - 1
	}
	if si > mi {
		si = mi
	}
	return append([]models.CostTier(nil), tierOrder[si:mi+1]...)
}

// runTier dispatches to the adapter for tier under its own timeout budget.
// Exceeding the budget is reported as a non-ok outcome, not propagated as
// an error, so the caller escalates instead of failing outright.
func (f *Fetcher) runTier(ctx context.Context, tier models.CostTier, rawURL string, opts models.BrowseOptions) (tierOutcome, bool, error) {
	timeout := f.tierTimeouts[tier]
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tierCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch tier {
	case models.TierIntelligence:
		return f.runIntelligence(tierCtx, rawURL, opts)
	case models.TierLightweight:
		return f.runLightweight(tierCtx, rawURL, opts)
	case models.TierPlaywright:
		return f.runPlaywright(tierCtx, rawURL, opts)
	default:
		return tierOutcome{}, false, models.New(models.ErrCapabilityUnavailable, models.KindPermanent, "unknown cost tier", nil)
	}
}

func (f *Fetcher) runIntelligence(ctx context.Context, rawURL string, opts models.BrowseOptions) (tierOutcome, bool, error) {
	if f.intelligence == nil {
		return tierOutcome{}, false, models.New(models.ErrCapabilityUnavailable, models.KindPermanent, "intelligence tier unavailable", nil)
	}
	res, err := f.intelligence.Extract(ctx, rawURL, opts)
	if err != nil && res.Content.Text == "" {
		return tierOutcome{}, false, err
	}
	statusCode := 0
	if err == nil {
		statusCode = http.StatusOK
	}
	return tierOutcome{
		html:           res.Content.HTML,
		content:        res.Content,
		title:          res.Title,
		finalURL:       rawURL,
		tables:         res.Tables,
		links:          res.Links,
		discoveredAPIs: res.DiscoveredAPIs,
		strategy:       res.Strategy,
		isAPIStrategy:  strategyIsAPI(res.Strategy),
		statusOK:       err == nil,
		statusCode:     statusCode,
	}, err == nil, nil
}

func (f *Fetcher) runLightweight(ctx context.Context, rawURL string, opts models.BrowseOptions) (tierOutcome, bool, error) {
	if f.lightweight == nil {
		return tierOutcome{}, false, models.New(models.ErrCapabilityUnavailable, models.KindPermanent, "lightweight tier unavailable", nil)
	}
	res, err := f.lightweight.Render(ctx, rawURL, render.Options{
		Headers:          opts.Headers,
		Timeout:          opts.Timeout,
		MinContentLength: opts.MinContentLength,
	})
	if err != nil {
		return tierOutcome{}, false, err
	}

	ext := extractor.Extract(res.HTML, res.FinalURL)
	outcome := tierOutcome{
		html:       res.HTML,
		content:    ext.Content,
		title:      ext.Title,
		finalURL:   res.FinalURL,
		tables:     ext.Tables,
		links:      ext.Links,
		strategy:   "render:lightweight",
		statusOK:   true,
		statusCode: res.StatusCode,
	}
	return outcome, !res.Detection.NeedsFullBrowser, nil
}

func (f *Fetcher) runPlaywright(ctx context.Context, rawURL string, opts models.BrowseOptions) (tierOutcome, bool, error) {
	if f.playwright == nil {
		return tierOutcome{}, false, models.New(models.ErrCapabilityUnavailable, models.KindPermanent, "playwright tier unavailable", nil)
	}
	res, err := f.playwright.Fetch(ctx, rawURL, opts)
	if err != nil {
		return tierOutcome{}, false, err
	}
	ext := extractor.Extract(res.HTML, res.FinalURL)
	title := res.Title
	if title == "" {
		title = ext.Title
	}
	return tierOutcome{
		html:       res.HTML,
		content:    ext.Content,
		title:      title,
		finalURL:   res.FinalURL,
		tables:     ext.Tables,
		links:      ext.Links,
		network:    res.Network,
		console:    res.Console,
		webSockets: res.WebSockets,
		strategy:   "render:playwright",
		statusOK:   res.StatusCode == 0 || (res.StatusCode >= 200 && res.StatusCode < 400),
		statusCode: res.StatusCode,
	}, true, nil
}

func strategyIsAPI(strategy string) bool {
	return len(strategy) >= 4 && strategy[:4] == "api:"
}
