// Package smartbrowser implements SmartBrowser (spec §4.13): the
// orchestrator that strings RateLimiter, ResponseCache, LearningEngine,
// ProceduralMemory, TieredFetcher and VerificationEngine into one browse()
// call, with retry-and-escalate on a failed verification.
//
// Grounded on the teacher's cmd/purify/main.go wiring order (rate limit ->
// cache -> fetch -> extract) generalized with the learning/verification/
// procedural-memory stages the spec adds around that core.
package smartbrowser

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/use-agent/sift/browser"
	"github.com/use-agent/sift/cache"
	"github.com/use-agent/sift/extractor"
	"github.com/use-agent/sift/fetcher"
	"github.com/use-agent/sift/learning"
	"github.com/use-agent/sift/models"
	"github.com/use-agent/sift/procedural"
	"github.com/use-agent/sift/ratelimit"
	"github.com/use-agent/sift/verify"
	"github.com/use-agent/sift/wspattern"
)

// Browser is the SmartBrowser orchestrator.
type Browser struct {
	rateLimit  *ratelimit.Limiter
	cache      *cache.Store[models.BrowseResult]
	learning   *learning.Engine
	procedural *procedural.Memory
	fetch      *fetcher.Fetcher
	verify     *verify.Engine
	driver     browser.Driver // optional; nil disables skill/action replay

	startTime time.Time
}

// New wires the components named in spec §4.13. driver may be nil when no
// BrowserDriver is configured; Browse then never replays procedural
// skills, relying on TieredFetcher's own tiers instead.
func New(rl *ratelimit.Limiter, c *cache.Store[models.BrowseResult], l *learning.Engine, pm *procedural.Memory, f *fetcher.Fetcher, v *verify.Engine, d browser.Driver) *Browser {
	return &Browser{
		rateLimit:  rl,
		cache:      c,
		learning:   l,
		procedural: pm,
		fetch:      f,
		verify:     v,
		driver:     d,
		startTime:  time.Now(),
	}
}

// Browse implements the full 13-step sequence of spec §4.13.
func (b *Browser) Browse(ctx context.Context, rawURL string, opts models.BrowseOptions) (models.BrowseResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return models.BrowseResult{}, models.New(models.ErrInvalidURL, models.KindPrecondition, "invalid URL", err)
	}
	domain := u.Hostname()

	if opts.UseRateLimiting && b.rateLimit != nil {
		if err := b.rateLimit.Acquire(ctx, domain, ratelimit.DefaultLimits); err != nil {
			return models.BrowseResult{}, models.New(models.ErrRateLimited, models.KindTransient, "rate limit acquire failed", err)
		}
	}

	cacheKey := cache.Key(rawURL, nil)
	if b.cache != nil {
		if cached, ok := b.cache.Get(cacheKey); ok {
			cached.Metadata.FromCache = true
			return cached, nil
		}
	}

	var skills []models.SkillMatch
	if opts.UseSkills && b.procedural != nil {
		skills = b.procedural.FindApplicableSkills(models.PageContext{URL: rawURL, Domain: domain}, 3)
	}

	maxRetries := opts.MaxRetries
	if !opts.RetryOnError {
		maxRetries = 0
	}

	var (
		result     models.BrowseResult
		retryCount int
		tierOpts   = opts
	)

	for attempt := 0; ; attempt++ {
		fres, ferr := b.runOneAttempt(ctx, rawURL, domain, skills, tierOpts)
		result = fres

		if ferr != nil && result.Content.Text == "" {
			if attempt < maxRetries && retryable(ferr) {
				if b.rateLimit != nil {
					_ = b.rateLimit.Sleep(ctx, attempt)
				}
				tierOpts.MaxCostTier = escalate(tierOpts.MaxCostTier)
				retryCount++
				continue
			}
			if b.learning != nil {
				b.learning.RecordFailure(domain, models.FailureContext{Kind: models.FailureUnknown, Message: ferr.Error(), Timestamp: time.Now()})
			}
			result.Metadata.RetryCount = retryCount
			return result, ferr
		}

		if opts.Verify.Enabled && b.verify != nil {
			var learned []models.VerificationCheck
			if b.learning != nil {
				learned = b.learning.GetLearnedVerifications(domain, 0.7)
			}
			verifyOut := b.verify.Verify(ctx, &result, opts.Verify, learned)
			result.Verification = models.VerificationOutcome{
				Passed:     verifyOut.Passed,
				Confidence: verifyOut.Confidence,
				Errors:     verifyOut.Errors,
				Warnings:   verifyOut.Warnings,
			}
		} else {
			result.Verification = models.VerificationOutcome{Passed: true, Confidence: 1.0}
		}

		if result.Verification.Passed || attempt >= maxRetries {
			break
		}

		if b.rateLimit != nil {
			_ = b.rateLimit.Sleep(ctx, attempt)
		}
		tierOpts.MaxCostTier = escalate(tierOpts.MaxCostTier)
		retryCount++
	}

	result.Metadata.RetryCount = retryCount

	if result.Verification.Passed {
		if b.learning != nil {
			b.learning.RecordSuccess(domain, models.CostTier(result.Metadata.Tier), "", float64(result.Metadata.LoadTimeMs), len(result.Content.Text))
		}
		if b.cache != nil {
			b.cache.Set(cacheKey, result, 15*time.Minute)
		}
	} else if opts.FailOnVerificationError {
		return result, models.New(models.ErrVerificationFailed, models.KindPermanent, "verification failed", nil)
	}

	return result, nil
}

// runOneAttempt runs the fetch/extract/discovery portion of one attempt
// (steps 6-9 of spec §4.13), optionally replaying a matched procedural
// skill through BrowserDriver instead of TieredFetcher when one applies.
func (b *Browser) runOneAttempt(ctx context.Context, rawURL, domain string, skills []models.SkillMatch, opts models.BrowseOptions) (models.BrowseResult, error) {
	start := time.Now()

	if b.driver != nil && len(skills) > 0 && skills[0].PreconditionsMet {
		return b.runSkillReplay(ctx, rawURL, domain, skills[0], opts, start)
	}

	fres, ferr := b.fetch.Fetch(ctx, rawURL, opts)

	result := models.BrowseResult{
		URL:      rawURL,
		FinalURL: fres.FinalURL,
		Title:    fres.Title,
		Content:  fres.Content,
		Tables:   fres.Tables,
		Links:    fres.Links,
		Network:  fres.Network,
		Console:  fres.Console,
		Metadata: models.BrowseMetadata{
			LoadTimeMs:     time.Since(start).Milliseconds(),
			Timestamp:      time.Now(),
			Tier:           string(fres.Tier),
			TiersAttempted: tierNames(fres.TiersAttempted),
			StatusCode:     fres.StatusCode,
			EstimatedTokens: extractor.EstimateTokens(fres.Content.Markdown),
		},
	}

	discovered := append([]models.ApiPattern(nil), fres.DiscoveredAPIs...)
	if b.learning != nil && len(fres.Network) > 0 {
		for _, p := range b.learning.DiscoverAPIPatterns(domain, rawURL, fres.Network, fres.Content.Text) {
			discovered = append(discovered, *p)
		}
	}
	result.DiscoveredAPIs = discovered

	if opts.CaptureWebSockets && len(fres.WebSockets) > 0 {
		patterns := make([]models.WebSocketPattern, 0, len(fres.WebSockets))
		for _, conn := range fres.WebSockets {
			patterns = append(patterns, wspattern.Learn(domain, conn))
		}
		result.WebSockets = patterns
	}

	return result, ferr
}

// runSkillReplay executes a matched procedural skill's action sequence via
// BrowserDriver, then records the outcome back into ProceduralMemory
// whenever one is configured; opts.RecordTrajectory is only reported on
// the result's LearningSummary.
func (b *Browser) runSkillReplay(ctx context.Context, rawURL, domain string, match models.SkillMatch, opts models.BrowseOptions, start time.Time) (models.BrowseResult, error) {
	fres, err := b.driver.RunActions(ctx, rawURL, match.Skill.ActionSequence, opts)

	result := models.BrowseResult{
		URL:      rawURL,
		FinalURL: fres.FinalURL,
		Title:    fres.Title,
		Network:  fres.Network,
		Console:  fres.Console,
		Metadata: models.BrowseMetadata{
			LoadTimeMs: time.Since(start).Milliseconds(),
			Timestamp:  time.Now(),
			Tier:       string(models.TierPlaywright),
			StatusCode: fres.StatusCode,
		},
		Learning: models.LearningSummary{TrajectoryRecorded: opts.RecordTrajectory},
	}

	success := err == nil && fres.HTML != ""
	if b.procedural != nil {
		b.procedural.RecordOutcome(match.Skill.ID, success)
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func tierNames(tiers []models.CostTier) []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = string(t)
	}
	return out
}

func escalate(t models.CostTier) models.CostTier {
	if next := t.Next(); next != "" {
		return next
	}
	return t
}

func retryable(err error) bool {
	var sErr *models.SiftError
	if se, ok := err.(*models.SiftError); ok {
		sErr = se
	}
	if sErr == nil {
		return true
	}
	return sErr.Kind == models.KindTransient
}

// Fetch is the raw-fetch entry point (no verification, no caching,
// no skill replay) used when a caller only wants TieredFetcher's result.
func (b *Browser) Fetch(ctx context.Context, rawURL string, opts models.BrowseOptions) (models.BrowseResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.BrowseResult{}, models.New(models.ErrInvalidURL, models.KindPrecondition, "invalid URL", err)
	}
	result, ferr := b.runOneAttempt(ctx, rawURL, u.Hostname(), nil, opts)
	return result, ferr
}

// Batch fans out Browse calls concurrently, isolating each URL's failure
// into its own BatchEntry.
func (b *Browser) Batch(ctx context.Context, urls []string, opts models.BrowseOptions) models.BatchResult {
	entries := make([]models.BatchEntry, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, rawURL string) {
			defer wg.Done()
			res, err := b.Browse(ctx, rawURL, opts)
			entry := models.BatchEntry{URL: rawURL}
			if err != nil {
				if sErr, ok := err.(*models.SiftError); ok {
					entry.Error = sErr.ToDetail()
				} else {
					entry.Error = &models.ErrorDetail{Code: models.ErrUnknown, Message: err.Error()}
				}
			} else {
				entry.Result = &res
			}
			entries[i] = entry
		}(i, u)
	}
	wg.Wait()
	return models.BatchResult{Results: entries}
}

// GetDomainIntelligence returns a read-only snapshot of what LearningEngine
// knows about domain.
func (b *Browser) GetDomainIntelligence(domain string) models.DomainIntelligence {
	if b.learning == nil {
		return models.DomainIntelligence{Domain: domain}
	}
	out, ok := b.learning.GetDomainIntelligence(domain)
	if !ok {
		out.Domain = domain
	}
	return out
}

// FindApplicableSkills surfaces ProceduralMemory's retrieval directly, for
// callers that want to inspect candidates before a Browse call uses them.
func (b *Browser) FindApplicableSkills(ctx models.PageContext, limit int) []models.SkillMatch {
	if b.procedural == nil {
		return nil
	}
	return b.procedural.FindApplicableSkills(ctx, limit)
}

// GetLearningStats exposes learning.Engine.GetStats.
func (b *Browser) GetLearningStats() learning.Stats {
	if b.learning == nil {
		return learning.Stats{}
	}
	return b.learning.GetStats()
}

// GetProceduralMemoryStats exposes procedural.Memory.GetStats.
func (b *Browser) GetProceduralMemoryStats() procedural.Stats {
	if b.procedural == nil {
		return procedural.Stats{}
	}
	return b.procedural.GetStats()
}

// GetCacheStats reports the response cache's current size.
func (b *Browser) GetCacheStats() int {
	if b.cache == nil {
		return 0
	}
	return b.cache.Len()
}

// ClearCache clears the whole response cache, or only entries for domain
// when domain is non-empty.
func (b *Browser) ClearCache(domain string) {
	if b.cache == nil {
		return
	}
	if domain == "" {
		b.cache.Clear()
		return
	}
	b.cache.ClearDomain(domain)
}

// Version is the engine version reported by Health, spec §6.1.
const Version = "0.1.0"

// Health reports SmartBrowser's own liveness, not any capability's.
type Health struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Uptime  time.Duration `json:"uptime"`
}

// Health returns a coarse liveness snapshot.
func (b *Browser) Health() Health {
	return Health{Status: "ok", Version: Version, Uptime: time.Since(b.startTime)}
}
