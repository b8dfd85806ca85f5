// Package learning implements LearningEngine (spec §4.6): per-domain memory
// of API patterns, selector chains, content validators, pagination
// patterns, failures, and success profiles, with confidence decay and
// cross-domain pattern transfer.
//
// Grounded on the teacher's domain_memory.go (per-domain state keyed by
// sync.Map, FIFO failure history, exponentially-weighted preference
// updates) generalized from "which HTTP engine wins" to the richer
// per-domain knowledge the spec names, and persisted via store.Store[T]
// (spec §4.1) rather than purify's bespoke JSON file.
package learning

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/sift/models"
	"github.com/use-agent/sift/store"
)

// DecayConfig mirrors spec §4.6.3.
type DecayConfig struct {
	GracePeriodDays     float64
	DecayRatePerWeek    float64
	MinConfidenceThreshold float64
	ArchiveAfterDays    float64
}

// DefaultDecayConfig matches the spec's stated defaults.
var DefaultDecayConfig = DecayConfig{
	GracePeriodDays:        7,
	DecayRatePerWeek:       0.1,
	MinConfidenceThreshold: 0.3,
	ArchiveAfterDays:       90,
}

const maxFailureHistory = 50

// Engine is the in-memory LearningEngine, persisted via a backing store.
type Engine struct {
	mu      sync.RWMutex
	domains map[string]*models.DomainEntry
	groups  map[string]models.DomainGroup

	decay DecayConfig
	persist *store.Store[map[string]*models.DomainEntry]
}

// New creates an Engine with the given decay config and an optional
// backing persistence path (empty persistPath disables persistence).
func New(decay DecayConfig, persistPath string, debounce time.Duration) *Engine {
	e := &Engine{
		domains: make(map[string]*models.DomainEntry),
		groups:  defaultDomainGroups(),
		decay:   decay,
	}
	if persistPath != "" {
		e.persist = store.New[map[string]*models.DomainEntry](persistPath, debounce)
	}
	return e
}

// defaultDomainGroups seeds the well-known package-registry cluster named
// in spec §4.6.4.
func defaultDomainGroups() map[string]models.DomainGroup {
	return map[string]models.DomainGroup{
		"package_registries": {
			Name:    "package_registries",
			Members: []string{"npmjs.com", "pypi.org", "rubygems.org", "crates.io", "packagist.org"},
			CommonTemplateTypes: []models.TemplateType{models.TemplateRegistryLookup, models.TemplateJSONSuffix},
		},
	}
}

func (e *Engine) entry(domain string) *models.DomainEntry {
	d, ok := e.domains[domain]
	if !ok {
		d = &models.DomainEntry{
			Domain:         domain,
			SelectorChains: make(map[models.SelectorContentType][]models.SelectorPattern),
			CreatedAt:      time.Now(),
			LastUpdated:    time.Now(),
			DomainGroup:    e.groupFor(domain),
		}
		if d.DomainGroup != "" {
			e.seedFromGroup(d)
		}
		e.domains[domain] = d
	}
	return d
}

func (e *Engine) groupFor(domain string) string {
	for name, g := range e.groups {
		for _, m := range g.Members {
			if domain == m || strings.HasSuffix(domain, "."+m) {
				return name
			}
		}
	}
	return ""
}

// seedFromGroup appends the group's SharedSelectors to d's ContentTypeMain
// selector chain as patterns with no track record, which Score rates at
// 0.5. The group's CommonTemplateTypes are not copied, and no provenance
// is recorded on the seeded patterns.
func (e *Engine) seedFromGroup(d *models.DomainEntry) {
	g, ok := e.groups[d.DomainGroup]
	if !ok {
		return
	}
	for _, sel := range g.SharedSelectors {
		d.SelectorChains[models.ContentTypeMain] = append(d.SelectorChains[models.ContentTypeMain], models.SelectorPattern{
			Selector: sel,
		})
	}
}

// RecordSuccess increments success counters and updates the SuccessProfile
// moving average.
func (e *Engine) RecordSuccess(domain string, tier models.CostTier, strategy string, responseTimeMs float64, contentLength int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.entry(domain)
	d.UsageCount++
	d.LastUpdated = time.Now()

	prevSuccesses := d.OverallSuccessRate * float64(d.UsageCount-1)
	d.OverallSuccessRate = (prevSuccesses + 1) / float64(d.UsageCount)

	const alpha = 0.3 // EWMA weight for preference updates
	if d.TierScores == nil {
		d.TierScores = make(map[string]float64)
	}
	for k := range d.TierScores {
		d.TierScores[k] *= 1 - alpha
	}
	d.TierScores[string(tier)] += alpha
	d.SuccessProfile.PreferredTier = bestTier(d.TierScores)
	d.SuccessProfile.PreferredStrategy = strategy
	d.SuccessProfile.AvgResponseTimeMs = ewma(d.SuccessProfile.AvgResponseTimeMs, responseTimeMs, alpha)
	d.SuccessProfile.AvgContentLength = ewma(d.SuccessProfile.AvgContentLength, float64(contentLength), alpha)

	e.persistAsync()
}

func ewma(prev, sample, alpha float64) float64 {
	if prev == 0 {
		return sample
	}
	return alpha*sample + (1-alpha)*prev
}

// tierPreferenceOrder breaks bestTier ties toward the cheaper tier.
var tierPreferenceOrder = []models.CostTier{models.TierIntelligence, models.TierLightweight, models.TierPlaywright}

// bestTier returns the tier with the highest EWMA win score. Ties keep
// whichever tier sorts first in tierPreferenceOrder (the cheaper tier), so
// the preference only moves when a pricier tier has genuinely pulled ahead.
func bestTier(scores map[string]float64) string {
	best := ""
	bestScore := -1.0
	for _, t := range tierPreferenceOrder {
		if s, ok := scores[string(t)]; ok && s > bestScore {
			best = string(t)
			bestScore = s
		}
	}
	return best
}

// RecordFailure enqueues a FailureContext (FIFO capacity 50) and decays
// the domain's recent success rate.
func (e *Engine) RecordFailure(domain string, fc models.FailureContext) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.entry(domain)
	d.UsageCount++
	d.LastUpdated = time.Now()
	if fc.Timestamp.IsZero() {
		fc.Timestamp = time.Now()
	}

	d.Failures = append(d.Failures, fc)
	if len(d.Failures) > maxFailureHistory {
		d.Failures = d.Failures[len(d.Failures)-maxFailureHistory:]
	}

	prevSuccesses := d.OverallSuccessRate * float64(d.UsageCount-1)
	d.OverallSuccessRate = prevSuccesses / float64(d.UsageCount)

	e.persistAsync()
}

func (e *Engine) persistAsync() {
	if e.persist == nil {
		return
	}
	snapshot := make(map[string]*models.DomainEntry, len(e.domains))
	for k, v := range e.domains {
		snapshot[k] = v
	}
	e.persist.Save(snapshot)
}

// GetSuccessProfile returns a domain's SuccessProfile, if any usage has
// been recorded for it.
func (e *Engine) GetSuccessProfile(domain string) (models.SuccessProfile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[domain]
	if !ok {
		return models.SuccessProfile{}, false
	}
	return d.SuccessProfile, true
}

// GetDomainIntelligence returns the read-only snapshot SmartBrowser hands
// to external callers for a domain, or false if nothing has been recorded
// for it yet.
func (e *Engine) GetDomainIntelligence(domain string) (models.DomainIntelligence, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[domain]
	if !ok {
		return models.DomainIntelligence{}, false
	}

	now := time.Now()
	bypassable := 0
	for _, p := range d.APIPatterns {
		if p.CanBypass && !p.Archived && decayedConfidence(p.Confidence, p.Metrics.LastSuccessTime, now, e.decay) >= 0.7 {
			bypassable++
		}
	}

	recent := d.Failures
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	return models.DomainIntelligence{
		Domain:             domain,
		SuccessProfile:     d.SuccessProfile,
		APIPatternCount:    len(d.APIPatterns),
		BypassablePatterns: bypassable,
		OverallSuccessRate: d.OverallSuccessRate,
		UsageCount:         d.UsageCount,
		RecentFailures:     append([]models.FailureContext(nil), recent...),
	}, true
}

// GetStats returns a coarse snapshot of what the engine knows.
type Stats struct {
	DomainCount     int
	TotalAPIPatterns int
	TotalUsage      int
}

func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{DomainCount: len(e.domains)}
	for _, d := range e.domains {
		s.TotalAPIPatterns += len(d.APIPatterns)
		s.TotalUsage += d.UsageCount
	}
	return s
}

// ExportKnowledge returns a deep-enough snapshot suitable for
// PersistentStore.SaveImmediate.
func (e *Engine) ExportKnowledge() map[string]*models.DomainEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*models.DomainEntry, len(e.domains))
	for k, v := range e.domains {
		cp := *v
		out[k] = &cp
	}
	return out
}

// ImportKnowledge replaces in-memory state with a previously exported
// snapshot, e.g. loaded via store.Store.Load at startup.
func (e *Engine) ImportKnowledge(snapshot map[string]*models.DomainEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.domains = snapshot
	if e.domains == nil {
		e.domains = make(map[string]*models.DomainEntry)
	}
}

// Decay sweeps every ApiPattern, demoting its effective confidence per
// §4.6.3, and archives domain entries unused for ArchiveAfterDays.
func (e *Engine) Decay() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for _, d := range e.domains {
		for _, p := range d.APIPatterns {
			p.Confidence = decayedConfidence(p.Confidence, p.Metrics.LastSuccessTime, now, e.decay)
		}
		if now.Sub(d.LastUpdated).Hours()/24 > e.decay.ArchiveAfterDays {
			d.Archived = true
		}
	}
}

func decayedConfidence(confidence float64, lastSuccess, now time.Time, cfg DecayConfig) float64 {
	if lastSuccess.IsZero() {
		return confidence
	}
	ageWeeks := now.Sub(lastSuccess).Hours() / (24 * 7)
	ageWeeks -= cfg.GracePeriodDays / 7
	if ageWeeks < 0 {
		ageWeeks = 0
	}
	decayed := confidence * math.Pow(1-cfg.DecayRatePerWeek, ageWeeks)
	if decayed < 0 {
		decayed = 0
	}
	return decayed
}

// GetBypassablePatterns returns patterns with canBypass and decayed
// confidence >= 0.7.
func (e *Engine) GetBypassablePatterns(domain string) []*models.ApiPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil
	}
	now := time.Now()
	var out []*models.ApiPattern
	for _, p := range d.APIPatterns {
		if !p.CanBypass || p.Archived {
			continue
		}
		if decayedConfidence(p.Confidence, p.Metrics.LastSuccessTime, now, e.decay) >= 0.7 {
			out = append(out, p)
		}
	}
	return out
}

// SelectBestPattern picks the highest decayed-confidence ApiPattern whose
// urlPattern matches url, excluding archived and sub-threshold patterns.
func (e *Engine) SelectBestPattern(domain, targetURL string) *models.ApiPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil
	}

	now := time.Now()
	var best *models.ApiPattern
	bestScore := 0.0
	for _, p := range d.APIPatterns {
		if p.Archived {
			continue
		}
		re, err := regexp.Compile(p.URLPattern)
		if err != nil || !re.MatchString(targetURL) {
			continue
		}
		score := decayedConfidence(p.Confidence, p.Metrics.LastSuccessTime, now, e.decay)
		if score < e.decay.MinConfidenceThreshold {
			continue
		}
		if best == nil || score > bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

// GetSelectorChain returns a domain's selectors for contentType, sorted by
// decayed score descending.
func (e *Engine) GetSelectorChain(domain string, contentType models.SelectorContentType) []models.SelectorPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil
	}
	chain := append([]models.SelectorPattern(nil), d.SelectorChains[contentType]...)
	now := time.Now()
	for i := 1; i < len(chain); i++ {
		for j := i; j > 0 && chain[j].Score(now) > chain[j-1].Score(now); j-- {
			chain[j], chain[j-1] = chain[j-1], chain[j]
		}
	}
	return chain
}

// RecordSelectorResult updates a selector's success/failure counters,
// creating the chain entry if this is the first time it's tried.
func (e *Engine) RecordSelectorResult(domain string, contentType models.SelectorContentType, selector string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.entry(domain)
	chain := d.SelectorChains[contentType]
	for i := range chain {
		if chain[i].Selector == selector {
			if success {
				chain[i].SuccessCount++
				chain[i].LastWorked = time.Now()
			} else {
				chain[i].FailureCount++
			}
			d.SelectorChains[contentType] = chain
			return
		}
	}
	sp := models.SelectorPattern{Selector: selector}
	if success {
		sp.SuccessCount = 1
		sp.LastWorked = time.Now()
	} else {
		sp.FailureCount = 1
	}
	d.SelectorChains[contentType] = append(chain, sp)
}

// GetValidators returns a domain's content validators.
func (e *Engine) GetValidators(domain string) []models.ContentValidator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil
	}
	return d.Validators
}

// GetPaginationPattern returns a domain's first pagination pattern, if any.
func (e *Engine) GetPaginationPattern(domain string) *models.PaginationPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[domain]
	if !ok || len(d.PaginationPatterns) == 0 {
		return nil
	}
	p := d.PaginationPatterns[0]
	return &p
}

// GetLearnedVerifications synthesizes VerificationChecks from a domain's
// ContentValidators and failure history, for use by VerificationEngine.
func (e *Engine) GetLearnedVerifications(domain string, minConfidence float64) []models.VerificationCheck {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil
	}

	var checks []models.VerificationCheck
	for _, v := range d.Validators {
		total := v.SuccessCount + v.FailureCount
		if total == 0 {
			continue
		}
		confidence := float64(v.SuccessCount) / float64(total)
		if confidence < minConfidence {
			continue
		}
		checks = append(checks, models.VerificationCheck{
			Name: "learned_content_validator_" + domain,
			Type: models.CheckContent,
			Assertion: models.Assertion{
				MinLength:      v.MinLength,
				MaxLength:      v.MaxLength,
				ContainsText:   v.MustContainAny,
				ExcludesText:   v.MustNotContain,
			},
			Severity: models.SeverityError,
		})
	}

	var excludeTexts []string
	for _, f := range d.Failures {
		if f.Kind == models.FailureBlocked && f.Message != "" {
			excludeTexts = append(excludeTexts, f.Message)
		}
	}
	if len(excludeTexts) > 0 {
		checks = append(checks, models.VerificationCheck{
			Name: "learned_blocked_text_" + domain,
			Type: models.CheckContent,
			Assertion: models.Assertion{
				ExcludesText: excludeTexts,
			},
			Severity: models.SeverityWarning,
		})
	}

	return checks
}
