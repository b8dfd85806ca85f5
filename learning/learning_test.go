package learning

import (
	"testing"
	"time"

	"github.com/use-agent/sift/models"
)

func newTestEngine() *Engine {
	return New(DefaultDecayConfig, "", 0)
}

func TestRecordSuccess_UpdatesSuccessProfile(t *testing.T) {
	e := newTestEngine()
	e.RecordSuccess("example.com", models.TierLightweight, "parse:static", 120, 5000)

	profile, ok := e.GetSuccessProfile("example.com")
	if !ok {
		t.Fatal("expected a success profile after RecordSuccess")
	}
	if profile.PreferredTier != string(models.TierLightweight) {
		t.Errorf("PreferredTier = %q, want %q", profile.PreferredTier, models.TierLightweight)
	}
	if profile.AvgResponseTimeMs != 120 {
		t.Errorf("AvgResponseTimeMs = %v, want 120", profile.AvgResponseTimeMs)
	}
}

func TestRecordSuccess_PreferredTierAdaptsAwayFromSeededTier(t *testing.T) {
	e := newTestEngine()
	e.mu.Lock()
	d := e.entry("spa.example")
	d.SuccessProfile.PreferredTier = string(models.TierIntelligence)
	e.mu.Unlock()

	e.RecordSuccess("spa.example", models.TierLightweight, "parse:static", 80, 2000)

	profile, ok := e.GetSuccessProfile("spa.example")
	if !ok {
		t.Fatal("expected a success profile")
	}
	if profile.PreferredTier != string(models.TierLightweight) {
		t.Errorf("PreferredTier = %q, want %q after a lightweight win", profile.PreferredTier, models.TierLightweight)
	}

	// A domain that keeps winning at intelligence should pull preference
	// back even after lightweight briefly won once.
	for i := 0; i < 5; i++ {
		e.RecordSuccess("spa.example", models.TierIntelligence, "api:learned", 20, 500)
	}
	profile, _ = e.GetSuccessProfile("spa.example")
	if profile.PreferredTier != string(models.TierIntelligence) {
		t.Errorf("PreferredTier = %q, want %q after repeated intelligence wins", profile.PreferredTier, models.TierIntelligence)
	}
}

func TestRecordFailure_DecaysOverallSuccessRate(t *testing.T) {
	e := newTestEngine()
	e.RecordSuccess("example.com", models.TierIntelligence, "api:learned", 50, 1000)
	e.RecordFailure("example.com", models.FailureContext{Kind: models.FailureTimeout})

	e.mu.RLock()
	rate := e.domains["example.com"].OverallSuccessRate
	e.mu.RUnlock()

	if rate != 0.5 {
		t.Errorf("OverallSuccessRate = %v, want 0.5 after 1 success + 1 failure", rate)
	}
}

func TestDecayedConfidence_GracePeriodThenDecays(t *testing.T) {
	cfg := DefaultDecayConfig
	now := time.Now()

	within := decayedConfidence(0.8, now.Add(-3*24*time.Hour), now, cfg)
	if within != 0.8 {
		t.Errorf("confidence within grace period changed: got %v, want 0.8", within)
	}

	after := decayedConfidence(0.8, now.Add(-21*24*time.Hour), now, cfg)
	if after >= 0.8 {
		t.Errorf("expected decay past grace period, got %v", after)
	}
}

func TestSelectBestPattern_MatchesURLPatternAndPrefersHigherConfidence(t *testing.T) {
	e := newTestEngine()
	e.mu.Lock()
	d := e.entry("example.com")
	d.APIPatterns = []*models.ApiPattern{
		{ID: "a", URLPattern: `^https://example\.com/api/items/\{id\}$`, Confidence: 0.6, Metrics: models.ApiMetrics{LastSuccessTime: time.Now()}},
	}
	e.mu.Unlock()

	best := e.SelectBestPattern("example.com", "https://example.com/api/items/{id}")
	if best == nil || best.ID != "a" {
		t.Fatalf("expected pattern 'a' to match, got %+v", best)
	}

	none := e.SelectBestPattern("example.com", "https://example.com/other")
	if none != nil {
		t.Errorf("expected no match for unrelated URL, got %+v", none)
	}
}

func TestGetBypassablePatterns_FiltersOnCanBypassAndConfidence(t *testing.T) {
	e := newTestEngine()
	e.mu.Lock()
	d := e.entry("example.com")
	d.APIPatterns = []*models.ApiPattern{
		{ID: "bypassable", CanBypass: true, Confidence: 0.8, Metrics: models.ApiMetrics{LastSuccessTime: time.Now()}},
		{ID: "low-confidence", CanBypass: true, Confidence: 0.2, Metrics: models.ApiMetrics{LastSuccessTime: time.Now()}},
		{ID: "not-bypassable", CanBypass: false, Confidence: 0.9, Metrics: models.ApiMetrics{LastSuccessTime: time.Now()}},
	}
	e.mu.Unlock()

	got := e.GetBypassablePatterns("example.com")
	if len(got) != 1 || got[0].ID != "bypassable" {
		t.Errorf("expected only 'bypassable', got %+v", got)
	}
}

func TestGetSelectorChain_OrdersByScoreDescending(t *testing.T) {
	e := newTestEngine()
	e.RecordSelectorResult("example.com", models.ContentTypeMain, "article.body", true)
	e.RecordSelectorResult("example.com", models.ContentTypeMain, "div.weak", false)
	e.RecordSelectorResult("example.com", models.ContentTypeMain, "div.weak", false)

	chain := e.GetSelectorChain("example.com", models.ContentTypeMain)
	if len(chain) != 2 {
		t.Fatalf("expected 2 selectors, got %d", len(chain))
	}
	if chain[0].Selector != "article.body" {
		t.Errorf("expected the successful selector ranked first, got %q", chain[0].Selector)
	}
}

func TestExportImportKnowledge_RoundTrips(t *testing.T) {
	e := newTestEngine()
	e.RecordSuccess("example.com", models.TierPlaywright, "parse:static", 10, 10)

	snapshot := e.ExportKnowledge()

	e2 := newTestEngine()
	e2.ImportKnowledge(snapshot)

	profile, ok := e2.GetSuccessProfile("example.com")
	if !ok || profile.PreferredTier != string(models.TierPlaywright) {
		t.Errorf("expected imported engine to retain success profile, got %+v ok=%v", profile, ok)
	}
}

func TestDomainGroup_SeedsSharedSelectorsForMemberDomains(t *testing.T) {
	e := newTestEngine()
	e.groups["test_group"] = models.DomainGroup{
		Name:            "test_group",
		Members:         []string{"registry.example.com"},
		SharedSelectors: []string{"div.package-info"},
	}

	e.mu.Lock()
	d := e.entry("registry.example.com")
	e.mu.Unlock()

	if d.DomainGroup != "test_group" {
		t.Fatalf("expected domain group assignment, got %q", d.DomainGroup)
	}
	if len(d.SelectorChains[models.ContentTypeMain]) != 1 {
		t.Errorf("expected seeded selector from group, got %+v", d.SelectorChains)
	}
}
