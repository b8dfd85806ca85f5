package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/use-agent/sift/browser"
	"github.com/use-agent/sift/intelligence"
	"github.com/use-agent/sift/models"
	"github.com/use-agent/sift/render"
)

type fakeIntel struct {
	result intelligence.ContentResult
	err    error
}

func (f *fakeIntel) Extract(ctx context.Context, rawURL string, opts models.BrowseOptions) (intelligence.ContentResult, error) {
	return f.result, f.err
}

type fakeLightweight struct {
	result render.Result
	err    error
}

func (f *fakeLightweight) Render(ctx context.Context, rawURL string, opts render.Options) (render.Result, error) {
	return f.result, f.err
}

type fakePlaywright struct {
	result browser.FetchResult
	err    error
}

func (f *fakePlaywright) Fetch(ctx context.Context, rawURL string, opts models.BrowseOptions) (browser.FetchResult, error) {
	return f.result, f.err
}

type fakeLearning struct {
	profile     models.SuccessProfile
	hasProfile  bool
	bypass      []*models.ApiPattern
	successCall func(domain string, tier models.CostTier, strategy string, ms float64, length int)
	failureCall func(domain string, fc models.FailureContext)
}

func (f *fakeLearning) GetSuccessProfile(domain string) (models.SuccessProfile, bool) {
	return f.profile, f.hasProfile
}
func (f *fakeLearning) GetBypassablePatterns(domain string) []*models.ApiPattern { return f.bypass }
func (f *fakeLearning) RecordSuccess(domain string, tier models.CostTier, strategy string, ms float64, length int) {
	if f.successCall != nil {
		f.successCall(domain, tier, strategy, ms, length)
	}
}
func (f *fakeLearning) RecordFailure(domain string, fc models.FailureContext) {
	if f.failureCall != nil {
		f.failureCall(domain, fc)
	}
}

func TestFetch_SucceedsAtIntelligenceTierWithoutEscalating(t *testing.T) {
	intel := &fakeIntel{result: intelligence.ContentResult{
		Title:   "Example",
		Content: models.Content{Text: "this page has plenty of content to satisfy the minimum length check"},
		Strategy: "parse:static",
	}}
	light := &fakeLightweight{}
	called := false
	learning := &fakeLearning{successCall: func(domain string, tier models.CostTier, strategy string, ms float64, length int) {
		called = true
		if tier != models.TierIntelligence {
			t.Errorf("recorded tier = %v, want intelligence", tier)
		}
	}}

	f := New(intel, light, nil, learning)
	res, err := f.Fetch(context.Background(), "https://example.com/article", models.DefaultBrowseOptions())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Tier != models.TierIntelligence {
		t.Errorf("Tier = %v, want intelligence", res.Tier)
	}
	if res.FellBack {
		t.Error("FellBack = true, want false")
	}
	if !called {
		t.Error("RecordSuccess was not called")
	}
}

func TestFetch_PropagatesPlaywrightStatusCode(t *testing.T) {
	intel := &fakeIntel{err: errors.New("should not be called")}
	light := &fakeLightweight{err: errors.New("should not be called")}
	play := &fakePlaywright{result: browser.FetchResult{
		HTML:       "<html><head><title>Forbidden</title></head><body><p>" + longText() + "</p></body></html>",
		StatusCode: 403,
		FinalURL:   "https://example.com/article",
	}}
	learning := &fakeLearning{profile: models.SuccessProfile{PreferredTier: string(models.TierPlaywright)}, hasProfile: true}

	f := New(intel, light, play, learning)
	// A 403 fails the playwright tier's statusOK check, so escalation
	// exhausts and Fetch reports an error; the best-effort Result it
	// returns alongside that error must still carry the real status code.
	res, err := f.Fetch(context.Background(), "https://example.com/article", models.DefaultBrowseOptions())
	if err == nil {
		t.Fatal("expected tier exhaustion error for a 403 response")
	}
	if res.StatusCode != 403 {
		t.Errorf("StatusCode = %d, want 403", res.StatusCode)
	}
}

func TestFetch_EscalatesWhenIntelligenceContentTooShort(t *testing.T) {
	intel := &fakeIntel{result: intelligence.ContentResult{Title: "x", Content: models.Content{Text: "short"}}}
	light := &fakeLightweight{result: render.Result{
		HTML:     "<html><head><title>Full Page</title></head><body><p>" + longText() + "</p></body></html>",
		FinalURL: "https://example.com/article",
	}}
	learning := &fakeLearning{}

	f := New(intel, light, nil, learning)
	opts := models.DefaultBrowseOptions()
	opts.MaxCostTier = models.TierLightweight
	res, err := f.Fetch(context.Background(), "https://example.com/article", opts)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Tier != models.TierLightweight {
		t.Errorf("Tier = %v, want lightweight", res.Tier)
	}
	if !res.FellBack {
		t.Error("FellBack = false, want true")
	}
	if len(res.TiersAttempted) != 2 {
		t.Errorf("TiersAttempted = %v, want 2 entries", res.TiersAttempted)
	}
}

func TestFetch_StartsFromLearnedPreferredTier(t *testing.T) {
	intel := &fakeIntel{err: errors.New("should not be called")}
	light := &fakeLightweight{result: render.Result{
		HTML:     "<html><head><title>From Render</title></head><body><p>" + longText() + "</p></body></html>",
		FinalURL: "https://example.com",
	}}
	learning := &fakeLearning{profile: models.SuccessProfile{PreferredTier: string(models.TierLightweight)}, hasProfile: true}

	f := New(intel, light, nil, learning)
	res, err := f.Fetch(context.Background(), "https://example.com", models.DefaultBrowseOptions())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Tier != models.TierLightweight {
		t.Errorf("Tier = %v, want lightweight", res.Tier)
	}
	if len(res.TiersAttempted) != 1 {
		t.Errorf("TiersAttempted = %v, want exactly the lightweight tier", res.TiersAttempted)
	}
}

func TestFetch_BypassForcesIntelligenceTierRegardlessOfPreference(t *testing.T) {
	intel := &fakeIntel{result: intelligence.ContentResult{
		Title:    "x",
		Content:  models.Content{Text: longText()},
		Strategy: "api:learned",
	}}
	learning := &fakeLearning{
		profile:    models.SuccessProfile{PreferredTier: string(models.TierPlaywright)},
		hasProfile: true,
		bypass:     []*models.ApiPattern{{ID: "p1", CanBypass: true, Confidence: 0.9}},
	}

	f := New(intel, nil, nil, learning)
	res, err := f.Fetch(context.Background(), "https://example.com", models.DefaultBrowseOptions())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Tier != models.TierIntelligence {
		t.Errorf("Tier = %v, want intelligence (bypass)", res.Tier)
	}
}

func TestFetch_ReturnsBestEffortWithTierExhaustedError(t *testing.T) {
	intel := &fakeIntel{result: intelligence.ContentResult{Content: models.Content{Text: "nope"}}}
	learning := &fakeLearning{}

	f := New(intel, nil, nil, learning)
	opts := models.DefaultBrowseOptions()
	opts.MaxCostTier = models.TierIntelligence
	_, err := f.Fetch(context.Background(), "https://example.com", opts)
	if err == nil {
		t.Fatal("expected an error when every tier is exhausted")
	}
	var sErr *models.SiftError
	if !errors.As(err, &sErr) || sErr.Code != models.ErrTierExhausted {
		t.Errorf("err = %v, want ErrTierExhausted", err)
	}
}

func TestTiersFrom_ClampsStaleStartAboveMax(t *testing.T) {
	seq := tiersFrom(models.TierPlaywright, models.TierIntelligence)
	if len(seq) != 1 || seq[0] != models.TierIntelligence {
		t.Errorf("tiersFrom clamp = %v, want [intelligence]", seq)
	}
}

func longText() string {
	s := ""
	for i := 0; i < 10; i++ {
		s += "this sentence pads the extracted text past the default minimum content length. "
	}
	return s
}
