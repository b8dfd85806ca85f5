package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/use-agent/sift/models"
)

func sampleResult(text string) *models.BrowseResult {
	return &models.BrowseResult{
		FinalURL: "https://example.com/page",
		Content:  models.Content{Text: text},
	}
}

func TestVerify_BasicModePassesOnSufficientContent(t *testing.T) {
	e := New(nil, nil)
	result := sampleResult(strings.Repeat("word ", 20))
	out := e.Verify(context.Background(), result, models.VerifyOptions{Mode: models.ModeBasic}, nil)
	if !out.Passed {
		t.Errorf("expected pass, got %+v", out)
	}
}

func TestVerify_BasicModeFailsOnStatus403(t *testing.T) {
	e := New(nil, nil)
	result := sampleResult(strings.Repeat("word ", 20))
	result.Metadata.StatusCode = 403
	out := e.Verify(context.Background(), result, models.VerifyOptions{Mode: models.ModeBasic}, nil)
	if out.Passed {
		t.Error("expected failure on a 403 status result")
	}
	found := false
	for _, c := range out.Checks {
		if c.Name == "status_code_ok" && !c.Passed {
			found = true
		}
	}
	if !found {
		t.Error("expected status_code_ok check to fail")
	}
}

func TestVerify_BasicModeFailsOnShortContent(t *testing.T) {
	e := New(nil, nil)
	result := sampleResult("too short")
	out := e.Verify(context.Background(), result, models.VerifyOptions{Mode: models.ModeBasic}, nil)
	if out.Passed {
		t.Error("expected failure on content below minLength")
	}
	if len(out.Errors) == 0 {
		t.Error("expected an accumulated error message")
	}
}

func TestVerify_StandardModeFailsOnBlockedText(t *testing.T) {
	e := New(nil, nil)
	result := sampleResult(strings.Repeat("word ", 20) + "Access Denied")
	out := e.Verify(context.Background(), result, models.VerifyOptions{Mode: models.ModeStandard}, nil)
	if out.Passed {
		t.Error("expected failure on blocked-text match")
	}
}

func TestVerify_CriticalFailureShortCircuits(t *testing.T) {
	e := New(nil, nil)
	result := sampleResult(strings.Repeat("word ", 20))
	checks := []models.VerificationCheck{
		{Name: "always_fails", Type: models.CheckContent, Assertion: models.Assertion{MinLength: 99999}, Severity: models.SeverityCritical},
		{Name: "never_reached", Type: models.CheckContent, Assertion: models.Assertion{MinLength: 99999}, Severity: models.SeverityError},
	}
	out := e.Verify(context.Background(), result, models.VerifyOptions{Mode: models.ModeBasic, Checks: checks}, nil)
	if out.Passed {
		t.Error("expected overall failure")
	}
	// basic checks (2) + the critical check = 3; the error-severity check after it must be skipped
	if len(out.Checks) != 3 {
		t.Errorf("expected critical failure to stop evaluation, got %d check results: %+v", len(out.Checks), out.Checks)
	}
}

func TestVerify_ConfidenceReflectsSeverityMultiplier(t *testing.T) {
	e := New(nil, nil)
	result := sampleResult(strings.Repeat("word ", 20))
	out := e.Verify(context.Background(), result, models.VerifyOptions{Mode: models.ModeBasic}, nil)
	if out.Confidence != 1.0 {
		t.Errorf("expected full confidence on all-pass, got %v", out.Confidence)
	}
}

func TestCheckURL_SkippedWithoutBrowserCapability(t *testing.T) {
	e := New(nil, nil)
	result := sampleResult(strings.Repeat("word ", 20))
	checks := []models.VerificationCheck{
		{Name: "state_check", Type: models.CheckState, Assertion: models.Assertion{CheckURL: "https://example.com/other"}, Severity: models.SeverityError},
	}
	out := e.Verify(context.Background(), result, models.VerifyOptions{Checks: checks}, nil)
	found := false
	for _, c := range out.Checks {
		if c.Name == "state_check" && c.Passed {
			found = true
		}
	}
	if !found {
		t.Error("expected checkUrl to be skipped (reported as passed with a warning message) when no Browser capability is injected")
	}
}

func TestSelectorToSearchPattern(t *testing.T) {
	cases := []struct {
		selector string
		html     string
		want     bool
	}{
		{"#main", `<div id="main">hi</div>`, true},
		{".price", `<span class="item price">9.99</span>`, true},
		{"[data-id]", `<div data-id="42">x</div>`, true},
		{"article", `<article class="post">x</article>`, true},
		{"#missing", `<div id="main">hi</div>`, false},
	}
	for _, c := range cases {
		re, err := SelectorToSearchPattern(c.selector)
		if err != nil {
			t.Fatalf("SelectorToSearchPattern(%q): %v", c.selector, err)
		}
		if got := re.MatchString(c.html); got != c.want {
			t.Errorf("selector %q against %q: got %v, want %v", c.selector, c.html, got, c.want)
		}
	}
}
