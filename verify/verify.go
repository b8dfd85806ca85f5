// Package verify implements VerificationEngine (spec §4.11): built-in,
// learned, and user-supplied content/action/state checks run against a
// BrowseResult, plus JSON Schema validation.
//
// Grounded on the teacher's use of xeipuuv/gojsonschema (already in the
// module's dependency set) for schema checks, and on learning.Engine as
// the source of "learned" checks fed in at confidence >= 0.7.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/use-agent/sift/models"
)

// BrowserCapability is the minimal re-fetch surface checkUrl needs. A nil
// capability causes checkUrl checks to be skipped with a warning rather
// than failed, per spec §4.11.
type BrowserCapability interface {
	FetchHTML(ctx context.Context, url string) (html string, status int, err error)
}

// ApiCaller is the minimal surface checkApi needs. A nil capability causes
// checkApi checks to be skipped with a warning rather than failed.
type ApiCaller interface {
	CallAPI(ctx context.Context, url string) (status int, body []byte, err error)
}

// Engine evaluates VerificationChecks against a BrowseResult.
type Engine struct {
	Browser BrowserCapability
	API     ApiCaller
}

// New creates an Engine, with optional state-check capabilities.
func New(browser BrowserCapability, api ApiCaller) *Engine {
	return &Engine{Browser: browser, API: api}
}

// Verify implements spec §4.11's full check-aggregation and scoring
// algorithm: built-in checks by mode, then learned checks, then
// user-supplied checks, short-circuiting on the first critical failure.
func (e *Engine) Verify(ctx context.Context, result *models.BrowseResult, opts models.VerifyOptions, learnedChecks []models.VerificationCheck) models.VerifyResult {
	checks := builtinChecks(opts.Mode)
	checks = append(checks, learnedChecks...)
	checks = append(checks, opts.Checks...)

	var (
		out      models.VerifyResult
		errs     []string
		warnings []string
	)

	criticalFailed := false
	errorFailed := false

checkLoop:
	for _, check := range checks {
		passed, msg := e.evaluate(ctx, result, check)
		cr := models.CheckResult{Name: check.Name, Passed: passed, Severity: check.Severity, Message: msg}
		out.Checks = append(out.Checks, cr)

		if passed {
			if msg != "" {
				warnings = append(warnings, msg)
			}
			continue
		}
		switch check.Severity {
		case models.SeverityCritical:
			criticalFailed = true
			errs = append(errs, msg)
			break checkLoop
		case models.SeverityError:
			errorFailed = true
			errs = append(errs, msg)
		case models.SeverityWarning:
			warnings = append(warnings, msg)
		}
	}

	out.Errors = errs
	out.Warnings = warnings
	out.Passed = !criticalFailed && !errorFailed

	if opts.ValidateSchema && opts.Schema != "" {
		schemaErrs := validateSchema(opts.Schema, result)
		out.SchemaErrors = schemaErrs
		if len(schemaErrs) > 0 {
			out.Passed = false
			errorFailed = true
		}
	}

	out.Confidence = confidenceScore(out.Checks, criticalFailed, errorFailed)
	return out
}

func confidenceScore(checks []models.CheckResult, criticalFailed, errorFailed bool) float64 {
	if len(checks) == 0 {
		return 0.5
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	ratio := float64(passed) / float64(len(checks))

	multiplier := 1.0
	switch {
	case criticalFailed:
		multiplier = 0.3
	case errorFailed:
		multiplier = 0.6
	}

	score := ratio * multiplier
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// builtinChecks implements spec §4.11's mode-to-checks table.
func builtinChecks(mode models.VerificationMode) []models.VerificationCheck {
	checks := []models.VerificationCheck{
		{Name: "status_code_ok", Type: models.CheckState, Assertion: models.Assertion{StatusCode: 200}, Severity: models.SeverityError},
		{Name: "min_content_length", Type: models.CheckContent, Assertion: models.Assertion{MinLength: 50}, Severity: models.SeverityError},
	}
	if mode == models.ModeStandard || mode == models.ModeThorough {
		checks = append(checks, models.VerificationCheck{
			Name:      "excludes_block_text",
			Type:      models.CheckContent,
			Assertion: models.Assertion{ExcludesText: []string{"access denied", "rate limit exceeded"}},
			Severity:  models.SeverityError,
		})
	}
	if mode == models.ModeThorough {
		checks = append(checks, models.VerificationCheck{
			Name:      "thorough_min_content_length",
			Type:      models.CheckContent,
			Assertion: models.Assertion{MinLength: 100},
			Severity:  models.SeverityWarning,
		})
	}
	return checks
}

func (e *Engine) evaluate(ctx context.Context, result *models.BrowseResult, check models.VerificationCheck) (bool, string) {
	switch check.Type {
	case models.CheckContent:
		return evaluateContent(result, check.Assertion)
	case models.CheckState:
		return e.evaluateState(ctx, result, check.Assertion)
	case models.CheckCustom:
		if check.Assertion.CustomValidator != nil {
			if check.Assertion.CustomValidator(result) {
				return true, ""
			}
			return false, fmt.Sprintf("%s: custom validator failed", check.Name)
		}
		return true, ""
	default:
		return true, ""
	}
}

func evaluateContent(result *models.BrowseResult, a models.Assertion) (bool, string) {
	text := result.Content.Text
	if a.MinLength > 0 && len(text) < a.MinLength {
		return false, fmt.Sprintf("content length %d below minimum %d", len(text), a.MinLength)
	}
	if a.MaxLength > 0 && len(text) > a.MaxLength {
		return false, fmt.Sprintf("content length %d exceeds maximum %d", len(text), a.MaxLength)
	}
	lower := strings.ToLower(text)
	for _, needle := range a.ContainsText {
		if !strings.Contains(lower, strings.ToLower(needle)) {
			return false, fmt.Sprintf("expected content to contain %q", needle)
		}
	}
	for _, needle := range a.ExcludesText {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return false, fmt.Sprintf("content unexpectedly contains %q", needle)
		}
	}
	return true, ""
}

func (e *Engine) evaluateState(ctx context.Context, result *models.BrowseResult, a models.Assertion) (bool, string) {
	if a.StatusCode != 0 {
		switch {
		case result.Metadata.StatusCode != 0:
			if result.Metadata.StatusCode != a.StatusCode {
				return false, fmt.Sprintf("status code %d, want %d", result.Metadata.StatusCode, a.StatusCode)
			}
		case result.FinalURL == "":
			// No status was ever recorded and the fetch produced no final
			// URL either: nothing completed to check.
			return false, "no response recorded"
		}
	}

	if a.CheckURL != "" {
		if e.Browser == nil {
			return true, "checkUrl skipped: no Browser capability injected"
		}
		html, _, err := e.Browser.FetchHTML(ctx, a.CheckURL)
		if err != nil {
			return false, fmt.Sprintf("checkUrl fetch failed: %v", err)
		}
		if len(html) < 50 {
			return false, "checkUrl: fetched content below minimum length"
		}
		if a.CheckSelector != "" {
			pattern, err := SelectorToSearchPattern(a.CheckSelector)
			if err != nil {
				return false, fmt.Sprintf("checkUrl: invalid selector pattern: %v", err)
			}
			if !pattern.MatchString(html) {
				return false, fmt.Sprintf("checkUrl: selector %q not found", a.CheckSelector)
			}
		}
		return true, ""
	}

	if a.CheckAPI != "" {
		if e.API == nil {
			return true, "checkApi skipped: no ApiCaller capability injected"
		}
		status, body, err := e.API.CallAPI(ctx, a.CheckAPI)
		if err != nil {
			return false, fmt.Sprintf("checkApi call failed: %v", err)
		}
		if status < 200 || status >= 300 {
			return false, fmt.Sprintf("checkApi: status %d", status)
		}
		if len(body) == 0 {
			return false, "checkApi: empty body"
		}
		return true, ""
	}

	return true, ""
}

// SelectorToSearchPattern implements spec §4.11's non-parser
// selector->regex heuristic, used when only raw HTML text (not a DOM) is
// available to check against.
func SelectorToSearchPattern(selector string) (*regexp.Regexp, error) {
	selector = strings.TrimSpace(selector)
	switch {
	case strings.HasPrefix(selector, "#"):
		id := regexp.QuoteMeta(selector[1:])
		return regexp.Compile(`id=['"]` + id + `['"]`)
	case strings.HasPrefix(selector, "."):
		class := regexp.QuoteMeta(selector[1:])
		return regexp.Compile(`class=['"][^'"]*(^|\s)` + class + `(\s|['"])[^'"]*['"]`)
	case strings.HasPrefix(selector, "[") && strings.HasSuffix(selector, "]"):
		inner := selector[1 : len(selector)-1]
		if eq := strings.Index(inner, "="); eq >= 0 {
			attr := regexp.QuoteMeta(inner[:eq])
			val := strings.Trim(inner[eq+1:], `"'`)
			return regexp.Compile(attr + `=['"]` + regexp.QuoteMeta(val) + `['"]`)
		}
		attr := regexp.QuoteMeta(inner)
		return regexp.Compile(attr + `=['"]`)
	case isBareTagName(selector):
		return regexp.Compile(`<` + regexp.QuoteMeta(selector) + `[\s>]`)
	default:
		return regexp.Compile(regexp.QuoteMeta(selector))
	}
}

func isBareTagName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// validateSchema validates an object of result's title, content text and
// content markdown against a JSON Schema document, returning every
// violation. No other field of the result is included.
func validateSchema(schema string, result *models.BrowseResult) []models.SchemaValidationError {
	schemaLoader := gojsonschema.NewStringLoader(schema)

	payload := map[string]any{
		"title":   result.Title,
		"text":    result.Content.Text,
		"markdown": result.Content.Markdown,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return []models.SchemaValidationError{{Message: fmt.Sprintf("failed to marshal content for schema validation: %v", err)}}
	}
	documentLoader := gojsonschema.NewBytesLoader(raw)

	res, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return []models.SchemaValidationError{{Message: fmt.Sprintf("schema validation error: %v", err)}}
	}
	if res.Valid() {
		return nil
	}

	var out []models.SchemaValidationError
	for _, e := range res.Errors() {
		out = append(out, models.SchemaValidationError{
			Path:    e.Field(),
			Keyword: e.Type(),
			Message: e.Description(),
			Params:  e.Details(),
		})
	}
	return out
}
