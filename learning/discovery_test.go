package learning

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/sift/models"
)

// pad grows a JSON object body past spec's 100-byte MIN_CONTENT_SIZE gate
// by inserting an extra padding field before the closing brace.
func pad(body string) []byte {
	if !strings.HasSuffix(body, "}") {
		return []byte(body)
	}
	filler := 100 - len(body)
	if filler < 0 {
		filler = 0
	}
	trimmed := strings.TrimSuffix(body, "}")
	return []byte(trimmed + `,"pad":"` + strings.Repeat("x", filler+10) + `"}`)
}

func TestDiscoverAPIPatterns_EmitsPatternForCorroboratedJSONResponse(t *testing.T) {
	e := newTestEngine()

	body := pad(`{"item":{"title":"Widget Pro 3000","price":"19.99"}}`)
	requests := []models.NetworkRequest{
		{
			URL:            "https://shop.example.com/api/items/42",
			Method:         "GET",
			Status:         200,
			ContentType:    "application/json",
			ResponseBody:   body,
			TimestampStart: time.Now(),
		},
	}

	rendered := "Widget Pro 3000 costs 19.99"
	patterns := e.DiscoverAPIPatterns("shop.example.com", "https://shop.example.com/products/42?page=2", requests, rendered)

	if len(patterns) != 1 {
		t.Fatalf("expected 1 discovered pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Confidence < 0.5 {
		t.Errorf("expected confidence >= 0.5, got %v", p.Confidence)
	}
	wantPattern := `^https://shop\.example\.com/products/42\?page=[^&]+$`
	if p.URLPattern != wantPattern {
		t.Errorf("URLPattern = %q, want %q", p.URLPattern, wantPattern)
	}
	re, err := regexp.Compile(p.URLPattern)
	if err != nil {
		t.Fatalf("URLPattern does not compile: %v", err)
	}
	if !re.MatchString("https://shop.example.com/products/42?page=3") {
		t.Error("expected the pattern to match the same page with a different page= value")
	}
	if !p.CanBypass {
		t.Error("expected a plain unauthenticated GET to be bypassable")
	}
}

func TestDiscoverAPIPatterns_SkipsNonJSONAnalyticsAndSmallCalls(t *testing.T) {
	e := newTestEngine()
	requests := []models.NetworkRequest{
		{URL: "https://example.com/track/pixel.json", Method: "GET", Status: 200, ContentType: "application/json", ResponseBody: pad(`{"ok":true,"extra":"padding-padding-padding"}`)},
		{URL: "https://example.com/style.css", Method: "GET", Status: 200, ContentType: "text/css", ResponseBody: pad(`body{color:red}`)},
		{URL: "https://example.com/api/fail", Method: "GET", Status: 500, ContentType: "application/json", ResponseBody: pad(`{"error":"boom"}`)},
		{URL: "https://example.com/api/delete/1", Method: "DELETE", Status: 200, ContentType: "application/json", ResponseBody: pad(`{"ok":true}`)},
		{URL: "https://example.com/api/tiny", Method: "GET", Status: 200, ContentType: "application/json", ResponseBody: []byte(`{"ok":true}`)},
	}

	patterns := e.DiscoverAPIPatterns("example.com", "https://example.com/", requests, "")
	if len(patterns) != 0 {
		t.Errorf("expected no patterns discovered, got %+v", patterns)
	}
}

func TestDiscoverAPIPatterns_CookieAuthIsNotBypassable(t *testing.T) {
	e := newTestEngine()
	requests := []models.NetworkRequest{
		{
			URL:            "https://app.example.com/api/account/99",
			Method:         "GET",
			Status:         200,
			ContentType:    "application/json",
			RequestHeaders: map[string]string{"Cookie": "session=abc123"},
			ResponseBody:   pad(`{"user":{"name":"Jordan Rivera"}}`),
		},
	}
	patterns := e.DiscoverAPIPatterns("app.example.com", "https://app.example.com/account", requests, "Jordan Rivera")
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].CanBypass {
		t.Error("expected cookie-authenticated endpoint to not be bypassable")
	}
	if patterns[0].AuthType != models.AuthCookie {
		t.Errorf("AuthType = %q, want cookie", patterns[0].AuthType)
	}
}

func TestClassifyTemplate(t *testing.T) {
	cases := []struct {
		url  string
		want models.TemplateType
	}{
		{"https://registry.npmjs.org/lodash.json", models.TemplateJSONSuffix},
		{"https://example.com/registry/packages/foo", models.TemplateRegistryLookup},
		{"https://project.firebaseio.com/data.json", models.TemplateJSONSuffix},
		{"https://example.com/graphql?query=1", models.TemplateQueryAPI},
		{"https://example.com/api/items/42", models.TemplateRESTResource},
		{"https://example.com/weird/endpoint", models.TemplateCustom},
	}
	for _, c := range cases {
		got := classifyTemplate(models.NetworkRequest{URL: c.url})
		if got != c.want {
			t.Errorf("classifyTemplate(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestToURLPattern_GeneralizesVariableQueryParamsOnly(t *testing.T) {
	got := toURLPattern("https://example.com/api/items/12345?token=abc&category=tools")
	want := `^https://example\.com/api/items/12345\?token=[^&]+&category=tools$`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	re, err := regexp.Compile(got)
	if err != nil {
		t.Fatalf("pattern does not compile: %v", err)
	}
	if !re.MatchString("https://example.com/api/items/12345?token=xyz&category=tools") {
		t.Error("expected a different token value to still match")
	}
	if re.MatchString("https://example.com/api/items/12345?token=abc&category=hardware") {
		t.Error("expected a different non-variable category to not match")
	}
}

func TestToURLPattern_EscapesRegexMetacharacters(t *testing.T) {
	got := toURLPattern("https://example.com/api/v1.0/items")
	want := `^https://example\.com/api/v1\.0/items$`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
