package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/use-agent/sift/models"
)

// jsonContentTypeRe matches response Content-Type headers that carry
// structured data worth mining for a ContentMapping, per spec §4.6.1
// condition 2.
var jsonContentTypeRe = regexp.MustCompile(`(?i)application/(json|ld\+json|hal\+json|vnd\.api\+json)|text/json`)

// numericSegmentRe finds path segments that look like an opaque numeric or
// UUID-ish resource id, used by classifyTemplate's rest-resource signal.
var numericSegmentRe = regexp.MustCompile(`^[0-9]+$|^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// excludedPathSegments are the tracking/analytics/log endpoints spec
// §4.6.1 condition 4 excludes outright, regardless of content-type.
var excludedPathSegments = []string{"analytics", "beacon", "pixel", "track", "telemetry", "metrics", "log"}

// variableQueryKeys is the likely-variable list from spec §4.6.1: query
// keys whose value varies per request and should be generalized to
// `[^&]+` in a pattern's urlPattern rather than matched literally.
var variableQueryKeys = map[string]bool{
	"timestamp": true, "ts": true, "t": true, "_": true,
	"rand": true, "random": true, "token": true, "auth": true,
	"session": true, "sid": true, "uid": true, "offset": true,
	"page": true, "limit": true, "cursor": true,
}

// DiscoverAPIPatterns implements spec §4.6.1: scans the network requests
// captured during one browse() for XHR/fetch responses that plausibly
// backed the rendered content, and emits an ApiPattern for every one whose
// weighted-signal confidence clears 0.5.
//
// pageURL is the page the requests were captured from; renderedText is the
// final extracted text, used to corroborate that a candidate response's
// content actually made it onto the page.
func (e *Engine) DiscoverAPIPatterns(domain, pageURL string, requests []models.NetworkRequest, renderedText string) []*models.ApiPattern {
	var discovered []*models.ApiPattern

	for _, req := range requests {
		if !qualifiesAsAPICandidate(req) {
			continue
		}

		confidence, mappings := scoreAPICandidate(req, renderedText)
		if confidence < 0.5 {
			continue
		}

		pattern := &models.ApiPattern{
			ID:              patternID(domain, req.URL),
			Domain:          domain,
			Endpoint:        req.URL,
			Method:          req.Method,
			URLPattern:      toURLPattern(pageURL),
			TemplateType:    classifyTemplate(req),
			ContentMappings: mappings,
			Validation: models.ApiValidation{
				MinContentLength: minAPIContentSize,
			},
			AuthType:   detectAuthType(req),
			Confidence: confidence,
			Metrics: models.ApiMetrics{
				SuccessCount:    1,
				LastSuccessTime: req.TimestampStart,
			},
			CanBypass:  canBypassRendering(req),
			Provenance: models.NewProvenance(models.OriginAPIExtraction, req.URL, domain),
			CreatedAt:  time.Now(),
		}
		discovered = append(discovered, pattern)
	}

	e.mu.Lock()
	d := e.entry(domain)
	d.APIPatterns = mergePatterns(d.APIPatterns, discovered)
	e.mu.Unlock()

	return discovered
}

// minAPIContentSize is spec §4.6.1 condition 5's MIN_CONTENT_SIZE.
const minAPIContentSize = 100

// qualifiesAsAPICandidate implements the 5 qualifying conditions named in
// spec §4.6.1: successful, method in {GET, POST}, JSON-bearing, not a
// tracking/analytics/log endpoint, and non-trivial in size.
func qualifiesAsAPICandidate(req models.NetworkRequest) bool {
	if req.Status < 200 || req.Status >= 300 {
		return false
	}
	if req.Method != "GET" && req.Method != "POST" {
		return false
	}
	if !jsonContentTypeRe.MatchString(req.ContentType) {
		return false
	}
	if isExcludedEndpoint(req.URL) {
		return false
	}
	if len(req.ResponseBody) < minAPIContentSize {
		return false
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return false
	}
	return u.Path != "" && u.Path != "/"
}

// isExcludedEndpoint reports whether url is a tracking/analytics/log
// endpoint, spec §4.6.1 condition 4.
func isExcludedEndpoint(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	lower := strings.ToLower(u.Host + u.Path)
	for _, bad := range excludedPathSegments {
		if strings.Contains(lower, bad) {
			return true
		}
	}
	return false
}

// scoreAPICandidate implements §4.6.1's weighted-signal confidence
// formula. Each signal contributes an independent weight; the sum is
// clamped to [0,1].
func scoreAPICandidate(req models.NetworkRequest, renderedText string) (float64, []models.ContentMapping) {
	var score float64
	var mappings []models.ContentMapping

	// Signal: response content-type is unambiguously structured data.
	if strings.Contains(strings.ToLower(req.ContentType), "json") {
		score += 0.2
	}

	// Signal: the response body's text shows up verbatim in the rendered
	// page, meaning this call plausibly backed what the user sees.
	fields := extractStringFields(req.ResponseBody)
	matched := 0
	for path, val := range fields {
		if val == "" || len(val) < 4 {
			continue
		}
		if renderedText != "" && strings.Contains(renderedText, val) {
			matched++
			mappings = append(mappings, models.ContentMapping{SourcePath: path, LogicalName: lastSegment(path)})
		}
	}
	if matched > 0 {
		score += 0.4
		if matched >= 3 {
			score += 0.1
		}
	}

	// Signal: response size, tiered per spec §4.6.1 (exclusion of
	// tracking/analytics/log endpoints is a qualifying gate, handled in
	// qualifiesAsAPICandidate, not a scoring signal).
	n := len(req.ResponseBody)
	if n >= 100 {
		score += 0.1
	}
	if n >= 1_000 {
		score += 0.1
	}
	if n >= 5_000 {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score, mappings
}

// toURLPattern builds a regex over the target page URL per spec §4.6.1:
// the scheme/host/path are matched literally (escaped), and any query
// param whose key is in variableQueryKeys is generalized to `[^&]+` so the
// pattern still matches when that value changes between visits; all other
// query params are preserved as literals. SelectBestPattern compiles and
// matches this regex against future target page URLs, not API endpoints.
func toURLPattern(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "^" + regexp.QuoteMeta(pageURL) + "$"
	}

	var b strings.Builder
	b.WriteString("^")
	b.WriteString(regexp.QuoteMeta(u.Scheme + "://" + u.Host + u.Path))

	if u.RawQuery != "" {
		b.WriteString(`\?`)
		pairs := strings.Split(u.RawQuery, "&")
		for i, pair := range pairs {
			if i > 0 {
				b.WriteString("&")
			}
			key := pair
			if idx := strings.IndexByte(pair, '='); idx >= 0 {
				key = pair[:idx]
			}
			if variableQueryKeys[strings.ToLower(key)] {
				b.WriteString(regexp.QuoteMeta(key) + "=[^&]+")
			} else {
				b.WriteString(regexp.QuoteMeta(pair))
			}
		}
	}

	b.WriteString("$")
	return b.String()
}

// classifyTemplate implements spec §4.6.2's template classification table.
func classifyTemplate(req models.NetworkRequest) models.TemplateType {
	lower := strings.ToLower(req.URL)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return models.TemplateJSONSuffix
	case strings.Contains(lower, "/registry/") || strings.Contains(lower, "/packages/"):
		return models.TemplateRegistryLookup
	case strings.Contains(lower, "firebaseio.com") || strings.Contains(lower, "/firestore/"):
		return models.TemplateFirebaseREST
	case strings.Contains(lower, "graphql") || strings.Contains(lower, "query="):
		return models.TemplateQueryAPI
	case numericSegmentRe.MatchString(lastSegment(lower)):
		return models.TemplateRESTResource
	default:
		return models.TemplateCustom
	}
}

func detectAuthType(req models.NetworkRequest) models.AuthType {
	for k, v := range req.RequestHeaders {
		lk := strings.ToLower(k)
		if lk == "authorization" {
			if strings.HasPrefix(strings.ToLower(v), "bearer ") {
				return models.AuthBearer
			}
			return models.AuthHeader
		}
		if lk == "cookie" {
			return models.AuthCookie
		}
	}
	return models.AuthNone
}

// canBypassRendering reports whether this API response is self-sufficient
// enough that a future fetch could call it directly instead of rendering
// the page at all (no session-bound auth, GET-able).
func canBypassRendering(req models.NetworkRequest) bool {
	if req.Method != "" && req.Method != "GET" {
		return false
	}
	return detectAuthType(req) != models.AuthCookie && detectAuthType(req) != models.AuthHeader
}

func lastSegment(path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '.' })
	if len(parts) == 0 {
		return path
	}
	return parts[len(parts)-1]
}

// extractStringFields flattens a JSON response body into path->value pairs
// for up to the top two levels of nesting, enough to corroborate content
// provenance without a full recursive walk.
func extractStringFields(body []byte) map[string]string {
	out := map[string]string{}
	if len(body) == 0 {
		return out
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return out
	}
	flattenJSON("", raw, out, 0)
	return out
}

func flattenJSON(prefix string, v any, out map[string]string, depth int) {
	if depth > 2 {
		return
	}
	switch val := v.(type) {
	case string:
		if prefix != "" {
			out[prefix] = val
		}
	case map[string]any:
		for k, sub := range val {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flattenJSON(p, sub, out, depth+1)
		}
	case []any:
		for i, sub := range val {
			if i > 5 {
				break
			}
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), sub, out, depth+1)
		}
	}
}

func patternID(domain, endpoint string) string {
	sum := sha256.Sum256([]byte(domain + "|" + endpoint))
	return hex.EncodeToString(sum[:])[:16]
}

// mergePatterns folds newly discovered patterns into existing ones: a
// pattern whose ID already exists gets its metrics bumped rather than
// duplicated.
func mergePatterns(existing []*models.ApiPattern, discovered []*models.ApiPattern) []*models.ApiPattern {
	byID := make(map[string]*models.ApiPattern, len(existing))
	for _, p := range existing {
		byID[p.ID] = p
	}
	for _, p := range discovered {
		if old, ok := byID[p.ID]; ok {
			old.Metrics.SuccessCount++
			old.Metrics.LastSuccessTime = p.Metrics.LastSuccessTime
			if p.Confidence > old.Confidence {
				old.Confidence = p.Confidence
			}
			continue
		}
		byID[p.ID] = p
		existing = append(existing, p)
	}
	return existing
}
