package models

import "time"

// TemplateType classifies the shape of a learned API pattern (spec §4.6.2).
type TemplateType string

const (
	TemplateJSONSuffix      TemplateType = "json-suffix"
	TemplateRegistryLookup  TemplateType = "registry-lookup"
	TemplateRESTResource    TemplateType = "rest-resource"
	TemplateFirebaseREST    TemplateType = "firebase-rest"
	TemplateQueryAPI        TemplateType = "query-api"
	TemplateCustom          TemplateType = "custom"
)

// AuthType is how a learned API pattern authenticates.
type AuthType string

const (
	AuthCookie  AuthType = "cookie"
	AuthBearer  AuthType = "bearer"
	AuthHeader  AuthType = "header"
	AuthSession AuthType = "session"
	AuthNone    AuthType = "none"
)

// ContentMapping binds a path in an API response to a logical output field.
type ContentMapping struct {
	SourcePath  string `json:"sourcePath"`
	LogicalName string `json:"logicalName"`
}

// ApiValidation is the acceptance criteria for a candidate API response.
type ApiValidation struct {
	RequiredFields   []string `json:"requiredFields,omitempty"`
	MinContentLength int      `json:"minContentLength"`
}

// ApiMetrics tracks a pattern's usage history.
type ApiMetrics struct {
	SuccessCount    int       `json:"successCount"`
	FailureCount    int       `json:"failureCount"`
	AvgResponseTime float64   `json:"avgResponseTime"`
	LastSuccessTime time.Time `json:"lastSuccessTime"`
	LastFailureTime time.Time `json:"lastFailureTime"`
}

// ApiPattern is a canonical learned HTTP-API-behind-a-page (spec §3, §4.6).
type ApiPattern struct {
	ID              string           `json:"id"`
	Domain          string           `json:"domain"`
	Endpoint        string           `json:"endpoint"`
	Method          string           `json:"method"`
	URLPattern      string           `json:"urlPattern"`
	TemplateType    TemplateType     `json:"templateType"`
	ContentMappings []ContentMapping `json:"contentMappings,omitempty"`
	Validation      ApiValidation    `json:"validation"`
	AuthType        AuthType         `json:"authType,omitempty"`
	AuthHeaders     map[string]string `json:"authHeaders,omitempty"`
	Confidence      float64          `json:"confidence"`
	Metrics         ApiMetrics       `json:"metrics"`
	CanBypass       bool             `json:"canBypass"`
	Archived        bool             `json:"archived,omitempty"`
	Provenance      Provenance       `json:"provenance"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// SelectorContentType names what a SelectorChain is meant to find.
type SelectorContentType string

const (
	ContentTypeMain         SelectorContentType = "main_content"
	ContentTypeRequirements SelectorContentType = "requirements"
	ContentTypeFees         SelectorContentType = "fees"
	ContentTypeTimeline     SelectorContentType = "timeline"
	ContentTypeDocuments    SelectorContentType = "documents"
	ContentTypeContact      SelectorContentType = "contact"
	ContentTypeNavigation   SelectorContentType = "navigation"
	ContentTypeTable        SelectorContentType = "table"
)

// SelectorPattern is one CSS/XPath selector in a chain, with its own
// success/failure track record.
type SelectorPattern struct {
	Selector     string    `json:"selector"`
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	LastWorked   time.Time `json:"lastWorked"`
}

// Score is the decayed priority used to order a selector chain: successes
// raise it, failures decay it, staleness decays it further.
func (s SelectorPattern) Score(now time.Time) float64 {
	total := float64(s.SuccessCount + s.FailureCount)
	if total == 0 {
		return 0.5
	}
	rate := float64(s.SuccessCount) / total
	if s.LastWorked.IsZero() {
		return rate * 0.5
	}
	ageDays := now.Sub(s.LastWorked).Hours() / 24
	staleness := 1.0
	if ageDays > 7 {
		staleness = 1.0 / (1.0 + (ageDays-7)/30)
	}
	return rate * staleness
}

// ContentValidator is a per-domain rule set used to sanity-check extracted
// content.
type ContentValidator struct {
	MinLength        int      `json:"minLength"`
	MaxLength        int      `json:"maxLength,omitempty"`
	MustContainAny   []string `json:"mustContainAny,omitempty"`
	MustContainAll   []string `json:"mustContainAll,omitempty"`
	MustNotContain   []string `json:"mustNotContain,omitempty"`
	ExpectedLanguage string   `json:"expectedLanguage,omitempty"`
	SuccessCount     int      `json:"successCount"`
	FailureCount     int      `json:"failureCount"`
}

// PaginationKind enumerates the recognized pagination mechanisms.
type PaginationKind string

const (
	PaginationQueryParam    PaginationKind = "query_param"
	PaginationPathSegment   PaginationKind = "path_segment"
	PaginationInfiniteScroll PaginationKind = "infinite_scroll"
	PaginationNextButton    PaginationKind = "next_button"
	PaginationLoadMore      PaginationKind = "load_more"
)

// PaginationPattern describes how to walk to the next page of results.
type PaginationPattern struct {
	Kind               PaginationKind `json:"kind"`
	ParamName          string         `json:"paramName,omitempty"`
	Increment          int            `json:"increment,omitempty"`
	Selector           string         `json:"selector,omitempty"`
	HasMoreIndicator   string         `json:"hasMoreIndicator,omitempty"`
}

// SuccessProfile is the "what usually works" memo for a domain.
type SuccessProfile struct {
	PreferredTier      string            `json:"preferredTier"`
	PreferredStrategy  string            `json:"preferredStrategy"`
	AvgResponseTimeMs  float64           `json:"avgResponseTimeMs"`
	AvgContentLength   float64           `json:"avgContentLength"`
	HasStructuredData  bool              `json:"hasStructuredData"`
	HasFrameworkData   bool              `json:"hasFrameworkData"`
	HasBypassableApis  bool              `json:"hasBypassableApis"`
	EffectiveUserAgent string            `json:"effectiveUserAgent,omitempty"`
	EffectiveHeaders   map[string]string `json:"effectiveHeaders,omitempty"`
}

// FailureKind classifies why a fetch/verification attempt failed.
type FailureKind string

const (
	FailureAuthExpired FailureKind = "auth_expired"
	FailureRateLimited FailureKind = "rate_limited"
	FailureSiteChanged FailureKind = "site_changed"
	FailureTimeout     FailureKind = "timeout"
	FailureBlocked     FailureKind = "blocked"
	FailureNotFound    FailureKind = "not_found"
	FailureServerError FailureKind = "server_error"
	FailureUnknown     FailureKind = "unknown"
)

// FailureContext records one failed attempt for a domain's rolling FIFO.
type FailureContext struct {
	Kind               FailureKind `json:"kind"`
	HTTPStatus         int         `json:"httpStatus,omitempty"`
	Message            string      `json:"message,omitempty"`
	Timestamp          time.Time   `json:"timestamp"`
	RecoveryAttempted  bool        `json:"recoveryAttempted,omitempty"`
	RecoverySucceeded  bool        `json:"recoverySucceeded,omitempty"`
}

// DomainGroup is a named cluster of domains sharing conventions (spec
// §4.6.4), e.g. package registries.
type DomainGroup struct {
	Name                 string   `json:"name"`
	Members              []string `json:"members"`
	CommonTemplateTypes   []TemplateType `json:"commonTemplateTypes,omitempty"`
	SharedSelectors       []string `json:"sharedSelectors,omitempty"`
}

// DomainEntry aggregates everything the LearningEngine knows about one
// domain.
type DomainEntry struct {
	Domain             string
	DomainGroup        string
	APIPatterns        []*ApiPattern
	SelectorChains      map[SelectorContentType][]SelectorPattern
	Validators          []ContentValidator
	PaginationPatterns  []PaginationPattern
	Failures            []FailureContext
	SuccessProfile      SuccessProfile
	TierScores          map[string]float64
	OverallSuccessRate  float64
	UsageCount          int
	Archived            bool
	CreatedAt           time.Time
	LastUpdated         time.Time
}
