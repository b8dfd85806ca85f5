package models

// CheckType names the category of a VerificationCheck.
type CheckType string

const (
	CheckContent CheckType = "content"
	CheckAction  CheckType = "action"
	CheckState   CheckType = "state"
	CheckSchema  CheckType = "schema"
	CheckCustom  CheckType = "custom"
)

// Severity controls how a failed check affects the overall verification
// outcome (spec §4.11).
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Assertion is the union of primitive checks a VerificationCheck may carry.
// Exactly the fields relevant to the check's Type are expected to be set.
type Assertion struct {
	FieldExists    []string          `json:"fieldExists,omitempty"`
	FieldNotEmpty  []string          `json:"fieldNotEmpty,omitempty"`
	FieldMatches   map[string]string `json:"fieldMatches,omitempty"` // path -> regex
	MinLength      int               `json:"minLength,omitempty"`
	MaxLength      int               `json:"maxLength,omitempty"`
	ContainsText   []string          `json:"containsText,omitempty"`
	ExcludesText   []string          `json:"excludesText,omitempty"`
	StatusCode     int               `json:"statusCode,omitempty"`
	CheckURL       string            `json:"checkUrl,omitempty"`
	CheckAPI       string            `json:"checkApi,omitempty"`
	CheckSelector  string            `json:"checkSelector,omitempty"`
	JSONSchema     string            `json:"jsonSchema,omitempty"`

	// CustomValidator, if set, is run in-process rather than deserialized.
	CustomValidator func(*BrowseResult) bool `json:"-"`
}

// VerificationCheck is one rule VerificationEngine evaluates against a
// BrowseResult.
type VerificationCheck struct {
	Name      string    `json:"name"`
	Type      CheckType `json:"type"`
	Assertion Assertion `json:"assertion"`
	Severity  Severity  `json:"severity"`
	Retryable bool      `json:"retryable"`
}

// CheckResult is the recorded outcome of running one VerificationCheck.
type CheckResult struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
}

// SchemaValidationError is one JSON Schema validation failure.
type SchemaValidationError struct {
	Path    string         `json:"path"`
	Keyword string         `json:"keyword"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// VerificationMode controls which built-in checks VerificationEngine runs.
type VerificationMode string

const (
	ModeBasic    VerificationMode = "basic"
	ModeStandard VerificationMode = "standard"
	ModeThorough VerificationMode = "thorough"
)

// VerifyOptions configures one VerificationEngine.Verify call.
type VerifyOptions struct {
	Enabled        bool
	Mode           VerificationMode
	Checks         []VerificationCheck
	ValidateSchema bool
	Schema         string // JSON Schema document
}

// VerifyResult is the output of VerificationEngine.Verify.
type VerifyResult struct {
	Passed       bool                    `json:"passed"`
	Checks       []CheckResult           `json:"checks"`
	Errors       []string                `json:"errors,omitempty"`
	Warnings     []string                `json:"warnings,omitempty"`
	Confidence   float64                 `json:"confidence"`
	SchemaErrors []SchemaValidationError `json:"schemaErrors,omitempty"`
}
