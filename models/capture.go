package models

import "time"

// NetworkRequest is one HTTP exchange observed during a fetch, in the order
// it occurred.
type NetworkRequest struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Status          int               `json:"status"`
	ContentType     string            `json:"contentType"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody    []byte            `json:"-"`
	TimestampStart  time.Time         `json:"timestampStart"`
	DurationMs      int64             `json:"durationMs"`
}

// ConsoleLevel is the severity of a captured console message.
type ConsoleLevel string

const (
	ConsoleLog   ConsoleLevel = "log"
	ConsoleInfo  ConsoleLevel = "info"
	ConsoleWarn  ConsoleLevel = "warn"
	ConsoleError ConsoleLevel = "error"
	ConsoleDebug ConsoleLevel = "debug"
)

// ConsoleMessage is one line the page logged to its console.
type ConsoleMessage struct {
	Level          ConsoleLevel `json:"level"`
	Text           string       `json:"text"`
	Timestamp      time.Time    `json:"timestamp"`
	SourceLocation string       `json:"sourceLocation,omitempty"`
}

// Link is an absolutized anchor discovered in a page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Table is a structured table extracted from HTML.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Caption string     `json:"caption,omitempty"`
	ID      string     `json:"id,omitempty"`
}

// BrowseMetadata carries the non-content facts about a browse() call.
type BrowseMetadata struct {
	LoadTimeMs       int64    `json:"loadTime"`
	Timestamp        time.Time `json:"timestamp"`
	Language         string   `json:"language,omitempty"`
	FromCache        bool     `json:"fromCache,omitempty"`
	RetryCount       int      `json:"retryCount,omitempty"`
	Tier             string   `json:"tier"`
	TiersAttempted   []string `json:"tiersAttempted"`
	EstimatedTokens  int      `json:"estimatedTokens,omitempty"`
	StatusCode       int      `json:"statusCode,omitempty"`
}

// LearningSummary reports what the selector chain attempted during
// extraction, for feedback into LearningEngine.
type LearningSummary struct {
	SelectorsUsed       []string        `json:"selectorsUsed,omitempty"`
	SelectorsSucceeded  []string        `json:"selectorsSucceeded,omitempty"`
	SelectorsFailed     []string        `json:"selectorsFailed,omitempty"`
	ConfidenceLevel     ConfidenceLevel `json:"confidenceLevel"`
	TrajectoryRecorded  bool            `json:"trajectoryRecorded,omitempty"`
}

// Content holds the three renderings of a page's extracted body.
type Content struct {
	HTML     string `json:"html,omitempty"`
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
}

// VerificationOutcome is the embedded result of running VerificationEngine
// against a BrowseResult.
type VerificationOutcome struct {
	Passed     bool     `json:"passed"`
	Confidence float64  `json:"confidence"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// BrowseResult is the full output of one SmartBrowser.Browse call.
type BrowseResult struct {
	URL            string           `json:"url"`
	FinalURL       string           `json:"finalUrl"`
	Title          string           `json:"title"`
	Content        Content          `json:"content"`
	Tables         []Table          `json:"tables,omitempty"`
	Links          []Link           `json:"links,omitempty"`
	Network        []NetworkRequest `json:"network,omitempty"`
	Console        []ConsoleMessage `json:"console,omitempty"`
	DiscoveredAPIs []ApiPattern     `json:"discoveredApis,omitempty"`
	WebSockets     []WebSocketPattern `json:"websockets,omitempty"`
	Metadata       BrowseMetadata   `json:"metadata"`
	Learning       LearningSummary  `json:"learning"`
	Verification   VerificationOutcome `json:"verification"`
}
