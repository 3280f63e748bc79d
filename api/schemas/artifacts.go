package schemas

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// -- Run Artifacts --

// URLArtifact tracks the requested URL and the URL the browser actually
// settled on after any redirects during the first pass.
type URLArtifact struct {
	RequestedURL string `json:"requested_url"`
	FinalURL     string `json:"final_url"`
}

// TimingEntry records how long one named step of the run took.
type TimingEntry struct {
	Name      string        `json:"name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

// DevtoolsLogEntry is one raw protocol event captured during a pass, stored
// as the method name plus its unparsed parameter payload.
type DevtoolsLogEntry struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// DevtoolsLog is the ordered protocol event stream recorded for one pass.
type DevtoolsLog []DevtoolsLogEntry

// Trace holds the trace events captured for one pass. The traceEvents key
// matches the Chrome trace file format so saved traces load in the devtools
// performance panel.
type Trace struct {
	TraceEvents []json.RawMessage `json:"traceEvents"`
}

// NetworkRecord is the interpreted lifecycle of one network request, derived
// from a DevtoolsLog after the pass has finished.
type NetworkRecord struct {
	RequestID         string  `json:"request_id"`
	URL               string  `json:"url"`
	Method            string  `json:"method"`
	Protocol          string  `json:"protocol,omitempty"`
	ResourceType      string  `json:"resource_type,omitempty"`
	StatusCode        int64   `json:"status_code"`
	MimeType          string  `json:"mime_type,omitempty"`
	FromCache         bool    `json:"from_cache"`
	Finished          bool    `json:"finished"`
	Failed            bool    `json:"failed"`
	Canceled          bool    `json:"canceled"`
	FailureReason     string  `json:"failure_reason,omitempty"`
	EncodedDataLength float64 `json:"encoded_data_length"`
}

// ConsoleMessage is a single console or runtime log entry observed while a
// capture was active.
type ConsoleMessage struct {
	Source    string    `json:"source"`
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Line      int64     `json:"line,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stack identifies one front-end technology detected on the page.
type Stack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ManifestIcon is one icon declaration from a web app manifest.
type ManifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes,omitempty"`
	Type  string `json:"type,omitempty"`
}

// WebAppManifest is the structured result of parsing a page's manifest.
// A non-nil manifest may still carry parse warnings; callers should check
// Warnings before trusting individual fields.
type WebAppManifest struct {
	URL             string         `json:"url"`
	Raw             string         `json:"raw"`
	Name            string         `json:"name,omitempty"`
	ShortName       string         `json:"short_name,omitempty"`
	StartURL        string         `json:"start_url,omitempty"`
	Display         string         `json:"display,omitempty"`
	ThemeColor      string         `json:"theme_color,omitempty"`
	BackgroundColor string         `json:"background_color,omitempty"`
	Icons           []ManifestIcon `json:"icons,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// BaseArtifacts is the run-wide metadata not owned by any single gatherer.
// It is created once at the start of a run and only ever appended to.
type BaseArtifacts struct {
	RunID                string                 `json:"run_id"`
	FetchTime            time.Time              `json:"fetch_time"`
	URL                  URLArtifact            `json:"url"`
	HostUserAgent        string                 `json:"host_user_agent"`
	NetworkUserAgent     string                 `json:"network_user_agent"`
	TestedAsMobileDevice bool                   `json:"tested_as_mobile_device"`
	BenchmarkIndex       float64                `json:"benchmark_index"`
	WebAppManifest       *WebAppManifest        `json:"web_app_manifest"`
	Stacks               []Stack                `json:"stacks"`
	DevtoolsLogs         map[string]DevtoolsLog `json:"devtools_logs"`
	Traces               map[string]*Trace      `json:"traces"`
	Settings             *Settings              `json:"settings"`
	Warnings             []string               `json:"warnings"`
	Timing               []TimingEntry          `json:"timing"`
}

// LoadData is the ephemeral per-pass capture handed to afterPass hooks.
type LoadData struct {
	Trace          *Trace
	DevtoolsLog    DevtoolsLog
	NetworkRecords []*NetworkRecord
}

// ArtifactBundle is the final output of a run: the base artifacts plus one
// resolved value per gatherer name. An entry may hold an error when every
// phase of that gatherer failed; consumers must type-check before use.
type ArtifactBundle struct {
	Base      *BaseArtifacts
	Artifacts map[string]any
}

// Artifact returns the resolved value for a gatherer name, or nil if absent.
func (b *ArtifactBundle) Artifact(name string) any {
	if b == nil || b.Artifacts == nil {
		return nil
	}
	return b.Artifacts[name]
}

// ArtifactError returns the error recorded for a gatherer name, if the
// resolved value is error-typed.
func (b *ArtifactBundle) ArtifactError(name string) error {
	if err, ok := b.Artifact(name).(error); ok {
		return err
	}
	return nil
}

// MarshalJSON flattens the base artifact fields and the gatherer artifacts
// into a single object. Gatherer names are validated against base field keys
// before a run starts, so the two key spaces never collide here. Error-typed
// artifacts serialize as {"error": {...}} objects.
func (b *ArtifactBundle) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any)

	if b.Base != nil {
		raw, err := json.Marshal(b.Base)
		if err != nil {
			return nil, fmt.Errorf("marshaling base artifacts: %w", err)
		}
		if err := json.Unmarshal(raw, &merged); err != nil {
			return nil, fmt.Errorf("flattening base artifacts: %w", err)
		}
	}

	for name, value := range b.Artifacts {
		merged[name] = marshalableArtifact(value)
	}
	return json.Marshal(merged)
}

// marshalableArtifact rewrites error-typed artifact values into plain
// serializable objects.
func marshalableArtifact(value any) any {
	switch v := value.(type) {
	case *PageLoadError:
		return map[string]any{"error": map[string]string{
			"code":    string(v.Kind),
			"message": v.Message,
			"detail":  v.Detail,
		}}
	case error:
		return map[string]any{"error": map[string]string{
			"message": v.Error(),
		}}
	default:
		return value
	}
}

// BaseArtifactKeys lists the JSON key space reserved by BaseArtifacts.
// Gatherer names must not shadow any of these.
func BaseArtifactKeys() []string {
	return []string{
		"run_id", "fetch_time", "url", "host_user_agent", "network_user_agent",
		"tested_as_mobile_device", "benchmark_index", "web_app_manifest",
		"stacks", "devtools_logs", "traces", "settings", "warnings", "timing",
	}
}

// -- Warning Sink --

// WarningSink is the run-scoped, append-only collector for user-facing
// warnings. Every pass context references the same sink; duplicates are
// removed once at final assembly, not on append.
type WarningSink struct {
	mu       sync.Mutex
	messages []string
}

// Append records a warning message.
func (s *WarningSink) Append(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

// Appendf records a formatted warning message.
func (s *WarningSink) Appendf(format string, args ...any) {
	s.Append(fmt.Sprintf(format, args...))
}

// All returns a copy of every appended message, duplicates included.
func (s *WarningSink) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

// Unique returns the deduplicated warning list, preserving first-seen order.
func (s *WarningSink) Unique() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.messages))
	out := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
