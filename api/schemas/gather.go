package schemas

import (
	"fmt"
	"time"
)

// -- Run Settings --

// Emulated form factors. FormFactorNone leaves the device decision to the
// host browser and lets user-agent sniffing decide the mobile flag.
const (
	FormFactorMobile  = "mobile"
	FormFactorDesktop = "desktop"
	FormFactorNone    = "none"
)

// ScreenEmulation describes the device metrics applied before the first pass.
type ScreenEmulation struct {
	Width             int64   `json:"width" mapstructure:"width"`
	Height            int64   `json:"height" mapstructure:"height"`
	DeviceScaleFactor float64 `json:"device_scale_factor" mapstructure:"device_scale_factor"`
	Mobile            bool    `json:"mobile" mapstructure:"mobile"`
	Disabled          bool    `json:"disabled" mapstructure:"disabled"`
}

// ThrottlingSettings are the devtools network and CPU throttling values used
// by passes that opt into throttling.
type ThrottlingSettings struct {
	RequestLatencyMs       float64 `json:"request_latency_ms" mapstructure:"request_latency_ms"`
	DownloadThroughputKbps float64 `json:"download_throughput_kbps" mapstructure:"download_throughput_kbps"`
	UploadThroughputKbps   float64 `json:"upload_throughput_kbps" mapstructure:"upload_throughput_kbps"`
	CPUSlowdownMultiplier  float64 `json:"cpu_slowdown_multiplier" mapstructure:"cpu_slowdown_multiplier"`
}

// Settings are the run-wide options shared by every pass.
type Settings struct {
	EmulatedFormFactor  string             `json:"emulated_form_factor"`
	ScreenEmulation     *ScreenEmulation   `json:"screen_emulation,omitempty"`
	UserAgent           string             `json:"user_agent,omitempty"`
	Throttling          ThrottlingSettings `json:"throttling"`
	BlockedURLPatterns  []string           `json:"blocked_url_patterns,omitempty"`
	ExtraHeaders        map[string]string  `json:"extra_headers,omitempty"`
	DisableStorageReset bool               `json:"disable_storage_reset"`
	MaxWaitForLoad      time.Duration      `json:"max_wait_for_load"`
}

// -- Pass Configuration --

// GathererConfig binds one gatherer instance to its per-instance options.
type GathererConfig struct {
	Instance Gatherer
	Options  map[string]any
}

// PassConfig is the immutable description of a single gathering pass.
type PassConfig struct {
	// PassName keys this pass's devtools log and trace in the base artifacts
	// and must be unique across the run.
	PassName string
	// Gatherers run in slice order at every phase of the pass.
	Gatherers []GathererConfig
	// RecordTrace captures a trace for the duration of the page load.
	RecordTrace bool
	// UseThrottling applies the settings' throttling values for this pass.
	UseThrottling bool
	// BlockedURLPatterns are merged with the settings-level patterns and
	// installed before navigation.
	BlockedURLPatterns []string
	// BlankPage overrides the neutral page this pass starts from.
	BlankPage string
}

// PassContext is the ephemeral bundle of references handed to gatherer hooks.
// It is owned by a single pass execution and discarded when the pass ends.
type PassContext struct {
	// Driver is the protocol session the run exclusively owns.
	Driver Driver
	// URL is the pass's current URL. Navigation overwrites it with the final
	// URL once redirects settle.
	URL string
	// Settings are the run-wide options.
	Settings *Settings
	// PassConfig is the configuration of the executing pass.
	PassConfig *PassConfig
	// BaseArtifacts references the shared run-wide artifact skeleton.
	BaseArtifacts *BaseArtifacts
	// Warnings is the shared run-wide warning sink.
	Warnings *WarningSink
	// Options holds the per-instance options of whichever gatherer is
	// currently being invoked.
	Options map[string]any
}

// OptionString reads a string option for the currently invoked gatherer.
func (c *PassContext) OptionString(key string) (string, bool) {
	v, ok := c.Options[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// OptionBool reads a boolean option for the currently invoked gatherer.
func (c *PassContext) OptionBool(key string) bool {
	v, ok := c.Options[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// RunOptions are the per-run inputs to the gather runner.
type RunOptions struct {
	Driver       Driver
	RequestedURL string
	Settings     *Settings
}

// -- Page Load Failure --

// LoadFailureKind classifies why the main document failed to load.
type LoadFailureKind string

const (
	// NoDocumentRequest means no network request matching the target URL was
	// observed at all.
	NoDocumentRequest LoadFailureKind = "NO_DOCUMENT_REQUEST"
	// DNSFailure means the document request failed with a name resolution
	// error.
	DNSFailure LoadFailureKind = "DNS_FAILURE"
	// FailedDocumentRequest means the document request failed for a reason
	// other than DNS; Detail carries the raw protocol reason.
	FailedDocumentRequest LoadFailureKind = "FAILED_DOCUMENT_REQUEST"
	// ErroredDocumentRequest means the document loaded but the server
	// answered with an error status; Detail carries the status code.
	ErroredDocumentRequest LoadFailureKind = "ERRORED_DOCUMENT_REQUEST"
)

// PageLoadError is the classification of a failed main-document load. It is
// a value produced by inspecting network records after navigation, never
// something raised mid-pass; the pass executor branches on it explicitly.
type PageLoadError struct {
	Kind    LoadFailureKind `json:"kind"`
	Detail  string          `json:"detail,omitempty"`
	Message string          `json:"message"`
}

// Error implements the error interface so the classification can be stored
// as a captured phase failure.
func (e *PageLoadError) Error() string {
	return e.Message
}

// NewNoDocumentRequestError reports that no document request was seen.
func NewNoDocumentRequestError(url string) *PageLoadError {
	return &PageLoadError{
		Kind:    NoDocumentRequest,
		Message: fmt.Sprintf("The page did not issue a document request for %s. Verify that the URL is correct and reachable.", url),
	}
}

// NewDNSFailureError reports a name resolution failure for the document.
func NewDNSFailureError(url, reason string) *PageLoadError {
	return &PageLoadError{
		Kind:    DNSFailure,
		Detail:  reason,
		Message: fmt.Sprintf("The hostname of %s could not be resolved (%s).", url, reason),
	}
}

// NewFailedDocumentRequestError reports a non-DNS document request failure.
func NewFailedDocumentRequestError(url, reason string) *PageLoadError {
	return &PageLoadError{
		Kind:    FailedDocumentRequest,
		Detail:  reason,
		Message: fmt.Sprintf("The document request for %s did not complete (%s).", url, reason),
	}
}

// NewErroredDocumentRequestError reports an HTTP error status on the
// document response.
func NewErroredDocumentRequestError(url, status string) *PageLoadError {
	return &PageLoadError{
		Kind:    ErroredDocumentRequest,
		Detail:  status,
		Message: fmt.Sprintf("The server answered %s with an error status code (%s).", url, status),
	}
}
