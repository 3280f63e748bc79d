package schemas

import (
	"context"
	"time"
)

// -- Driver Support Types --

// NavigateOptions controls how long navigation blocks before handing
// control back to the pass executor.
type NavigateOptions struct {
	// WaitForLoad blocks until the page's load event fires or MaxWait
	// elapses. Neutral pages never fire one, so blank navigations leave
	// this false.
	WaitForLoad bool
	// WaitForFirstPaint additionally blocks until a paint entry is observed,
	// used by trace-recording passes.
	WaitForFirstPaint bool
	// MaxWait bounds the whole navigation. Zero applies the driver default.
	MaxWait time.Duration
}

// BrowserVersion is the result of the browser version query.
type BrowserVersion struct {
	Product         string `json:"product"`
	ProtocolVersion string `json:"protocol_version"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"user_agent"`
	JSVersion       string `json:"js_version"`
}

// RawManifest is the unparsed web app manifest as fetched from the page.
type RawManifest struct {
	URL  string `json:"url"`
	Data string `json:"data"`
}

// -- Driver Interface --

// Driver is the remotely controlled browser session a run exclusively owns.
// Every blocking operation takes a context; recording toggles are local
// state flips and never touch the wire.
//
//go:generate mockery --name Driver --output ../../internal/mocks --outpkg mocks
type Driver interface {
	// Connect launches or attaches to the browser and prepares the protocol
	// session. A connect failure is fatal to the run.
	Connect(ctx context.Context) error
	// Close tears the session down. Safe to call more than once.
	Close(ctx context.Context) error

	// Navigate drives the page to url and returns the final URL after any
	// redirects have settled.
	Navigate(ctx context.Context, url string, opts NavigateOptions) (string, error)

	// AssertNoServiceWorkerClients fails when a same-origin service worker
	// already controls clients for the target, which would make results
	// unreproducible.
	AssertNoServiceWorkerClients(ctx context.Context, url string) error
	// ApplyEmulation installs device metrics and user agent overrides from
	// the run settings.
	ApplyEmulation(ctx context.Context, settings *Settings) error
	// EnableRuntimeEvents turns on runtime, log and async stack delivery.
	EnableRuntimeEvents(ctx context.Context) error
	// CacheNativeBindings snapshots native globals before page scripts can
	// clobber them.
	CacheNativeBindings(ctx context.Context) error
	// RegisterPerformanceObserver installs a buffering performance observer
	// on every new document.
	RegisterPerformanceObserver(ctx context.Context) error
	// DismissJavaScriptDialogs auto-declines alert/confirm/prompt dialogs so
	// navigation can never wedge on one.
	DismissJavaScriptDialogs(ctx context.Context) error
	// ClearOriginStorage wipes all storage for the origin of url.
	ClearOriginStorage(ctx context.Context, url string) error

	// EmulateNetworkConditions applies network throttling. A zero value
	// disables throttling. The declared offline state is not touched.
	EmulateNetworkConditions(ctx context.Context, throttling ThrottlingSettings) error
	// SetOfflineMode declares the session offline or online and emulates
	// the matching network conditions. Only this call moves Online.
	SetOfflineMode(ctx context.Context, offline bool) error
	// SetCPUThrottling applies a CPU slowdown multiplier; 1 disables it.
	SetCPUThrottling(ctx context.Context, multiplier float64) error
	// SetBlockedURLPatterns installs the URL block list, replacing any
	// previous list. An empty list clears blocking.
	SetBlockedURLPatterns(ctx context.Context, patterns []string) error
	// SetExtraHTTPHeaders attaches headers to every outgoing request.
	SetExtraHTTPHeaders(ctx context.Context, headers map[string]string) error
	// ClearBrowserCaches drops the browser's disk and memory caches.
	ClearBrowserCaches(ctx context.Context) error
	// Online reports the declared network state. Loads performed while a
	// session is declared offline are expected to fail and are not treated
	// as page load errors.
	Online() bool

	// BeginDevtoolsLog starts capturing protocol events, discarding any
	// previous capture.
	BeginDevtoolsLog()
	// EndDevtoolsLog stops capturing and returns the recorded log.
	EndDevtoolsLog() DevtoolsLog
	// BeginTrace starts trace collection.
	BeginTrace(ctx context.Context) error
	// EndTrace stops trace collection and returns the assembled trace.
	EndTrace(ctx context.Context) (*Trace, error)
	// BeginConsoleCapture starts buffering console and runtime messages.
	BeginConsoleCapture()
	// EndConsoleCapture stops buffering and returns the captured messages.
	EndConsoleCapture() []ConsoleMessage

	// Version reports browser identity, including the host user agent.
	Version(ctx context.Context) (*BrowserVersion, error)
	// BenchmarkIndex measures a rough index of host CPU performance.
	BenchmarkIndex(ctx context.Context) (float64, error)
	// FetchAppManifest returns the page's manifest, or nil when the page
	// does not declare one.
	FetchAppManifest(ctx context.Context) (*RawManifest, error)
	// Evaluate runs a JavaScript expression in the page, awaiting promises,
	// and unmarshals the result into out when out is non-nil.
	Evaluate(ctx context.Context, expression string, out any) error
	// GetRequestContent fetches the response body of a recorded request.
	GetRequestContent(ctx context.Context, requestID string) (string, error)
}

// Evaluator is the slice of Driver needed by code that only runs page
// JavaScript, such as stack detection.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out any) error
}

// -- Gatherer Interface --

// Gatherer is a pluggable collector invoked at fixed points of every pass it
// is configured into. Hooks return (nil, nil) when they only produce side
// effects; the reconciler keeps the last non-nil value across all phases.
// Names key the final artifact and must be unique within a run.
type Gatherer interface {
	// Name returns the artifact key for this gatherer.
	Name() string
	// BeforePass runs while the session still sits on the neutral page.
	BeforePass(ctx context.Context, pc *PassContext) (any, error)
	// Pass runs after navigation, while recording is still active.
	Pass(ctx context.Context, pc *PassContext) (any, error)
	// AfterPass runs once recording has stopped, with the pass's load data.
	// It is skipped when the main document failed to load.
	AfterPass(ctx context.Context, pc *PassContext, load *LoadData) (any, error)
}
