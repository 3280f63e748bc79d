// internal/gather/helpers_test.go
package gather

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/network"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

func newTestRunner() *Runner {
	return &Runner{log: zap.NewNop()}
}

func testSettings() *schemas.Settings {
	return &schemas.Settings{
		EmulatedFormFactor: schemas.FormFactorMobile,
		Throttling: schemas.ThrottlingSettings{
			RequestLatencyMs:       150,
			DownloadThroughputKbps: 1638.4,
			UploadThroughputKbps:   750,
			CPUSlowdownMultiplier:  4,
		},
		MaxWaitForLoad: 45 * time.Second,
	}
}

// -- Devtools Log Builders --

func logEntry(t *testing.T, method cdproto.MethodType, ev any) schemas.DevtoolsLogEntry {
	t.Helper()
	params, err := json.Marshal(ev)
	require.NoError(t, err)
	return schemas.DevtoolsLogEntry{Method: string(method), Params: params}
}

// successLog yields records for a document that loaded cleanly.
func successLog(t *testing.T, url string) schemas.DevtoolsLog {
	t.Helper()
	return schemas.DevtoolsLog{
		logEntry(t, cdproto.EventNetworkRequestWillBeSent, &network.EventRequestWillBeSent{
			RequestID: "1",
			Request: &network.Request{
				URL:     url,
				Method:  "GET",
				Headers: network.Headers{"User-Agent": "Mozilla/5.0 (Linux; Android 11) Pharos"},
			},
			Type: network.ResourceTypeDocument,
		}),
		logEntry(t, cdproto.EventNetworkResponseReceived, &network.EventResponseReceived{
			RequestID: "1",
			Response:  &network.Response{URL: url, Status: 200, MimeType: "text/html", Protocol: "h2"},
		}),
		logEntry(t, cdproto.EventNetworkLoadingFinished, &network.EventLoadingFinished{
			RequestID: "1",
		}),
	}
}

// failedLog yields a document request that failed with the given reason.
func failedLog(t *testing.T, url, reason string) schemas.DevtoolsLog {
	t.Helper()
	return schemas.DevtoolsLog{
		logEntry(t, cdproto.EventNetworkRequestWillBeSent, &network.EventRequestWillBeSent{
			RequestID: "1",
			Request:   &network.Request{URL: url, Method: "GET"},
			Type:      network.ResourceTypeDocument,
		}),
		logEntry(t, cdproto.EventNetworkLoadingFailed, &network.EventLoadingFailed{
			RequestID: "1",
			ErrorText: reason,
		}),
	}
}

// statusLog yields a document that answered with the given status code.
func statusLog(t *testing.T, url string, status int64) schemas.DevtoolsLog {
	t.Helper()
	return schemas.DevtoolsLog{
		logEntry(t, cdproto.EventNetworkRequestWillBeSent, &network.EventRequestWillBeSent{
			RequestID: "1",
			Request:   &network.Request{URL: url, Method: "GET"},
			Type:      network.ResourceTypeDocument,
		}),
		logEntry(t, cdproto.EventNetworkResponseReceived, &network.EventResponseReceived{
			RequestID: "1",
			Response:  &network.Response{URL: url, Status: status, MimeType: "text/html"},
		}),
		logEntry(t, cdproto.EventNetworkLoadingFinished, &network.EventLoadingFinished{
			RequestID: "1",
		}),
	}
}

// -- Fake Driver --

type navCall struct {
	url  string
	opts schemas.NavigateOptions
}

// fakeDriver is a scriptable in-memory Driver. Methods append their names
// to calls for order assertions; failures maps a method name to the error
// it should return.
type fakeDriver struct {
	t  *testing.T
	mu sync.Mutex

	calls       []string
	navigations []navCall
	failures    map[string]error

	online      bool
	logActive   bool
	traceActive bool
	closeCount  int
	lastMainURL string

	throttleHistory []schemas.ThrottlingSettings
	cpuHistory      []float64
	blockedHistory  [][]string
	headers         map[string]string

	versionUA    string
	benchmark    float64
	manifest     *schemas.RawManifest
	navigateFunc func(url string, opts schemas.NavigateOptions) (string, error)
	logFunc      func() schemas.DevtoolsLog
	traceFunc    func() *schemas.Trace
	evaluateFunc func(expression string, out any) error
	closeErr     error
}

// newFakeDriver returns a driver whose devtools log always describes a
// clean load of the most recently navigated page.
func newFakeDriver(t *testing.T) *fakeDriver {
	d := &fakeDriver{
		t:         t,
		online:    true,
		versionUA: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 HeadlessChrome/120.0.0.0",
		benchmark: 1500,
		failures:  map[string]error{},
	}
	d.logFunc = func() schemas.DevtoolsLog {
		return successLog(t, d.lastMainURL)
	}
	return d
}

func (d *fakeDriver) note(name string) {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()
}

func (d *fakeDriver) step(name string) error {
	d.note(name)
	return d.failures[name]
}

// callIndex returns the position of the first call equal to name, or -1.
func (d *fakeDriver) callIndex(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.calls {
		if c == name {
			return i
		}
	}
	return -1
}

// requireCallOrder asserts that the named calls occur in the given relative
// order, anywhere in the call log.
func (d *fakeDriver) requireCallOrder(t *testing.T, names ...string) {
	t.Helper()
	last := -1
	for _, name := range names {
		idx := d.callIndex(name)
		require.GreaterOrEqual(t, idx, 0, "call %q never happened; calls: %v", name, d.calls)
		require.Greater(t, idx, last, "call %q out of order; calls: %v", name, d.calls)
		last = idx
	}
}

func (d *fakeDriver) countCalls(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (d *fakeDriver) Connect(context.Context) error { return d.step("Connect") }

func (d *fakeDriver) Close(context.Context) error {
	d.note("Close")
	d.mu.Lock()
	d.closeCount++
	d.mu.Unlock()
	return d.closeErr
}

func (d *fakeDriver) Navigate(_ context.Context, url string, opts schemas.NavigateOptions) (string, error) {
	d.note("Navigate:" + url)
	d.mu.Lock()
	d.navigations = append(d.navigations, navCall{url: url, opts: opts})
	d.mu.Unlock()
	if err := d.failures["Navigate"]; err != nil {
		return "", err
	}
	final := url
	var err error
	if d.navigateFunc != nil {
		final, err = d.navigateFunc(url, opts)
		if err != nil {
			return "", err
		}
	}
	if url != "about:blank" {
		d.mu.Lock()
		d.lastMainURL = final
		d.mu.Unlock()
	}
	return final, nil
}

func (d *fakeDriver) AssertNoServiceWorkerClients(_ context.Context, _ string) error {
	return d.step("AssertNoServiceWorkerClients")
}

func (d *fakeDriver) ApplyEmulation(_ context.Context, _ *schemas.Settings) error {
	return d.step("ApplyEmulation")
}

func (d *fakeDriver) EnableRuntimeEvents(context.Context) error {
	return d.step("EnableRuntimeEvents")
}

func (d *fakeDriver) CacheNativeBindings(context.Context) error {
	return d.step("CacheNativeBindings")
}

func (d *fakeDriver) RegisterPerformanceObserver(context.Context) error {
	return d.step("RegisterPerformanceObserver")
}

func (d *fakeDriver) DismissJavaScriptDialogs(context.Context) error {
	return d.step("DismissJavaScriptDialogs")
}

func (d *fakeDriver) ClearOriginStorage(_ context.Context, _ string) error {
	return d.step("ClearOriginStorage")
}

func (d *fakeDriver) EmulateNetworkConditions(_ context.Context, throttling schemas.ThrottlingSettings) error {
	d.mu.Lock()
	d.throttleHistory = append(d.throttleHistory, throttling)
	d.mu.Unlock()
	return d.step("EmulateNetworkConditions")
}

func (d *fakeDriver) SetOfflineMode(_ context.Context, offline bool) error {
	d.mu.Lock()
	d.online = !offline
	d.mu.Unlock()
	return d.step(fmt.Sprintf("SetOfflineMode:%v", offline))
}

func (d *fakeDriver) SetCPUThrottling(_ context.Context, multiplier float64) error {
	d.mu.Lock()
	d.cpuHistory = append(d.cpuHistory, multiplier)
	d.mu.Unlock()
	return d.step(fmt.Sprintf("SetCPUThrottling:%g", multiplier))
}

func (d *fakeDriver) SetBlockedURLPatterns(_ context.Context, patterns []string) error {
	d.mu.Lock()
	d.blockedHistory = append(d.blockedHistory, patterns)
	d.mu.Unlock()
	return d.step("SetBlockedURLPatterns")
}

func (d *fakeDriver) SetExtraHTTPHeaders(_ context.Context, headers map[string]string) error {
	d.mu.Lock()
	d.headers = headers
	d.mu.Unlock()
	return d.step("SetExtraHTTPHeaders")
}

func (d *fakeDriver) ClearBrowserCaches(context.Context) error {
	return d.step("ClearBrowserCaches")
}

func (d *fakeDriver) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

func (d *fakeDriver) BeginDevtoolsLog() {
	d.note("BeginDevtoolsLog")
	d.mu.Lock()
	d.logActive = true
	d.mu.Unlock()
}

func (d *fakeDriver) EndDevtoolsLog() schemas.DevtoolsLog {
	d.note("EndDevtoolsLog")
	d.mu.Lock()
	d.logActive = false
	d.mu.Unlock()
	if d.logFunc != nil {
		return d.logFunc()
	}
	return nil
}

func (d *fakeDriver) BeginTrace(context.Context) error {
	d.mu.Lock()
	d.traceActive = true
	d.mu.Unlock()
	return d.step("BeginTrace")
}

func (d *fakeDriver) EndTrace(context.Context) (*schemas.Trace, error) {
	if err := d.step("EndTrace"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.traceActive = false
	d.mu.Unlock()
	if d.traceFunc != nil {
		return d.traceFunc(), nil
	}
	return &schemas.Trace{}, nil
}

func (d *fakeDriver) BeginConsoleCapture() { d.note("BeginConsoleCapture") }

func (d *fakeDriver) EndConsoleCapture() []schemas.ConsoleMessage {
	d.note("EndConsoleCapture")
	return nil
}

func (d *fakeDriver) Version(context.Context) (*schemas.BrowserVersion, error) {
	if err := d.step("Version"); err != nil {
		return nil, err
	}
	return &schemas.BrowserVersion{
		Product:   "HeadlessChrome/120.0.0.0",
		UserAgent: d.versionUA,
	}, nil
}

func (d *fakeDriver) BenchmarkIndex(context.Context) (float64, error) {
	if err := d.step("BenchmarkIndex"); err != nil {
		return 0, err
	}
	return d.benchmark, nil
}

func (d *fakeDriver) FetchAppManifest(context.Context) (*schemas.RawManifest, error) {
	if err := d.step("FetchAppManifest"); err != nil {
		return nil, err
	}
	return d.manifest, nil
}

func (d *fakeDriver) Evaluate(_ context.Context, expression string, out any) error {
	d.note("Evaluate")
	if err := d.failures["Evaluate"]; err != nil {
		return err
	}
	if d.evaluateFunc != nil {
		return d.evaluateFunc(expression, out)
	}
	return nil
}

func (d *fakeDriver) GetRequestContent(_ context.Context, _ string) (string, error) {
	if err := d.step("GetRequestContent"); err != nil {
		return "", err
	}
	return "", nil
}

var _ schemas.Driver = (*fakeDriver)(nil)

// -- Scripted Gatherer --

// scriptedGatherer runs configurable hook functions and records which
// phases were invoked.
type scriptedGatherer struct {
	name     string
	beforeFn func(pc *schemas.PassContext) (any, error)
	passFn   func(pc *schemas.PassContext) (any, error)
	afterFn  func(pc *schemas.PassContext, load *schemas.LoadData) (any, error)

	mu     sync.Mutex
	phases []string
}

func (g *scriptedGatherer) Name() string { return g.name }

func (g *scriptedGatherer) mark(phase string) {
	g.mu.Lock()
	g.phases = append(g.phases, phase)
	g.mu.Unlock()
}

func (g *scriptedGatherer) invoked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.phases...)
}

func (g *scriptedGatherer) BeforePass(_ context.Context, pc *schemas.PassContext) (any, error) {
	g.mark("beforePass")
	if g.beforeFn != nil {
		return g.beforeFn(pc)
	}
	return nil, nil
}

func (g *scriptedGatherer) Pass(_ context.Context, pc *schemas.PassContext) (any, error) {
	g.mark("pass")
	if g.passFn != nil {
		return g.passFn(pc)
	}
	return nil, nil
}

func (g *scriptedGatherer) AfterPass(_ context.Context, pc *schemas.PassContext, load *schemas.LoadData) (any, error) {
	g.mark("afterPass")
	if g.afterFn != nil {
		return g.afterFn(pc, load)
	}
	return nil, nil
}

// valueGatherer returns a fixed value from its afterPass hook.
func valueGatherer(name string, value any) *scriptedGatherer {
	return &scriptedGatherer{
		name: name,
		afterFn: func(*schemas.PassContext, *schemas.LoadData) (any, error) {
			return value, nil
		},
	}
}

func singlePass(name string, recordTrace, useThrottling bool, gatherers ...schemas.Gatherer) []schemas.PassConfig {
	configs := make([]schemas.GathererConfig, len(gatherers))
	for i, g := range gatherers {
		configs[i] = schemas.GathererConfig{Instance: g}
	}
	return []schemas.PassConfig{{
		PassName:      name,
		RecordTrace:   recordTrace,
		UseThrottling: useThrottling,
		Gatherers:     configs,
	}}
}
