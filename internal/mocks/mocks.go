// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// -- Driver Mock --

// MockDriver mocks the schemas.Driver interface for tests that live outside
// the gather package.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) Navigate(ctx context.Context, url string, opts schemas.NavigateOptions) (string, error) {
	args := m.Called(ctx, url, opts)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) AssertNoServiceWorkerClients(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) ApplyEmulation(ctx context.Context, settings *schemas.Settings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockDriver) EnableRuntimeEvents(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) CacheNativeBindings(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) RegisterPerformanceObserver(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) DismissJavaScriptDialogs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) ClearOriginStorage(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) EmulateNetworkConditions(ctx context.Context, throttling schemas.ThrottlingSettings) error {
	args := m.Called(ctx, throttling)
	return args.Error(0)
}

func (m *MockDriver) SetOfflineMode(ctx context.Context, offline bool) error {
	args := m.Called(ctx, offline)
	return args.Error(0)
}

func (m *MockDriver) SetCPUThrottling(ctx context.Context, multiplier float64) error {
	args := m.Called(ctx, multiplier)
	return args.Error(0)
}

func (m *MockDriver) SetBlockedURLPatterns(ctx context.Context, patterns []string) error {
	args := m.Called(ctx, patterns)
	return args.Error(0)
}

func (m *MockDriver) SetExtraHTTPHeaders(ctx context.Context, headers map[string]string) error {
	args := m.Called(ctx, headers)
	return args.Error(0)
}

func (m *MockDriver) ClearBrowserCaches(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) Online() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockDriver) BeginDevtoolsLog() {
	m.Called()
}

func (m *MockDriver) EndDevtoolsLog() schemas.DevtoolsLog {
	args := m.Called()
	log, _ := args.Get(0).(schemas.DevtoolsLog)
	return log
}

func (m *MockDriver) BeginTrace(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) EndTrace(ctx context.Context) (*schemas.Trace, error) {
	args := m.Called(ctx)
	trace, _ := args.Get(0).(*schemas.Trace)
	return trace, args.Error(1)
}

func (m *MockDriver) BeginConsoleCapture() {
	m.Called()
}

func (m *MockDriver) EndConsoleCapture() []schemas.ConsoleMessage {
	args := m.Called()
	messages, _ := args.Get(0).([]schemas.ConsoleMessage)
	return messages
}

func (m *MockDriver) Version(ctx context.Context) (*schemas.BrowserVersion, error) {
	args := m.Called(ctx)
	version, _ := args.Get(0).(*schemas.BrowserVersion)
	return version, args.Error(1)
}

func (m *MockDriver) BenchmarkIndex(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockDriver) FetchAppManifest(ctx context.Context) (*schemas.RawManifest, error) {
	args := m.Called(ctx)
	manifest, _ := args.Get(0).(*schemas.RawManifest)
	return manifest, args.Error(1)
}

func (m *MockDriver) Evaluate(ctx context.Context, expression string, out any) error {
	args := m.Called(ctx, expression, out)
	return args.Error(0)
}

func (m *MockDriver) GetRequestContent(ctx context.Context, requestID string) (string, error) {
	args := m.Called(ctx, requestID)
	return args.String(0), args.Error(1)
}

// -- Evaluator Mock --

// MockEvaluator mocks the schemas.Evaluator interface.
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, expression string, out any) error {
	args := m.Called(ctx, expression, out)
	return args.Error(0)
}

// -- Gatherer Mock --

// MockGatherer mocks the schemas.Gatherer interface.
type MockGatherer struct {
	mock.Mock
}

func (m *MockGatherer) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockGatherer) BeforePass(ctx context.Context, pctx *schemas.PassContext) (any, error) {
	args := m.Called(ctx, pctx)
	return args.Get(0), args.Error(1)
}

func (m *MockGatherer) Pass(ctx context.Context, pctx *schemas.PassContext) (any, error) {
	args := m.Called(ctx, pctx)
	return args.Get(0), args.Error(1)
}

func (m *MockGatherer) AfterPass(ctx context.Context, pctx *schemas.PassContext, load *schemas.LoadData) (any, error) {
	args := m.Called(ctx, pctx, load)
	return args.Get(0), args.Error(1)
}
