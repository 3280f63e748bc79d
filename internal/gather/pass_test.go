// internal/gather/pass_test.go
package gather

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

func newPassContext(d *fakeDriver, pass *schemas.PassConfig, settings *schemas.Settings) *schemas.PassContext {
	return &schemas.PassContext{
		Driver:     d,
		URL:        "https://a.test/",
		Settings:   settings,
		PassConfig: pass,
		BaseArtifacts: &schemas.BaseArtifacts{
			DevtoolsLogs: map[string]schemas.DevtoolsLog{},
			Traces:       map[string]*schemas.Trace{},
		},
		Warnings: &schemas.WarningSink{},
	}
}

func TestRunPassStepOrder(t *testing.T) {
	t.Parallel()

	d := newFakeDriver(t)
	g := &scriptedGatherer{
		name:     "probe",
		beforeFn: func(*schemas.PassContext) (any, error) { d.note("hook:beforePass"); return nil, nil },
		passFn:   func(*schemas.PassContext) (any, error) { d.note("hook:pass"); return nil, nil },
		afterFn: func(*schemas.PassContext, *schemas.LoadData) (any, error) {
			d.note("hook:afterPass")
			return "done", nil
		},
	}

	settings := testSettings()
	settings.ExtraHeaders = map[string]string{"X-Audit-Run": "pharos"}
	pass := &schemas.PassConfig{
		PassName:      "defaultPass",
		RecordTrace:   true,
		UseThrottling: true,
		Gatherers:     []schemas.GathererConfig{{Instance: g}},
	}
	pctx := newPassContext(d, pass, settings)

	result, err := newTestRunner().runPass(context.Background(), pctx)
	require.NoError(t, err)
	require.Nil(t, result.loadError)

	d.requireCallOrder(t,
		"SetCPUThrottling:4",
		"SetBlockedURLPatterns",
		"SetExtraHTTPHeaders",
		"ClearBrowserCaches",
		"hook:beforePass",
		"BeginDevtoolsLog",
		"BeginTrace",
		"Navigate:https://a.test/",
		"hook:pass",
		"EndTrace",
		"EndDevtoolsLog",
		"SetCPUThrottling:1",
		"hook:afterPass",
	)

	require.Len(t, d.navigations, 1)
	nav := d.navigations[0]
	assert.True(t, nav.opts.WaitForLoad)
	assert.True(t, nav.opts.WaitForFirstPaint)
	assert.Equal(t, settings.MaxWaitForLoad, nav.opts.MaxWait)

	// Throttling was applied from settings, then fully cleared.
	require.Len(t, d.throttleHistory, 2)
	assert.Equal(t, settings.Throttling, d.throttleHistory[0])
	assert.Zero(t, d.throttleHistory[1])
	assert.Equal(t, []float64{4, 1}, d.cpuHistory)
}

func TestRunPassWithoutTraceOrThrottle(t *testing.T) {
	t.Parallel()

	d := newFakeDriver(t)
	pass := &schemas.PassConfig{
		PassName:  "contentPass",
		Gatherers: []schemas.GathererConfig{{Instance: valueGatherer("probe", "v")}},
	}
	pctx := newPassContext(d, pass, testSettings())

	_, err := newTestRunner().runPass(context.Background(), pctx)
	require.NoError(t, err)

	assert.Zero(t, d.countCalls("BeginTrace"))
	assert.Zero(t, d.countCalls("EndTrace"))
	assert.Zero(t, d.countCalls("ClearBrowserCaches"))

	// Throttling disabled up front and again at teardown.
	require.Len(t, d.throttleHistory, 2)
	assert.Zero(t, d.throttleHistory[0])
	assert.Zero(t, d.throttleHistory[1])
	assert.Equal(t, []float64{1, 1}, d.cpuHistory)

	// No first paint wait without a trace.
	require.Len(t, d.navigations, 1)
	assert.True(t, d.navigations[0].opts.WaitForLoad)
	assert.False(t, d.navigations[0].opts.WaitForFirstPaint)
}

func TestRunPassBlockedPatterns(t *testing.T) {
	t.Parallel()

	t.Run("pass and global patterns merge in order", func(t *testing.T) {
		t.Parallel()
		d := newFakeDriver(t)
		settings := testSettings()
		settings.BlockedURLPatterns = []string{"*.global.test/*"}
		pass := &schemas.PassConfig{
			PassName:           "p",
			BlockedURLPatterns: []string{"*.pass.test/*"},
			Gatherers:          []schemas.GathererConfig{{Instance: valueGatherer("probe", "v")}},
		}

		_, err := newTestRunner().runPass(context.Background(), newPassContext(d, pass, settings))
		require.NoError(t, err)

		require.Len(t, d.blockedHistory, 1)
		assert.Equal(t, []string{"*.pass.test/*", "*.global.test/*"}, d.blockedHistory[0])
	})

	t.Run("no patterns still installs an empty list", func(t *testing.T) {
		t.Parallel()
		d := newFakeDriver(t)
		pass := &schemas.PassConfig{
			PassName:  "p",
			Gatherers: []schemas.GathererConfig{{Instance: valueGatherer("probe", "v")}},
		}

		_, err := newTestRunner().runPass(context.Background(), newPassContext(d, pass, testSettings()))
		require.NoError(t, err)

		require.Len(t, d.blockedHistory, 1)
		assert.Empty(t, d.blockedHistory[0])
	})
}

func TestRunPassCacheClearConditions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		disableStorageReset bool
		recordTrace         bool
		useThrottling       bool
		wantClear           bool
	}{
		{false, true, true, true},
		{false, true, false, false},
		{false, false, true, false},
		{false, false, false, false},
		{true, true, true, false},
		{true, false, false, false},
	}

	for _, tc := range testCases {
		tc := tc
		name := fmt.Sprintf("reset=%v trace=%v throttle=%v", !tc.disableStorageReset, tc.recordTrace, tc.useThrottling)
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			d := newFakeDriver(t)
			settings := testSettings()
			settings.DisableStorageReset = tc.disableStorageReset
			pass := &schemas.PassConfig{
				PassName:      "p",
				RecordTrace:   tc.recordTrace,
				UseThrottling: tc.useThrottling,
				Gatherers:     []schemas.GathererConfig{{Instance: valueGatherer("probe", "v")}},
			}

			_, err := newTestRunner().runPass(context.Background(), newPassContext(d, pass, settings))
			require.NoError(t, err)

			want := 0
			if tc.wantClear {
				want = 1
			}
			assert.Equal(t, want, d.countCalls("ClearBrowserCaches"))
		})
	}
}

func TestRunPassPersistsCapturesByPassName(t *testing.T) {
	t.Parallel()

	d := newFakeDriver(t)
	pass := &schemas.PassConfig{
		PassName:      "myPass",
		RecordTrace:   true,
		UseThrottling: true,
		Gatherers:     []schemas.GathererConfig{{Instance: valueGatherer("probe", "v")}},
	}
	pctx := newPassContext(d, pass, testSettings())

	_, err := newTestRunner().runPass(context.Background(), pctx)
	require.NoError(t, err)

	assert.Contains(t, pctx.BaseArtifacts.DevtoolsLogs, "myPass")
	assert.NotEmpty(t, pctx.BaseArtifacts.DevtoolsLogs["myPass"])
	assert.Contains(t, pctx.BaseArtifacts.Traces, "myPass")

	d2 := newFakeDriver(t)
	plain := &schemas.PassConfig{
		PassName:  "plain",
		Gatherers: []schemas.GathererConfig{{Instance: valueGatherer("probe", "v")}},
	}
	pctx2 := newPassContext(d2, plain, testSettings())
	_, err = newTestRunner().runPass(context.Background(), pctx2)
	require.NoError(t, err)

	assert.Contains(t, pctx2.BaseArtifacts.DevtoolsLogs, "plain")
	assert.NotContains(t, pctx2.BaseArtifacts.Traces, "plain")
}

func TestRunPassRedirectUpdatesContextURL(t *testing.T) {
	t.Parallel()

	d := newFakeDriver(t)
	d.navigateFunc = func(url string, _ schemas.NavigateOptions) (string, error) {
		if url == "https://a.test/" {
			return "https://a.test/landing", nil
		}
		return url, nil
	}
	pass := &schemas.PassConfig{
		PassName:  "p",
		Gatherers: []schemas.GathererConfig{{Instance: valueGatherer("probe", "v")}},
	}
	pctx := newPassContext(d, pass, testSettings())

	result, err := newTestRunner().runPass(context.Background(), pctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.test/landing", pctx.URL)
	assert.Nil(t, result.loadError)
}

func TestRunPassLoadFailure(t *testing.T) {
	t.Parallel()

	d := newFakeDriver(t)
	d.logFunc = func() schemas.DevtoolsLog {
		return failedLog(t, "https://a.test/", "net::ERR_CONNECTION_REFUSED")
	}

	early := &scriptedGatherer{
		name: "early",
		beforeFn: func(*schemas.PassContext) (any, error) {
			return "from-before", nil
		},
	}
	silent := &scriptedGatherer{name: "silent"}

	pass := &schemas.PassConfig{
		PassName: "p",
		Gatherers: []schemas.GathererConfig{
			{Instance: early},
			{Instance: silent},
		},
	}
	pctx := newPassContext(d, pass, testSettings())

	result, err := newTestRunner().runPass(context.Background(), pctx)
	require.NoError(t, err)

	require.NotNil(t, result.loadError)
	assert.Equal(t, schemas.FailedDocumentRequest, result.loadError.Kind)

	// Exactly one warning for the failed load, no matter how many gatherers.
	assert.Len(t, pctx.Warnings.All(), 1)

	// afterPass is skipped for every gatherer.
	assert.Equal(t, []string{"beforePass", "pass"}, early.invoked())
	assert.Equal(t, []string{"beforePass", "pass"}, silent.invoked())

	// The failure lands in every history; values produced earlier survive
	// reconciliation, gatherers with nothing else surface the failure.
	artifacts, err := collectPassArtifacts(result)
	require.NoError(t, err)
	assert.Equal(t, "from-before", artifacts["early"])

	var plErr *schemas.PageLoadError
	require.ErrorAs(t, artifacts["silent"].(error), &plErr)
	assert.Equal(t, schemas.FailedDocumentRequest, plErr.Kind)
}

func TestRunPassOfflineSuppressesLoadFailure(t *testing.T) {
	t.Parallel()

	d := newFakeDriver(t)
	d.logFunc = func() schemas.DevtoolsLog {
		return failedLog(t, "https://a.test/", "net::ERR_INTERNET_DISCONNECTED")
	}

	g := &scriptedGatherer{
		name: "offline-probe",
		beforeFn: func(pc *schemas.PassContext) (any, error) {
			return nil, pc.Driver.SetOfflineMode(context.Background(), true)
		},
		afterFn: func(*schemas.PassContext, *schemas.LoadData) (any, error) {
			return "offline-result", nil
		},
	}
	pass := &schemas.PassConfig{
		PassName:  "offlinePass",
		Gatherers: []schemas.GathererConfig{{Instance: g}},
	}
	pctx := newPassContext(d, pass, testSettings())

	result, err := newTestRunner().runPass(context.Background(), pctx)
	require.NoError(t, err)

	// The failed load is expected while offline: no failure, no warning,
	// afterPass still runs.
	assert.Nil(t, result.loadError)
	assert.Empty(t, pctx.Warnings.All())
	assert.Equal(t, []string{"beforePass", "pass", "afterPass"}, g.invoked())

	// Throttling teardown must not flip the declared offline state.
	assert.False(t, d.Online())

	artifacts, err := collectPassArtifacts(result)
	require.NoError(t, err)
	assert.Equal(t, "offline-result", artifacts["offline-probe"])
}

func TestRunPassGathererPanicIsIsolated(t *testing.T) {
	t.Parallel()

	d := newFakeDriver(t)
	panicky := &scriptedGatherer{
		name: "panicky",
		passFn: func(*schemas.PassContext) (any, error) {
			panic("boom")
		},
	}
	steady := valueGatherer("steady", "ok")

	pass := &schemas.PassConfig{
		PassName: "p",
		Gatherers: []schemas.GathererConfig{
			{Instance: panicky},
			{Instance: steady},
		},
	}
	pctx := newPassContext(d, pass, testSettings())

	result, err := newTestRunner().runPass(context.Background(), pctx)
	require.NoError(t, err)

	artifacts, err := collectPassArtifacts(result)
	require.NoError(t, err)
	assert.Equal(t, "ok", artifacts["steady"])

	panicErr, ok := artifacts["panicky"].(error)
	require.True(t, ok, "panicking gatherer should surface an error artifact")
	assert.Contains(t, panicErr.Error(), "panicked")
	assert.Contains(t, panicErr.Error(), "boom")
}

func TestRunPassFatalFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		failure string
		trace   bool
	}{
		{name: "navigation failure", failure: "Navigate"},
		{name: "trace start failure", failure: "BeginTrace", trace: true},
		{name: "trace collection failure", failure: "EndTrace", trace: true},
		{name: "throttling failure", failure: "EmulateNetworkConditions"},
		{name: "block list failure", failure: "SetBlockedURLPatterns"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := newFakeDriver(t)
			d.failures[tc.failure] = errors.New("protocol went away")
			pass := &schemas.PassConfig{
				PassName:      "p",
				RecordTrace:   tc.trace,
				UseThrottling: true,
				Gatherers:     []schemas.GathererConfig{{Instance: valueGatherer("probe", "v")}},
			}

			_, err := newTestRunner().runPass(context.Background(), newPassContext(d, pass, testSettings()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "pass p")
		})
	}
}

func TestRunPassGathererSeesOwnOptions(t *testing.T) {
	t.Parallel()

	d := newFakeDriver(t)
	var seenA, seenB string
	ga := &scriptedGatherer{
		name: "a",
		passFn: func(pc *schemas.PassContext) (any, error) {
			seenA, _ = pc.OptionString("flavor")
			return "a", nil
		},
	}
	gb := &scriptedGatherer{
		name: "b",
		passFn: func(pc *schemas.PassContext) (any, error) {
			seenB, _ = pc.OptionString("flavor")
			return "b", nil
		},
	}
	pass := &schemas.PassConfig{
		PassName: "p",
		Gatherers: []schemas.GathererConfig{
			{Instance: ga, Options: map[string]any{"flavor": "vanilla"}},
			{Instance: gb, Options: map[string]any{"flavor": "chocolate"}},
		},
	}

	_, err := newTestRunner().runPass(context.Background(), newPassContext(d, pass, testSettings()))
	require.NoError(t, err)
	assert.Equal(t, "vanilla", seenA)
	assert.Equal(t, "chocolate", seenB)
}
