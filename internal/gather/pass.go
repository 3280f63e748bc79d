// internal/gather/pass.go
package gather

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/netlog"
)

// phaseOutcome is the tagged result of one gatherer hook invocation. A hook
// can contribute a value, reject with an error, or stay silent; the three
// states are tracked separately so later reconciliation can pick the last
// defined value over interleaved rejections.
type phaseOutcome struct {
	value   any
	err     error
	defined bool
}

// gathererHistory accumulates the hook outcomes of one gatherer over a pass
// in execution order.
type gathererHistory struct {
	gatherer schemas.Gatherer
	options  map[string]any
	outcomes []phaseOutcome
}

func (h *gathererHistory) record(o phaseOutcome) {
	h.outcomes = append(h.outcomes, o)
}

// passResult carries everything a finished pass produced: the per-gatherer
// outcome histories, the captured load data, and the page-load verdict
// after offline suppression.
type passResult struct {
	histories []*gathererHistory
	loadData  *schemas.LoadData
	loadError *schemas.PageLoadError
}

// runPass drives one configured pass end to end: network shaping, gatherer
// hooks around a fresh navigation, capture teardown, and page-load
// classification. Driver and protocol failures abort the run; gatherer
// failures are isolated into the histories.
func (r *Runner) runPass(ctx context.Context, pctx *schemas.PassContext) (*passResult, error) {
	driver := pctx.Driver
	pass := pctx.PassConfig
	settings := pctx.Settings
	log := r.log.With(zap.String("pass", pass.PassName))
	passStart := time.Now()

	histories := make([]*gathererHistory, len(pass.Gatherers))
	for i, gc := range pass.Gatherers {
		histories[i] = &gathererHistory{gatherer: gc.Instance, options: gc.Options}
	}

	// Network shaping comes first so every request of the pass sees it.
	if err := r.setupPassNetwork(ctx, pctx); err != nil {
		return nil, fmt.Errorf("pass %s: network setup: %w", pass.PassName, err)
	}

	// The browser cache only distorts results for throttled trace passes;
	// clearing it elsewhere just slows the run down.
	if !settings.DisableStorageReset && pass.RecordTrace && pass.UseThrottling {
		if err := driver.ClearBrowserCaches(ctx); err != nil {
			return nil, fmt.Errorf("pass %s: clearing browser caches: %w", pass.PassName, err)
		}
	}

	log.Debug("Running beforePass hooks.", zap.Int("gatherers", len(histories)))
	r.runPhase(ctx, histories, pctx, phaseBefore, nil)

	driver.BeginDevtoolsLog()
	if pass.RecordTrace {
		if err := driver.BeginTrace(ctx); err != nil {
			return nil, fmt.Errorf("pass %s: starting trace: %w", pass.PassName, err)
		}
	}

	navStart := time.Now()
	finalURL, err := driver.Navigate(ctx, pctx.URL, schemas.NavigateOptions{
		WaitForLoad:       true,
		WaitForFirstPaint: pass.RecordTrace,
		MaxWait:           settings.MaxWaitForLoad,
	})
	if err != nil {
		return nil, fmt.Errorf("pass %s: navigating to %s: %w", pass.PassName, pctx.URL, err)
	}
	if finalURL != "" && finalURL != pctx.URL {
		log.Debug("Page navigation was redirected.",
			zap.String("from", pctx.URL), zap.String("to", finalURL))
		pctx.URL = finalURL
	}
	r.mark(pctx.BaseArtifacts, "loadPage:"+pass.PassName, navStart)

	log.Debug("Running pass hooks.")
	r.runPhase(ctx, histories, pctx, phasePass, nil)

	var trace *schemas.Trace
	if pass.RecordTrace {
		trace, err = driver.EndTrace(ctx)
		if err != nil {
			return nil, fmt.Errorf("pass %s: collecting trace: %w", pass.PassName, err)
		}
	}
	devtoolsLog := driver.EndDevtoolsLog()
	loadData := &schemas.LoadData{
		Trace:          trace,
		DevtoolsLog:    devtoolsLog,
		NetworkRecords: netlog.Records(devtoolsLog),
	}

	// Throttling never outlives its pass, whether or not it was enabled.
	if err := disableThrottling(ctx, driver); err != nil {
		return nil, fmt.Errorf("pass %s: disabling throttling: %w", pass.PassName, err)
	}

	pctx.BaseArtifacts.DevtoolsLogs[pass.PassName] = devtoolsLog
	if trace != nil {
		pctx.BaseArtifacts.Traces[pass.PassName] = trace
	}

	loadError := ClassifyPageLoad(loadData.NetworkRecords, pctx.URL)
	if loadError != nil && !driver.Online() {
		log.Debug("Ignoring page load failure while offline.",
			zap.String("kind", string(loadError.Kind)))
		loadError = nil
	}

	if loadError == nil {
		log.Debug("Running afterPass hooks.")
		r.runPhase(ctx, histories, pctx, phaseAfter, loadData)
	} else {
		log.Warn("Page failed to load during pass.",
			zap.String("url", pctx.URL),
			zap.String("kind", string(loadError.Kind)),
			zap.String("detail", loadError.Detail))
		pctx.Warnings.Append(loadError.Message)
		for _, h := range histories {
			h.record(phaseOutcome{err: loadError})
		}
	}
	r.mark(pctx.BaseArtifacts, "pass:"+pass.PassName, passStart)

	return &passResult{histories: histories, loadData: loadData, loadError: loadError}, nil
}

// setupPassNetwork applies throttling, URL blocking and extra headers for a
// pass. Blocked patterns are always installed, merging per-pass and global
// patterns; installing an empty list clears leftovers from earlier passes.
func (r *Runner) setupPassNetwork(ctx context.Context, pctx *schemas.PassContext) error {
	driver := pctx.Driver
	settings := pctx.Settings
	pass := pctx.PassConfig

	if pass.UseThrottling {
		if err := driver.EmulateNetworkConditions(ctx, settings.Throttling); err != nil {
			return err
		}
		if err := driver.SetCPUThrottling(ctx, settings.Throttling.CPUSlowdownMultiplier); err != nil {
			return err
		}
	} else {
		if err := disableThrottling(ctx, driver); err != nil {
			return err
		}
	}

	blocked := make([]string, 0, len(pass.BlockedURLPatterns)+len(settings.BlockedURLPatterns))
	blocked = append(blocked, pass.BlockedURLPatterns...)
	blocked = append(blocked, settings.BlockedURLPatterns...)
	if err := driver.SetBlockedURLPatterns(ctx, blocked); err != nil {
		return err
	}

	if len(settings.ExtraHeaders) > 0 {
		if err := driver.SetExtraHTTPHeaders(ctx, settings.ExtraHeaders); err != nil {
			return err
		}
	}
	return nil
}

func disableThrottling(ctx context.Context, driver schemas.Driver) error {
	if err := driver.EmulateNetworkConditions(ctx, schemas.ThrottlingSettings{}); err != nil {
		return err
	}
	return driver.SetCPUThrottling(ctx, 1)
}

type gatherPhase int

const (
	phaseBefore gatherPhase = iota
	phasePass
	phaseAfter
)

// runPhase invokes one hook on every gatherer of the pass, recording each
// outcome. Gatherer errors and panics never escape; they become rejection
// outcomes in the history. Each gatherer sees a context copy carrying its
// own configured options.
func (r *Runner) runPhase(ctx context.Context, histories []*gathererHistory, pctx *schemas.PassContext, phase gatherPhase, loadData *schemas.LoadData) {
	for _, h := range histories {
		g := h.gatherer
		gctx := *pctx
		gctx.Options = h.options
		outcome := invokeHook(func() (any, error) {
			switch phase {
			case phaseBefore:
				return g.BeforePass(ctx, &gctx)
			case phasePass:
				return g.Pass(ctx, &gctx)
			default:
				return g.AfterPass(ctx, &gctx, loadData)
			}
		})
		if outcome.err != nil {
			r.log.Debug("Gatherer hook rejected.",
				zap.String("gatherer", g.Name()), zap.Error(outcome.err))
		}
		h.record(outcome)
	}
}

// invokeHook normalizes a hook invocation into a tagged outcome. A nil
// value with a nil error means the hook stayed silent for this phase.
func invokeHook(fn func() (any, error)) (outcome phaseOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = phaseOutcome{err: fmt.Errorf("gatherer panicked: %v", rec)}
		}
	}()
	value, err := fn()
	if err != nil {
		return phaseOutcome{err: err}
	}
	if value == nil {
		return phaseOutcome{}
	}
	return phaseOutcome{value: value, defined: true}
}
