// internal/gather/runner.go
// Package gather drives a full gathering run against a browser session: it
// connects the driver, prepares the environment, executes the configured
// passes with their gatherer hooks, and reconciles everything into one
// artifact bundle. Driver and protocol failures abort the run with no
// partial bundle; individual gatherer failures are contained and surface as
// error-valued artifacts.
package gather

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/netlog"
	"github.com/xkilldash9x/pharos-cli/internal/observability"
	"github.com/xkilldash9x/pharos-cli/internal/stacks"
)

const defaultBlankPage = "about:blank"

// Runner orchestrates gathering runs.
type Runner struct {
	log *zap.Logger
}

func NewRunner() *Runner {
	return &Runner{log: observability.GetLogger().Named("gather")}
}

// Run executes every configured pass against the requested URL and returns
// the reconciled artifact bundle. On any fatal error the driver is
// disconnected best-effort and the original error is returned; no partial
// bundle is ever produced.
func (r *Runner) Run(ctx context.Context, opts schemas.RunOptions, passes []schemas.PassConfig) (*schemas.ArtifactBundle, error) {
	if err := validateRunOptions(opts); err != nil {
		return nil, err
	}
	if err := ValidatePasses(passes); err != nil {
		return nil, err
	}

	bundle, err := r.run(ctx, opts, passes)
	if err != nil {
		r.disposeDriver(ctx, opts.Driver)
		return nil, err
	}
	return bundle, nil
}

func (r *Runner) run(ctx context.Context, opts schemas.RunOptions, passes []schemas.PassConfig) (*schemas.ArtifactBundle, error) {
	driver := opts.Driver
	settings := opts.Settings

	connectStart := time.Now()
	if err := driver.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	r.log.Info("Connected to browser session.", zap.String("url", opts.RequestedURL))

	base, err := PrepareBaseArtifacts(ctx, driver, settings, opts.RequestedURL)
	if err != nil {
		return nil, fmt.Errorf("preparing base artifacts: %w", err)
	}
	r.mark(base, "connect", connectStart)

	if err := r.loadBlank(ctx, driver, defaultBlankPage); err != nil {
		return nil, fmt.Errorf("loading blank page: %w", err)
	}

	benchStart := time.Now()
	base.BenchmarkIndex, err = driver.BenchmarkIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing benchmark index: %w", err)
	}
	r.mark(base, "benchmark", benchStart)

	setupStart := time.Now()
	if err := r.setupDriver(ctx, driver, settings, opts.RequestedURL); err != nil {
		return nil, fmt.Errorf("preparing driver: %w", err)
	}
	r.mark(base, "setup", setupStart)

	sink := &schemas.WarningSink{}
	artifacts := make(map[string]any)

	for i := range passes {
		pass := &passes[i]
		if i > 0 {
			if err := r.loadBlank(ctx, driver, blankPageFor(pass)); err != nil {
				return nil, fmt.Errorf("pass %s: loading blank page: %w", pass.PassName, err)
			}
		}

		pctx := &schemas.PassContext{
			Driver:        driver,
			URL:           opts.RequestedURL,
			Settings:      settings,
			PassConfig:    pass,
			BaseArtifacts: base,
			Warnings:      sink,
		}
		result, err := r.runPass(ctx, pctx)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			if err := r.collectFirstPassExtras(ctx, pctx, result, base); err != nil {
				return nil, err
			}
		}

		passArtifacts, err := collectPassArtifacts(result)
		if err != nil {
			return nil, err
		}
		if err := mergeArtifacts(artifacts, passArtifacts); err != nil {
			return nil, err
		}
	}

	if !settings.DisableStorageReset {
		if err := driver.ClearOriginStorage(ctx, opts.RequestedURL); err != nil {
			return nil, fmt.Errorf("clearing origin storage: %w", err)
		}
	}

	r.disposeDriver(ctx, driver)

	base.Warnings = sink.Unique()
	return &schemas.ArtifactBundle{Base: base, Artifacts: artifacts}, nil
}

// collectFirstPassExtras fills the base artifact fields that need a real
// page load: the final URL after redirects, the network-level user agent,
// the web app manifest and the detected JS libraries.
func (r *Runner) collectFirstPassExtras(ctx context.Context, pctx *schemas.PassContext, result *passResult, base *schemas.BaseArtifacts) error {
	base.URL.FinalURL = pctx.URL
	base.NetworkUserAgent = netlog.UserAgent(result.loadData.DevtoolsLog)

	m, err := ResolveWebAppManifest(ctx, pctx.Driver, pctx.URL)
	if err != nil {
		return fmt.Errorf("resolving web app manifest: %w", err)
	}
	base.WebAppManifest = m

	detected, err := stacks.Detect(ctx, pctx.Driver)
	if err != nil {
		return fmt.Errorf("detecting stacks: %w", err)
	}
	base.Stacks = detected
	return nil
}

// setupDriver prepares a freshly connected session for auditing. Every step
// is required; a failure here makes the whole run unreliable.
func (r *Runner) setupDriver(ctx context.Context, driver schemas.Driver, settings *schemas.Settings, requestedURL string) error {
	r.log.Debug("Preparing driver for run.")
	if err := driver.AssertNoServiceWorkerClients(ctx, requestedURL); err != nil {
		return fmt.Errorf("checking service worker clients: %w", err)
	}
	if err := driver.ApplyEmulation(ctx, settings); err != nil {
		return fmt.Errorf("applying emulation: %w", err)
	}
	if err := driver.EnableRuntimeEvents(ctx); err != nil {
		return fmt.Errorf("enabling runtime events: %w", err)
	}
	if err := driver.CacheNativeBindings(ctx); err != nil {
		return fmt.Errorf("caching native bindings: %w", err)
	}
	if err := driver.RegisterPerformanceObserver(ctx); err != nil {
		return fmt.Errorf("registering performance observer: %w", err)
	}
	if err := driver.DismissJavaScriptDialogs(ctx); err != nil {
		return fmt.Errorf("installing dialog handler: %w", err)
	}
	if settings.DisableStorageReset {
		return nil
	}
	if err := driver.ClearOriginStorage(ctx, requestedURL); err != nil {
		return fmt.Errorf("clearing origin storage: %w", err)
	}
	return nil
}

// disposeDriver disconnects the session. Disposal is best-effort: a
// connection that is already gone is fine, and any other failure is logged
// without masking whatever error ended the run.
func (r *Runner) disposeDriver(ctx context.Context, driver schemas.Driver) {
	if driver == nil {
		return
	}
	r.log.Debug("Disconnecting driver.")
	if err := driver.Close(ctx); err != nil && !isAlreadyClosed(err) {
		r.log.Warn("Driver disconnect failed.", zap.Error(err))
	}
}

func isAlreadyClosed(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "already closed") || strings.Contains(msg, "close sent")
}

// loadBlank parks the session on a neutral page. The load event is not
// awaited; blank pages have nothing meaningful to wait for.
func (r *Runner) loadBlank(ctx context.Context, driver schemas.Driver, page string) error {
	_, err := driver.Navigate(ctx, page, schemas.NavigateOptions{})
	return err
}

func blankPageFor(pass *schemas.PassConfig) string {
	if pass.BlankPage != "" {
		return pass.BlankPage
	}
	return defaultBlankPage
}

func (r *Runner) mark(base *schemas.BaseArtifacts, name string, start time.Time) {
	base.Timing = append(base.Timing, schemas.TimingEntry{
		Name:      name,
		StartTime: start,
		Duration:  time.Since(start),
	})
}

func validateRunOptions(opts schemas.RunOptions) error {
	if opts.Driver == nil {
		return errors.New("a driver is required")
	}
	if opts.Settings == nil {
		return errors.New("run settings are required")
	}
	u, err := url.Parse(opts.RequestedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("requested URL %q is not a valid http(s) URL", opts.RequestedURL)
	}
	return nil
}

// ValidatePasses rejects pass configurations that would make artifact
// reconciliation ambiguous: unnamed or duplicate passes, nil or unnamed
// gatherers, names reused across passes, and names that collide with the
// reserved base artifact keys.
func ValidatePasses(passes []schemas.PassConfig) error {
	if len(passes) == 0 {
		return errors.New("at least one gather pass must be configured")
	}

	reserved := make(map[string]bool)
	for _, key := range schemas.BaseArtifactKeys() {
		reserved[key] = true
	}

	passNames := make(map[string]bool, len(passes))
	gathererPass := make(map[string]string)
	for i := range passes {
		pass := &passes[i]
		if pass.PassName == "" {
			return fmt.Errorf("pass at index %d has no name", i)
		}
		if passNames[pass.PassName] {
			return fmt.Errorf("duplicate pass name %q", pass.PassName)
		}
		passNames[pass.PassName] = true

		for _, gc := range pass.Gatherers {
			if gc.Instance == nil {
				return fmt.Errorf("pass %q contains a nil gatherer", pass.PassName)
			}
			name := gc.Instance.Name()
			if name == "" {
				return fmt.Errorf("pass %q contains a gatherer with no name", pass.PassName)
			}
			if reserved[name] {
				return fmt.Errorf("gatherer name %q collides with a base artifact key", name)
			}
			if prev, ok := gathererPass[name]; ok {
				return fmt.Errorf("gatherer %q is configured in both pass %q and pass %q", name, prev, pass.PassName)
			}
			gathererPass[name] = pass.PassName
		}
	}
	return nil
}
