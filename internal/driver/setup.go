// internal/driver/setup.go
package driver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/emulation"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// asyncStackDepth is how many async frames the debugger keeps per stack.
const asyncStackDepth = 8

// AssertNoServiceWorkerClients fails when a service worker from the target's
// origin is already running in this browser. Reusing one would serve cached
// responses and make the captured load unrepresentative.
func (d *Driver) AssertNoServiceWorkerClients(ctx context.Context, pageURL string) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	var workers []string
	err = chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		infos, err := target.GetTargets().Do(ctx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if info.Type != "service_worker" {
				continue
			}
			if sameOrigin(info.URL, pageURL) {
				workers = append(workers, info.URL)
			}
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("listing browser targets: %w", err)
	}
	if len(workers) > 0 {
		return fmt.Errorf("a service worker already controls %s (%s); run against a fresh browser profile", pageURL, strings.Join(workers, ", "))
	}
	return nil
}

// ApplyEmulation installs the device metrics and user agent overrides from
// the run settings. Absent settings leave the host defaults untouched.
func (d *Driver) ApplyEmulation(ctx context.Context, settings *schemas.Settings) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	var actions []chromedp.Action
	if se := settings.ScreenEmulation; se != nil && !se.Disabled {
		actions = append(actions,
			emulation.SetDeviceMetricsOverride(se.Width, se.Height, se.DeviceScaleFactor, se.Mobile),
			emulation.SetTouchEmulationEnabled(se.Mobile),
		)
		d.logger.Debug("Applying screen emulation.",
			zap.Int64("width", se.Width),
			zap.Int64("height", se.Height),
			zap.Bool("mobile", se.Mobile),
		)
	}
	if settings.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(settings.UserAgent))
	}
	if len(actions) == 0 {
		return nil
	}

	if err := chromedp.Run(opCtx, actions...); err != nil {
		return fmt.Errorf("applying device emulation: %w", err)
	}
	return nil
}

// EnableRuntimeEvents turns on console, log and exception delivery plus async
// stack collection. The recorder only sees runtime events after this.
func (d *Driver) EnableRuntimeEvents(ctx context.Context) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	err = chromedp.Run(opCtx,
		runtime.Enable(),
		cdplog.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := debugger.Enable().Do(ctx); err != nil {
				return err
			}
			// Pauses would wedge the page with nobody attached to resume it.
			if err := debugger.SetSkipAllPauses(true).Do(ctx); err != nil {
				return err
			}
			return debugger.SetAsyncCallStackDepth(asyncStackDepth).Do(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("enabling runtime event delivery: %w", err)
	}
	return nil
}

// CacheNativeBindings snapshots native globals on every new document before
// page scripts can clobber them.
func (d *Driver) CacheNativeBindings(ctx context.Context) error {
	if err := d.installOnNewDocument(ctx, cachedNativesScript); err != nil {
		return fmt.Errorf("caching native bindings: %w", err)
	}
	return nil
}

// RegisterPerformanceObserver installs the buffering long-task observer on
// every new document.
func (d *Driver) RegisterPerformanceObserver(ctx context.Context) error {
	if err := d.installOnNewDocument(ctx, performanceObserverScript); err != nil {
		return fmt.Errorf("registering the performance observer: %w", err)
	}
	return nil
}

func (d *Driver) installOnNewDocument(ctx context.Context, script string) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	return chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

// DismissJavaScriptDialogs auto-declines every alert, confirm, prompt and
// beforeunload dialog for the rest of the session so navigation can never
// hang on one.
func (d *Driver) DismissJavaScriptDialogs(ctx context.Context) error {
	d.mu.Lock()
	browserCtx := d.browserCtx
	d.mu.Unlock()
	if browserCtx == nil {
		return errNotConnected
	}

	d.rec.setDialogHandler(func(e *page.EventJavascriptDialogOpening) {
		d.logger.Debug("Dismissing javascript dialog.",
			zap.String("type", string(e.Type)),
			zap.String("message", e.Message),
		)
		if err := chromedp.Run(browserCtx, page.HandleJavaScriptDialog(false)); err != nil {
			d.logger.Warn("Failed to dismiss javascript dialog.", zap.Error(err))
		}
	})
	return nil
}

// ClearOriginStorage wipes every storage type for the origin of pageURL.
func (d *Driver) ClearOriginStorage(ctx context.Context, pageURL string) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	origin, err := originOf(pageURL)
	if err != nil {
		return fmt.Errorf("clearing origin storage: %w", err)
	}
	d.logger.Debug("Clearing origin storage.", zap.String("origin", origin))

	if err := chromedp.Run(opCtx, storage.ClearDataForOrigin(origin, "all")); err != nil {
		return fmt.Errorf("clearing storage for %s: %w", origin, err)
	}
	return nil
}

// originOf reduces a URL to its scheme://host origin.
func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// sameOrigin reports whether two URLs share a scheme and host.
func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}
