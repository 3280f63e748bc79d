// internal/driver/driver.go

// Package driver runs a browser session over the devtools protocol. It
// implements the schemas.Driver contract on top of chromedp: one Driver owns
// one browser process plus the recorder that captures its event stream.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/config"
)

// defaultNavigationTimeout bounds a navigation when the caller does not.
const defaultNavigationTimeout = 45 * time.Second

var errNotConnected = errors.New("driver is not connected")

// Driver drives one browser process for the duration of a run. Methods are
// safe for concurrent use, though a gathering run only ever issues one
// operation at a time.
type Driver struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	rec *recorder

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	online        bool

	closeOnce sync.Once
}

var _ schemas.Driver = (*Driver)(nil)

// New creates a driver for the given browser configuration. The browser
// process is not launched until Connect.
func New(cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	return &Driver{
		logger: logger.Named("driver"),
		cfg:    cfg,
		rec:    newRecorder(),
		online: true,
	}
}

// Connect launches the browser, installs the event listener and enables the
// network and page domains the recorder depends on.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.browserCtx != nil {
		d.mu.Unlock()
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execAllocatorOptions(d.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Errorf),
	)
	// Listeners must be registered before the first Run starts the target.
	chromedp.ListenTarget(browserCtx, d.rec.handleEvent)

	d.allocCtx, d.allocCancel = allocCtx, allocCancel
	d.browserCtx, d.browserCancel = browserCtx, browserCancel
	d.mu.Unlock()

	launchCtx, cancel := combineContext(browserCtx, ctx)
	defer cancel()

	err := chromedp.Run(launchCtx,
		network.Enable(),
		page.Enable(),
	)
	if err != nil {
		d.teardown()
		return fmt.Errorf("launching browser session: %w", err)
	}

	d.logger.Info("Browser session established.")
	return nil
}

// Close asks the browser to exit and releases the allocator. Calls after the
// first are no-ops.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	browserCtx := d.browserCtx
	d.mu.Unlock()
	if browserCtx == nil {
		return nil
	}

	var err error
	d.closeOnce.Do(func() {
		d.logger.Debug("Closing browser session.")
		err = chromedp.Cancel(browserCtx)
		d.teardown()
	})
	if err != nil {
		return fmt.Errorf("closing browser session: %w", err)
	}
	return nil
}

// teardown cancels the session contexts and forgets them.
func (d *Driver) teardown() {
	d.mu.Lock()
	browserCancel, allocCancel := d.browserCancel, d.allocCancel
	d.browserCtx, d.browserCancel = nil, nil
	d.allocCtx, d.allocCancel = nil, nil
	d.mu.Unlock()

	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
}

// operationContext merges the session lifetime with the caller's context.
// Every wire operation goes through this so a dead session fails fast and a
// canceled caller cannot leak a hung protocol call.
func (d *Driver) operationContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	d.mu.Lock()
	browserCtx := d.browserCtx
	d.mu.Unlock()
	if browserCtx == nil {
		return nil, nil, errNotConnected
	}
	opCtx, cancel := combineContext(browserCtx, ctx)
	return opCtx, cancel, nil
}

// Navigate drives the page to targetURL and returns the URL the top frame
// settled on after redirects. A navigation error text from the browser is not
// fatal here; the recorded network events carry the failure and classification
// happens after the pass.
func (d *Driver) Navigate(ctx context.Context, targetURL string, opts schemas.NavigateOptions) (string, error) {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = defaultNavigationTimeout
	}
	navCtx, cancelNav := context.WithTimeout(opCtx, maxWait)
	defer cancelNav()

	loadFired := d.rec.armLoadEvent()

	d.logger.Debug("Navigating.",
		zap.String("url", targetURL),
		zap.Bool("wait_for_load", opts.WaitForLoad),
		zap.Bool("wait_for_first_paint", opts.WaitForFirstPaint),
	)

	var errorText string
	err = chromedp.Run(navCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, text, err := page.Navigate(targetURL).Do(ctx)
		errorText = text
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("navigating to %s: %w", targetURL, err)
	}
	if errorText != "" {
		d.logger.Debug("Navigation reported an error text.",
			zap.String("url", targetURL),
			zap.String("error_text", errorText),
		)
	}

	if opts.WaitForLoad && errorText == "" {
		select {
		case <-loadFired:
		case <-navCtx.Done():
			// A page that never fires load is a finding, not a failure. The
			// pass continues with whatever was captured.
			d.logger.Warn("Timed out waiting for the load event.",
				zap.String("url", targetURL),
				zap.Duration("max_wait", maxWait),
			)
		}
	}
	if opts.WaitForFirstPaint && errorText == "" {
		if err := d.awaitFirstPaint(navCtx); err != nil {
			d.logger.Debug("First paint wait ended early.", zap.Error(err))
		}
	}

	if final := d.rec.topFrameURL(); final != "" {
		return final, nil
	}
	return targetURL, nil
}

func (d *Driver) awaitFirstPaint(ctx context.Context) error {
	var painted bool
	return chromedp.Run(ctx, chromedp.Evaluate(awaitFirstPaintScript, &painted,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true)
		}))
}

// Online reports the declared network state. It is flipped by SetOfflineMode
// only; throttling changes never touch it.
func (d *Driver) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}
