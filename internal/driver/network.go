// internal/driver/network.go
package driver

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// The protocol takes throughput in bytes per second; settings carry kilobits.
const kbpsToBytesPerSecond = 1024.0 / 8.0

// throughputBytesPerSecond converts a kbps setting to the wire unit, with
// zero and below meaning unlimited.
func throughputBytesPerSecond(kbps float64) float64 {
	if kbps <= 0 {
		return -1
	}
	return kbps * kbpsToBytesPerSecond
}

// EmulateNetworkConditions applies the given network throttling. The zero
// value disables throttling. The declared offline state is preserved either
// way; only SetOfflineMode changes it.
func (d *Driver) EmulateNetworkConditions(ctx context.Context, throttling schemas.ThrottlingSettings) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	d.mu.Lock()
	offline := !d.online
	d.mu.Unlock()

	latency := throttling.RequestLatencyMs
	if latency < 0 {
		latency = 0
	}

	err = chromedp.Run(opCtx, network.EmulateNetworkConditions(
		offline,
		latency,
		throughputBytesPerSecond(throttling.DownloadThroughputKbps),
		throughputBytesPerSecond(throttling.UploadThroughputKbps),
	))
	if err != nil {
		return fmt.Errorf("emulating network conditions: %w", err)
	}
	return nil
}

// SetOfflineMode declares the session offline or online. The flag only flips
// after the browser accepted the change.
func (d *Driver) SetOfflineMode(ctx context.Context, offline bool) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(opCtx, network.EmulateNetworkConditions(offline, 0, -1, -1)); err != nil {
		return fmt.Errorf("setting offline mode to %t: %w", offline, err)
	}

	d.mu.Lock()
	d.online = !offline
	d.mu.Unlock()

	d.logger.Debug("Declared network state changed.", zap.Bool("offline", offline))
	return nil
}

// SetCPUThrottling applies a CPU slowdown multiplier; values below 1 disable
// throttling.
func (d *Driver) SetCPUThrottling(ctx context.Context, multiplier float64) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if multiplier < 1 {
		multiplier = 1
	}
	if err := chromedp.Run(opCtx, emulation.SetCPUThrottlingRate(multiplier)); err != nil {
		return fmt.Errorf("setting cpu throttling rate: %w", err)
	}
	return nil
}

// SetBlockedURLPatterns replaces the session's URL block list. An empty list
// clears blocking.
func (d *Driver) SetBlockedURLPatterns(ctx context.Context, patterns []string) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if patterns == nil {
		patterns = []string{}
	}
	if err := chromedp.Run(opCtx, network.SetBlockedURLs(patterns)); err != nil {
		return fmt.Errorf("installing the url block list: %w", err)
	}
	return nil
}

// SetExtraHTTPHeaders attaches headers to every request the session sends.
// An empty map clears previously attached headers.
func (d *Driver) SetExtraHTTPHeaders(ctx context.Context, headers map[string]string) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	wire := make(network.Headers, len(headers))
	for name, value := range headers {
		wire[name] = value
	}
	if err := chromedp.Run(opCtx, network.SetExtraHTTPHeaders(wire)); err != nil {
		return fmt.Errorf("setting extra http headers: %w", err)
	}
	return nil
}

// ClearBrowserCaches drops the browser's disk and memory caches.
func (d *Driver) ClearBrowserCaches(ctx context.Context) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(opCtx, network.ClearBrowserCache()); err != nil {
		return fmt.Errorf("clearing browser caches: %w", err)
	}
	return nil
}

// GetRequestContent fetches the response body of a request recorded during
// the current page's lifetime.
func (d *Driver) GetRequestContent(ctx context.Context, requestID string) (string, error) {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	var body []byte
	err = chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		b, err := network.GetResponseBody(network.RequestID(requestID)).Do(ctx)
		if err != nil {
			return err
		}
		body = b
		return nil
	}))
	if err != nil {
		return "", fmt.Errorf("fetching response body for request %s: %w", requestID, err)
	}
	return string(body), nil
}
