// internal/driver/evaluate.go
package driver

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// Evaluate runs a JavaScript expression in the page, awaiting promises, and
// unmarshals the result into out when out is non-nil.
func (d *Driver) Evaluate(ctx context.Context, expression string, out any) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	action := chromedp.Evaluate(expression, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true)
		})
	if err := chromedp.Run(opCtx, action); err != nil {
		return fmt.Errorf("evaluating expression: %w", err)
	}
	return nil
}

// Version reports the browser's identity, including the host user agent the
// run records before any override is applied.
func (d *Driver) Version(ctx context.Context) (*schemas.BrowserVersion, error) {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var version schemas.BrowserVersion
	err = chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		protocolVersion, product, revision, userAgent, jsVersion, err := browser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		version = schemas.BrowserVersion{
			Product:         product,
			ProtocolVersion: protocolVersion,
			Revision:        revision,
			UserAgent:       userAgent,
			JSVersion:       jsVersion,
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("querying browser version: %w", err)
	}
	return &version, nil
}

// BenchmarkIndex measures a rough index of how fast the host executes page
// JavaScript. Values are only comparable between runs on the same scale.
func (d *Driver) BenchmarkIndex(ctx context.Context) (float64, error) {
	var index float64
	if err := d.Evaluate(ctx, benchmarkIndexScript, &index); err != nil {
		return 0, fmt.Errorf("measuring benchmark index: %w", err)
	}
	return index, nil
}

// FetchAppManifest returns the page's web app manifest as fetched by the page
// itself, or nil when the page declares none.
func (d *Driver) FetchAppManifest(ctx context.Context) (*schemas.RawManifest, error) {
	var manifest *schemas.RawManifest
	if err := d.Evaluate(ctx, fetchManifestScript, &manifest); err != nil {
		return nil, fmt.Errorf("fetching app manifest: %w", err)
	}
	return manifest, nil
}
