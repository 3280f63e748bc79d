// internal/driver/record.go
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/tracing"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// traceDeliveryTimeout bounds the wait for the browser to flush collected
// trace events after tracing stops.
const traceDeliveryTimeout = 15 * time.Second

// traceCategories are the categories recorded for trace passes. The leading
// "-*" turns everything off so only the listed ones are collected.
var traceCategories = []string{
	"-*",
	"blink.console",
	"blink.user_timing",
	"devtools.timeline",
	"disabled-by-default-devtools.timeline",
	"disabled-by-default-devtools.timeline.frame",
	"disabled-by-default-devtools.timeline.stack",
	"disabled-by-default-v8.cpu_profiler",
	"latencyInfo",
	"loading",
	"v8",
	"v8.execute",
}

// BeginDevtoolsLog starts protocol event capture, discarding any previous
// capture. This is a local toggle and never touches the wire.
func (d *Driver) BeginDevtoolsLog() {
	d.rec.beginDevtoolsLog()
}

// EndDevtoolsLog stops capture and returns the recorded event stream.
func (d *Driver) EndDevtoolsLog() schemas.DevtoolsLog {
	return d.rec.endDevtoolsLog()
}

// BeginConsoleCapture starts buffering console and runtime messages.
func (d *Driver) BeginConsoleCapture() {
	d.rec.beginConsoleCapture()
}

// EndConsoleCapture stops buffering and returns the captured messages.
func (d *Driver) EndConsoleCapture() []schemas.ConsoleMessage {
	return d.rec.endConsoleCapture()
}

// BeginTrace starts trace collection with the fixed category set. Events
// stream in through the recorder until EndTrace.
func (d *Driver) BeginTrace(ctx context.Context) error {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	d.rec.beginTrace()

	err = chromedp.Run(opCtx, tracing.Start().
		WithTransferMode(tracing.TransferModeReportEvents).
		WithTraceConfig(&tracing.TraceConfig{
			IncludedCategories: traceCategories,
		}))
	if err != nil {
		return fmt.Errorf("starting trace collection: %w", err)
	}
	return nil
}

// EndTrace stops trace collection, waits for the browser to flush the
// buffered events and returns the assembled trace.
func (d *Driver) EndTrace(ctx context.Context) (*schemas.Trace, error) {
	opCtx, cancel, err := d.operationContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	done := d.rec.traceComplete()
	if err := chromedp.Run(opCtx, tracing.End()); err != nil {
		return nil, fmt.Errorf("stopping trace collection: %w", err)
	}

	select {
	case <-done:
	case <-opCtx.Done():
		return nil, fmt.Errorf("waiting for trace delivery: %w", opCtx.Err())
	case <-time.After(traceDeliveryTimeout):
		d.logger.Warn("Trace delivery did not complete in time; keeping the events received so far.")
	}
	return d.rec.takeTrace(), nil
}
