// internal/driver/context.go
package driver

import (
	"context"
	"time"
)

// combineContext merges two context lifetimes. The result inherits values and
// cancellation from primary and is additionally canceled when secondary ends.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation. chromedp contexts carry the target connection as
// a value, so cleanup work needs this to outlive a canceled operation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// detach returns a context that keeps ctx's values but none of its lifetime.
func detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
