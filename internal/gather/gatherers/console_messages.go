// internal/gather/gatherers/console_messages.go
package gatherers

import (
	"context"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// ConsoleMessages records console API calls and runtime exceptions emitted
// between the start of its pass and the end of the page load.
type ConsoleMessages struct {
	Base
}

func (ConsoleMessages) Name() string { return "console-messages" }

func (ConsoleMessages) BeforePass(_ context.Context, pctx *schemas.PassContext) (any, error) {
	pctx.Driver.BeginConsoleCapture()
	return nil, nil
}

func (ConsoleMessages) AfterPass(_ context.Context, pctx *schemas.PassContext, _ *schemas.LoadData) (any, error) {
	messages := pctx.Driver.EndConsoleCapture()
	if messages == nil {
		messages = []schemas.ConsoleMessage{}
	}
	return messages, nil
}
