// internal/gather/gatherers/gatherers.go
// Package gatherers holds the built-in gatherers and the default pass
// configuration that wires them together. Each gatherer embeds Base and
// overrides only the hook phases it needs.
package gatherers

import (
	"context"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// Base is a no-op implementation of the gatherer hook phases.
type Base struct{}

func (Base) BeforePass(context.Context, *schemas.PassContext) (any, error) { return nil, nil }

func (Base) Pass(context.Context, *schemas.PassContext) (any, error) { return nil, nil }

func (Base) AfterPass(context.Context, *schemas.PassContext, *schemas.LoadData) (any, error) {
	return nil, nil
}
