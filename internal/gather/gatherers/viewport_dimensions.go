// internal/gather/gatherers/viewport_dimensions.go
package gatherers

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// dimensionsScript reads the viewport geometry the page actually rendered
// with, which may differ from the requested emulation settings.
const dimensionsScript = `(() => ({
	inner_width: window.innerWidth,
	inner_height: window.innerHeight,
	outer_width: window.outerWidth,
	outer_height: window.outerHeight,
	device_pixel_ratio: window.devicePixelRatio,
}))()`

// Dimensions is the artifact value produced by ViewportDimensions.
type Dimensions struct {
	InnerWidth       int64   `json:"inner_width"`
	InnerHeight      int64   `json:"inner_height"`
	OuterWidth       int64   `json:"outer_width"`
	OuterHeight      int64   `json:"outer_height"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
}

// ViewportDimensions measures the viewport of the loaded page.
type ViewportDimensions struct {
	Base
}

func (ViewportDimensions) Name() string { return "viewport-dimensions" }

func (ViewportDimensions) AfterPass(ctx context.Context, pctx *schemas.PassContext, _ *schemas.LoadData) (any, error) {
	var dims Dimensions
	if err := pctx.Driver.Evaluate(ctx, dimensionsScript, &dims); err != nil {
		return nil, fmt.Errorf("reading viewport dimensions: %w", err)
	}
	return dims, nil
}
