// internal/gather/gatherers/defaults.go
package gatherers

import (
	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// DefaultPasses returns the standard two-pass configuration: a throttled,
// traced load for runtime observations, then a clean second load for content
// extraction.
func DefaultPasses() []schemas.PassConfig {
	return []schemas.PassConfig{
		{
			PassName:      "defaultPass",
			RecordTrace:   true,
			UseThrottling: true,
			Gatherers: []schemas.GathererConfig{
				{Instance: ConsoleMessages{}},
				{Instance: ViewportDimensions{}},
			},
		},
		{
			PassName: "contentPass",
			Gatherers: []schemas.GathererConfig{
				{Instance: MainDocumentContent{}},
				{Instance: MetaElements{}},
			},
		},
	}
}
