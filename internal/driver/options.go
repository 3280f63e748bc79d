// internal/driver/options.go
package driver

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/pharos-cli/internal/config"
)

// execAllocatorOptions maps the browser configuration onto chromedp allocator
// options. Defaults are declared explicitly rather than inherited from
// chromedp.DefaultExecAllocatorOptions so the launched flag set is fully
// known.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("mute-audio", true),
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	for _, arg := range cfg.Args {
		key := strings.TrimLeft(arg, "-")
		if key == "" {
			continue
		}
		// key=value flags need splitting; bare flags are booleans.
		if name, value, found := strings.Cut(key, "="); found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}
