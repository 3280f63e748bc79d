// internal/gather/base.go
package gather

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/manifest"
)

// PrepareBaseArtifacts builds the base artifact skeleton for a run. Values
// that depend on page loads (final URL, network user agent, manifest,
// stacks) start as placeholders and are filled in after the first pass.
func PrepareBaseArtifacts(ctx context.Context, driver schemas.Driver, settings *schemas.Settings, requestedURL string) (*schemas.BaseArtifacts, error) {
	version, err := driver.Version(ctx)
	if err != nil {
		return nil, err
	}

	return &schemas.BaseArtifacts{
		RunID:                uuid.NewString(),
		FetchTime:            time.Now().UTC(),
		URL:                  schemas.URLArtifact{RequestedURL: requestedURL},
		HostUserAgent:        version.UserAgent,
		TestedAsMobileDevice: testedAsMobileDevice(settings.EmulatedFormFactor, version.UserAgent),
		DevtoolsLogs:         make(map[string]schemas.DevtoolsLog),
		Traces:               make(map[string]*schemas.Trace),
		Settings:             settings,
		Warnings:             []string{},
	}, nil
}

// testedAsMobileDevice reports whether the run emulates a mobile device. An
// explicit form factor wins; otherwise the host browser's own user agent
// decides.
func testedAsMobileDevice(formFactor, hostUserAgent string) bool {
	switch formFactor {
	case schemas.FormFactorMobile:
		return true
	case schemas.FormFactorDesktop:
		return false
	}
	return strings.Contains(hostUserAgent, "Android") || strings.Contains(hostUserAgent, "Mobile")
}

// ResolveWebAppManifest fetches the page's manifest through the driver and
// parses it. A page without a manifest yields nil with no error.
func ResolveWebAppManifest(ctx context.Context, driver schemas.Driver, documentURL string) (*schemas.WebAppManifest, error) {
	raw, err := driver.FetchAppManifest(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil || raw.Data == "" {
		return nil, nil
	}
	return manifest.Parse(raw.Data, raw.URL, documentURL), nil
}
