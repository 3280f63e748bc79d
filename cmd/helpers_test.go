// File: cmd/helpers_test.go
package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/config"
	"github.com/xkilldash9x/pharos-cli/internal/observability"
	"github.com/xkilldash9x/pharos-cli/internal/store"
)

// resetForTest clears package-level command state between tests and pins the
// global logger to a silent level so command runs stay quiet.
func resetForTest(t *testing.T) {
	t.Helper()
	cfgFile = ""
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
}

type savedRun struct {
	bundle *schemas.ArtifactBundle
	path   string
}

// stubRegistry records calls in place of the real store.
type stubRegistry struct {
	ensured bool
	saved   []savedRun
	runs    []store.RunSummary

	schemaErr error
	saveErr   error
	listErr   error
}

func (s *stubRegistry) EnsureSchema(context.Context) error {
	s.ensured = true
	return s.schemaErr
}

func (s *stubRegistry) SaveRun(_ context.Context, bundle *schemas.ArtifactBundle, path string) error {
	s.saved = append(s.saved, savedRun{bundle: bundle, path: path})
	return s.saveErr
}

func (s *stubRegistry) ListRuns(context.Context, int) ([]store.RunSummary, error) {
	return s.runs, s.listErr
}

// stubProvider hands out a fixed registry and records whether its cleanup ran.
type stubProvider struct {
	reg       registry
	createErr error
	cleaned   bool
}

func (p *stubProvider) Create(context.Context, *config.Config) (registry, func(), error) {
	if p.createErr != nil {
		return nil, nil, p.createErr
	}
	return p.reg, func() { p.cleaned = true }, nil
}

// failingDriver fails the connect so no other driver method is ever reached.
type failingDriver struct {
	schemas.Driver
}

func (failingDriver) Connect(context.Context) error {
	return errors.New("no browser available")
}

func (failingDriver) Close(context.Context) error { return nil }
