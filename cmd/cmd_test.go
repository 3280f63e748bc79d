// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pharos-cli/internal/config"
)

// executeCommandNoPreRun is for testing argument and flag validation without
// triggering the config loading in PersistentPreRunE.
func executeCommandNoPreRun(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Create a new root command for each test run to ensure isolation.
	testRootCmd := NewRootCommand()

	buf := new(bytes.Buffer)
	testRootCmd.PersistentPreRunE = nil // Disable config loading for simple validation tests.
	testRootCmd.SetOut(buf)
	testRootCmd.SetErr(buf)
	testRootCmd.SetArgs(args)
	err := testRootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// createTempConfig helper
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "test-config-*.yaml")
	require.NoError(t, err)
	_, err = tmpfile.Write([]byte(content))
	require.NoError(t, err)
	tmpfile.Close()
	return tmpfile.Name()
}

func TestConfigFlagOverride(t *testing.T) {
	resetForTest(t)

	testRootCmd := NewRootCommand()

	configContent := `
gather:
  form_factor: desktop
  parallel_targets: 4
artifacts:
  compress: false
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	// Find the audit command from our test rootCmd instance.
	var auditCmd *cobra.Command
	for _, c := range testRootCmd.Commands() {
		if c.Use == "audit [targets...]" {
			auditCmd = c
			break
		}
	}
	require.NotNil(t, auditCmd)

	// Intercept the RunE function so no browser is launched; the
	// PersistentPreRunE still resolves the full configuration.
	var captured *config.Config
	auditCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		captured = cfg
		return nil
	}

	testRootCmd.SetArgs([]string{"--config", configFile, "audit", "--form-factor", "none", "-j", "3", "https://example.com"})
	err := testRootCmd.ExecuteContext(context.Background())
	require.NoError(t, err, "Command execution should not produce an error")

	require.NotNil(t, captured)
	// Flag wins over the config file.
	assert.Equal(t, "none", captured.Gather.FormFactor)
	assert.Equal(t, 3, captured.Gather.ParallelTargets)
	// Config file wins over defaults.
	assert.False(t, captured.Artifacts.Compress)
	// Untouched keys keep their defaults.
	assert.Equal(t, 45*time.Second, captured.Gather.MaxWaitForLoad)
	assert.Equal(t, 1.0, captured.Gather.PacePerSecond)
}

func TestAuditCmd_RequiredArgs(t *testing.T) {
	output, err := executeCommandNoPreRun(t, "audit")
	require.Error(t, err)
	assert.Contains(t, output, "Error: requires at least 1 arg(s), only received 0")
}
