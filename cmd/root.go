// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/internal/config"
	"github.com/xkilldash9x/pharos-cli/internal/observability"
)

var cfgFile string

// contextKey scopes values stored on the command context.
type contextKey string

// configKey holds the validated *config.Config placed on the context by the
// root command for its subcommands.
const configKey contextKey = "config"

// flagBindings maps command flag names to the configuration keys they
// override. Only flags the running command actually defines get bound, so
// subcommands share this table without colliding.
var flagBindings = map[string]string{
	"form-factor":  "gather.form_factor",
	"user-agent":   "gather.user_agent",
	"max-wait":     "gather.max_wait_for_load",
	"keep-storage": "gather.disable_storage_reset",
	"parallel":     "gather.parallel_targets",
	"pace":         "gather.pace_per_second",
	"output":       "artifacts.dir",
}

// NewRootCommand builds the root command with all subcommands attached.
// A fresh instance is created for every execution so flag and viper state
// never leaks between runs.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pharos",
		Short: "Pharos gathers performance artifacts from live pages over the devtools protocol.",
		// Version is dynamically set at build time. See cmd/version.go.
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This runs before any subcommand, setting up config and logging.
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				// Initialize a fallback logger if config loading fails early.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pharos"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pharos"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting Pharos", zap.String("version", Version))

			// Store the validated config on the context for subcommands.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	provider := NewRegistryProvider()
	rootCmd.AddCommand(newAuditCmd(provider, defaultDriverFactory))
	rootCmd.AddCommand(newRunsCmd(provider))

	return rootCmd
}

// Execute runs the CLI against the provided signal-aware context and returns
// any execution error after logging it.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// getConfigFromContext retrieves the validated configuration stored by the
// root command's PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}

// initializeConfig layers the config file, PHAROS_* environment variables and
// the running command's override flags onto v, in ascending precedence.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PHAROS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	return bindCommandFlags(cmd, v)
}

// bindCommandFlags binds the flags the running command defines to their
// configuration keys. Bound flags only take effect when changed, so config
// file and environment values survive unless the user passes the flag.
func bindCommandFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagBindings {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}
