package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
	"github.com/xkilldash9x/pharos-cli/internal/artifacts"
	"github.com/xkilldash9x/pharos-cli/internal/config"
	"github.com/xkilldash9x/pharos-cli/internal/driver"
	"github.com/xkilldash9x/pharos-cli/internal/gather"
	"github.com/xkilldash9x/pharos-cli/internal/gather/gatherers"
	"github.com/xkilldash9x/pharos-cli/internal/observability"
	"github.com/xkilldash9x/pharos-cli/internal/store"
)

// registry is the slice of the run store the commands depend on. The
// abstraction allows tests to inject a mock instead of a live database.
type registry interface {
	EnsureSchema(ctx context.Context) error
	SaveRun(ctx context.Context, bundle *schemas.ArtifactBundle, artifactPath string) error
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
}

// registryProvider creates a registry together with a cleanup function that
// releases its resources.
type registryProvider interface {
	Create(ctx context.Context, cfg *config.Config) (registry, func(), error)
}

// defaultRegistryProvider is the production implementation backed by a
// PostgreSQL connection pool.
type defaultRegistryProvider struct{}

// NewRegistryProvider returns the production registry provider.
func NewRegistryProvider() registryProvider {
	return &defaultRegistryProvider{}
}

func (p *defaultRegistryProvider) Create(ctx context.Context, cfg *config.Config) (registry, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (PHAROS_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize run registry: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return st, cleanup, nil
}

// driverFactory builds the browser driver for one target. Swapped in tests.
type driverFactory func(cfg config.BrowserConfig, logger *zap.Logger) schemas.Driver

// defaultDriverFactory builds the production chromedp-backed driver.
func defaultDriverFactory(cfg config.BrowserConfig, logger *zap.Logger) schemas.Driver {
	return driver.New(cfg, logger)
}

// newAuditCmd creates and configures the `audit` command.
func newAuditCmd(provider registryProvider, newDriver driverFactory) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit [targets...]",
		Short: "Runs the gathering passes against the specified targets",
		Long: `Connects a headless browser to each target, loads the page through the
configured gathering passes, and writes one artifact bundle per target.
When a database URL is configured the run is also recorded in the registry.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			return runAudit(ctx, logger, cfg, args, provider, newDriver)
		},
	}

	// Override flags bound to config keys via flagBindings in root.go.
	auditCmd.Flags().String("form-factor", "", "Emulated form factor: mobile, desktop or none. (Overrides config/env)")
	auditCmd.Flags().String("user-agent", "", "User agent sent with every request. (Overrides config/env)")
	auditCmd.Flags().Duration("max-wait", 0, "Maximum time to wait for the page load. (Overrides config/env)")
	auditCmd.Flags().Bool("keep-storage", false, "Keep origin storage instead of clearing it before the run. (Overrides config/env)")
	auditCmd.Flags().IntP("parallel", "j", 0, "Number of targets audited concurrently. (Overrides config/env)")
	auditCmd.Flags().Float64("pace", 0, "Target starts per second across all workers. (Overrides config/env)")
	auditCmd.Flags().StringP("output", "o", "", "Directory where artifact bundles are written. (Overrides config/env)")

	return auditCmd
}

// auditOutcome records the result of auditing a single target.
type auditOutcome struct {
	target string
	runID  string
	path   string
	err    error
}

// runAudit contains the core, testable logic for the audit command. Targets
// are audited concurrently up to gather.parallel_targets, with new runs
// started no faster than gather.pace_per_second.
func runAudit(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	targets []string,
	provider registryProvider,
	newDriver driverFactory,
) error {
	normalized := make([]string, len(targets))
	for i, target := range targets {
		normalized[i] = normalizeTarget(target)
	}

	artifactsDir, err := cfg.ArtifactsDir()
	if err != nil {
		return err
	}
	writer := artifacts.NewWriter(artifactsDir, cfg.Artifacts.Compress, logger)

	var reg registry
	if cfg.Database.URL != "" {
		created, cleanup, err := provider.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize the run registry: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		if err := created.EnsureSchema(ctx); err != nil {
			return err
		}
		reg = created
	}

	logger.Info("Starting gathering runs",
		zap.Strings("targets", normalized),
		zap.String("form_factor", cfg.Gather.FormFactor),
		zap.Int("parallel_targets", cfg.Gather.ParallelTargets),
		zap.Float64("pace_per_second", cfg.Gather.PacePerSecond),
	)

	pace := rate.Inf
	if cfg.Gather.PacePerSecond > 0 {
		pace = rate.Limit(cfg.Gather.PacePerSecond)
	}
	limiter := rate.NewLimiter(pace, 1)

	// Outcomes are collected per slot so one failing target never aborts the
	// others; the summary below decides the exit status.
	outcomes := make([]auditOutcome, len(normalized))

	var g errgroup.Group
	g.SetLimit(cfg.Gather.ParallelTargets)
	for i, target := range normalized {
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				outcomes[i] = auditOutcome{target: target, err: err}
				return nil
			}
			outcomes[i] = auditTarget(ctx, logger, cfg, writer, reg, newDriver, target)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, o := range outcomes {
		if o.err == nil {
			succeeded++
			continue
		}
		logger.Error("Target audit failed", zap.String("target", o.target), zap.Error(o.err))
	}

	fmt.Printf("\nAudit complete. %d of %d targets gathered.\n", succeeded, len(normalized))
	for _, o := range outcomes {
		if o.err == nil {
			fmt.Printf("  %s  run %s  ->  %s\n", o.target, o.runID, o.path)
		}
	}

	if failed := len(normalized) - succeeded; failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(normalized))
	}
	return nil
}

// auditTarget runs one full gathering run against a single target and
// persists the resulting bundle.
func auditTarget(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	writer *artifacts.Writer,
	reg registry,
	newDriver driverFactory,
	target string,
) auditOutcome {
	runLogger := logger.With(zap.String("target", target))

	drv := newDriver(cfg.Browser, runLogger)
	runner := gather.NewRunner()

	bundle, err := runner.Run(ctx, schemas.RunOptions{
		Driver:       drv,
		RequestedURL: target,
		Settings:     cfg.GatherSettings(),
	}, gatherers.DefaultPasses())
	if err != nil {
		return auditOutcome{target: target, err: fmt.Errorf("gathering failed: %w", err)}
	}

	path, err := writer.Write(bundle)
	if err != nil {
		return auditOutcome{target: target, err: fmt.Errorf("writing artifacts: %w", err)}
	}

	if reg != nil {
		// The bundle is already safe on disk; a registry hiccup should not
		// fail the run.
		if err := reg.SaveRun(ctx, bundle, path); err != nil {
			runLogger.Warn("Failed to record the run in the registry.", zap.Error(err))
		}
	}

	runLogger.Info("Gathering run complete",
		zap.String("run_id", bundle.Base.RunID),
		zap.String("final_url", bundle.Base.URL.FinalURL),
		zap.Int("warnings", len(bundle.Base.Warnings)),
		zap.String("artifacts", path),
	)
	return auditOutcome{target: target, runID: bundle.Base.RunID, path: path}
}

// normalizeTarget ensures the target carries an http(s) scheme so the scope
// of the run is unambiguous.
func normalizeTarget(target string) string {
	trimmed := strings.TrimSpace(target)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	return "https://" + trimmed
}
