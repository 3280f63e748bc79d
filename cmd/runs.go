package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/pharos-cli/internal/store"
)

// newRunsCmd creates and configures the `runs` command.
func newRunsCmd(provider registryProvider) *cobra.Command {
	var limit int

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Lists recent gathering runs recorded in the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			reg, cleanup, err := provider.Create(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize the run registry: %w", err)
			}
			if cleanup != nil {
				defer cleanup()
			}

			runs, err := reg.ListRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	runsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	return runsCmd
}

// printRuns renders the run summaries as an aligned table.
func printRuns(w io.Writer, runs []store.RunSummary) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded runs.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tREQUESTED URL\tFINAL URL\tFORM\tBENCHMARK\tFETCHED")
	for _, r := range runs {
		form := "desktop"
		if r.TestedAsMobileDevice {
			form = "mobile"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f\t%s\n",
			r.RunID, r.RequestedURL, r.FinalURL, form, r.BenchmarkIndex,
			r.FetchTime.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
