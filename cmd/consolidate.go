package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/model"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Rebuild the consolidated catalog from raw offers",
	Long: "Runs one full consolidation: filters raw offers, groups them by EAN, picks the " +
		"cheapest supplier per product, applies pricing rules, and swaps the catalog atomically.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("consolidate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		engine, err := initEngine(st)
		if err != nil {
			return err
		}

		summary, runErr := engine.Run(ctx)
		if summary != nil {
			printSummary(summary)
		}
		return runErr
	},
}

func printSummary(s *model.RunSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Raw offers:\t%d\n", s.RawTotal)
	fmt.Fprintf(w, "Filtered in:\t%d\n", s.FilteredIn)
	fmt.Fprintf(w, "Filtered out:\t%d\n", s.FilteredOut)
	fmt.Fprintf(w, "Consolidated:\t%d\n", s.Consolidated)
	fmt.Fprintf(w, "Priced:\t%d\n", s.Priced)
	fmt.Fprintf(w, "Skipped on error:\t%d\n", s.SkippedOnError)
	w.Flush()
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
}
