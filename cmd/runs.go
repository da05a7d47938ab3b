package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List consolidation run history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
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

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tCONSOLIDATED\tSKIPPED\tERROR")
		for _, r := range runs {
			dur := ""
			if r.CompletedAt != nil {
				dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			consolidated, skipped := "", ""
			if r.Summary != nil {
				consolidated = fmt.Sprintf("%d", r.Summary.Consolidated)
				skipped = fmt.Sprintf("%d", r.Summary.SkippedOnError)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				truncateID(r.ID), r.Status,
				r.StartedAt.Format("2006-01-02 15:04"), dur,
				consolidated, skipped, r.Error)
		}
		w.Flush()
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "max number of runs to display")
	rootCmd.AddCommand(runsCmd)
}
