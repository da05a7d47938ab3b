package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/feed"
)

var importCmd = &cobra.Command{
	Use:   "import <supplier>=<path-or-url> [<supplier>=<path-or-url>...]",
	Short: "Load supplier price lists into the raw offer table",
	Long: "Fetches each price list (local file, http(s) or ftp URL), parses it per the " +
		"supplier's configured column profile, and replaces that supplier's raw offers wholesale.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		jobs := make([]feed.Job, 0, len(args))
		for _, arg := range args {
			supplier, ref, ok := strings.Cut(arg, "=")
			if !ok || supplier == "" || ref == "" {
				return eris.Errorf("import: expected <supplier>=<path-or-url>, got %q", arg)
			}
			jobs = append(jobs, feed.Job{SupplierID: supplier, Ref: ref})
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		results, err := initImporter(st).ImportAll(ctx, jobs, cfg.Import.Parallelism)
		if len(results) > 0 {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SUPPLIER\tTOTAL\tIMPORTED\tSKIPPED")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", r.SupplierID, r.Total, r.Imported, r.Skipped)
			}
			w.Flush()
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
