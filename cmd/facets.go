package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/facet"
)

var (
	facetBrands     []string
	facetCategories []string
)

var facetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "Show brand and category counts for the current catalog",
	Long: "Computes faceted navigation counts over the consolidated catalog. Selected " +
		"brands constrain the category counts and vice versa; zero-count options are kept.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("facets"); err != nil {
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

		products, err := st.ListProducts(ctx)
		if err != nil {
			return err
		}

		calc, err := initFacets()
		if err != nil {
			return err
		}
		result := calc.Counts(products, facet.Criteria{
			Brands:     facetBrands,
			Categories: facetCategories,
		})

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		printFacetGroup(w, "BRAND", result.Brands)
		fmt.Fprintln(w)
		printFacetGroup(w, "CATEGORY", result.Categories)
		w.Flush()
		return nil
	},
}

func printFacetGroup(w *tabwriter.Writer, label string, counts map[string]int) {
	fmt.Fprintf(w, "%s\tCOUNT\n", label)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, counts[name])
	}
}

func init() {
	facetsCmd.Flags().StringArrayVar(&facetBrands, "brand", nil, "selected brand filter (repeatable)")
	facetsCmd.Flags().StringArrayVar(&facetCategories, "category", nil, "selected category filter (repeatable)")
	rootCmd.AddCommand(facetsCmd)
}
