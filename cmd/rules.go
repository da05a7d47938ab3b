package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/rules"
	"github.com/sells-group/catalog-cli/internal/store"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage filter and pricing rules",
}

// -- rules list --

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active filter and pricing rules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRuleStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filters, err := st.ActiveFilterRules(ctx)
		if err != nil {
			return err
		}
		pricing, err := st.ActivePricingRules(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILTER RULES")
		fmt.Fprintln(w, "ID\tNAME\tBRAND\tCATEGORY\tACTION\tPRIORITY")
		for _, r := range filters {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				truncateID(r.ID), r.Name, constraintLabel(r.Brand), constraintLabel(r.Category), r.Action, r.Priority)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "PRICING RULES")
		fmt.Fprintln(w, "ID\tNAME\tSUPPLIER\tBRAND\tCATEGORY\tEAN\tMARKUP%\tFIXED\tSHIPPING\tPRIORITY")
		for _, r := range pricing {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				truncateID(r.ID), r.Name,
				constraintLabel(r.SupplierID), constraintLabel(r.Brand),
				constraintLabel(r.Category), constraintLabel(r.ProductEAN),
				r.MarkupPercent.String(), r.MarkupFixed.String(), r.ShippingCost.String(), r.Priority)
		}
		w.Flush()
		return nil
	},
}

// -- rules add-filter --

var addFilterCmd = &cobra.Command{
	Use:   "add-filter",
	Short: "Create or update a filter rule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		action, _ := cmd.Flags().GetString("action")
		if action != string(model.FilterInclude) && action != string(model.FilterExclude) {
			return eris.Errorf("rules: action must be include or exclude, got %q", action)
		}

		id, _ := cmd.Flags().GetString("id")
		name, _ := cmd.Flags().GetString("name")
		brand, _ := cmd.Flags().GetString("brand")
		category, _ := cmd.Flags().GetString("category")
		priority, _ := cmd.Flags().GetInt("priority")
		active, _ := cmd.Flags().GetBool("active")

		st, err := openRuleStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rule := model.FilterRule{
			ID:       id,
			Name:     name,
			Brand:    model.ExactCanonical(brand),
			Category: model.ExactCanonical(category),
			Action:   model.FilterAction(action),
			Priority: priority,
			Active:   active,
		}
		if err := st.SaveFilterRule(ctx, rule); err != nil {
			return err
		}
		fmt.Println("filter rule saved")
		return nil
	},
}

// -- rules add-pricing --

var addPricingCmd = &cobra.Command{
	Use:   "add-pricing",
	Short: "Create or update a pricing rule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		id, _ := cmd.Flags().GetString("id")
		name, _ := cmd.Flags().GetString("name")
		supplier, _ := cmd.Flags().GetString("supplier")
		brand, _ := cmd.Flags().GetString("brand")
		category, _ := cmd.Flags().GetString("category")
		ean, _ := cmd.Flags().GetString("ean")
		priority, _ := cmd.Flags().GetInt("priority")
		active, _ := cmd.Flags().GetBool("active")

		pct, err := decimalFlag(cmd, "markup-percent")
		if err != nil {
			return err
		}
		fixed, err := decimalFlag(cmd, "markup-fixed")
		if err != nil {
			return err
		}
		shipping, err := decimalFlag(cmd, "shipping")
		if err != nil {
			return err
		}

		st, err := openRuleStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rule := model.PricingRule{
			ID:            id,
			Name:          name,
			SupplierID:    model.ExactCanonical(supplier),
			Brand:         model.ExactCanonical(brand),
			Category:      model.ExactCanonical(category),
			ProductEAN:    model.ExactCanonical(ean),
			MarkupPercent: pct,
			MarkupFixed:   fixed,
			ShippingCost:  shipping,
			Priority:      priority,
			Active:        active,
		}
		if err := st.SavePricingRule(ctx, rule); err != nil {
			return err
		}
		fmt.Println("pricing rule saved")
		return nil
	},
}

// -- rules check --

var checkRuleCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run the filter engine against a brand/category pair",
	Long: "Evaluates the active filter rules against the given raw brand and " +
		"category values and prints the decision without touching the catalog.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		brand, _ := cmd.Flags().GetString("brand")
		category, _ := cmd.Flags().GetString("category")
		if brand == "" && category == "" {
			return eris.New("rules: check needs --brand and/or --category")
		}

		brands, categories, err := initMatchers()
		if err != nil {
			return err
		}

		st, err := openRuleStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		engine := rules.NewFilterEngine(brands, categories)
		return runRulesCheck(cmd.Context(), st, engine, brand, category, os.Stdout)
	},
}

func runRulesCheck(ctx context.Context, st store.Store, engine *rules.FilterEngine, brand, category string, out io.Writer) error {
	active, err := st.ActiveFilterRules(ctx)
	if err != nil {
		return err
	}
	d := engine.Evaluate(active, brand, category)

	verdict := "exclude"
	if d.Include {
		verdict = "include"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DECISION\t%s\n", verdict)
	if d.RuleID != "" {
		fmt.Fprintf(w, "RULE\t%s\n", truncateID(d.RuleID))
	}
	fmt.Fprintf(w, "REASON\t%s\n", d.Reason)
	return w.Flush()
}

func openRuleStore(cmd *cobra.Command) (store.Store, error) {
	if err := cfg.Validate("rules"); err != nil {
		return nil, err
	}
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, eris.Wrapf(err, "rules: parse --%s %q", name, raw)
	}
	return d, nil
}

func constraintLabel(c model.RuleConstraint) string {
	if !c.IsSet() {
		return "*"
	}
	return c.Name()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	addFilterCmd.Flags().String("id", "", "rule id (empty creates a new rule)")
	addFilterCmd.Flags().String("name", "", "human-readable rule name")
	addFilterCmd.Flags().String("brand", "", "canonical brand constraint (empty = any)")
	addFilterCmd.Flags().String("category", "", "canonical category constraint (empty = any)")
	addFilterCmd.Flags().String("action", "include", "include or exclude")
	addFilterCmd.Flags().Int("priority", 0, "evaluation priority (lower wins)")
	addFilterCmd.Flags().Bool("active", true, "whether the rule is active")

	addPricingCmd.Flags().String("id", "", "rule id (empty creates a new rule)")
	addPricingCmd.Flags().String("name", "", "human-readable rule name")
	addPricingCmd.Flags().String("supplier", "", "supplier constraint (empty = any)")
	addPricingCmd.Flags().String("brand", "", "canonical brand constraint (empty = any)")
	addPricingCmd.Flags().String("category", "", "canonical category constraint (empty = any)")
	addPricingCmd.Flags().String("ean", "", "product EAN constraint (empty = any)")
	addPricingCmd.Flags().String("markup-percent", "0", "percentage markup on purchase price")
	addPricingCmd.Flags().String("markup-fixed", "0", "fixed markup amount")
	addPricingCmd.Flags().String("shipping", "0", "shipping cost added before markup")
	addPricingCmd.Flags().Int("priority", 0, "evaluation priority within a specificity tier (lower wins)")
	addPricingCmd.Flags().Bool("active", true, "whether the rule is active")

	checkRuleCmd.Flags().String("brand", "", "raw brand value to test")
	checkRuleCmd.Flags().String("category", "", "raw category value to test")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(addFilterCmd)
	rulesCmd.AddCommand(addPricingCmd)
	rulesCmd.AddCommand(checkRuleCmd)
	rootCmd.AddCommand(rulesCmd)
}
