package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tier-ranker/internal/integrity"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/report"
	"github.com/sells-group/tier-ranker/internal/store"
	"github.com/sells-group/tier-ranker/internal/tables"
)

var (
	checkProductID     string
	checkFormat        string
	checkFailOnInvalid bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Audit stored ranks for integrity problems",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, err := report.ParseFormat(checkFormat)
		if err != nil {
			return err
		}
		tb, err := loadTables()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		results, err := runCheck(ctx, st, tb, checkProductID)
		if err != nil {
			return err
		}
		if err := report.New(format, os.Stdout).Integrity(results); err != nil {
			return err
		}

		if checkFailOnInvalid {
			invalid := 0
			for _, r := range results {
				if !r.IsValid {
					invalid++
				}
			}
			if invalid > 0 {
				return eris.Errorf("check: %d product(s) failed integrity checks", invalid)
			}
		}
		return nil
	},
}

// runCheck checks one product when productID is set, otherwise every in-stock product.
func runCheck(ctx context.Context, st store.Store, tb *tables.Tables, productID string) ([]integrity.IntegrityCheckResult, error) {
	var products []model.ProductRecord
	if productID != "" {
		p, err := st.GetProduct(ctx, productID)
		if err != nil {
			return nil, eris.Wrap(err, "check")
		}
		products = []model.ProductRecord{*p}
	} else {
		var err error
		if products, err = st.ListProducts(ctx); err != nil {
			return nil, eris.Wrap(err, "check: list products")
		}
	}
	return integrity.NewChecker(tb, integrityOptions()).CheckAll(products), nil
}

func init() {
	checkCmd.Flags().StringVar(&checkProductID, "product", "", "check a single product by ID")
	checkCmd.Flags().StringVar(&checkFormat, "format", "table", "report format (table, markdown, json)")
	checkCmd.Flags().BoolVar(&checkFailOnInvalid, "fail-on-invalid", false, "exit non-zero when any product has integrity errors")
	rootCmd.AddCommand(checkCmd)
}
