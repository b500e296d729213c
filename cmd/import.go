package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tier-ranker/internal/model"
)

var importPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import catalog products from a JSON or YAML file",
	Long:  "Upserts catalog fields for each product in the file. Stored ranks, scores and calculation times are left untouched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		products, err := readProducts(importPath)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertProducts(ctx, products)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.Int64("upserted", n),
			zap.String("file", importPath),
		)
		return nil
	},
}

// readProducts decodes a product list. YAML files are decoded generically and
// re-encoded so the JSON field names apply to both formats.
func readProducts(path string) ([]model.ProductRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "import: read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, eris.Wrapf(err, "import: parse %s", path)
		}
		if data, err = json.Marshal(generic); err != nil {
			return nil, eris.Wrapf(err, "import: convert %s", path)
		}
	}

	var products []model.ProductRecord
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, eris.Wrapf(err, "import: decode %s", path)
	}

	seen := make(map[string]bool, len(products))
	for i, p := range products {
		if p.ID == "" {
			return nil, eris.Errorf("import: product #%d has no id", i+1)
		}
		if seen[p.ID] {
			return nil, eris.Errorf("import: duplicate product id %s", p.ID)
		}
		seen[p.ID] = true
	}
	return products, nil
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to a JSON or YAML product list (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
