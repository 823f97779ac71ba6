package main

import (
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/product-scorer/internal/model"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import normalized catalog entries from a YAML or JSON file",
	Long: `Loads catalog entries into the products table. The file holds either a
list of entries or one entry per YAML document. JSON is accepted as well.

Each entry has a product plus optional price and storefront snapshots:

  - product:
      id: B0001
      title: Stainless Water Bottle
      source: import
    price:
      current_price: 19.99
      bsr_rank: 4200`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importFilePath)
		if err != nil {
			return eris.Wrap(err, "import: open file")
		}
		defer f.Close() //nolint:errcheck

		entries, err := parseCatalog(f)
		if err != nil {
			return eris.Wrapf(err, "import: parse %s", importFilePath)
		}

		st, err := openStore(ctx, "store")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertProducts(ctx, entries)
		if err != nil {
			return eris.Wrap(err, "import: upsert products")
		}

		zap.L().Info("import complete",
			zap.Int64("upserted", n),
			zap.String("file", importFilePath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to catalog file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

// parseCatalog decodes every YAML document in r. A document is either a
// single entry or a list of entries. Entries without a product id are
// rejected, and a later duplicate id replaces the earlier entry.
func parseCatalog(r io.Reader) ([]model.CatalogEntry, error) {
	dec := yaml.NewDecoder(r)

	var entries []model.CatalogEntry
	for doc := 1; ; doc++ {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "document %d", doc)
		}
		if len(node.Content) == 0 {
			continue
		}

		if node.Content[0].Kind == yaml.SequenceNode {
			var list []model.CatalogEntry
			if err := node.Decode(&list); err != nil {
				return nil, eris.Wrapf(err, "document %d", doc)
			}
			entries = append(entries, list...)
			continue
		}

		var e model.CatalogEntry
		if err := node.Decode(&e); err != nil {
			return nil, eris.Wrapf(err, "document %d", doc)
		}
		entries = append(entries, e)
	}

	index := make(map[string]int, len(entries))
	out := make([]model.CatalogEntry, 0, len(entries))
	for i, e := range entries {
		if e.Product.ID == "" {
			return nil, eris.Errorf("entry %d: product id is required", i+1)
		}
		if at, ok := index[e.Product.ID]; ok {
			out[at] = e
			continue
		}
		index[e.Product.ID] = len(out)
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, eris.New("no catalog entries found")
	}
	return out, nil
}
