package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kjd1374/shopping-sub000/ranking"
	"github.com/spf13/cobra"
)

func newCatalogCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and list the ranking category catalog",
		Long: `Loads the category catalog (the built-in one, or --file / CONCIERGE_RANKING_CATALOG)
and prints every category with its partition key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = cfg.Ranking.CatalogFile
			}
			catalog, err := ranking.LoadCatalog(file)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tPRODUCT_TYPE\tLABEL\tURL")
			for _, c := range catalog.Categories {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Key, catalog.PartitionKey(c.Key), c.Label, c.URL)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Catalog YAML file")
	return cmd
}
