package root

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"contactdir/internal/search"
)

func newSearchCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search companies and products",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			logger := opts.logger()
			catalog, err := opts.catalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			engine, err := search.New(catalog.All(), search.Options{
				ExcludedIDs: cfg.Search.ExcludeIDs,
				CacheSize:   -1,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			results := engine.Search(strings.Join(args, " "))
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return encodeJSON(out, results)
			}
			if len(results) == 0 {
				_, err := fmt.Fprintln(out, "no matches")
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Type, r.Name, r.CompanyID, strings.Join(r.Handles, " "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results to print (0 for all)")
	return cmd
}
