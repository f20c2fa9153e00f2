package root

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print dataset counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			catalog, err := opts.catalog(cmd.Context(), cfg, opts.logger())
			if err != nil {
				return err
			}
			st := catalog.Stats()
			if opts.jsonOut {
				return encodeJSON(cmd.OutOrStdout(), st)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "companies: %d\ncategories: %d\ncontacts: %d\nunique handles: %d\n",
				st.Companies, st.Categories, st.Contacts, st.UniqueHandles)
			return err
		},
	}
}
