package root

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"contactdir/internal/buildinfo"
)

func newVersionCmd(opts *options) *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if short || !opts.jsonOut {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "dirctl %s\n", buildinfo.Summary())
				return err
			}
			return encodeJSON(cmd.OutOrStdout(), map[string]any{
				"version":  buildinfo.Version,
				"commit":   buildinfo.Commit,
				"date":     buildinfo.Date,
				"built_by": buildinfo.BuiltBy,
				"go":       runtime.Version(),
				"go_os":    runtime.GOOS,
				"go_arch":  runtime.GOARCH,
			})
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version line")
	return cmd
}
