package root

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contactdir/internal/dataset"
	"contactdir/internal/gateway/app"
	"contactdir/internal/gateway/config"
	"contactdir/internal/logging"
)

func newImportCmd(opts *options) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy the file dataset into the s3 or postgres source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if to != config.SourceS3 && to != config.SourcePostgres {
				return fmt.Errorf("--to must be %s or %s, got %q", config.SourceS3, config.SourcePostgres, to)
			}
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			logger := opts.logger()
			catalog, err := opts.catalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			dstCfg := *cfg
			dstCfg.Dataset.Source = to
			dst, closer, err := app.OpenSource(cmd.Context(), &dstCfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			n, err := copyCompanies(cmd, catalog, dst, logger)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d companies into %s\n", n, dst.Name())
			return err
		},
	}
	cmd.Flags().StringVar(&to, "to", config.SourceS3, "Destination source: s3 or postgres")
	return cmd
}

func copyCompanies(cmd *cobra.Command, catalog *dataset.Catalog, dst dataset.Writer, logger *zap.Logger) (int, error) {
	logger = logging.OrNop(logger)
	n := 0
	for _, c := range catalog.All() {
		if err := dst.Put(cmd.Context(), c); err != nil {
			return n, fmt.Errorf("put %s: %w", c.ID, err)
		}
		logger.Debug("imported company", zap.String("id", c.ID))
		n++
	}
	return n, nil
}
