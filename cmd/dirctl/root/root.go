package root

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contactdir/internal/dataset"
	"contactdir/internal/gateway/config"
	"contactdir/internal/logging"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	dataDir    string
	logLevel   string
	jsonOut    bool
}

// NewRootCmd creates the root command for dirctl.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "dirctl",
		Short: "Query the contact directory and rehearse contributions against the simulated host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Directory of company JSON files (overrides DATASET_DIR)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print JSON instead of text")

	// Subcommands
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newContributeCmd(opts))
	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newVersionCmd(opts))

	return cmd
}

// Execute runs the root command with provided args.
func Execute(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func (o *options) config() (*config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, err
	}
	if dir := strings.TrimSpace(o.dataDir); dir != "" {
		cfg.Dataset.Source = config.SourceFile
		cfg.Dataset.Dir = dir
	}
	return cfg, nil
}

func (o *options) logger() *zap.Logger {
	logger, err := logging.New(o.logLevel, "local")
	if err != nil {
		return logging.Nop()
	}
	return logger
}

// catalog loads the dataset the file source points at.
func (o *options) catalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dataset.Catalog, error) {
	return dataset.Load(ctx, dataset.NewFileSource(cfg.Dataset.Dir), logger)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitError carries a process exit code out of RunE.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, msg: fmt.Sprintf(format, args...)}
}
