package root

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	contrib "contactdir/internal/contribution"
	"contactdir/internal/gateway/entity"
	contribsvc "contactdir/internal/gateway/service/contribution"
	"contactdir/internal/githost"
)

// exit code for a run that ended in the error phase.
const exitContributionFailed = 3

func newContributeCmd(opts *options) *cobra.Command {
	var (
		companyPath string
		logoPath    string
		isEdit      bool
		token       string
	)
	cmd := &cobra.Command{
		Use:   "contribute",
		Short: "Rehearse a contribution against the simulated host",
		Long: "Runs the fork, branch, commit and pull request sequence for one company\n" +
			"against an in-process simulated host and prints every progress state.",
		Args: cobra.NoArgs,
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

			raw, err := os.ReadFile(companyPath)
			if err != nil {
				return fmt.Errorf("read company: %w", err)
			}
			company, err := entity.DecodeCompany(raw)
			if err != nil {
				return fmt.Errorf("decode %s: %w", companyPath, err)
			}
			logo, err := os.ReadFile(logoPath)
			if err != nil {
				return fmt.Errorf("read logo: %w", err)
			}

			timing := contrib.SimulatedTiming()
			timing.PhasePause = cfg.Sim.PhasePause
			svc := contribsvc.New(contribsvc.Config{
				TestMode: true,
				Upstream: githost.Upstream{
					Owner:         cfg.Upstream.Owner,
					Repo:          cfg.Upstream.Repo,
					DefaultBranch: cfg.Upstream.DefaultBranch,
				},
				Sim: githost.SimulatedConfig{
					MinDelay: cfg.Sim.MinDelay,
					MaxDelay: cfg.Sim.MaxDelay,
				},
				Timing: &timing,
			}, catalog, logger)
			defer func() { _ = svc.Close() }()

			out := cmd.OutOrStdout()
			emit := func(s contrib.State) {
				view := contrib.View(s)
				if opts.jsonOut {
					_ = encodeJSON(out, view)
					return
				}
				fmt.Fprintln(out, describe(view))
			}
			sub := contrib.Submission{Company: company, LogoSVG: string(logo), IsEdit: isEdit}
			_, final, err := svc.Submit(cmd.Context(), githost.Credential(token), sub, emit)
			if err != nil {
				return err
			}
			if f, ok := final.(contrib.Failed); ok {
				return exitf(exitContributionFailed, "contribution failed: %s", f.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&companyPath, "company", "", "Path to the company JSON record")
	cmd.Flags().StringVar(&logoPath, "logo", "", "Path to the SVG logo")
	cmd.Flags().BoolVar(&isEdit, "edit", false, "Submit as an edit of an existing company")
	cmd.Flags().StringVar(&token, "token", "dirctl", "Credential presented to the simulated host")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("logo")
	return cmd
}

func describe(v contrib.StateView) string {
	var b strings.Builder
	b.WriteString(string(v.Phase))
	switch {
	case v.PRURL != "":
		fmt.Fprintf(&b, " %s (#%d, branch %s)", v.PRURL, v.PRNumber, v.Branch)
	case v.Branch != "":
		fmt.Fprintf(&b, " branch %s", v.Branch)
	case v.Message != "":
		b.WriteString(": " + v.Message)
	}
	return b.String()
}
