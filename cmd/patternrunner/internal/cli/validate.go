package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelfi/patternrunner/agents/alerts"
	"github.com/kestrelfi/patternrunner/agents/charts"
	"github.com/kestrelfi/patternrunner/agents/claudeagent"
	"github.com/kestrelfi/patternrunner/agents/financialanalyst"
	"github.com/kestrelfi/patternrunner/agents/macrohound"
	"github.com/kestrelfi/patternrunner/agents/optimizer"
	"github.com/kestrelfi/patternrunner/agents/ratingsagent"
	"github.com/kestrelfi/patternrunner/agents/reports"
	"github.com/kestrelfi/patternrunner/capability"
	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/pattern"
	"github.com/kestrelfi/patternrunner/pricingpack"
)

// newValidatePatternsCommand offline-validates every pattern file under a
// directory against a real Capability Registry, without starting the HTTP
// server or reaching out to Postgres/Redis — useful in CI for pattern
// authors.
func newValidatePatternsCommand() *cobra.Command {
	var patternDir string

	cmd := &cobra.Command{
		Use:   "validate-patterns",
		Short: "Validate pattern definition files without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if patternDir == "" {
				patternDir = core.DefaultConfig().Execution.PatternDir
			}

			logger := &core.NoOpLogger{}
			registry := capability.New(logger)
			for _, agent := range []capability.Agent{
				financialanalyst.New(),
				macrohound.New(pricingpack.NewInMemoryStore()),
				ratingsagent.New(),
				claudeagent.New(""),
				optimizer.New(),
				charts.New(),
				reports.New(),
				alerts.New(),
			} {
				if err := registry.Register(agent); err != nil {
					return err
				}
			}
			registry.Freeze()

			loader := pattern.NewLoader(patternDir, registry, logger)
			if err := loader.Load(); err != nil {
				return err
			}

			loaded := loader.List()
			fmt.Fprintf(cmd.OutOrStdout(), "%d pattern(s) valid in %s\n", len(loaded), patternDir)
			for _, p := range loaded {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s@%s (%d steps)\n", p.ID, p.Version, len(p.Steps))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&patternDir, "pattern-dir", "", "directory of pattern definition files")
	return cmd
}
