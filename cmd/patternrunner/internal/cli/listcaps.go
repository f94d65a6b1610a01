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
	"github.com/kestrelfi/patternrunner/pricingpack"
)

// newListCapabilitiesCommand prints every capability identifier the engine
// would register at startup, without touching Postgres/Redis or loading
// patterns.
func newListCapabilitiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-capabilities",
		Short: "List every capability identifier the registry would serve",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			for _, c := range registry.ListCapabilities() {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}
