// Package cli wires the patternrunner binary's Cobra command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand constructs the patternrunner root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "patternrunner",
		Short:         "patternrunner runs declarative financial-analytics patterns against a registry of capability agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newValidatePatternsCommand())
	cmd.AddCommand(newListCapabilitiesCommand())

	return cmd
}
