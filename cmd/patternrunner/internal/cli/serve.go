package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/engine"
	"github.com/kestrelfi/patternrunner/transport/httpapi"
)

func newServeCommand() *cobra.Command {
	var port int
	var patternDir string
	var reconcileSpec string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Request API HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.DefaultConfig()
			if err := cfg.LoadFromEnv(); err != nil {
				return err
			}
			if port > 0 {
				cfg.Port = port
			}
			if patternDir != "" {
				cfg.Execution.PatternDir = patternDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			eng, err := engine.Build(ctx, cfg)
			if err != nil {
				return err
			}

			if reconcileSpec != "" {
				if err := eng.Reconciler.Start(reconcileSpec); err != nil {
					return err
				}
				defer eng.Reconciler.Stop()
			}

			server := httpapi.New(eng)

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
				<-sigCh
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
				defer shutdownCancel()
				_ = server.Shutdown(shutdownCtx)
				_ = eng.Shutdown(shutdownCtx)
			}()

			if err := server.ListenAndServe(); err != nil && !isServerClosed(err) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP listen port (overrides PORT env)")
	cmd.Flags().StringVar(&patternDir, "pattern-dir", "", "directory of pattern definition files")
	cmd.Flags().StringVar(&reconcileSpec, "reconcile-cron", "", "cron schedule for pricing pack reconciliation (empty disables it)")

	return cmd
}

func isServerClosed(err error) bool {
	return err != nil && err.Error() == "http: Server closed"
}
