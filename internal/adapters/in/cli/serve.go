package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/proxied/internal/app"
	"github.com/bnema/proxied/pkg/logger"
)

// newServeCmd creates the serve command.
func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the build and reconcile schedule",
		Long: `Run setup once, then build changed routes and reconcile stale configuration
on their configured intervals. The read-only status endpoint listens on
http.listen when it is set. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Logger())
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			kernel, err := app.NewKernel(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer kernel.Close()

			return app.Serve(ctx, kernel)
		},
	}
}
