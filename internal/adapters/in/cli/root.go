// Package cli implements the proxied command line.
// Commands load the configuration, open the app kernel and delegate to it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bnema/proxied/internal/adapters/in/cli/ui/styles"
	"github.com/bnema/proxied/internal/app"
	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/config"
	"github.com/bnema/proxied/pkg/logger"
	"github.com/bnema/proxied/pkg/version"
)

const defaultEnvFile = ".env"

// controller is the part of the app kernel the one-shot commands drive.
type controller interface {
	Routes() in.RouteService
	Build() in.BuildService
	Reconcile() in.ReconcileService
	Setup() in.SetupService
	Status() in.StatusService
	Close() error
}

type options struct {
	configFile string
	envFile    string

	open func(ctx context.Context, cfg *config.Config, log *logger.Logger) (controller, error)
}

func openKernel(ctx context.Context, cfg *config.Config, log *logger.Logger) (controller, error) {
	return app.NewKernel(ctx, cfg, log)
}

// Execute runs the root command and exits non-zero on failure.
func Execute(v, commit, date string) {
	version.Set(v, commit, date)
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.RenderError(err.Error()))
		os.Exit(1)
	}
}

// NewRootCmd creates the root command for the proxied CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{open: openKernel})
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "proxied",
		Short: "proxied - nginx reverse proxy controller",
		Long: `proxied keeps an nginx reverse proxy in line with a database of routes.

Each route maps a set of domains to a set of upstreams. Changed routes are
rendered into per-route nginx configuration, certificates are obtained from
an ACME CA or local files, and nginx is reloaded once per pass after its
configuration test succeeds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "Dotenv file loaded before the config")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newBuildCmd(opts))
	rootCmd.AddCommand(newReconcileCmd(opts))
	rootCmd.AddCommand(newSetupCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newRoutesCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig reads the dotenv file, then the config file, then validates.
// The default dotenv file is optional, an explicit one is not.
func (o *options) loadConfig() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || o.envFile != defaultEnvFile {
				return nil, fmt.Errorf("load env file %s: %w", o.envFile, err)
			}
		}
	}

	v := config.NewViper()
	if err := config.ReadInConfig(v, o.configFile); err != nil {
		return nil, err
	}
	return config.Load(v)
}

// withController opens the kernel for the duration of fn.
func (o *options) withController(cmd *cobra.Command, fn func(ctx context.Context, c controller) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.Logger())
	defer log.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := o.open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}
