package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newBuildCmd creates the build command.
func newBuildCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Render changed routes and reload nginx",
		Long: `Run one build pass: every route flagged as changed is rendered, its
certificate ensured, and nginx is tested and reloaded once. Exits non-zero
when any route fails or nginx rejects the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				report, err := c.Build().Build(ctx)
				if report != nil {
					if rErr := renderBuildReport(cmd.OutOrStdout(), report); rErr != nil {
						return rErr
					}
				}
				if err != nil {
					return err
				}
				if n := len(report.Errored); n > 0 {
					return fmt.Errorf("%d route(s) failed to build", n)
				}
				return nil
			})
		},
	}
}

// newReconcileCmd creates the reconcile command.
func newReconcileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Remove configuration no route declares",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				report, err := c.Reconcile().Reconcile(ctx)
				if report != nil {
					if rErr := renderReconcileReport(cmd.OutOrStdout(), report); rErr != nil {
						return rErr
					}
				}
				return err
			})
		},
	}
}

// newSetupCmd creates the setup command.
func newSetupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create directories and nginx include files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				report, err := c.Setup().Run(ctx)
				if report != nil {
					if rErr := renderSetupReport(cmd.OutOrStdout(), report); rErr != nil {
						return rErr
					}
				}
				return err
			})
		},
	}
}

// newStatusCmd creates the status command.
func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show route counts and nginx connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, c controller) error {
				counts, err := c.Routes().Count(ctx)
				if err != nil {
					return fmt.Errorf("count routes: %w", err)
				}
				proxy, proxyErr := c.Status().Status(ctx)
				return renderStatus(cmd.OutOrStdout(), counts, proxy, proxyErr)
			})
		},
	}
}
