package cli

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bnema/proxied/pkg/version"
)

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			w := cmd.OutOrStdout()
			color.New(color.FgGreen, color.Bold).Fprintf(w, "proxied %s\n", info.Version)
			color.New(color.FgBlue).Fprintf(w, "Commit: %s\n", info.Commit)
			color.New(color.FgBlue).Fprintf(w, "Build Date: %s\n", info.BuildDate)
			color.New(color.FgBlue).Fprintf(w, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
