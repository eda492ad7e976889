package cmd

import (
	"fmt"

	"github.com/fixkme/rpckit/mlog"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the rpcgen application
func NewRootCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "rpcgen",
		Short: "rpcgen - handler scanning and client generation",
		Long: `rpcgen scans service modules for annotated rpc handlers, validates them
and generates the typed client interfaces plus the route map artifacts.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := mlog.InfoLevel
			if verbose {
				level = mlog.DebugLevel
			}
			mlog.UseStdLogger(level)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(NewGenerateCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewRoutesCommand())

	return cmd
}

// Version information
var (
	Version = "dev"
	Commit  = "none"
)

func PrintVersion() string {
	return fmt.Sprintf("rpcgen v%s (commit: %s)", Version, Commit)
}
