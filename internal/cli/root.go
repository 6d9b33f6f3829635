package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/leash-dev/leash/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _                _\n" +
		" | | ___  __ _ ___| |__\n" +
		" | |/ _ \\/ _` / __| '_ \\\n" +
		" | |  __/ (_| \\__ \\ | | |\n" +
		" |_|\\___|\\__,_|___/_| |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "leash",
	Short: "leash - hands-off control plane for coding agents",
	Long:  color.CyanString(logo) + "\nArbitrates tool-call permissions and governs unattended continuation\nfor an autonomous coding agent, via its hook interface.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(respondCmd)
}
