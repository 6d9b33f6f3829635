package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leash-dev/leash/internal/config"
	"github.com/leash-dev/leash/internal/rules"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ leash Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show control plane status",
	RunE: func(cmd *cobra.Command, args []string) error {
		printHeader("📊 leash Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Printf("Config:  %s %s\n", checkmark(true), path)
			} else {
				fmt.Printf("Config:  %s not found (%s), using defaults\n", checkmark(false), path)
			}
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		set, creds, err := rules.Load(cfg.Paths.ProjectRules, cfg.Paths.LocalRules)
		if err != nil {
			return err
		}
		if creds != nil {
			cfg.MergeTelegramCreds(creds.Enabled, creds.Token, creds.ChatID)
		}

		fmt.Printf("State:   %s\n", cfg.Paths.StateDir)
		fmt.Printf("Rules:   %d loaded\n", set.Len())
		fmt.Printf("Hands-off: %s enabled=%v max=%d\n",
			checkmark(cfg.HandsOff.Enabled && cfg.HandsOff.MaxContinuations > 0),
			cfg.HandsOff.Enabled, cfg.HandsOff.MaxContinuations)
		fmt.Printf("Judge:     %s\n", checkmark(cfg.Judge.Ready()))
		fmt.Printf("Telegram:  %s\n", checkmark(cfg.Telegram.Ready()))
		fmt.Printf("Audit:     %s\n", checkmark(cfg.Audit.Enabled))
		return nil
	},
}
