package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leash-dev/leash/internal/audit"
	"github.com/leash-dev/leash/internal/config"
	"github.com/leash-dev/leash/internal/history"
)

var historyDecisions bool

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show the recorded trail for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		sessionID := args[0]

		if historyDecisions {
			return printDecisions(cfg, sessionID)
		}

		logger := history.NewLogger(true, cfg.Paths.StateDir)
		entries := logger.Read(sessionID)
		if len(entries) == 0 {
			fmt.Println("No history recorded. Enable audit in the config to record trails.")
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  %-16s", e.Timestamp.Format("15:04:05"), e.Event)
			switch e.Event {
			case "Stop":
				line += fmt.Sprintf(" %s %s (%d/%d)", e.Decision, e.Reason, e.Count, e.Max)
			case "PostToolUse":
				line += fmt.Sprintf(" %s %s  %s → %s", e.ToolName, e.ToolArgs, e.State, e.NewState)
			default:
				line += fmt.Sprintf(" %s state=%s", e.Workflow, e.State)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func printDecisions(cfg *config.Config, sessionID string) error {
	store, err := audit.NewStore(auditPath(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListDecisions(sessionID, 0)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No decisions recorded for this session.")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%s  %-8s %-8s %-12s %s\n",
			r.CreatedAt.Format("15:04:05"), r.Tier, r.Decision, r.Tool, r.Command)
	}
	return nil
}

func init() {
	historyCmd.Flags().BoolVar(&historyDecisions, "decisions", false,
		"show arbitration decisions instead of lifecycle events")
}
