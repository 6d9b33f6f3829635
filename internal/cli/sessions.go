package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leash-dev/leash/internal/config"
	"github.com/leash-dev/leash/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List tracked agent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := session.NewStore(cfg.Paths.StateDir)
		if err != nil {
			return err
		}

		printHeader("🗂️ leash Sessions")
		all := store.List()
		if len(all) == 0 {
			fmt.Println("No sessions tracked.")
			return nil
		}
		for _, s := range all {
			ref := ""
			switch {
			case s.IssueNo > 0:
				ref = fmt.Sprintf(" issue #%d", s.IssueNo)
			case s.PRNo > 0:
				ref = fmt.Sprintf(" pr #%d", s.PRNo)
			}
			workflow := s.Workflow
			if workflow == "" {
				workflow = "-"
			}
			fmt.Printf("%s  %-16s %-14s %d/%d%s  %s\n",
				s.SessionID, workflow, s.State,
				s.ContinuationCount, s.MaxContinuations, ref,
				s.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}
