package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leash-dev/leash/internal/audit"
	"github.com/leash-dev/leash/internal/config"
)

var respondCmd = &cobra.Command{
	Use:   "respond <correlation-id> <allow|deny>",
	Short: "Resolve a pending approval from the terminal",
	Long: "Writes the operator decision for a pending approval into the audit\n" +
		"store. The waiting hook process picks it up on its next poll, so this\n" +
		"works even when the Telegram chat is unreachable.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		correlationID, verdict := args[0], args[1]

		var status string
		switch verdict {
		case "allow":
			status = audit.StatusAllowed
		case "deny":
			status = audit.StatusDenied
		default:
			return fmt.Errorf("verdict must be allow or deny, got %q", verdict)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := audit.NewStore(auditPath(cfg))
		if err != nil {
			return err
		}
		defer store.Close()

		current, err := store.ApprovalStatus(correlationID)
		if err != nil {
			return err
		}
		if current != audit.StatusPending {
			return fmt.Errorf("approval %s already resolved: %s", correlationID, current)
		}
		if err := store.UpdateApprovalStatus(correlationID, status); err != nil {
			return err
		}
		fmt.Printf("Approval %s → %s\n", correlationID, status)
		return nil
	},
}
