package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leash-dev/leash/internal/hook"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Hook entry points invoked by the agent runtime",
	Long: "Each subcommand reads one JSON event from stdin and writes one\n" +
		"JSON decision to stdout. Any internal failure degrades to ask.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var preToolUseCmd = &cobra.Command{
	Use:   "pretooluse",
	Short: "Arbitrate a pending tool call",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := hook.Guard(hook.EventPreToolUse, func() (hook.Output, error) {
			var evt hook.PreToolUseEvent
			if err := hook.Decode(cmd.InOrStdin(), &evt); err != nil {
				return hook.Output{}, err
			}
			rt, err := loadRuntime()
			if err != nil {
				return hook.Output{}, err
			}
			defer rt.Close()

			res := rt.arbiter.Decide(context.Background(), evt.SessionID, evt.ToolName, evt.Command())
			return hook.NewOutput(hook.EventPreToolUse, string(res.Decision), res.Reason), nil
		})
		return hook.Emit(cmd.OutOrStdout(), out)
	},
}

var postToolUseCmd = &cobra.Command{
	Use:   "posttooluse",
	Short: "Record a completed tool call and advance workflow state",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := hook.Guard(hook.EventPostToolUse, func() (hook.Output, error) {
			var evt hook.PostToolUseEvent
			if err := hook.Decode(cmd.InOrStdin(), &evt); err != nil {
				return hook.Output{}, err
			}
			rt, err := loadRuntime()
			if err != nil {
				return hook.Output{}, err
			}
			defer rt.Close()

			if err := rt.governor.ObserveToolUse(&evt); err != nil {
				return hook.Output{}, err
			}
			// Observation never blocks the agent.
			return hook.NewOutput(hook.EventPostToolUse, hook.DecisionAllow, ""), nil
		})
		return hook.Emit(cmd.OutOrStdout(), out)
	},
}

var userPromptSubmitCmd = &cobra.Command{
	Use:   "userpromptsubmit",
	Short: "Detect workflow invocations in a submitted prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := hook.Guard(hook.EventUserPromptSubmit, func() (hook.Output, error) {
			var evt hook.UserPromptSubmitEvent
			if err := hook.Decode(cmd.InOrStdin(), &evt); err != nil {
				return hook.Output{}, err
			}
			rt, err := loadRuntime()
			if err != nil {
				return hook.Output{}, err
			}
			defer rt.Close()

			name, err := rt.governor.StartWorkflow(&evt)
			if err != nil {
				return hook.Output{}, err
			}
			reason := ""
			if name != "" {
				reason = fmt.Sprintf("workflow %s started", name)
			}
			// Prompts are never blocked; this hook only observes.
			return hook.NewOutput(hook.EventUserPromptSubmit, hook.DecisionAllow, reason), nil
		})
		return hook.Emit(cmd.OutOrStdout(), out)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Decide whether a stopped agent may continue unattended",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := hook.Guard(hook.EventStop, func() (hook.Output, error) {
			var evt hook.StopEvent
			if err := hook.Decode(cmd.InOrStdin(), &evt); err != nil {
				return hook.Output{}, err
			}
			rt, err := loadRuntime()
			if err != nil {
				return hook.Output{}, err
			}
			defer rt.Close()

			dec := rt.governor.CheckStop(&evt)
			reason := dec.Reason
			if dec.Max > 0 {
				reason = fmt.Sprintf("%s (%d/%d)", dec.Reason, dec.Count, dec.Max)
			}
			return hook.NewOutput(hook.EventStop, dec.Decision, reason), nil
		})
		return hook.Emit(cmd.OutOrStdout(), out)
	},
}

func init() {
	hookCmd.AddCommand(preToolUseCmd)
	hookCmd.AddCommand(postToolUseCmd)
	hookCmd.AddCommand(userPromptSubmitCmd)
	hookCmd.AddCommand(stopCmd)
}
