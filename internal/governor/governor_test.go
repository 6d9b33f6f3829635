package governor

import (
	"testing"

	"github.com/leash-dev/leash/internal/config"
	"github.com/leash-dev/leash/internal/history"
	"github.com/leash-dev/leash/internal/hook"
	"github.com/leash-dev/leash/internal/session"
	"github.com/leash-dev/leash/internal/workflow"
)

func newGovernor(t *testing.T, enabled bool, max int) *Governor {
	t.Helper()
	dir := t.TempDir()
	store, err := session.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	return &Governor{
		Config:   config.HandsOffConfig{Enabled: enabled, MaxContinuations: max},
		Sessions: store,
		Registry: workflow.NewRegistry(),
		History:  history.NewLogger(true, dir),
	}
}

func startWorkflow(t *testing.T, g *Governor, sessionID, prompt string) {
	t.Helper()
	name, err := g.StartWorkflow(&hook.UserPromptSubmitEvent{SessionID: sessionID, Prompt: prompt})
	if err != nil {
		t.Fatal(err)
	}
	if name == "" {
		t.Fatalf("prompt %q did not start a workflow", prompt)
	}
}

func TestStopDisabledAsks(t *testing.T) {
	g := newGovernor(t, false, 10)
	startWorkflow(t, g, "s1", "/fix-issue 7")

	dec := g.CheckStop(&hook.StopEvent{SessionID: "s1"})
	if dec.Decision != hook.DecisionAsk || dec.Reason != ReasonDisabled {
		t.Fatalf("got %+v", dec)
	}
}

func TestStopWithoutSessionAsks(t *testing.T) {
	g := newGovernor(t, true, 10)

	dec := g.CheckStop(&hook.StopEvent{SessionID: "nobody"})
	if dec.Decision != hook.DecisionAsk || dec.Reason != ReasonNoSession {
		t.Fatalf("got %+v", dec)
	}
}

func TestStopWithoutConfiguredLimitAsks(t *testing.T) {
	g := newGovernor(t, true, 0)
	startWorkflow(t, g, "s1", "/fix-issue 7")

	dec := g.CheckStop(&hook.StopEvent{SessionID: "s1"})
	if dec.Decision != hook.DecisionAsk || dec.Reason != ReasonLimitUnconfigured {
		t.Fatalf("got %+v", dec)
	}
}

func TestContinuationBudget(t *testing.T) {
	g := newGovernor(t, true, 2)
	startWorkflow(t, g, "s1", "/fix-issue 7")

	for i := 1; i <= 2; i++ {
		dec := g.CheckStop(&hook.StopEvent{SessionID: "s1"})
		if dec.Decision != hook.DecisionAllow || dec.Reason != ReasonUnderLimit {
			t.Fatalf("stop %d: got %+v", i, dec)
		}
		if dec.Count != i {
			t.Fatalf("stop %d: count = %d", i, dec.Count)
		}
	}

	dec := g.CheckStop(&hook.StopEvent{SessionID: "s1"})
	if dec.Decision != hook.DecisionAsk || dec.Reason != ReasonLimitReached {
		t.Fatalf("got %+v", dec)
	}
	// The count never moves past the limit, no matter how many stops arrive.
	g.CheckStop(&hook.StopEvent{SessionID: "s1"})
	if sess := g.Sessions.Load("s1"); sess.ContinuationCount != 2 {
		t.Fatalf("count grew past limit: %d", sess.ContinuationCount)
	}
}

func TestSessionLimitOverridesConfig(t *testing.T) {
	g := newGovernor(t, true, 1)
	startWorkflow(t, g, "s1", "/fix-issue 7")

	sess := g.Sessions.Load("s1")
	sess.MaxContinuations = 3
	if err := g.Sessions.Save(sess); err != nil {
		t.Fatal(err)
	}
	g.Config.MaxContinuations = 1

	for i := 1; i <= 3; i++ {
		if dec := g.CheckStop(&hook.StopEvent{SessionID: "s1"}); dec.Decision != hook.DecisionAllow {
			t.Fatalf("stop %d: got %+v", i, dec)
		}
	}
	if dec := g.CheckStop(&hook.StopEvent{SessionID: "s1"}); dec.Reason != ReasonLimitReached {
		t.Fatalf("got %+v", dec)
	}
}

func TestStartWorkflowAttachesOnce(t *testing.T) {
	g := newGovernor(t, true, 5)
	startWorkflow(t, g, "s1", "/issue-to-impl #42")

	sess := g.Sessions.Load("s1")
	if sess.Workflow != "issue-to-impl" || sess.State != "planning" || sess.IssueNo != 42 {
		t.Fatalf("got %+v", sess)
	}
	if id, ok := g.Sessions.LookupIssue(42); !ok || id != "s1" {
		t.Fatalf("issue index missing: %q %v", id, ok)
	}

	// A later invocation in the same session never replaces the workflow.
	name, err := g.StartWorkflow(&hook.UserPromptSubmitEvent{SessionID: "s1", Prompt: "/review-pr 9"})
	if err != nil {
		t.Fatal(err)
	}
	if name != "" {
		t.Fatalf("second invocation attached %q", name)
	}
	if sess := g.Sessions.Load("s1"); sess.Workflow != "issue-to-impl" {
		t.Fatalf("workflow replaced: %q", sess.Workflow)
	}
}

func TestStartWorkflowIgnoresPlainPrompts(t *testing.T) {
	g := newGovernor(t, true, 5)
	name, err := g.StartWorkflow(&hook.UserPromptSubmitEvent{SessionID: "s1", Prompt: "please fix the tests"})
	if err != nil || name != "" {
		t.Fatalf("got %q, %v", name, err)
	}
	if g.Sessions.Load("s1") != nil {
		t.Fatal("session created for a plain prompt")
	}
}

func TestObserveToolUseAdvancesThroughMilestones(t *testing.T) {
	g := newGovernor(t, true, 10)
	startWorkflow(t, g, "s1", "/issue-to-impl 42")

	steps := []struct {
		tool    string
		command string
		want    string
	}{
		{"TodoWrite", "", "docs_tests"},
		{"Bash", "ls -la", "docs_tests"}, // no transition fires
		{"Bash", "gh issue edit 42 --add-label in-progress", "implementation"},
		{"Bash", "gh pr create --fill", workflow.StateDone},
	}
	for _, step := range steps {
		evt := &hook.PostToolUseEvent{SessionID: "s1", ToolName: step.tool}
		if step.command != "" {
			evt.ToolInput = map[string]any{"command": step.command}
		}
		if err := g.ObserveToolUse(evt); err != nil {
			t.Fatal(err)
		}
		if sess := g.Sessions.Load("s1"); sess.State != step.want {
			t.Fatalf("after %s %q: state %q, want %q", step.tool, step.command, sess.State, step.want)
		}
	}

	// A finished workflow hands control back to the operator.
	dec := g.CheckStop(&hook.StopEvent{SessionID: "s1"})
	if dec.Decision != hook.DecisionAsk || dec.Reason != ReasonWorkflowDone {
		t.Fatalf("got %+v", dec)
	}
}

func TestObserveToolUseWithoutWorkflowIsNoop(t *testing.T) {
	g := newGovernor(t, true, 10)
	evt := &hook.PostToolUseEvent{
		SessionID: "loose",
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "gh pr create"},
	}
	if err := g.ObserveToolUse(evt); err != nil {
		t.Fatal(err)
	}
	if g.Sessions.Load("loose") != nil {
		t.Fatal("session created by observation")
	}
}

func TestHistoryTrailCoversLifecycle(t *testing.T) {
	g := newGovernor(t, true, 1)
	startWorkflow(t, g, "s1", "/release")

	_ = g.ObserveToolUse(&hook.PostToolUseEvent{
		SessionID: "s1",
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "git tag v1.2.0"},
	})
	g.CheckStop(&hook.StopEvent{SessionID: "s1"})

	entries := g.History.Read("s1")
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}
	if entries[0].Event != hook.EventUserPromptSubmit ||
		entries[1].Event != hook.EventPostToolUse ||
		entries[2].Event != hook.EventStop {
		t.Fatalf("unexpected trail: %+v", entries)
	}
	if entries[1].NewState != "tagging" {
		t.Fatalf("transition not recorded: %+v", entries[1])
	}
	if entries[2].Decision != hook.DecisionAllow || entries[2].Count != 1 {
		t.Fatalf("stop entry wrong: %+v", entries[2])
	}
}
