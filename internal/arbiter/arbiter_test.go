package arbiter

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leash-dev/leash/internal/approval"
	"github.com/leash-dev/leash/internal/audit"
	"github.com/leash-dev/leash/internal/rules"
	"github.com/leash-dev/leash/internal/session"
	"github.com/leash-dev/leash/internal/telegram"
	"github.com/leash-dev/leash/internal/workflow"
)

type fakeJudge struct {
	decision rules.Decision
	called   bool
}

func (f *fakeJudge) Ready() bool { return true }

func (f *fakeJudge) Evaluate(_ context.Context, _, _, _ string) rules.Decision {
	f.called = true
	return f.decision
}

type fakeEscalator struct {
	outcome telegram.Outcome
	called  bool
	lastReq *approval.Request
}

func (f *fakeEscalator) Ready() bool { return true }

func (f *fakeEscalator) RequestDecision(_ context.Context, req *approval.Request) telegram.Outcome {
	f.called = true
	f.lastReq = req
	return f.outcome
}

func builtinSet(t *testing.T) *rules.RuleSet {
	t.Helper()
	set, _, err := rules.Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	return set
}

// storeWithWorkflow returns a session store holding one session attached to
// the named workflow.
func storeWithWorkflow(t *testing.T, sessionID, workflowName string) *session.Store {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := workflow.NewRegistry()
	w, ok := reg.Lookup(workflowName)
	if !ok {
		t.Fatalf("unknown workflow %q", workflowName)
	}
	sess := &session.Session{SessionID: sessionID}
	store.AttachWorkflow(sess, w.Name, w.InitialState, 0, 0)
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestRuleDenyOverridesWorkflowAutoAllow(t *testing.T) {
	// git push is on issue-to-impl's auto-allow list, but a forced push
	// matches a builtin deny rule one tier earlier.
	judge := &fakeJudge{decision: rules.Allow}
	esc := &fakeEscalator{outcome: telegram.OutcomeAllowed}
	a := &Arbiter{
		Rules:     builtinSet(t),
		Sessions:  storeWithWorkflow(t, "s1", "issue-to-impl"),
		Registry:  workflow.NewRegistry(),
		Judge:     judge,
		Escalator: esc,
	}

	res := a.Decide(context.Background(), "s1", "Bash", "git push --force origin main")
	if res.Decision != rules.Deny || res.Tier != TierRules {
		t.Fatalf("want deny from rules tier, got %q from %q", res.Decision, res.Tier)
	}
	if judge.called || esc.called {
		t.Fatal("lower tiers consulted after a final deny")
	}
}

func TestRuleAllowShortCircuits(t *testing.T) {
	judge := &fakeJudge{decision: rules.Deny}
	a := &Arbiter{Rules: builtinSet(t), Judge: judge}

	res := a.Decide(context.Background(), "s1", "Bash", "git status")
	if res.Decision != rules.Allow || res.Tier != TierRules {
		t.Fatalf("want allow from rules tier, got %q from %q", res.Decision, res.Tier)
	}
	if judge.called {
		t.Fatal("judge consulted after a rule allow")
	}
}

func TestWorkflowAutoAllow(t *testing.T) {
	judge := &fakeJudge{decision: rules.Deny}
	a := &Arbiter{
		Rules:    builtinSet(t),
		Sessions: storeWithWorkflow(t, "s1", "issue-to-impl"),
		Registry: workflow.NewRegistry(),
		Judge:    judge,
	}

	res := a.Decide(context.Background(), "s1", "Bash", "git push origin feature")
	if res.Decision != rules.Allow || res.Tier != TierWorkflow {
		t.Fatalf("want allow from workflow tier, got %q from %q", res.Decision, res.Tier)
	}
	if judge.called {
		t.Fatal("judge consulted after a workflow auto-allow")
	}
}

func TestAutoAllowRequiresActiveWorkflow(t *testing.T) {
	// Same command, but the session has no workflow: tier 2 must not fire.
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	judge := &fakeJudge{decision: rules.Allow}
	a := &Arbiter{
		Rules:    builtinSet(t),
		Sessions: store,
		Registry: workflow.NewRegistry(),
		Judge:    judge,
	}

	res := a.Decide(context.Background(), "no-such-session", "Bash", "git push origin feature")
	if res.Tier != TierJudge {
		t.Fatalf("want judge tier, got %q", res.Tier)
	}
	if !judge.called {
		t.Fatal("judge not consulted without an active workflow")
	}
}

func TestJudgeAskFallsThroughToHuman(t *testing.T) {
	judge := &fakeJudge{decision: rules.Ask}
	esc := &fakeEscalator{outcome: telegram.OutcomeDenied}
	a := &Arbiter{Rules: builtinSet(t), Judge: judge, Escalator: esc}

	res := a.Decide(context.Background(), "s1", "Bash", "terraform apply")
	if res.Decision != rules.Deny || res.Tier != TierHuman {
		t.Fatalf("want deny from human tier, got %q from %q", res.Decision, res.Tier)
	}
	if !judge.called {
		t.Fatal("judge skipped")
	}
}

func TestNoTiersConfiguredFallsBackToAsk(t *testing.T) {
	a := &Arbiter{Rules: builtinSet(t)}

	res := a.Decide(context.Background(), "s1", "Bash", "terraform apply")
	if res.Decision != rules.Ask || res.Tier != TierDefault {
		t.Fatalf("want ask from default tier, got %q from %q", res.Decision, res.Tier)
	}
}

func TestEscalationTimeout(t *testing.T) {
	esc := &fakeEscalator{outcome: telegram.OutcomeTimedOut}
	a := &Arbiter{Rules: builtinSet(t), Escalator: esc}

	if res := a.Decide(context.Background(), "s1", "Bash", "terraform apply"); res.Decision != rules.Ask {
		t.Fatalf("default timeout decision: want ask, got %q", res.Decision)
	}

	a.OnTimeout = "deny"
	if res := a.Decide(context.Background(), "s1", "Bash", "terraform apply"); res.Decision != rules.Deny {
		t.Fatalf("configured timeout decision: want deny, got %q", res.Decision)
	}
}

func TestUnavailableEscalatorDegradesToAsk(t *testing.T) {
	esc := &fakeEscalator{outcome: telegram.OutcomeUnavailable}
	a := &Arbiter{Rules: builtinSet(t), Escalator: esc}

	res := a.Decide(context.Background(), "s1", "Bash", "terraform apply")
	if res.Decision != rules.Ask || res.Tier != TierDefault {
		t.Fatalf("want ask from default tier, got %q from %q", res.Decision, res.Tier)
	}
}

func TestEscalationRequestIsNormalized(t *testing.T) {
	esc := &fakeEscalator{outcome: telegram.OutcomeAllowed}
	a := &Arbiter{Rules: builtinSet(t), Escalator: esc}

	a.Decide(context.Background(), "s1", "Bash", "FOO=1 terraform apply")
	if esc.lastReq == nil || esc.lastReq.Command != "terraform apply" {
		t.Fatalf("escalation saw unnormalized command: %+v", esc.lastReq)
	}
}

func TestDecisionsAreRecorded(t *testing.T) {
	store, err := audit.NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	a := &Arbiter{Rules: builtinSet(t), Audit: store}
	a.Decide(context.Background(), "s1", "Bash", "git status")
	a.Decide(context.Background(), "s1", "Bash", "terraform apply")

	recs, err := store.ListDecisions("s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 decision records, got %d", len(recs))
	}
	tiers := map[string]bool{}
	for _, r := range recs {
		tiers[r.Tier] = true
	}
	if !tiers[TierRules] || !tiers[TierDefault] {
		t.Fatalf("unexpected tiers recorded: %v", tiers)
	}
}
