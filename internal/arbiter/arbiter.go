// Package arbiter composes the tiered permission pipeline for tool calls.
package arbiter

import (
	"context"
	"fmt"

	"github.com/leash-dev/leash/internal/approval"
	"github.com/leash-dev/leash/internal/audit"
	"github.com/leash-dev/leash/internal/rules"
	"github.com/leash-dev/leash/internal/session"
	"github.com/leash-dev/leash/internal/telegram"
	"github.com/leash-dev/leash/internal/workflow"
)

// Pipeline tier names, used in decision records.
const (
	TierRules    = "rules"
	TierWorkflow = "workflow"
	TierJudge    = "judge"
	TierHuman    = "human"
	TierDefault  = "default"
)

// Judge is the model escalation tier.
type Judge interface {
	Ready() bool
	Evaluate(ctx context.Context, tool, target, rationale string) rules.Decision
}

// Escalator is the human escalation tier.
type Escalator interface {
	Ready() bool
	RequestDecision(ctx context.Context, req *approval.Request) telegram.Outcome
}

// Result is the final arbitration outcome for one tool call.
type Result struct {
	Decision rules.Decision
	Tier     string
	Reason   string
}

// Arbiter evaluates tool calls through the ordered pipeline:
// global rules, workflow-scoped auto-allow, model judge, human escalation.
// Ask is a pass-through signal between tiers, not a final answer, except
// at the end of the pipeline. A tier-1 deny is final and short-circuits
// everything below it.
type Arbiter struct {
	Rules     *rules.RuleSet
	Sessions  *session.Store
	Registry  *workflow.Registry
	Judge     Judge
	Escalator Escalator
	Audit     *audit.Store
	// OnTimeout is the decision adopted when the human tier times out:
	// "ask" (default) or "deny". Never allow.
	OnTimeout string
}

// Decide runs the pipeline for one requested tool call.
func (a *Arbiter) Decide(ctx context.Context, sessionID, tool, command string) Result {
	res := a.decide(ctx, sessionID, tool, command)
	if a.Audit != nil {
		_ = a.Audit.InsertDecision(&audit.DecisionRecord{
			SessionID: sessionID,
			Tool:      tool,
			Command:   rules.Normalize(command),
			Tier:      res.Tier,
			Decision:  string(res.Decision),
			Reason:    res.Reason,
		})
	}
	return res
}

func (a *Arbiter) decide(ctx context.Context, sessionID, tool, command string) Result {
	// Tier 1: global rules. Allow and deny are final.
	if decision, rule := a.Rules.MatchRule(tool, command); decision != rules.Ask {
		return Result{
			Decision: decision,
			Tier:     TierRules,
			Reason:   fmt.Sprintf("matched %s rule for %s", rule.Origin, rule.Tool),
		}
	}

	// Tier 2: workflow-scoped auto-allow, only while a workflow is active.
	rationale := ""
	if a.Sessions != nil && a.Registry != nil {
		if sess := a.Sessions.Load(sessionID); sess != nil && sess.Workflow != "" {
			if w, ok := a.Registry.Lookup(sess.Workflow); ok {
				if w.AutoAllowed(tool, command) {
					return Result{
						Decision: rules.Allow,
						Tier:     TierWorkflow,
						Reason:   fmt.Sprintf("auto-allowed by workflow %s", w.Name),
					}
				}
				rationale = fmt.Sprintf("agent is running the %s workflow, state %s", sess.Workflow, sess.State)
			}
		}
	}

	// Tier 3: model judge. Checks its own enablement; ask falls through.
	if a.Judge != nil && a.Judge.Ready() {
		if decision := a.Judge.Evaluate(ctx, tool, rules.Normalize(command), rationale); decision != rules.Ask {
			return Result{Decision: decision, Tier: TierJudge, Reason: "judge verdict"}
		}
	}

	// Tier 4: human escalation, the single point of operator contact.
	if a.Escalator != nil && a.Escalator.Ready() {
		req := &approval.Request{
			SessionID: sessionID,
			Tool:      tool,
			Command:   rules.Normalize(command),
		}
		switch a.Escalator.RequestDecision(ctx, req) {
		case telegram.OutcomeAllowed:
			return Result{Decision: rules.Allow, Tier: TierHuman, Reason: "operator allowed"}
		case telegram.OutcomeDenied:
			return Result{Decision: rules.Deny, Tier: TierHuman, Reason: "operator denied"}
		case telegram.OutcomeTimedOut:
			if a.OnTimeout == "deny" {
				return Result{Decision: rules.Deny, Tier: TierHuman, Reason: "escalation timed out"}
			}
			return Result{Decision: rules.Ask, Tier: TierHuman, Reason: "escalation timed out"}
		case telegram.OutcomeUnavailable:
			// Channel unreachable; fall through to the fail-safe default.
		}
	}

	return Result{Decision: rules.Ask, Tier: TierDefault, Reason: "no tier resolved the call"}
}
