// Package governor decides whether a stopped agent may continue unattended,
// and tracks workflow progress from observed tool calls.
package governor

import (
	"fmt"

	"github.com/leash-dev/leash/internal/config"
	"github.com/leash-dev/leash/internal/history"
	"github.com/leash-dev/leash/internal/hook"
	"github.com/leash-dev/leash/internal/session"
	"github.com/leash-dev/leash/internal/workflow"
)

// Stop decision reasons. These surface verbatim in hook output and the
// history trail.
const (
	ReasonDisabled          = "hands_off_disabled"
	ReasonLimitUnconfigured = "limit_not_configured"
	ReasonNoSession         = "no_session"
	ReasonWorkflowDone      = "workflow_done"
	ReasonLimitReached      = "limit_reached"
	ReasonUnderLimit        = "under_limit"
)

// StopDecision is the governor's answer to one Stop event.
type StopDecision struct {
	Decision string // hook.DecisionAllow or hook.DecisionAsk; never deny
	Reason   string
	Count    int
	Max      int
}

// Governor owns the continuation budget and the workflow state machine.
// Every uncertain condition resolves to ask; allow is granted only when the
// budget is configured, a live workflow session exists, and the count is
// within bounds.
type Governor struct {
	Config   config.HandsOffConfig
	Sessions *session.Store
	Registry *workflow.Registry
	History  *history.Logger
}

// StartWorkflow inspects a prompt for a workflow invocation and attaches it
// to the session. Only the first recognized invocation sticks; an already
// attached session is left untouched. Returns the attached workflow name, or
// empty when no workflow started.
func (g *Governor) StartWorkflow(evt *hook.UserPromptSubmitEvent) (string, error) {
	det, ok := g.Registry.Detect(evt.Prompt)
	if !ok {
		return "", nil
	}

	sess := g.Sessions.Load(evt.SessionID)
	if sess == nil {
		sess = &session.Session{SessionID: evt.SessionID}
	}
	if !g.Sessions.AttachWorkflow(sess, det.Workflow.Name, det.Workflow.InitialState, det.IssueNo, det.PRNo) {
		return "", nil
	}
	sess.MaxContinuations = g.Config.MaxContinuations
	if err := g.Sessions.Save(sess); err != nil {
		return "", err
	}

	_ = g.History.Append(history.Entry{
		Event:     hook.EventUserPromptSubmit,
		SessionID: sess.SessionID,
		Workflow:  sess.Workflow,
		State:     sess.State,
		Count:     sess.ContinuationCount,
		Max:       sess.MaxContinuations,
	})
	return sess.Workflow, nil
}

// ObserveToolUse advances the session's workflow state when the completed
// tool call fires a transition. Calls outside an active workflow are ignored.
func (g *Governor) ObserveToolUse(evt *hook.PostToolUseEvent) error {
	sess := g.Sessions.Load(evt.SessionID)
	if sess == nil || sess.Workflow == "" || workflow.IsTerminal(sess.State) {
		return nil
	}
	w, ok := g.Registry.Lookup(sess.Workflow)
	if !ok {
		return nil
	}

	next, fired := w.NextState(sess.State, evt.ToolName, evt.Command())
	if !fired {
		return nil
	}
	prev := sess.State
	sess.State = next
	if err := g.Sessions.Save(sess); err != nil {
		return err
	}

	_ = g.History.Append(history.Entry{
		Event:     hook.EventPostToolUse,
		SessionID: sess.SessionID,
		Workflow:  sess.Workflow,
		State:     prev,
		NewState:  next,
		Count:     sess.ContinuationCount,
		Max:       sess.MaxContinuations,
		ToolName:  evt.ToolName,
		ToolArgs:  evt.Command(),
	})
	return nil
}

// CheckStop evaluates one Stop event against the decision table. The
// continuation count is incremented and persisted only on allow, so a session
// observed at its limit stays at its limit.
func (g *Governor) CheckStop(evt *hook.StopEvent) StopDecision {
	dec := g.checkStop(evt)

	sess := g.Sessions.Load(evt.SessionID)
	entry := history.Entry{
		Event:     hook.EventStop,
		SessionID: evt.SessionID,
		Decision:  dec.Decision,
		Reason:    dec.Reason,
		Count:     dec.Count,
		Max:       dec.Max,
	}
	if sess != nil {
		entry.Workflow = sess.Workflow
		entry.State = sess.State
	}
	_ = g.History.Append(entry)
	return dec
}

func (g *Governor) checkStop(evt *hook.StopEvent) StopDecision {
	if !g.Config.Enabled {
		return StopDecision{Decision: hook.DecisionAsk, Reason: ReasonDisabled}
	}

	sess := g.Sessions.Load(evt.SessionID)
	if sess == nil || sess.Workflow == "" {
		return StopDecision{Decision: hook.DecisionAsk, Reason: ReasonNoSession}
	}

	max := sess.MaxContinuations
	if max <= 0 {
		max = g.Config.MaxContinuations
	}
	if max <= 0 {
		return StopDecision{
			Decision: hook.DecisionAsk, Reason: ReasonLimitUnconfigured,
			Count: sess.ContinuationCount,
		}
	}

	if workflow.IsTerminal(sess.State) {
		return StopDecision{
			Decision: hook.DecisionAsk, Reason: ReasonWorkflowDone,
			Count: sess.ContinuationCount, Max: max,
		}
	}

	if sess.ContinuationCount >= max {
		return StopDecision{
			Decision: hook.DecisionAsk, Reason: ReasonLimitReached,
			Count: sess.ContinuationCount, Max: max,
		}
	}

	sess.ContinuationCount++
	if err := g.Sessions.Save(sess); err != nil {
		// A count that cannot be persisted cannot be trusted.
		return StopDecision{
			Decision: hook.DecisionAsk,
			Reason:   fmt.Sprintf("persist failed: %v", err),
			Count:    sess.ContinuationCount - 1, Max: max,
		}
	}
	return StopDecision{
		Decision: hook.DecisionAllow, Reason: ReasonUnderLimit,
		Count: sess.ContinuationCount, Max: max,
	}
}
