// Package hook defines the event contract between the host agent runtime
// and the leash control plane.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
)

// Decision values accepted by the host runtime.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionAsk   = "ask"
)

// Hook event names as delivered by the host runtime.
const (
	EventPreToolUse       = "PreToolUse"
	EventPostToolUse      = "PostToolUse"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventStop             = "Stop"
)

// PreToolUseEvent is received before the agent executes a tool call.
type PreToolUseEvent struct {
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// Command returns the command string for Bash-style tool calls, or the
// best-effort primary argument for other tools.
func (e *PreToolUseEvent) Command() string { return commandFrom(e.ToolInput) }

// PostToolUseEvent is received after a tool call has executed.
type PostToolUseEvent struct {
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// Command returns the command string of the completed tool call.
func (e *PostToolUseEvent) Command() string { return commandFrom(e.ToolInput) }

func commandFrom(input map[string]any) string {
	if input == nil {
		return ""
	}
	for _, key := range []string{"command", "file_path", "path", "url"} {
		if v, ok := input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// UserPromptSubmitEvent is received when the operator (or a driving process)
// submits a prompt to the agent.
type UserPromptSubmitEvent struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

// StopEvent is received at a natural stopping point of the agent.
type StopEvent struct {
	SessionID string `json:"session_id"`
}

// Output is the decision record written back to the host runtime.
// PermissionDecision is always one of allow, deny, ask.
type Output struct {
	HookSpecificOutput SpecificOutput `json:"hookSpecificOutput"`
}

// SpecificOutput carries the per-event decision payload.
type SpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// NewOutput builds a decision record for the given event.
func NewOutput(event, decision, reason string) Output {
	return Output{
		HookSpecificOutput: SpecificOutput{
			HookEventName:            event,
			PermissionDecision:       decision,
			PermissionDecisionReason: reason,
		},
	}
}

// Decode reads one JSON event from r into v.
func Decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode hook event: %w", err)
	}
	return nil
}

// Emit writes the decision record to w. An unparsable response is equivalent
// to an unsafe default from the host's point of view, so encoding failures
// are reported to the caller.
func Emit(w io.Writer, out Output) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("emit hook output: %w", err)
	}
	return nil
}

// Guard runs fn and converts any panic or error into an ask decision for the
// given event. A hook must always emit a valid decision.
func Guard(event string, fn func() (Output, error)) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			out = NewOutput(event, DecisionAsk, fmt.Sprintf("internal error: %v", r))
		}
	}()
	out, err := fn()
	if err != nil {
		return NewOutput(event, DecisionAsk, fmt.Sprintf("internal error: %v", err))
	}
	return out
}
