// Package workflow defines the static registry of recognized multi-step
// workflows and their state graphs.
package workflow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/leash-dev/leash/internal/rules"
)

// StateDone is the terminal state of every workflow.
const StateDone = "done"

// NumberKind says which kind of numeric argument a workflow invocation
// carries. Issue and PR extractions are never conflated.
type NumberKind int

const (
	NumberNone NumberKind = iota
	NumberIssue
	NumberPR
)

// Transition advances a workflow when a tool call matches its pattern.
type Transition struct {
	From    string
	To      string
	Tool    string
	Pattern *regexp.Regexp
}

// ToolPattern is a workflow-scoped auto-allow entry. An empty Pattern
// matches any call of the tool.
type ToolPattern struct {
	Tool    string
	Pattern *regexp.Regexp
}

// Workflow is one entry of the static registry.
type Workflow struct {
	Name         string
	Invocation   string
	InitialState string
	Number       NumberKind
	Transitions  []Transition
	AutoAllow    []ToolPattern
}

// NextState returns the state reached when the given tool call fires a
// transition from the current state. The boolean reports whether any
// transition matched.
func (w *Workflow) NextState(current, tool, command string) (string, bool) {
	cmd := rules.Normalize(command)
	for _, tr := range w.Transitions {
		if tr.From != current || tr.Tool != tool {
			continue
		}
		if tr.Pattern == nil || tr.Pattern.MatchString(cmd) {
			return tr.To, true
		}
	}
	return current, false
}

// AutoAllowed reports whether the tool call matches the workflow's
// auto-allow list. Conditioned on workflow identity, not on state.
func (w *Workflow) AutoAllowed(tool, command string) bool {
	cmd := rules.Normalize(command)
	for _, p := range w.AutoAllow {
		if p.Tool != tool {
			continue
		}
		if p.Pattern == nil || p.Pattern.MatchString(cmd) {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state is the workflow's terminal state.
func IsTerminal(state string) bool {
	return state == StateDone
}

// Registry holds the known workflows in declaration order.
type Registry struct {
	workflows []*Workflow
	byName    map[string]*Workflow
}

// NewRegistry returns the built-in workflow table.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Workflow)}
	for _, w := range builtinWorkflows() {
		r.workflows = append(r.workflows, w)
		r.byName[w.Name] = w
	}
	return r
}

// Lookup returns a workflow by name.
func (r *Registry) Lookup(name string) (*Workflow, bool) {
	w, ok := r.byName[name]
	return w, ok
}

// Detection is the result of matching a session's first prompt.
type Detection struct {
	Workflow *Workflow
	IssueNo  int
	PRNo     int
}

var numberArg = regexp.MustCompile(`#?(\d+)`)

// Detect inspects a prompt for a known workflow invocation. Only the first
// prompt of a session should be passed here; later prompts never change a
// session's workflow. Unrecognized prompts return ok=false.
func (r *Registry) Detect(prompt string) (Detection, bool) {
	trimmed := strings.TrimSpace(prompt)
	for _, w := range r.workflows {
		if trimmed != w.Invocation && !strings.HasPrefix(trimmed, w.Invocation+" ") {
			continue
		}
		det := Detection{Workflow: w}
		rest := strings.TrimPrefix(trimmed, w.Invocation)
		switch w.Number {
		case NumberIssue:
			det.IssueNo = extractNumber(rest)
		case NumberPR:
			det.PRNo = extractNumber(rest)
		}
		return det, true
	}
	return Detection{}, false
}

func extractNumber(s string) int {
	m := numberArg.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func bash(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

func builtinWorkflows() []*Workflow {
	gitWork := []ToolPattern{
		{Tool: "Bash", Pattern: bash(`^git (add|commit|checkout|switch|restore|stash)\b`)},
		{Tool: "Bash", Pattern: bash(`^git push\b`)},
		{Tool: "Bash", Pattern: bash(`^go (build|test|vet|run|mod)\b`)},
		{Tool: "Bash", Pattern: bash(`^make\b`)},
		{Tool: "Write"},
		{Tool: "Edit"},
	}

	return []*Workflow{
		{
			Name:         "issue-to-impl",
			Invocation:   "/issue-to-impl",
			InitialState: "planning",
			Number:       NumberIssue,
			Transitions: []Transition{
				{From: "planning", To: "docs_tests", Tool: "TodoWrite"},
				{From: "docs_tests", To: "implementation", Tool: "Bash",
					Pattern: bash(`^gh issue edit \d+ .*--add-label\b`)},
				{From: "implementation", To: StateDone, Tool: "Bash",
					Pattern: bash(`^gh pr create\b`)},
			},
			AutoAllow: append([]ToolPattern{
				{Tool: "Bash", Pattern: bash(`^gh issue (view|comment|edit)\b`)},
				{Tool: "Bash", Pattern: bash(`^gh pr create\b`)},
			}, gitWork...),
		},
		{
			Name:         "fix-issue",
			Invocation:   "/fix-issue",
			InitialState: "triage",
			Number:       NumberIssue,
			Transitions: []Transition{
				{From: "triage", To: "implementation", Tool: "Bash",
					Pattern: bash(`^gh issue edit \d+ .*--add-label\b`)},
				{From: "implementation", To: StateDone, Tool: "Bash",
					Pattern: bash(`^gh pr create\b`)},
			},
			AutoAllow: append([]ToolPattern{
				{Tool: "Bash", Pattern: bash(`^gh issue (view|comment|edit)\b`)},
				{Tool: "Bash", Pattern: bash(`^gh pr create\b`)},
			}, gitWork...),
		},
		{
			Name:         "review-pr",
			Invocation:   "/review-pr",
			InitialState: "reviewing",
			Number:       NumberPR,
			Transitions: []Transition{
				{From: "reviewing", To: StateDone, Tool: "Bash",
					Pattern: bash(`^gh pr review\b`)},
			},
			AutoAllow: []ToolPattern{
				{Tool: "Bash", Pattern: bash(`^gh pr (view|diff|checks|checkout|review)\b`)},
				{Tool: "Bash", Pattern: bash(`^git (log|diff|show|fetch)\b`)},
			},
		},
		{
			Name:         "address-comments",
			Invocation:   "/address-comments",
			InitialState: "updating",
			Number:       NumberPR,
			Transitions: []Transition{
				{From: "updating", To: StateDone, Tool: "Bash",
					Pattern: bash(`^git push\b`)},
			},
			AutoAllow: append([]ToolPattern{
				{Tool: "Bash", Pattern: bash(`^gh pr (view|diff|comment)\b`)},
			}, gitWork...),
		},
		{
			Name:         "release",
			Invocation:   "/release",
			InitialState: "prep",
			Number:       NumberNone,
			Transitions: []Transition{
				{From: "prep", To: "tagging", Tool: "Bash",
					Pattern: bash(`^git tag\b`)},
				{From: "tagging", To: StateDone, Tool: "Bash",
					Pattern: bash(`^git push .*--tags\b`)},
			},
			AutoAllow: []ToolPattern{
				{Tool: "Bash", Pattern: bash(`^git (log|diff|status|tag)\b`)},
				{Tool: "Bash", Pattern: bash(`^gh release (view|list)\b`)},
			},
		},
	}
}
