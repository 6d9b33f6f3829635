// Package rules provides layered pattern rules for tool-call authorization.
package rules

import (
	"regexp"
	"strings"
)

// Decision is the outcome of a rule match.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
	Ask   Decision = "ask"
)

// Origin identifies which layer a rule was loaded from. Origin determines
// load order, not evaluation priority.
type Origin string

const (
	OriginBuiltin Origin = "builtin"
	OriginProject Origin = "project"
	OriginLocal   Origin = "local"
)

// Rule matches a tool call against a command pattern. Exactly one of Prefix
// or Regex is set for Bash-scoped rules; rules without either match on tool
// name alone. Tool "*" matches any tool. Rules are immutable once loaded.
type Rule struct {
	Tool     string
	Prefix   string
	Regex    string
	Decision Decision
	Origin   Origin

	re *regexp.Regexp
}

// Matches reports whether the rule applies to the given tool and normalized
// command string.
func (r *Rule) Matches(tool, command string) bool {
	if r.Tool != "*" && r.Tool != tool {
		return false
	}
	if r.Prefix == "" && r.re == nil {
		return true
	}
	if r.Prefix != "" && strings.HasPrefix(command, r.Prefix) {
		return true
	}
	if r.re != nil && r.re.MatchString(command) {
		return true
	}
	return false
}

// RuleSet is the ordered concatenation of all loaded rule layers,
// builtin first, then project, then local.
type RuleSet struct {
	rules []Rule
}

// Rules returns the rules in evaluation order.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of loaded rules.
func (s *RuleSet) Len() int { return len(s.rules) }

var envAssignPrefix = regexp.MustCompile(`^(?:[A-Za-z_][A-Za-z0-9_]*=\S*\s+)+`)

// Normalize strips leading inline environment assignments so
// "FOO=1 git status" matches the same rules as "git status".
func Normalize(command string) string {
	trimmed := strings.TrimSpace(command)
	return envAssignPrefix.ReplaceAllString(trimmed, "")
}

// Match evaluates a tool call against the rule set, top to bottom. The first
// allow or deny match wins. An explicit ask rule is not adopted as a final
// answer; scanning continues, and ask is returned only if nothing stronger
// matched. No match at all yields ask, never a silent allow.
func (s *RuleSet) Match(tool, command string) Decision {
	cmd := Normalize(command)
	for i := range s.rules {
		r := &s.rules[i]
		if !r.Matches(tool, cmd) {
			continue
		}
		if r.Decision == Allow || r.Decision == Deny {
			return r.Decision
		}
	}
	return Ask
}

// MatchRule is like Match but also returns the winning rule, if any.
func (s *RuleSet) MatchRule(tool, command string) (Decision, *Rule) {
	cmd := Normalize(command)
	for i := range s.rules {
		r := &s.rules[i]
		if !r.Matches(tool, cmd) {
			continue
		}
		if r.Decision == Allow || r.Decision == Deny {
			return r.Decision, r
		}
	}
	return Ask, nil
}

// builtinRules are the compiled-in defaults. Read-only discovery tools are
// unconditionally allowed; destructive shell commands are denied outright;
// everything else is left to the project/local layers or the pipeline.
func builtinRules() []Rule {
	safeTools := []string{"Grep", "Glob", "Read", "TodoWrite", "Task", "AskUserQuestion"}
	out := make([]Rule, 0, len(safeTools)+24)
	for _, tool := range safeTools {
		out = append(out, Rule{Tool: tool, Decision: Allow, Origin: OriginBuiltin})
	}

	denyPatterns := []string{
		`\brm\s+-[a-z]*r[a-z]*f\b`,
		`\brm\s+(-[rf]+\s+)*[/~]`,
		`\brm\s+\*`,
		`\bgit\s+push\s+.*--force\b`,
		`\bgit\s+reset\s+--hard\b`,
		`\bfind\b.*\b-delete\b`,
		`\bdd\b.*\bof=/dev/`,
		`\bmkfs\b`,
		`>\s*/dev/`,
		`\bchmod\s+-R\s+777\b`,
		`\bshutdown\b`,
		`\breboot\b`,
	}
	for _, p := range denyPatterns {
		out = append(out, Rule{Tool: "Bash", Regex: p, Decision: Deny, Origin: OriginBuiltin})
	}

	allowPrefixes := []string{
		"git status", "git diff", "git log", "git show", "git branch",
		"cat ", "head ", "tail ", "wc ", "rg ", "grep ",
		"go build", "go vet", "go test",
	}
	for _, p := range allowPrefixes {
		out = append(out, Rule{Tool: "Bash", Prefix: p, Decision: Allow, Origin: OriginBuiltin})
	}
	for _, p := range []string{`^ls(\s|$)`, `^pwd$`, `^echo\s`} {
		out = append(out, Rule{Tool: "Bash", Regex: p, Decision: Allow, Origin: OriginBuiltin})
	}
	return out
}
