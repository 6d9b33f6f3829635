// Package judge resolves ambiguous tool calls with a fast secondary model.
package judge

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/leash-dev/leash/internal/config"
	"github.com/leash-dev/leash/internal/rules"
)

const systemPrompt = `You are a safety reviewer for an autonomous coding agent.
You are shown one tool call the agent wants to make. Reply with exactly one
word:
ALLOW - the call is clearly safe (read-only, or routine development work)
DENY  - the call is clearly destructive, irreversible, or exfiltrates data
ASK   - you are not sure; a human should decide
Never explain. One word only.`

// Judge asks a fast model to classify a tool call. Disabled or failing
// judges always return ask so the pipeline can fall through.
type Judge struct {
	cfg    config.JudgeConfig
	client *openai.Client
}

// New creates a judge from configuration. The client is only constructed
// when the tier is usable.
func New(cfg config.JudgeConfig) *Judge {
	j := &Judge{cfg: cfg}
	if !cfg.Ready() {
		return j
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		cc.BaseURL = cfg.APIBase
	}
	j.client = openai.NewClientWithConfig(cc)
	return j
}

// Ready reports whether the judge can be consulted.
func (j *Judge) Ready() bool { return j.client != nil }

// Evaluate classifies one tool call. Any transport or parse failure
// degrades to ask; this tier never aborts the pipeline.
func (j *Judge) Evaluate(ctx context.Context, tool, target, rationale string) rules.Decision {
	if j.client == nil {
		return rules.Ask
	}

	user := "Tool: " + tool + "\nTarget: " + target
	if rationale != "" {
		user += "\nContext: " + rationale
	}

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.cfg.Model,
		Temperature: 0,
		MaxTokens:   4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil || len(resp.Choices) == 0 {
		return rules.Ask
	}
	return parseVerdict(resp.Choices[0].Message.Content)
}

// parseVerdict maps the model's reply onto a decision. Anything that is
// not an unambiguous ALLOW or DENY is ask.
func parseVerdict(s string) rules.Decision {
	word := strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexAny(word, " \t\n.,:"); i >= 0 {
		word = word[:i]
	}
	switch word {
	case "ALLOW":
		return rules.Allow
	case "DENY":
		return rules.Deny
	default:
		return rules.Ask
	}
}
