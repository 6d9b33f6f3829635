// Package config provides configuration types and loading for leash.
package config

import "time"

// Config is the root configuration struct. It is built once per hook
// invocation and threaded through every pipeline tier; tiers never read
// environment state ad hoc.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	HandsOff HandsOffConfig `json:"handsOff"`
	Telegram TelegramConfig `json:"telegram"`
	Judge    JudgeConfig    `json:"judge"`
	Audit    AuditConfig    `json:"audit"`
}

// PathsConfig groups filesystem locations.
type PathsConfig struct {
	// StateDir holds session records, the issue index, and debug logs.
	// Defaults to .leash under the working directory of the hook.
	StateDir string `json:"stateDir" envconfig:"STATE_DIR"`
	// ProjectRules is the project-level rules file.
	ProjectRules string `json:"projectRules" envconfig:"PROJECT_RULES"`
	// LocalRules is the user-local rules file (may carry bot credentials).
	LocalRules string `json:"localRules" envconfig:"LOCAL_RULES"`
}

// HandsOffConfig controls unattended continuation.
type HandsOffConfig struct {
	Enabled bool `json:"enabled" envconfig:"ENABLED"`
	// MaxContinuations bounds self-continuations per session. Zero or
	// negative means not configured; the governor fails closed.
	MaxContinuations int `json:"maxContinuations" envconfig:"MAX_CONTINUATIONS"`
}

// TelegramConfig configures the human escalation channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Token   string `json:"token" envconfig:"TOKEN"`
	ChatID  string `json:"chatId" envconfig:"CHAT_ID"`
	// APIBase overrides the bot API endpoint (used in tests).
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
	// WaitTimeout bounds the blocking wait for an operator response.
	WaitTimeout time.Duration `json:"waitTimeout" envconfig:"WAIT_TIMEOUT"`
	// OnTimeout is the decision when no operator responds: "ask" or "deny".
	OnTimeout string `json:"onTimeout" envconfig:"ON_TIMEOUT"`
}

// Ready reports whether the channel is configured well enough to contact.
func (t TelegramConfig) Ready() bool {
	return t.Enabled && t.Token != "" && t.ChatID != ""
}

// JudgeConfig configures the secondary-model escalation tier.
type JudgeConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
	Model   string `json:"model" envconfig:"MODEL"`
}

// Ready reports whether the judge can be called.
func (j JudgeConfig) Ready() bool {
	return j.Enabled && j.APIKey != ""
}

// AuditConfig controls the append-only decision trail.
type AuditConfig struct {
	Enabled bool `json:"enabled" envconfig:"ENABLED"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			StateDir:     ".leash",
			ProjectRules: ".leash/rules.yaml",
		},
		HandsOff: HandsOffConfig{
			Enabled:          false,
			MaxContinuations: 0, // must be set explicitly; governor fails closed
		},
		Telegram: TelegramConfig{
			WaitTimeout: 5 * time.Minute,
			OnTimeout:   "ask",
		},
		Judge: JudgeConfig{
			Model: "gpt-4o-mini",
		},
	}
}

// MergeTelegramCreds applies bot credentials found in the local rules file.
// File credentials fill gaps; explicit config and environment win.
func (c *Config) MergeTelegramCreds(enabled bool, token, chatID string) {
	if c.Telegram.Token == "" && token != "" {
		c.Telegram.Token = token
	}
	if c.Telegram.ChatID == "" && chatID != "" {
		c.Telegram.ChatID = chatID
	}
	if enabled {
		c.Telegram.Enabled = true
	}
}
