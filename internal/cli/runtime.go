package cli

import (
	"path/filepath"

	"github.com/leash-dev/leash/internal/approval"
	"github.com/leash-dev/leash/internal/arbiter"
	"github.com/leash-dev/leash/internal/audit"
	"github.com/leash-dev/leash/internal/config"
	"github.com/leash-dev/leash/internal/governor"
	"github.com/leash-dev/leash/internal/history"
	"github.com/leash-dev/leash/internal/judge"
	"github.com/leash-dev/leash/internal/rules"
	"github.com/leash-dev/leash/internal/session"
	"github.com/leash-dev/leash/internal/telegram"
	"github.com/leash-dev/leash/internal/workflow"
)

// runtime is the fully wired control plane for one hook invocation. Hooks
// are short-lived processes, so everything is rebuilt from configuration on
// every call.
type runtime struct {
	cfg      *config.Config
	sessions *session.Store
	registry *workflow.Registry
	history  *history.Logger
	audit    *audit.Store
	arbiter  *arbiter.Arbiter
	governor *governor.Governor
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	set, creds, err := rules.Load(cfg.Paths.ProjectRules, cfg.Paths.LocalRules)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		cfg.MergeTelegramCreds(creds.Enabled, creds.Token, creds.ChatID)
	}

	sessions, err := session.NewStore(cfg.Paths.StateDir)
	if err != nil {
		return nil, err
	}

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.NewStore(auditPath(cfg))
		if err != nil {
			return nil, err
		}
	}

	registry := workflow.NewRegistry()
	hist := history.NewLogger(cfg.Audit.Enabled, cfg.Paths.StateDir)

	rt := &runtime{
		cfg:      cfg,
		sessions: sessions,
		registry: registry,
		history:  hist,
		audit:    auditStore,
		arbiter: &arbiter.Arbiter{
			Rules:     set,
			Sessions:  sessions,
			Registry:  registry,
			Audit:     auditStore,
			OnTimeout: cfg.Telegram.OnTimeout,
		},
		governor: &governor.Governor{
			Config:   cfg.HandsOff,
			Sessions: sessions,
			Registry: registry,
			History:  hist,
		},
	}

	if j := judge.New(cfg.Judge); j.Ready() {
		rt.arbiter.Judge = j
	}
	if cfg.Telegram.Ready() {
		manager := approval.NewManager(auditStore)
		rt.arbiter.Escalator = telegram.NewChannel(cfg.Telegram, manager, auditStore)
	}
	return rt, nil
}

func auditPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "audit.db")
}

func (r *runtime) Close() {
	if r.audit != nil {
		r.audit.Close()
	}
}
