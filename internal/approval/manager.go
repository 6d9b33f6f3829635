// Package approval mediates pending human-escalation decisions.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leash-dev/leash/internal/audit"
)

// Request describes one tool call awaiting a human decision.
type Request struct {
	CorrelationID string    `json:"correlation_id"`
	SessionID     string    `json:"session_id"`
	Tool          string    `json:"tool"`
	Command       string    `json:"command"`
	Status        string    `json:"status"` // pending, allowed, denied, timed_out
	CreatedAt     time.Time `json:"created_at"`
}

// Manager handles the approval lifecycle: create, wait, respond.
// The audit store may be nil; persistence is best-effort.
type Manager struct {
	mu      sync.Mutex
	pending map[string]chan bool
	store   *audit.Store
}

// staleAfter is the age past which a pending approval is considered
// abandoned by a dead process. It must exceed any configurable wait timeout
// so a concurrent process's live approval is never swept.
var staleAfter = 30 * time.Minute

// NewManager creates an approval manager. On creation, pending approvals
// left behind by a previous process are marked as timed out.
func NewManager(store *audit.Store) *Manager {
	m := &Manager{
		pending: make(map[string]chan bool),
		store:   store,
	}
	if store != nil {
		_ = store.SweepStale(staleAfter)
	}
	return m
}

// Create registers a new request and returns its correlation id.
func (m *Manager) Create(req *Request) string {
	id := uuid.NewString()
	req.CorrelationID = id
	req.Status = audit.StatusPending
	req.CreatedAt = time.Now()

	ch := make(chan bool, 1)
	m.mu.Lock()
	m.pending[id] = ch
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.InsertApproval(&audit.ApprovalRecord{
			CorrelationID: id,
			SessionID:     req.SessionID,
			Tool:          req.Tool,
			Command:       req.Command,
		})
	}
	return id
}

// Wait blocks until the request is responded to or the context expires.
// On timeout the approval is marked timed out and false is returned with
// the context error.
func (m *Manager) Wait(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	ch, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("no pending approval: %s", id)
	}

	select {
	case approved := <-ch:
		m.cleanup(id)
		status := audit.StatusDenied
		if approved {
			status = audit.StatusAllowed
		}
		if m.store != nil {
			_ = m.store.UpdateApprovalStatus(id, status)
		}
		return approved, nil
	case <-ctx.Done():
		m.cleanup(id)
		if m.store != nil {
			_ = m.store.UpdateApprovalStatus(id, audit.StatusTimedOut)
		}
		return false, ctx.Err()
	}
}

// Respond delivers a decision for a pending request.
func (m *Manager) Respond(id string, approved bool) error {
	m.mu.Lock()
	ch, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending approval: %s", id)
	}

	// Non-blocking send; the channel is buffered with size 1.
	select {
	case ch <- approved:
	default:
	}
	return nil
}

// Cancel drops a pending request without resolving it. The persisted row
// stays pending and is swept to timed_out by the next startup.
func (m *Manager) Cancel(id string) {
	m.cleanup(id)
}

func (m *Manager) cleanup(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}
