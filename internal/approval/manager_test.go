package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leash-dev/leash/internal/audit"
)

func TestApproved(t *testing.T) {
	m := NewManager(nil)
	id := m.Create(&Request{Tool: "Bash", Command: "terraform apply"})

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := m.Respond(id, true); err != nil {
			t.Errorf("respond failed: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	approved, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if !approved {
		t.Fatal("expected approved=true")
	}
}

func TestDenied(t *testing.T) {
	m := NewManager(nil)
	id := m.Create(&Request{Tool: "Bash"})

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Respond(id, false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	approved, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if approved {
		t.Fatal("expected approved=false")
	}
}

func TestTimeout(t *testing.T) {
	m := NewManager(nil)
	id := m.Create(&Request{Tool: "Bash"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	approved, err := m.Wait(ctx, id)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if approved {
		t.Fatal("expected approved=false on timeout")
	}
}

func TestRespondNonexistent(t *testing.T) {
	m := NewManager(nil)
	if err := m.Respond("nonexistent", true); err == nil {
		t.Fatal("expected error for nonexistent approval")
	}
}

func TestLifecyclePersistedToStore(t *testing.T) {
	store, err := audit.NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	m := NewManager(store)
	id := m.Create(&Request{SessionID: "s1", Tool: "Bash", Command: "terraform apply"})

	status, err := store.ApprovalStatus(id)
	if err != nil || status != audit.StatusPending {
		t.Fatalf("want pending, got %q err=%v", status, err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Respond(id, false)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := m.Wait(ctx, id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	status, _ = store.ApprovalStatus(id)
	if status != audit.StatusDenied {
		t.Fatalf("want denied, got %q", status)
	}
}

func TestStaleApprovalsSweptOnStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := audit.NewStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	if err := store.InsertApproval(&audit.ApprovalRecord{CorrelationID: "left-over", SessionID: "s0", Tool: "Bash"}); err != nil {
		t.Fatal(err)
	}

	// A new manager (fresh process) sweeps leftovers from a dead one.
	// Shrink the stale threshold so the fresh row qualifies.
	old := staleAfter
	staleAfter = -time.Minute
	defer func() { staleAfter = old }()
	_ = NewManager(store)

	status, _ := store.ApprovalStatus("left-over")
	if status != audit.StatusTimedOut {
		t.Fatalf("want timed_out, got %q", status)
	}
}
