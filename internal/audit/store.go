// Package audit provides the sqlite-backed decision and approval store.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Approval lifecycle statuses.
const (
	StatusPending  = "pending"
	StatusAllowed  = "allowed"
	StatusDenied   = "denied"
	StatusTimedOut = "timed_out"
)

// DecisionRecord is one logged arbitration outcome.
type DecisionRecord struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	SessionID string    `json:"session_id"`
	Tool      string    `json:"tool"`
	Command   string    `json:"command,omitempty"`
	Tier      string    `json:"tier"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ApprovalRecord is one human escalation request and its resolution.
type ApprovalRecord struct {
	ID            int64      `json:"id"`
	CorrelationID string     `json:"correlation_id"`
	SessionID     string     `json:"session_id"`
	Tool          string     `json:"tool"`
	Command       string     `json:"command,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT UNIQUE NOT NULL,
	session_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	command TEXT DEFAULT '',
	tier TEXT NOT NULL,
	decision TEXT NOT NULL,
	reason TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id);

CREATE TABLE IF NOT EXISTS approvals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	correlation_id TEXT UNIQUE NOT NULL,
	session_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	command TEXT DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	responded_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);
CREATE INDEX IF NOT EXISTS idx_approvals_correlation ON approvals(correlation_id);
`

// Store records arbitration decisions and approval lifecycles.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) the audit database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// InsertDecision appends one arbitration outcome.
func (s *Store) InsertDecision(d *DecisionRecord) error {
	d.EventID = ulid.Make().String()
	_, err := s.db.Exec(
		`INSERT INTO decisions (event_id, session_id, tool, command, tier, decision, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.EventID, d.SessionID, d.Tool, d.Command, d.Tier, d.Decision, d.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns the recorded decisions for a session, oldest first.
func (s *Store) ListDecisions(sessionID string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		`SELECT id, event_id, session_id, tool, command, tier, decision, reason, created_at
		 FROM decisions WHERE session_id = ? ORDER BY id ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(&d.ID, &d.EventID, &d.SessionID, &d.Tool, &d.Command,
			&d.Tier, &d.Decision, &d.Reason, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertApproval records a new pending approval request.
func (s *Store) InsertApproval(a *ApprovalRecord) error {
	if a.Status == "" {
		a.Status = StatusPending
	}
	_, err := s.db.Exec(
		`INSERT INTO approvals (correlation_id, session_id, tool, command, status)
		 VALUES (?, ?, ?, ?, ?)`,
		a.CorrelationID, a.SessionID, a.Tool, a.Command, a.Status,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// UpdateApprovalStatus moves an approval to a terminal status.
func (s *Store) UpdateApprovalStatus(correlationID, status string) error {
	_, err := s.db.Exec(
		`UPDATE approvals SET status = ?, responded_at = CURRENT_TIMESTAMP WHERE correlation_id = ?`,
		status, correlationID,
	)
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	return nil
}

// ApprovalStatus returns the current status for a correlation id.
func (s *Store) ApprovalStatus(correlationID string) (string, error) {
	var status string
	err := s.db.QueryRow(
		`SELECT status FROM approvals WHERE correlation_id = ?`, correlationID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no approval with correlation id %s", correlationID)
	}
	if err != nil {
		return "", fmt.Errorf("query approval: %w", err)
	}
	return status, nil
}

// PendingApprovals returns all approvals still pending.
func (s *Store) PendingApprovals() ([]ApprovalRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, correlation_id, session_id, tool, command, status, created_at
		 FROM approvals WHERE status = ? ORDER BY id ASC`, StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []ApprovalRecord
	for rows.Next() {
		var a ApprovalRecord
		if err := rows.Scan(&a.ID, &a.CorrelationID, &a.SessionID, &a.Tool,
			&a.Command, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SweepStale marks pending approvals left behind by a dead process as timed
// out. Called once at startup.
func (s *Store) SweepStale(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	_, err := s.db.Exec(
		`UPDATE approvals SET status = ?, responded_at = CURRENT_TIMESTAMP
		 WHERE status = ? AND created_at < ?`,
		StatusTimedOut, StatusPending, cutoff,
	)
	if err != nil {
		return fmt.Errorf("sweep stale approvals: %w", err)
	}
	return nil
}
