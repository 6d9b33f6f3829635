// Package session provides persistent per-session workflow state.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Session is one tracked agent run. Workflow is set at most once, on first
// detection; ContinuationCount only increases for the lifetime of the record.
type Session struct {
	SessionID         string    `json:"session_id"`
	Workflow          string    `json:"workflow,omitempty"`
	State             string    `json:"state,omitempty"`
	ContinuationCount int       `json:"continuation_count"`
	MaxContinuations  int       `json:"max_continuations"`
	IssueNo           int       `json:"issue_no,omitempty"`
	PRNo              int       `json:"pr_no,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Store persists sessions as one JSON record per session id, plus a
// secondary index from issue/PR number to session id. Writes are
// last-writer-wins; sessions are never deleted automatically.
type Store struct {
	dir string
}

// NewStore creates a session store under stateDir.
func NewStore(stateDir string) (*Store, error) {
	dir := filepath.Join(stateDir, "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load returns the session for the given id, or nil if no record exists.
// A corrupt record is treated as no session; the caller fails closed.
func (s *Store) Load(sessionID string) *Session {
	data, err := os.ReadFile(s.sessionPath(sessionID))
	if err != nil {
		return nil
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil
	}
	if sess.SessionID == "" {
		return nil
	}
	return &sess
}

// Save persists a session record and refreshes the secondary index.
func (s *Store) Save(sess *Session) error {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(s.sessionPath(sess.SessionID), data, 0644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	if sess.IssueNo > 0 || sess.PRNo > 0 {
		if err := s.updateIndex(sess); err != nil {
			return err
		}
	}
	return nil
}

// AttachWorkflow sets the workflow on a session exactly once. Later calls
// for a session that already carries a workflow are ignored.
func (s *Store) AttachWorkflow(sess *Session, workflow, initialState string, issueNo, prNo int) bool {
	if sess.Workflow != "" {
		return false
	}
	sess.Workflow = workflow
	sess.State = initialState
	sess.IssueNo = issueNo
	sess.PRNo = prNo
	return true
}

// List returns all persisted sessions, most recently updated first.
func (s *Store) List() []Session {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var out []Session
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") || entry.Name() == indexFile {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if json.Unmarshal(data, &sess) != nil || sess.SessionID == "" {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

const indexFile = "index.json"

// index maps "issue:N" and "pr:N" keys to session ids so external actors
// (e.g. a notifier) can find a session in O(1).
type index map[string]string

func (s *Store) readIndex() index {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		return index{}
	}
	var idx index
	if json.Unmarshal(data, &idx) != nil || idx == nil {
		return index{}
	}
	return idx
}

func (s *Store) updateIndex(sess *Session) error {
	idx := s.readIndex()
	if sess.IssueNo > 0 {
		idx[fmt.Sprintf("issue:%d", sess.IssueNo)] = sess.SessionID
	}
	if sess.PRNo > 0 {
		idx[fmt.Sprintf("pr:%d", sess.PRNo)] = sess.SessionID
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFile), data, 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// LookupIssue returns the session id tracked for an issue number.
func (s *Store) LookupIssue(issueNo int) (string, bool) {
	id, ok := s.readIndex()[fmt.Sprintf("issue:%d", issueNo)]
	return id, ok
}

// LookupPR returns the session id tracked for a PR number.
func (s *Store) LookupPR(prNo int) (string, bool) {
	id, ok := s.readIndex()[fmt.Sprintf("pr:%d", prNo)]
	return id, ok
}

func (s *Store) sessionPath(sessionID string) string {
	safe := strings.ReplaceAll(sessionID, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, "..", "_")
	return filepath.Join(s.dir, filepath.Base(safe)+".json")
}
