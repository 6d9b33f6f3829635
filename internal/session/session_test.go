package session

import (
	"os"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	s := newStore(t)
	sess := &Session{
		SessionID:         "abc-123",
		Workflow:          "issue-to-impl",
		State:             "docs_tests",
		ContinuationCount: 3,
		MaxContinuations:  10,
		IssueNo:           42,
	}
	if err := s.Save(sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := s.Load("abc-123")
	if got == nil {
		t.Fatal("session not found after save")
	}
	if got.Workflow != sess.Workflow || got.State != sess.State ||
		got.ContinuationCount != sess.ContinuationCount ||
		got.MaxContinuations != sess.MaxContinuations {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.IssueNo != 42 || got.PRNo != 0 {
		t.Fatalf("issue/pr numbers mismatch: %+v", got)
	}
}

func TestLoadMissingYieldsNil(t *testing.T) {
	s := newStore(t)
	if got := s.Load("nope"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestCorruptRecordTreatedAsNoSession(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(s.dir, "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := s.Load("broken"); got != nil {
		t.Fatalf("corrupt record must read as no session, got %+v", got)
	}
}

func TestAttachWorkflowOnlyOnce(t *testing.T) {
	s := newStore(t)
	sess := &Session{SessionID: "s1"}
	if !s.AttachWorkflow(sess, "fix-issue", "triage", 7, 0) {
		t.Fatal("first attach should succeed")
	}
	if s.AttachWorkflow(sess, "review-pr", "reviewing", 0, 9) {
		t.Fatal("second attach must be ignored")
	}
	if sess.Workflow != "fix-issue" || sess.State != "triage" || sess.IssueNo != 7 {
		t.Fatalf("workflow overwritten: %+v", sess)
	}
}

func TestIssueAndPRIndex(t *testing.T) {
	s := newStore(t)
	if err := s.Save(&Session{SessionID: "s-issue", Workflow: "fix-issue", IssueNo: 101}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(&Session{SessionID: "s-pr", Workflow: "review-pr", PRNo: 202}); err != nil {
		t.Fatal(err)
	}

	if id, ok := s.LookupIssue(101); !ok || id != "s-issue" {
		t.Fatalf("issue lookup failed: %q %v", id, ok)
	}
	if id, ok := s.LookupPR(202); !ok || id != "s-pr" {
		t.Fatalf("pr lookup failed: %q %v", id, ok)
	}
	if _, ok := s.LookupIssue(202); ok {
		t.Fatal("issue and PR numbers must never be conflated")
	}
}

func TestListSkipsIndexFile(t *testing.T) {
	s := newStore(t)
	if err := s.Save(&Session{SessionID: "a", IssueNo: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(&Session{SessionID: "b"}); err != nil {
		t.Fatal(err)
	}
	got := s.List()
	if len(got) != 2 {
		t.Fatalf("want 2 sessions, got %d", len(got))
	}
}

func TestSessionPathSanitized(t *testing.T) {
	s := newStore(t)
	sess := &Session{SessionID: "../../etc/passwd"}
	if err := s.Save(sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Fatalf("unexpected directory created: %s", e.Name())
		}
	}
}
