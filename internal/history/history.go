// Package history provides the append-only per-session audit trail.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one logged lifecycle event. The fields are enough to replay a
// session's full state trajectory without re-running the agent.
type Entry struct {
	Event     string    `json:"event"` // UserPromptSubmit, PostToolUse, Stop
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Workflow  string    `json:"workflow,omitempty"`
	State     string    `json:"state,omitempty"`
	Count     int       `json:"count"`
	Max       int       `json:"max"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ToolName  string    `json:"tool_name,omitempty"`
	ToolArgs  string    `json:"tool_args,omitempty"`
	NewState  string    `json:"new_state,omitempty"`
}

// Logger appends entries to one JSONL file per session under the debug
// subdirectory of the state dir. It is a no-op unless enabled.
type Logger struct {
	enabled bool
	dir     string
}

// NewLogger creates a history logger. When disabled, Append does nothing
// and no directory is created.
func NewLogger(enabled bool, stateDir string) *Logger {
	return &Logger{
		enabled: enabled,
		dir:     filepath.Join(stateDir, "debug"),
	}
}

// Enabled reports whether the logger will record anything.
func (l *Logger) Enabled() bool { return l.enabled }

// Append writes exactly one line for the entry. Lines are never rewritten.
func (l *Logger) Append(e Entry) error {
	if !l.enabled {
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create debug dir: %w", err)
	}
	f, err := os.OpenFile(l.path(e.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// Read returns all entries for a session in append order. Unparsable lines
// are skipped.
func (l *Logger) Read(sessionID string) []Entry {
	f, err := os.Open(l.path(sessionID))
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if json.Unmarshal(scanner.Bytes(), &e) == nil {
			out = append(out, e)
		}
	}
	return out
}

func (l *Logger) path(sessionID string) string {
	safe := strings.ReplaceAll(sessionID, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, "..", "_")
	return filepath.Join(l.dir, filepath.Base(safe)+".jsonl")
}
