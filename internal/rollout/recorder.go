package rollout

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrUnreliable is returned by Append after a write has failed. The journal
// is degraded: the conversation continues, but persistence can no longer be
// trusted. Callers surface a warning once and keep going.
var ErrUnreliable = errors.New("rollout journal unreliable after write failure")

// Recorder appends events to a single conversation's journal. Writes go
// straight to the file descriptor (no userspace buffering) so every accepted
// event is flushed before Append returns.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	failed bool
}

type headerRecord struct {
	Type EventType `json:"type"`
	Header
}

// NewRecorder creates the journal file for a conversation and writes the
// header record as its first line. The date partition directories are
// created as needed.
func NewRecorder(agentHome string, hdr Header, startedAt time.Time) (*Recorder, error) {
	if hdr.ConversationID == "" {
		return nil, errors.New("rollout: conversation id is required")
	}
	path := FilePath(agentHome, startedAt, hdr.ConversationID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: create sessions dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: open journal: %w", err)
	}
	r := &Recorder{f: f, path: path}
	if err := r.writeLine(headerRecord{Type: EventSessionMeta, Header: hdr}); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return r, nil
}

// OpenRecorder reopens an existing journal for appending, e.g. on resume.
// The header is not rewritten.
func OpenRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: reopen journal: %w", err)
	}
	return &Recorder{f: f, path: path}, nil
}

// Path returns the journal file path.
func (r *Recorder) Path() string { return r.path }

// Append journals one event. After the first write failure the recorder is
// permanently degraded and every subsequent call returns ErrUnreliable
// without touching the file.
func (r *Recorder) Append(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return ErrUnreliable
	}
	if err := r.writeLine(ev); err != nil {
		r.failed = true
		return err
	}
	return nil
}

func (r *Recorder) writeLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rollout: marshal record: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.f.Write(data); err != nil {
		return fmt.Errorf("rollout: write record: %w", err)
	}
	return nil
}

// Close syncs and closes the journal file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	syncErr := r.f.Sync()
	closeErr := r.f.Close()
	r.f = nil
	r.failed = true
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// ReadJournal reads a journal file back into its header and events.
// Malformed lines are skipped rather than failing the whole read, matching
// the replay rule that unknown or unreadable records are ignored.
func ReadJournal(path string) (Header, []Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("rollout: read journal: %w", err)
	}
	var hdr Header
	var events []Event
	first := true
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var h headerRecord
			if err := json.Unmarshal(line, &h); err == nil && h.Type == EventSessionMeta {
				hdr = h.Header
				continue
			}
			// No header line; fall through and treat it as an event.
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Type == "" || ev.Type == EventSessionMeta {
			continue
		}
		events = append(events, ev)
	}
	return hdr, events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
