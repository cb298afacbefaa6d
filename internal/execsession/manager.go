package execsession

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrUnknownSessionID is returned by WriteStdin when the session id is not
// registered, including after the session's child has already exited and
// been reaped.
var ErrUnknownSessionID = errors.New("unknown session id")

// Yield time bounds. The effective yield is always clamped into this range
// regardless of what the caller requests.
const (
	MinYieldMs     = 250
	MaxYieldMs     = 30000
	DefaultYieldMs = 10000
)

// bytesPerToken approximates the token budget passed by callers; 1 token is
// treated as 4 bytes.
const bytesPerToken = 4

// ClampYieldMs converts a caller-supplied yield_time_ms (0 meaning
// "use the default") into a duration clamped to [MinYieldMs, MaxYieldMs].
func ClampYieldMs(ms int) time.Duration {
	if ms <= 0 {
		ms = DefaultYieldMs
	}
	if ms < MinYieldMs {
		ms = MinYieldMs
	}
	if ms > MaxYieldMs {
		ms = MaxYieldMs
	}
	return time.Duration(ms) * time.Millisecond
}

// ExecCommandResult is the outcome of ExecCommand or WriteStdin: either the
// child has already exited (ExitCode set, SessionID nil) or it is still
// running and was registered for further write_stdin calls (SessionID set).
type ExecCommandResult struct {
	SessionID *int32
	Output    []byte
	ExitCode  *int
}

// UnifiedExecManager is the exclusive owner of every PtySession created by
// exec_command. Sessions are addressed by a strictly monotonically
// increasing int32 id, never reused even after a session is removed.
//
// The map is guarded by mu, held only across in-memory updates — never
// across the blocking CollectOutput/WriteStdin I/O below.
type UnifiedExecManager struct {
	mu       sync.Mutex
	sessions map[int32]*ExecSession
	nextID   atomic.Int32
}

// NewUnifiedExecManager creates an empty session registry.
func NewUnifiedExecManager() *UnifiedExecManager {
	return &UnifiedExecManager{sessions: make(map[int32]*ExecSession)}
}

// ExecCommand spawns a new session and collects output until either the
// child exits or yieldMs elapses. If the child is still running at the
// deadline, the session is registered and its id returned for write_stdin.
func (m *UnifiedExecManager) ExecCommand(opts SessionOpts, yieldMs int, maxOutputTokens int, heartbeat func(details ...interface{})) (ExecCommandResult, error) {
	sess, err := StartSession(opts)
	if err != nil {
		return ExecCommandResult{}, err
	}

	deadline := time.Now().Add(ClampYieldMs(yieldMs))
	output := truncateToTokens(sess.CollectOutput(deadline, heartbeat), maxOutputTokens)

	if sess.HasExited() {
		return ExecCommandResult{Output: output, ExitCode: sess.ExitCode()}, nil
	}

	id := m.register(sess)
	return ExecCommandResult{SessionID: &id, Output: output}, nil
}

// WriteStdin pipes input (which may be empty, to poll) to a registered
// session and drains output under the same yield deadline. If the child has
// exited by the time output draining finishes, the session is removed and
// this is the caller's last chance to observe its output.
func (m *UnifiedExecManager) WriteStdin(sessionID int32, chars []byte, yieldMs int, maxOutputTokens int, heartbeat func(details ...interface{})) (ExecCommandResult, error) {
	sess, ok := m.lookup(sessionID)
	if !ok {
		return ExecCommandResult{}, ErrUnknownSessionID
	}

	if len(chars) > 0 {
		if err := sess.WriteStdin(chars); err != nil {
			return ExecCommandResult{}, err
		}
	}

	deadline := time.Now().Add(ClampYieldMs(yieldMs))
	output := truncateToTokens(sess.CollectOutput(deadline, heartbeat), maxOutputTokens)

	if sess.HasExited() {
		m.remove(sessionID)
		return ExecCommandResult{Output: output, ExitCode: sess.ExitCode()}, nil
	}

	id := sessionID
	return ExecCommandResult{SessionID: &id, Output: output}, nil
}

func (m *UnifiedExecManager) register(sess *ExecSession) int32 {
	id := m.nextID.Add(1)
	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return id
}

func (m *UnifiedExecManager) lookup(id int32) (*ExecSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *UnifiedExecManager) remove(id int32) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Sweep closes and forgets any registered session whose child has already
// exited. Invariant: sessions map contains only live children at any
// observation point, so periodic sweeping (e.g. between turns) closes the
// window between a background exit and the next write_stdin for it.
func (m *UnifiedExecManager) Sweep() {
	m.mu.Lock()
	var dead []int32
	for id, sess := range m.sessions {
		if sess.HasExited() {
			dead = append(dead, id)
		}
	}
	m.mu.Unlock()
	for _, id := range dead {
		m.remove(id)
	}
}

// ActiveCount returns the number of currently registered sessions.
func (m *UnifiedExecManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func truncateToTokens(output []byte, maxTokens int) []byte {
	if maxTokens <= 0 {
		return output
	}
	maxBytes := maxTokens * bytesPerToken
	if len(output) <= maxBytes {
		return output
	}
	return output[:maxBytes]
}
