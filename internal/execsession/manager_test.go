package execsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedExecManager_ShortCommandReturnsNoSessionID(t *testing.T) {
	m := NewUnifiedExecManager()
	result, err := m.ExecCommand(SessionOpts{Command: []string{"echo", "ok"}}, 2000, 0, nil)
	require.NoError(t, err)
	assert.Nil(t, result.SessionID)
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, 0, *result.ExitCode)
	assert.Contains(t, string(result.Output), "ok")
	assert.Equal(t, 0, m.ActiveCount())
}

func TestUnifiedExecManager_LongRunningCommandRegistersSession(t *testing.T) {
	m := NewUnifiedExecManager()
	result, err := m.ExecCommand(SessionOpts{Command: []string{"sleep", "2"}}, 100, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, result.SessionID)
	assert.Equal(t, 1, m.ActiveCount())

	writeResult, err := m.WriteStdin(*result.SessionID, nil, 2000, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, writeResult.ExitCode)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestUnifiedExecManager_WriteStdinUnknownSession(t *testing.T) {
	m := NewUnifiedExecManager()
	_, err := m.WriteStdin(999, []byte("hi"), 250, 0, nil)
	assert.ErrorIs(t, err, ErrUnknownSessionID)
}

func TestUnifiedExecManager_SessionIDsMonotonicallyIncrease(t *testing.T) {
	m := NewUnifiedExecManager()
	r1, err := m.ExecCommand(SessionOpts{Command: []string{"sleep", "2"}}, 50, 0, nil)
	require.NoError(t, err)
	r2, err := m.ExecCommand(SessionOpts{Command: []string{"sleep", "2"}}, 50, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, r1.SessionID)
	require.NotNil(t, r2.SessionID)
	assert.Less(t, *r1.SessionID, *r2.SessionID)
}

func TestClampYieldMs(t *testing.T) {
	assert.Equal(t, MinYieldMs*time.Millisecond, ClampYieldMs(10))
	assert.Equal(t, MaxYieldMs*time.Millisecond, ClampYieldMs(60000))
	assert.Equal(t, DefaultYieldMs*time.Millisecond, ClampYieldMs(0))
	assert.Equal(t, 5000*time.Millisecond, ClampYieldMs(5000))
}

func TestTruncateToTokens(t *testing.T) {
	out := truncateToTokens([]byte("0123456789"), 2)
	assert.Equal(t, "01234567", string(out))
	assert.Equal(t, []byte("0123456789"), truncateToTokens([]byte("0123456789"), 0))
}

func TestUnifiedExecManager_Sweep(t *testing.T) {
	m := NewUnifiedExecManager()
	result, err := m.ExecCommand(SessionOpts{Command: []string{"sleep", "1"}}, 50, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, result.SessionID)
	assert.Equal(t, 1, m.ActiveCount())

	require.Eventually(t, func() bool {
		sess, ok := m.lookup(*result.SessionID)
		return ok && sess.HasExited()
	}, 3*time.Second, 25*time.Millisecond)

	m.Sweep()
	assert.Equal(t, 0, m.ActiveCount())
}
