package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSnapshot_CaptureAndRestore(t *testing.T) {
	work := t.TempDir()
	snapDir := filepath.Join(t.TempDir(), "snap")

	existing := filepath.Join(work, "story.txt")
	writeFile(t, existing, "initial\n")
	missing := filepath.Join(work, "new.txt")

	require.NoError(t, CaptureSnapshot(snapDir, []string{existing, missing}))

	// Mutate the tree the way a patch would.
	writeFile(t, existing, "turn one\n")
	writeFile(t, missing, "added\n")

	restored, err := RestoreSnapshot(snapDir)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)

	assert.Equal(t, "initial\n", readFile(t, existing))
	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr), "added file should be removed by restore")

	// The snapshot is consumed.
	_, statErr = os.Stat(snapDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSnapshot_FirstCaptureWins(t *testing.T) {
	work := t.TempDir()
	snapDir := filepath.Join(t.TempDir(), "snap")
	path := filepath.Join(work, "f.txt")
	writeFile(t, path, "original\n")

	require.NoError(t, CaptureSnapshot(snapDir, []string{path}))
	writeFile(t, path, "after first patch\n")

	// A second patch in the same turn re-captures; the original content must
	// stay authoritative.
	require.NoError(t, CaptureSnapshot(snapDir, []string{path}))
	writeFile(t, path, "after second patch\n")

	_, err := RestoreSnapshot(snapDir)
	require.NoError(t, err)
	assert.Equal(t, "original\n", readFile(t, path))
}

func TestSnapshot_RestoreRecreatesDeletedFile(t *testing.T) {
	work := t.TempDir()
	snapDir := filepath.Join(t.TempDir(), "snap")
	path := filepath.Join(work, "sub", "deep.txt")
	writeFile(t, path, "keep me\n")

	require.NoError(t, CaptureSnapshot(snapDir, []string{path}))
	require.NoError(t, os.RemoveAll(filepath.Join(work, "sub")))

	_, err := RestoreSnapshot(snapDir)
	require.NoError(t, err)
	assert.Equal(t, "keep me\n", readFile(t, path))
}

func TestSnapshot_RestoreEmptyFails(t *testing.T) {
	_, err := RestoreSnapshot(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestApplyWithSnapshot_UndoRoundTrip(t *testing.T) {
	work := t.TempDir()
	snapDir := filepath.Join(t.TempDir(), "snap")
	writeFile(t, filepath.Join(work, "story.txt"), "initial\n")

	patchText := "*** Begin Patch\n*** Update File: story.txt\n@@\n-initial\n+turn one\n*** End Patch"
	_, err := ApplyWithSnapshot(patchText, work, snapDir)
	require.NoError(t, err)
	assert.Equal(t, "turn one\n", readFile(t, filepath.Join(work, "story.txt")))

	_, err = RestoreSnapshot(snapDir)
	require.NoError(t, err)
	assert.Equal(t, "initial\n", readFile(t, filepath.Join(work, "story.txt")))
}

func TestApplyWithSnapshot_EmptyDirDisablesSnapshot(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "story.txt"), "initial\n")

	patchText := "*** Begin Patch\n*** Update File: story.txt\n@@\n-initial\n+changed\n*** End Patch"
	_, err := ApplyWithSnapshot(patchText, work, "")
	require.NoError(t, err)
	assert.Equal(t, "changed\n", readFile(t, filepath.Join(work, "story.txt")))
}
