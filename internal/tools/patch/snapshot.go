package patch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Ghost snapshots capture the pre-apply state of every file a patch touches
// so a later undo can restore it exactly. One snapshot directory per turn:
// repeated patches in the same turn merge into it, and only the first
// capture of a path wins, so restore yields the turn's starting state.
//
// Layout: <dir>/manifest.json plus one blob-N file per existing entry.

const manifestName = "manifest.json"

// SnapshotEntry records one file's pre-apply state.
type SnapshotEntry struct {
	// Path is the absolute path of the affected file.
	Path string `json:"path"`
	// Missing marks a file that did not exist before the patch (an Add);
	// restore removes it.
	Missing bool `json:"missing,omitempty"`
	// Blob is the basename of the stored content file, empty when Missing.
	Blob string `json:"blob,omitempty"`
	// Mode is the original file mode, kept so restore preserves it.
	Mode uint32 `json:"mode,omitempty"`
}

type snapshotManifest struct {
	Entries []SnapshotEntry `json:"entries"`
}

// SnapshotDir returns the ghost snapshot directory for one turn.
func SnapshotDir(agentHome, conversationID, turnID string) string {
	return filepath.Join(agentHome, "snapshots", conversationID, turnID)
}

// CaptureSnapshot merges the current state of paths into the snapshot at
// dir. Paths already present in the manifest are left untouched: the first
// capture within a turn is the authoritative pre-turn state.
func CaptureSnapshot(dir string, paths []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	manifest, err := loadManifest(dir)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(manifest.Entries))
	for _, e := range manifest.Entries {
		seen[e.Path] = true
	}

	for _, path := range paths {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true

		info, statErr := os.Stat(path)
		if statErr != nil {
			manifest.Entries = append(manifest.Entries, SnapshotEntry{Path: path, Missing: true})
			continue
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("snapshot read %s: %w", path, readErr)
		}
		blob := fmt.Sprintf("blob-%d", len(manifest.Entries))
		if writeErr := os.WriteFile(filepath.Join(dir, blob), content, 0o644); writeErr != nil {
			return fmt.Errorf("snapshot write blob for %s: %w", path, writeErr)
		}
		manifest.Entries = append(manifest.Entries, SnapshotEntry{
			Path: path,
			Blob: blob,
			Mode: uint32(info.Mode().Perm()),
		})
	}

	return writeManifest(dir, manifest)
}

// RestoreSnapshot puts every file recorded in the snapshot back to its
// captured state (recreating deleted files, removing added ones) and then
// deletes the consumed snapshot directory. Returns the number of files
// restored.
func RestoreSnapshot(dir string) (int, error) {
	manifest, err := loadManifest(dir)
	if err != nil {
		return 0, err
	}
	if len(manifest.Entries) == 0 {
		return 0, fmt.Errorf("no ghost snapshot at %s", dir)
	}

	for _, entry := range manifest.Entries {
		if entry.Missing {
			if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
				return 0, fmt.Errorf("restore remove %s: %w", entry.Path, err)
			}
			continue
		}
		content, readErr := os.ReadFile(filepath.Join(dir, entry.Blob))
		if readErr != nil {
			return 0, fmt.Errorf("restore read blob for %s: %w", entry.Path, readErr)
		}
		if err := os.MkdirAll(filepath.Dir(entry.Path), 0o755); err != nil {
			return 0, fmt.Errorf("restore mkdir for %s: %w", entry.Path, err)
		}
		mode := os.FileMode(entry.Mode)
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(entry.Path, content, mode); err != nil {
			return 0, fmt.Errorf("restore write %s: %w", entry.Path, err)
		}
	}

	count := len(manifest.Entries)
	if err := os.RemoveAll(dir); err != nil {
		return count, fmt.Errorf("remove consumed snapshot: %w", err)
	}
	return count, nil
}

func loadManifest(dir string) (*snapshotManifest, error) {
	manifest := &snapshotManifest{}
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return manifest, nil
		}
		return nil, fmt.Errorf("read snapshot manifest: %w", err)
	}
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("parse snapshot manifest: %w", err)
	}
	return manifest, nil
}

func writeManifest(dir string, manifest *snapshotManifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal snapshot manifest: %w", err)
	}
	tmp := filepath.Join(dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, manifestName))
}
