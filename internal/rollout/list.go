package rollout

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Summary describes one stored conversation for listing.
type Summary struct {
	ConversationID string    `json:"conversation_id"`
	Path           string    `json:"path"`
	StartedAt      time.Time `json:"started_at"`
	ModelProvider  string    `json:"model_provider,omitempty"`
	Source         string    `json:"source,omitempty"`
	Cwd            string    `json:"cwd,omitempty"`
}

// ListRequest selects a page of conversations, newest first.
type ListRequest struct {
	// PageSize caps the number of items returned; 0 means the default of 25.
	PageSize int
	// Cursor is the NextCursor from a previous page: the basename of the
	// last item already seen. Empty starts from the newest conversation.
	Cursor string
	// ModelProviders, when non-empty, keeps only conversations whose header
	// names one of these providers.
	ModelProviders []string
	// Source, when non-empty, keeps only conversations recorded by that
	// surface ("cli", "tui", "ide").
	Source string
}

// Page is one page of listing results.
type Page struct {
	Items      []Summary `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

const defaultPageSize = 25

// List pages through stored conversations under agentHome/sessions, newest
// first. Ordering and cursor positioning use the filename's timestamp
// prefix, so pagination is exact without opening files; headers are read
// only for candidates that survive cursor positioning, to apply filters and
// fill in summary fields. Archived conversations are excluded.
func List(agentHome string, req ListRequest) (Page, error) {
	root := filepath.Join(agentHome, sessionsDir)
	names, err := collectJournals(root)
	if err != nil {
		return Page{}, err
	}

	// Newest first: basenames embed the UTC timestamp, so descending
	// lexicographic order is descending chronological order.
	sort.Slice(names, func(i, j int) bool {
		return filepath.Base(names[i]) > filepath.Base(names[j])
	})

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	page := Page{}
	for _, path := range names {
		base := filepath.Base(path)
		if req.Cursor != "" && base >= req.Cursor {
			continue
		}
		ts, id, ok := ParseFilename(base)
		if !ok {
			continue
		}
		hdr, _, err := ReadJournal(path)
		if err != nil {
			continue
		}
		if !matchProvider(hdr.ModelProvider, req.ModelProviders) {
			continue
		}
		if req.Source != "" && hdr.Source != req.Source {
			continue
		}
		if len(page.Items) == pageSize {
			// One more match exists beyond this page.
			page.NextCursor = filepath.Base(page.Items[pageSize-1].Path)
			return page, nil
		}
		page.Items = append(page.Items, Summary{
			ConversationID: id,
			Path:           path,
			StartedAt:      ts,
			ModelProvider:  hdr.ModelProvider,
			Source:         hdr.Source,
			Cwd:            hdr.Cwd,
		})
	}
	return page, nil
}

// Find locates the journal for a conversation id, searching newest first.
func Find(agentHome, conversationID string) (string, error) {
	root := filepath.Join(agentHome, sessionsDir)
	names, err := collectJournals(root)
	if err != nil {
		return "", err
	}
	sort.Slice(names, func(i, j int) bool {
		return filepath.Base(names[i]) > filepath.Base(names[j])
	})
	for _, path := range names {
		if _, id, ok := ParseFilename(filepath.Base(path)); ok && id == conversationID {
			return path, nil
		}
	}
	return "", fmt.Errorf("rollout: no journal for conversation %s", conversationID)
}

// Archive moves a conversation's journal into agentHome/sessions/archived,
// removing it from listings. Returns the archived path.
func Archive(agentHome, conversationID string) (string, error) {
	path, err := Find(agentHome, conversationID)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(agentHome, sessionsDir, archivedDir, filepath.Base(path))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("rollout: create archive dir: %w", err)
	}
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("rollout: archive journal: %w", err)
	}
	return dest, nil
}

func collectJournals(root string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == archivedDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), "rollout-") && strings.HasSuffix(d.Name(), ".jsonl") {
			names = append(names, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("rollout: scan sessions: %w", err)
	}
	return names, nil
}

func matchProvider(provider string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if provider == w {
			return true
		}
	}
	return false
}
