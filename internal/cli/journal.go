package cli

import (
	"time"

	"github.com/stratumhq/stratum-agent/internal/models"
	"github.com/stratumhq/stratum-agent/internal/rollout"
	"github.com/stratumhq/stratum-agent/internal/version"
)

// openJournal creates (or, on resume, reopens) the rollout journal for a
// session. Journaling is best-effort: a nil recorder means the session runs
// without persistence.
func openJournal(cfg Config, workflowID, source string, isResume bool) (*rollout.Recorder, error) {
	home := cfg.AgentHome
	if home == "" {
		home = rollout.DefaultAgentHome()
	}
	if isResume {
		if path, err := rollout.Find(home, workflowID); err == nil {
			return rollout.OpenRecorder(path)
		}
		// No journal on disk for this conversation (recorded on another
		// machine, archived, or pre-journal). Start a fresh one.
	}
	return rollout.NewRecorder(home, rollout.Header{
		ConversationID: workflowID,
		ModelProvider:  cfg.Provider,
		Cwd:            cfg.Cwd,
		CLIVersion:     version.GitCommit,
		Source:         source,
	}, time.Now())
}

// journalItems appends every item newer than lastSeq to the recorder and
// returns the highest Seq written. The first write failure is reported once;
// the recorder stays degraded afterwards.
func journalItems(rec *rollout.Recorder, items []models.ConversationItem, lastSeq int) (int, error) {
	if rec == nil {
		return lastSeq, nil
	}
	var firstErr error
	for _, item := range items {
		if item.Seq <= lastSeq {
			continue
		}
		lastSeq = item.Seq
		for _, ev := range rollout.FromConversationItem(item) {
			if err := rec.Append(ev); err != nil {
				if firstErr == nil && err != rollout.ErrUnreliable {
					firstErr = err
				}
			}
		}
	}
	return lastSeq, firstErr
}
