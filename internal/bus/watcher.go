package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"masterd/pkg/types"
)

// progressLog mirrors the engine's on-disk progress file: a JSON object
// whose entries array only ever grows in place.
type progressLog struct {
	Entries []Entry `json:"entries"`
}

// EnsureWatcher starts the single tailing goroutine for runID if it is
// not already running. Safe to call repeatedly.
func (b *Bus) EnsureWatcher(runID string) {
	if b.logPath == nil {
		return
	}
	b.mu.Lock()
	st := b.runLocked(runID)
	if st.watcherCancel != nil {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	st.watcherCancel = cancel
	b.mu.Unlock()

	go b.watchLoop(ctx, runID)
}

// watchLoop polls the run's progress log, republishing any new entries.
// It exits on a terminal stage, on the file vanishing after having
// existed, or on cancellation, and always leaves a cleanup timer armed so
// abandoned run state cannot outlive the TTL.
func (b *Bus) watchLoop(ctx context.Context, runID string) {
	defer func() {
		b.mu.Lock()
		if st := b.runs[runID]; st != nil {
			if st.watcherCancel != nil {
				st.watcherCancel()
				st.watcherCancel = nil
			}
			b.scheduleCleanupLocked(runID, st)
		}
		b.mu.Unlock()
	}()

	path := b.logPath(runID)
	seen := 0
	existed := false
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			if existed && errors.Is(err, fs.ErrNotExist) {
				// The runner cleaned its log; the run is over.
				return
			}
			continue
		}
		existed = true

		var doc progressLog
		if err := json.Unmarshal(raw, &doc); err != nil {
			// Mid-write truncation; treat as no news and retry next tick.
			b.log.Debug().Err(err).Str("run", runID).Msg("progress log unreadable this tick")
			continue
		}
		if len(doc.Entries) <= seen {
			continue
		}
		fresh := doc.Entries[seen:]
		seen = len(doc.Entries)
		b.Append(runID, fresh)
		for _, e := range fresh {
			if types.TerminalStage(e.Stage) {
				return
			}
		}
	}
}
