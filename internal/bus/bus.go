// Package bus owns per-run event history and fans live status updates out
// to subscribers. One watcher goroutine per active run tails the engine's
// on-disk progress log and republishes new entries as sequenced events.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"masterd/pkg/types"
)

// subChanSlack is headroom added to subscriber channel buffers beyond the
// ring capacity so a full replay never blocks Subscribe.
const subChanSlack = 16

// Entry is one raw progress-log record before sequencing.
type Entry struct {
	Stage     string  `json:"stage"`
	Detail    string  `json:"detail"`
	Timestamp float64 `json:"timestamp"`
}

// ResultLister fetches the final artifact listing attached to terminal
// events. Implemented by the rendition store.
type ResultLister interface {
	ListRun(runID string) (*types.RunResult, error)
}

// Options configures a Bus.
type Options struct {
	// BufferCap bounds each run's event history ring. Default 256.
	BufferCap int
	// TTL is how long terminal run state is retained before reaping.
	// Default 600s.
	TTL time.Duration
	// Poll is the watcher's progress-log poll interval. Default 1s.
	Poll time.Duration
	// LogPath maps a run id to its progress log file. Required for
	// EnsureWatcher.
	LogPath func(runID string) string
	// Results enriches terminal events; may be nil.
	Results ResultLister
	Logger  zerolog.Logger
}

type runState struct {
	ring          *eventRing
	subs          map[chan types.Event]struct{}
	watcherCancel context.CancelFunc
	cleanup       *time.Timer
	lastID        uint64
	terminal      bool
}

// Bus is the status distribution core. All run state lives behind one
// mutex; event sends to subscribers happen outside it.
type Bus struct {
	mu   sync.Mutex
	runs map[string]*runState

	bufferCap int
	ttl       time.Duration
	poll      time.Duration
	logPath   func(string) string
	results   ResultLister
	log       zerolog.Logger
}

// New constructs a Bus, applying defaults for unset options.
func New(opts Options) *Bus {
	if opts.BufferCap <= 0 {
		opts.BufferCap = 256
	}
	if opts.TTL <= 0 {
		opts.TTL = 600 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = time.Second
	}
	return &Bus{
		runs:      make(map[string]*runState),
		bufferCap: opts.BufferCap,
		ttl:       opts.TTL,
		poll:      opts.Poll,
		logPath:   opts.LogPath,
		results:   opts.Results,
		log:       opts.Logger,
	}
}

// runLocked returns the state for runID, creating it lazily.
func (b *Bus) runLocked(runID string) *runState {
	st := b.runs[runID]
	if st == nil {
		st = &runState{
			ring: newEventRing(b.bufferCap),
			subs: make(map[chan types.Event]struct{}),
		}
		b.runs[runID] = st
		busActiveRuns.Inc()
	}
	return st
}

// Append sequences entries onto the run's log and publishes each to all
// current subscribers. Terminal duplicates are silently dropped.
func (b *Bus) Append(runID string, entries []Entry) {
	for _, e := range entries {
		b.appendOne(runID, e)
	}
}

func (b *Bus) appendOne(runID string, in Entry) {
	terminal := types.TerminalStage(in.Stage)

	// Fetch the rendition listing before taking the lock so a slow
	// filesystem never stalls the whole bus.
	var result *types.RunResult
	if terminal && b.results != nil {
		r, err := b.results.ListRun(runID)
		if err != nil {
			b.log.Warn().Err(err).Str("run", runID).Msg("rendition listing failed")
		} else {
			result = r
		}
	}

	b.mu.Lock()
	st := b.runLocked(runID)
	if st.terminal && terminal {
		// Idempotent: a run ends exactly once.
		b.mu.Unlock()
		return
	}
	st.lastID++
	ev := types.Event{
		ID:        st.lastID,
		Stage:     in.Stage,
		Detail:    in.Detail,
		Timestamp: in.Timestamp,
		Result:    result,
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}
	st.ring.push(ev)
	if terminal {
		st.terminal = true
		b.scheduleCleanupLocked(runID, st)
	}
	targets := make([]chan types.Event, 0, len(st.subs))
	for ch := range st.subs {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	busEventsPublished.Inc()
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			// One saturated subscriber must not hold up the rest.
			busDroppedSends.Inc()
			b.log.Debug().Str("run", runID).Uint64("event", ev.ID).Msg("subscriber channel full, event dropped")
		}
	}
}

// Snapshot returns the retained events plus terminal state for polling
// clients. Unknown runs report not-found rather than creating state.
func (b *Bus) Snapshot(runID string) (types.RunSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.runs[runID]
	if st == nil {
		return types.RunSnapshot{}, ErrRunNotFound(runID)
	}
	return types.RunSnapshot{
		Events:         st.ring.list(),
		Terminal:       st.terminal,
		LastSequenceID: st.lastID,
	}, nil
}

// Subscribe registers a new subscriber channel and replays every buffered
// event with id > lastSeen into it before returning. The gap result is
// true when part of the requested replay range has already been evicted
// from the ring, in which case the caller should re-snapshot.
func (b *Bus) Subscribe(runID string, lastSeen uint64) (ch chan types.Event, gap bool) {
	ch = make(chan types.Event, b.bufferCap+subChanSlack)
	b.mu.Lock()
	st := b.runLocked(runID)
	if oldest := st.ring.oldestID(); st.lastID > lastSeen && oldest > lastSeen+1 {
		gap = true
	}
	for _, ev := range st.ring.list() {
		if ev.ID > lastSeen {
			ch <- ev
		}
	}
	st.subs[ch] = struct{}{}
	b.mu.Unlock()
	busSubscribers.Inc()
	return ch, gap
}

// Unsubscribe removes a subscriber channel. When the run is terminal and
// nothing else references it, the state is reaped immediately instead of
// waiting for the TTL timer.
func (b *Bus) Unsubscribe(runID string, ch chan types.Event) {
	b.mu.Lock()
	st := b.runs[runID]
	if st == nil {
		b.mu.Unlock()
		return
	}
	if _, ok := st.subs[ch]; !ok {
		b.mu.Unlock()
		return
	}
	delete(st.subs, ch)
	busSubscribers.Dec()
	if st.terminal && len(st.subs) == 0 && st.watcherCancel == nil {
		b.reapLocked(runID, st)
	}
	b.mu.Unlock()
}

// scheduleCleanupLocked arms (or re-arms) the deferred reap timer.
func (b *Bus) scheduleCleanupLocked(runID string, st *runState) {
	if st.cleanup != nil {
		st.cleanup.Stop()
	}
	st.cleanup = time.AfterFunc(b.ttl, func() {
		b.mu.Lock()
		if cur := b.runs[runID]; cur != nil {
			b.reapLocked(runID, cur)
		}
		b.mu.Unlock()
	})
}

// reapLocked tears a run down: cancels its watcher, closes subscriber
// channels and drops the state. Caller holds b.mu.
func (b *Bus) reapLocked(runID string, st *runState) {
	if st.cleanup != nil {
		st.cleanup.Stop()
		st.cleanup = nil
	}
	if st.watcherCancel != nil {
		st.watcherCancel()
		st.watcherCancel = nil
	}
	for ch := range st.subs {
		close(ch)
		busSubscribers.Dec()
	}
	delete(b.runs, runID)
	busActiveRuns.Dec()
	b.log.Debug().Str("run", runID).Msg("run state reaped")
}

// ActiveRuns returns the number of runs currently holding state.
func (b *Bus) ActiveRuns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.runs)
}

// Close reaps every run; used on process shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, st := range b.runs {
		b.reapLocked(id, st)
	}
}
