package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"masterd/pkg/types"
)

func newTestBus(opts Options) *Bus {
	opts.Logger = zerolog.Nop()
	return New(opts)
}

func entries(stages ...string) []Entry {
	out := make([]Entry, len(stages))
	for i, s := range stages {
		out[i] = Entry{Stage: s, Detail: "d-" + s, Timestamp: float64(i + 1)}
	}
	return out
}

func TestAppendAssignsContiguousIDs(t *testing.T) {
	b := newTestBus(Options{})
	b.Append("song1", entries("queued", "start", "analyze", "master"))
	snap, err := b.Snapshot("song1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.LastSequenceID != 4 {
		t.Fatalf("expected last id 4, got %d", snap.LastSequenceID)
	}
	for i, ev := range snap.Events {
		if ev.ID != uint64(i+1) {
			t.Fatalf("expected id %d at position %d, got %d", i+1, i, ev.ID)
		}
	}
}

func TestSnapshotTerminalRun(t *testing.T) {
	b := newTestBus(Options{})
	b.Append("song1", entries("queued", "start", "complete"))
	snap, err := b.Snapshot("song1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Events) != 3 || !snap.Terminal || snap.LastSequenceID != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Events[2].Stage != types.StageComplete {
		t.Fatalf("expected final complete event, got %q", snap.Events[2].Stage)
	}
}

func TestSnapshotUnknownRun(t *testing.T) {
	b := newTestBus(Options{})
	_, err := b.Snapshot("missing")
	if err == nil || !IsRunNotFound(err) {
		t.Fatalf("expected run-not-found, got %v", err)
	}
}

func TestDuplicateTerminalIsNoOp(t *testing.T) {
	b := newTestBus(Options{})
	b.Append("song1", entries("queued", "complete"))
	b.Append("song1", entries("complete"))
	b.Append("song1", entries("error"))
	snap, err := b.Snapshot("song1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Events) != 2 || snap.LastSequenceID != 2 {
		t.Fatalf("terminal duplicate mutated the run: %+v", snap)
	}
}

func TestRingCapacityDropsOldest(t *testing.T) {
	b := newTestBus(Options{BufferCap: 4})
	for i := 0; i < 10; i++ {
		b.Append("song1", entries("step"))
	}
	snap, err := b.Snapshot("song1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Events) != 4 {
		t.Fatalf("expected ring bounded at 4, got %d", len(snap.Events))
	}
	if snap.Events[0].ID != 7 || snap.Events[3].ID != 10 {
		t.Fatalf("expected ids 7..10 retained, got %d..%d", snap.Events[0].ID, snap.Events[3].ID)
	}
	if snap.LastSequenceID != 10 {
		t.Fatalf("expected last id 10, got %d", snap.LastSequenceID)
	}
}

func TestSubscribeReplaysAfterLastSeen(t *testing.T) {
	b := newTestBus(Options{})
	b.Append("song1", entries("queued", "start", "complete"))
	ch, gap := b.Subscribe("song1", 1)
	if gap {
		t.Fatalf("unexpected replay gap")
	}
	defer b.Unsubscribe("song1", ch)
	var got []types.Event
	for len(got) < 2 {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for replay, have %d events", len(got))
		}
	}
	if got[0].ID != 2 || got[0].Stage != types.StageStart {
		t.Fatalf("expected start(2) first, got %+v", got[0])
	}
	if got[1].ID != 3 || got[1].Stage != types.StageComplete {
		t.Fatalf("expected complete(3) second, got %+v", got[1])
	}
}

func TestSubscribeReportsReplayGap(t *testing.T) {
	b := newTestBus(Options{BufferCap: 2})
	b.Append("song1", entries("queued", "start", "analyze", "master"))
	// Ring now retains ids 3..4 only; asking to resume from 1 crosses
	// evicted history.
	ch, gap := b.Subscribe("song1", 1)
	defer b.Unsubscribe("song1", ch)
	if !gap {
		t.Fatalf("expected replay gap to be reported")
	}
	ch2, gap2 := b.Subscribe("song1", 3)
	defer b.Unsubscribe("song1", ch2)
	if gap2 {
		t.Fatalf("resuming inside the retained window should not report a gap")
	}
}

func TestLiveDeliveryInOrder(t *testing.T) {
	b := newTestBus(Options{})
	ch, _ := b.Subscribe("song1", 0)
	defer b.Unsubscribe("song1", ch)
	b.Append("song1", entries("queued", "start", "master", "complete"))
	var last uint64
	for i := 0; i < 4; i++ {
		select {
		case ev := <-ch:
			if ev.ID != last+1 {
				t.Fatalf("out-of-order delivery: got %d after %d", ev.ID, last)
			}
			last = ev.ID
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", i)
		}
	}
}

func TestConcurrentSubscribeAndAppend(t *testing.T) {
	b := newTestBus(Options{BufferCap: 1024})
	const total = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			b.Append("song1", entries("step"))
		}
	}()

	ch, _ := b.Subscribe("song1", 0)
	defer b.Unsubscribe("song1", ch)
	var last uint64
	deadline := time.After(5 * time.Second)
	for last < total {
		select {
		case ev := <-ch:
			if ev.ID <= last {
				t.Fatalf("duplicate or regressed id %d after %d", ev.ID, last)
			}
			if ev.ID != last+1 {
				t.Fatalf("gap in delivery: got %d after %d", ev.ID, last)
			}
			last = ev.ID
		case <-deadline:
			t.Fatalf("timed out at id %d", last)
		}
	}
	wg.Wait()
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newTestBus(Options{BufferCap: 16})
	slow, _ := b.Subscribe("song1", 0) // never drained; channel fills up
	_ = slow
	fast, _ := b.Subscribe("song1", 0)
	defer b.Unsubscribe("song1", fast)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			b.Append("song1", entries("step"))
		}
	}()
	drained := 0
	for {
		select {
		case <-fast:
			drained++
			if drained == 64 {
				<-done
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber starved after %d events", drained)
		}
	}
}

type fakeLister struct {
	result *types.RunResult
	calls  int
}

func (f *fakeLister) ListRun(string) (*types.RunResult, error) {
	f.calls++
	return f.result, nil
}

func TestTerminalEventCarriesResult(t *testing.T) {
	lister := &fakeLister{result: &types.RunResult{Renditions: []types.Rendition{{Name: "mix_V-warm.mp3", Size: 42}}}}
	b := newTestBus(Options{Results: lister})
	b.Append("song1", entries("queued", "start", "complete"))
	snap, err := b.Snapshot("song1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	final := snap.Events[len(snap.Events)-1]
	if final.Result == nil || len(final.Result.Renditions) != 1 {
		t.Fatalf("expected result payload on terminal event, got %+v", final.Result)
	}
	if snap.Events[0].Result != nil {
		t.Fatalf("non-terminal events must not carry results")
	}
	if lister.calls != 1 {
		t.Fatalf("listing should be fetched once, got %d calls", lister.calls)
	}
}

func TestUnsubscribeReapsTerminalRunEarly(t *testing.T) {
	b := newTestBus(Options{TTL: time.Hour})
	ch, _ := b.Subscribe("song1", 0)
	b.Append("song1", entries("queued", "complete"))
	b.Unsubscribe("song1", ch)
	if n := b.ActiveRuns(); n != 0 {
		t.Fatalf("expected early reap, still %d active runs", n)
	}
}

func TestCleanupTimerReapsTerminalRun(t *testing.T) {
	b := newTestBus(Options{TTL: 30 * time.Millisecond})
	b.Append("song1", entries("queued", "complete"))
	if b.ActiveRuns() != 1 {
		t.Fatalf("run should be retained until TTL")
	}
	deadline := time.Now().Add(2 * time.Second)
	for b.ActiveRuns() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("run state never reaped")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := b.Snapshot("song1"); !IsRunNotFound(err) {
		t.Fatalf("expected not-found after reap, got %v", err)
	}
}

func TestCloseReapsEverything(t *testing.T) {
	b := newTestBus(Options{})
	b.Append("a", entries("queued"))
	b.Append("b", entries("queued"))
	ch, _ := b.Subscribe("a", 0)
	b.Close()
	if b.ActiveRuns() != 0 {
		t.Fatalf("expected all runs reaped")
	}
	// Subscriber channel is closed so readers terminate.
	for {
		if _, ok := <-ch; !ok {
			return
		}
	}
}
