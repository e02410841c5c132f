package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeRenderer writes a tiny artifact, optionally blocking on gate or
// failing outright.
type fakeRenderer struct {
	gate chan struct{} // when non-nil, Render blocks until closed
	fail error
}

func (f *fakeRenderer) Render(_ context.Context, req Request, outPath string) error {
	if f.gate != nil {
		<-f.gate
	}
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(outPath, []byte("ID3 preview "+req.Source), 0o644)
}

func newTestCache(t *testing.T, r Renderer, perSession int, ttl time.Duration) *Cache {
	t.Helper()
	return New(Options{
		Dir:        t.TempDir(),
		TTL:        ttl,
		PerSession: perSession,
		Renderer:   r,
		Logger:     zerolog.Nop(),
	})
}

func awaitReady(t *testing.T, c *Cache, id string) {
	t.Helper()
	st, err := c.AwaitStatus(context.Background(), id, 2*time.Second)
	if err != nil {
		t.Fatalf("await %s: %v", id, err)
	}
	if st.Status != string(StatusReady) {
		t.Fatalf("expected ready, got %+v", st)
	}
}

func TestStartAndFetch(t *testing.T) {
	c := newTestCache(t, &fakeRenderer{}, 5, time.Hour)
	defer c.Close()
	id, err := c.Start("sess", Request{Source: "mix.wav", Voicing: "warm", Strength: 80})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	awaitReady(t, c, id)

	f, mime, err := c.Open(id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if mime != "audio/mpeg" {
		t.Fatalf("unexpected mime %q", mime)
	}
	b, err := io.ReadAll(f)
	if err != nil || len(b) == 0 {
		t.Fatalf("artifact unreadable: %v", err)
	}
}

func TestOpenBeforeReadyIsNotFound(t *testing.T) {
	gate := make(chan struct{})
	c := newTestCache(t, &fakeRenderer{gate: gate}, 5, time.Hour)
	defer c.Close()
	defer close(gate)
	id, err := c.Start("sess", Request{Source: "mix.wav"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := c.Open(id); !IsPreviewNotFound(err) {
		t.Fatalf("expected not-found before ready, got %v", err)
	}
}

func TestSessionCapacityEvictsOldest(t *testing.T) {
	c := newTestCache(t, &fakeRenderer{}, 5, time.Hour)
	defer c.Close()
	var ids []string
	for i := 0; i < 6; i++ {
		id, err := c.Start("sess", Request{Source: fmt.Sprintf("mix%d.wav", i)})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		awaitReady(t, c, id)
		ids = append(ids, id)
	}

	if n := c.SessionLen("sess"); n != 5 {
		t.Fatalf("expected 5 entries after 6 starts, got %d", n)
	}
	c.mu.Lock()
	_, firstPresent := c.entries[ids[0]]
	queue := append([]string(nil), c.sessions["sess"]...)
	c.mu.Unlock()
	if firstPresent {
		t.Fatalf("oldest entry should be evicted")
	}
	for i, id := range ids[1:] {
		if queue[i] != id {
			t.Fatalf("expected newest 5 in order, got %v", queue)
		}
	}
	if _, _, err := c.Open(ids[0]); !IsPreviewNotFound(err) {
		t.Fatalf("evicted preview should be gone, got %v", err)
	}
}

func TestEvictionDeletesArtifact(t *testing.T) {
	c := newTestCache(t, &fakeRenderer{}, 1, time.Hour)
	defer c.Close()
	id1, _ := c.Start("sess", Request{Source: "a.wav"})
	awaitReady(t, c, id1)
	c.mu.Lock()
	path1 := c.entries[id1].path
	c.mu.Unlock()
	if _, err := os.Stat(path1); err != nil {
		t.Fatalf("artifact should exist before eviction: %v", err)
	}

	id2, _ := c.Start("sess", Request{Source: "b.wav"})
	awaitReady(t, c, id2)
	if _, err := os.Stat(path1); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("evicted artifact should be deleted, stat err: %v", err)
	}
}

func TestRenderFailureMarksError(t *testing.T) {
	c := newTestCache(t, &fakeRenderer{fail: errors.New("filter chain exploded")}, 5, time.Hour)
	defer c.Close()
	id, _ := c.Start("sess", Request{Source: "mix.wav"})
	st, err := c.AwaitStatus(context.Background(), id, 2*time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if st.Status != string(StatusError) || st.Error == "" {
		t.Fatalf("expected error status with message, got %+v", st)
	}
	if _, _, err := c.Open(id); !IsPreviewNotFound(err) {
		t.Fatalf("errored preview must not serve bytes")
	}
}

func TestAwaitStatusTimesOutAsError(t *testing.T) {
	gate := make(chan struct{})
	c := newTestCache(t, &fakeRenderer{gate: gate}, 5, time.Hour)
	defer c.Close()
	defer close(gate)
	id, _ := c.Start("sess", Request{Source: "mix.wav"})
	st, err := c.AwaitStatus(context.Background(), id, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if st.Status != string(StatusError) || st.Error == "" {
		t.Fatalf("timeout must resolve to an error status, got %+v", st)
	}
}

func TestAwaitStatusUnknownPreview(t *testing.T) {
	c := newTestCache(t, &fakeRenderer{}, 5, time.Hour)
	defer c.Close()
	if _, err := c.AwaitStatus(context.Background(), "nope", time.Second); !IsPreviewNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSweepExpiresOldEntries(t *testing.T) {
	c := newTestCache(t, &fakeRenderer{}, 5, 30*time.Millisecond)
	defer c.Close()
	id, _ := c.Start("sess", Request{Source: "mix.wav"})
	awaitReady(t, c, id)
	c.mu.Lock()
	path := c.entries[id].path
	c.mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	c.Sweep()
	if c.SessionLen("sess") != 0 {
		t.Fatalf("expired entry not swept")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expired artifact should be deleted, stat err: %v", err)
	}
}

func TestEvictionDuringRenderDropsLateArtifact(t *testing.T) {
	gate := make(chan struct{})
	c := newTestCache(t, &fakeRenderer{gate: gate}, 1, time.Hour)
	defer c.Close()
	id1, _ := c.Start("sess", Request{Source: "a.wav"})
	c.mu.Lock()
	path1 := c.entries[id1].path
	c.mu.Unlock()

	// Second start evicts the still-building first entry.
	id2, _ := c.Start("sess", Request{Source: "b.wav"})
	close(gate)
	awaitReady(t, c, id2)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path1); errors.Is(err, os.ErrNotExist) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("late-rendered artifact was not cleaned up")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if c.SessionLen("sess") != 1 {
		t.Fatalf("expected only the second preview to remain")
	}
}

func TestStartWithoutRenderer(t *testing.T) {
	c := New(Options{Dir: t.TempDir(), Logger: zerolog.Nop()})
	if _, err := c.Start("sess", Request{}); !IsRenderUnavailable(err) {
		t.Fatalf("expected render-unavailable, got %v", err)
	}
}
