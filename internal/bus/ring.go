package bus

import "masterd/pkg/types"

// eventRing is a fixed-capacity ring of published events. Only history is
// bounded here; live delivery pushes straight to subscriber channels.
type eventRing struct {
	buf   []types.Event
	start int
	n     int
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &eventRing{buf: make([]types.Event, capacity)}
}

// push appends ev, dropping the oldest entry once full.
func (r *eventRing) push(ev types.Event) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *eventRing) len() int { return r.n }

// oldestID returns the sequence id of the oldest retained event, or 0
// when the ring is empty.
func (r *eventRing) oldestID() uint64 {
	if r.n == 0 {
		return 0
	}
	return r.buf[r.start].ID
}

// list returns the retained events oldest-first as a fresh slice.
func (r *eventRing) list() []types.Event {
	out := make([]types.Event, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
