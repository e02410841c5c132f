// Package gate bounds how many mastering runs may execute at once.
// Admission is all-or-nothing: a full gate rejects immediately instead of
// queueing, shedding load back to the caller.
package gate

type tooManyRunsError struct{}

func (tooManyRunsError) Error() string { return "too many concurrent runs" }

// ErrTooManyRuns is returned by callers that surface a failed TryAdmit.
var ErrTooManyRuns error = tooManyRunsError{}

// IsTooManyRuns reports whether err indicates a full gate (return 429).
func IsTooManyRuns(err error) bool {
	_, ok := err.(tooManyRunsError)
	return ok
}

// Gate is a bounded admission counter backed by a slot channel.
type Gate struct {
	slots chan struct{}
}

// New returns a gate admitting at most max concurrent holders.
func New(max int) *Gate {
	if max <= 0 {
		max = 1
	}
	return &Gate{slots: make(chan struct{}, max)}
}

// TryAdmit atomically claims a slot. It never blocks; false means the
// gate is at capacity and the caller must reject the request.
func (g *Gate) TryAdmit() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot. Call exactly once per successful TryAdmit, in a
// deferred path so a failed run still releases.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		// release without admit; ignore rather than block
	}
}

// InFlight returns the number of currently admitted runs.
func (g *Gate) InFlight() int { return len(g.slots) }

// Capacity returns the configured maximum.
func (g *Gate) Capacity() int { return cap(g.slots) }
