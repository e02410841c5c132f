// Package preview keeps short-lived, session-scoped audition renders.
// Entries are admitted per session under a FIFO capacity, rendered in the
// background, and reaped by TTL; artifacts are always deleted with their
// bookkeeping so nothing accumulates on disk.
package preview

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"masterd/pkg/types"
)

// Status is the lifecycle state of one preview entry.
type Status string

const (
	StatusBuilding Status = "building"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// Request describes the audition render the user asked for.
type Request struct {
	Source   string
	Voicing  string
	Strength int
	Width    float64
}

// Renderer produces the preview artifact at outPath. The runner supplies
// an engine-backed implementation; tests supply fakes.
type Renderer interface {
	Render(ctx context.Context, req Request, outPath string) error
}

// Options configures a Cache.
type Options struct {
	// Dir is the scratch directory for artifacts.
	Dir string
	// TTL expires entries by age. Default 600s.
	TTL time.Duration
	// PerSession bounds each session's live previews. Default 5.
	PerSession int
	Renderer   Renderer
	Logger     zerolog.Logger
}

type entry struct {
	id         string
	sessionKey string
	status     Status
	createdAt  time.Time
	req        Request
	path       string
	mime       string
	errMsg     string
	ready      chan struct{} // closed exactly once on ready/error
}

// Cache is the session-scoped preview registry. One mutex guards both the
// entry map and the per-session FIFO index.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	sessions map[string][]string

	dir        string
	ttl        time.Duration
	perSession int
	renderer   Renderer
	log        zerolog.Logger
}

// New constructs a Cache, applying defaults for unset options.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 600 * time.Second
	}
	if opts.PerSession <= 0 {
		opts.PerSession = 5
	}
	if opts.Dir == "" {
		opts.Dir = filepath.Join(os.TempDir(), "masterd-previews")
	}
	return &Cache{
		entries:    make(map[string]*entry),
		sessions:   make(map[string][]string),
		dir:        opts.Dir,
		ttl:        opts.TTL,
		perSession: opts.PerSession,
		renderer:   opts.Renderer,
		log:        opts.Logger,
	}
}

// Start admits a preview under the session's capacity (evicting the
// oldest entry when full), schedules the render and returns immediately.
func (c *Cache) Start(sessionKey string, req Request) (string, error) {
	if c.renderer == nil {
		return "", ErrRenderUnavailable("no preview renderer configured")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", err
	}
	id := uuid.NewString()
	e := &entry{
		id:         id,
		sessionKey: sessionKey,
		status:     StatusBuilding,
		createdAt:  time.Now(),
		req:        req,
		path:       filepath.Join(c.dir, id+".mp3"),
		mime:       "audio/mpeg",
		ready:      make(chan struct{}),
	}

	c.mu.Lock()
	c.sweepLocked(time.Now())
	for len(c.sessions[sessionKey]) >= c.perSession {
		oldest := c.sessions[sessionKey][0]
		c.evictLocked(oldest)
	}
	c.entries[id] = e
	c.sessions[sessionKey] = append(c.sessions[sessionKey], id)
	c.mu.Unlock()

	previewsStarted.Inc()
	previewsActive.Inc()
	go c.render(e)
	return id, nil
}

// render runs in the background; failures stay scoped to this entry.
func (c *Cache) render(e *entry) {
	err := c.renderer.Render(context.Background(), e.req, e.path)

	c.mu.Lock()
	cur, present := c.entries[e.id]
	if !present || cur != e {
		// Evicted while rendering; the eviction already handled the
		// bookkeeping, so just drop whatever was written.
		c.mu.Unlock()
		_ = os.Remove(e.path)
		return
	}
	if err != nil {
		e.status = StatusError
		e.errMsg = err.Error()
		_ = os.Remove(e.path)
		previewFailures.Inc()
		c.log.Warn().Err(err).Str("preview", e.id).Msg("preview render failed")
	} else {
		e.status = StatusReady
	}
	close(e.ready)
	c.mu.Unlock()
}

// AwaitStatus reports the entry's state, blocking on the one-shot ready
// signal up to timeout. A timed-out wait resolves to an error status so
// callers never hang on a stuck render.
func (c *Cache) AwaitStatus(ctx context.Context, id string, timeout time.Duration) (types.PreviewStatus, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return types.PreviewStatus{}, ErrPreviewNotFound(id)
	}
	if e.status != StatusBuilding {
		st := statusView(e)
		c.mu.Unlock()
		return st, nil
	}
	ready := e.ready
	c.mu.Unlock()

	if timeout <= 0 {
		return types.PreviewStatus{Status: string(StatusBuilding)}, nil
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return types.PreviewStatus{}, ctx.Err()
	case <-time.After(timeout):
		return types.PreviewStatus{Status: string(StatusError), Error: "preview render timed out"}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return statusView(e), nil
	}
	return types.PreviewStatus{}, ErrPreviewNotFound(id)
}

func statusView(e *entry) types.PreviewStatus {
	switch e.status {
	case StatusReady:
		return types.PreviewStatus{Status: string(StatusReady)}
	case StatusError:
		return types.PreviewStatus{Status: string(StatusError), Error: e.errMsg}
	default:
		return types.PreviewStatus{Status: string(StatusBuilding)}
	}
}

// Open returns the artifact for a ready preview. Anything else is
// reported as not-found; artifacts are never served half-rendered.
func (c *Cache) Open(id string) (*os.File, string, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.status != StatusReady {
		c.mu.Unlock()
		return nil, "", ErrPreviewNotFound(id)
	}
	path, mime := e.path, e.mime
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, "", ErrPreviewNotFound(id)
	}
	return f, mime, nil
}

// Sweep evicts every entry older than the TTL.
func (c *Cache) Sweep() {
	c.mu.Lock()
	c.sweepLocked(time.Now())
	c.mu.Unlock()
}

func (c *Cache) sweepLocked(now time.Time) {
	for id, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			c.evictLocked(id)
		}
	}
}

// evictLocked deletes the artifact first, then the bookkeeping, so a
// crash between the two leaves no orphaned file.
func (c *Cache) evictLocked(id string) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	_ = os.Remove(e.path)
	delete(c.entries, id)
	q := c.sessions[e.sessionKey]
	for i, qid := range q {
		if qid == id {
			q = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(q) == 0 {
		delete(c.sessions, e.sessionKey)
	} else {
		c.sessions[e.sessionKey] = q
	}
	previewEvictions.Inc()
	previewsActive.Dec()
}

// SessionLen returns how many previews a session currently holds.
func (c *Cache) SessionLen(sessionKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions[sessionKey])
}

// Close evicts everything; used on process shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		c.evictLocked(id)
	}
}
