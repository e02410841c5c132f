// Package runner orchestrates mastering runs: it admits work through the
// concurrency gate, launches the external engine, and wires each run's
// progress log into the status bus.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"masterd/internal/bus"
	"masterd/internal/common/fsutil"
	"masterd/internal/config"
	"masterd/internal/gate"
	"masterd/internal/preview"
	"masterd/internal/renditions"
	"masterd/internal/uploads"
	"masterd/pkg/types"
)

// progressLogName is the well-known file the engine appends progress to,
// inside each run's work directory.
const progressLogName = "progress.json"

// Runner owns the long-lived orchestration state: one gate, one bus, one
// preview cache, constructed once at process start.
type Runner struct {
	cfg      config.Config
	gate     *gate.Gate
	bus      *bus.Bus
	previews *preview.Cache
	store    *renditions.Store
	uploads  *uploads.Resolver
	log      zerolog.Logger
}

// New builds the orchestrator and its working directories.
func New(cfg config.Config, log zerolog.Logger) (*Runner, error) {
	for _, dir := range []string{cfg.WorkDir, cfg.RenditionsDir, cfg.PreviewDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	store := renditions.New(cfg.RenditionsDir)
	r := &Runner{
		cfg:     cfg,
		gate:    gate.New(cfg.MaxConcurrentRuns),
		store:   store,
		uploads: uploads.New(cfg.UploadsDir),
		log:     log,
	}
	r.bus = bus.New(bus.Options{
		BufferCap: cfg.RunBufferCap,
		TTL:       cfg.RunTTL(),
		Poll:      cfg.WatcherPoll(),
		LogPath:   r.progressLogPath,
		Results:   store,
		Logger:    log,
	})
	r.previews = preview.New(preview.Options{
		Dir:        cfg.PreviewDir,
		TTL:        cfg.PreviewTTL(),
		PerSession: cfg.PreviewsPerSession,
		Renderer:   engineRenderer{r: r},
		Logger:     log,
	})
	return r, nil
}

func (r *Runner) progressLogPath(runID string) string {
	return filepath.Join(r.cfg.WorkDir, runID, progressLogName)
}

// newRunID derives an opaque but recognizable run id from the input file.
// The uuid fragment keeps repeated runs of the same file distinct.
func newRunID(fileName string) string {
	return fsutil.SanitizeStem(fileName) + "-" + strings.Split(uuid.NewString(), "-")[0]
}

// StartJobs admits and launches one run per input file. Admission is
// all-or-nothing: if the gate cannot hold every requested run, nothing
// starts and the caller gets a too-many-runs rejection immediately.
func (r *Runner) StartJobs(ctx context.Context, req types.JobStartRequest) (types.JobStartResponse, error) {
	var resp types.JobStartResponse

	// Resolve every reference before touching the gate so bad input
	// never consumes a slot.
	paths := make([]string, 0, len(req.Files))
	for _, name := range req.Files {
		p, err := r.uploads.Resolve(name)
		if err != nil {
			return resp, err
		}
		paths = append(paths, p)
	}

	admitted := 0
	for range paths {
		if !r.gate.TryAdmit() {
			for ; admitted > 0; admitted-- {
				r.gate.Release()
			}
			return resp, gate.ErrTooManyRuns
		}
		admitted++
	}

	for i, p := range paths {
		runID := newRunID(req.Files[i])
		if err := r.launch(ctx, runID, p, req.Options); err != nil {
			// The slot is released and the failure is surfaced through
			// the run's own event stream; other runs keep going.
			r.gate.Release()
			r.bus.Append(runID, []bus.Entry{{
				Stage:  types.StageError,
				Detail: "engine failed to start: " + err.Error(),
			}})
			r.log.Error().Err(err).Str("run", runID).Msg("engine launch failed")
		}
		resp.Runs = append(resp.Runs, runID)
	}
	return resp, nil
}

// launch starts one engine subprocess and its watcher. The gate slot is
// released exactly once, in the wait goroutine, however the run ends.
func (r *Runner) launch(ctx context.Context, runID, inputPath string, opts types.JobOptions) error {
	workDir := filepath.Join(r.cfg.WorkDir, runID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return err
	}
	outDir := r.store.RunDir(runID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	tag := buildTag(opts, fsutil.SanitizeStem(filepath.Base(inputPath)))
	args := engineArgs(inputPath, outDir, r.progressLogPath(runID), opts, tag)
	cmd := exec.Command(r.cfg.EngineBin, args...)
	cmd.Dir = workDir
	if err := cmd.Start(); err != nil {
		return err
	}
	r.log.Info().Str("run", runID).Str("input", filepath.Base(inputPath)).
		Str("tag", tag).Int("pid", cmd.Process.Pid).Msg("run started")

	go func() {
		err := cmd.Wait()
		r.gate.Release()
		if err != nil {
			r.log.Warn().Err(err).Str("run", runID).Msg("engine exited with error")
		} else {
			r.log.Info().Str("run", runID).Msg("engine exited")
		}
	}()

	r.bus.EnsureWatcher(runID)
	return nil
}

// ListUploads returns the audio files available as job inputs.
func (r *Runner) ListUploads() ([]string, error) {
	return r.uploads.List()
}

// Snapshot returns the run's buffered events for polling clients.
func (r *Runner) Snapshot(runID string) (types.RunSnapshot, error) {
	return r.bus.Snapshot(runID)
}

// Subscribe attaches a live event channel, replaying from lastSeen.
func (r *Runner) Subscribe(runID string, lastSeen uint64) (chan types.Event, bool) {
	return r.bus.Subscribe(runID, lastSeen)
}

// Unsubscribe detaches a channel returned by Subscribe.
func (r *Runner) Unsubscribe(runID string, ch chan types.Event) {
	r.bus.Unsubscribe(runID, ch)
}

// StartPreview schedules a session-scoped preview render.
func (r *Runner) StartPreview(sessionKey string, req types.PreviewRequest) (string, error) {
	if _, err := r.uploads.Resolve(req.Source); err != nil {
		return "", err
	}
	return r.previews.Start(sessionKey, preview.Request{
		Source:   req.Source,
		Voicing:  req.Voicing,
		Strength: req.Strength,
		Width:    req.Width,
	})
}

// AwaitPreview reports preview status, blocking up to wait.
func (r *Runner) AwaitPreview(ctx context.Context, id string, wait time.Duration) (types.PreviewStatus, error) {
	return r.previews.AwaitStatus(ctx, id, wait)
}

// OpenPreview serves a ready preview artifact.
func (r *Runner) OpenPreview(id string) (*os.File, string, error) {
	return r.previews.Open(id)
}

// SweepPreviews expires aged preview entries; called periodically.
func (r *Runner) SweepPreviews() { r.previews.Sweep() }

// InFlight reports currently admitted runs.
func (r *Runner) InFlight() int { return r.gate.InFlight() }

// Ready reports whether the daemon can accept work.
func (r *Runner) Ready() bool {
	return fsutil.PathExists(r.cfg.UploadsDir) && fsutil.PathExists(r.cfg.WorkDir)
}

// Close tears down bus and preview state on shutdown.
func (r *Runner) Close() {
	r.bus.Close()
	r.previews.Close()
}
