package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"masterd/internal/bus"
	"masterd/internal/gate"
	"masterd/internal/preview"
	"masterd/internal/uploads"
	"masterd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	StartJobs(ctx context.Context, req types.JobStartRequest) (types.JobStartResponse, error)
	ListUploads() ([]string, error)
	Snapshot(runID string) (types.RunSnapshot, error)
	Subscribe(runID string, lastSeen uint64) (ch chan types.Event, gap bool)
	Unsubscribe(runID string, ch chan types.Event)
	StartPreview(sessionKey string, req types.PreviewRequest) (string, error)
	AwaitPreview(ctx context.Context, id string, wait time.Duration) (types.PreviewStatus, error)
	OpenPreview(id string) (*os.File, string, error)
	Ready() bool
}

// NewMux builds the router: job start, live status stream, snapshot,
// preview start/poll/fetch, health and metrics.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Compression for JSON endpoints; the SSE stream opts out below by
	// setting its own content type before writing.
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/files", handleListFiles(svc))
		r.Post("/jobs", handleStartJobs(svc))
		r.Get("/runs/{runID}/events", handleRunEvents(svc))
		r.Get("/runs/{runID}/status", handleRunSnapshot(svc))
		r.Post("/previews", handleStartPreview(svc))
		r.Get("/previews/{previewID}", handlePreviewStatus(svc))
		r.Get("/previews/{previewID}/audio", handlePreviewAudio(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", metricsHandler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSON enforces content type and the body size limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// handleListFiles godoc
// @Summary  List uploaded audio files
// @Produce  json
// @Success  200 {object} types.FilesResponse
// @Router   /api/files [get]
func handleListFiles(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := svc.ListUploads()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, types.FilesResponse{Files: names})
	}
}

// handleStartJobs godoc
// @Summary  Start mastering runs
// @Accept   json
// @Produce  json
// @Param    request body types.JobStartRequest true "files and options"
// @Success  200 {object} types.JobStartResponse
// @Failure  429 {object} types.ErrorResponse
// @Router   /api/jobs [post]
func handleStartJobs(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.JobStartRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.Files) == 0 {
			writeJSONError(w, http.StatusBadRequest, "files is required")
			return
		}
		start := time.Now()
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		resp, err := svc.StartJobs(joinedCtx, req)
		if err != nil {
			if gate.IsTooManyRuns(err) {
				IncrementBackpressure("gate_full")
			}
			writeServiceError(w, err)
			logRequest(r, "job start rejected", time.Since(start), err)
			return
		}
		logRequest(r, "job start", time.Since(start), nil)
		writeJSON(w, resp)
	}
}

// handleRunSnapshot godoc
// @Summary  Fetch a run's buffered events
// @Produce  json
// @Param    runID path string true "run id"
// @Success  200 {object} types.RunSnapshot
// @Failure  404 {object} types.ErrorResponse
// @Router   /api/runs/{runID}/status [get]
func handleRunSnapshot(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Snapshot(chi.URLParam(r, "runID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, snap)
	}
}

// handleStartPreview godoc
// @Summary  Schedule a disposable preview render
// @Accept   json
// @Produce  json
// @Param    request body types.PreviewRequest true "preview options"
// @Success  200 {object} types.PreviewStartResponse
// @Router   /api/previews [post]
func handleStartPreview(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.PreviewRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Source) == "" {
			writeJSONError(w, http.StatusBadRequest, "source is required")
			return
		}
		id, err := svc.StartPreview(sessionKey(r), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, types.PreviewStartResponse{PreviewID: id})
	}
}

// handlePreviewStatus godoc
// @Summary  Poll a preview, optionally long-polling until it resolves
// @Produce  json
// @Param    previewID path string true "preview id"
// @Param    wait query int false "seconds to wait for readiness"
// @Success  200 {object} types.PreviewStatus
// @Failure  404 {object} types.ErrorResponse
// @Router   /api/previews/{previewID} [get]
func handlePreviewStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "previewID")
		wait := parseWait(r.URL.Query().Get("wait"))
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		st, err := svc.AwaitPreview(joinedCtx, id, wait)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeServiceError(w, err)
			return
		}
		if st.Status == string(preview.StatusReady) {
			st.URL = "/api/previews/" + id + "/audio"
		}
		writeJSON(w, st)
	}
}

// handlePreviewAudio godoc
// @Summary  Fetch a ready preview's audio bytes
// @Produce  audio/mpeg
// @Param    previewID path string true "preview id"
// @Success  200
// @Failure  404 {object} types.ErrorResponse
// @Router   /api/previews/{previewID}/audio [get]
func handlePreviewAudio(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, mime, err := svc.OpenPreview(chi.URLParam(r, "previewID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer f.Close()
		// Previews are disposable; intermediaries must never cache them.
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", mime)
		http.ServeContent(w, r, "", time.Time{}, f)
	}
}

// sessionKey scopes preview quotas. The UI sends a stable key; plain
// clients fall back to their address.
func sessionKey(r *http.Request) string {
	if k := r.Header.Get("X-Session-Key"); k != "" {
		return k
	}
	return r.RemoteAddr
}

func parseWait(s string) time.Duration {
	if s == "" {
		return 0
	}
	secs := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		secs = secs*10 + int(c-'0')
		if secs > 3600 {
			break
		}
	}
	wait := time.Duration(secs) * time.Second
	if wait > previewWaitMax {
		wait = previewWaitMax
	}
	return wait
}

// writeServiceError maps typed service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case gate.IsTooManyRuns(err):
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case bus.IsRunNotFound(err), preview.IsPreviewNotFound(err), uploads.IsFileNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case preview.IsRenderUnavailable(err):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case uploads.IsInvalidRef(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		if he, ok := err.(HTTPError); ok {
			writeJSONError(w, he.StatusCode(), he.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
