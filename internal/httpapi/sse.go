package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleRunEvents godoc
// @Summary  Stream a run's status events as SSE
// @Produce  text/event-stream
// @Param    runID path string true "run id"
// @Param    last_event_id query int false "resume after this sequence id"
// @Success  200
// @Router   /api/runs/{runID}/events [get]
func handleRunEvents(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		lastSeen := parseLastEventID(r)
		ch, gap := svc.Subscribe(runID, lastSeen)
		defer svc.Unsubscribe(runID, ch)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if gap {
			// Part of the requested replay range was evicted from the
			// history buffer; tell the client to re-snapshot instead of
			// silently under-delivering.
			fmt.Fprint(w, ": replay-gap, resnapshot\n\n")
		}
		flusher.Flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case ev, open := <-ch:
				if !open {
					// Run state was reaped; nothing more will ever come.
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					logRequest(r, "event marshal failed", 0, err)
					continue
				}
				fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.ID, data)
				flusher.Flush()
				if ev.Terminal() {
					return
				}
			case <-keepalive.C:
				// Comment frame so idle intermediaries keep the
				// connection open.
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case <-r.Context().Done():
				return
			case <-serverBaseCtx.Done():
				return
			}
		}
	}
}

// parseLastEventID honors the standard Last-Event-ID reconnect header,
// with a query fallback for clients that cannot set headers.
func parseLastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
