package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// logRequest records one request-scoped outcome with the chi request id.
func logRequest(r *http.Request, msg string, dur time.Duration, err error) {
	if zlog == nil {
		if err != nil {
			log.Printf("%s path=%s dur=%s err=%v", msg, r.URL.Path, dur, err)
		} else {
			log.Printf("%s path=%s dur=%s", msg, r.URL.Path, dur)
		}
		return
	}
	var ev *zerolog.Event
	if err != nil {
		ev = zlog.Warn().Err(err)
	} else {
		ev = zlog.Info()
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	ev.Str("path", r.URL.Path).Dur("dur", dur).Msg(msg)
}
