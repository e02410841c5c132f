package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Default 1 MiB; option payloads are tiny.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// keepaliveInterval is how often idle SSE streams emit comment frames.
var keepaliveInterval = 15 * time.Second

// SetKeepaliveInterval configures the SSE keepalive cadence.
func SetKeepaliveInterval(d time.Duration) {
	if d <= 0 {
		keepaliveInterval = 15 * time.Second
		return
	}
	keepaliveInterval = d
}

// previewWaitMax bounds the preview long-poll wait parameter.
var previewWaitMax = 30 * time.Second

// SetPreviewWaitMax configures the long-poll ceiling.
func SetPreviewWaitMax(d time.Duration) {
	if d <= 0 {
		previewWaitMax = 30 * time.Second
		return
	}
	previewWaitMax = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
