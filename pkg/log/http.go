package log

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPMiddleware logs requests to the live gateway. Websocket upgrades are
// logged once the handshake is done; the socket itself outlives the request.
func HTTPMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := requestID(r.Header.Get(headerRequestID))
			w.Header().Set(headerRequestID, reqID)

			child := logger.With().
				Str(FieldRequestID, reqID).
				Str(FieldPath, r.URL.Path).
				Str(FieldClientIP, clientIP(r)).
				Logger()

			rec := &gatewayRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(WithLogger(r.Context(), child)))

			latency := time.Since(start)
			switch {
			case rec.hijacked:
				child.Debug().Dur(FieldLatency, latency).Msg("websocket upgraded")
			case rec.status >= 500:
				child.Error().Int(FieldStatus, rec.status).Dur(FieldLatency, latency).Msg("request failed")
			default:
				child.Info().Int(FieldStatus, rec.status).Dur(FieldLatency, latency).Msg("request completed")
			}
		})
	}
}

// gatewayRecorder captures the status and lets the upgrader hijack the conn.
type gatewayRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (r *gatewayRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *gatewayRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("connection cannot be hijacked")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		r.hijacked = true
	}
	return conn, rw, err
}

func (r *gatewayRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip, _, _ := strings.Cut(xff, ","); strings.TrimSpace(ip) != "" {
			return strings.TrimSpace(ip)
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
