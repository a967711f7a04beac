package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/teranos/tabula/logger"
)

// requestLogger logs one line per request with the chi request id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		requestID := middleware.GetReqID(r.Context())
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			logger.FieldRequestID, requestID,
		)
	})
}

// cors answers preflight requests and echoes allowed origins. Credentials
// are only allowed for origins matched by an explicit entry, never by "*".
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allowed, wildcard := s.matchOrigin(origin); allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				if !wildcard {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed prefix-matches origin against the configured list so any
// port on an allowed host passes. "*" allows everything.
func (s *Server) originAllowed(origin string) bool {
	allowed, _ := s.matchOrigin(origin)
	return allowed
}

// matchOrigin reports whether origin is allowed and whether only the "*"
// entry let it through.
func (s *Server) matchOrigin(origin string) (allowed, wildcard bool) {
	for _, entry := range s.cfg.Server.AllowedOrigins {
		if entry == "*" {
			wildcard = true
			continue
		}
		if strings.HasPrefix(origin, entry) {
			return true, false
		}
	}
	return wildcard, wildcard
}

// checkOrigin is the websocket upgrader's origin check. Requests without
// an Origin header come from non-browser clients and are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.originAllowed(origin)
}
