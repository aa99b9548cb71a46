package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/jobscout/internal/common"
	"github.com/ternarybob/jobscout/internal/handlers"
	"github.com/ternarybob/jobscout/internal/services/ratelimit"
)

// withMiddleware wraps the router with middleware chain
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last applied = first executed)
	handler = s.recoveryMiddleware(handler)
	handler = s.authMiddleware(handler)
	handler = s.rateLimitMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.securityHeadersMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// securityHeadersMiddleware sets the browser hardening headers on every
// response.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware admits credentialed requests from the configured
// origins only. An unlisted origin gets no CORS headers at all.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.Server.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// rateLimitMiddleware applies the sliding-window limits: a tight budget
// for scrape initiation, the general budget for everything else. The
// quota endpoint stays unlimited so monitoring can always reach it,
// but still reports the caller's unused general budget.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ratelimit.ClientKey(handlers.ClientIP(r), r.Header.Get("User-Agent"))

		if r.URL.Path == "/scraper/quota" || r.URL.Path == "/health" {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(s.apiLimiter.Remaining(key)))
			next.ServeHTTP(w, r)
			return
		}

		limiter := s.apiLimiter
		if r.URL.Path == "/scraper/start" {
			limiter = s.scrapeLimiter
		}

		allowed, remaining, retryAfter := limiter.Allow(key)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			handlers.WriteError(w, common.ErrRateLimited("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the request owner. With a signing key
// configured, protected routes require a valid bearer token and the
// owner is the token subject. Without one, the owner falls back to the
// anonymous client key so run scoping still works in development.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.routeNeedsOwner(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)

		if !s.auth.Enabled() {
			owner := "anon:" + ratelimit.ClientKey(handlers.ClientIP(r), r.Header.Get("User-Agent"))
			next.ServeHTTP(w, r.WithContext(handlers.WithOwner(r.Context(), owner)))
			return
		}

		if token == "" {
			if s.routeAllowsAnonymous(r.URL.Path) {
				owner := "anon:" + ratelimit.ClientKey(handlers.ClientIP(r), r.Header.Get("User-Agent"))
				next.ServeHTTP(w, r.WithContext(handlers.WithOwner(r.Context(), owner)))
				return
			}
			handlers.WriteError(w, common.ErrUnauthenticated("authentication required"))
			return
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			handlers.WriteError(w, common.ErrUnauthenticated("invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(handlers.WithOwner(r.Context(), claims.Subject)))
	})
}

// routeNeedsOwner reports whether the path is owner-scoped.
func (s *Server) routeNeedsOwner(path string) bool {
	if path == "/scraper/quota" || path == "/health" {
		return false
	}
	return strings.HasPrefix(path, "/scraper/")
}

// routeAllowsAnonymous lists the endpoints that accept missing
// credentials even when auth is configured.
func (s *Server) routeAllowsAnonymous(path string) bool {
	return path == "/scraper/quick"
}

// bearerToken pulls the credential from the Authorization header, with
// a query-parameter fallback for WebSocket clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error().
					Str("error", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				handlers.WriteError(w, common.ErrInternal("internal error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker interface for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("responseWriter does not implement http.Hijacker")
}
