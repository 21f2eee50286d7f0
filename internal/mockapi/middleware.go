package mockapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/marathon-client/internal/auth"
)

type contextKey string

const emailKey contextKey = "email"

// responseWriter records the status and size of a response for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			)
		})
	}
}

// requireSession admits requests carrying a valid session cookie. Others get
// the login page with status 200 rather than a JSON 401.
func requireSession(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookieName)
			if err != nil {
				writeLoginPage(w)
				return
			}
			email, err := tokens.Validate(cookie.Value)
			if err != nil {
				writeLoginPage(w)
				return
			}
			ctx := context.WithValue(r.Context(), emailKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// emailFromContext returns the session email set by requireSession.
func emailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailKey).(string)
	return email
}

// injectFaults serves a queued fault for the request path, if any.
func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := s.faults.pop(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		switch {
		case f.html:
			writeLoginPage(w)
		case f.drop:
			panic(http.ErrAbortHandler)
		default:
			writeJSON(w, f.status, ErrorResponse{Error: "injected", Message: f.message})
		}
	})
}
