// Package mockapi is an in-process stand-in for the marathon backend. It
// serves the same endpoints with in-memory data and reproduces the hosted
// backend's quirks: gated routes answer with a 200 HTML login page when the
// session cookie is missing, and writes return document-store style results.
// Faults can be queued per path for tests.
package mockapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/model"
)

// FeaturedLimit caps the public featured listing.
const FeaturedLimit = 6

// Server is an http.Handler serving the backend API.
type Server struct {
	router *chi.Mux
	tokens *auth.TokenService
	logger *slog.Logger
	now    func() time.Time
	data   memory
	faults faultQueue
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(tokens *auth.TokenService, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router: chi.NewRouter(),
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(s.injectFaults)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/jwt", s.handleCreateSession)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/marathons/public/featured", s.handleFeatured)

		r.Group(func(r chi.Router) {
			r.Use(requireSession(s.tokens))

			r.Get("/marathons", s.handleListMarathons)
			r.Post("/marathons", s.handleCreateMarathon)
			r.Get("/marathons/{id}", s.handleGetMarathon)
			r.Patch("/marathons/{id}", s.handleUpdateMarathon)
			r.Delete("/marathons/{id}", s.handleDeleteMarathon)

			r.Post("/apply", s.handleApply)
			r.Get("/apply/my", s.handleMyApplications)
			r.Patch("/apply/{id}", s.handleUpdateApplication)
			r.Delete("/apply/{id}", s.handleDeleteApplication)

			r.Get("/stats/dashboard-stats", s.handleStats)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SeedMarathons stores ms as they are, assigning ids where missing, and
// returns the stored copies.
func (s *Server) SeedMarathons(ms ...model.Marathon) []model.Marathon {
	out := make([]model.Marathon, 0, len(ms))
	for _, m := range ms {
		out = append(out, s.data.insertMarathon(m, s.now()))
	}
	return out
}

// Marathon returns the stored marathon with id.
func (s *Server) Marathon(id string) (model.Marathon, bool) {
	m, err := s.data.marathon(id)
	return m, err == nil
}

// Applications returns every stored application of email.
func (s *Server) Applications(email string) []model.Application {
	return s.data.applicationsOf(email, "")
}
