package mockapi

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/model"
)

// writeResult mirrors a document store's acknowledgement.
type writeResult struct {
	Acknowledged  bool   `json:"acknowledged"`
	InsertedID    string `json:"insertedId,omitempty"`
	MatchedCount  *int   `json:"matchedCount,omitempty"`
	ModifiedCount *int   `json:"modifiedCount,omitempty"`
	DeletedCount  *int   `json:"deletedCount,omitempty"`
}

func count(n int) *int { return &n }

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	email := strings.TrimSpace(body.Email)
	if email == "" {
		writeError(w, apperror.ValidationFailed("email", "email is required"))
		return
	}

	token, err := s.tokens.Generate(email)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		// MaxAge rather than Expires: the token and the client's jar both run
		// on the real clock, not s.now.
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleFeatured lists the next upcoming marathons, soonest first.
func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	all := s.data.listMarathons(model.SortOldest, "")
	now := s.now()
	featured := slices.DeleteFunc(all, func(m model.Marathon) bool {
		return !m.MarathonStartDate.After(now)
	})
	if len(featured) > FeaturedLimit {
		featured = featured[:FeaturedLimit]
	}
	writeJSON(w, http.StatusOK, featured)
}

func (s *Server) handleListMarathons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.data.listMarathons(model.SortOrder(q.Get("sort")), q.Get("location")))
}

func (s *Server) handleCreateMarathon(w http.ResponseWriter, r *http.Request) {
	var in model.MarathonInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeError(w, apperror.ValidationFailed("marathonTitle", "marathonTitle is required"))
		return
	}
	owner := in.Email
	if owner == "" {
		owner = emailFromContext(r.Context())
	}

	m := s.data.insertMarathon(model.Marathon{
		Title:                 in.Title,
		Location:              in.Location,
		StartRegistrationDate: in.StartRegistrationDate,
		EndRegistrationDate:   in.EndRegistrationDate,
		MarathonStartDate:     in.MarathonStartDate,
		RunningDistance:       in.RunningDistance,
		Description:           in.Description,
		ImageURL:              in.ImageURL,
		Email:                 owner,
	}, s.now())
	writeJSON(w, http.StatusOK, writeResult{Acknowledged: true, InsertedID: m.ID})
}

func (s *Server) handleGetMarathon(w http.ResponseWriter, r *http.Request) {
	m, err := s.data.marathon(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMarathon(w http.ResponseWriter, r *http.Request) {
	var patch model.MarathonPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	modified, err := s.data.updateMarathon(chi.URLParam(r, "id"), emailFromContext(r.Context()), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	n := 0
	if modified {
		n = 1
	}
	writeJSON(w, http.StatusOK, writeResult{Acknowledged: true, MatchedCount: count(1), ModifiedCount: count(n)})
}

func (s *Server) handleDeleteMarathon(w http.ResponseWriter, r *http.Request) {
	n, err := s.data.deleteMarathon(chi.URLParam(r, "id"), emailFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Acknowledged: true, DeletedCount: count(n)})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req model.ApplicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MarathonID == "" {
		writeError(w, apperror.ValidationFailed("marathonId", "marathonId is required"))
		return
	}
	email := req.Email
	if email == "" {
		email = emailFromContext(r.Context())
	}

	a, err := s.data.insertApplication(model.Application{
		MarathonID:        req.MarathonID,
		MarathonTitle:     req.MarathonTitle,
		MarathonStartDate: req.MarathonStartDate,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		ContactNumber:     req.ContactNumber,
		AdditionalInfo:    req.AdditionalInfo,
		Email:             email,
	}, s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Acknowledged: true, InsertedID: a.ID})
}

func (s *Server) handleMyApplications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.applicationsOf(emailFromContext(r.Context()), r.URL.Query().Get("search")))
}

func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	var patch model.ApplicationPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	modified, err := s.data.updateApplication(chi.URLParam(r, "id"), emailFromContext(r.Context()), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	n := 0
	if modified {
		n = 1
	}
	writeJSON(w, http.StatusOK, writeResult{Acknowledged: true, MatchedCount: count(1), ModifiedCount: count(n)})
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	n, err := s.data.deleteApplication(chi.URLParam(r, "id"), emailFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Acknowledged: true, DeletedCount: count(n)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.stats(emailFromContext(r.Context()), s.now()))
}
