package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/metrics"
	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/repository"
)

const kindApplications = "applications"

// ApplicationStore caches the session user's applications. Updates and
// deletes patch the cached view in place; the server's search results are
// trusted as returned.
type ApplicationStore struct {
	repo    repository.ApplicationRepository
	session SessionView
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	mine   []model.Application
	search string
	seq    sequence
}

func NewApplicationStore(repo repository.ApplicationRepository, session SessionView, logger *slog.Logger, opts ...Option) *ApplicationStore {
	o := buildOptions(opts)
	s := &ApplicationStore{
		repo:    repo,
		session: session,
		logger:  logger,
		metrics: o.metrics,
		now:     o.now,
		mine:    []model.Application{},
		seq:     newSequence(),
	}
	session.Subscribe(s.onSessionChange)
	return s
}

// Mine returns a copy of the cached applications.
func (s *ApplicationStore) Mine() []model.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.mine)
}

// Search is the search term of the last List.
func (s *ApplicationStore) Search() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

// Filter narrows the cached view by a case-insensitive substring of the
// marathon title or applicant name. The view itself is left untouched.
func (s *ApplicationStore) Filter(term string) []model.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Application, 0, len(s.mine))
	for _, a := range s.mine {
		if a.Matches(term) {
			out = append(out, a)
		}
	}
	return out
}

// List refreshes the view with the applications matching search. Signed out
// it only clears the view.
func (s *ApplicationStore) List(ctx context.Context, search string) ([]model.Application, error) {
	search = strings.TrimSpace(search)
	if _, ok := s.session.Current(); !ok {
		s.mu.Lock()
		s.mine = []model.Application{}
		s.seq.invalidate(kindApplications)
		s.mu.Unlock()
		return []model.Application{}, nil
	}

	s.mu.Lock()
	n := s.seq.next(kindApplications)
	s.search = search
	s.mu.Unlock()

	data, err := s.repo.ListMine(ctx, search)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seq.current(kindApplications, n) {
		s.metrics.ObserveStale(storeApplications, kindApplications)
		s.logger.Debug("discarding superseded application list response", slog.String("search", search))
		return slices.Clone(s.mine), nil
	}
	s.metrics.ObserveOperation(storeApplications, "list", err)
	if err != nil {
		s.mine = []model.Application{}
		s.logger.Error("failed to load applications", slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading applications: %w", err)
	}
	if data == nil {
		data = []model.Application{}
	}
	s.mine = data
	return slices.Clone(data), nil
}

// Apply registers the session user for marathon. Registering for one's own
// marathon or after the registration window closed is rejected.
func (s *ApplicationStore) Apply(ctx context.Context, marathon model.Marathon, in model.ApplicationInput) (*model.Application, error) {
	app, err := s.apply(ctx, marathon, in)
	s.metrics.ObserveOperation(storeApplications, "apply", err)
	return app, err
}

func (s *ApplicationStore) apply(ctx context.Context, marathon model.Marathon, in model.ApplicationInput) (*model.Application, error) {
	session, err := requireSession(s.session, "apply for a marathon")
	if err != nil {
		return nil, err
	}
	in = normalizeApplicationInput(in)
	if err := validateApplicationInput(in); err != nil {
		return nil, err
	}
	if marathon.ID == "" {
		return nil, apperror.ValidationFailed("marathonId", "marathon ID is required")
	}
	if marathon.OwnedBy(session.Email) {
		return nil, apperror.Forbidden("You cannot register for your own marathon")
	}
	if !marathon.RegistrationOpen(s.now()) {
		return nil, apperror.ValidationFailed("endRegistrationDate", "Registration for this marathon is closed")
	}

	req := model.ApplicationRequest{
		MarathonID:        marathon.ID,
		MarathonTitle:     marathon.Title,
		MarathonStartDate: marathon.MarathonStartDate,
		ApplicationInput:  in,
		Email:             session.Email,
	}
	res, err := s.repo.Create(ctx, req)
	if err != nil {
		s.logger.Error("failed to apply for marathon",
			slog.String("marathon_id", marathon.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if !res.Inserted() {
		return nil, apperror.InvalidResponse("Failed to submit application")
	}

	app := model.Application{
		ID:                res.InsertedID,
		MarathonID:        req.MarathonID,
		MarathonTitle:     req.MarathonTitle,
		MarathonStartDate: req.MarathonStartDate,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		ContactNumber:     in.ContactNumber,
		AdditionalInfo:    in.AdditionalInfo,
		Email:             session.Email,
		CreatedAt:         s.now(),
	}
	s.logger.Info("applied for marathon",
		slog.String("id", app.ID),
		slog.String("marathon_id", app.MarathonID),
	)

	if app.ID == "" {
		// Acknowledged without an id: the cached entry could never be
		// updated or deleted, so reload instead.
		if _, err := s.List(ctx, s.Search()); err != nil {
			s.logger.Warn("could not refresh applications after apply", slog.String("error", err.Error()))
		}
		return &app, nil
	}

	s.mu.Lock()
	s.mine = append([]model.Application{app}, s.mine...)
	s.seq.invalidate(kindApplications)
	s.mu.Unlock()
	return &app, nil
}

// Update submits a partial update and merges it into the cached entry. A
// write that modified nothing is an error.
func (s *ApplicationStore) Update(ctx context.Context, id string, patch model.ApplicationPatch) (model.WriteResult, error) {
	res, err := s.update(ctx, id, patch)
	s.metrics.ObserveOperation(storeApplications, "update", err)
	return res, err
}

func (s *ApplicationStore) update(ctx context.Context, id string, patch model.ApplicationPatch) (model.WriteResult, error) {
	if _, err := requireSession(s.session, "update an application"); err != nil {
		return model.WriteResult{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return model.WriteResult{}, apperror.ValidationFailed("id", "application ID is required")
	}
	if err := validateApplicationPatch(patch); err != nil {
		return model.WriteResult{}, err
	}

	res, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		s.logger.Error("failed to update application",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return model.WriteResult{}, err
	}
	if !res.Modified() {
		return res, apperror.NoChanges("application", id)
	}

	s.mu.Lock()
	s.mine = slices.Clone(s.mine)
	for i := range s.mine {
		if s.mine[i].ID == id {
			s.mine[i] = patch.Apply(s.mine[i])
		}
	}
	s.seq.invalidate(kindApplications)
	s.mu.Unlock()

	s.logger.Info("application updated", slog.String("id", id))
	return res, nil
}

// Delete removes the application and drops it from the view.
func (s *ApplicationStore) Delete(ctx context.Context, id string) error {
	err := s.delete(ctx, id)
	s.metrics.ObserveOperation(storeApplications, "delete", err)
	return err
}

func (s *ApplicationStore) delete(ctx context.Context, id string) error {
	if _, err := requireSession(s.session, "delete an application"); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "application ID is required")
	}

	res, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.logger.Error("failed to delete application",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	if !res.Deleted() {
		s.logger.Warn("application delete not acknowledged", slog.String("id", id))
		return apperror.InvalidResponse("Failed to delete application")
	}

	s.mu.Lock()
	s.mine = slices.DeleteFunc(slices.Clone(s.mine), func(a model.Application) bool { return a.ID == id })
	s.seq.invalidate(kindApplications)
	s.mu.Unlock()

	s.logger.Info("application deleted", slog.String("id", id))
	return nil
}

func (s *ApplicationStore) onSessionChange(model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mine = []model.Application{}
	s.search = ""
	s.seq.invalidate(kindApplications)
}

func normalizeApplicationInput(in model.ApplicationInput) model.ApplicationInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.ContactNumber = strings.TrimSpace(in.ContactNumber)
	in.AdditionalInfo = strings.TrimSpace(in.AdditionalInfo)
	return in
}

func validateApplicationInput(in model.ApplicationInput) error {
	switch {
	case in.FirstName == "":
		return apperror.ValidationFailed("firstName", "First name is required")
	case in.LastName == "":
		return apperror.ValidationFailed("lastName", "Last name is required")
	case in.ContactNumber == "":
		return apperror.ValidationFailed("contactNumber", "Contact number is required")
	}
	return nil
}

func validateApplicationPatch(p model.ApplicationPatch) error {
	if p == (model.ApplicationPatch{}) {
		return apperror.ValidationFailed("patch", "No changes to update")
	}
	blank := func(v *string) bool { return v != nil && strings.TrimSpace(*v) == "" }
	switch {
	case blank(p.FirstName):
		return apperror.ValidationFailed("firstName", "First name is required")
	case blank(p.LastName):
		return apperror.ValidationFailed("lastName", "Last name is required")
	case blank(p.ContactNumber):
		return apperror.ValidationFailed("contactNumber", "Contact number is required")
	}
	return nil
}
