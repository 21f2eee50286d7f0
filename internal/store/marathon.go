package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/metrics"
	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/repository"
)

const (
	kindAll  = "all"
	kindMine = "mine"
)

// OwnedLister fetches the marathons owned by email.
type OwnedLister interface {
	ListOwned(ctx context.Context, email string) ([]model.Marathon, error)
}

// ClientSideOwnedLister fetches the whole collection and keeps the entries
// whose owner email matches. The backend has no "mine" query for marathons.
type ClientSideOwnedLister struct {
	Repo repository.MarathonRepository
}

func (l ClientSideOwnedLister) ListOwned(ctx context.Context, email string) ([]model.Marathon, error) {
	all, err := l.Repo.List(ctx, repository.MarathonQuery{Sort: model.SortNewest})
	if err != nil {
		return nil, err
	}
	owned := make([]model.Marathon, 0, len(all))
	for _, m := range all {
		if m.OwnedBy(email) {
			owned = append(owned, m)
		}
	}
	return owned, nil
}

// MarathonStore caches two views of the marathon collection: every marathon
// (populated only while signed in) and the ones the session user owns.
type MarathonStore struct {
	repo    repository.MarathonRepository
	owned   OwnedLister
	session SessionView
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	all       []model.Marathon
	mine      []model.Marathon
	lastQuery repository.MarathonQuery
	seq       sequence
}

func NewMarathonStore(repo repository.MarathonRepository, session SessionView, logger *slog.Logger, opts ...Option) *MarathonStore {
	o := buildOptions(opts)
	owned := o.owned
	if owned == nil {
		owned = ClientSideOwnedLister{Repo: repo}
	}
	s := &MarathonStore{
		repo:      repo,
		owned:     owned,
		session:   session,
		logger:    logger,
		metrics:   o.metrics,
		all:       []model.Marathon{},
		mine:      []model.Marathon{},
		lastQuery: repository.MarathonQuery{Sort: model.SortNewest},
		seq:       newSequence(),
	}
	session.Subscribe(s.onSessionChange)
	return s
}

// All returns a copy of the all-marathons view.
func (s *MarathonStore) All() []model.Marathon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.all)
}

// Mine returns a copy of the owned view.
func (s *MarathonStore) Mine() []model.Marathon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.mine)
}

// OwnedCount is the number of marathons the session user owns. It is the
// length of the owned view by construction.
func (s *MarathonStore) OwnedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mine)
}

// List refreshes the all-marathons view. Signed out it only clears the
// view. A response superseded by a newer List is discarded and the current
// view is returned instead.
func (s *MarathonStore) List(ctx context.Context, sort model.SortOrder, location string) ([]model.Marathon, error) {
	q, err := marathonQuery(sort, location)
	if err != nil {
		return nil, err
	}
	if _, ok := s.session.Current(); !ok {
		s.mu.Lock()
		s.all = []model.Marathon{}
		s.seq.invalidate(kindAll)
		s.mu.Unlock()
		return []model.Marathon{}, nil
	}

	s.mu.Lock()
	n := s.seq.next(kindAll)
	s.lastQuery = q
	s.mu.Unlock()

	data, err := s.repo.List(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seq.current(kindAll, n) {
		s.metrics.ObserveStale(storeMarathon, kindAll)
		s.logger.Debug("discarding superseded marathon list response")
		return slices.Clone(s.all), nil
	}
	s.metrics.ObserveOperation(storeMarathon, "list", err)
	if err != nil {
		s.all = []model.Marathon{}
		s.logger.Error("failed to load marathons", slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading marathons: %w", err)
	}
	if data == nil {
		data = []model.Marathon{}
	}
	s.all = data
	return slices.Clone(data), nil
}

// ListMine refreshes the owned view.
func (s *MarathonStore) ListMine(ctx context.Context) ([]model.Marathon, error) {
	session, ok := s.session.Current()
	if !ok {
		s.mu.Lock()
		s.mine = []model.Marathon{}
		s.seq.invalidate(kindMine)
		s.mu.Unlock()
		return []model.Marathon{}, nil
	}

	s.mu.Lock()
	n := s.seq.next(kindMine)
	s.mu.Unlock()

	data, err := s.owned.ListOwned(ctx, session.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seq.current(kindMine, n) {
		s.metrics.ObserveStale(storeMarathon, kindMine)
		s.logger.Debug("discarding superseded owned marathon response")
		return slices.Clone(s.mine), nil
	}
	s.metrics.ObserveOperation(storeMarathon, "list_mine", err)
	if err != nil {
		s.mine = []model.Marathon{}
		s.logger.Error("failed to load owned marathons",
			slog.String("email", session.Email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loading owned marathons: %w", err)
	}
	if data == nil {
		data = []model.Marathon{}
	}
	s.mine = data
	return slices.Clone(data), nil
}

// Get returns the marathon from the cached views, fetching it when absent.
func (s *MarathonStore) Get(ctx context.Context, id string) (*model.Marathon, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "marathon ID is required")
	}
	if m, ok := s.cached(id); ok {
		return &m, nil
	}
	return s.repo.GetByID(ctx, id)
}

// ListFeatured returns the public featured marathons, which need no session.
// The endpoint takes no parameters, so location and sort are applied here.
func (s *MarathonStore) ListFeatured(ctx context.Context, sort model.SortOrder, location string) ([]model.Marathon, error) {
	q, err := marathonQuery(sort, location)
	if err != nil {
		return nil, err
	}
	data, err := s.repo.ListFeatured(ctx)
	s.metrics.ObserveOperation(storeMarathon, "featured", err)
	if err != nil {
		s.logger.Error("failed to load featured marathons", slog.String("error", err.Error()))
		return nil, err
	}

	if loc := strings.ToLower(q.Location); loc != "" {
		data = slices.DeleteFunc(data, func(m model.Marathon) bool {
			return !strings.Contains(strings.ToLower(m.Location), loc)
		})
	}
	slices.SortStableFunc(data, func(a, b model.Marathon) int {
		c := a.MarathonStartDate.Compare(b.MarathonStartDate.Time)
		if q.Sort == model.SortOldest {
			return c
		}
		return -c
	})
	return data, nil
}

// Create validates and submits a new marathon owned by the session user.
// On an acknowledged write both views are re-fetched so server-maintained
// fields are current.
func (s *MarathonStore) Create(ctx context.Context, in model.MarathonInput) (model.WriteResult, error) {
	res, err := s.create(ctx, in)
	s.metrics.ObserveOperation(storeMarathon, "create", err)
	return res, err
}

func (s *MarathonStore) create(ctx context.Context, in model.MarathonInput) (model.WriteResult, error) {
	session, err := requireSession(s.session, "create a marathon")
	if err != nil {
		return model.WriteResult{}, err
	}
	in = in.Normalize()
	if err := validateMarathonInput(in); err != nil {
		return model.WriteResult{}, err
	}
	in.Email = session.Email

	res, err := s.repo.Create(ctx, in)
	if err != nil {
		s.logger.Error("failed to create marathon",
			slog.String("title", in.Title),
			slog.String("error", err.Error()),
		)
		return model.WriteResult{}, err
	}
	if !res.Inserted() {
		return res, apperror.InvalidResponse("Invalid response from server")
	}

	s.logger.Info("marathon created",
		slog.String("id", res.InsertedID),
		slog.String("title", in.Title),
	)
	s.refresh(ctx)
	return res, nil
}

// Update validates and submits a partial update. Date ordering is checked on
// the patch merged over the current marathon. A write that modified nothing
// is an error.
func (s *MarathonStore) Update(ctx context.Context, id string, patch model.MarathonPatch) (model.WriteResult, error) {
	res, err := s.update(ctx, id, patch)
	s.metrics.ObserveOperation(storeMarathon, "update", err)
	return res, err
}

func (s *MarathonStore) update(ctx context.Context, id string, patch model.MarathonPatch) (model.WriteResult, error) {
	session, err := requireSession(s.session, "update a marathon")
	if err != nil {
		return model.WriteResult{}, err
	}
	if patch.Empty() {
		return model.WriteResult{}, apperror.ValidationFailed("patch", "No changes to update")
	}
	if err := validateMarathonPatch(patch); err != nil {
		return model.WriteResult{}, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return model.WriteResult{}, err
	}
	if current.Email != "" && !current.OwnedBy(session.Email) {
		return model.WriteResult{}, apperror.Forbidden("You can only modify your own marathons")
	}
	if patch.StartRegistrationDate != nil || patch.EndRegistrationDate != nil || patch.MarathonStartDate != nil {
		merged := patch.Apply(*current)
		if err := validateDateOrder(merged.StartRegistrationDate, merged.EndRegistrationDate, merged.MarathonStartDate); err != nil {
			return model.WriteResult{}, err
		}
	}

	res, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		s.logger.Error("failed to update marathon",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return model.WriteResult{}, err
	}
	if !res.Modified() {
		return res, apperror.NoChanges("marathon", id)
	}

	s.logger.Info("marathon updated", slog.String("id", id))
	s.refresh(ctx)
	return res, nil
}

// Delete removes the marathon and drops it from both views without a
// re-fetch.
func (s *MarathonStore) Delete(ctx context.Context, id string) error {
	err := s.delete(ctx, id)
	s.metrics.ObserveOperation(storeMarathon, "delete", err)
	return err
}

func (s *MarathonStore) delete(ctx context.Context, id string) error {
	session, err := requireSession(s.session, "delete a marathon")
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "marathon ID is required")
	}
	if m, ok := s.cached(id); ok && m.Email != "" && !m.OwnedBy(session.Email) {
		return apperror.Forbidden("You can only delete your own marathons")
	}

	res, err := s.repo.Delete(ctx, id)
	if err != nil {
		s.logger.Error("failed to delete marathon",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	if !res.Deleted() {
		s.logger.Warn("marathon delete not acknowledged", slog.String("id", id))
		return apperror.InvalidResponse("Failed to delete marathon")
	}

	s.mu.Lock()
	s.all = withoutMarathon(s.all, id)
	s.mine = withoutMarathon(s.mine, id)
	s.seq.invalidate(kindAll)
	s.seq.invalidate(kindMine)
	s.mu.Unlock()

	s.logger.Info("marathon deleted", slog.String("id", id))
	return nil
}

// refresh re-fetches both views after a write, reusing the last list
// parameters. The write already succeeded, so refresh failures are logged
// and leave the views empty.
func (s *MarathonStore) refresh(ctx context.Context) {
	s.mu.RLock()
	q := s.lastQuery
	s.mu.RUnlock()

	if _, err := s.List(ctx, q.Sort, q.Location); err != nil {
		s.logger.Warn("could not refresh marathons after write", slog.String("error", err.Error()))
	}
	if _, err := s.ListMine(ctx); err != nil {
		s.logger.Warn("could not refresh owned marathons after write", slog.String("error", err.Error()))
	}
}

func (s *MarathonStore) cached(id string) (model.Marathon, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, view := range [][]model.Marathon{s.all, s.mine} {
		if i := slices.IndexFunc(view, func(m model.Marathon) bool { return m.ID == id }); i >= 0 {
			return view[i], true
		}
	}
	return model.Marathon{}, false
}

// onSessionChange drops both views; they belong to the previous identity.
func (s *MarathonStore) onSessionChange(model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = []model.Marathon{}
	s.mine = []model.Marathon{}
	s.seq.invalidate(kindAll)
	s.seq.invalidate(kindMine)
}

func marathonQuery(sort model.SortOrder, location string) (repository.MarathonQuery, error) {
	switch sort {
	case "":
		sort = model.SortNewest
	case model.SortNewest, model.SortOldest:
	default:
		return repository.MarathonQuery{}, apperror.ValidationFailed("sort",
			fmt.Sprintf("sort must be %q or %q", model.SortNewest, model.SortOldest))
	}
	return repository.MarathonQuery{Sort: sort, Location: strings.TrimSpace(location)}, nil
}

func validateMarathonInput(in model.MarathonInput) error {
	required := []struct {
		field, value, label string
	}{
		{"marathonTitle", in.Title, "Marathon title"},
		{"location", in.Location, "Location"},
		{"runningDistance", string(in.RunningDistance), "Running distance"},
	}
	for _, r := range required {
		if r.value == "" {
			return apperror.ValidationFailed(r.field, r.label+" is required")
		}
	}
	dates := []struct {
		field string
		value model.Date
		label string
	}{
		{"startRegistrationDate", in.StartRegistrationDate, "Start registration date"},
		{"endRegistrationDate", in.EndRegistrationDate, "End registration date"},
		{"marathonStartDate", in.MarathonStartDate, "Marathon start date"},
	}
	for _, d := range dates {
		if d.value.IsZero() {
			return apperror.ValidationFailed(d.field, d.label+" is required")
		}
	}
	if !in.RunningDistance.Valid() {
		return apperror.ValidationFailed("runningDistance",
			fmt.Sprintf("unknown running distance %q", in.RunningDistance))
	}
	return validateDateOrder(in.StartRegistrationDate, in.EndRegistrationDate, in.MarathonStartDate)
}

// validateMarathonPatch checks the fields the patch sets, including the
// order of any dates it sets together. The order against the stored dates
// is checked once the marathon is loaded.
func validateMarathonPatch(p model.MarathonPatch) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return apperror.ValidationFailed("marathonTitle", "Marathon title is required")
	}
	if p.Location != nil && strings.TrimSpace(*p.Location) == "" {
		return apperror.ValidationFailed("location", "Location is required")
	}
	if p.RunningDistance != nil && !p.RunningDistance.Valid() {
		return apperror.ValidationFailed("runningDistance",
			fmt.Sprintf("unknown running distance %q", *p.RunningDistance))
	}
	startReg, endReg, start := p.StartRegistrationDate, p.EndRegistrationDate, p.MarathonStartDate
	switch {
	case startReg != nil && endReg != nil && !endReg.After(startReg.Time):
		return apperror.ValidationFailed("endRegistrationDate",
			"End registration date must be after start registration date.")
	case endReg != nil && start != nil && !start.After(endReg.Time):
		return apperror.ValidationFailed("marathonStartDate",
			"Marathon start date must be after registration end date.")
	case startReg != nil && start != nil && !start.After(startReg.Time):
		return apperror.ValidationFailed("marathonStartDate",
			"Marathon start date must be after start registration date.")
	}
	return nil
}

// validateDateOrder enforces start registration < end registration <
// marathon start.
func validateDateOrder(startReg, endReg, start model.Date) error {
	if !endReg.After(startReg.Time) {
		return apperror.ValidationFailed("endRegistrationDate",
			"End registration date must be after start registration date.")
	}
	if !start.After(endReg.Time) {
		return apperror.ValidationFailed("marathonStartDate",
			"Marathon start date must be after registration end date.")
	}
	return nil
}

func withoutMarathon(view []model.Marathon, id string) []model.Marathon {
	return slices.DeleteFunc(slices.Clone(view), func(m model.Marathon) bool { return m.ID == id })
}
