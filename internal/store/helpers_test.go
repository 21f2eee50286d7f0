package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/marathon-client/internal/apiclient"
	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/metrics"
	"github.com/sakif/marathon-client/internal/mockapi"
	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/repository"
	"github.com/sakif/marathon-client/internal/repository/rest"
)

var testNow = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSlot is an in-memory repository.SessionSlot.
type memSlot struct {
	mu       sync.Mutex
	value    string
	ok       bool
	loadErr  error
	saveErr  error
	clearErr error
	cleared  int
}

func (s *memSlot) Load(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return "", false, s.loadErr
	}
	return s.value, s.ok, nil
}

func (s *memSlot) Save(_ context.Context, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.value, s.ok = v, true
	return nil
}

func (s *memSlot) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.value, s.ok = "", false
	return nil
}

// fakeAuthRepo records session calls.
type fakeAuthRepo struct {
	createErr error
	endErr    error
	created   []string
	ended     int
}

func (f *fakeAuthRepo) CreateSession(_ context.Context, email string) error {
	f.created = append(f.created, email)
	return f.createErr
}

func (f *fakeAuthRepo) EndSession(context.Context) error {
	f.ended++
	return f.endErr
}

// fakeSession is a SessionView with a fixed identity.
type fakeSession struct {
	session   model.Session
	ok        bool
	listeners []func(model.Session, bool)
}

func signedIn(email string) *fakeSession {
	return &fakeSession{session: model.Session{Email: email, DisplayName: model.DisplayNameFromEmail(email)}, ok: true}
}

func (f *fakeSession) Current() (model.Session, bool) { return f.session, f.ok }

func (f *fakeSession) Subscribe(fn func(model.Session, bool)) {
	f.listeners = append(f.listeners, fn)
}

func (f *fakeSession) signOut() {
	f.session, f.ok = model.Session{}, false
	for _, fn := range f.listeners {
		fn(f.session, false)
	}
}

// fakeMarathonRepo delegates to the function fields that are set.
type fakeMarathonRepo struct {
	mu       sync.Mutex
	calls    map[string]int
	list     func(ctx context.Context, q repository.MarathonQuery) ([]model.Marathon, error)
	featured func(ctx context.Context) ([]model.Marathon, error)
	getByID  func(ctx context.Context, id string) (*model.Marathon, error)
	create   func(ctx context.Context, in model.MarathonInput) (model.WriteResult, error)
	update   func(ctx context.Context, id string, p model.MarathonPatch) (model.WriteResult, error)
	del      func(ctx context.Context, id string) (model.WriteResult, error)
}

var _ repository.MarathonRepository = (*fakeMarathonRepo)(nil)

func (f *fakeMarathonRepo) called(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *fakeMarathonRepo) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeMarathonRepo) Create(ctx context.Context, in model.MarathonInput) (model.WriteResult, error) {
	f.called("create")
	if f.create == nil {
		return model.WriteResult{Acknowledged: true, InsertedID: "new"}, nil
	}
	return f.create(ctx, in)
}

func (f *fakeMarathonRepo) List(ctx context.Context, q repository.MarathonQuery) ([]model.Marathon, error) {
	f.called("list")
	if f.list == nil {
		return []model.Marathon{}, nil
	}
	return f.list(ctx, q)
}

func (f *fakeMarathonRepo) ListFeatured(ctx context.Context) ([]model.Marathon, error) {
	f.called("featured")
	if f.featured == nil {
		return []model.Marathon{}, nil
	}
	return f.featured(ctx)
}

func (f *fakeMarathonRepo) GetByID(ctx context.Context, id string) (*model.Marathon, error) {
	f.called("get")
	if f.getByID == nil {
		return nil, errors.New("not stubbed")
	}
	return f.getByID(ctx, id)
}

func (f *fakeMarathonRepo) Update(ctx context.Context, id string, p model.MarathonPatch) (model.WriteResult, error) {
	f.called("update")
	if f.update == nil {
		return model.WriteResult{Acknowledged: true, ModifiedCount: 1}, nil
	}
	return f.update(ctx, id, p)
}

func (f *fakeMarathonRepo) Delete(ctx context.Context, id string) (model.WriteResult, error) {
	f.called("delete")
	if f.del == nil {
		return model.WriteResult{Acknowledged: true, DeletedCount: 1}, nil
	}
	return f.del(ctx, id)
}

// stack wires every store against an in-process backend, the way the
// command wires them against the real one.
type stack struct {
	backend      *mockapi.Server
	client       *apiclient.Client
	metrics      *metrics.Metrics
	slot         *memSlot
	session      *SessionStore
	marathons    *MarathonStore
	applications *ApplicationStore
	degradations []apiclient.Degradation
}

func newStack(t *testing.T) *stack {
	t.Helper()
	tokens, err := auth.NewTokenService("store-test-secret-0123")
	require.NoError(t, err)
	backend := mockapi.New(tokens, testLogger(), mockapi.WithClock(testClock))
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return buildStack(t, backend, srv.URL)
}

func buildStack(t *testing.T, backend *mockapi.Server, baseURL string) *stack {
	t.Helper()
	st := &stack{backend: backend, metrics: metrics.New(), slot: &memSlot{}}
	client, err := apiclient.New(baseURL, testLogger(),
		apiclient.WithMetrics(st.metrics),
		apiclient.WithDegradationHook(func(d apiclient.Degradation) {
			st.degradations = append(st.degradations, d)
		}),
	)
	require.NoError(t, err)
	st.client = client

	opts := []Option{WithMetrics(st.metrics), WithClock(testClock), WithCookies(client)}
	st.session = NewSessionStore(rest.NewAuthRepository(client), st.slot, testLogger(), opts...)
	st.marathons = NewMarathonStore(rest.NewMarathonRepository(client), st.session, testLogger(), opts...)
	st.applications = NewApplicationStore(rest.NewApplicationRepository(client), st.session, testLogger(), opts...)
	st.session.Restore(context.Background())
	return st
}

// unreachableStack points the client at a closed server.
func unreachableStack(t *testing.T) *stack {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return buildStack(t, nil, url)
}

func (st *stack) login(t *testing.T, email string) {
	t.Helper()
	_, err := st.session.Login(context.Background(), email, "secret")
	require.NoError(t, err)
}

func validInput(title string) model.MarathonInput {
	return model.MarathonInput{
		Title:                 title,
		Location:              "Dhaka",
		StartRegistrationDate: model.MustDate("2024-01-01"),
		EndRegistrationDate:   model.MustDate("2024-01-10"),
		MarathonStartDate:     model.MustDate("2024-02-01"),
		RunningDistance:       model.Distance10K,
		Description:           "A run through the city",
	}
}

func ptr[T any](v T) *T { return &v }
