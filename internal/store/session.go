package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/metrics"
	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/repository"
)

// State is the lifecycle state of the SessionStore.
type State int

const (
	// StateUnknown holds until Restore has finished.
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Profile is the registration form.
type Profile struct {
	Name     string
	Email    string
	Password string
	PhotoURL string
}

// SessionStore holds the signed-in identity and keeps it in the persisted
// slot. The server cookie session is established best effort: when the
// backend cannot be reached the user is still signed in locally.
//
// Concurrent logins are not coordinated; the last one to finish wins.
type SessionStore struct {
	auth    repository.AuthRepository
	slot    repository.SessionSlot
	logger  *slog.Logger
	metrics *metrics.Metrics
	cookies CookieSource
	opts    options

	mu        sync.RWMutex
	state     State
	session   model.Session
	restoring bool
	listeners []func(model.Session, bool)
}

func NewSessionStore(authRepo repository.AuthRepository, slot repository.SessionSlot, logger *slog.Logger, opts ...Option) *SessionStore {
	o := buildOptions(opts)
	return &SessionStore{
		auth:      authRepo,
		slot:      slot,
		logger:    logger,
		metrics:   o.metrics,
		cookies:   o.cookies,
		opts:      o,
		state:     StateUnknown,
		restoring: true,
	}
}

// Current returns the signed-in session, if any.
func (s *SessionStore) Current() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.state == StateAuthenticated
}

func (s *SessionStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Restoring reports whether Restore has not finished yet.
func (s *SessionStore) Restoring() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restoring
}

// Subscribe registers fn to be called after every identity change with the
// new session and whether it is authenticated. fn runs outside the lock.
func (s *SessionStore) Subscribe(fn func(model.Session, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Restore loads the persisted identity. A value that cannot be parsed is
// cleared. Restore always leaves the store out of the restoring state.
func (s *SessionStore) Restore(ctx context.Context) {
	raw, ok, err := s.slot.Load(ctx)
	switch {
	case err != nil:
		s.logger.Warn("could not read saved session", slog.String("error", err.Error()))
		s.setAnonymous()
		return
	case !ok:
		s.setAnonymous()
		return
	}

	var session model.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || strings.TrimSpace(session.Email) == "" {
		reason := "missing email"
		if err != nil {
			reason = err.Error()
		}
		s.logger.Error("error parsing saved session, clearing it", slog.String("error", reason))
		if err := s.slot.Clear(ctx); err != nil {
			s.logger.Warn("could not clear saved session", slog.String("error", err.Error()))
		}
		s.setAnonymous()
		return
	}

	if session.Expired(s.opts.now()) {
		s.logger.Warn("restored session has an expired server token, backend calls may need a new login",
			slog.String("email", session.Email),
		)
	}
	s.logger.Info("session restored", slog.String("email", session.Email))
	s.setAuthenticated(session)
}

// Register signs up and signs in. Name, email and password are required.
func (s *SessionStore) Register(ctx context.Context, p Profile) (model.Session, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return model.Session{}, apperror.ValidationFailed("name", "Name is required")
	}
	email, err := validateCredentials(p.Email, p.Password)
	if err != nil {
		return model.Session{}, err
	}

	session := model.Session{
		Email:       email,
		DisplayName: name,
		PhotoURL:    strings.TrimSpace(p.PhotoURL),
	}
	session, err = s.establish(ctx, session, "register")
	s.metrics.ObserveOperation(storeSession, "register", err)
	return session, err
}

// Login signs in with email and password. The display name is the local
// part of the email.
func (s *SessionStore) Login(ctx context.Context, email, password string) (model.Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return model.Session{}, err
	}

	session := model.Session{
		Email:       email,
		DisplayName: model.DisplayNameFromEmail(email),
	}
	session, err = s.establish(ctx, session, "login")
	s.metrics.ObserveOperation(storeSession, "login", err)
	return session, err
}

// LoginWithProvider signs in with the identity id vouches for. Provider
// failures are reported as apperror.ErrProvider errors whose Code tells an
// unauthorized domain from a cancelled login.
func (s *SessionStore) LoginWithProvider(ctx context.Context, id auth.Identifier) (model.Session, error) {
	session, err := s.loginWithProvider(ctx, id)
	s.metrics.ObserveOperation(storeSession, "login_provider", err)
	return session, err
}

func (s *SessionStore) loginWithProvider(ctx context.Context, id auth.Identifier) (model.Session, error) {
	if id == nil {
		return model.Session{}, apperror.Provider(apperror.CodeProviderUnknown, errors.New("no identity provider configured"))
	}

	profile, err := id.Identify(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return model.Session{}, err
		}
		s.logger.Error("provider login failed", slog.String("error", err.Error()))
		return model.Session{}, providerError(err)
	}

	email := strings.TrimSpace(profile.Email)
	if email == "" {
		return model.Session{}, apperror.Provider(apperror.CodeProviderUnknown, errors.New("provider returned no email"))
	}
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = model.DisplayNameFromEmail(email)
	}
	return s.establish(ctx, model.Session{
		Email:       email,
		DisplayName: name,
		PhotoURL:    profile.Picture,
	}, "provider")
}

// Logout ends the server session and clears the persisted identity. Both
// are best effort; the store always ends up anonymous.
func (s *SessionStore) Logout(ctx context.Context) {
	if err := s.auth.EndSession(ctx); err != nil {
		s.logger.Warn("logout request failed, signing out locally", slog.String("error", err.Error()))
	}
	if err := s.slot.Clear(ctx); err != nil {
		s.logger.Warn("could not clear saved session", slog.String("error", err.Error()))
	}

	s.setAnonymous()
	s.metrics.ObserveOperation(storeSession, "logout", nil)
	s.logger.Info("logged out")
}

// establish requests the server session, persists the identity and signs
// it in. Only a cancelled context aborts it.
func (s *SessionStore) establish(ctx context.Context, session model.Session, method string) (model.Session, error) {
	if err := s.auth.CreateSession(ctx, session.Email); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Session{}, fmt.Errorf("establishing session: %w", ctxErr)
		}
		s.logger.Warn("server session could not be established, continuing with local session",
			slog.String("email", session.Email),
			slog.String("error", err.Error()),
		)
	} else {
		session.ExpiresAt = s.cookieExpiry(session.Email)
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return model.Session{}, fmt.Errorf("encoding session: %w", err)
	}
	if err := s.slot.Save(ctx, string(raw)); err != nil {
		s.logger.Warn("could not persist session", slog.String("error", err.Error()))
	}

	s.setAuthenticated(session)
	s.logger.Info("signed in",
		slog.String("email", session.Email),
		slog.String("method", method),
	)
	return session, nil
}

// cookieExpiry reads the advisory expiry from the backend session cookie.
func (s *SessionStore) cookieExpiry(email string) *time.Time {
	if s.cookies == nil {
		return nil
	}
	c := s.cookies.Cookie(auth.SessionCookieName)
	if c == nil {
		return nil
	}
	info, err := auth.InspectSessionToken(c.Value)
	if err != nil {
		s.logger.Debug("session cookie is not a readable token", slog.String("error", err.Error()))
		return nil
	}
	if info.Subject != "" && !strings.EqualFold(info.Subject, email) {
		s.logger.Warn("session cookie belongs to another user",
			slog.String("email", email),
			slog.String("subject", info.Subject),
		)
	}
	return info.ExpiresAt
}

func (s *SessionStore) setAuthenticated(session model.Session) {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.session = session
	s.restoring = false
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.metrics.SetAnonymous(false)
	for _, fn := range listeners {
		fn(session, true)
	}
}

func (s *SessionStore) setAnonymous() {
	s.mu.Lock()
	s.state = StateAnonymous
	s.session = model.Session{}
	s.restoring = false
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.metrics.SetAnonymous(true)
	for _, fn := range listeners {
		fn(model.Session{}, false)
	}
}

func validateCredentials(email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", apperror.ValidationFailed("email", "Email and password are required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", apperror.ValidationFailed("email", "invalid email format")
	}
	return addr.Address, nil
}

func providerError(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && errors.Is(appErr.Err, apperror.ErrProvider) {
		return err
	}
	var pe *auth.ProviderError
	if errors.As(err, &pe) {
		return apperror.Provider(auth.ClassifyProviderCode(pe.Code), err)
	}
	return apperror.Provider(apperror.CodeProviderUnknown, err)
}
