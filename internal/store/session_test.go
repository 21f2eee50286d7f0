package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/model"
)

func newTestSessionStore(authRepo *fakeAuthRepo, slot *memSlot, opts ...Option) *SessionStore {
	return NewSessionStore(authRepo, slot, testLogger(), append([]Option{WithClock(testClock)}, opts...)...)
}

func TestSessionStore_InitialState(t *testing.T) {
	s := newTestSessionStore(&fakeAuthRepo{}, &memSlot{})

	assert.Equal(t, StateUnknown, s.State())
	assert.True(t, s.Restoring())
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestSessionStore_Restore(t *testing.T) {
	tests := []struct {
		name        string
		slot        *memSlot
		wantState   State
		wantEmail   string
		wantCleared bool
	}{
		{
			name:      "empty slot",
			slot:      &memSlot{},
			wantState: StateAnonymous,
		},
		{
			name:      "saved session",
			slot:      &memSlot{value: `{"email":"a@b.c","displayName":"a","photoURL":""}`, ok: true},
			wantState: StateAuthenticated,
			wantEmail: "a@b.c",
		},
		{
			name:        "corrupted value",
			slot:        &memSlot{value: `{"email":`, ok: true},
			wantState:   StateAnonymous,
			wantCleared: true,
		},
		{
			name:        "value without email",
			slot:        &memSlot{value: `{"displayName":"ghost"}`, ok: true},
			wantState:   StateAnonymous,
			wantCleared: true,
		},
		{
			name:      "unreadable slot",
			slot:      &memSlot{loadErr: errors.New("disk gone")},
			wantState: StateAnonymous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSessionStore(&fakeAuthRepo{}, tt.slot)
			s.Restore(context.Background())

			assert.Equal(t, tt.wantState, s.State())
			assert.False(t, s.Restoring())
			got, _ := s.Current()
			assert.Equal(t, tt.wantEmail, got.Email)
			if tt.wantCleared {
				assert.Equal(t, 1, tt.slot.cleared)
				assert.False(t, tt.slot.ok, "slot must be empty")
			}
		})
	}
}

func TestSessionStore_RestoreExpiredStaysAuthenticated(t *testing.T) {
	expired := testNow.Add(-time.Hour)
	raw, err := json.Marshal(model.Session{Email: "a@b.c", ExpiresAt: &expired})
	require.NoError(t, err)

	s := newTestSessionStore(&fakeAuthRepo{}, &memSlot{value: string(raw), ok: true})
	s.Restore(context.Background())

	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSessionStore_LoginValidation(t *testing.T) {
	tests := []struct {
		name, email, password string
	}{
		{"missing email", "", "secret"},
		{"blank email", "   ", "secret"},
		{"missing password", "a@b.c", ""},
		{"malformed email", "not-an-email", "secret"},
		{"address with display name", "Bob <bob@example.com>", "secret"},
		{"angle-bracketed address", "<bob@example.com>", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authRepo := &fakeAuthRepo{}
			s := newTestSessionStore(authRepo, &memSlot{})

			_, err := s.Login(context.Background(), tt.email, tt.password)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, authRepo.created, "no network call before validation passes")
			assert.NotEqual(t, StateAuthenticated, s.State())
		})
	}
}

func TestSessionStore_Login(t *testing.T) {
	authRepo := &fakeAuthRepo{}
	slot := &memSlot{}
	s := newTestSessionStore(authRepo, slot)

	session, err := s.Login(context.Background(), " runner@example.com ", "secret")
	require.NoError(t, err)

	assert.Equal(t, "runner@example.com", session.Email)
	assert.Equal(t, "runner", session.DisplayName)
	assert.Equal(t, []string{"runner@example.com"}, authRepo.created)
	assert.Equal(t, StateAuthenticated, s.State())

	var saved model.Session
	require.NoError(t, json.Unmarshal([]byte(slot.value), &saved))
	assert.Equal(t, session.Email, saved.Email)
}

func TestSessionStore_LoginToleratesSessionFailure(t *testing.T) {
	authRepo := &fakeAuthRepo{createErr: apperror.SessionEstablishment("a@b.c", errors.New("backend down"))}
	slot := &memSlot{}
	s := newTestSessionStore(authRepo, slot)

	_, err := s.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.True(t, slot.ok, "identity persisted")
}

func TestSessionStore_LoginToleratesPersistFailure(t *testing.T) {
	s := newTestSessionStore(&fakeAuthRepo{}, &memSlot{saveErr: errors.New("read-only")})

	_, err := s.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestSessionStore_LoginCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestSessionStore(&fakeAuthRepo{createErr: context.Canceled}, &memSlot{})

	_, err := s.Login(ctx, "a@b.c", "secret")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, StateAuthenticated, s.State())
}

func TestSessionStore_Register(t *testing.T) {
	t.Run("requires name", func(t *testing.T) {
		authRepo := &fakeAuthRepo{}
		s := newTestSessionStore(authRepo, &memSlot{})
		_, err := s.Register(context.Background(), Profile{Email: "a@b.c", Password: "secret"})
		require.ErrorIs(t, err, apperror.ErrValidation)
		assert.Empty(t, authRepo.created)
	})

	t.Run("uses the given name and photo", func(t *testing.T) {
		s := newTestSessionStore(&fakeAuthRepo{}, &memSlot{})
		session, err := s.Register(context.Background(), Profile{
			Name: "Ada Lovelace", Email: "ada@example.com", Password: "secret", PhotoURL: "https://img/ada.png",
		})
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", session.DisplayName)
		assert.Equal(t, "https://img/ada.png", session.PhotoURL)
	})
}

func TestSessionStore_LogoutAlwaysAnonymous(t *testing.T) {
	tests := []struct {
		name     string
		authRepo *fakeAuthRepo
		slot     *memSlot
	}{
		{"server ok", &fakeAuthRepo{}, &memSlot{}},
		{"server fails", &fakeAuthRepo{endErr: errors.New("connection refused")}, &memSlot{}},
		{"slot fails", &fakeAuthRepo{}, &memSlot{clearErr: errors.New("locked")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSessionStore(tt.authRepo, tt.slot)
			_, err := s.Login(context.Background(), "a@b.c", "secret")
			require.NoError(t, err)

			s.Logout(context.Background())

			assert.Equal(t, StateAnonymous, s.State())
			_, ok := s.Current()
			assert.False(t, ok)
			assert.Equal(t, 1, tt.authRepo.ended)
			assert.Equal(t, 1, tt.slot.cleared)
		})
	}
}

func TestSessionStore_Subscribe(t *testing.T) {
	s := newTestSessionStore(&fakeAuthRepo{}, &memSlot{})
	var events []bool
	s.Subscribe(func(_ model.Session, ok bool) { events = append(events, ok) })

	_, err := s.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	s.Logout(context.Background())

	assert.Equal(t, []bool{true, false}, events)
}

type identifierFunc func(ctx context.Context) (*auth.Profile, error)

func (f identifierFunc) Identify(ctx context.Context) (*auth.Profile, error) { return f(ctx) }

func TestSessionStore_LoginWithProvider(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := newTestSessionStore(&fakeAuthRepo{}, &memSlot{})
		session, err := s.LoginWithProvider(context.Background(), identifierFunc(func(context.Context) (*auth.Profile, error) {
			return &auth.Profile{Email: "g@example.com", Name: "Grace", Picture: "https://img/g.png"}, nil
		}))
		require.NoError(t, err)
		assert.Equal(t, "Grace", session.DisplayName)
		assert.Equal(t, "https://img/g.png", session.PhotoURL)
		assert.Equal(t, StateAuthenticated, s.State())
	})

	codes := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"user closed the consent screen", &auth.ProviderError{Code: "access_denied"}, apperror.CodeCancelled},
		{"domain not authorized", &auth.ProviderError{Code: "redirect_uri_mismatch"}, apperror.CodeUnauthorizedDomain},
		{"other provider error", &auth.ProviderError{Code: "server_error"}, apperror.CodeProviderUnknown},
		{"transport error", errors.New("dial tcp: refused"), apperror.CodeProviderUnknown},
	}
	for _, tt := range codes {
		t.Run(tt.name, func(t *testing.T) {
			authRepo := &fakeAuthRepo{}
			s := newTestSessionStore(authRepo, &memSlot{})
			_, err := s.LoginWithProvider(context.Background(), identifierFunc(func(context.Context) (*auth.Profile, error) {
				return nil, tt.err
			}))

			require.ErrorIs(t, err, apperror.ErrProvider)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Empty(t, authRepo.created)
			assert.NotEqual(t, StateAuthenticated, s.State())
		})
	}

	t.Run("distinct messages", func(t *testing.T) {
		cancelled := apperror.UserMessage(providerError(&auth.ProviderError{Code: "access_denied"}))
		domain := apperror.UserMessage(providerError(&auth.ProviderError{Code: "unauthorized_client"}))
		assert.Equal(t, "Login was cancelled", cancelled)
		assert.NotEqual(t, cancelled, domain)
	})
}

type staticCookies map[string]string

func (c staticCookies) Cookie(name string) *http.Cookie {
	v, ok := c[name]
	if !ok {
		return nil
	}
	return &http.Cookie{Name: name, Value: v}
}

func TestSessionStore_ReadsCookieExpiry(t *testing.T) {
	tokens, err := auth.NewTokenService("cookie-test-secret-123")
	require.NoError(t, err)
	token, err := tokens.GenerateWithDuration("a@b.c", time.Hour)
	require.NoError(t, err)

	s := newTestSessionStore(&fakeAuthRepo{}, &memSlot{}, WithCookies(staticCookies{auth.SessionCookieName: token}))
	session, err := s.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)

	require.NotNil(t, session.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *session.ExpiresAt, time.Minute)
}

func TestSessionStore_AgainstBackend(t *testing.T) {
	st := newStack(t)
	st.login(t, "runner@example.com")

	session, ok := st.session.Current()
	require.True(t, ok)
	assert.NotNil(t, session.ExpiresAt, "expiry read from the backend cookie")
	assert.NotNil(t, st.client.Cookie(auth.SessionCookieName))

	st.session.Logout(context.Background())
	assert.Nil(t, st.client.Cookie(auth.SessionCookieName))
	assert.Equal(t, StateAnonymous, st.session.State())
}
