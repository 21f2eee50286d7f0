package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/marathon-client/internal/apperror"
)

// fakeProvider serves a token endpoint and a userinfo endpoint.
func fakeProvider(t *testing.T) (*OAuthProvider, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized_client", "error_description": "origin not allowed"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Profile{Email: "ada@example.com", Name: "Ada Lovelace", Picture: "https://img/ada.png"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewOAuthProvider(ProviderConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		UserInfoURL:  srv.URL + "/userinfo",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	})
	return p, srv
}

func TestAuthURL(t *testing.T) {
	p := NewOAuthProvider(ProviderConfig{ClientID: "client", RedirectURL: "http://localhost/cb"})

	u, err := url.Parse(p.AuthURL("state-1"))
	require.NoError(t, err)

	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
}

func TestExchange_Success(t *testing.T) {
	p, _ := fakeProvider(t)

	profile, err := CodeGrant{
		Provider:      p,
		Callback:      Callback{Code: "good-code", State: "s"},
		ExpectedState: "s",
	}.Identify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", profile.Email)
	assert.Equal(t, "Ada Lovelace", profile.Name)
}

func TestExchange_ProviderErrors(t *testing.T) {
	p, _ := fakeProvider(t)

	tests := []struct {
		name     string
		cb       Callback
		expected string
		wantCode string
	}{
		{"user denied consent", Callback{Error: "access_denied"}, "", apperror.CodeCancelled},
		{"token endpoint rejects client", Callback{Code: "bad-code"}, "", apperror.CodeUnauthorizedDomain},
		{"state mismatch", Callback{Code: "good-code", State: "x"}, "y", apperror.CodeProviderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Exchange(context.Background(), tt.cb, tt.expected)
			var pe *ProviderError
			require.True(t, errors.As(err, &pe), "want ProviderError, got %v", err)
			assert.Equal(t, tt.wantCode, ClassifyProviderCode(pe.Code))
		})
	}
}

func TestParseCallback(t *testing.T) {
	cb, err := ParseCallback("http://localhost:5173/auth/callback?code=abc&state=s1")
	require.NoError(t, err)
	assert.Equal(t, Callback{Code: "abc", State: "s1"}, cb)

	cb, err = ParseCallback("error=access_denied&error_description=nope")
	require.NoError(t, err)
	assert.Equal(t, "access_denied", cb.Error)
	assert.Equal(t, "nope", cb.ErrorDescription)
}
