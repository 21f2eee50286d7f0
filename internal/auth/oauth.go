package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sakif/marathon-client/internal/apperror"
)

// Profile is the identity a provider vouches for.
type Profile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Identifier yields the identity of the user signing in with a provider.
type Identifier interface {
	Identify(ctx context.Context) (*Profile, error)
}

// ProviderError is an error reported by the identity provider, carrying its
// OAuth error code (e.g. "access_denied").
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("auth: provider error %s: %s", e.Code, e.Description)
	}
	return "auth: provider error " + e.Code
}

// ClassifyProviderCode maps an OAuth error code onto the apperror provider
// codes shown to the user.
func ClassifyProviderCode(code string) string {
	switch code {
	case "access_denied", "user_cancelled", "popup_closed_by_user", "consent_required":
		return apperror.CodeCancelled
	case "unauthorized_client", "redirect_uri_mismatch", "origin_mismatch", "unauthorized_domain":
		return apperror.CodeUnauthorizedDomain
	default:
		return apperror.CodeProviderUnknown
	}
}

// ProviderConfig configures an OAuthProvider. Endpoint defaults to Google.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	UserInfoURL  string
	Endpoint     oauth2.Endpoint
	Scopes       []string
}

// OAuthProvider wraps golang.org/x/oauth2 for the authorization code flow.
type OAuthProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewOAuthProvider(cfg ProviderConfig) *OAuthProvider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = endpoints.Google
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

// AuthURL returns the URL the user must visit to sign in.
func (p *OAuthProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Callback is the query of the provider's redirect back to the app.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback extracts a Callback from the redirect URL (or its query).
func ParseCallback(raw string) (Callback, error) {
	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return Callback{}, fmt.Errorf("auth: parsing callback: %w", err)
	}
	return Callback{
		Code:             values.Get("code"),
		State:            values.Get("state"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
	}, nil
}

// Exchange completes the flow: the callback code is traded for a token, which
// is then used to fetch the user's profile.
func (p *OAuthProvider) Exchange(ctx context.Context, cb Callback, expectedState string) (*Profile, error) {
	if cb.Error != "" {
		return nil, &ProviderError{Code: cb.Error, Description: cb.ErrorDescription}
	}
	if expectedState != "" && cb.State != expectedState {
		return nil, &ProviderError{Code: "state_mismatch", Description: "callback state does not match"}
	}
	if cb.Code == "" {
		return nil, &ProviderError{Code: "invalid_request", Description: "callback carries no code"}
	}

	token, err := p.config.Exchange(ctx, cb.Code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode != "" {
			return nil, &ProviderError{Code: re.ErrorCode, Description: re.ErrorDescription}
		}
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	client := p.config.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: userinfo endpoint returned status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("auth: decoding userinfo response: %w", err)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("auth: provider returned a profile without email")
	}
	return &profile, nil
}

// CodeGrant is an Identifier for a completed redirect: it exchanges the
// callback against the provider.
type CodeGrant struct {
	Provider      *OAuthProvider
	Callback      Callback
	ExpectedState string
}

func (g CodeGrant) Identify(ctx context.Context) (*Profile, error) {
	return g.Provider.Exchange(ctx, g.Callback, g.ExpectedState)
}
