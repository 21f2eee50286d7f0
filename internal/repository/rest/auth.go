package rest

import (
	"context"
	"net/http"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/repository"
)

const (
	sessionPath = "/api/auth/jwt"
	logoutPath  = "/api/auth/logout"
)

// AuthRepository creates and ends the backend cookie session. The cookie
// itself lands in the client's jar.
type AuthRepository struct {
	api Caller
}

var _ repository.AuthRepository = (*AuthRepository)(nil)

func NewAuthRepository(api Caller) *AuthRepository {
	return &AuthRepository{api: api}
}

func (r *AuthRepository) CreateSession(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	if err := r.api.Do(ctx, sessionPath, writeOptions(http.MethodPost, body), nil); err != nil {
		return apperror.SessionEstablishment(email, err)
	}
	return nil
}

func (r *AuthRepository) EndSession(ctx context.Context) error {
	return r.api.Do(ctx, logoutPath, writeOptions(http.MethodPost, nil), nil)
}
