// Package auth holds the identity pieces around the backend cookie session:
// issuing and checking the session JWT (used by the fake backend), reading
// the advisory expiry out of a session cookie on the client, and OAuth2
// provider login.
//
// The backend keeps its session in an HttpOnly cookie named "token" holding
// an HS256 JWT whose subject is the user's email. The client never verifies
// that token; it only peeks at the expiry to annotate the local session.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie the backend stores its session token in.
const SessionCookieName = "token"

const (
	tokenIssuer     = "marathon-api"
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// TokenService signs and validates session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: DefaultTokenTTL}, nil
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TTL is the lifetime of tokens issued by Generate.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a session token for email with the default lifetime.
func (s *TokenService) Generate(email string) (string, error) {
	return s.GenerateWithDuration(email, s.ttl)
}

// GenerateWithDuration signs a session token with a custom lifetime.
func (s *TokenService) GenerateWithDuration(email string, d time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies a session token and returns the email it was issued for.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}

// TokenInfo is what the client can learn from a session token without the
// signing secret.
type TokenInfo struct {
	Subject   string
	ExpiresAt *time.Time
}

// InspectSessionToken decodes a session token WITHOUT verifying its
// signature. The result is advisory and must never gate access.
func InspectSessionToken(tokenStr string) (TokenInfo, error) {
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &c); err != nil {
		return TokenInfo{}, fmt.Errorf("auth: decoding session token: %w", err)
	}

	info := TokenInfo{Subject: c.Subject}
	if info.Subject == "" {
		info.Subject = c.Email
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		info.ExpiresAt = &exp
	}
	return info, nil
}
