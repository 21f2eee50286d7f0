// Package store holds the client's in-memory state: the signed-in session,
// the marathon views and the user's applications. Stores are built once by
// the composition root and passed to the UI layer:
//
//	SessionStore → {MarathonStore, ApplicationStore}
//
// Each store owns its views and is the only code that mutates them. Network
// calls run outside the store's lock; list responses are sequence-checked so
// a superseded request can never overwrite fresher state.
package store

import (
	"net/http"
	"time"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/metrics"
	"github.com/sakif/marathon-client/internal/model"
)

// Store names used as metric labels.
const (
	storeSession      = "session"
	storeMarathon     = "marathon"
	storeApplications = "application"
)

// SessionView is the part of SessionStore the entity stores depend on.
type SessionView interface {
	Current() (model.Session, bool)
	Subscribe(fn func(model.Session, bool))
}

var _ SessionView = (*SessionStore)(nil)

// CookieSource exposes the cookies the HTTP client holds for the backend.
type CookieSource interface {
	Cookie(name string) *http.Cookie
}

type options struct {
	metrics *metrics.Metrics
	now     func() time.Time
	cookies CookieSource
	owned   OwnedLister
}

// Option configures a store. Options that do not apply to a store are
// ignored by it.
type Option func(*options)

// WithMetrics reports operations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCookies lets the SessionStore read the backend session cookie.
func WithCookies(c CookieSource) Option {
	return func(o *options) { o.cookies = c }
}

// WithOwnedLister replaces the way MarathonStore fetches the owned view.
func WithOwnedLister(l OwnedLister) Option {
	return func(o *options) { o.owned = l }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// requireSession returns the current session or an ErrUnauthenticated error
// describing the action that needed it.
func requireSession(sv SessionView, action string) (model.Session, error) {
	s, ok := sv.Current()
	if !ok {
		return model.Session{}, apperror.Unauthenticated("You must be logged in to " + action)
	}
	return s, nil
}
