package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/marathon-client/internal/apiclient"
	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/config"
	"github.com/sakif/marathon-client/internal/metrics"
	"github.com/sakif/marathon-client/internal/repository/rest"
	"github.com/sakif/marathon-client/internal/repository/sqlite"
	"github.com/sakif/marathon-client/internal/store"
)

// Slots besides the session identity. The backend cookie is kept so the
// server session survives between invocations, as it would in a browser.
const (
	cookieSlotKey     = "sessionCookie"
	oauthStateSlotKey = "oauthState"
)

// app is the composition root: every store and its dependencies, built in
// dependency order.
type app struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	db           *sqlite.DB
	client       *apiclient.Client
	session      *store.SessionStore
	marathons    *store.MarathonStore
	applications *store.ApplicationStore
	stats        *rest.StatsRepository
	provider     *auth.OAuthProvider
	out          io.Writer
	errOut       io.Writer
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, out, errOut io.Writer) (*app, error) {
	m := metrics.New()

	db, err := sqlite.New(cfg.SessionDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}

	client, err := apiclient.New(cfg.APIBaseURL, logger,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithMetrics(m),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		logger:  logger,
		metrics: m,
		db:      db,
		client:  client,
		stats:   rest.NewStatsRepository(client, logger),
		out:     out,
		errOut:  errOut,
	}
	a.resumeCookie(ctx)

	opts := []store.Option{store.WithMetrics(m), store.WithCookies(client)}
	a.session = store.NewSessionStore(rest.NewAuthRepository(client), db.SessionSlot(), logger, opts...)
	a.marathons = store.NewMarathonStore(rest.NewMarathonRepository(client), a.session, logger, opts...)
	a.applications = store.NewApplicationStore(rest.NewApplicationRepository(client), a.session, logger, opts...)
	a.session.Restore(ctx)

	if cfg.ProviderConfigured() {
		a.provider = auth.NewOAuthProvider(auth.ProviderConfig{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			UserInfoURL:  cfg.OAuthUserInfoURL,
		})
	}
	return a, nil
}

// Close saves the backend cookie while signed in, clears it otherwise, and
// releases the database. It still runs after the command's context was
// cancelled.
func (a *app) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	slot := a.db.Slot(cookieSlotKey)
	_, signedIn := a.session.Current()
	if c := a.client.Cookie(auth.SessionCookieName); signedIn && c != nil && c.Value != "" {
		if err := slot.Save(ctx, c.Value); err != nil {
			a.logger.Warn("could not save session cookie", slog.String("error", err.Error()))
		}
	} else if err := slot.Clear(ctx); err != nil {
		a.logger.Warn("could not clear session cookie", slog.String("error", err.Error()))
	}

	if snapshot, err := a.metrics.Snapshot(); err == nil {
		attrs := make([]any, 0, len(snapshot))
		for k, v := range snapshot {
			attrs = append(attrs, slog.Float64(k, v))
		}
		a.logger.Debug("client metrics", attrs...)
	}

	if err := a.db.Close(); err != nil {
		a.logger.Warn("could not close session database", slog.String("error", err.Error()))
	}
}

func (a *app) resumeCookie(ctx context.Context) {
	value, ok, err := a.db.Slot(cookieSlotKey).Load(ctx)
	if err != nil {
		a.logger.Warn("could not read saved session cookie", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}
	a.client.SetCookie(&http.Cookie{Name: auth.SessionCookieName, Value: value, Path: "/"})
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
