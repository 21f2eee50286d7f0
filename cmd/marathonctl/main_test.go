package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/config"
	"github.com/sakif/marathon-client/internal/mockapi"
	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/repository/sqlite"
)

type harness struct {
	t   *testing.T
	cfg config.Config
	api *mockapi.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-long-enough-for-hmac")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	api := mockapi.New(tokens, logger)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	return &harness{
		t:   t,
		api: api,
		cfg: config.Config{
			APIBaseURL:    srv.URL,
			SessionDBPath: filepath.Join(t.TempDir(), "session.db"),
			LogLevel:      slog.LevelError,
		},
	}
}

// exec runs one CLI invocation, as a separate process would.
func (h *harness) exec(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	code := run(context.Background(), h.cfg, logger, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) mustExec(args ...string) string {
	h.t.Helper()
	code, out, errOut := h.exec(args...)
	require.Equal(h.t, 0, code, "stderr: %s", errOut)
	return out
}

func openMarathon(owner string) model.Marathon {
	now := time.Now()
	day := func(offset int) model.Date {
		t := now.AddDate(0, 0, offset)
		return model.NewDate(t.Year(), t.Month(), t.Day())
	}
	return model.Marathon{
		Title:                 "Dhaka City Marathon",
		Location:              "Dhaka, Bangladesh",
		StartRegistrationDate: day(-3),
		EndRegistrationDate:   day(7),
		MarathonStartDate:     day(20),
		RunningDistance:       model.Distance25K,
		Email:                 owner,
	}
}

func TestRun_Usage(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.exec()
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "usage: marathonctl")

	code, _, errOut = h.exec("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "frobnicate"`)
}

func TestRun_SessionSurvivesInvocations(t *testing.T) {
	h := newHarness(t)

	out := h.mustExec("whoami")
	assert.Contains(t, out, `"anonymous"`)

	out = h.mustExec("login", "-email", "ada@example.com", "-password", "secret")
	var session model.Session
	require.NoError(t, json.Unmarshal([]byte(out), &session))
	assert.Equal(t, "ada@example.com", session.Email)
	assert.Equal(t, "ada", session.DisplayName)

	out = h.mustExec("whoami")
	assert.Contains(t, out, "ada@example.com")

	// A gated listing only succeeds if the backend cookie was carried over.
	seeded := h.api.SeedMarathons(openMarathon("organizer@example.com"))
	out = h.mustExec("marathons")
	var list []model.Marathon
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, seeded[0].ID, list[0].ID)

	h.mustExec("logout")
	out = h.mustExec("whoami")
	assert.Contains(t, out, `"anonymous"`)

	code, _, errOut := h.exec("marathons")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "You must be logged in")
}

func (h *harness) savedCookie() (string, bool) {
	h.t.Helper()
	db, err := sqlite.New(h.cfg.SessionDBPath)
	require.NoError(h.t, err)
	defer db.Close()
	value, ok, err := db.Slot(cookieSlotKey).Load(context.Background())
	require.NoError(h.t, err)
	return value, ok
}

func TestRun_FailedServerLogoutDropsSavedCookie(t *testing.T) {
	h := newHarness(t)
	h.mustExec("login", "-email", "ada@example.com", "-password", "secret")
	_, ok := h.savedCookie()
	require.True(t, ok)

	h.api.FailNext("/api/auth/logout", http.StatusInternalServerError, "")
	out := h.mustExec("logout")
	assert.Contains(t, out, `"anonymous"`)

	_, ok = h.savedCookie()
	assert.False(t, ok)
}

func TestClose_SavesCookieAfterCancellation(t *testing.T) {
	h := newHarness(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), h.cfg, logger, io.Discard, io.Discard)
	require.NoError(t, err)
	_, err = a.session.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Close(ctx)

	value, ok := h.savedCookie()
	require.True(t, ok)
	assert.NotEmpty(t, value)
}

func TestRun_OrganizerAndRunnerFlow(t *testing.T) {
	h := newHarness(t)

	h.mustExec("login", "-email", "org@example.com", "-password", "secret")
	now := time.Now()
	date := func(offset int) string { return now.AddDate(0, 0, offset).Format(model.DateLayout) }
	out := h.mustExec("create",
		"-title", "River Run",
		"-location", "Sylhet",
		"-start-reg", date(-1),
		"-end-reg", date(5),
		"-start", date(15),
		"-distance", "10K",
	)
	var res model.WriteResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.InsertedID)
	marathonID := res.InsertedID

	out = h.mustExec("update", "-id", marathonID, "-title", "River Run 2")
	assert.Contains(t, out, `"modifiedCount": 1`)
	m, ok := h.api.Marathon(marathonID)
	require.True(t, ok)
	assert.Equal(t, "River Run 2", m.Title)
	assert.Equal(t, "Sylhet", m.Location)

	code, _, errOut := h.exec("apply", "-marathon", marathonID, "-first", "Org", "-last", "Anizer", "-contact", "123")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "your own marathon")

	h.mustExec("logout")
	h.mustExec("login", "-email", "runner@example.com", "-password", "secret")

	out = h.mustExec("apply", "-marathon", marathonID, "-first", "Ada", "-last", "Lovelace", "-contact", "+8801700000000")
	var application model.Application
	require.NoError(t, json.Unmarshal([]byte(out), &application))
	assert.NotEmpty(t, application.ID)
	assert.Equal(t, "River Run 2", application.MarathonTitle)

	m, _ = h.api.Marathon(marathonID)
	assert.Equal(t, 1, m.TotalRegistration)

	out = h.mustExec("applications", "-filter", "lovelace")
	var apps []model.Application
	require.NoError(t, json.Unmarshal([]byte(out), &apps))
	require.Len(t, apps, 1)

	h.mustExec("application-update", "-id", application.ID, "-info", "vegetarian")
	assert.Equal(t, "vegetarian", h.api.Applications("runner@example.com")[0].AdditionalInfo)

	code, _, errOut = h.exec("delete", "-id", marathonID)
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, errOut)
	_, ok = h.api.Marathon(marathonID)
	assert.True(t, ok, "a runner cannot delete the organizer's marathon")

	h.mustExec("application-delete", "-id", application.ID)
	assert.Empty(t, h.api.Applications("runner@example.com"))
}

func TestRun_FeaturedNeedsNoSession(t *testing.T) {
	h := newHarness(t)
	h.api.SeedMarathons(openMarathon("organizer@example.com"))

	out := h.mustExec("featured", "-location", "dhaka")
	var list []model.Marathon
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 1)
}

func TestRun_MissingRequiredFlag(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.exec("get")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "missing required flag -id")
}

func TestRun_ProviderNotConfigured(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.exec("oauth-url")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not configured")
}
