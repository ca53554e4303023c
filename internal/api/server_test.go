package api

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignite/newsletter/internal/auth"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/idempotency"
	"github.com/ignite/newsletter/internal/mailer"
	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/session"
	"github.com/ignite/newsletter/internal/subscription"
)

type recordingMailer struct {
	sent []string // subjects
}

func (m *recordingMailer) Send(_ context.Context, _ domain.SubscriberEmail, subject, _, _ string) error {
	m.sent = append(m.sent, subject)
	return nil
}

type testApp struct {
	server *httptest.Server
	client *http.Client
	mock   sqlmock.Sqlmock
	mailer *recordingMailer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{}
	cfg.Auth.CookieName = "newsletter_session"
	cfg.Auth.SessionTTLHours = 1

	rm := &recordingMailer{}
	tpls, err := mailer.NewTemplates()
	require.NoError(t, err)

	subStore := subscription.NewStore(db)
	subService := subscription.NewService(db, subStore, rm, tpls, "http://localhost:8080")
	sessions := session.NewStore(redisClient, time.Hour)

	srv := NewServer(cfg,
		subService,
		newsletter.NewStore(),
		idempotency.NewStore(db),
		sessions,
		auth.NewAuthenticator(db))

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testApp{server: ts, client: client, mock: mock, mailer: rm}
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := a.client.Post(a.server.URL+path, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	return resp
}

func (a *testApp) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := a.client.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// login seeds the auth query mock and performs the form login.
func (a *testApp) login(t *testing.T) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("everythinghastostartsomewhere"), bcrypt.MinCost)
	require.NoError(t, err)
	a.mock.ExpectQuery("FROM admin_users").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "password_hash"}).
			AddRow(uuid.New(), hash))

	resp := a.postForm(t, "/login", url.Values{
		"username": {"admin"},
		"password": {"everythinghastostartsomewhere"},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin/newsletters", resp.Header.Get("Location"))
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	resp := app.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), `"ok"`)
}

func TestSubscribeRejectsInvalidInputWithoutDBWrite(t *testing.T) {
	app := newTestApp(t)

	cases := []url.Values{
		{"name": {"Jane"}, "email": {"definitely-not-an-email"}},
		{"name": {""}, "email": {"jane@example.com"}},
		{"name": {"Jane<script>"}, "email": {"jane@example.com"}},
	}
	for _, form := range cases {
		resp := app.postForm(t, "/subscriptions", form)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
	assert.NoError(t, app.mock.ExpectationsWereMet(), "validation failures must not touch the database")
}

func TestSubscribeHappyPath(t *testing.T) {
	app := newTestApp(t)

	app.mock.ExpectBegin()
	app.mock.ExpectQuery("SELECT id, email, name, subscribed_at, status").
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "subscribed_at", "status"}))
	app.mock.ExpectExec("INSERT INTO subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectExec("INSERT INTO subscription_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectCommit()

	resp := app.postForm(t, "/subscriptions", url.Values{
		"name": {"Jane"}, "email": {"jane@example.com"},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Welcome!"}, app.mailer.sent)
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestConfirmRejectsMalformedTokenWithoutDBRead(t *testing.T) {
	app := newTestApp(t)

	for _, token := range []string{"", "too-short", strings.Repeat("a", 26), "abcdefghijklmnopqrstuvwx!"} {
		resp := app.get(t, "/subscriptions/confirm?subscription_token="+url.QueryEscape(token))
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "token %q", token)
	}
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestConfirmHappyPath(t *testing.T) {
	app := newTestApp(t)
	subscriberID := uuid.New()
	token := strings.Repeat("a", 25)

	app.mock.ExpectQuery("SELECT subscriber_id").
		WithArgs(token).
		WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}).AddRow(subscriberID))
	app.mock.ExpectExec("UPDATE subscriptions SET status").
		WithArgs(subscription.StatusConfirmed, subscriberID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp := app.get(t, "/subscriptions/confirm?subscription_token="+token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "confirmed")
	assert.NoError(t, app.mock.ExpectationsWereMet())
}

func TestAdminRequiresSession(t *testing.T) {
	app := newTestApp(t)

	resp := app.get(t, "/admin/newsletters")
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	// the bounce leaves an explanatory flash on the login page
	resp = app.get(t, "/login")
	assert.Contains(t, body(t, resp), "must be logged in")
}

func TestLoginFailureFlashesAndRedirects(t *testing.T) {
	app := newTestApp(t)

	app.mock.ExpectQuery("FROM admin_users").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "password_hash"}))

	resp := app.postForm(t, "/login", url.Values{
		"username": {"admin"},
		"password": {"wrong-but-long-enough"},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	resp = app.get(t, "/login")
	page := body(t, resp)
	assert.Contains(t, page, "Authentication failed")

	// flash is one-shot
	resp = app.get(t, "/login")
	assert.NotContains(t, body(t, resp), "Authentication failed")
}

func TestPublishFlow(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	// first submission: reservation, issue insert, fan-out, saved response
	app.mock.ExpectBegin()
	app.mock.ExpectExec("INSERT INTO idempotency").
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectExec("INSERT INTO newsletter_issues").
		WithArgs(sqlmock.AnyArg(), "TITLE", "content", "<p>content</p>").
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectExec("INSERT INTO issue_delivery_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectExec("UPDATE idempotency").
		WillReturnResult(sqlmock.NewResult(0, 1))
	app.mock.ExpectCommit()

	key := uuid.NewString()
	form := url.Values{
		"title":           {"TITLE"},
		"text":            {"content"},
		"html":            {"<p>content</p>"},
		"idempotency_key": {key},
	}
	resp := app.postForm(t, "/admin/newsletters", form)
	firstBody := body(t, resp)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin/newsletters", resp.Header.Get("Location"))

	// the admin page shows the success flash exactly once
	resp = app.get(t, "/admin/newsletters")
	page := body(t, resp)
	assert.Contains(t, page, flashIssueAccepted)

	// retry with the same key replays the saved redirect byte for byte
	app.mock.ExpectBegin()
	app.mock.ExpectExec("INSERT INTO idempotency").
		WillReturnResult(sqlmock.NewResult(0, 0))
	app.mock.ExpectRollback()
	app.mock.ExpectQuery("SELECT response_status_code").
		WillReturnRows(sqlmock.NewRows(
			[]string{"response_status_code", "names", "values", "response_body"}).
			AddRow(303, `{Location}`, `{"\\x2f61646d696e2f6e6577736c657474657273"}`, []byte{}))

	resp = app.postForm(t, "/admin/newsletters", form)
	replayBody := body(t, resp)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/newsletters", resp.Header.Get("Location"))
	assert.Equal(t, firstBody, replayBody)
}

func TestPublishRejectsMissingFieldsWithoutDBWrite(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	cases := []url.Values{
		{"text": {"content"}, "html": {"<p>content</p>"}},
		{"title": {"TITLE"}, "html": {"<p>content</p>"}},
		{"title": {"TITLE"}, "text": {"content"}},
	}
	for _, form := range cases {
		form.Set("idempotency_key", uuid.NewString())
		resp := app.postForm(t, "/admin/newsletters", form)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "form %v", form)
	}
	assert.NoError(t, app.mock.ExpectationsWereMet(),
		"incomplete submissions must not reserve a key or insert an issue")
}

func TestWriteSavedResponsePreservesDuplicateHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSavedResponse(rec, &idempotency.SavedResponse{
		StatusCode: http.StatusSeeOther,
		Headers: []idempotency.HeaderPair{
			{Name: "Set-Cookie", Value: []byte("a=1")},
			{Name: "Set-Cookie", Value: []byte("b=2")},
			{Name: "Location", Value: []byte("/admin/newsletters")},
		},
	})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []string{"a=1", "b=2"}, rec.Result().Header.Values("Set-Cookie"))
	assert.Equal(t, "/admin/newsletters", rec.Header().Get("Location"))
}

func TestHealthProbesCarryQueryDeadline(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.AcquireTimeoutSeconds = 1

	var deadline time.Time
	var ok bool
	srv := NewServer(cfg, nil, nil, nil, nil, nil).
		WithHealthChecks(map[string]func(context.Context) error{
			"postgres": func(ctx context.Context) error {
				deadline, ok = ctx.Deadline()
				return nil
			},
		})

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok, "probe context has no deadline")
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
}

func TestPublishRejectsBadIdempotencyKey(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	resp := app.postForm(t, "/admin/newsletters", url.Values{
		"title":           {"TITLE"},
		"idempotency_key": {strings.Repeat("x", 51)},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublishInFlightDuplicate(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	app.mock.ExpectBegin()
	app.mock.ExpectExec("INSERT INTO idempotency").
		WillReturnResult(sqlmock.NewResult(0, 0))
	app.mock.ExpectRollback()
	app.mock.ExpectQuery("SELECT response_status_code").
		WillReturnRows(sqlmock.NewRows(
			[]string{"response_status_code", "names", "values", "response_body"}).
			AddRow(nil, nil, nil, nil))

	resp := app.postForm(t, "/admin/newsletters", url.Values{
		"title":           {"TITLE"},
		"idempotency_key": {uuid.NewString()},
	})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body(t, resp), "retry shortly")
}

func TestNewsletterFormPreloadsIdempotencyKey(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	resp := app.get(t, "/admin/newsletters")
	page := body(t, resp)
	assert.Contains(t, page, `name="idempotency_key"`)
	assert.Contains(t, page, `name="title"`)
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	resp := app.postForm(t, "/admin/logout", url.Values{})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	resp = app.get(t, "/login")
	assert.Contains(t, body(t, resp), "successfully logged out")

	// the old session no longer opens the admin area
	resp = app.get(t, "/admin/newsletters")
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}
