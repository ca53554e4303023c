package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ignite/newsletter/internal/auth"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/idempotency"
	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

const flashIssueAccepted = "The newsletter issue has been accepted - emails will go out shortly"

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	flash, err := s.sessions.PopFlash(r.Context(), sessionIDFrom(r.Context()))
	if err != nil {
		logger.Warn("pop login flash", "error", err.Error())
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPage.Execute(w, pageData{Flash: flash}); err != nil {
		logger.Error("render login page", "error", err.Error())
	}
}

// handleLogin validates credentials and rotates the session id on success.
// Any failure, unknown user or wrong password alike, bounces back to the
// form with the same flash.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFrom(r.Context())

	fail := func() {
		if err := s.sessions.SetFlash(r.Context(), sessionID, "Authentication failed"); err != nil {
			logger.Warn("set login flash", "error", err.Error())
		}
		httputil.SeeOther(w, "/login")
	}

	if err := r.ParseForm(); err != nil {
		fail()
		return
	}
	username := r.PostFormValue("username")
	password, err := domain.ParsePassword(r.PostFormValue("password"))
	if err != nil {
		fail()
		return
	}

	userID, err := s.authenticator.ValidateCredentials(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			fail()
			return
		}
		httputil.InternalError(w, err)
		return
	}

	// Fresh id on privilege change so a pre-login cookie can't be replayed.
	freshID, err := s.sessions.Create(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if err := s.sessions.Destroy(r.Context(), sessionID); err != nil {
		logger.Warn("destroy pre-login session", "error", err.Error())
	}
	if err := s.sessions.BindUser(r.Context(), freshID, userID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	s.setSessionCookie(w, freshID)

	logger.Info("admin logged in", "user_id", userID.String())
	httputil.SeeOther(w, "/admin/newsletters")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFrom(r.Context())
	if err := s.sessions.Destroy(r.Context(), sessionID); err != nil {
		httputil.InternalError(w, err)
		return
	}

	freshID, err := s.sessions.Create(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	s.setSessionCookie(w, freshID)
	if err := s.sessions.SetFlash(r.Context(), freshID, "You have successfully logged out."); err != nil {
		logger.Warn("set logout flash", "error", err.Error())
	}
	httputil.SeeOther(w, "/login")
}

// handleNewsletterForm serves the publish form. The idempotency key is
// minted here so a double submit of the same form carries the same key.
func (s *Server) handleNewsletterForm(w http.ResponseWriter, r *http.Request) {
	flash, err := s.sessions.PopFlash(r.Context(), sessionIDFrom(r.Context()))
	if err != nil {
		logger.Warn("pop admin flash", "error", err.Error())
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = newsletterPage.Execute(w, pageData{
		Flash:          flash,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		logger.Error("render newsletter page", "error", err.Error())
	}
}

// handlePublish records the issue and fans out delivery tasks, all under
// the idempotency reservation. A retry with the same key replays the
// saved redirect byte for byte and enqueues nothing.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := sessionIDFrom(r.Context())

	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "malformed form body")
		return
	}
	key, err := domain.ParseIdempotencyKey(r.PostFormValue("idempotency_key"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	issue := newsletter.Issue{
		Title:       r.PostFormValue("title"),
		TextContent: r.PostFormValue("text"),
		HTMLContent: r.PostFormValue("html"),
	}
	if issue.Title == "" || issue.TextContent == "" || issue.HTMLContent == "" {
		httputil.BadRequest(w, "title, text and html are all required")
		return
	}

	tx, saved, err := s.idempotency.TryBegin(r.Context(), userID, key)
	if err != nil {
		if errors.Is(err, idempotency.ErrInFlight) {
			httputil.Text(w, http.StatusInternalServerError,
				"this request is already being processed - retry shortly")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	if saved != nil {
		s.flashAccepted(r, sessionID)
		writeSavedResponse(w, saved)
		return
	}

	if _, err := s.newsletters.Publish(r.Context(), tx, issue); err != nil {
		tx.Rollback()
		httputil.InternalError(w, err)
		return
	}

	s.flashAccepted(r, sessionID)
	resp := idempotency.SavedResponse{
		StatusCode: http.StatusSeeOther,
		Headers:    []idempotency.HeaderPair{{Name: "Location", Value: []byte("/admin/newsletters")}},
	}
	if err := s.idempotency.SaveResponse(r.Context(), tx, userID, key, resp); err != nil {
		httputil.InternalError(w, err)
		return
	}
	writeSavedResponse(w, &resp)
}

func (s *Server) flashAccepted(r *http.Request, sessionID string) {
	if err := s.sessions.SetFlash(r.Context(), sessionID, flashIssueAccepted); err != nil {
		logger.Warn("set publish flash", "error", err.Error())
	}
}

// writeSavedResponse emits a saved idempotency response. First execution
// and replay go through the same path so the two are byte-identical.
func writeSavedResponse(w http.ResponseWriter, resp *idempotency.SavedResponse) {
	// Add, not Set: a saved response may carry the same name twice
	// (Set-Cookie) and the replay must keep every occurrence.
	for _, h := range resp.Headers {
		w.Header().Add(h.Name, string(h.Value))
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}
