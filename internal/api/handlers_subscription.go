package api

import (
	"errors"
	"net/http"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/subscription"
)

// handleSubscribe signs up a subscriber from the public form. All valid
// submissions return 200 regardless of prior state so the response never
// reveals whether an address is subscribed.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "malformed form body")
		return
	}

	email, err := domain.ParseSubscriberEmail(r.PostFormValue("email"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	name, err := domain.ParseSubscriberName(r.PostFormValue("name"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := s.subscriptions.Subscribe(r.Context(), email, name); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Text(w, http.StatusOK, "")
}

// handleConfirm exercises a double-opt-in token. Malformed tokens are
// rejected before any database access; confirming twice succeeds both
// times.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	token, err := domain.ParseSubscriptionToken(r.URL.Query().Get("subscription_token"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := s.shortQueryCtx(r.Context())
	defer cancel()
	if err := s.subscriptions.ConfirmToken(ctx, token); err != nil {
		if errors.Is(err, subscription.ErrUnknownToken) {
			httputil.BadRequest(w, "unknown subscription token")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.Text(w, http.StatusOK, "Subscription confirmed. Welcome aboard!")
}
