// Package api exposes the HTTP surface: public subscription endpoints,
// the admin login flow, and the authenticated publish endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/newsletter/internal/auth"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/idempotency"
	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/session"
	"github.com/ignite/newsletter/internal/subscription"
)

// Server holds the handler dependencies.
type Server struct {
	cfg           *config.Config
	subscriptions *subscription.Service
	newsletters   *newsletter.Store
	idempotency   *idempotency.Store
	sessions      *session.Store
	authenticator *auth.Authenticator
	healthChecks  map[string]func(context.Context) error
}

func NewServer(
	cfg *config.Config,
	subscriptions *subscription.Service,
	newsletters *newsletter.Store,
	idem *idempotency.Store,
	sessions *session.Store,
	authenticator *auth.Authenticator,
) *Server {
	return &Server{
		cfg:           cfg,
		subscriptions: subscriptions,
		newsletters:   newsletters,
		idempotency:   idem,
		sessions:      sessions,
		authenticator: authenticator,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(s.withSession)

	r.Get("/health", s.handleHealth)

	r.Post("/subscriptions", s.handleSubscribe)
	r.Get("/subscriptions/confirm", s.handleConfirm)

	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLogin)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/newsletters", s.handleNewsletterForm)
		r.Post("/newsletters", s.handlePublish)
		r.Post("/logout", s.handleLogout)
	})

	return r
}

// WithHealthChecks registers named dependency probes (postgres, redis)
// reported by /health.
func (s *Server) WithHealthChecks(checks map[string]func(context.Context) error) *Server {
	s.healthChecks = checks
	return s
}

// shortQueryCtx caps control-plane database work (dependency probes,
// token lookups) with the configured acquire budget.
func (s *Server) shortQueryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.Database.AcquireTimeout()
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.shortQueryCtx(r.Context())
	defer cancel()

	status := http.StatusOK
	deps := map[string]string{}
	for name, check := range s.healthChecks {
		if err := check(ctx); err != nil {
			logger.Warn("health check failed", "dependency", name, "error", err.Error())
			deps[name] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}

	body := map[string]any{"status": "ok", "dependencies": deps}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	httputil.JSON(w, status, body)
}
