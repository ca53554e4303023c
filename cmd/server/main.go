// The newsletter server: HTTP API, delivery worker, and retention sweeper
// in one process. The three tasks share one database pool; if any of them
// stops, the process stops.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/newsletter/internal/api"
	"github.com/ignite/newsletter/internal/auth"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/delivery"
	"github.com/ignite/newsletter/internal/idempotency"
	"github.com/ignite/newsletter/internal/mailer"
	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/pkg/distlock"
	"github.com/ignite/newsletter/internal/pkg/httpretry"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/session"
	"github.com/ignite/newsletter/internal/subscription"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config", "error", err.Error())
		os.Exit(1)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("connect to postgres", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Error("connect to redis", "addr", cfg.Redis.Addr, "error", err.Error())
			os.Exit(1)
		}
	}

	// The worker gets a plain client: the queue owns the retry budget.
	// One-shot confirmation emails get the retrying client instead.
	workerMailer, err := buildMailer(cfg, nil)
	if err != nil {
		logger.Error("build worker mailer", "error", err.Error())
		os.Exit(1)
	}
	retryDoer := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Provider.Timeout()}, 3)
	transactionalMailer, err := buildMailer(cfg, retryDoer)
	if err != nil {
		logger.Error("build transactional mailer", "error", err.Error())
		os.Exit(1)
	}

	templates, err := mailer.NewTemplates()
	if err != nil {
		logger.Error("parse email templates", "error", err.Error())
		os.Exit(1)
	}

	subStore := subscription.NewStore(db)
	subService := subscription.NewService(db, subStore, transactionalMailer, templates, cfg.Server.BaseURL)
	sessions := session.NewStore(redisClient, cfg.Auth.SessionTTL())

	server := api.NewServer(cfg,
		subService,
		newsletter.NewStore(),
		idempotency.NewStore(db),
		sessions,
		auth.NewAuthenticator(db)).
		WithHealthChecks(map[string]func(context.Context) error{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})

	worker := delivery.NewWorker(db, workerMailer, cfg.Delivery)
	sweepLock := distlock.New(redisClient, "retention-sweep", time.Hour)
	sweeper := idempotency.NewSweeper(db, cfg.Retention.Age(), cfg.Retention.SweepInterval()).
		WithLock(sweepLock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMins) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildMailer(cfg *config.Config, doer httpretry.HTTPDoer) (mailer.Mailer, error) {
	switch cfg.Provider.Kind {
	case "ses":
		return mailer.NewSESMailer(
			cfg.Provider.SESAccessKey, cfg.Provider.SESSecretKey,
			cfg.Provider.SESRegion, cfg.Provider.FromEmail)
	case "http":
		return mailer.NewClient(doer,
			cfg.Provider.BaseURL, cfg.Provider.AuthToken,
			cfg.Provider.FromEmail, cfg.Provider.Timeout()), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}
