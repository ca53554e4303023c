// Standalone delivery worker. Runs the same queue loop as cmd/server and
// can be scaled out horizontally; FOR UPDATE SKIP LOCKED keeps concurrent
// workers from double-sending.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/delivery"
	"github.com/ignite/newsletter/internal/idempotency"
	"github.com/ignite/newsletter/internal/mailer"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("open postgres", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMins) * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		logger.Error("connect to postgres", "error", err.Error())
		os.Exit(1)
	}

	m, err := buildMailer(cfg)
	if err != nil {
		logger.Error("build mailer", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := delivery.NewWorker(db, m, cfg.Delivery)
	sweeper := idempotency.NewSweeper(db, cfg.Retention.Age(), cfg.Retention.SweepInterval())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", "error", err.Error())
		os.Exit(1)
	}
}

func buildMailer(cfg *config.Config) (mailer.Mailer, error) {
	switch cfg.Provider.Kind {
	case "ses":
		return mailer.NewSESMailer(
			cfg.Provider.SESAccessKey, cfg.Provider.SESSecretKey,
			cfg.Provider.SESRegion, cfg.Provider.FromEmail)
	case "http":
		return mailer.NewClient(nil,
			cfg.Provider.BaseURL, cfg.Provider.AuthToken,
			cfg.Provider.FromEmail, cfg.Provider.Timeout()), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}
