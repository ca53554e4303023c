// Applies the SQL migrations in lexical order, each in its own
// transaction, and can seed the first admin account.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/ignite/newsletter/internal/auth"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	dir := flag.String("dir", "migrations", "directory with .sql migration files")
	adminUser := flag.String("admin-user", "", "seed an admin account with this username")
	adminPassword := flag.String("admin-password", "", "password for the seeded admin account")
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := applyMigrations(ctx, db, *dir); err != nil {
		logger.Error("apply migrations", "error", err.Error())
		os.Exit(1)
	}

	if *adminUser != "" {
		if err := seedAdmin(ctx, db, *adminUser, *adminPassword); err != nil {
			logger.Error("seed admin", "error", err.Error())
			os.Exit(1)
		}
	}
	logger.Info("migrations complete")
}

func applyMigrations(ctx context.Context, db *sql.DB, dir string) error {
	entries, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(entries)
	if len(entries) == 0 {
		return fmt.Errorf("no .sql files in %s", dir)
	}

	for _, path := range entries {
		sqlText, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sqlText)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logger.Info("applied migration", "file", filepath.Base(path))
	}
	return nil
}

func seedAdmin(ctx context.Context, db *sql.DB, username, rawPassword string) error {
	password, err := domain.ParsePassword(rawPassword)
	if err != nil {
		return fmt.Errorf("admin password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO admin_users (user_id, username, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash`,
		uuid.New(), username, hash)
	if err != nil {
		return fmt.Errorf("upsert admin user: %w", err)
	}
	logger.Info("admin account ready", "username", username)
	return nil
}
