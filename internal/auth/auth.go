// Package auth validates admin credentials against the admin_users table.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords
// so login failures are indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid username or password")

// dummyHash is compared against when the username does not exist, keeping
// login latency independent of username validity.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Authenticator checks admin credentials.
type Authenticator struct {
	db *sql.DB
}

func NewAuthenticator(db *sql.DB) *Authenticator {
	return &Authenticator{db: db}
}

// ValidateCredentials returns the admin's user id when the username and
// password match a stored account, ErrInvalidCredentials otherwise.
func (a *Authenticator) ValidateCredentials(ctx context.Context, username string, password domain.Password) (uuid.UUID, error) {
	var userID uuid.UUID
	var passwordHash []byte

	err := a.db.QueryRowContext(ctx, `
		SELECT user_id, password_hash
		FROM admin_users
		WHERE username = $1`,
		username).Scan(&userID, &passwordHash)
	if err == sql.ErrNoRows {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password.ExposeSecret()))
		return uuid.Nil, ErrInvalidCredentials
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load admin user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(passwordHash, []byte(password.ExposeSecret())); err != nil {
		logger.Warn("failed admin login attempt", "username", username)
		return uuid.Nil, ErrInvalidCredentials
	}
	return userID, nil
}

// HashPassword produces a bcrypt hash suitable for the admin_users table.
func HashPassword(password domain.Password) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password.ExposeSecret()), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
