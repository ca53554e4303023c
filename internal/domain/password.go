package domain

import (
	"fmt"
	"strings"
)

const (
	minPasswordLength = 12
	maxPasswordLength = 128
)

// Password is a validated admin password. It deliberately has no String
// method; callers that need the raw secret use ExposeSecret so that
// accidental logging stays hard.
type Password struct {
	value string
}

// ParsePassword validates s: 12–128 characters after trimming.
func ParsePassword(s string) (Password, error) {
	candidate := strings.TrimSpace(s)
	if len(candidate) < minPasswordLength {
		return Password{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if len(candidate) > maxPasswordLength {
		return Password{}, fmt.Errorf("password must be at most %d characters", maxPasswordLength)
	}
	return Password{value: candidate}, nil
}

// ExposeSecret returns the raw password.
func (p Password) ExposeSecret() string { return p.value }
