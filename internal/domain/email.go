package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// RFC 5321 limits the full address to 254 usable characters.
const maxEmailLength = 254

var subscriberEmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// SubscriberEmail is a validated email address.
type SubscriberEmail struct {
	value string
}

// ParseSubscriberEmail validates s as an email address.
func ParseSubscriberEmail(s string) (SubscriberEmail, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return SubscriberEmail{}, fmt.Errorf("email is empty")
	}
	if len(trimmed) > maxEmailLength {
		return SubscriberEmail{}, fmt.Errorf("email exceeds %d characters", maxEmailLength)
	}
	if !subscriberEmailRegex.MatchString(trimmed) {
		return SubscriberEmail{}, fmt.Errorf("%q is not a valid email address", trimmed)
	}
	return SubscriberEmail{value: trimmed}, nil
}

// String returns the address.
func (e SubscriberEmail) String() string { return e.value }

// Domain returns the part after the @.
func (e SubscriberEmail) Domain() string {
	parts := strings.Split(e.value, "@")
	return strings.ToLower(parts[len(parts)-1])
}
