package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 256

// Characters with HTML/SQL/shell significance are rejected outright rather
// than escaped downstream.
var forbiddenNameChars = `/()"<>\{}`

// SubscriberName is a validated display name.
type SubscriberName struct {
	value string
}

// ParseSubscriberName validates s as a subscriber name: non-whitespace,
// at most 256 characters, no forbidden characters.
func ParseSubscriberName(s string) (SubscriberName, error) {
	if strings.TrimSpace(s) == "" {
		return SubscriberName{}, fmt.Errorf("name is empty or whitespace")
	}
	if utf8.RuneCountInString(s) > maxNameLength {
		return SubscriberName{}, fmt.Errorf("name exceeds %d characters", maxNameLength)
	}
	if strings.ContainsAny(s, forbiddenNameChars) {
		return SubscriberName{}, fmt.Errorf("name contains a forbidden character")
	}
	return SubscriberName{value: s}, nil
}

// String returns the name.
func (n SubscriberName) String() string { return n.value }
