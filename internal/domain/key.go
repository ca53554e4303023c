package domain

import "fmt"

const maxIdempotencyKeyLength = 50

// IdempotencyKey is a client-supplied opaque deduplication token,
// 1–50 characters.
type IdempotencyKey struct {
	value string
}

// ParseIdempotencyKey validates the shape of s.
func ParseIdempotencyKey(s string) (IdempotencyKey, error) {
	if s == "" {
		return IdempotencyKey{}, fmt.Errorf("idempotency key is empty")
	}
	if len(s) > maxIdempotencyKeyLength {
		return IdempotencyKey{}, fmt.Errorf("idempotency key exceeds %d characters", maxIdempotencyKeyLength)
	}
	return IdempotencyKey{value: s}, nil
}

// String returns the key.
func (k IdempotencyKey) String() string { return k.value }
