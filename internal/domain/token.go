package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TokenLength is the fixed length of a subscription token.
const TokenLength = 25

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SubscriptionToken is a validated double-opt-in confirmation token:
// exactly 25 ASCII alphanumeric characters.
type SubscriptionToken struct {
	value string
}

// ParseSubscriptionToken validates the syntactic shape of s. Shape checks
// run before any database access so garbage tokens never reach storage.
func ParseSubscriptionToken(s string) (SubscriptionToken, error) {
	if len(s) != TokenLength {
		return SubscriptionToken{}, fmt.Errorf("subscription token must be exactly %d characters, got %d", TokenLength, len(s))
	}
	for _, c := range []byte(s) {
		if !isASCIIAlphanumeric(c) {
			return SubscriptionToken{}, fmt.Errorf("subscription token must contain only ASCII alphanumeric characters")
		}
	}
	return SubscriptionToken{value: s}, nil
}

// GenerateSubscriptionToken returns a fresh uniformly random token.
func GenerateSubscriptionToken() SubscriptionToken {
	b := make([]byte, TokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("token generation: %v", err))
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return SubscriptionToken{value: string(b)}
}

// String returns the token.
func (t SubscriptionToken) String() string { return t.value }

func isASCIIAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
