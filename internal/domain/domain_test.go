package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriberEmail(t *testing.T) {
	valid := []string{
		"ursula_le_guin@gmail.com",
		"first.last+tag@sub.example.co.uk",
	}
	for _, s := range valid {
		email, err := ParseSubscriberEmail(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, email.String())
	}

	invalid := []string{
		"",
		"   ",
		"ursuladomain.com",
		"@domain.com",
		"ursula@",
		"ursula @domain.com",
		"ursula@domain",
		strings.Repeat("a", 250) + "@x.com",
	}
	for _, s := range invalid {
		_, err := ParseSubscriberEmail(s)
		assert.Error(t, err, "%q should be rejected", s)
	}
}

func TestSubscriberEmailDomain(t *testing.T) {
	email, err := ParseSubscriberEmail("jane@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "example.com", email.Domain())
}

func TestParseSubscriberName(t *testing.T) {
	name, err := ParseSubscriberName("Ursula Le Guin")
	require.NoError(t, err)
	assert.Equal(t, "Ursula Le Guin", name.String())

	_, err = ParseSubscriberName(strings.Repeat("ё", 256))
	assert.NoError(t, err, "256 characters is the limit, not past it")

	invalid := []string{
		"",
		"   ",
		strings.Repeat("a", 257),
	}
	for _, c := range forbiddenNameChars {
		invalid = append(invalid, "name"+string(c))
	}
	for _, s := range invalid {
		_, err := ParseSubscriberName(s)
		assert.Error(t, err, "%q should be rejected", s)
	}
}

func TestParseSubscriptionToken(t *testing.T) {
	tok, err := ParseSubscriptionToken("aBc123XyZ456mNoPqR789stUV")
	require.NoError(t, err)
	assert.Equal(t, "aBc123XyZ456mNoPqR789stUV", tok.String())

	invalid := []string{
		"",
		"tooshort",
		strings.Repeat("a", 24),
		strings.Repeat("a", 26),
		strings.Repeat("a", 24) + "!",
		strings.Repeat("a", 24) + " ",
	}
	for _, s := range invalid {
		_, err := ParseSubscriptionToken(s)
		assert.Error(t, err, "%q should be rejected", s)
	}
}

func TestGenerateSubscriptionToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := GenerateSubscriptionToken()
		// Every generated token must round-trip through its own validator.
		_, err := ParseSubscriptionToken(tok.String())
		require.NoError(t, err)
		assert.False(t, seen[tok.String()], "duplicate token generated")
		seen[tok.String()] = true
	}
}

func TestParseIdempotencyKey(t *testing.T) {
	key, err := ParseIdempotencyKey("a")
	require.NoError(t, err)
	assert.Equal(t, "a", key.String())

	_, err = ParseIdempotencyKey(strings.Repeat("k", 50))
	assert.NoError(t, err)

	_, err = ParseIdempotencyKey("")
	assert.Error(t, err)

	_, err = ParseIdempotencyKey(strings.Repeat("k", 51))
	assert.Error(t, err)
}

func TestParsePassword(t *testing.T) {
	_, err := ParsePassword("correct horse battery staple")
	assert.NoError(t, err)

	_, err = ParsePassword("short")
	assert.Error(t, err)

	_, err = ParsePassword(strings.Repeat("p", 129))
	assert.Error(t, err)
}
