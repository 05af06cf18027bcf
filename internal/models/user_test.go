package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeExternalID(t *testing.T) {
	cases := []struct{ in, want string }{
		{"user_123", "user_123"},
		{"https://clerk.example.dev#user_123", "user_123"},
		{"google-oauth2|123", "google-oauth2|123"},
		{"github|123", "github|123"},
		{"  spaced  ", "spaced"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeExternalID(c.in), c.in)
	}
}
