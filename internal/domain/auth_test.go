package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthPayload(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected AuthPayload
	}{
		{
			name: "fragment with tokens",
			raw:  "#access_token=at-1&refresh_token=rt-1&expires_in=3600&token_type=bearer",
			expected: AuthPayload{
				AccessToken:  "at-1",
				RefreshToken: "rt-1",
			},
		},
		{
			name: "provider error",
			raw:  "error=access_denied&error_description=User+denied",
			expected: AuthPayload{
				ProviderError:            "access_denied",
				ProviderErrorDescription: "User denied",
			},
		},
		{
			name:     "query form with empty refresh token",
			raw:      "?access_token=at-2&refresh_token=",
			expected: AuthPayload{AccessToken: "at-2"},
		},
		{
			name:     "malformed escape is skipped",
			raw:      "#access_token=at-3&bad=%zz&error_description=%",
			expected: AuthPayload{AccessToken: "at-3"},
		},
		{
			name:     "empty",
			raw:      "  #  ",
			expected: AuthPayload{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAuthPayload(tt.raw))
		})
	}
}

func TestAuthPayload_ErrorTakesPrecedence(t *testing.T) {
	payload := ParseAuthPayload("#access_token=at&error=server_error")

	assert.True(t, payload.HasProviderError())
	assert.Equal(t, "server_error", payload.ProviderMessage())
	assert.False(t, payload.Empty())
}

func TestAuthPayload_StringRedactsTokens(t *testing.T) {
	payload := AuthPayload{AccessToken: "secret-access", RefreshToken: "secret-refresh"}

	out := payload.String()
	assert.NotContains(t, out, "secret-access")
	assert.NotContains(t, out, "secret-refresh")
	assert.Contains(t, out, "access_token:true")
}

func TestSession_Valid(t *testing.T) {
	var nilSession *Session
	assert.False(t, nilSession.Valid())
	assert.False(t, (&Session{AccessToken: "at"}).Valid())
	assert.False(t, (&Session{User: &UserIdentity{ID: "u1"}}).Valid())
	assert.True(t, (&Session{AccessToken: "at", User: &UserIdentity{ID: "u1"}}).Valid())
}

func TestSession_Token(t *testing.T) {
	session := &Session{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 1700000000}

	token := session.Token()
	require.NotNil(t, token)
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "rt", token.RefreshToken)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, time.Unix(1700000000, 0), token.Expiry)

	assert.True(t, session.Expired(time.Unix(1700000001, 0)))
	assert.False(t, session.Expired(time.Unix(1699999999, 0)))
}
