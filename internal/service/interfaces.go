package service

import (
	"context"
	"time"

	"carebridge-auth/internal/domain"
)

// AuthBackend is the capability surface of the external auth service.
// Every call may block on the network and may fail with a backend message.
type AuthBackend interface {
	// GetSession returns the session for previously issued tokens, or nil when there is none
	GetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error)

	// ExchangeCodeForSession trades a one-time authorization code for a session
	ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*domain.Session, error)

	// SetSession establishes a session from fragment tokens
	SetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error)

	// UpdateUser merges data into the user's metadata
	UpdateUser(ctx context.Context, accessToken string, data map[string]interface{}) (*domain.UserIdentity, error)

	// SignOut revokes the session behind accessToken
	SignOut(ctx context.Context, accessToken string) error

	// AuthorizeURL builds the provider consent URL for the PKCE flow
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
}

// PayloadStore relays fragment payloads between two page loads. Entries are single-use.
type PayloadStore interface {
	// Stash stores raw under a fresh identifier that expires after ttl
	Stash(ctx context.Context, raw string, ttl time.Duration) (string, error)

	// Take reads and deletes the entry in one step
	Take(ctx context.Context, id string) (raw string, found bool, err error)
}

// ExchangeGuard rejects a second exchange of the same authorization code
type ExchangeGuard interface {
	// Claim returns false when code was already claimed
	Claim(ctx context.Context, code string) (bool, error)
}

// SignInRecorder keeps the sign-in audit trail
type SignInRecorder interface {
	Record(ctx context.Context, event *domain.SignInEvent) error
}

// AuthService authenticates API callers
type AuthService interface {
	// Authenticate returns the session behind accessToken or an authentication error
	Authenticate(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error)
}
