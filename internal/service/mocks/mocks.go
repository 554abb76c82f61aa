// Package mocks holds testify mocks of the service interfaces
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"carebridge-auth/internal/domain"
)

// AuthBackend mocks service.AuthBackend
type AuthBackend struct {
	mock.Mock
}

func (m *AuthBackend) GetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error) {
	args := m.Called(ctx, accessToken, refreshToken)
	session, _ := args.Get(0).(*domain.Session)
	return session, args.Error(1)
}

func (m *AuthBackend) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*domain.Session, error) {
	args := m.Called(ctx, code, codeVerifier)
	session, _ := args.Get(0).(*domain.Session)
	return session, args.Error(1)
}

func (m *AuthBackend) SetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error) {
	args := m.Called(ctx, accessToken, refreshToken)
	session, _ := args.Get(0).(*domain.Session)
	return session, args.Error(1)
}

func (m *AuthBackend) UpdateUser(ctx context.Context, accessToken string, data map[string]interface{}) (*domain.UserIdentity, error) {
	args := m.Called(ctx, accessToken, data)
	user, _ := args.Get(0).(*domain.UserIdentity)
	return user, args.Error(1)
}

func (m *AuthBackend) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *AuthBackend) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	args := m.Called(provider, redirectTo, codeChallenge)
	return args.String(0)
}

// PayloadStore mocks service.PayloadStore
type PayloadStore struct {
	mock.Mock
}

func (m *PayloadStore) Stash(ctx context.Context, raw string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, raw, ttl)
	return args.String(0), args.Error(1)
}

func (m *PayloadStore) Take(ctx context.Context, id string) (string, bool, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Bool(1), args.Error(2)
}

// ExchangeGuard mocks service.ExchangeGuard
type ExchangeGuard struct {
	mock.Mock
}

func (m *ExchangeGuard) Claim(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

// SignInRecorder mocks service.SignInRecorder
type SignInRecorder struct {
	mock.Mock
}

func (m *SignInRecorder) Record(ctx context.Context, event *domain.SignInEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
