package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"
)

// AuthPayload is the transient credential bag carried by a redirect.
// It is consumed once and must never be logged in full.
type AuthPayload struct {
	AccessToken              string
	RefreshToken             string
	ProviderError            string
	ProviderErrorDescription string
}

// ParseAuthPayload reads a URL fragment or query string. A leading '#' or '?' is ignored
// and malformed pairs are skipped rather than failing the whole payload.
func ParseAuthPayload(raw string) AuthPayload {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimLeft(raw, "#?")

	values := url.Values{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}
		values.Add(k, v)
	}

	return AuthPayload{
		AccessToken:              strings.TrimSpace(values.Get("access_token")),
		RefreshToken:             strings.TrimSpace(values.Get("refresh_token")),
		ProviderError:            strings.TrimSpace(values.Get("error")),
		ProviderErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}
}

// Empty reports whether the payload carries nothing at all
func (p AuthPayload) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == "" && p.ProviderError == "" && p.ProviderErrorDescription == ""
}

// HasProviderError reports whether the provider reported a failure.
// An error always wins over tokens carried alongside it.
func (p AuthPayload) HasProviderError() bool {
	return p.ProviderError != "" || p.ProviderErrorDescription != ""
}

// ProviderMessage returns the provider's description, falling back to the error code
func (p AuthPayload) ProviderMessage() string {
	if p.ProviderErrorDescription != "" {
		return p.ProviderErrorDescription
	}
	return p.ProviderError
}

// String redacts the tokens
func (p AuthPayload) String() string {
	return fmt.Sprintf("AuthPayload{access_token:%t refresh_token:%t error:%q}",
		p.AccessToken != "", p.RefreshToken != "", p.ProviderError)
}

// MarshalLogObject implements zapcore.ObjectMarshaler with presence flags only
func (p AuthPayload) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("has_access_token", p.AccessToken != "")
	enc.AddBool("has_refresh_token", p.RefreshToken != "")
	if p.ProviderError != "" {
		enc.AddString("provider_error", p.ProviderError)
	}
	return nil
}

// Session is the result of a successful exchange with the auth backend
type Session struct {
	AccessToken  string        `json:"-"`
	RefreshToken string        `json:"-"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"` // epoch seconds
	User         *UserIdentity `json:"user"`
}

// Valid reports whether the session can be used: both a session and a user must be present
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.User != nil
}

// Expired reports whether the access token has expired at now
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// Token converts the session into an oauth2 token
func (s *Session) Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		RefreshToken: s.RefreshToken,
	}
	if token.TokenType == "" {
		token.TokenType = "bearer"
	}
	if s.ExpiresAt > 0 {
		token.Expiry = time.Unix(s.ExpiresAt, 0)
	}
	return token
}
