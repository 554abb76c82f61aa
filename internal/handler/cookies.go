package handler

import (
	"net/http"
	"time"

	"carebridge-auth/internal/config"
	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/middleware"
)

// Cookies scoped to the sign-in routes
const (
	CodeVerifierCookie = "sb-code-verifier"
	RelayIDCookie      = "sb-relay-id"

	authCookiePath      = "/auth"
	codeVerifierMaxAge  = 10 * time.Minute
	refreshCookieMaxAge = 30 * 24 * time.Hour
)

var timeNow = time.Now

func newCookie(cfg *config.Config, name, value, path string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}

func clearCookie(w http.ResponseWriter, cfg *config.Config, name, path string) {
	c := newCookie(cfg, name, "", path, 0)
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// setSessionCookies writes the access and refresh tokens of session. A session without a
// refresh token clears any refresh cookie left by an earlier sign-in.
func setSessionCookies(w http.ResponseWriter, cfg *config.Config, session *domain.Session, now time.Time) {
	token := session.Token()

	accessAge := time.Hour
	if !token.Expiry.IsZero() {
		if d := token.Expiry.Sub(now); d > 0 {
			accessAge = d
		}
	} else if session.ExpiresIn > 0 {
		accessAge = time.Duration(session.ExpiresIn) * time.Second
	}

	http.SetCookie(w, newCookie(cfg, middleware.AccessTokenCookie, token.AccessToken, "/", accessAge))
	if token.RefreshToken != "" {
		http.SetCookie(w, newCookie(cfg, middleware.RefreshTokenCookie, token.RefreshToken, "/", refreshCookieMaxAge))
	} else {
		clearCookie(w, cfg, middleware.RefreshTokenCookie, "/")
	}
}

func clearSessionCookies(w http.ResponseWriter, cfg *config.Config) {
	clearCookie(w, cfg, middleware.AccessTokenCookie, "/")
	clearCookie(w, cfg, middleware.RefreshTokenCookie, "/")
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// requestOrigin is scheme://host as the request arrived at this process
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
