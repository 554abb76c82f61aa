package handler

import (
	"net/http"
	"strings"

	"carebridge-auth/internal/config"
	"carebridge-auth/internal/service/callback"
	"carebridge-auth/pkg/errors"
)

// verifySameOrigin rejects state-changing browser requests that another site started.
// Requests without an Origin header come from non-browser clients or same-origin navigations.
func verifySameOrigin(r *http.Request, cfg *config.Config) *errors.AppError {
	if strings.EqualFold(r.Header.Get("Sec-Fetch-Site"), "cross-site") {
		return errors.NewAuthorizationError("Cross-site request rejected")
	}

	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if origin == "" {
		return nil
	}

	for _, allowed := range trustedOrigins(r, cfg) {
		if allowed != "" && strings.EqualFold(origin, allowed) {
			return nil
		}
	}
	return errors.NewAuthorizationError("Cross-site request rejected")
}

func trustedOrigins(r *http.Request, cfg *config.Config) []string {
	self := requestOrigin(r)
	origins := []string{
		self,
		callback.BaseURL(cfg, callback.Request{
			Origin:         self,
			ForwardedHost:  r.Header.Get("X-Forwarded-Host"),
			ForwardedProto: r.Header.Get("X-Forwarded-Proto"),
		}),
		cfg.SiteURL,
	}
	return append(origins, cfg.AllowedOrigins...)
}
