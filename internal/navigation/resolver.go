// Package navigation decides where a user lands after signing in. The same
// resolver serves the callback router, the session bootstrap and the relay fallback.
package navigation

import (
	"strings"

	"carebridge-auth/internal/domain"
)

// Fixed destinations
const (
	RootPath                = "/"
	PatientOnboardingPath   = "/onboarding/patient"
	CounselorOnboardingPath = "/onboarding/counselor"
	PatientDashboardPath    = "/dashboard/patient"
	CounselorDashboardPath  = "/dashboard/counselor"
	AdminDashboardPath      = "/dashboard/admin"
)

// Resolve maps an authenticated user to a destination.
// Incomplete onboarding always wins over next, and the returned path is always a local path.
func Resolve(user *domain.UserIdentity, roleHint domain.Role, next string) domain.NavigationIntent {
	role := ResolveRole(user, roleHint)

	if user == nil || !user.OnboardingCompleted {
		return domain.NavigationIntent{
			Path:   SafePath(OnboardingPath(role)),
			Reason: domain.ReasonNeedsOnboarding,
		}
	}

	if next = strings.TrimSpace(next); next != "" && next != RootPath && IsSafePath(next) {
		return domain.NavigationIntent{Path: next, Reason: domain.ReasonExplicitNext}
	}

	return domain.NavigationIntent{
		Path:   SafePath(DashboardPath(role)),
		Reason: domain.ReasonDashboard,
	}
}

// ResolveRole picks the stored role, then the hint, then patient.
// A stored guest role counts as unassigned.
func ResolveRole(user *domain.UserIdentity, roleHint domain.Role) domain.Role {
	if user != nil && !user.Role.Unassigned() {
		return user.Role
	}
	if hint := domain.ParseRole(string(roleHint)); !hint.Unassigned() {
		return hint
	}
	return domain.RolePatient
}

// OnboardingPath returns the onboarding entry point for role
func OnboardingPath(role domain.Role) string {
	if role == domain.RoleCounselor {
		return CounselorOnboardingPath
	}
	return PatientOnboardingPath
}

// DashboardPath returns the dashboard root for role, or the site root for unknown roles
func DashboardPath(role domain.Role) string {
	switch role {
	case domain.RoleCounselor:
		return CounselorDashboardPath
	case domain.RolePatient:
		return PatientDashboardPath
	case domain.RoleAdmin:
		return AdminDashboardPath
	default:
		return RootPath
	}
}

// FallbackPath is where a stalled sign-in lands: the dashboard of the hinted role
func FallbackPath(roleHint domain.Role) string {
	return SafePath(DashboardPath(ResolveRole(nil, roleHint)))
}

// IsSafePath reports whether p stays on this site
func IsSafePath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	// "//host" and "/\host" are treated as protocol-relative by browsers
	if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return false
	}
	return !strings.ContainsAny(p, "\r\n\t")
}

// SafePath returns p when it is a local path, else the site root
func SafePath(p string) string {
	if IsSafePath(p) {
		return p
	}
	return RootPath
}
