package domain

import (
	"strings"
	"time"
)

// Role is the portal role stored in the user's metadata
type Role string

const (
	RolePatient   Role = "patient"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
	// RoleGuest is the placeholder some signup paths store before a role is chosen
	RoleGuest Role = "guest"
)

// ParseRole normalises a raw role string. Unknown values are kept as-is.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// Known reports whether r is one of the portal roles
func (r Role) Known() bool {
	switch r {
	case RolePatient, RoleCounselor, RoleAdmin:
		return true
	}
	return false
}

// Unassigned reports whether no real role has been chosen yet
func (r Role) Unassigned() bool {
	return r == "" || r == RoleGuest
}

// UserIdentity is the resolved view of the authenticated principal
type UserIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// Role is the stored metadata role, empty when absent. Use EffectiveRole for the defaulted value.
	Role                Role      `json:"role"`
	DisplayName         string    `json:"display_name"`
	AvatarURL           string    `json:"avatar_url,omitempty"`
	IsVerified          bool      `json:"is_verified"`
	OnboardingCompleted bool      `json:"onboarding_completed"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// EffectiveRole returns the stored role, defaulting to patient when none was assigned
func (u *UserIdentity) EffectiveRole() Role {
	if u == nil || u.Role.Unassigned() {
		return RolePatient
	}
	return u.Role
}

// UserMetadata is the free-form metadata bag kept by the auth backend
type UserMetadata map[string]interface{}

// String returns the string value for key, or ""
func (m UserMetadata) String(key string) string {
	if val, ok := m[key].(string); ok {
		return strings.TrimSpace(val)
	}
	return ""
}

// Bool returns the boolean value for key. String forms "true"/"false" are accepted.
func (m UserMetadata) Bool(key string) bool {
	switch val := m[key].(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	}
	return false
}

// NewUserIdentity derives a UserIdentity from backend fields.
// confirmedAt is the provider's "email confirmed" timestamp, nil when unconfirmed.
func NewUserIdentity(id, email string, meta UserMetadata, confirmedAt, createdAt, updatedAt *time.Time, now time.Time) *UserIdentity {
	identity := &UserIdentity{
		ID:                  id,
		Email:               email,
		Role:                ParseRole(meta.String("role")),
		IsVerified:          confirmedAt != nil && !confirmedAt.IsZero(),
		OnboardingCompleted: meta.Bool("onboarding_completed"),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	switch {
	case meta.String("full_name") != "":
		identity.DisplayName = meta.String("full_name")
	case meta.String("name") != "":
		identity.DisplayName = meta.String("name")
	default:
		identity.DisplayName = email
	}

	identity.AvatarURL = meta.String("avatar_url")
	if identity.AvatarURL == "" {
		identity.AvatarURL = meta.String("picture")
	}

	if createdAt != nil && !createdAt.IsZero() {
		identity.CreatedAt = *createdAt
	}
	if updatedAt != nil && !updatedAt.IsZero() {
		identity.UpdatedAt = *updatedAt
	}

	return identity
}
