package domain

// NavigationReason explains why a destination was chosen
type NavigationReason string

const (
	ReasonNeedsOnboarding NavigationReason = "needs-onboarding"
	ReasonDashboard       NavigationReason = "dashboard"
	ReasonExplicitNext    NavigationReason = "explicit-next"
)

// NavigationIntent is the resolved next step after sign-in
type NavigationIntent struct {
	Path   string           `json:"path"`
	Reason NavigationReason `json:"reason"`
}
