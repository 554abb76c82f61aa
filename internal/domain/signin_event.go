package domain

import "time"

// SignInFlow names the entry point that finished a sign-in
type SignInFlow string

const (
	FlowCodeExchange    SignInFlow = "code_exchange"
	FlowExistingSession SignInFlow = "existing_session"
	FlowFragmentRelay   SignInFlow = "fragment_relay"
	// FlowProviderError is a callback where the provider reported a failure before any exchange
	FlowProviderError SignInFlow = "provider_error"
)

// SignInEvent is one audit record of a finished sign-in attempt. It never carries tokens.
type SignInEvent struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id,omitempty"`
	Flow       SignInFlow       `json:"flow"`
	Succeeded  bool             `json:"succeeded"`
	Reason     NavigationReason `json:"reason,omitempty"`
	Path       string           `json:"path,omitempty"`
	ErrorType  string           `json:"error_type,omitempty"`
	RequestID  string           `json:"request_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
