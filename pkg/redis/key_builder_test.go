package redis

import (
	"testing"
)

func TestKeyBuilder_Environment_Prefixes(t *testing.T) {
	tests := []struct {
		name           string
		environment    string
		expectedPrefix string
	}{
		{
			name:           "Production environment should use prod prefix",
			environment:    "production",
			expectedPrefix: "prod",
		},
		{
			name:           "Development environment should use staging prefix",
			environment:    "development",
			expectedPrefix: "staging",
		},
		{
			name:           "Staging environment should use staging prefix",
			environment:    "staging",
			expectedPrefix: "staging",
		},
		{
			name:           "Unknown environment should default to prod prefix",
			environment:    "unknown",
			expectedPrefix: "prod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb := NewKeyBuilder(tt.environment)
			if kb.GetPrefix() != tt.expectedPrefix {
				t.Errorf("NewKeyBuilder(%s).GetPrefix() = %s, want %s",
					tt.environment, kb.GetPrefix(), tt.expectedPrefix)
			}
		})
	}
}

func TestKeyBuilder_KeyGeneration(t *testing.T) {
	prod := NewKeyBuilder("production")
	staging := NewKeyBuilder("development")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{
			name:     "Relay payload key",
			got:      prod.KeyRelayPayload("3f2c"),
			expected: "prod:auth:relay:3f2c",
		},
		{
			name:     "Exchange claim key",
			got:      prod.KeyExchangeClaim("abcd"),
			expected: "prod:auth:exchange:abcd",
		},
		{
			name:     "Staging relay payload key",
			got:      staging.KeyRelayPayload("3f2c"),
			expected: "staging:auth:relay:3f2c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %s, want %s", tt.got, tt.expected)
			}
		})
	}
}
