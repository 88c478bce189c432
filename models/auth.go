package models

import "time"

// TokenRequest represents a service-token request from a backend client.
type TokenRequest struct {
	ClientID  string `json:"client_id"`
	SharedKey string `json:"shared_key"`
}

// AuthClient represents the authenticated caller carried in the request
// context after the bearer middleware runs.
type AuthClient struct {
	ClientID string `json:"client_id"`
}

// TokenResponse represents a minted service token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
