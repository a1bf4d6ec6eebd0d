package models

import "time"

// AuthInvalidMessage is the exact message returned on authentication failure.
// Clients match it verbatim to trigger a re-login flow instead of a generic
// error screen, so it must never be reworded casually.
const AuthInvalidMessage = "invalid or expired session"

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type HealthCheck struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
