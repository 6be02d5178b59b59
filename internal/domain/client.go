package domain

import "time"

// ============================================================
// Clients (pharmacies / points of sale)
// ============================================================

// Client is a customer account visited by a sales representative.
type Client struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Code           string     `json:"code,omitempty"`
	City           string     `json:"city,omitempty"`
	Representative string     `json:"representative,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}
