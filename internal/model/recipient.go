package model

import "time"

// Recipient is a resolved audience member handed to the enqueuer. Audience
// filtering happens upstream; the engine only expands and dispatches.
type Recipient struct {
	Contact  string            `json:"contact"` // email address / phone / push token
	Data     map[string]string `json:"data,omitempty"`
	Priority int               `json:"priority,omitempty"` // 0 = default
}

// Organization is the tenant record used for API authentication and rate
// limiting on the HTTP surface.
type Organization struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	APIKey       string    `db:"api_key"`
	Status       string    `db:"status"` // active|suspended
	RateLimitRPS *int      `db:"rate_limit_rps"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
