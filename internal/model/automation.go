package model

import "time"

// CampaignAutomation maps a domain trigger event plus conditions to a campaign
// and a delay. When its event fires and the conditions match, the engine
// enqueues the campaign's messages for the event's recipient.
type CampaignAutomation struct {
	ID           int64     `db:"id"`
	CampaignID   int64     `db:"campaign_id"`
	TriggerEvent string    `db:"trigger_event"` // e.g. lead.created, waitlist.added
	Conditions   string    `db:"conditions"`    // JSON object: payload key -> required value
	DelayMinutes int       `db:"delay_minutes"`
	Enabled      bool      `db:"enabled"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// DomainEvent is the envelope consumed from the domain.events Kafka topic.
type DomainEvent struct {
	Type           string            `json:"type"`
	OrganizationID int64             `json:"organization_id"`
	Recipient      Recipient         `json:"recipient"`
	Payload        map[string]string `json:"payload,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}
