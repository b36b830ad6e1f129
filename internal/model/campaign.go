package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignActive, CampaignCompleted, CampaignPaused, CampaignCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// Campaign is the DB entity persisted in the campaigns table. The engagement
// counters are denormalized mirrors; campaign_results holds the recomputed
// source of truth.
type Campaign struct {
	ID             int64          `db:"id"`
	OrganizationID int64          `db:"organization_id"`
	Name           string         `db:"name"`
	Status         CampaignStatus `db:"status"`
	Channels       string         `db:"channels"` // comma-separated channel set
	Audience       string         `db:"audience"` // opaque audience descriptor
	ScheduledAt    *time.Time     `db:"scheduled_at"`
	SentAt         *time.Time     `db:"sent_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
	SentCount      int64          `db:"sent_count"`
	DeliveredCount int64          `db:"delivered_count"`
	OpenedCount    int64          `db:"opened_count"`
	ClickedCount   int64          `db:"clicked_count"`
	FailedCount    int64          `db:"failed_count"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}
