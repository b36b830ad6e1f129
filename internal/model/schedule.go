package model

import "time"

// CampaignSchedule is the one-to-one scheduling config of a campaign.
// Quiet hours are local times of day ("HH:MM") in Timezone; a start after the
// end means the window wraps midnight. Start == end disables quiet hours.
type CampaignSchedule struct {
	ID                   int64      `db:"id"`
	CampaignID           int64      `db:"campaign_id"`
	SendImmediately      bool       `db:"send_immediately"`
	ScheduledTime        *time.Time `db:"scheduled_time"`
	Timezone             string     `db:"timezone"`
	Recurring            bool       `db:"recurring"`
	RecurringPattern     string     `db:"recurring_pattern"` // daily|weekly|monthly[:interval]
	BatchSize            int        `db:"batch_size"`
	BatchIntervalMinutes int        `db:"batch_interval_minutes"`
	RespectQuietHours    bool       `db:"respect_quiet_hours"`
	QuietHoursStart      string     `db:"quiet_hours_start"` // "HH:MM"
	QuietHoursEnd        string     `db:"quiet_hours_end"`   // "HH:MM"
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// DefaultSchedule is the fallback used when a campaign has no schedule row:
// send immediately, one batch, no quiet hours.
func DefaultSchedule(campaignID int64) CampaignSchedule {
	return CampaignSchedule{
		CampaignID:      campaignID,
		SendImmediately: true,
		Timezone:        "UTC",
	}
}
