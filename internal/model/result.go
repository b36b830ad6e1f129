package model

import "time"

// CampaignResult is one row per (campaign, channel): aggregated totals
// recomputed from campaign_queue and campaign_delivery_log. Never written by
// the dispatch path; always recomputable.
type CampaignResult struct {
	ID               int64     `db:"id"`
	CampaignID       int64     `db:"campaign_id"`
	Channel          Channel   `db:"channel"`
	TotalSent        int64     `db:"total_sent"`
	TotalDelivered   int64     `db:"total_delivered"`
	TotalOpened      int64     `db:"total_opened"`
	TotalClicked     int64     `db:"total_clicked"`
	TotalConverted   int64     `db:"total_converted"`
	TotalFailed      int64     `db:"total_failed"`
	BounceCount      int64     `db:"bounce_count"`
	UnsubscribeCount int64     `db:"unsubscribe_count"`
	UpdatedAt        time.Time `db:"updated_at"`
}
