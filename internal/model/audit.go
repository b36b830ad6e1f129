package model

import "time"

type ErrorKind string

const (
	ErrorTransient ErrorKind = "transient"
	ErrorPermanent ErrorKind = "permanent"
	ErrorSchedule  ErrorKind = "schedule"
)

func (k ErrorKind) String() string { return string(k) }

// ErrorLogEntry is one row of campaign_error_log. Permanent entries double as
// a suppression list: future enqueues skip recipients with a permanent failure
// on the same channel.
type ErrorLogEntry struct {
	ID         int64     `db:"id"`
	CampaignID int64     `db:"campaign_id"`
	TaskID     string    `db:"task_id"`
	Channel    Channel   `db:"channel"`
	Recipient  string    `db:"recipient"`
	Kind       ErrorKind `db:"kind"`
	Message    string    `db:"message"`
	CreatedAt  time.Time `db:"created_at"`
}

// AuditLogEntry records a material campaign state change (activated, paused,
// cancelled, completed). Written only, never read by the dispatch path.
type AuditLogEntry struct {
	ID         int64     `db:"id"`
	CampaignID int64     `db:"campaign_id"`
	Action     string    `db:"action"`
	Detail     string    `db:"detail"`
	CreatedAt  time.Time `db:"created_at"`
}
