package model

import "time"

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskSent       TaskStatus = "sent"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) String() string { return string(s) }

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskProcessing, TaskSent, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transition.
func (s TaskStatus) Terminal() bool {
	return s == TaskSent || s == TaskFailed || s == TaskCancelled
}

// CanTransition encodes the queue state machine. Sent and failed are reached
// only from processing; pending and processing may be cancelled; terminal
// states never re-enter the graph.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case TaskPending:
		return to == TaskProcessing || to == TaskCancelled
	case TaskProcessing:
		return to == TaskSent || to == TaskPending || to == TaskFailed || to == TaskCancelled
	case TaskSent, TaskFailed, TaskCancelled:
		return false
	}
	return false
}

const (
	DefaultMaxAttempts  = 3
	DefaultTaskPriority = 100 // lower number = dispatched first
)

// QueueTask is one row of campaign_queue: a single (campaign, message,
// recipient) dispatch unit. Channel is denormalized from the message so the
// worker can route without a join.
type QueueTask struct {
	ID                string     `db:"id"` // ULID
	CampaignID        int64      `db:"campaign_id"`
	MessageID         int64      `db:"message_id"`
	Channel           Channel    `db:"channel"`
	Recipient         string     `db:"recipient"`      // email address / phone / push token
	RecipientData     string     `db:"recipient_data"` // JSON template variables
	Priority          int        `db:"priority"`
	ScheduledFor      time.Time  `db:"scheduled_for"`
	Status            TaskStatus `db:"status"`
	Attempts          int        `db:"attempts"`
	MaxAttempts       int        `db:"max_attempts"`
	ErrorMessage      string     `db:"error_message"`
	ProviderMessageID string     `db:"provider_message_id"`
	ClaimedAt         *time.Time `db:"claimed_at"`
	SentAt            *time.Time `db:"sent_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}
