package model

import (
	"strings"
	"time"
)

type EventType string

const (
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventFailed       EventType = "failed"
	EventBounced      EventType = "bounced"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventConverted    EventType = "converted"
	EventUnsubscribed EventType = "unsubscribed"
)

func (t EventType) String() string { return string(t) }

func (t EventType) Valid() bool {
	switch t {
	case EventSent, EventDelivered, EventFailed, EventBounced,
		EventOpened, EventClicked, EventConverted, EventUnsubscribed:
		return true
	}
	return false
}

// ParseEventType normalizes provider event names. Returns (value, true) if valid.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// DeliveryEvent is one append-only row of campaign_delivery_log. CampaignID
// and Channel are denormalized from the queue row for aggregation queries.
type DeliveryEvent struct {
	ID         string    `db:"id"` // ULID
	TaskID     string    `db:"task_id"`
	CampaignID int64     `db:"campaign_id"`
	Channel    Channel   `db:"channel"`
	Type       EventType `db:"event_type"`
	OccurredAt time.Time `db:"occurred_at"`
	CreatedAt  time.Time `db:"created_at"`
}
