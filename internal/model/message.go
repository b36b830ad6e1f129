package model

import (
	"strings"
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func (c Channel) String() string { return string(c) }

func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelPush
}

// ParseChannel normalizes input. Returns (value, true) if valid.
func ParseChannel(s string) (Channel, bool) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	return ch, ch.Valid()
}

// CampaignMessage is the immutable per-channel content of a campaign.
// A campaign carries at most one message per channel.
type CampaignMessage struct {
	ID         int64     `db:"id"`
	CampaignID int64     `db:"campaign_id"`
	Channel    Channel   `db:"channel"`
	Subject    string    `db:"subject"`
	Body       string    `db:"body"`
	TemplateID *string   `db:"template_id"`
	CreatedAt  time.Time `db:"created_at"`
}
