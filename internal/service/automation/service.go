package automation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/blossomhq/campaign-engine/internal/kafka"
	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/service/enqueue"
	"go.uber.org/zap"
)

type AutomationStore interface {
	ListEnabledByEvent(ctx context.Context, triggerEvent string) ([]model.CampaignAutomation, error)
}

type MessageStore interface {
	ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignMessage, error)
}

type Enqueuer interface {
	Append(ctx context.Context, campaignID, messageID int64, recipients []model.Recipient, notBefore time.Time) (int, error)
}

// Source is the domain event stream; *kafka.Consumer satisfies it.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Service consumes domain events and feeds matching automations into the
// queue. Offsets are committed even for messages that fail to process: a
// poison event is logged and skipped rather than wedging the partition.
type Service struct {
	source      Source
	automations AutomationStore
	messages    MessageStore
	enqueuer    Enqueuer
	log         *zap.Logger

	Now func() time.Time
}

func New(source Source, automations AutomationStore, messages MessageStore, enqueuer Enqueuer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		source:      source,
		automations: automations,
		messages:    messages,
		enqueuer:    enqueuer,
		log:         log,
		Now:         time.Now,
	}
}

// Run consumes until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	for {
		msg, err := s.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("fetch domain event failed", zap.Error(err))
			continue
		}

		if err := s.Handle(ctx, msg.Value); err != nil {
			s.log.Error("process domain event failed",
				zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		if err := s.source.Commit(ctx, msg); err != nil {
			s.log.Error("commit offset failed", zap.Error(err))
		}
	}
}

// Handle matches one raw domain event against enabled automations and
// enqueues the campaign messages for its recipient.
func (s *Service) Handle(ctx context.Context, raw []byte) error {
	var ev model.DomainEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.log.Warn("malformed domain event, skipping", zap.Error(err))
		return nil
	}
	if ev.Type == "" || ev.Recipient.Contact == "" {
		s.log.Warn("incomplete domain event, skipping", zap.String("type", ev.Type))
		return nil
	}

	automations, err := s.automations.ListEnabledByEvent(ctx, ev.Type)
	if err != nil {
		return err
	}

	for _, a := range automations {
		matched, err := conditionsMatch(a.Conditions, ev.Payload)
		if err != nil {
			s.log.Error("bad automation conditions, skipping",
				zap.Int64("automation_id", a.ID), zap.Error(err))
			continue
		}
		if !matched {
			continue
		}
		if err := s.fire(ctx, a, ev); err != nil {
			s.log.Error("automation fire failed",
				zap.Int64("automation_id", a.ID),
				zap.Int64("campaign_id", a.CampaignID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Service) fire(ctx context.Context, a model.CampaignAutomation, ev model.DomainEvent) error {
	notBefore := s.Now().Add(time.Duration(a.DelayMinutes) * time.Minute)

	msgs, err := s.messages.ListByCampaign(ctx, a.CampaignID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		s.log.Warn("automation campaign has no messages", zap.Int64("campaign_id", a.CampaignID))
		return nil
	}

	recipients := []model.Recipient{ev.Recipient}
	for _, msg := range msgs {
		n, err := s.enqueuer.Append(ctx, a.CampaignID, msg.ID, recipients, notBefore)
		if err != nil {
			// an already-enqueued recipient comes back as zero rows, not an
			// error; everything else is worth surfacing
			if errors.Is(err, enqueue.ErrNoRecipients) {
				continue
			}
			return err
		}
		s.log.Info("automation enqueued",
			zap.Int64("automation_id", a.ID),
			zap.Int64("campaign_id", a.CampaignID),
			zap.Int64("message_id", msg.ID),
			zap.String("trigger", ev.Type),
			zap.Int("tasks", n))
	}
	return nil
}

// conditionsMatch applies an automation's JSON conditions object to the event
// payload. Empty conditions match everything; every key must be present and
// equal.
func conditionsMatch(conditions string, payload map[string]string) (bool, error) {
	if conditions == "" || conditions == "{}" {
		return true, nil
	}
	var want map[string]string
	if err := json.Unmarshal([]byte(conditions), &want); err != nil {
		return false, err
	}
	for k, v := range want {
		if payload[k] != v {
			return false, nil
		}
	}
	return true, nil
}
