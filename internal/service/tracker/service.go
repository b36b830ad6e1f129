package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blossomhq/campaign-engine/internal/metrics"
	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/util"
	"go.uber.org/zap"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrUnknownMessage   = errors.New("no task for provider message id")
)

type TaskStore interface {
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.QueueTask, error)
}

type EventLog interface {
	Insert(ctx context.Context, ev model.DeliveryEvent) error
	Exists(ctx context.Context, taskID string, t model.EventType) (bool, error)
}

type SuppressionLog interface {
	Insert(ctx context.Context, e model.ErrorLogEntry) error
}

// Event is a provider callback as received on the hook endpoint.
type Event struct {
	ProviderMessageID string
	Type              string
	OccurredAt        time.Time
}

// Service records provider delivery callbacks into the append-only delivery
// log. The log tolerates duplicate callbacks; aggregation counts distinct
// tasks, so replays never inflate results.
type Service struct {
	tasks       TaskStore
	events      EventLog
	suppression SuppressionLog
	log         *zap.Logger
}

func New(tasks TaskStore, events EventLog, suppression SuppressionLog, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{tasks: tasks, events: events, suppression: suppression, log: log}
}

// Record resolves the callback to its queue task and appends a delivery event.
func (s *Service) Record(ctx context.Context, in Event) error {
	eventType, ok := model.ParseEventType(in.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, in.Type)
	}

	task, err := s.tasks.GetByProviderMessageID(ctx, in.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, in.ProviderMessageID)
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	duplicate, err := s.events.Exists(ctx, task.ID, eventType)
	if err != nil {
		return err
	}

	if err := s.events.Insert(ctx, model.DeliveryEvent{
		ID:         util.NewID(),
		TaskID:     task.ID,
		CampaignID: task.CampaignID,
		Channel:    task.Channel,
		Type:       eventType,
		OccurredAt: occurredAt,
	}); err != nil {
		return err
	}
	metrics.DeliveryEventsTotal.WithLabelValues(eventType.String()).Inc()

	if duplicate {
		s.log.Debug("duplicate delivery event",
			zap.String("task_id", task.ID), zap.String("type", eventType.String()))
		return nil
	}

	// a hard bounce or unsubscribe suppresses the recipient on this channel
	// for all future campaigns; write once per (task, type)
	if eventType == model.EventBounced || eventType == model.EventUnsubscribed {
		if err := s.suppression.Insert(ctx, model.ErrorLogEntry{
			CampaignID: task.CampaignID,
			TaskID:     task.ID,
			Channel:    task.Channel,
			Recipient:  task.Recipient,
			Kind:       model.ErrorPermanent,
			Message:    fmt.Sprintf("provider event: %s", eventType),
		}); err != nil {
			s.log.Error("suppression write failed",
				zap.String("task_id", task.ID), zap.Error(err))
		}
	}

	s.log.Info("delivery event recorded",
		zap.String("task_id", task.ID),
		zap.Int64("campaign_id", task.CampaignID),
		zap.String("type", eventType.String()))
	return nil
}
