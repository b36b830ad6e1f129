package enqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/blossomhq/campaign-engine/internal/metrics"
	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/repository"
	"github.com/blossomhq/campaign-engine/internal/schedule"
	"github.com/blossomhq/campaign-engine/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var (
	ErrNotActivatable  = errors.New("campaign cannot be activated from its current status")
	ErrNotAppendable   = errors.New("campaign is not accepting new recipients")
	ErrMessageMismatch = errors.New("message does not belong to campaign")
	ErrNoRecipients    = errors.New("no recipients to enqueue")
)

// Narrow store contracts, satisfied by the sqlx repositories. Declared here
// so tests can fake exactly what the enqueuer touches.
type CampaignStore interface {
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
	SetScheduledAt(ctx context.Context, id int64, at time.Time) error
}

type ScheduleStore interface {
	GetByCampaign(ctx context.Context, campaignID int64) (*model.CampaignSchedule, error)
}

type MessageStore interface {
	Get(ctx context.Context, id int64) (*model.CampaignMessage, error)
}

type TaskStore interface {
	InsertBatch(ctx context.Context, tx *sqlx.Tx, tasks []model.QueueTask) (int64, error)
}

type SuppressionStore interface {
	IsSuppressed(ctx context.Context, recipient string, ch model.Channel) (bool, error)
}

type AuditStore interface {
	Insert(ctx context.Context, e model.AuditLogEntry) error
}

// Service expands a campaign + message + resolved recipient list into
// campaign_queue rows, spacing batches per the schedule policy.
type Service struct {
	campaigns CampaignStore
	schedules ScheduleStore
	messages  MessageStore
	queue     TaskStore
	errorLog  SuppressionStore
	audit     AuditStore
	policy    schedule.Policy
	log       *zap.Logger
}

func New(
	campaigns CampaignStore,
	schedules ScheduleStore,
	messages MessageStore,
	queue TaskStore,
	errorLog SuppressionStore,
	audit AuditStore,
	policy schedule.Policy,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		campaigns: campaigns,
		schedules: schedules,
		messages:  messages,
		queue:     queue,
		errorLog:  errorLog,
		audit:     audit,
		policy:    policy,
		log:       log,
	}
}

// Enqueue expands recipients into queue rows starting from now.
func (s *Service) Enqueue(ctx context.Context, campaignID, messageID int64, recipients []model.Recipient) (int, error) {
	return s.EnqueueAt(ctx, campaignID, messageID, recipients, s.policy.Now())
}

// EnqueueAt is Enqueue with an explicit lower bound on dispatch time, used by
// automations that fire with a configured delay.
func (s *Service) EnqueueAt(ctx context.Context, campaignID, messageID int64, recipients []model.Recipient, notBefore time.Time) (int, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.Status != model.CampaignDraft && campaign.Status != model.CampaignScheduled {
		return 0, fmt.Errorf("%w: campaign %d is %s", ErrNotActivatable, campaignID, campaign.Status)
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return 0, err
	}
	if msg.CampaignID != campaignID {
		return 0, fmt.Errorf("%w: message %d, campaign %d", ErrMessageMismatch, messageID, campaignID)
	}

	cfg, err := s.scheduleFor(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	// a malformed schedule rejects activation; it must never become a
	// per-message failure
	if err := s.policy.Validate(cfg); err != nil {
		return 0, fmt.Errorf("schedule config: %w", err)
	}

	anchor, err := s.policy.NextValidInstant(cfg, 0, notBefore)
	if err != nil {
		return 0, fmt.Errorf("schedule config: %w", err)
	}

	tasks, err := s.buildTasks(ctx, campaignID, msg, cfg, recipients, anchor)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, ErrNoRecipients
	}

	inserted, err := s.queue.InsertBatch(ctx, nil, tasks)
	if err != nil {
		return 0, err
	}
	metrics.TasksTotal.WithLabelValues("enqueued", msg.Channel.String()).Add(float64(inserted))

	target := model.CampaignScheduled
	if !anchor.After(s.policy.Now()) {
		target = model.CampaignActive
	}
	if _, err := s.campaigns.UpdateStatus(ctx, campaignID,
		[]model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled}, target); err != nil {
		return 0, err
	}
	if err := s.campaigns.SetScheduledAt(ctx, campaignID, anchor); err != nil {
		return 0, err
	}

	if err := s.audit.Insert(ctx, model.AuditLogEntry{
		CampaignID: campaignID,
		Action:     "enqueued",
		Detail:     fmt.Sprintf("message=%d channel=%s tasks=%d anchor=%s", messageID, msg.Channel, inserted, anchor.UTC().Format(time.RFC3339)),
	}); err != nil {
		s.log.Warn("audit write failed", zap.Int64("campaign_id", campaignID), zap.Error(err))
	}

	s.log.Info("campaign enqueued",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("message_id", messageID),
		zap.Int64("inserted", inserted),
		zap.String("status", target.String()))

	return int(inserted), nil
}

// Append inserts queue rows for additional recipients of a campaign that is
// already scheduled or active. Automation triggers use it to feed long-lived
// campaigns one recipient at a time; campaign status is left unchanged.
func (s *Service) Append(ctx context.Context, campaignID, messageID int64, recipients []model.Recipient, notBefore time.Time) (int, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.Status != model.CampaignScheduled && campaign.Status != model.CampaignActive {
		return 0, fmt.Errorf("%w: campaign %d is %s", ErrNotAppendable, campaignID, campaign.Status)
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return 0, err
	}
	if msg.CampaignID != campaignID {
		return 0, fmt.Errorf("%w: message %d, campaign %d", ErrMessageMismatch, messageID, campaignID)
	}

	cfg, err := s.scheduleFor(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if err := s.policy.Validate(cfg); err != nil {
		return 0, fmt.Errorf("schedule config: %w", err)
	}

	anchor := notBefore
	if now := s.policy.Now(); anchor.Before(now) {
		anchor = now
	}
	anchor, err = s.policy.ApplyQuietHours(cfg, anchor)
	if err != nil {
		return 0, fmt.Errorf("schedule config: %w", err)
	}

	tasks, err := s.buildTasks(ctx, campaignID, msg, cfg, recipients, anchor)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, ErrNoRecipients
	}

	inserted, err := s.queue.InsertBatch(ctx, nil, tasks)
	if err != nil {
		return 0, err
	}
	metrics.TasksTotal.WithLabelValues("enqueued", msg.Channel.String()).Add(float64(inserted))

	s.log.Info("recipients appended",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("message_id", messageID),
		zap.Int64("inserted", inserted))
	return int(inserted), nil
}

func (s *Service) scheduleFor(ctx context.Context, campaignID int64) (model.CampaignSchedule, error) {
	cfg, err := s.schedules.GetByCampaign(ctx, campaignID)
	if errors.Is(err, repository.ErrScheduleNotFound) {
		return model.DefaultSchedule(campaignID), nil
	}
	if err != nil {
		return model.CampaignSchedule{}, err
	}
	return *cfg, nil
}

// buildTasks splits recipients into batches and assigns each batch its
// quiet-hour-adjusted dispatch instant. Batch k starts at
// anchor + k*batchIntervalMinutes; a batch landing in quiet hours is deferred
// individually, without moving the others.
func (s *Service) buildTasks(ctx context.Context, campaignID int64, msg *model.CampaignMessage,
	cfg model.CampaignSchedule, recipients []model.Recipient, anchor time.Time) ([]model.QueueTask, error) {

	ordered := make([]model.Recipient, len(recipients))
	copy(ordered, recipients)
	if anyPriority(ordered) {
		sort.SliceStable(ordered, func(i, j int) bool {
			return priorityOf(ordered[i]) < priorityOf(ordered[j])
		})
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(ordered) // single batch
	}
	interval := time.Duration(cfg.BatchIntervalMinutes) * time.Minute

	tasks := make([]model.QueueTask, 0, len(ordered))
	seen := make(map[string]struct{}, len(ordered))
	idx := 0
	for _, rcpt := range ordered {
		contact := util.NormalizeContact(rcpt.Contact)
		if contact == "" {
			continue
		}
		if _, dup := seen[contact]; dup {
			continue
		}
		seen[contact] = struct{}{}

		suppressed, err := s.errorLog.IsSuppressed(ctx, contact, msg.Channel)
		if err != nil {
			return nil, err
		}
		if suppressed {
			s.log.Debug("recipient suppressed",
				zap.Int64("campaign_id", campaignID), zap.String("recipient", contact))
			continue
		}

		batch := idx / batchSize
		scheduledFor, err := s.policy.ApplyQuietHours(cfg, anchor.Add(time.Duration(batch)*interval))
		if err != nil {
			return nil, err
		}

		data := ""
		if len(rcpt.Data) > 0 {
			b, err := json.Marshal(rcpt.Data)
			if err != nil {
				return nil, fmt.Errorf("marshal recipient data: %w", err)
			}
			data = string(b)
		}

		tasks = append(tasks, model.QueueTask{
			ID:            util.NewID(),
			CampaignID:    campaignID,
			MessageID:     msg.ID,
			Channel:       msg.Channel,
			Recipient:     contact,
			RecipientData: data,
			Priority:      priorityOf(rcpt),
			ScheduledFor:  scheduledFor,
			Status:        model.TaskPending,
			MaxAttempts:   model.DefaultMaxAttempts,
		})
		idx++
	}
	return tasks, nil
}

func anyPriority(rs []model.Recipient) bool {
	for _, r := range rs {
		if r.Priority != 0 {
			return true
		}
	}
	return false
}

func priorityOf(r model.Recipient) int {
	if r.Priority > 0 {
		return r.Priority
	}
	return model.DefaultTaskPriority
}
