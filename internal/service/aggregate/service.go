package aggregate

import (
	"context"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/repository"
	"go.uber.org/zap"
)

type CampaignStore interface {
	ListByStatus(ctx context.Context, statuses ...model.CampaignStatus) ([]model.Campaign, error)
	ListSettledSince(ctx context.Context, since time.Time) ([]model.Campaign, error)
	MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error)
	OverwriteCounters(ctx context.Context, id int64, totals repository.CounterTotals) error
}

type QueueStats interface {
	StatusCounts(ctx context.Context, campaignID int64) ([]repository.StatusCount, error)
	CountNonTerminal(ctx context.Context, campaignID int64) (int64, error)
}

type EventStats interface {
	EventCounts(ctx context.Context, campaignID int64) ([]repository.EventCount, error)
}

type ResultStore interface {
	Upsert(ctx context.Context, res model.CampaignResult) error
}

type AuditStore interface {
	Insert(ctx context.Context, e model.AuditLogEntry) error
}

// Service recomputes per-channel campaign results from the queue and the
// delivery log, and completes campaigns whose queues have drained. Everything
// it writes is derived, so a crashed run just recomputes on the next pass.
type Service struct {
	campaigns CampaignStore
	queue     QueueStats
	events    EventStats
	results   ResultStore
	audit     AuditStore
	log       *zap.Logger

	// SettledWindow keeps recently completed and cancelled campaigns in the
	// aggregation pass so late delivery callbacks still update their results.
	SettledWindow time.Duration

	Now func() time.Time
}

func New(campaigns CampaignStore, queue QueueStats, events EventStats,
	results ResultStore, audit AuditStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		campaigns: campaigns,
		queue:     queue,
		events:    events,
		results:   results,
		audit:     audit,
		log:       log,

		SettledWindow: 48 * time.Hour,

		Now: time.Now,
	}
}

// Run recomputes on interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if err := s.Pass(ctx); err != nil {
			s.log.Error("aggregation pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Pass aggregates every campaign with live dispatch activity, plus recently
// settled campaigns whose engagement callbacks are still trickling in.
func (s *Service) Pass(ctx context.Context) error {
	campaigns, err := s.campaigns.ListByStatus(ctx, model.CampaignActive, model.CampaignScheduled, model.CampaignPaused)
	if err != nil {
		return err
	}
	if s.SettledWindow > 0 {
		settled, err := s.campaigns.ListSettledSince(ctx, s.Now().Add(-s.SettledWindow))
		if err != nil {
			return err
		}
		campaigns = append(campaigns, settled...)
	}
	for _, c := range campaigns {
		if err := s.Aggregate(ctx, c.ID); err != nil {
			s.log.Error("aggregate campaign failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
		}
	}
	return nil
}

// Aggregate recomputes one campaign's per-channel results, overwrites its
// denormalized counters, and completes it when no non-terminal tasks remain.
func (s *Service) Aggregate(ctx context.Context, campaignID int64) error {
	statusCounts, err := s.queue.StatusCounts(ctx, campaignID)
	if err != nil {
		return err
	}
	eventCounts, err := s.events.EventCounts(ctx, campaignID)
	if err != nil {
		return err
	}

	perChannel := buildResults(campaignID, statusCounts, eventCounts)
	var totals repository.CounterTotals
	for _, res := range perChannel {
		if err := s.results.Upsert(ctx, res); err != nil {
			return err
		}
		totals.Sent += res.TotalSent
		totals.Delivered += res.TotalDelivered
		totals.Opened += res.TotalOpened
		totals.Clicked += res.TotalClicked
		totals.Failed += res.TotalFailed
	}
	if err := s.campaigns.OverwriteCounters(ctx, campaignID, totals); err != nil {
		return err
	}

	remaining, err := s.queue.CountNonTerminal(ctx, campaignID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	completed, err := s.campaigns.MarkCompleted(ctx, campaignID, s.Now())
	if err != nil {
		return err
	}
	if !completed {
		return nil
	}

	if err := s.audit.Insert(ctx, model.AuditLogEntry{
		CampaignID: campaignID,
		Action:     "completed",
		Detail:     "queue drained",
	}); err != nil {
		s.log.Warn("audit write failed", zap.Int64("campaign_id", campaignID), zap.Error(err))
	}
	s.log.Info("campaign completed",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("sent", totals.Sent),
		zap.Int64("failed", totals.Failed))
	return nil
}

// buildResults folds queue status counts and distinct-task event counts into
// one CampaignResult per channel. The queue is the source of truth for
// sent/failed; provider events cover engagement.
func buildResults(campaignID int64, statusCounts []repository.StatusCount, eventCounts []repository.EventCount) []model.CampaignResult {
	byChannel := map[model.Channel]*model.CampaignResult{}
	get := func(ch model.Channel) *model.CampaignResult {
		if r, ok := byChannel[ch]; ok {
			return r
		}
		r := &model.CampaignResult{CampaignID: campaignID, Channel: ch}
		byChannel[ch] = r
		return r
	}

	for _, sc := range statusCounts {
		r := get(sc.Channel)
		switch sc.Status {
		case model.TaskSent:
			r.TotalSent += sc.Count
		case model.TaskFailed:
			r.TotalFailed += sc.Count
		}
	}

	for _, ec := range eventCounts {
		r := get(ec.Channel)
		switch ec.Type {
		case model.EventDelivered:
			r.TotalDelivered += ec.Count
		case model.EventOpened:
			r.TotalOpened += ec.Count
		case model.EventClicked:
			r.TotalClicked += ec.Count
		case model.EventConverted:
			r.TotalConverted += ec.Count
		case model.EventBounced:
			r.BounceCount += ec.Count
		case model.EventUnsubscribed:
			r.UnsubscribeCount += ec.Count
		}
	}

	out := make([]model.CampaignResult, 0, len(byChannel))
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelSMS, model.ChannelPush} {
		if r, ok := byChannel[ch]; ok {
			out = append(out, *r)
		}
	}
	return out
}
