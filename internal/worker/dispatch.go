package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blossomhq/campaign-engine/internal/adapter"
	"github.com/blossomhq/campaign-engine/internal/metrics"
	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/util"
	"go.uber.org/zap"
)

// Store contracts the dispatcher needs, satisfied by the sqlx repositories.

type TaskStore interface {
	Claim(ctx context.Context, limit int, now time.Time) ([]model.QueueTask, error)
	MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) (bool, error)
	Requeue(ctx context.Context, id string, attempts int, nextAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id string, attempts int, errMsg string) error
	CancelTask(ctx context.Context, id string) error
	CancelPending(ctx context.Context, campaignID int64) (int64, error)
	SweepStale(ctx context.Context, olderThan time.Time) (int64, error)
}

type CampaignStore interface {
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	ListByStatus(ctx context.Context, statuses ...model.CampaignStatus) ([]model.Campaign, error)
	IncrementSent(ctx context.Context, id int64, delta int64) error
	IncrementFailed(ctx context.Context, id int64, delta int64) error
}

type MessageStore interface {
	Get(ctx context.Context, id int64) (*model.CampaignMessage, error)
}

type DeliveryLog interface {
	Insert(ctx context.Context, ev model.DeliveryEvent) error
}

type ErrorLog interface {
	Insert(ctx context.Context, e model.ErrorLogEntry) error
}

// Sender routes a channel to its adapter; *adapter.Registry satisfies it.
type Sender interface {
	For(ch model.Channel) (adapter.Adapter, error)
}

// Dispatcher is the polling worker: claims due queue rows, sends them through
// channel adapters, and drives the task state machine. Instances are
// stateless; any number may run against the same queue store, coordinated
// only by the store's atomic claim.
type Dispatcher struct {
	Tasks     TaskStore
	Campaigns CampaignStore
	Messages  MessageStore
	Delivery  DeliveryLog
	Errors    ErrorLog
	Send      Sender
	Log       *zap.Logger

	PollInterval    time.Duration
	ClaimBatchSize  int
	Concurrency     int
	SendTimeout     time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	StaleClaimAfter time.Duration

	Now func() time.Time
}

// NewDispatcher builds a worker with sane defaults.
func NewDispatcher(
	tasks TaskStore,
	campaigns CampaignStore,
	messages MessageStore,
	delivery DeliveryLog,
	errs ErrorLog,
	send Sender,
	log *zap.Logger,
) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		Tasks:     tasks,
		Campaigns: campaigns,
		Messages:  messages,
		Delivery:  delivery,
		Errors:    errs,
		Send:      send,
		Log:       log,

		PollInterval:    30 * time.Second,
		ClaimBatchSize:  100,
		Concurrency:     16,
		SendTimeout:     10 * time.Second,
		BackoffBase:     2 * time.Minute,
		BackoffCap:      time.Hour,
		StaleClaimAfter: 15 * time.Minute,

		Now: time.Now,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.PollInterval <= 0 {
		d.PollInterval = 30 * time.Second
	}

	tick := time.NewTicker(d.PollInterval)
	defer tick.Stop()

	for {
		d.Cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Cycle runs one poll iteration: janitor, claim, dispatch.
func (d *Dispatcher) Cycle(ctx context.Context) {
	now := d.Now()

	d.janitor(ctx, now)

	claimed, err := d.Tasks.Claim(ctx, d.ClaimBatchSize, now)
	if err != nil {
		d.Log.Error("claim failed", zap.Error(err))
		return
	}
	metrics.ClaimedPerCycle.Observe(float64(len(claimed)))
	if len(claimed) == 0 {
		return
	}

	// campaign status and message content are stable within a cycle
	statuses := make(map[int64]model.CampaignStatus)
	messages := make(map[int64]*model.CampaignMessage)

	sem := make(chan struct{}, d.concurrency())
	var wg sync.WaitGroup
	for _, task := range claimed {
		status, msg, err := d.resolve(ctx, task, statuses, messages)
		if err != nil {
			d.Log.Error("resolve task context failed", zap.String("task_id", task.ID), zap.Error(err))
			d.requeueUnchanged(ctx, task)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(task model.QueueTask, status model.CampaignStatus, msg *model.CampaignMessage) {
			defer func() {
				<-sem
				wg.Done()
			}()
			d.processOne(ctx, task, status, msg)
		}(task, status, msg)
	}
	wg.Wait()
}

func (d *Dispatcher) concurrency() int {
	if d.Concurrency <= 0 {
		return 16
	}
	return d.Concurrency
}

func (d *Dispatcher) resolve(ctx context.Context, task model.QueueTask,
	statuses map[int64]model.CampaignStatus, messages map[int64]*model.CampaignMessage) (model.CampaignStatus, *model.CampaignMessage, error) {

	status, ok := statuses[task.CampaignID]
	if !ok {
		c, err := d.Campaigns.Get(ctx, task.CampaignID)
		if err != nil {
			return "", nil, err
		}
		status = c.Status
		statuses[task.CampaignID] = status
	}

	msg, ok := messages[task.MessageID]
	if !ok {
		m, err := d.Messages.Get(ctx, task.MessageID)
		if err != nil {
			return "", nil, err
		}
		msg = m
		messages[task.MessageID] = msg
	}

	return status, msg, nil
}

// janitor returns stale claims to pending and cancels still-pending rows of
// cancelled campaigns, bounding in-flight work after a cancel request.
func (d *Dispatcher) janitor(ctx context.Context, now time.Time) {
	if d.StaleClaimAfter > 0 {
		swept, err := d.Tasks.SweepStale(ctx, now.Add(-d.StaleClaimAfter))
		if err != nil {
			d.Log.Error("stale sweep failed", zap.Error(err))
		} else if swept > 0 {
			metrics.StaleSweptTotal.Add(float64(swept))
			d.Log.Warn("returned stale claims to pending", zap.Int64("count", swept))
		}
	}

	cancelled, err := d.Campaigns.ListByStatus(ctx, model.CampaignCancelled)
	if err != nil {
		d.Log.Error("list cancelled campaigns failed", zap.Error(err))
		return
	}
	for _, c := range cancelled {
		n, err := d.Tasks.CancelPending(ctx, c.ID)
		if err != nil {
			d.Log.Error("cancel pending failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
			continue
		}
		if n > 0 {
			metrics.TasksTotal.WithLabelValues("cancelled", "all").Add(float64(n))
			d.Log.Info("cancelled pending tasks", zap.Int64("campaign_id", c.ID), zap.Int64("count", n))
		}
	}
}

func (d *Dispatcher) processOne(ctx context.Context, task model.QueueTask, status model.CampaignStatus, msg *model.CampaignMessage) {
	switch status {
	case model.CampaignCancelled:
		if err := d.Tasks.CancelTask(ctx, task.ID); err != nil {
			d.Log.Error("cancel claimed task failed", zap.String("task_id", task.ID), zap.Error(err))
		}
		metrics.TasksTotal.WithLabelValues("cancelled", task.Channel.String()).Inc()
		return
	case model.CampaignPaused:
		// hand the row back without consuming an attempt
		d.requeueUnchanged(ctx, task)
		return
	}

	content, err := Render(msg, task.RecipientData)
	if err != nil {
		// unparseable recipient data cannot be fixed by retrying
		d.fail(ctx, task, task.Attempts+1, model.ErrorPermanent, fmt.Sprintf("render: %v", err))
		return
	}

	ad, err := d.Send.For(task.Channel)
	if err != nil {
		// misconfiguration: no adapter for the channel; retry later in case
		// the fleet is mid-rollout
		d.retryOrFail(ctx, task, err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout())
	providerID, err := ad.Send(sendCtx, task.Recipient, content, map[string]string{
		"task_id":     task.ID,
		"campaign_id": fmt.Sprint(task.CampaignID),
	})
	cancel()

	if err == nil {
		d.succeed(ctx, task, providerID)
		return
	}

	if adapter.Classify(err) == adapter.Permanent {
		d.fail(ctx, task, task.Attempts+1, model.ErrorPermanent, err.Error())
		return
	}
	d.retryOrFail(ctx, task, err)
}

func (d *Dispatcher) succeed(ctx context.Context, task model.QueueTask, providerID string) {
	now := d.Now()
	marked, err := d.Tasks.MarkSent(ctx, task.ID, providerID, now)
	if err != nil {
		d.Log.Error("mark sent failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if !marked {
		// the janitor swept this claim back to pending mid-send; whoever
		// redelivers the row records the send, not this worker
		d.Log.Warn("claim lost before mark sent", zap.String("task_id", task.ID))
		return
	}
	if err := d.Delivery.Insert(ctx, model.DeliveryEvent{
		ID:         util.NewID(),
		TaskID:     task.ID,
		CampaignID: task.CampaignID,
		Channel:    task.Channel,
		Type:       model.EventSent,
		OccurredAt: now,
	}); err != nil {
		d.Log.Error("delivery log write failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	if err := d.Campaigns.IncrementSent(ctx, task.CampaignID, 1); err != nil {
		d.Log.Error("increment sent failed", zap.Int64("campaign_id", task.CampaignID), zap.Error(err))
	}
	metrics.TasksTotal.WithLabelValues("sent", task.Channel.String()).Inc()
}

// retryOrFail handles a transient failure: requeue with backoff while
// attempts remain, otherwise fail terminally.
func (d *Dispatcher) retryOrFail(ctx context.Context, task model.QueueTask, sendErr error) {
	attempts := task.Attempts + 1
	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}

	if attempts < maxAttempts {
		nextAt := d.Now().Add(d.backoff(attempts))
		if err := d.Tasks.Requeue(ctx, task.ID, attempts, nextAt, sendErr.Error()); err != nil {
			d.Log.Error("requeue failed", zap.String("task_id", task.ID), zap.Error(err))
			return
		}
		metrics.TasksTotal.WithLabelValues("retried", task.Channel.String()).Inc()
		d.Log.Info("transient send failure, requeued",
			zap.String("task_id", task.ID),
			zap.Int("attempts", attempts),
			zap.Time("next_at", nextAt),
			zap.Error(sendErr))
		return
	}

	d.fail(ctx, task, attempts, model.ErrorTransient, sendErr.Error())
}

func (d *Dispatcher) fail(ctx context.Context, task model.QueueTask, attempts int, kind model.ErrorKind, msg string) {
	if err := d.Tasks.MarkFailed(ctx, task.ID, attempts, msg); err != nil {
		d.Log.Error("mark failed failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if err := d.Errors.Insert(ctx, model.ErrorLogEntry{
		CampaignID: task.CampaignID,
		TaskID:     task.ID,
		Channel:    task.Channel,
		Recipient:  task.Recipient,
		Kind:       kind,
		Message:    msg,
	}); err != nil {
		d.Log.Error("error log write failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	if err := d.Campaigns.IncrementFailed(ctx, task.CampaignID, 1); err != nil {
		d.Log.Error("increment failed failed", zap.Int64("campaign_id", task.CampaignID), zap.Error(err))
	}
	metrics.TasksTotal.WithLabelValues("failed", task.Channel.String()).Inc()
	d.Log.Warn("task failed terminally",
		zap.String("task_id", task.ID),
		zap.String("kind", kind.String()),
		zap.Int("attempts", attempts),
		zap.String("reason", msg))
}

// requeueUnchanged gives a claimed row back to the queue without touching its
// attempt counter (paused campaign, unresolvable context).
func (d *Dispatcher) requeueUnchanged(ctx context.Context, task model.QueueTask) {
	nextAt := d.Now().Add(d.PollInterval)
	if d.PollInterval <= 0 {
		nextAt = d.Now().Add(30 * time.Second)
	}
	if err := d.Tasks.Requeue(ctx, task.ID, task.Attempts, nextAt, task.ErrorMessage); err != nil {
		d.Log.Error("requeue unchanged failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (d *Dispatcher) sendTimeout() time.Duration {
	if d.SendTimeout <= 0 {
		return 10 * time.Second
	}
	return d.SendTimeout
}

// backoff is exponential in the attempt count: base * 2^(attempts-1), capped.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	base := d.BackoffBase
	if base <= 0 {
		base = 2 * time.Minute
	}
	cap := d.BackoffCap
	if cap <= 0 {
		cap = time.Hour
	}

	b := base
	for i := 1; i < attempts; i++ {
		b *= 2
		if b >= cap {
			return cap
		}
	}
	if b > cap {
		return cap
	}
	return b
}
