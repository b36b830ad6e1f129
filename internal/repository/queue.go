package repository

import (
	"context"
	"strings"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/util"
	"github.com/jmoiron/sqlx"
)

// StatusCount is one aggregation bucket of campaign_queue.
type StatusCount struct {
	Channel model.Channel    `db:"channel"`
	Status  model.TaskStatus `db:"status"`
	Count   int64            `db:"cnt"`
}

// QueueRepository is the durable task store. Claim is the single source of
// mutual-exclusion truth across worker instances.
type QueueRepository interface {
	InsertBatch(ctx context.Context, tx *sqlx.Tx, tasks []model.QueueTask) (int64, error)
	Claim(ctx context.Context, limit int, now time.Time) ([]model.QueueTask, error)
	MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) (bool, error)
	Requeue(ctx context.Context, id string, attempts int, nextAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id string, attempts int, errMsg string) error
	CancelTask(ctx context.Context, id string) error
	CancelPending(ctx context.Context, campaignID int64) (int64, error)
	SweepStale(ctx context.Context, olderThan time.Time) (int64, error)
	StatusCounts(ctx context.Context, campaignID int64) ([]StatusCount, error)
	CountNonTerminal(ctx context.Context, campaignID int64) (int64, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.QueueTask, error)
}

type QueueRepositoryImpl struct {
	db *sqlx.DB
}

func NewQueueRepository(db *sqlx.DB) *QueueRepositoryImpl {
	return &QueueRepositoryImpl{db: db}
}

var _ QueueRepository = (*QueueRepositoryImpl)(nil)

func (r *QueueRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// InsertBatch writes pending tasks. INSERT IGNORE against the unique
// (campaign_id, message_id, recipient) key makes re-enqueues of an overlapping
// recipient set a no-op for rows that already exist. Returns rows inserted.
func (r *QueueRepositoryImpl) InsertBatch(ctx context.Context, tx *sqlx.Tx, tasks []model.QueueTask) (int64, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(tasks)*10)

	sb.WriteString(`INSERT IGNORE INTO campaign_queue
		(id, campaign_id, message_id, channel, recipient, recipient_data,
		 priority, scheduled_for, status, attempts, max_attempts, created_at, updated_at)
		VALUES `)
	for i, t := range tasks {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, NOW(), NOW())")
		args = append(args, t.ID, t.CampaignID, t.MessageID, t.Channel.String(),
			t.Recipient, t.RecipientData, t.Priority, t.ScheduledFor, t.MaxAttempts)
	}

	var inserted int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		inserted, err = res.RowsAffected()
		return err
	})
	return inserted, err
}

// Claim atomically flips up to limit due pending rows to processing and
// returns them. The conditional UPDATE with a fresh claim token is the
// compare-and-swap that keeps concurrent workers from double-claiming; the
// follow-up SELECT only reads back what this worker won.
func (r *QueueRepositoryImpl) Claim(ctx context.Context, limit int, now time.Time) ([]model.QueueTask, error) {
	if limit <= 0 {
		return nil, nil
	}

	token := util.NewID()

	const claimQ = `
		UPDATE campaign_queue
		   SET status = 'processing', claim_token = ?, claimed_at = ?, updated_at = NOW()
		 WHERE status = 'pending' AND scheduled_for <= ?
		 ORDER BY priority ASC, scheduled_for ASC
		 LIMIT ?
	`
	res, err := r.db.ExecContext(ctx, claimQ, token, now, now, limit)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return nil, err
	}

	const selectQ = `
		SELECT id, campaign_id, message_id, channel, recipient, recipient_data,
		       priority, scheduled_for, status, attempts, max_attempts,
		       error_message, provider_message_id, claimed_at, sent_at,
		       created_at, updated_at
		  FROM campaign_queue
		 WHERE claim_token = ?
		 ORDER BY priority ASC, scheduled_for ASC
	`
	var tasks []model.QueueTask
	if err := r.db.SelectContext(ctx, &tasks, selectQ, token); err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkSent reports whether the row was actually moved to sent: a false return
// means the janitor already swept the claim back to pending mid-send and the
// redelivery owns the bookkeeping.
func (r *QueueRepositoryImpl) MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_queue
		   SET status = 'sent', provider_message_id = ?, sent_at = ?, error_message = '', updated_at = NOW()
		 WHERE id = ? AND status = 'processing'
	`, providerMessageID, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Requeue returns a transiently-failed task to pending with its backoff time.
func (r *QueueRepositoryImpl) Requeue(ctx context.Context, id string, attempts int, nextAt time.Time, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_queue
		   SET status = 'pending', attempts = ?, scheduled_for = ?, error_message = ?,
		       claim_token = NULL, claimed_at = NULL, updated_at = NOW()
		 WHERE id = ? AND status = 'processing'
	`, attempts, nextAt, errMsg, id)
	return err
}

func (r *QueueRepositoryImpl) MarkFailed(ctx context.Context, id string, attempts int, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_queue
		   SET status = 'failed', attempts = ?, error_message = ?, updated_at = NOW()
		 WHERE id = ? AND status = 'processing'
	`, attempts, errMsg, id)
	return err
}

// CancelTask marks a claimed row cancelled (campaign cancelled mid-flight).
func (r *QueueRepositoryImpl) CancelTask(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_queue
		   SET status = 'cancelled', updated_at = NOW()
		 WHERE id = ? AND status = 'processing'
	`, id)
	return err
}

// CancelPending sweeps all still-pending rows of a cancelled campaign.
func (r *QueueRepositoryImpl) CancelPending(ctx context.Context, campaignID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_queue
		   SET status = 'cancelled', updated_at = NOW()
		 WHERE campaign_id = ? AND status = 'pending'
	`, campaignID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SweepStale returns rows stuck in processing (worker died mid-send) to
// pending so no task is lost. Sends are at-least-once because of this.
func (r *QueueRepositoryImpl) SweepStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_queue
		   SET status = 'pending', claim_token = NULL, claimed_at = NULL, updated_at = NOW()
		 WHERE status = 'processing' AND claimed_at < ?
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *QueueRepositoryImpl) StatusCounts(ctx context.Context, campaignID int64) ([]StatusCount, error) {
	var out []StatusCount
	err := r.db.SelectContext(ctx, &out, `
		SELECT channel, status, COUNT(*) AS cnt
		  FROM campaign_queue
		 WHERE campaign_id = ?
		 GROUP BY channel, status
	`, campaignID)
	return out, err
}

func (r *QueueRepositoryImpl) CountNonTerminal(ctx context.Context, campaignID int64) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		  FROM campaign_queue
		 WHERE campaign_id = ? AND status IN ('pending', 'processing')
	`, campaignID)
	return n, err
}

func (r *QueueRepositoryImpl) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.QueueTask, error) {
	var t model.QueueTask
	err := r.db.GetContext(ctx, &t, `
		SELECT id, campaign_id, message_id, channel, recipient, recipient_data,
		       priority, scheduled_for, status, attempts, max_attempts,
		       error_message, provider_message_id, claimed_at, sent_at,
		       created_at, updated_at
		  FROM campaign_queue
		 WHERE provider_message_id = ? LIMIT 1
	`, providerMessageID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
