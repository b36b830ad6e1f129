package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/jmoiron/sqlx"
)

var ErrCampaignNotFound = errors.New("campaign not found")

// CounterTotals is the denormalized counter set mirrored onto a campaign row.
type CounterTotals struct {
	Sent      int64
	Delivered int64
	Opened    int64
	Clicked   int64
	Failed    int64
}

type CampaignRepository interface {
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	ListByStatus(ctx context.Context, statuses ...model.CampaignStatus) ([]model.Campaign, error)
	ListSettledSince(ctx context.Context, since time.Time) ([]model.Campaign, error)
	UpdateStatus(ctx context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
	SetScheduledAt(ctx context.Context, id int64, at time.Time) error
	MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error)
	IncrementSent(ctx context.Context, id int64, delta int64) error
	IncrementFailed(ctx context.Context, id int64, delta int64) error
	OverwriteCounters(ctx context.Context, id int64, totals CounterTotals) error
}

type CampaignRepositoryImpl struct {
	db *sqlx.DB
}

func NewCampaignRepository(db *sqlx.DB) *CampaignRepositoryImpl {
	return &CampaignRepositoryImpl{db: db}
}

var _ CampaignRepository = (*CampaignRepositoryImpl)(nil)

const campaignColumns = `
	id, organization_id, name, status, channels, audience,
	scheduled_at, sent_at, completed_at,
	sent_count, delivered_count, opened_count, clicked_count, failed_count,
	created_at, updated_at`

func (r *CampaignRepositoryImpl) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.GetContext(ctx, &c,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepositoryImpl) ListByStatus(ctx context.Context, statuses ...model.CampaignStatus) ([]model.Campaign, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	raw := make([]string, 0, len(statuses))
	for _, s := range statuses {
		raw = append(raw, s.String())
	}
	query, args, err := sqlx.In(
		`SELECT `+campaignColumns+` FROM campaigns WHERE status IN (?) ORDER BY id`, raw)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var out []model.Campaign
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSettledSince returns campaigns that reached a terminal status within the
// window. Provider callbacks keep arriving after completion, so aggregation
// must keep folding them into results for a while.
func (r *CampaignRepositoryImpl) ListSettledSince(ctx context.Context, since time.Time) ([]model.Campaign, error) {
	var out []model.Campaign
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+campaignColumns+`
		  FROM campaigns
		 WHERE (status = 'completed' AND completed_at >= ?)
		    OR (status = 'cancelled' AND updated_at >= ?)
		 ORDER BY id
	`, since, since)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus moves a campaign to a new status only when its current status
// is in the allowed set. Returns false when the guard did not match, so a
// cancel racing a completion never resurrects a terminal campaign.
func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	raw := make([]string, 0, len(from))
	for _, s := range from {
		raw = append(raw, s.String())
	}
	query, args, err := sqlx.In(
		`UPDATE campaigns SET status = ?, updated_at = NOW() WHERE id = ? AND status IN (?)`,
		to.String(), id, raw)
	if err != nil {
		return false, err
	}
	query = r.db.Rebind(query)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRepositoryImpl) SetScheduledAt(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET scheduled_at = ?, updated_at = NOW() WHERE id = ?
	`, at, id)
	return err
}

func (r *CampaignRepositoryImpl) MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		   SET status = 'completed', completed_at = ?, updated_at = NOW()
		 WHERE id = ? AND status IN ('active', 'scheduled')
	`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRepositoryImpl) IncrementSent(ctx context.Context, id int64, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		   SET sent_count = sent_count + ?, sent_at = COALESCE(sent_at, NOW()), updated_at = NOW()
		 WHERE id = ?
	`, delta, id)
	return err
}

func (r *CampaignRepositoryImpl) IncrementFailed(ctx context.Context, id int64, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET failed_count = failed_count + ?, updated_at = NOW() WHERE id = ?
	`, delta, id)
	return err
}

// OverwriteCounters replaces the incrementally-maintained counters with the
// recomputed totals; the aggregation is authoritative on drift.
func (r *CampaignRepositoryImpl) OverwriteCounters(ctx context.Context, id int64, t CounterTotals) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		   SET sent_count = ?, delivered_count = ?, opened_count = ?,
		       clicked_count = ?, failed_count = ?, updated_at = NOW()
		 WHERE id = ?
	`, t.Sent, t.Delivered, t.Opened, t.Clicked, t.Failed, id)
	return err
}
