package repository

import (
	"context"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHEventsRepository reads engagement events from ClickHouse, where the
// delivery log is mirrored for reporting. MySQL stays the aggregation source
// of truth; this surface only serves high-volume listing queries.
type CHEventsRepository interface {
	ListByCampaign(ctx context.Context, campaignID int64, eventType model.EventType, limit, offset int) ([]model.DeliveryEvent, error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEventsRepository(ch *sqlx.DB) CHEventsRepository {
	return &chEventsRepository{ch: ch}
}

func (r *chEventsRepository) ListByCampaign(ctx context.Context, campaignID int64, eventType model.EventType, limit, offset int) ([]model.DeliveryEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, task_id, campaign_id, channel, event_type, occurred_at, created_at
		FROM campeng.delivery_events
		WHERE campaign_id = ?
	`
	args := []any{campaignID}

	if eventType != "" {
		q += " AND event_type = ?"
		args = append(args, eventType.String())
	}

	q += " ORDER BY occurred_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.DeliveryEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
