package repository

import (
	"context"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/jmoiron/sqlx"
)

// EventCount is one aggregation bucket of campaign_delivery_log. Duplicate
// provider callbacks are logged as extra rows, so counts are over distinct
// tasks, not rows.
type EventCount struct {
	Channel model.Channel   `db:"channel"`
	Type    model.EventType `db:"event_type"`
	Count   int64           `db:"cnt"`
}

type DeliveryLogRepository interface {
	Insert(ctx context.Context, ev model.DeliveryEvent) error
	Exists(ctx context.Context, taskID string, t model.EventType) (bool, error)
	EventCounts(ctx context.Context, campaignID int64) ([]EventCount, error)
}

type DeliveryLogRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveryLogRepository(db *sqlx.DB) *DeliveryLogRepositoryImpl {
	return &DeliveryLogRepositoryImpl{db: db}
}

var _ DeliveryLogRepository = (*DeliveryLogRepositoryImpl)(nil)

func (r *DeliveryLogRepositoryImpl) Insert(ctx context.Context, ev model.DeliveryEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_delivery_log
		    (id, task_id, campaign_id, channel, event_type, occurred_at, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, NOW())
	`, ev.ID, ev.TaskID, ev.CampaignID, ev.Channel.String(), ev.Type.String(), ev.OccurredAt)
	return err
}

func (r *DeliveryLogRepositoryImpl) Exists(ctx context.Context, taskID string, t model.EventType) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, `
		SELECT 1 FROM campaign_delivery_log
		 WHERE task_id = ? AND event_type = ? LIMIT 1
	`, taskID, t.String())
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *DeliveryLogRepositoryImpl) EventCounts(ctx context.Context, campaignID int64) ([]EventCount, error) {
	var out []EventCount
	err := r.db.SelectContext(ctx, &out, `
		SELECT channel, event_type, COUNT(DISTINCT task_id) AS cnt
		  FROM campaign_delivery_log
		 WHERE campaign_id = ?
		 GROUP BY channel, event_type
	`, campaignID)
	return out, err
}
