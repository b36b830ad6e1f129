package repository

import (
	"context"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/jmoiron/sqlx"
)

type ResultRepository interface {
	Upsert(ctx context.Context, res model.CampaignResult) error
	ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignResult, error)
}

type ResultRepositoryImpl struct {
	db *sqlx.DB
}

func NewResultRepository(db *sqlx.DB) *ResultRepositoryImpl {
	return &ResultRepositoryImpl{db: db}
}

var _ ResultRepository = (*ResultRepositoryImpl)(nil)

// Upsert replaces the (campaign, channel) aggregate wholesale: results are
// derived, never incremented in place.
func (r *ResultRepositoryImpl) Upsert(ctx context.Context, res model.CampaignResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_results
		    (campaign_id, channel, total_sent, total_delivered, total_opened,
		     total_clicked, total_converted, total_failed, bounce_count,
		     unsubscribe_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
		    total_sent        = VALUES(total_sent),
		    total_delivered   = VALUES(total_delivered),
		    total_opened      = VALUES(total_opened),
		    total_clicked     = VALUES(total_clicked),
		    total_converted   = VALUES(total_converted),
		    total_failed      = VALUES(total_failed),
		    bounce_count      = VALUES(bounce_count),
		    unsubscribe_count = VALUES(unsubscribe_count),
		    updated_at        = VALUES(updated_at)
	`, res.CampaignID, res.Channel.String(), res.TotalSent, res.TotalDelivered,
		res.TotalOpened, res.TotalClicked, res.TotalConverted, res.TotalFailed,
		res.BounceCount, res.UnsubscribeCount)
	return err
}

func (r *ResultRepositoryImpl) ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignResult, error) {
	var out []model.CampaignResult
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, campaign_id, channel, total_sent, total_delivered, total_opened,
		       total_clicked, total_converted, total_failed, bounce_count,
		       unsubscribe_count, updated_at
		  FROM campaign_results
		 WHERE campaign_id = ?
		 ORDER BY channel
	`, campaignID)
	return out, err
}
