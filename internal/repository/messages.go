package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/jmoiron/sqlx"
)

var (
	ErrMessageNotFound  = errors.New("campaign message not found")
	ErrScheduleNotFound = errors.New("campaign schedule not found")
)

type MessageRepository interface {
	Get(ctx context.Context, id int64) (*model.CampaignMessage, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignMessage, error)
}

type MessageRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) *MessageRepositoryImpl {
	return &MessageRepositoryImpl{db: db}
}

var _ MessageRepository = (*MessageRepositoryImpl)(nil)

const messageColumns = `id, campaign_id, channel, subject, body, template_id, created_at`

func (r *MessageRepositoryImpl) Get(ctx context.Context, id int64) (*model.CampaignMessage, error) {
	var m model.CampaignMessage
	err := r.db.GetContext(ctx, &m,
		`SELECT `+messageColumns+` FROM campaign_messages WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepositoryImpl) ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignMessage, error) {
	var out []model.CampaignMessage
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+messageColumns+` FROM campaign_messages WHERE campaign_id = ? ORDER BY id`, campaignID)
	return out, err
}

type ScheduleRepository interface {
	// GetByCampaign returns ErrScheduleNotFound when no config row exists;
	// callers fall back to send-immediately defaults.
	GetByCampaign(ctx context.Context, campaignID int64) (*model.CampaignSchedule, error)
}

type ScheduleRepositoryImpl struct {
	db *sqlx.DB
}

func NewScheduleRepository(db *sqlx.DB) *ScheduleRepositoryImpl {
	return &ScheduleRepositoryImpl{db: db}
}

var _ ScheduleRepository = (*ScheduleRepositoryImpl)(nil)

func (r *ScheduleRepositoryImpl) GetByCampaign(ctx context.Context, campaignID int64) (*model.CampaignSchedule, error) {
	var s model.CampaignSchedule
	err := r.db.GetContext(ctx, &s, `
		SELECT id, campaign_id, send_immediately, scheduled_time, timezone,
		       recurring, recurring_pattern, batch_size, batch_interval_minutes,
		       respect_quiet_hours, quiet_hours_start, quiet_hours_end,
		       created_at, updated_at
		  FROM campaign_schedules
		 WHERE campaign_id = ? LIMIT 1
	`, campaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
