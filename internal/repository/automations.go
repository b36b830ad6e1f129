package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/jmoiron/sqlx"
)

type AutomationRepository interface {
	ListEnabledByEvent(ctx context.Context, triggerEvent string) ([]model.CampaignAutomation, error)
}

type AutomationRepositoryImpl struct {
	db *sqlx.DB
}

func NewAutomationRepository(db *sqlx.DB) *AutomationRepositoryImpl {
	return &AutomationRepositoryImpl{db: db}
}

var _ AutomationRepository = (*AutomationRepositoryImpl)(nil)

func (r *AutomationRepositoryImpl) ListEnabledByEvent(ctx context.Context, triggerEvent string) ([]model.CampaignAutomation, error) {
	var out []model.CampaignAutomation
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, campaign_id, trigger_event, conditions, delay_minutes, enabled,
		       created_at, updated_at
		  FROM campaign_automations
		 WHERE trigger_event = ? AND enabled = 1
		 ORDER BY id
	`, triggerEvent)
	return out, err
}

type OrganizationRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Organization, error)
}

type OrganizationRepositoryImpl struct {
	db *sqlx.DB
}

func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepositoryImpl {
	return &OrganizationRepositoryImpl{db: db}
}

var _ OrganizationRepository = (*OrganizationRepositoryImpl)(nil)

func (r *OrganizationRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Organization, error) {
	var o model.Organization
	err := r.db.GetContext(ctx, &o, `
		SELECT id, name, api_key, status, rate_limit_rps, created_at, updated_at
		  FROM organizations
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
