package repository

import (
	"context"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/jmoiron/sqlx"
)

type ErrorLogRepository interface {
	Insert(ctx context.Context, e model.ErrorLogEntry) error
	// IsSuppressed reports whether a recipient has a permanent failure on the
	// channel, which suppresses future sends to them.
	IsSuppressed(ctx context.Context, recipient string, ch model.Channel) (bool, error)
}

type ErrorLogRepositoryImpl struct {
	db *sqlx.DB
}

func NewErrorLogRepository(db *sqlx.DB) *ErrorLogRepositoryImpl {
	return &ErrorLogRepositoryImpl{db: db}
}

var _ ErrorLogRepository = (*ErrorLogRepositoryImpl)(nil)

func (r *ErrorLogRepositoryImpl) Insert(ctx context.Context, e model.ErrorLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_error_log
		    (campaign_id, task_id, channel, recipient, kind, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW())
	`, e.CampaignID, e.TaskID, e.Channel.String(), e.Recipient, e.Kind.String(), e.Message)
	return err
}

func (r *ErrorLogRepositoryImpl) IsSuppressed(ctx context.Context, recipient string, ch model.Channel) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, `
		SELECT 1 FROM campaign_error_log
		 WHERE recipient = ? AND channel = ? AND kind = 'permanent' LIMIT 1
	`, recipient, ch.String())
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type AuditLogRepository interface {
	Insert(ctx context.Context, e model.AuditLogEntry) error
}

type AuditLogRepositoryImpl struct {
	db *sqlx.DB
}

func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepositoryImpl {
	return &AuditLogRepositoryImpl{db: db}
}

var _ AuditLogRepository = (*AuditLogRepositoryImpl)(nil)

func (r *AuditLogRepositoryImpl) Insert(ctx context.Context, e model.AuditLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_audit_log (campaign_id, action, detail, created_at)
		VALUES (?, ?, ?, NOW())
	`, e.CampaignID, e.Action, e.Detail)
	return err
}
