package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/blossomhq/campaign-engine/internal/config"
	"github.com/blossomhq/campaign-engine/internal/db"
	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo organizations and campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo organizations...")
		if err := seedOrganizations(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seeding demo campaigns...")
		if err := seedCampaigns(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedOrganizations inserts deterministic demo tenants (idempotent).
func seedOrganizations(dbx *sqlx.DB) error {
	orgs := []model.Organization{
		{
			Name:         "Sunny Sprouts Preschool",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			RateLimitRPS: intptr(20),
		},
		{
			Name:         "Little Oaks Academy",
			APIKey:       "22222222222222222222222222222222",
			Status:       "active",
			RateLimitRPS: intptr(50),
		},
		{
			Name:         "Suspended Daycare",
			APIKey:       "33333333333333333333333333333333",
			Status:       "suspended",
			RateLimitRPS: nil,
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO organizations
    (name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name           = VALUES(name),
    status         = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at     = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, o := range orgs {
		if _, err := tx.Exec(q, o.Name, o.APIKey, o.Status, o.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert organization %q: %w", o.Name, err)
		}
	}

	return tx.Commit()
}

// seedCampaigns creates one draft campaign with an email message, a batched
// schedule and a lead-followup automation for the first demo tenant.
func seedCampaigns(dbx *sqlx.DB) error {
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.Exec(`
INSERT INTO campaigns (organization_id, name, status, channels, audience, created_at, updated_at)
SELECT o.id, 'Fall Enrollment Open House', 'draft', 'email', 'all-leads', NOW(), NOW()
  FROM organizations o
 WHERE o.api_key = '11111111111111111111111111111111'
   AND NOT EXISTS (
       SELECT 1 FROM campaigns c
        WHERE c.organization_id = o.id AND c.name = 'Fall Enrollment Open House')
`)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already seeded
		return tx.Commit()
	}
	campaignID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("campaign id: %w", err)
	}

	if _, err := tx.Exec(`
INSERT INTO campaign_messages (campaign_id, channel, subject, body, created_at)
VALUES (?, 'email', 'You''re invited, {{first_name}}!',
        'Hi {{first_name}}, join us for our fall open house. {{child_name}} would love it here.', NOW())
`, campaignID); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(`
INSERT INTO campaign_schedules
    (campaign_id, send_immediately, timezone, recurring, batch_size,
     batch_interval_minutes, respect_quiet_hours, quiet_hours_start, quiet_hours_end,
     created_at, updated_at)
VALUES (?, 1, 'America/New_York', 0, 200, 10, 1, '21:00', '08:00', NOW(), NOW())
`, campaignID); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	if _, err := tx.Exec(`
INSERT INTO campaign_automations
    (campaign_id, trigger_event, conditions, delay_minutes, enabled, created_at, updated_at)
VALUES (?, 'lead.created', '{}', 30, 1, NOW(), NOW())
`, campaignID); err != nil {
		return fmt.Errorf("insert automation: %w", err)
	}

	return tx.Commit()
}

func intptr(i int) *int { return &i }
