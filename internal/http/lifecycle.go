package http

import (
	"net/http"
	"strconv"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/repository"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// lifecycleHandler moves a campaign between non-terminal statuses with a
// guarded conditional update. The dispatch worker observes the new status on
// its next cycle; no queue rows are touched here except on cancel.
func lifecycleHandler(
	campaignsRepo repository.CampaignRepository,
	queueRepo repository.QueueRepository,
	auditRepo repository.AuditLogRepository,
	from []model.CampaignStatus,
	to model.CampaignStatus,
	action string,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		campaignID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || campaignID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		}
		if !ownsCampaign(c, campaignsRepo, campaignID) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		moved, err := campaignsRepo.UpdateStatus(c.Request().Context(), campaignID, from, to)
		if err != nil {
			log.Errorf("%s failed: %v", action, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !moved {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "campaign is not in a " + action + "-able status",
			})
		}

		var cancelled int64
		if to == model.CampaignCancelled {
			cancelled, err = queueRepo.CancelPending(c.Request().Context(), campaignID)
			if err != nil {
				// the worker janitor sweeps whatever this call missed
				log.Errorf("cancel pending rows failed: %v", err)
			}
		}

		if err := auditRepo.Insert(c.Request().Context(), model.AuditLogEntry{
			CampaignID: campaignID,
			Action:     action,
		}); err != nil {
			log.Warnf("audit write failed: %v", err)
		}

		resp := map[string]any{"campaign_id": campaignID, "status": to.String()}
		if to == model.CampaignCancelled {
			resp["cancelled_tasks"] = cancelled
		}
		return c.JSON(http.StatusOK, resp)
	}
}
