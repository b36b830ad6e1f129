package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/blossomhq/campaign-engine/internal/http/middleware"
	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/repository"
	"github.com/blossomhq/campaign-engine/internal/service/enqueue"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type activateReq struct {
	MessageID  int64             `json:"message_id"`
	Recipients []model.Recipient `json:"recipients"`
}

// activateHandler expands the campaign's resolved audience into queue rows and
// moves the campaign to scheduled or active.
func activateHandler(enqueueSvc *enqueue.Service, campaignsRepo repository.CampaignRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		campaignID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || campaignID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		}

		var req activateReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.MessageID <= 0 || len(req.Recipients) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "message_id and recipients required"})
		}

		if !ownsCampaign(c, campaignsRepo, campaignID) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		enqueued, err := enqueueSvc.Enqueue(c.Request().Context(), campaignID, req.MessageID, req.Recipients)
		if err != nil {
			switch {
			case errors.Is(err, enqueue.ErrNotActivatable):
				return c.JSON(http.StatusConflict, map[string]string{"error": "campaign cannot be activated"})
			case errors.Is(err, enqueue.ErrMessageMismatch):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "message does not belong to campaign"})
			case errors.Is(err, enqueue.ErrNoRecipients):
				return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "no deliverable recipients"})
			}
			log.Errorf("activate failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "activation failed"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"campaign_id": campaignID,
			"enqueued":    enqueued,
		})
	}
}

// ownsCampaign checks the campaign exists and belongs to the authenticated
// tenant. Cross-tenant probes get the same 404 as a missing campaign.
func ownsCampaign(c echo.Context, campaigns repository.CampaignRepository, campaignID int64) bool {
	orgID, ok := middleware.OrgIDFromCtx(c)
	if !ok || orgID <= 0 {
		return false
	}
	campaign, err := campaigns.Get(c.Request().Context(), campaignID)
	if err != nil {
		return false
	}
	return campaign.OrganizationID == orgID
}
