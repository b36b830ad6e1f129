package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/blossomhq/campaign-engine/internal/model"
	"github.com/blossomhq/campaign-engine/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// resultsHandler returns the aggregated per-channel results of a campaign
// from MySQL, plus its lifecycle timestamps.
func resultsHandler(campaignsRepo repository.CampaignRepository, resultsRepo repository.ResultRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		campaignID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || campaignID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		}
		if !ownsCampaign(c, campaignsRepo, campaignID) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		campaign, err := campaignsRepo.Get(c.Request().Context(), campaignID)
		if err != nil {
			c.Logger().Errorf("campaign lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		results, err := resultsRepo.ListByCampaign(c.Request().Context(), campaignID)
		if err != nil {
			c.Logger().Errorf("results lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"campaign_id":  campaignID,
			"status":       campaign.Status.String(),
			"scheduled_at": campaign.ScheduledAt,
			"sent_at":      campaign.SentAt,
			"completed_at": campaign.CompletedAt,
			"results":      results,
		})
	}
}

// listEventsHandler serves high-volume engagement event listings from the
// ClickHouse mirror.
func listEventsHandler(campaignsRepo repository.CampaignRepository, chRepo repository.CHEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		campaignID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || campaignID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		}
		if !ownsCampaign(c, campaignsRepo, campaignID) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var eventType model.EventType
		if raw := strings.TrimSpace(c.QueryParam("event")); raw != "" {
			t, ok := model.ParseEventType(raw)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid event type"})
			}
			eventType = t
		}

		events, err := chRepo.ListByCampaign(c.Request().Context(), campaignID, eventType, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(events),
			"results": events,
		})
	}
}
