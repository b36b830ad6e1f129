package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/blossomhq/campaign-engine/internal/service/tracker"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type deliveryHookReq struct {
	MessageID  string `json:"message_id"` // provider message id
	Event      string `json:"event"`
	OccurredAt string `json:"occurred_at"` // RFC3339, optional
}

// deliveryHookHandler ingests provider delivery callbacks. Duplicate
// callbacks are accepted; the tracker's log tolerates replays.
func deliveryHookHandler(trackerSvc *tracker.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req deliveryHookReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.MessageID == "" || req.Event == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "message_id and event required"})
		}

		var occurredAt time.Time
		if req.OccurredAt != "" {
			t, err := time.Parse(time.RFC3339, req.OccurredAt)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid occurred_at"})
			}
			occurredAt = t
		}

		err := trackerSvc.Record(c.Request().Context(), tracker.Event{
			ProviderMessageID: req.MessageID,
			Type:              req.Event,
			OccurredAt:        occurredAt,
		})
		if err != nil {
			switch {
			case errors.Is(err, tracker.ErrUnknownEventType):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown event type"})
			case errors.Is(err, tracker.ErrUnknownMessage):
				// the provider may callback before MarkSent commits; tell it
				// to retry rather than drop the event
				return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown message id"})
			}
			log.Errorf("record delivery event failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
	}
}
