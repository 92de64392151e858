package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/werrors"
)

// recoveryStatusHandler handles GET /api/v1/recovery/status.
func (s *Server) recoveryStatusHandler(c *echo.Context) error {
	history, err := s.store.Recoveries.History(c.Request().Context(), 1)
	if err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindTransientExternal, "get recovery status", err))
	}
	if len(history) == 0 {
		return c.JSON(http.StatusOK, map[string]any{"status": "never_run"})
	}
	return c.JSON(http.StatusOK, toRecoveryResponse(history[0]))
}

// recoveryTriggerHandler handles POST /api/v1/recovery/trigger.
func (s *Server) recoveryTriggerHandler(c *echo.Context) error {
	var req RecoveryTriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	op, err := s.recovery.Run(c.Request().Context(), models.RecoveryTriggerManual)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, toRecoveryResponse(op))
}

// recoveryHistoryHandler handles GET /api/v1/recovery/history.
func (s *Server) recoveryHistoryHandler(c *echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	history, err := s.store.Recoveries.History(c.Request().Context(), limit)
	if err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindTransientExternal, "get recovery history", err))
	}

	out := make([]*RecoveryOperationResponse, len(history))
	for i, op := range history {
		out[i] = toRecoveryResponse(op)
	}
	return c.JSON(http.StatusOK, out)
}
