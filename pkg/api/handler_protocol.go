package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/hitlbot/warden/pkg/werrors"
)

// getProtocolHandler handles GET /api/v1/protocol/:user_id.
func (s *Server) getProtocolHandler(c *echo.Context) error {
	state, err := s.store.Protocol.Get(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindTransientExternal, "get protocol state", err))
	}
	return c.JSON(http.StatusOK, &ProtocolResponse{
		UserID: state.UserID, Status: string(state.Status), LastChangedAt: state.LastChangedAt, Actor: state.Actor,
	})
}

// activateProtocolHandler handles POST /api/v1/protocol/:user_id/activate.
func (s *Server) activateProtocolHandler(c *echo.Context) error {
	var req ProtocolActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ActorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor_id is required")
	}

	if err := s.protocol.Activate(c.Request().Context(), c.Param("user_id"), req.ActorID); err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindTransientExternal, "activate protocol", err))
	}
	return c.NoContent(http.StatusNoContent)
}

// deactivateProtocolHandler handles POST /api/v1/protocol/:user_id/deactivate.
func (s *Server) deactivateProtocolHandler(c *echo.Context) error {
	var req ProtocolActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ActorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor_id is required")
	}

	if err := s.protocol.Deactivate(c.Request().Context(), c.Param("user_id"), req.ActorID); err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindTransientExternal, "deactivate protocol", err))
	}
	return c.NoContent(http.StatusNoContent)
}
