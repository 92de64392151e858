package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/hitlbot/warden/pkg/werrors"
)

// getCustomerStatusHandler handles GET /api/v1/users/:user_id/customer-status.
func (s *Server) getCustomerStatusHandler(c *echo.Context) error {
	u, err := s.store.Users.Get(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindValidation, "user not found", err))
	}
	return c.JSON(http.StatusOK, &UserStatusResponse{
		UserID: u.ID, CustomerStatus: u.CustomerStatus, Nickname: u.Nickname, LifetimeValue: u.LifetimeValue,
	})
}

// setCustomerStatusHandler handles POST /api/v1/users/:user_id/customer-status.
func (s *Server) setCustomerStatusHandler(c *echo.Context) error {
	var req CustomerStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}

	if err := s.store.Users.SetCustomerStatus(c.Request().Context(), c.Param("user_id"), req.Status); err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindTransientExternal, "set customer status", err))
	}
	return c.NoContent(http.StatusNoContent)
}

// setNicknameHandler handles POST /api/v1/users/:user_id/nickname.
func (s *Server) setNicknameHandler(c *echo.Context) error {
	var req NicknameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Nickname == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "nickname is required")
	}

	if err := s.store.Users.SetNickname(c.Request().Context(), c.Param("user_id"), req.Nickname); err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindTransientExternal, "set nickname", err))
	}
	return c.NoContent(http.StatusNoContent)
}
