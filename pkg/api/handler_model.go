package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listProfilesHandler handles GET /api/v1/models/profiles.
func (s *Server) listProfilesHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &ModelProfilesResponse{Profiles: s.router.Profiles()})
}

// switchProfileHandler handles POST /api/v1/models/profile.
func (s *Server) switchProfileHandler(c *echo.Context) error {
	var req SwitchProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	if err := s.router.SwitchProfile(req.Name); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// currentProfileHandler handles GET /api/v1/models/current.
func (s *Server) currentProfileHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &CurrentProfileResponse{
		Profile: s.router.CurrentProfile(), Degraded: s.router.Degraded(),
	})
}
