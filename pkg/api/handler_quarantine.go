package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/hitlbot/warden/pkg/werrors"
)

// listQuarantineHandler handles GET /api/v1/quarantine/messages?user_id=.
func (s *Server) listQuarantineHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	entries, err := s.protocol.QuarantineQueue(c.Request().Context(), userID, 100)
	if err != nil {
		return mapServiceError(werrors.Wrap(werrors.KindTransientExternal, "list quarantine entries", err))
	}

	out := make([]*QuarantineEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = toQuarantineResponse(e)
	}
	return c.JSON(http.StatusOK, out)
}

// releaseQuarantineHandler handles POST /api/v1/quarantine/:entry_id/release.
func (s *Server) releaseQuarantineHandler(c *echo.Context) error {
	entry, err := s.protocol.Release(c.Request().Context(), c.Param("entry_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, toQuarantineResponse(entry))
}
