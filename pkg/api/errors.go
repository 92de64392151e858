package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/hitlbot/warden/pkg/werrors"
)

// mapServiceError maps a werrors.Kind to an HTTP status, the same role the
// teacher's mapServiceError plays for its services-layer sentinel errors.
func mapServiceError(err error) *echo.HTTPError {
	kind, ok := werrors.KindOf(err)
	if !ok {
		slog.Error("api: unclassified service error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	switch kind {
	case werrors.KindValidation:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case werrors.KindConflict:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case werrors.KindDuplicateIngest:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case werrors.KindQuotaExhausted, werrors.KindCircuitOpen, werrors.KindTransientExternal:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case werrors.KindMalformedLLMOutput, werrors.KindFatal:
		slog.Error("api: fatal service error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
