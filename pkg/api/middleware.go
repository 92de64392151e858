package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response
// headers, identical to the teacher's handling.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// corsFor returns middleware that allows only the configured origins
// (spec.md §6.1 "CORS restricted to an allow-list").
func corsFor(allowed []string) echo.MiddlewareFunc {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allowSet[o] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			origin := c.Request().Header.Get("Origin")
			if origin != "" {
				if _, ok := allowSet[origin]; ok {
					c.Response().Header().Set("Access-Control-Allow-Origin", origin)
					c.Response().Header().Set("Vary", "Origin")
				}
			}
			if c.Request().Method == http.MethodOptions {
				c.Response().Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				c.Response().Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

// authRequired returns middleware enforcing the Bearer-token check against
// config.ReviewConfig.AuthToken (spec.md §6.1 "authenticated via a shared
// bearer token"). The health and metrics endpoints are exempt.
func (s *Server) authRequired() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if c.Request().URL.Path == "/health" || c.Request().URL.Path == "/metrics" {
				return next(c)
			}
			token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if s.cfg.Review.AuthToken == "" || token != s.cfg.Review.AuthToken {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid bearer token")
			}
			return next(c)
		}
	}
}

// watermarkGuard returns 503 on mutating requests once a backpressure
// watermark is breached (spec.md §5 Backpressure "new inbound writes are
// rejected with 503 until depth recovers"). Reads and health remain served.
func (s *Server) watermarkGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if c.Request().Method == http.MethodGet || c.Request().URL.Path == "/health" {
				return next(c)
			}
			ctx := c.Request().Context()
			intakeLen, err := s.broker.IntakeLen(ctx)
			if err == nil && int(intakeLen) >= s.cfg.Watermarks.IntakeHigh {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "intake backpressure watermark breached")
			}
			approvedLen, err := s.broker.ApprovedLen(ctx)
			if err == nil && int(approvedLen) >= s.cfg.Watermarks.ApprovedHigh {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "approved-queue backpressure watermark breached")
			}
			return next(c)
		}
	}
}
