// Package api provides the reviewer-facing HTTP API (spec.md §6.1),
// grounded on the teacher's pkg/api: Echo v5 routing, Server as the
// single wiring point for every service the handlers call, Set*-style
// optional wiring for pieces that may not exist in every deployment, and
// the same security-header/body-limit middleware stack.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/llmrouter"
	"github.com/hitlbot/warden/pkg/metrics"
	"github.com/hitlbot/warden/pkg/protocol"
	"github.com/hitlbot/warden/pkg/recovery"
	"github.com/hitlbot/warden/pkg/review"
	"github.com/hitlbot/warden/pkg/store"
	"github.com/hitlbot/warden/pkg/version"
)

// Server is the reviewer HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg      *config.Config
	store    *store.Store
	broker   *broker.Broker
	review   *review.Service
	protocol *protocol.Manager
	recovery *recovery.Agent
	router   *llmrouter.Router
}

// NewServer creates a reviewer API server with Echo v5, wiring every route
// up front (spec.md §6.1).
func NewServer(cfg *config.Config, s *store.Store, b *broker.Broker, rv *review.Service, pm *protocol.Manager, ra *recovery.Agent, lr *llmrouter.Router) *Server {
	e := echo.New()

	srv := &Server{
		echo: e, cfg: cfg, store: s, broker: b, review: rv, protocol: pm, recovery: ra, router: lr,
	}

	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	// Body size limit mirrors the teacher's server-wide guard against
	// oversized payloads, sized generously for reviewer edit bodies.
	s.echo.Use(middleware.BodyLimit(1 * 1024 * 1024))
	s.echo.Use(securityHeaders())
	s.echo.Use(corsFor(s.cfg.AllowedOrigins))
	s.echo.Use(s.authRequired())
	s.echo.Use(s.watermarkGuard())
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/metrics", s.metricsHandler)

	v1 := s.echo.Group("/api/v1")

	v1.GET("/reviews/pending", s.listPendingHandler)
	v1.POST("/reviews/:id/claim", s.claimHandler)
	v1.POST("/reviews/:id/approve", s.approveHandler)
	v1.POST("/reviews/:id/reject", s.rejectHandler)

	v1.GET("/interactions/:id", s.getInteractionHandler)
	v1.POST("/interactions/:id/reviewer-notes", s.editNoteHandler)

	v1.GET("/users/:user_id/customer-status", s.getCustomerStatusHandler)
	v1.POST("/users/:user_id/customer-status", s.setCustomerStatusHandler)
	v1.POST("/users/:user_id/nickname", s.setNicknameHandler)

	v1.GET("/protocol/:user_id", s.getProtocolHandler)
	v1.POST("/protocol/:user_id/activate", s.activateProtocolHandler)
	v1.POST("/protocol/:user_id/deactivate", s.deactivateProtocolHandler)

	v1.GET("/quarantine/messages", s.listQuarantineHandler)
	v1.POST("/quarantine/:entry_id/release", s.releaseQuarantineHandler)

	v1.GET("/recovery/status", s.recoveryStatusHandler)
	v1.POST("/recovery/trigger", s.recoveryTriggerHandler)
	v1.GET("/recovery/history", s.recoveryHistoryHandler)

	v1.GET("/models/profiles", s.listProfilesHandler)
	v1.POST("/models/profile", s.switchProfileHandler)
	v1.GET("/models/current", s.currentProfileHandler)
}

// Start starts the HTTP server on the given address (non-blocking aside
// from the blocking Serve call itself — callers run this in a goroutine).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by tests to bind a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// metricsHandler refreshes the queue-depth gauges from the broker and then
// serves the Prometheus exposition format.
func (s *Server) metricsHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	if n, err := s.broker.IntakeLen(ctx); err == nil {
		metrics.IntakeDepth.Set(float64(n))
	}
	if n, err := s.broker.ApprovedLen(ctx); err == nil {
		metrics.ApprovedDepth.Set(float64(n))
	}
	if n, err := s.broker.ReviewQueueLen(ctx); err == nil {
		metrics.ReviewQueueDepth.Set(float64(n))
	}
	metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) healthHandler(c *echo.Context) error {
	_, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	intakeLen, _ := s.broker.IntakeLen(c.Request().Context())
	approvedLen, _ := s.broker.ApprovedLen(c.Request().Context())

	status := "healthy"
	if int(intakeLen) >= s.cfg.Watermarks.IntakeHigh || int(approvedLen) >= s.cfg.Watermarks.ApprovedHigh {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:      status,
		Version:     version.Full(),
		IntakeDepth: intakeLen,
		ApprovedDepth: approvedLen,
		ModelsDegraded: s.router.Degraded(),
	})
}
