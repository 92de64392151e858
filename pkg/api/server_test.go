package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/llmrouter"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/platform"
	"github.com/hitlbot/warden/pkg/protocol"
	"github.com/hitlbot/warden/pkg/recovery"
	"github.com/hitlbot/warden/pkg/review"
	"github.com/hitlbot/warden/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("warden"),
		tcpostgres.WithUsername("warden"),
		tcpostgres.WithPassword("warden"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host: host, Port: port.Int(), User: "warden", Password: "warden", Database: "warden", SSLMode: "disable",
	}
	s, err := store.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return broker.NewWithClient(rdb, time.Second)
}

func newTestServer(t *testing.T) (*Server, *store.Store, *broker.Broker) {
	t.Helper()
	s := newTestStore(t)
	b := newTestBroker(t)
	pm := protocol.New(s, b)
	rv := review.New(s, b)
	ra := recovery.New(s, b, platform.NewFakeClient(), config.RecoveryConfig{
		MaxAgeHours: 6, MaxMessagesPerRun: 100, MaxUsersPerRun: 50, RatePerSec: 30,
	}, nil)

	registry := llmrouter.NewRegistry()
	registry.Put(llmrouter.Profile{Name: "default"})
	lr := llmrouter.New(registry, llmrouter.NewMockProvider(), b, "default", nil)

	cfg := &config.Config{
		Review:     config.ReviewConfig{AuthToken: "test-token"},
		Watermarks: config.WatermarkConfig{IntakeHigh: 1000, ApprovedHigh: 1000},
	}

	return NewServer(cfg, s, b, rv, pm, ra, lr), s, b
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func TestHealthHandlerNeedsNoAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp.Status)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews/pending", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReviewLifecycleThroughHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	srv, s, b := newTestServer(t)
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Interactions.Create(ctx, &models.Interaction{
		ID: "int-http-1", UserID: "u1", PlatformMsgIDs: []string{"1"},
		PlatformTS: time.Now(), IngestTS: time.Now(), RawText: "hi",
		ReviewStatus: models.ReviewStatusPending,
	}))
	require.NoError(t, b.EnqueueReview(ctx, "int-http-1", 0.9, 1))

	req := authedRequest(http.MethodGet, "/api/v1/reviews/pending", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []*InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	require.Equal(t, "int-http-1", items[0].ID)

	claimBody, _ := json.Marshal(ClaimRequest{ReviewerID: "rev-1"})
	req = authedRequest(http.MethodPost, "/api/v1/reviews/int-http-1/claim", claimBody)
	rec = httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	approveBody, _ := json.Marshal(ApproveRequest{
		ReviewerID: "rev-1", FinalBubbles: []string{"hello there"}, QualityScore: 5,
	})
	req = authedRequest(http.MethodPost, "/api/v1/reviews/int-http-1/approve", approveBody)
	rec = httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	n, err := b.ApprovedLen(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
