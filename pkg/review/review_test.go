package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/models"
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

func TestClaimApproveFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Interactions.Create(ctx, &models.Interaction{
		ID: "int-1", UserID: "u1", PlatformMsgIDs: []string{"1"},
		PlatformTS: time.Now(), IngestTS: time.Now(), RawText: "hi",
		ReviewStatus: models.ReviewStatusPending,
	}))
	require.NoError(t, b.EnqueueReview(ctx, "int-1", 0.5, 1))

	svc := review.New(s, b)

	pending, err := svc.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, svc.Claim(ctx, "int-1", "rev-1"))

	n, err := b.ReviewQueueLen(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, svc.Approve(ctx, "int-1", "rev-1", []string{"hello there"}, nil, 4, "looks fine"))

	job, err := b.PopApproved(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "int-1", job.InteractionID)
	require.Equal(t, "u1", job.UserID)
}

func TestRejectRemovesFromQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Interactions.Create(ctx, &models.Interaction{
		ID: "int-2", UserID: "u1", PlatformMsgIDs: []string{"2"},
		PlatformTS: time.Now(), IngestTS: time.Now(), RawText: "hi",
		ReviewStatus: models.ReviewStatusPending,
	}))
	require.NoError(t, b.EnqueueReview(ctx, "int-2", 0.2, 1))

	svc := review.New(s, b)
	require.NoError(t, svc.Reject(ctx, "int-2", "rev-1", "off brand"))

	n, err := b.ReviewQueueLen(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPriorityFormula(t *testing.T) {
	p := review.Priority(time.Now().Add(-2*time.Hour), 0.5, 0.9)
	require.InDelta(t, 0.4+0.15+0.27, p, 1e-9)
}

func TestPriorityClampsUserValueScalar(t *testing.T) {
	now := time.Now()
	require.InDelta(t, 0.3, review.Priority(now, 5.0, 0), 1e-9)
	require.InDelta(t, 0.0, review.Priority(now, -5.0, 0), 1e-9)
}

func TestListPendingRecomputesPriorityOnEveryCall(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Interactions.Create(ctx, &models.Interaction{
		ID: "risky", UserID: "u1", PlatformMsgIDs: []string{"1"}, RawText: "hi",
		Safety: models.SafetyAnnotation{RiskScore: 0.9}, ReviewStatus: models.ReviewStatusPending,
	}))
	require.NoError(t, s.Interactions.Create(ctx, &models.Interaction{
		ID: "safe", UserID: "u1", PlatformMsgIDs: []string{"2"}, RawText: "hi",
		Safety: models.SafetyAnnotation{RiskScore: 0.1}, ReviewStatus: models.ReviewStatusPending,
	}))

	// Enqueued with the opposite of their real-risk order: if ListPending
	// trusted the frozen enqueue-time score instead of recomputing against
	// each row's current Safety.RiskScore, "safe" would stay ranked first.
	require.NoError(t, b.EnqueueReview(ctx, "safe", 0.9, 1))
	require.NoError(t, b.EnqueueReview(ctx, "risky", 0.1, 2))

	svc := review.New(s, b)
	pending, err := svc.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "risky", pending[0].ID)
	require.Equal(t, "safe", pending[1].ID)
}
