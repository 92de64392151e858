package protocol_test

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
	"github.com/hitlbot/warden/pkg/protocol"
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

func TestRouteDefaultsToProcessForUnknownUser(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()
	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	m := protocol.New(s, b)
	decision, err := m.Route(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, protocol.DecisionProcess, decision)
}

func TestActivateRoutesToQuarantineAndCaches(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()
	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	m := protocol.New(s, b)
	require.NoError(t, m.Activate(ctx, "u1", "reviewer-1"))

	decision, err := m.Route(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, protocol.DecisionQuarantine, decision)

	cached, err := b.GetProtocolCache(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, string(models.ProtocolActive), cached)
}

func TestDeactivateInvalidatesCacheAndRoutesToProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()
	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	m := protocol.New(s, b)
	require.NoError(t, m.Activate(ctx, "u1", "reviewer-1"))
	require.NoError(t, m.Deactivate(ctx, "u1", "reviewer-1"))

	decision, err := m.Route(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, protocol.DecisionProcess, decision)

	_, err = b.GetProtocolCache(ctx, "u1")
	require.ErrorIs(t, err, redis.Nil)
}

func TestQuarantineAndReleaseRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()
	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	m := protocol.New(s, b)
	require.NoError(t, m.Quarantine(ctx, &models.QuarantineEntry{
		ID: "q1", UserID: "u1", PlatformMsgID: "msg-1", Text: "hello",
	}))

	entries, err := m.QuarantineQueue(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Processed)

	released, err := m.Release(ctx, "q1")
	require.NoError(t, err)
	require.Equal(t, "u1", released.UserID)

	n, err := b.IntakeLen(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	entries, err = m.QuarantineQueue(ctx, "u1", 10)
	require.NoError(t, err)
	require.True(t, entries[0].Processed)
}

func TestBulkReleaseSkipsAlreadyProcessedEntries(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()
	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	m := protocol.New(s, b)
	require.NoError(t, m.Quarantine(ctx, &models.QuarantineEntry{ID: "q1", UserID: "u1", PlatformMsgID: "m1", Text: "a"}))
	require.NoError(t, m.Quarantine(ctx, &models.QuarantineEntry{ID: "q2", UserID: "u1", PlatformMsgID: "m2", Text: "b"}))

	_, err = m.Release(ctx, "q1")
	require.NoError(t, err)

	count, err := m.BulkRelease(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	n, err := b.IntakeLen(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestPurgeSoftDeletesOldEntries(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()
	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	m := protocol.New(s, b)
	require.NoError(t, m.Quarantine(ctx, &models.QuarantineEntry{ID: "q1", UserID: "u1", PlatformMsgID: "m1", Text: "a"}))

	n, err := m.Purge(ctx, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	entries, err := m.QuarantineQueue(ctx, "u1", 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}
