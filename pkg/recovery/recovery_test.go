package recovery_test

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
	"github.com/hitlbot/warden/pkg/platform"
	"github.com/hitlbot/warden/pkg/recovery"
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

func TestRunRecoversRecentMessagesOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	fake := platform.NewFakeClient()
	fake.Dialogs = []string{"u1"}
	fake.History["u1"] = []platform.HistoryMessage{
		{UserID: "u1", PlatformMsgID: "1", Text: "recent", PlatformTS: time.Now().Add(-1 * time.Hour)},
		{UserID: "u1", PlatformMsgID: "2", Text: "too old", PlatformTS: time.Now().Add(-24 * time.Hour)},
	}

	agent := recovery.New(s, b, fake, config.RecoveryConfig{
		MaxAgeHours: 12, MaxMessagesPerRun: 100, MaxUsersPerRun: 50, RatePerSec: 30,
	}, nil)

	op, err := agent.Run(ctx, models.RecoveryTriggerStartup)
	require.NoError(t, err)
	require.Equal(t, models.RecoveryCompleted, op.Status)
	require.Equal(t, 1, op.Tier1Count)
	require.Equal(t, 1, op.SkipCount)

	n, err := b.IntakeLen(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestRunAdvancesCursorPastSkippedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	fake := platform.NewFakeClient()
	fake.Dialogs = []string{"u1"}
	fake.History["u1"] = []platform.HistoryMessage{
		{UserID: "u1", PlatformMsgID: "401", Text: "recent", PlatformTS: time.Now().Add(-1 * time.Hour)},
		{UserID: "u1", PlatformMsgID: "402", Text: "ancient", PlatformTS: time.Now().Add(-24 * time.Hour)},
	}

	agent := recovery.New(s, b, fake, config.RecoveryConfig{
		MaxAgeHours: 12, MaxMessagesPerRun: 100, MaxUsersPerRun: 50, RatePerSec: 30,
	}, nil)

	op, err := agent.Run(ctx, models.RecoveryTriggerStartup)
	require.NoError(t, err)
	require.Equal(t, 1, op.Tier1Count)
	require.Equal(t, 1, op.SkipCount)

	cursor, err := s.Cursors.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "402", cursor.LastPlatformID)

	// A second pass must not re-examine 401/402: HistorySince is exclusive
	// of the cursor, so the fake's fixed history yields nothing new.
	op2, err := agent.Run(ctx, models.RecoveryTriggerStartup)
	require.NoError(t, err)
	require.Zero(t, op2.Tier1Count)
	require.Zero(t, op2.SkipCount)
}

func TestRunEnforcesHardCapAcrossConcurrentUsers(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()

	fake := platform.NewFakeClient()
	for i := 0; i < 10; i++ {
		userID := "u" + string(rune('a'+i))
		_, err := s.Users.EnsureExists(ctx, userID)
		require.NoError(t, err)
		fake.Dialogs = append(fake.Dialogs, userID)
		fake.History[userID] = []platform.HistoryMessage{
			{UserID: userID, PlatformMsgID: "1", Text: "a", PlatformTS: time.Now().Add(-1 * time.Hour)},
			{UserID: userID, PlatformMsgID: "2", Text: "b", PlatformTS: time.Now().Add(-1 * time.Hour)},
		}
	}

	agent := recovery.New(s, b, fake, config.RecoveryConfig{
		MaxAgeHours: 12, MaxMessagesPerRun: 5, MaxUsersPerRun: 50, RatePerSec: 1000,
	}, nil)

	op, err := agent.Run(ctx, models.RecoveryTriggerStartup)
	require.NoError(t, err)
	require.LessOrEqual(t, op.Tier1Count, 5)

	n, err := b.IntakeLen(ctx)
	require.NoError(t, err)
	require.LessOrEqual(t, n, int64(5))
}

func TestRunRejectsConcurrentExecution(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, s.Recoveries.Create(ctx, &models.RecoveryOperation{
		ID: "already-running", Trigger: models.RecoveryTriggerManual, StartedAt: time.Now(), Status: models.RecoveryRunning,
	}))

	fake := platform.NewFakeClient()
	agent := recovery.New(s, b, fake, config.RecoveryConfig{
		MaxAgeHours: 12, MaxMessagesPerRun: 100, MaxUsersPerRun: 50, RatePerSec: 30,
	}, nil)

	_, err := agent.Run(ctx, models.RecoveryTriggerManual)
	require.Error(t, err)
}
