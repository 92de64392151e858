package dispatch_test

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
	"github.com/hitlbot/warden/pkg/dispatch"
	"github.com/hitlbot/warden/pkg/memory"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/platform"
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

func TestDispatchSendsAllBubblesAndAppendsMemory(t *testing.T) {
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
	require.NoError(t, s.Interactions.Approve(ctx, "int-1", "rev-1", []string{"hi there", "how are you?"}, nil, 5, ""))

	fake := platform.NewFakeClient()
	pm := protocol.New(s, b)
	mem := memory.New(config.MemoryConfig{MaxMessages: 50, MaxBytes: 102400})
	d := dispatch.New(s, b, fake, pm, mem, nil)

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	go d.Run(dctx)

	require.NoError(t, b.PushApproved(ctx, broker.ApprovedJob{InteractionID: "int-1", UserID: "u1"}))

	require.Eventually(t, func() bool {
		return len(fake.SentFor("u1")) == 2
	}, 8*time.Second, 50*time.Millisecond)

	require.Equal(t, []string{"hi there", "how are you?"}, fake.SentFor("u1"))

	recent := mem.Recent(ctx, "u1", 10)
	require.Len(t, recent, 2)
	require.Equal(t, memory.RoleAssistant, recent[0].Role)
}

func TestDispatchCancelsWhenQuarantined(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u2")
	require.NoError(t, err)
	require.NoError(t, s.Interactions.Create(ctx, &models.Interaction{
		ID: "int-2", UserID: "u2", PlatformMsgIDs: []string{"2"},
		PlatformTS: time.Now(), IngestTS: time.Now(), RawText: "hi",
		ReviewStatus: models.ReviewStatusPending,
	}))
	require.NoError(t, s.Interactions.Approve(ctx, "int-2", "rev-1", []string{"first bubble", "second bubble"}, nil, 5, ""))

	pm := protocol.New(s, b)
	require.NoError(t, pm.Activate(ctx, "u2", "reviewer-x"))

	fake := platform.NewFakeClient()
	mem := memory.New(config.MemoryConfig{MaxMessages: 50, MaxBytes: 102400})
	d := dispatch.New(s, b, fake, pm, mem, nil)

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	go d.Run(dctx)

	require.NoError(t, b.PushApproved(ctx, broker.ApprovedJob{InteractionID: "int-2", UserID: "u2"}))

	time.Sleep(2 * time.Second)
	require.Empty(t, fake.SentFor("u2"))
}
