package ingress_test

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
	"github.com/hitlbot/warden/pkg/ingress"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/platform"
	"github.com/hitlbot/warden/pkg/protocol"
	"github.com/hitlbot/warden/pkg/store"
	"github.com/hitlbot/warden/pkg/werrors"
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

func debounceCfg() config.DebounceConfig {
	return config.DebounceConfig{Seconds: 5, MaxBatch: 5, MaxWaitSeconds: 30, TypingWindowSeconds: 8}
}

func TestHandleNewMessageAppendsToIntake(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	pm := protocol.New(s, b)
	fake := platform.NewFakeClient()
	ctx := context.Background()

	a := ingress.New(s, b, pm, fake, debounceCfg(), nil)

	err := a.HandleNewMessage(ctx, ingress.NewMessageInput{
		UserID: "u1", PlatformMsgID: "1", Text: "hello", PlatformTS: time.Now(),
	})
	require.NoError(t, err)

	n, err := b.IntakeLen(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	u, err := s.Users.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)
}

func TestHandleNewMessageQuarantinesWhenActive(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	pm := protocol.New(s, b)
	fake := platform.NewFakeClient()
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u2")
	require.NoError(t, err)
	require.NoError(t, pm.Activate(ctx, "u2", "reviewer-x"))

	a := ingress.New(s, b, pm, fake, debounceCfg(), nil)

	err = a.HandleNewMessage(ctx, ingress.NewMessageInput{
		UserID: "u2", PlatformMsgID: "2", Text: "hello while silenced", PlatformTS: time.Now(),
	})
	require.NoError(t, err)

	n, err := b.IntakeLen(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	entries, err := pm.QuarantineQueue(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "hello while silenced", entries[0].Text)
}

func TestHandleTypingSetsFlag(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	pm := protocol.New(s, b)
	fake := platform.NewFakeClient()
	ctx := context.Background()

	a := ingress.New(s, b, pm, fake, debounceCfg(), nil)

	require.NoError(t, a.HandleTyping(ctx, ingress.TypingInput{UserID: "u3"}))

	typing, err := b.IsTyping(ctx, "u3")
	require.NoError(t, err)
	require.True(t, typing)
}

func TestHandleNewMessageRejectsDuplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	b := newTestBroker(t)
	pm := protocol.New(s, b)
	fake := platform.NewFakeClient()
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u4")
	require.NoError(t, err)
	require.NoError(t, s.Interactions.Create(ctx, &models.Interaction{
		ID: "int-dup", UserID: "u4", PlatformMsgIDs: []string{"dup-1"},
		PlatformTS: time.Now(), IngestTS: time.Now(), RawText: "already ingested",
		ReviewStatus: models.ReviewStatusPending,
	}))

	a := ingress.New(s, b, pm, fake, debounceCfg(), nil)

	err = a.HandleNewMessage(ctx, ingress.NewMessageInput{
		UserID: "u4", PlatformMsgID: "dup-1", Text: "hello again", PlatformTS: time.Now(),
	})
	require.ErrorIs(t, err, werrors.ErrDuplicateIngest)
}
