package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/models"
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

func TestInteractionLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	in := &models.Interaction{
		ID:             "int-1",
		UserID:         "u1",
		PlatformMsgIDs: []string{"100"},
		PlatformTS:     time.Now(),
		IngestTS:       time.Now(),
		RawText:        "hey what are you up to?",
		ReviewStatus:   models.ReviewStatusPending,
	}
	require.NoError(t, s.Interactions.Create(ctx, in))

	exists, err := s.Interactions.ExistsForPlatformMsgID(ctx, "100")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, s.Interactions.Claim(ctx, "int-1", "rev-1"))
	err = s.Interactions.Claim(ctx, "int-1", "rev-2")
	require.Error(t, err)

	require.NoError(t, s.Interactions.Approve(ctx, "int-1", "rev-1", []string{"just studying", "you?"}, nil, 5, ""))

	got, err := s.Interactions.Get(ctx, "int-1")
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusApproved, got.ReviewStatus)
	require.Len(t, got.FinalBubbles, 2)
}

func TestCursorMonotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Users.EnsureExists(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, s.Cursors.AdvanceIfGreater(ctx, "u1", "100"))
	require.NoError(t, s.Cursors.AdvanceIfGreater(ctx, "u1", "50"))

	c, err := s.Cursors.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "100", c.LastPlatformID)
}
