package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/memory"
)

func TestAppendAndRecent(t *testing.T) {
	m := memory.New(config.MemoryConfig{MaxMessages: 50, MaxBytes: 102400})
	ctx := context.Background()

	m.Append(ctx, "u1", memory.RoleUser, "hey what are you up to?")
	m.Append(ctx, "u1", memory.RoleAssistant, "just studying")
	m.Append(ctx, "u1", memory.RoleAssistant, "you?")

	recent := m.Recent(ctx, "u1", 6)
	require.Len(t, recent, 3)
	assert.Equal(t, "hey what are you up to?", recent[0].Text)
	assert.Equal(t, "you?", recent[2].Text)
}

func TestCompressionDropsOldestPairs(t *testing.T) {
	m := memory.New(config.MemoryConfig{MaxMessages: 4, MaxBytes: 102400})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		m.Append(ctx, "u1", memory.RoleUser, "hi")
		m.Append(ctx, "u1", memory.RoleAssistant, "hello")
	}

	recent := m.Recent(ctx, "u1", 100)
	assert.LessOrEqual(t, len(recent), 4)
}

func TestForgetErasesHistory(t *testing.T) {
	m := memory.New(config.MemoryConfig{MaxMessages: 50, MaxBytes: 102400})
	ctx := context.Background()

	m.Append(ctx, "u1", memory.RoleUser, "hi")
	m.Forget(ctx, "u1")

	recent := m.Recent(ctx, "u1", 6)
	assert.Empty(t, recent)
}
