package llmrouter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitlbot/warden/pkg/llmrouter"
	"github.com/hitlbot/warden/pkg/werrors"
)

func newRouter(t *testing.T, provider *llmrouter.MockProvider, profile llmrouter.Profile) *llmrouter.Router {
	t.Helper()
	reg := llmrouter.NewRegistry()
	reg.Put(profile)
	return llmrouter.New(reg, provider, nil, profile.Name, nil)
}

func TestGenerateHappyPath(t *testing.T) {
	provider := llmrouter.NewMockProvider()
	provider.Responses["primary-model"] = "just studying"

	r := newRouter(t, provider, llmrouter.Profile{
		Name:      "default",
		Generator: llmrouter.ModelConfig{Model: "primary-model", MaxTokens: 500},
	})

	res, err := r.Generate(context.Background(), []llmrouter.Message{{Role: "user", Content: "hey"}})
	require.NoError(t, err)
	assert.Equal(t, "just studying", res.Text)
	assert.Equal(t, "primary-model", res.ModelUsed)
	assert.False(t, r.Degraded())
}

func TestFallbackOnRateLimit(t *testing.T) {
	provider := llmrouter.NewMockProvider()
	provider.FailNTimes["primary-model"] = 1
	provider.FailKind["primary-model"] = werrors.KindQuotaExhausted
	provider.Responses["fallback-model"] = "fallback response"

	r := newRouter(t, provider, llmrouter.Profile{
		Name:      "default",
		Generator: llmrouter.ModelConfig{Model: "primary-model", FallbackChain: []string{"fallback-model"}},
	})

	res, err := r.Generate(context.Background(), []llmrouter.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "fallback response", res.Text)
	assert.True(t, r.Degraded())
}

func TestAllFallbacksExhaustedYieldsQuotaExhausted(t *testing.T) {
	provider := llmrouter.NewMockProvider()
	provider.FailNTimes["primary-model"] = 99
	provider.FailKind["primary-model"] = werrors.KindQuotaExhausted
	provider.FailNTimes["fallback-model"] = 99
	provider.FailKind["fallback-model"] = werrors.KindQuotaExhausted

	r := newRouter(t, provider, llmrouter.Profile{
		Name:      "default",
		Generator: llmrouter.ModelConfig{Model: "primary-model", FallbackChain: []string{"fallback-model"}},
	})

	_, err := r.Generate(context.Background(), []llmrouter.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.True(t, werrors.Is(err, werrors.KindQuotaExhausted))
}

func TestSwitchProfile(t *testing.T) {
	provider := llmrouter.NewMockProvider()
	reg := llmrouter.NewRegistry()
	reg.Put(llmrouter.Profile{Name: "a", Generator: llmrouter.ModelConfig{Model: "model-a"}})
	reg.Put(llmrouter.Profile{Name: "b", Generator: llmrouter.ModelConfig{Model: "model-b"}})
	r := llmrouter.New(reg, provider, nil, "a", nil)

	assert.Equal(t, "a", r.CurrentProfile())
	require.NoError(t, r.SwitchProfile("b"))
	assert.Equal(t, "b", r.CurrentProfile())

	err := r.SwitchProfile("nonexistent")
	require.Error(t, err)
}

func TestStablePrefixByteIdenticalAcrossCalls(t *testing.T) {
	b := llmrouter.StablePrefixBuilder{Persona: "You are Aria.", Instructions: "Be casual."}
	p1 := b.BuildStablePrefix("[earlier conversation covered: exams, drinks]")
	p2 := b.BuildStablePrefix("[earlier conversation covered: exams, drinks]")
	assert.Equal(t, p1, p2)

	msgs := b.BuildRefinerMessages("summary", llmrouter.Message{Role: "user", Content: "draft text"})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "draft text", msgs[1].Content)
}
