package llmrouter

import (
	"context"
	"strings"
	"sync"

	"github.com/hitlbot/warden/pkg/werrors"
)

// MockProvider is a deterministic in-tree stand-in for a real provider SDK,
// used in tests and local development. It echoes a canned response per
// model name and can be configured to fail a fixed number of times before
// succeeding, to exercise the Router's retry/fallback policy.
type MockProvider struct {
	mu         sync.Mutex
	Responses  map[string]string
	FailNTimes map[string]int
	FailKind   map[string]werrors.Kind
	calls      []string
}

// NewMockProvider creates an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Responses:  make(map[string]string),
		FailNTimes: make(map[string]int),
		FailKind:   make(map[string]werrors.Kind),
	}
}

// Calls returns the model names invoked, in order.
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.calls...)
}

func (m *MockProvider) Complete(_ context.Context, model string, messages []Message, _ float64, _ int) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, model)
	if n := m.FailNTimes[model]; n > 0 {
		m.FailNTimes[model] = n - 1
		kind := m.FailKind[model]
		if kind == "" {
			kind = werrors.KindTransientExternal
		}
		m.mu.Unlock()
		return Result{}, werrors.New(kind, "mock provider induced failure")
	}
	resp, ok := m.Responses[model]
	m.mu.Unlock()
	if !ok {
		resp = "ok"
	}

	var lastUser string
	for _, msg := range messages {
		if msg.Role == "user" {
			lastUser = msg.Content
		}
	}

	return Result{
		Text:      resp,
		TokensIn:  len(strings.Fields(lastUser)) + 50,
		TokensOut: len(strings.Fields(resp)),
		ModelUsed: model,
	}, nil
}
