package platform

import (
	"context"
	"sync"
	"time"

	"github.com/hitlbot/warden/pkg/werrors"
)

var errTransient = werrors.New(werrors.KindTransientExternal, "fake client induced send failure")

// FakeClient is a deterministic in-memory Client used in tests for the
// Dispatcher and Recovery Agent.
type FakeClient struct {
	mu       sync.Mutex
	Sent     map[string][]string
	Dialogs  []string
	History  map[string][]HistoryMessage
	FailSend bool
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Sent:    make(map[string][]string),
		History: make(map[string][]HistoryMessage),
	}
}

func (f *FakeClient) SendMessage(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend {
		return errTransient
	}
	f.Sent[userID] = append(f.Sent[userID], text)
	return nil
}

func (f *FakeClient) SendTyping(context.Context, string, time.Duration) error { return nil }

func (f *FakeClient) ResolveHandle(context.Context, string) error { return nil }

func (f *FakeClient) ListDialogs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.Dialogs...), nil
}

func (f *FakeClient) HistorySince(_ context.Context, userID, afterMsgID string, _ int) ([]HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []HistoryMessage
	for _, m := range f.History[userID] {
		if m.PlatformMsgID > afterMsgID {
			out = append(out, m)
		}
	}
	return out, nil
}

// SentFor returns the bubbles sent to a user, in order.
func (f *FakeClient) SentFor(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.Sent[userID]...)
}
