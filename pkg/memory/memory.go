// Package memory implements the Memory Manager (spec.md §2 C4, §4.4): a
// bounded, per-user conversation history with progressive compression and a
// stable summary used to maximize the LLM Router's prompt-cache hit rate.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitlbot/warden/pkg/config"
)

// Role identifies the speaker of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one turn in a user's bounded history.
type Entry struct {
	Role Role
	Text string
	TS   time.Time
}

type userMemory struct {
	mu      sync.Mutex
	entries []Entry
	summary string
	lastSeen time.Time
}

func (u *userMemory) size() int {
	n := 0
	for _, e := range u.entries {
		n += len(e.Text)
	}
	return n
}

// Manager implements append/recent/summary/forget with single-writer,
// possibly-stale-reader semantics per user (spec.md §4.4 Concurrency).
type Manager struct {
	cfg config.MemoryConfig

	mu    sync.RWMutex
	users map[string]*userMemory

	ttl time.Duration
}

// New creates a Manager bounded by cfg.
func New(cfg config.MemoryConfig) *Manager {
	return &Manager{
		cfg:   cfg,
		users: make(map[string]*userMemory),
		ttl:   30 * 24 * time.Hour,
	}
}

func (m *Manager) get(userID string) *userMemory {
	m.mu.RLock()
	u, ok := m.users[userID]
	m.mu.RUnlock()
	if ok {
		return u
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return u
	}
	u = &userMemory{}
	m.users[userID] = u
	return u
}

// Append records one turn and applies progressive compression if the
// per-user history exceeds its bounds (spec.md §4.4).
func (m *Manager) Append(_ context.Context, userID string, role Role, text string) {
	u := m.get(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	u.entries = append(u.entries, Entry{Role: role, Text: text, TS: time.Now()})
	u.lastSeen = time.Now()
	u.compress(m.cfg)
}

// compress drops oldest user/assistant pairs first; if still over budget,
// replaces the oldest third with a deterministic summary entry (spec.md
// §4.4: "drop oldest user/assistant pairs first; if still over budget,
// replace the oldest third by a deterministic summary").
func (u *userMemory) compress(cfg config.MemoryConfig) {
	for len(u.entries) > cfg.MaxMessages || u.size() > cfg.MaxBytes {
		if len(u.entries) <= 2 {
			break
		}
		u.entries = u.entries[2:]
		if len(u.entries) <= cfg.MaxMessages && u.size() <= cfg.MaxBytes {
			return
		}
	}

	if len(u.entries) > cfg.MaxMessages || u.size() > cfg.MaxBytes {
		third := len(u.entries) / 3
		if third > 0 {
			digest := summarize(u.entries[:third])
			rest := append([]Entry{}, u.entries[third:]...)
			u.entries = append([]Entry{{Role: RoleAssistant, Text: digest, TS: time.Now()}}, rest...)
		}
	}
}

// summarize produces a stable, deterministic digest of topics — a simple
// frequency count over the combined text, not an LLM call, so that the
// resulting summary text is byte-identical across runs given the same
// input (needed for the Router's stable-prefix cache optimization).
func summarize(entries []Entry) string {
	freq := map[string]int{}
	for _, e := range entries {
		for _, word := range strings.Fields(strings.ToLower(e.Text)) {
			word = strings.Trim(word, ".,!?;:\"'")
			if len(word) < 4 {
				continue
			}
			freq[word]++
		}
	}
	type kv struct {
		word  string
		count int
	}
	var kvs []kv
	for w, c := range freq {
		kvs = append(kvs, kv{w, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].word < kvs[j].word
	})

	topN := 5
	if len(kvs) < topN {
		topN = len(kvs)
	}
	topics := make([]string, topN)
	for i := 0; i < topN; i++ {
		topics[i] = kvs[i].word
	}
	return fmt.Sprintf("[earlier conversation covered: %s]", strings.Join(topics, ", "))
}

// Recent returns the last k entries for prompt construction (default k=6
// per spec.md §4.4).
func (m *Manager) Recent(_ context.Context, userID string, k int) []Entry {
	u := m.get(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if k > len(u.entries) {
		k = len(u.entries)
	}
	out := make([]Entry, k)
	copy(out, u.entries[len(u.entries)-k:])
	return out
}

// Summary returns the stable textual digest, regenerated only when
// compress() rewrites the oldest entries — callers needing a fresh summary
// should call Recent/Append first, then Summary reflects the latest state.
func (m *Manager) Summary(_ context.Context, userID string) string {
	u := m.get(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.entries) == 0 {
		return ""
	}
	if u.entries[0].Role == RoleAssistant && strings.HasPrefix(u.entries[0].Text, "[earlier conversation covered:") {
		return u.entries[0].Text
	}
	return ""
}

// Forget erases all memory for a user (privacy request, spec.md §4.4).
func (m *Manager) Forget(_ context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
}

// SweepExpired drops users whose history has been idle past the 30-day TTL
// (spec.md §4.4 "History TTL is 30 days of inactivity").
func (m *Manager) SweepExpired(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.ttl)
	removed := 0
	for id, u := range m.users {
		u.mu.Lock()
		stale := u.lastSeen.Before(cutoff)
		u.mu.Unlock()
		if stale {
			delete(m.users, id)
			removed++
		}
	}
	return removed
}
