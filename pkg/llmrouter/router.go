// Package llmrouter implements the LLM Router (spec.md §2 C5, §4.5):
// profile-driven selection of generation and refinement models with
// cost/quota tracking, fallback chains, and stable-prefix prompt-cache
// optimization for the refiner role.
//
// The registry shape is grounded on the teacher's
// pkg/config.LLMProviderRegistry (thread-safe, copy-on-read/copy-on-write),
// and the request/response shape is a collapsed, synchronous form of the
// teacher's pkg/agent.LLMClient streaming-chunk interface — the two-stage
// pipeline needs complete text to run the coherence check before
// formatting bubbles, not a token stream.
package llmrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/werrors"
)

// Role identifies a profile's logical model slot.
type Role string

const (
	RoleGenerator Role = "generator"
	RoleRefiner   Role = "refiner"
)

// CacheHintStrategy controls how the router shapes refiner prompts.
type CacheHintStrategy string

const (
	CacheHintStablePrefix CacheHintStrategy = "stable_prefix"
	CacheHintNone         CacheHintStrategy = "none"
)

// ModelConfig configures one role (generator or refiner) within a profile.
type ModelConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	FallbackChain  []string
	DailyQuota     int // 0 = unlimited
	InputPricePerM float64
	OutputPricePerM float64
	CachedPricePerM float64
}

// Profile configures the generator and refiner roles together, per
// spec.md §4.5's enumerated profile options.
type Profile struct {
	Name              string
	Generator         ModelConfig
	Refiner           ModelConfig
	CacheHintStrategy CacheHintStrategy
}

// Message is one turn of a conversation submitted to a Provider.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Result is the normalized shape of a generate/refine call (spec.md §4.5).
type Result struct {
	Text         string
	TokensIn     int
	TokensOut    int
	CachedTokens int
	Cost         float64
	ModelUsed    string
}

// Provider is the out-of-scope external collaborator named in spec.md §1
// ("concrete LLM provider SDKs"): anything that can turn a model name and a
// message list into a Result. A real implementation would wrap a provider
// SDK (e.g. github.com/anthropics/anthropic-sdk-go); Warden ships the
// interface plus a deterministic in-tree provider for tests.
type Provider interface {
	Complete(ctx context.Context, model string, messages []Message, temperature float64, maxTokens int) (Result, error)
}

// Registry holds the set of named profiles, mirroring the teacher's
// LLMProviderRegistry: an RWMutex plus copy-on-read/copy-on-write so
// callers never observe a registry mid-mutation.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

// Put registers or replaces a profile.
func (r *Registry) Put(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
}

// Get returns a copy of a named profile.
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns all registered profile names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		out = append(out, n)
	}
	return out
}

// Router is hot-swappable at runtime (spec.md §4.5 switch_profile) and
// never interrupts in-flight requests, since each call snapshots its
// profile before starting work.
type Router struct {
	registry *Registry
	provider Provider
	broker   *broker.Broker
	logger   *slog.Logger

	mu             sync.RWMutex
	currentProfile string
	degraded       bool
}

// New creates a Router bound to a profile registry, a Provider, and the
// Queue Broker for quota accounting.
func New(registry *Registry, provider Provider, b *broker.Broker, defaultProfile string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: registry, provider: provider, broker: b, currentProfile: defaultProfile, logger: logger}
}

// CurrentProfile returns the active profile name (spec.md §4.5 current_profile).
func (r *Router) CurrentProfile() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentProfile
}

// Profiles returns the names of all registered profiles (spec.md §6.1
// GET /models/profiles).
func (r *Router) Profiles() []string {
	return r.registry.Names()
}

// SwitchProfile hot-swaps the active profile name.
func (r *Router) SwitchProfile(name string) error {
	if _, ok := r.registry.Get(name); !ok {
		return werrors.New(werrors.KindValidation, fmt.Sprintf("unknown profile %q", name))
	}
	r.mu.Lock()
	r.currentProfile = name
	r.mu.Unlock()
	return nil
}

// Degraded reports whether the router is operating without full quota
// headroom (spec.md §7 QuotaExhausted → "/models/current reports degraded").
func (r *Router) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

func (r *Router) setDegraded(v bool) {
	r.mu.Lock()
	r.degraded = v
	r.mu.Unlock()
}

// Generate runs the generator role of the active profile (spec.md §4.5).
func (r *Router) Generate(ctx context.Context, messages []Message) (Result, error) {
	profile, ok := r.registry.Get(r.CurrentProfile())
	if !ok {
		return Result{}, werrors.New(werrors.KindValidation, "no active profile")
	}
	return r.callWithFallback(ctx, RoleGenerator, profile.Generator, messages)
}

// Refine runs the refiner role of the active profile, used both for
// bubble formatting and (with a distinct system directive) for the
// coherence check (spec.md §4.5, §4.6 steps 3-4).
func (r *Router) Refine(ctx context.Context, messages []Message) (Result, error) {
	profile, ok := r.registry.Get(r.CurrentProfile())
	if !ok {
		return Result{}, werrors.New(werrors.KindValidation, "no active profile")
	}
	return r.callWithFallback(ctx, RoleRefiner, profile.Refiner, messages)
}

// callWithFallback implements retry + fallback-chain policy from spec.md
// §4.5: TransientProviderError retries with exponential backoff (base
// 0.5s, factor 2, max 4 attempts); RateLimited fails over immediately;
// MalformedResponse fails over once, then surfaces. Quota is checked
// before each candidate model via the broker's atomic counter.
func (r *Router) callWithFallback(ctx context.Context, role Role, mc ModelConfig, messages []Message) (Result, error) {
	if r.provider == nil {
		return Result{}, ErrNoProvider
	}
	candidates := append([]string{mc.Model}, mc.FallbackChain...)

	var lastErr error
	malformedSeen := false
	for i, model := range candidates {
		if mc.DailyQuota > 0 && r.broker != nil {
			day := time.Now().UTC().Format("20060102")
			count, err := r.broker.QuotaCount(ctx, model, day)
			if err == nil && count >= int64(mc.DailyQuota) {
				lastErr = werrors.ErrQuotaExhausted
				continue
			}
		}

		res, err := r.tryModel(ctx, model, messages, mc.Temperature, mc.MaxTokens)
		if err == nil {
			if r.broker != nil && mc.DailyQuota > 0 {
				day := time.Now().UTC().Format("20060102")
				_, _ = r.broker.IncrQuota(ctx, model, day)
			}
			res.Cost = estimateCost(mc, res)
			r.setDegraded(i > 0)
			return res, nil
		}

		lastErr = err
		if werrors.Is(err, werrors.KindMalformedLLMOutput) {
			if malformedSeen {
				break // second malformed response: surface it
			}
			malformedSeen = true
			continue
		}
		if werrors.Is(err, werrors.KindQuotaExhausted) || werrors.Is(err, werrors.KindTransientExternal) {
			continue // fail over immediately / after retries exhausted
		}
	}

	r.setDegraded(true)
	if werrors.Is(lastErr, werrors.KindMalformedLLMOutput) {
		return Result{}, lastErr
	}
	if lastErr == nil {
		lastErr = werrors.ErrQuotaExhausted
	}
	return Result{}, werrors.Wrap(werrors.KindQuotaExhausted, fmt.Sprintf("%s: all fallbacks exhausted", role), lastErr)
}

func (r *Router) tryModel(ctx context.Context, model string, messages []Message, temperature float64, maxTokens int) (Result, error) {
	const maxAttempts = 4
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, err := r.provider.Complete(ctx, model, messages, temperature, maxTokens)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if werrors.Is(err, werrors.KindQuotaExhausted) {
			return Result{}, err // RateLimited-equivalent: fail over immediately
		}
		if werrors.Is(err, werrors.KindMalformedLLMOutput) {
			return Result{}, err // fail over once, surfaced by caller
		}
		if !werrors.Is(err, werrors.KindTransientExternal) {
			return Result{}, err
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return Result{}, lastErr
}

func estimateCost(mc ModelConfig, res Result) float64 {
	billable := res.TokensIn - res.CachedTokens
	if billable < 0 {
		billable = 0
	}
	cost := float64(billable) / 1e6 * mc.InputPricePerM
	cost += float64(res.CachedTokens) / 1e6 * mc.CachedPricePerM
	cost += float64(res.TokensOut) / 1e6 * mc.OutputPricePerM
	return cost
}

// ErrNoProvider is returned when a Router is constructed without a Provider.
var ErrNoProvider = errors.New("llmrouter: no provider configured")
