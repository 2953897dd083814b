// Package ratelimit backs off from providers that report rate limiting. A
// provider that answered with RATE_LIMITED stays throttled until its
// Retry-After hint (or an exponential backoff) elapses; calls made in that
// window fail fast with a non-retryable RATE_LIMITED error so the failover
// executor moves on to the next adapter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

type State struct {
	Provider       string
	ThrottledUntil *time.Time
	RetryAfter     *time.Duration
	Attempts       int
	UpdatedAt      time.Time
}

// Throttled reports whether the window is still open at now.
func (s State) Throttled(now time.Time) bool {
	return s.ThrottledUntil != nil && now.Before(*s.ThrottledUntil)
}

type StateStore interface {
	Get(ctx context.Context, provider string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type Option func(*Guard)

func WithStateStore(store StateStore) Option {
	return func(g *Guard) {
		if store != nil {
			g.store = store
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithBackoff sets the window used when a provider gives no Retry-After
// hint. The window doubles per consecutive rate limit up to maximum.
func WithBackoff(initial, maximum time.Duration) Option {
	return func(g *Guard) {
		if initial > 0 {
			g.initialBackoff = initial
		}
		if maximum > 0 {
			g.maxBackoff = maximum
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(g *Guard) {
		g.logger = glog.Ensure(logger)
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(g *Guard) {
		if recorder != nil {
			g.metrics = recorder
		}
	}
}

// Guard implements core.AdapterGuard.
type Guard struct {
	store          StateStore
	now            func() time.Time
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         glog.Logger
	metrics        core.MetricsRecorder
}

func New(opts ...Option) *Guard {
	guard := &Guard{
		store:          NewMemoryStateStore(),
		now:            func() time.Time { return time.Now().UTC() },
		initialBackoff: time.Second,
		maxBackoff:     time.Minute,
		logger:         glog.Nop(),
		metrics:        core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(guard)
		}
	}
	return guard
}

func (g *Guard) Guard(ctx context.Context, provider string, call func(context.Context) error) error {
	if call == nil {
		return nil
	}
	if g == nil || g.store == nil {
		return call(ctx)
	}
	provider = normalizeProvider(provider)
	if err := g.BeforeCall(ctx, provider); err != nil {
		return err
	}
	callErr := call(ctx)
	if err := g.AfterCall(ctx, provider, callErr); err != nil {
		g.logger.Warn("rate limit state not recorded", "provider", provider, "error", err)
	}
	return callErr
}

// BeforeCall fails fast while provider is throttled.
func (g *Guard) BeforeCall(ctx context.Context, provider string) error {
	if g == nil || g.store == nil {
		return nil
	}
	provider = normalizeProvider(provider)
	state, err := g.store.Get(ctx, provider)
	if errors.Is(err, ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	now := g.clock()
	if !state.Throttled(now) {
		return nil
	}
	remaining := state.ThrottledUntil.Sub(now)
	g.logger.Debug("throttled call rejected", "provider", provider, "retry_after_ms", remaining.Milliseconds())
	g.metrics.IncCounter(ctx, "integrations.ratelimit.rejections", 1, map[string]string{"provider": provider})
	return Throttled(provider, remaining)
}

// AfterCall opens a throttle window when callErr is a RATE_LIMITED provider
// error and clears it after any other outcome.
func (g *Guard) AfterCall(ctx context.Context, provider string, callErr error) error {
	if g == nil || g.store == nil {
		return nil
	}
	provider = normalizeProvider(provider)
	now := g.clock()
	state, err := g.store.Get(ctx, provider)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		if !isRateLimited(callErr) {
			return nil
		}
		state = State{Provider: provider}
	}
	state.UpdatedAt = now

	var providerErr *core.ProviderError
	if !errors.As(callErr, &providerErr) || providerErr.Code != core.ProviderErrorRateLimited {
		state.Attempts = 0
		state.ThrottledUntil = nil
		state.RetryAfter = nil
		return g.store.Upsert(ctx, state)
	}

	state.Attempts++
	delay := providerErr.RetryAfter
	if delay > 0 {
		state.RetryAfter = &delay
	} else {
		state.RetryAfter = nil
		delay = g.nextBackoff(state.Attempts)
	}
	until := now.Add(delay)
	state.ThrottledUntil = &until
	g.logger.Info("provider throttled", "provider", provider, "retry_after_ms", delay.Milliseconds(), "attempts", state.Attempts)
	g.metrics.IncCounter(ctx, "integrations.ratelimit.throttled", 1, map[string]string{"provider": provider})
	return g.store.Upsert(ctx, state)
}

// Throttled builds the error reported for a call rejected inside a throttle
// window.
func Throttled(provider string, retryAfter time.Duration) error {
	err := core.NewRateLimitError(provider, retryAfter)
	err.Retryable = false
	err.Message = fmt.Sprintf("Rate limited by %s; retry in %s", err.Provider, retryAfter.Round(time.Millisecond))
	return err
}

func (g *Guard) clock() time.Time {
	if g != nil && g.now != nil {
		return g.now().UTC()
	}
	return time.Now().UTC()
}

func (g *Guard) nextBackoff(attempt int) time.Duration {
	initial := g.initialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := g.maxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func isRateLimited(err error) bool {
	var providerErr *core.ProviderError
	return errors.As(err, &providerErr) && providerErr.Code == core.ProviderErrorRateLimited
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, provider string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[normalizeProvider(provider)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Provider = normalizeProvider(state.Provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Provider] = state
	return nil
}

var _ core.AdapterGuard = (*Guard)(nil)
