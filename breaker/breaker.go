// Package breaker guards provider adapters with one circuit breaker per
// provider name. An open circuit is reported as a non-retryable
// PROVIDER_UNAVAILABLE error so the failover executor moves on to the next
// adapter without spending the retry budget.
package breaker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultMaxRequests uint32 = 1
	DefaultMinRequests uint32 = 5
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultFailureRatio = 0.5
)

type Config struct {
	// MaxRequests is the number of probe calls allowed while half-open.
	MaxRequests uint32
	// Interval clears closed-state counts periodically. Zero never clears.
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// MinRequests and FailureRatio drive the default trip rule.
	MinRequests  uint32
	FailureRatio float64
	// ConsecutiveFailures trips the circuit after that many failures in a
	// row when non-zero, regardless of ratio.
	ConsecutiveFailures uint32
}

func DefaultConfig() Config {
	return Config{
		MaxRequests:  DefaultMaxRequests,
		Timeout:      DefaultTimeout,
		MinRequests:  DefaultMinRequests,
		FailureRatio: DefaultFailureRatio,
	}
}

// ReadyToTrip applies the configured trip rule to counts.
func (c Config) ReadyToTrip(counts gobreaker.Counts) bool {
	if c.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if counts.Requests == 0 || counts.Requests < c.MinRequests {
		return false
	}
	ratio := float64(counts.TotalFailures) / float64(counts.Requests)
	return ratio >= c.FailureRatio
}

type Option func(*Guard)

func WithConfig(cfg Config) Option {
	return func(g *Guard) {
		g.config = cfg
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

// WithFailurePredicate decides which call errors count against the circuit.
// By default only retryable errors do, so permanent input errors never trip
// a healthy provider.
func WithFailurePredicate(isFailure func(error) bool) Option {
	return func(g *Guard) {
		if isFailure != nil {
			g.isFailure = isFailure
		}
	}
}

// Guard implements core.AdapterGuard.
type Guard struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker[struct{}]
	config    Config
	logger    glog.Logger
	metrics   core.MetricsRecorder
	isFailure func(error) bool
}

func New(opts ...Option) *Guard {
	guard := &Guard{
		breakers:  map[string]*gobreaker.CircuitBreaker[struct{}]{},
		config:    DefaultConfig(),
		logger:    glog.Nop(),
		metrics:   core.NopMetricsRecorder{},
		isFailure: core.IsRetryable,
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
	if g == nil {
		return call(ctx)
	}
	provider = strings.TrimSpace(provider)
	cb := g.breaker(provider)
	var callErr error
	_, err := cb.Execute(func() (struct{}, error) {
		callErr = call(ctx)
		return struct{}{}, callErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		g.logger.Warn("circuit rejected call", "provider", provider, "state", cb.State().String())
		g.metrics.IncCounter(ctx, "integrations.breaker.rejections", 1, map[string]string{"provider": provider})
		return Unavailable(provider, err)
	}
	return callErr
}

// Unavailable builds the error reported for a rejected call.
func Unavailable(provider string, cause error) error {
	err := core.NewProviderUnavailableError(provider).WithCause(cause)
	err.Retryable = false
	return err
}

func (g *Guard) State(provider string) gobreaker.State {
	if g == nil {
		return gobreaker.StateClosed
	}
	return g.breaker(strings.TrimSpace(provider)).State()
}

func (g *Guard) Counts(provider string) gobreaker.Counts {
	if g == nil {
		return gobreaker.Counts{}
	}
	return g.breaker(strings.TrimSpace(provider)).Counts()
}

type ProviderHealth struct {
	Provider string
	State    gobreaker.State
	Counts   gobreaker.Counts
}

func (h ProviderHealth) Healthy() bool {
	return h.State == gobreaker.StateClosed
}

// Health reports every provider seen so far, sorted by name.
func (g *Guard) Health() []ProviderHealth {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	names := make([]string, 0, len(g.breakers))
	for name := range g.breakers {
		names = append(names, name)
	}
	breakers := make(map[string]*gobreaker.CircuitBreaker[struct{}], len(g.breakers))
	for name, cb := range g.breakers {
		breakers[name] = cb
	}
	g.mu.Unlock()

	sort.Strings(names)
	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		cb := breakers[name]
		out = append(out, ProviderHealth{Provider: name, State: cb.State(), Counts: cb.Counts()})
	}
	return out
}

func (g *Guard) breaker(provider string) *gobreaker.CircuitBreaker[struct{}] {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.breakers == nil {
		g.breakers = map[string]*gobreaker.CircuitBreaker[struct{}]{}
	}
	if cb, ok := g.breakers[provider]; ok {
		return cb
	}
	cfg := g.config
	isFailure := g.isFailure
	if isFailure == nil {
		isFailure = core.IsRetryable
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        provider,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Info("circuit state changed", "provider", name, "from", from.String(), "to", to.String())
			g.metrics.IncCounter(context.Background(), "integrations.breaker.state_changes", 1, map[string]string{
				"provider": name,
				"to":       to.String(),
			})
		},
	})
	g.breakers[provider] = cb
	return cb
}

var _ core.AdapterGuard = (*Guard)(nil)
