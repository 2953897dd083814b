package integrations

import (
	"github.com/goliatone/go-integrations/breaker"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/ratelimit"
	glog "github.com/goliatone/go-logger/glog"
)

type AdapterGuard = core.AdapterGuard

// DefaultAdapterGuard throttles providers that reported a rate limit and
// opens a circuit on providers that keep failing. Throttling runs first so
// rate limited calls never count against the circuit.
func DefaultAdapterGuard(logger glog.Logger, metrics MetricsRecorder) AdapterGuard {
	return core.GuardChain{
		ratelimit.New(ratelimit.WithLogger(logger), ratelimit.WithMetricsRecorder(metrics)),
		breaker.New(breaker.WithLogger(logger), breaker.WithMetricsRecorder(metrics)),
	}
}
