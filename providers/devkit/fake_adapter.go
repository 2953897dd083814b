package devkit

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

// FakeAdapter is a provider adapter whose calls fail with the scripted
// errors in order and then succeed.
type FakeAdapter struct {
	mu     sync.Mutex
	name   string
	errs   []error
	calls  int
	always bool
	result string
}

func NewFakeAdapter(name string, errs ...error) *FakeAdapter {
	name = strings.TrimSpace(name)
	return &FakeAdapter{
		name:   name,
		errs:   append([]error(nil), errs...),
		result: "ok:" + name,
	}
}

// FailingAdapter always returns err.
func FailingAdapter(name string, err error) *FakeAdapter {
	adapter := NewFakeAdapter(name)
	adapter.errs = []error{err}
	adapter.always = true
	return adapter
}

func (a *FakeAdapter) Provider() string {
	if a == nil {
		return ""
	}
	return a.name
}

// Call records an attempt and returns the next scripted outcome.
func (a *FakeAdapter) Call(ctx context.Context) (string, error) {
	if a == nil {
		return "", core.NewProviderUnavailableError("")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	index := a.calls
	a.calls++
	if a.always {
		return "", a.errs[0]
	}
	if index < len(a.errs) && a.errs[index] != nil {
		return "", a.errs[index]
	}
	return a.result, nil
}

// Calls reports how many times Call ran.
func (a *FakeAdapter) Calls() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// CallAdapter is an AdapterOperation over FakeAdapter.
func CallAdapter(ctx context.Context, adapter *FakeAdapter) (string, error) {
	return adapter.Call(ctx)
}

var _ core.ProviderAdapter = (*FakeAdapter)(nil)
