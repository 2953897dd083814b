package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

type testAdapter struct {
	name string
}

func (a testAdapter) Provider() string { return a.name }

type testKind struct {
	name       string
	connectErr error
	parse      func(WebhookPayload) (WebhookEvent, error)
	verify     func(WebhookPayload, string) error
	ping       func(CredentialSource) error
}

func (k *testKind) Type() string { return k.name }

func (k *testKind) Connect(_ context.Context, cfg ConnectConfig) (ConnectPlan, error) {
	if k.connectErr != nil {
		return ConnectPlan{}, k.connectErr
	}
	return ConnectPlan{Credentials: cfg.Credentials, Metadata: cfg.Settings}, nil
}

func (k *testKind) ParseWebhook(_ context.Context, payload WebhookPayload) (WebhookEvent, error) {
	if k.parse != nil {
		return k.parse(payload)
	}
	body := strings.TrimSpace(string(payload.Body))
	if body == "" {
		return WebhookEvent{}, errors.New("empty body")
	}
	return WebhookEvent{Type: body}, nil
}

type verifyingKind struct {
	*testKind
}

func (k verifyingKind) VerifyWebhook(_ context.Context, payload WebhookPayload, secret string) error {
	if k.verify != nil {
		return k.verify(payload, secret)
	}
	if payload.Header("X-Signature") != secret {
		return errors.New("signature mismatch")
	}
	return nil
}

type pingingKind struct {
	*testKind
}

func (k pingingKind) Ping(_ context.Context, credentials CredentialSource) error {
	if k.ping != nil {
		return k.ping(credentials)
	}
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *recordingEmitter) Emit(_ context.Context, event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) Subscribe(EventHandler) func() { return func() {} }

func (e *recordingEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.Type)
	}
	return out
}

func (e *recordingEmitter) last() Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return Event{}
	}
	return e.events[len(e.events)-1]
}

// plainCredentialStore does not implement CredentialLister.
type plainCredentialStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func newPlainCredentialStore() *plainCredentialStore {
	return &plainCredentialStore{values: map[string]string{}}
}

func (s *plainCredentialStore) Set(_ context.Context, key string, value string, _ CredentialSetOptions) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *plainCredentialStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *plainCredentialStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *plainCredentialStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

type memoryStateStore struct {
	mu      sync.Mutex
	states  map[string]*IntegrationState
	saveErr error
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: map[string]*IntegrationState{}}
}

func (s *memoryStateStore) LoadState(_ context.Context, instanceID string) (*IntegrationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[instanceID].Clone(), nil
}

func (s *memoryStateStore) SaveState(_ context.Context, instanceID string, state *IntegrationState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[instanceID] = state.Clone()
	return nil
}

func (s *memoryStateStore) DeleteState(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, instanceID)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestController(kind Kind, instanceID string, opts ...Option) (*Controller, error) {
	base := []Option{WithRetryOptions(RetryOptions{MaxAttempts: 3, Sleep: noSleep})}
	return NewController(kind, instanceID, append(base, opts...)...)
}

func mustController(kind Kind, instanceID string, opts ...Option) *Controller {
	controller, err := newTestController(kind, instanceID, opts...)
	if err != nil {
		panic(fmt.Sprintf("new controller: %v", err))
	}
	return controller
}
