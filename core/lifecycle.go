package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	webhookInvalidPayload   = "Invalid payload"
	webhookInvalidSignature = "Invalid signature"
)

// Controller owns the lifecycle of one integration instance: its state
// record, namespaced credentials, health reporting and webhook handling.
type Controller struct {
	mu    sync.Mutex
	state *IntegrationState

	kind             Kind
	integrationType  string
	instanceID       string
	config           Config
	credentials      CredentialStore
	events           EventEmitter
	stateStore       StateStore
	guard            AdapterGuard
	now              func() time.Time
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	obs              operationObserver
	disconnectPolicy DisconnectPolicy
	retry            RetryOptions
	conditions       []FailoverCondition

	namesMu     sync.Mutex
	storedNames map[string]struct{}
}

func NewController(kind Kind, instanceID string, opts ...Option) (*Controller, error) {
	if kind == nil {
		return nil, NewIntegrationError("", ErrorCodeInvalidConfig, "integration kind is required", nil)
	}
	integrationType := strings.TrimSpace(kind.Type())
	if integrationType == "" {
		return nil, NewIntegrationError("", ErrorCodeInvalidConfig, "integration type is required", nil)
	}
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return nil, NewIntegrationError(integrationType, ErrorCodeInvalidConfig, "instance id is required", nil)
	}

	builder := defaultControllerBuilder()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations." + integrationType); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}

	finalConfig, err := ResolveConfig(context.Background(), builder.runtimeConfig, builder.configProvider, builder.optionsResolver)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.credentialStore == nil {
		builder.credentialStore = NewMemoryCredentialStore()
	}
	if builder.eventEmitter == nil {
		builder.eventEmitter = NewMemoryEventBus().WithLogger(logger)
	}
	if builder.now == nil {
		builder.now = time.Now
	}

	policy := builder.disconnectPolicy
	if policy == "" {
		policy = finalConfig.Credentials.Policy()
	}
	if !policy.Valid() {
		return nil, NewIntegrationError(integrationType, ErrorCodeInvalidConfig, fmt.Sprintf("unknown disconnect policy %q", policy), nil)
	}

	retry := finalConfig.Retry.Options()
	if builder.retryOptions != nil {
		retry = *builder.retryOptions
	}
	if err := retry.Validate(); err != nil {
		return nil, err
	}
	conditions := finalConfig.Failover.FailoverConditions()
	if builder.conditions != nil {
		conditions = builder.conditions
	}

	return &Controller{
		kind:             kind,
		integrationType:  integrationType,
		instanceID:       instanceID,
		config:           finalConfig,
		credentials:      builder.credentialStore,
		events:           builder.eventEmitter,
		stateStore:       builder.stateStore,
		guard:            builder.guard,
		now:              builder.now,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorMapper:      builder.errorMapper,
		obs:              newOperationObserver(logger, builder.metricsRecorder),
		disconnectPolicy: policy,
		retry:            retry,
		conditions:       conditions,
		storedNames:      map[string]struct{}{},
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (c *Controller) Type() string {
	if c == nil {
		return ""
	}
	return c.integrationType
}

func (c *Controller) InstanceID() string {
	if c == nil {
		return ""
	}
	return c.instanceID
}

func (c *Controller) Kind() Kind {
	if c == nil {
		return nil
	}
	return c.kind
}

func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Controller) DisconnectPolicy() DisconnectPolicy {
	if c == nil {
		return DisconnectRetain
	}
	return c.disconnectPolicy
}

// MapError converts err into a go-errors envelope with the configured mapper.
func (c *Controller) MapError(err error) error {
	if c == nil {
		return err
	}
	return mapBuildError(c.errorMapper, err)
}

// State returns a copy of the current state, or nil when not configured.
func (c *Controller) State() *IntegrationState {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Restore loads the persisted state record, if a state store is configured.
func (c *Controller) Restore(ctx context.Context) error {
	if c == nil || c.stateStore == nil {
		return nil
	}
	state, err := c.stateStore.LoadState(ctx, c.instanceID)
	if err != nil {
		return fmt.Errorf("core: restore state: %w", err)
	}
	if state != nil && !state.Status.Configured() {
		state = nil
	}
	c.mu.Lock()
	c.state = state.Clone()
	c.mu.Unlock()
	return nil
}

func (c *Controller) Connect(ctx context.Context, cfg ConnectConfig) (state *IntegrationState, err error) {
	if c == nil {
		return nil, NewIntegrationError("", ErrorCodeInvalidConfig, "controller is nil", nil)
	}
	startedAt := time.Now()
	fields := c.fields()
	defer func() {
		c.obs.observe(ctx, startedAt, "connect", err, fields)
	}()

	plan, err := c.kind.Connect(ctx, cfg)
	if err != nil {
		return nil, c.connectError(err)
	}

	names := make([]string, 0, len(plan.Credentials))
	for name := range plan.Credentials {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err = c.StoreCredential(ctx, name, plan.Credentials[name]); err != nil {
			return nil, err
		}
	}
	fields["credentials"] = len(names)

	_, next, err := c.apply(ctx, ConnectEvent(c.integrationType, c.clock(), plan.Metadata))
	if err != nil {
		return nil, err
	}
	c.emit(ctx, EventConnected, map[string]any{"integrationType": c.integrationType})
	return next, nil
}

func (c *Controller) connectError(err error) error {
	var integrationErr *IntegrationError
	if errors.As(err, &integrationErr) {
		return err
	}
	return NewIntegrationError(c.integrationType, ErrorCodeInvalidConfig, "invalid connect config", err)
}

// Disconnect clears the state record. It reports false when there was
// nothing to clear. With the purge policy, namespaced credentials are
// deleted after the state is cleared.
func (c *Controller) Disconnect(ctx context.Context) (disconnected bool, err error) {
	if c == nil {
		return false, nil
	}
	startedAt := time.Now()
	fields := c.fields()
	fields["policy"] = string(c.disconnectPolicy)
	defer func() {
		if disconnected || err != nil {
			c.obs.observe(ctx, startedAt, "disconnect", err, fields)
		}
	}()

	previous, _, err := c.apply(ctx, DisconnectEvent())
	if err != nil {
		return false, err
	}
	if previous == nil {
		return false, nil
	}
	c.emit(ctx, EventDisconnected, map[string]any{"integrationType": c.integrationType})
	if c.disconnectPolicy == DisconnectPurge {
		purged, purgeErr := c.purgeCredentials(ctx)
		fields["purged"] = purged
		if purgeErr != nil {
			return true, purgeErr
		}
	}
	return true, nil
}

func (c *Controller) purgeCredentials(ctx context.Context) (int, error) {
	prefix := CredentialKeyPrefix(c.instanceID, c.integrationType)
	var keys []string
	if lister, ok := c.credentials.(CredentialLister); ok {
		listed, err := lister.ListKeys(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("core: list credentials: %w", err)
		}
		keys = listed
	}
	c.namesMu.Lock()
	for name := range c.storedNames {
		keys = append(keys, c.CredentialKey(name))
	}
	c.storedNames = map[string]struct{}{}
	c.namesMu.Unlock()

	seen := map[string]struct{}{}
	purged := 0
	for _, key := range keys {
		if _, ok := seen[key]; ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		seen[key] = struct{}{}
		if err := c.credentials.Delete(ctx, key); err != nil {
			return purged, fmt.Errorf("core: delete credential: %w", err)
		}
		purged++
	}
	return purged, nil
}

func (c *Controller) HealthCheck(ctx context.Context) HealthCheckResult {
	if c == nil {
		return HealthCheckResult{Status: StatusNotConfigured, Error: ErrNotConfigured.Message}
	}
	startedAt := time.Now()
	state := c.State()
	if state == nil {
		latency := time.Since(startedAt)
		return HealthCheckResult{
			Healthy:   false,
			Status:    StatusNotConfigured,
			Latency:   latency,
			LatencyMs: latency.Milliseconds(),
			Error:     ErrNotConfigured.Message,
			CheckedAt: c.clock(),
		}
	}

	if pinger, ok := c.kind.(HealthPinger); ok {
		if pingErr := pinger.Ping(ctx, c); pingErr != nil {
			fields := c.fields()
			fields["error"] = pingErr.Error()
			c.obs.logError(ctx, "health ping failed", fields)
			// A suspended integration stays suspended; its credentials are
			// expected to fail.
			if state.Status != StatusSuspended {
				if err := c.SetStatus(ctx, StatusError, pingErr.Error()); err == nil {
					state = c.State()
				}
			}
		}
	}
	latency := time.Since(startedAt)
	if state == nil {
		return HealthCheckResult{
			Status:    StatusNotConfigured,
			Latency:   latency,
			LatencyMs: latency.Milliseconds(),
			Error:     ErrNotConfigured.Message,
			CheckedAt: c.clock(),
		}
	}
	return HealthCheckResult{
		Healthy:   state.Status == StatusActive,
		Status:    state.Status,
		Latency:   latency,
		LatencyMs: latency.Milliseconds(),
		Error:     state.Error,
		CheckedAt: c.clock(),
	}
}

// Refresh advances LastActivityAt. It never moves the timestamp backwards.
func (c *Controller) Refresh(ctx context.Context) error {
	if c == nil {
		return notConfiguredError("")
	}
	_, _, err := c.apply(ctx, RefreshEvent(c.clock()))
	return err
}

// UpdateState merges patch into the state. It is a no-op when the
// integration is not configured.
func (c *Controller) UpdateState(ctx context.Context, patch StatePatch) error {
	if c == nil || patch.Empty() {
		return nil
	}
	_, _, err := c.apply(ctx, UpdateEvent(patch))
	return err
}

func (c *Controller) SetStatus(ctx context.Context, status IntegrationStatus, errMessage string) error {
	if c == nil {
		return notConfiguredError("")
	}
	previous, next, err := c.apply(ctx, SetStatusEvent(status, errMessage, c.clock()))
	if err != nil {
		return err
	}
	payload := map[string]any{
		"integrationType": c.integrationType,
		"previousStatus":  string(previous.Status),
		"status":          string(next.Status),
	}
	if next.Error != "" {
		payload["error"] = next.Error
	}
	c.emit(ctx, EventStatusChanged, payload)
	if previous.Status != next.Status {
		fields := c.fields()
		fields["previous_status"] = string(previous.Status)
		fields["status"] = string(next.Status)
		c.obs.logInfo(ctx, "integration status changed", fields)
	}
	return nil
}

// HandleWebhook never returns an error. Verification failures, parse
// failures and panics in kind code all produce an unsuccessful result.
func (c *Controller) HandleWebhook(ctx context.Context, payload WebhookPayload) (result WebhookResult) {
	if c == nil {
		return WebhookResult{Error: webhookInvalidPayload}
	}
	startedAt := time.Now()
	fields := c.fields()
	defer func() {
		if recovered := recover(); recovered != nil {
			fields["panic"] = fmt.Sprint(recovered)
			result = WebhookResult{Error: webhookInvalidPayload}
		}
		var err error
		if !result.Success {
			err = errors.New(result.Error)
		}
		c.obs.observe(ctx, startedAt, "handle_webhook", err, fields)
	}()

	if verifier, ok := c.kind.(WebhookVerifier); ok {
		secret, found, err := c.GetCredential(ctx, CredentialWebhookSecret)
		if err != nil {
			fields["verify_error"] = err.Error()
			return WebhookResult{Error: webhookInvalidSignature}
		}
		if found && secret != "" {
			if err := verifier.VerifyWebhook(ctx, payload, secret); err != nil {
				fields["verify_error"] = err.Error()
				return WebhookResult{Error: webhookInvalidSignature}
			}
		}
	}

	event, err := c.kind.ParseWebhook(ctx, payload)
	if err != nil {
		fields["parse_error"] = err.Error()
		return WebhookResult{Error: webhookInvalidPayload}
	}
	eventType := strings.TrimSpace(event.Type)
	fields["webhook_event"] = eventType

	if c.State() != nil {
		var applyErr error
		if event.Status != nil {
			applyErr = c.SetStatus(ctx, *event.Status, event.Error)
		} else {
			applyErr = c.Refresh(ctx)
		}
		if applyErr == nil && len(event.Metadata) > 0 {
			applyErr = c.UpdateState(ctx, StatePatch{Metadata: event.Metadata})
		}
		if applyErr != nil {
			fields["apply_error"] = applyErr.Error()
		}
	}

	c.emit(ctx, EventWebhook, map[string]any{
		"integrationType": c.integrationType,
		"eventType":       eventType,
	})
	return WebhookResult{Success: true, EventType: eventType}
}

// CredentialKey returns the namespaced store key for name.
func (c *Controller) CredentialKey(name string) string {
	if c == nil {
		return ""
	}
	return CredentialKey(c.instanceID, c.integrationType, name)
}

func (c *Controller) StoreCredential(ctx context.Context, name string, value string) error {
	if c == nil {
		return notConfiguredError("")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return NewIntegrationError(c.integrationType, ErrorCodeInvalidConfig, "credential name is required", nil)
	}
	opts := CredentialSetOptions{TTL: c.config.Credentials.TTL()}
	if err := c.credentials.Set(ctx, c.CredentialKey(name), value, opts); err != nil {
		return fmt.Errorf("core: store credential %q: %w", name, err)
	}
	c.namesMu.Lock()
	c.storedNames[name] = struct{}{}
	c.namesMu.Unlock()
	return nil
}

// GetCredential reports ("", false, nil) when the credential is absent.
func (c *Controller) GetCredential(ctx context.Context, name string) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}
	value, ok, err := c.credentials.Get(ctx, c.CredentialKey(name))
	if err != nil {
		return "", false, fmt.Errorf("core: get credential %q: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return value, true, nil
}

func (c *Controller) DeleteCredential(ctx context.Context, name string) error {
	if c == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if err := c.credentials.Delete(ctx, c.CredentialKey(name)); err != nil {
		return fmt.Errorf("core: delete credential %q: %w", name, err)
	}
	c.namesMu.Lock()
	delete(c.storedNames, name)
	c.namesMu.Unlock()
	return nil
}

// Policy returns the resilience policy seeded from the controller config.
func (c *Controller) Policy(operation string) ResiliencePolicy {
	if c == nil {
		return ResiliencePolicy{Operation: operation}
	}
	return ResiliencePolicy{
		Operation:  operation,
		Retry:      c.retry,
		Conditions: append([]FailoverCondition(nil), c.conditions...),
		Guard:      c.guard,
		Logger:     c.logger,
		Metrics:    c.metricsRecorder,
		Fields:     c.fields(),
	}
}

// Invoke runs a provider operation for a configured, unsuspended
// integration and touches LastActivityAt on success.
func Invoke[A ProviderAdapter, T any](
	ctx context.Context,
	c *Controller,
	operation string,
	adapters []A,
	op AdapterOperation[A, T],
) (T, error) {
	var zero T
	if c == nil {
		return zero, notConfiguredError("")
	}
	state := c.State()
	if state == nil {
		return zero, notConfiguredError(c.integrationType)
	}
	if state.Status == StatusSuspended {
		return zero, NewIntegrationError(c.integrationType, ErrorCodeSuspended, ErrSuspended.Message, nil)
	}
	result, err := Execute(ctx, adapters, c.Policy(operation), op)
	if err != nil {
		return zero, err
	}
	if refreshErr := c.Refresh(ctx); refreshErr != nil && !IsErrorCode(refreshErr, ErrorCodeNotConfigured) {
		return result, refreshErr
	}
	return result, nil
}

// apply runs event through Transition and persists the result. The state is
// only replaced when persistence succeeds.
func (c *Controller) apply(ctx context.Context, event StateEvent) (previous *IntegrationState, next *IntegrationState, err error) {
	if event.IntegrationType == "" {
		event.IntegrationType = c.integrationType
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err = Transition(c.state, event)
	if err != nil {
		return c.state.Clone(), nil, err
	}
	if c.stateStore != nil {
		if next == nil {
			if c.state != nil {
				err = c.stateStore.DeleteState(ctx, c.instanceID)
			}
		} else {
			err = c.stateStore.SaveState(ctx, c.instanceID, next.Clone())
		}
		if err != nil {
			return c.state.Clone(), nil, fmt.Errorf("core: persist state: %w", err)
		}
	}
	previous = c.state
	c.state = next
	return previous.Clone(), next.Clone(), nil
}

func (c *Controller) emit(ctx context.Context, eventType string, payload map[string]any) {
	if c.events == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.events.Emit(ctx, NewEvent(eventType, payload, c.clock()))
}

func (c *Controller) clock() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}

func (c *Controller) fields() map[string]any {
	return map[string]any{
		"integration_type": c.integrationType,
		"instance_id":      c.instanceID,
	}
}
