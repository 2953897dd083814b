package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type controllerBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	credentialStore  CredentialStore
	eventEmitter     EventEmitter
	stateStore       StateStore
	guard            AdapterGuard
	now              func() time.Time
	disconnectPolicy DisconnectPolicy
	retryOptions     *RetryOptions
	conditions       []FailoverCondition
}

type Option func(*controllerBuilder)

// WithConfig sets the runtime configuration layer. It wins over loaded
// configuration for every non-zero field.
func WithConfig(cfg Config) Option {
	return func(b *controllerBuilder) {
		b.runtimeConfig = cfg
	}
}

func WithLogger(logger Logger) Option {
	return func(b *controllerBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *controllerBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *controllerBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *controllerBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *controllerBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *controllerBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *controllerBuilder) {
		b.credentialStore = store
	}
}

func WithEventEmitter(emitter EventEmitter) Option {
	return func(b *controllerBuilder) {
		b.eventEmitter = emitter
	}
}

func WithStateStore(store StateStore) Option {
	return func(b *controllerBuilder) {
		b.stateStore = store
	}
}

// WithAdapterGuard wraps every adapter call made through Invoke.
func WithAdapterGuard(guard AdapterGuard) Option {
	return func(b *controllerBuilder) {
		b.guard = guard
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *controllerBuilder) {
		b.now = now
	}
}

// WithDisconnectPolicy overrides credentials.disconnect_policy.
func WithDisconnectPolicy(policy DisconnectPolicy) Option {
	return func(b *controllerBuilder) {
		b.disconnectPolicy = policy
	}
}

// WithRetryOptions replaces the configured retry schedule, including the
// RetryIf, Sleep and OnRetry hooks.
func WithRetryOptions(options RetryOptions) Option {
	return func(b *controllerBuilder) {
		copied := options
		b.retryOptions = &copied
	}
}

func WithFailoverConditions(conditions ...FailoverCondition) Option {
	return func(b *controllerBuilder) {
		b.conditions = append([]FailoverCondition(nil), conditions...)
	}
}

func defaultControllerBuilder() controllerBuilder {
	loggerProvider, logger := glog.Resolve("integrations", nil, nil)
	return controllerBuilder{
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

// ResolveConfig runs the defaults, loaded and runtime layers through the
// configured provider and resolver.
func ResolveConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxAttempts != 0 {
		retry["max_attempts"] = cfg.Retry.MaxAttempts
	}
	if includeZero || cfg.Retry.BaseDelayMs != 0 {
		retry["base_delay_ms"] = cfg.Retry.BaseDelayMs
	}
	if includeZero || cfg.Retry.MaxDelayMs != 0 {
		retry["max_delay_ms"] = cfg.Retry.MaxDelayMs
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	if includeZero || len(cfg.Failover.Conditions) > 0 {
		layer["failover"] = map[string]any{
			"conditions": append([]string(nil), cfg.Failover.Conditions...),
		}
	}

	credentials := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Credentials.DisconnectPolicy) != "" {
		credentials["disconnect_policy"] = cfg.Credentials.DisconnectPolicy
	}
	if includeZero || cfg.Credentials.TTLSeconds != 0 {
		credentials["ttl_seconds"] = cfg.Credentials.TTLSeconds
	}
	if len(credentials) > 0 {
		layer["credentials"] = credentials
	}
	return layer
}
