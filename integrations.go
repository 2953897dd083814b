package integrations

import "github.com/goliatone/go-integrations/core"

type Config = core.Config

type Option = core.Option

type Kind = core.Kind

type Controller = core.Controller

type KindRegistry = core.KindRegistry

type ControllerSet = core.ControllerSet

type ConnectConfig = core.ConnectConfig
type IntegrationState = core.IntegrationState
type IntegrationStatus = core.IntegrationStatus
type StatePatch = core.StatePatch
type WebhookPayload = core.WebhookPayload
type WebhookResult = core.WebhookResult
type HealthCheckResult = core.HealthCheckResult

type CredentialStore = core.CredentialStore
type StateStore = core.StateStore
type EventEmitter = core.EventEmitter
type EventReader = core.EventReader
type MetricsRecorder = core.MetricsRecorder

var (
	WithConfig             = core.WithConfig
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithCredentialStore    = core.WithCredentialStore
	WithEventEmitter       = core.WithEventEmitter
	WithStateStore         = core.WithStateStore
	WithAdapterGuard       = core.WithAdapterGuard
	WithClock              = core.WithClock
	WithDisconnectPolicy   = core.WithDisconnectPolicy
	WithRetryOptions       = core.WithRetryOptions
	WithFailoverConditions = core.WithFailoverConditions
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Setup registers kinds on a new registry whose controllers share opts, and
// returns the controller set built over it.
func Setup(kinds []Kind, opts ...Option) (*ControllerSet, error) {
	registry := core.NewKindRegistry(opts...)
	for _, kind := range kinds {
		if err := registry.Register(kind); err != nil {
			return nil, err
		}
	}
	return core.NewControllerSet(registry), nil
}
