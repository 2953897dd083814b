package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Subscriptions tracks dispatcher subscriptions so they can be released
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterIntegrationHandlers registers and subscribes every integration
// command and query. Events is optional; without it the list events query is
// not registered. On error, subscriptions made so far are released.
func RegisterIntegrationHandlers(
	adapter *RegistryAdapter,
	controllers *core.ControllerSet,
	events core.EventReader,
	runnerOpts ...runner.Option,
) (subs Subscriptions, err error) {
	if controllers == nil {
		return nil, fmt.Errorf("gocommand: controller set is required")
	}
	defer func() {
		if err != nil {
			subs.Unsubscribe()
			subs = nil
		}
	}()

	add := func(subscription commanddispatcher.Subscription, registerErr error) error {
		if registerErr != nil {
			return registerErr
		}
		subs = append(subs, subscription)
		return nil
	}

	if err = add(RegisterAndSubscribe[integrationcommand.ConnectMessage](adapter, integrationcommand.NewConnectCommand(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[integrationcommand.DisconnectMessage](adapter, integrationcommand.NewDisconnectCommand(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[integrationcommand.SetStatusMessage](adapter, integrationcommand.NewSetStatusCommand(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[integrationcommand.RefreshMessage](adapter, integrationcommand.NewRefreshCommand(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[integrationcommand.UpdateStateMessage](adapter, integrationcommand.NewUpdateStateCommand(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[integrationcommand.StoreCredentialMessage](adapter, integrationcommand.NewStoreCredentialCommand(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[integrationcommand.DeleteCredentialMessage](adapter, integrationcommand.NewDeleteCredentialCommand(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[integrationcommand.HandleWebhookMessage](adapter, integrationcommand.NewHandleWebhookCommand(controllers), runnerOpts...)); err != nil {
		return subs, err
	}

	if err = add(RegisterAndSubscribeQuery[integrationquery.GetStateMessage, *core.IntegrationState](adapter, integrationquery.NewGetStateQuery(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribeQuery[integrationquery.HealthCheckMessage, core.HealthCheckResult](adapter, integrationquery.NewHealthCheckQuery(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribeQuery[integrationquery.GetCredentialMessage, integrationquery.CredentialView](adapter, integrationquery.NewGetCredentialQuery(controllers), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribeQuery[integrationquery.ListKindsMessage, []integrationquery.KindInfo](adapter, integrationquery.NewListKindsQuery(controllers.Registry()), runnerOpts...)); err != nil {
		return subs, err
	}
	if events != nil {
		if err = add(RegisterAndSubscribeQuery[integrationquery.ListEventsMessage, []core.Event](adapter, integrationquery.NewListEventsQuery(events), runnerOpts...)); err != nil {
			return subs, err
		}
	}
	return subs, nil
}
