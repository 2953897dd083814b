package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

// ControllerResolver returns the controller for one integration instance.
// core.ControllerSet is the default implementation.
type ControllerResolver interface {
	Controller(ctx context.Context, integrationType string, instanceID string) (*core.Controller, error)
}

type ConnectCommand struct {
	controllers ControllerResolver
}

func NewConnectCommand(controllers ControllerResolver) *ConnectCommand {
	return &ConnectCommand{controllers: controllers}
}

func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.controllers == nil {
		return commandDependencyError("command: connect controllers are required")
	}
	controller, err := resolve(ctx, c.controllers, msg.Target)
	if err != nil {
		return err
	}
	state, err := controller.Connect(ctx, msg.Config)
	if err != nil {
		return controller.MapError(err)
	}
	storeResult(ctx, state)
	return nil
}

type DisconnectCommand struct {
	controllers ControllerResolver
}

func NewDisconnectCommand(controllers ControllerResolver) *DisconnectCommand {
	return &DisconnectCommand{controllers: controllers}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.controllers == nil {
		return commandDependencyError("command: disconnect controllers are required")
	}
	controller, err := resolve(ctx, c.controllers, msg.Target)
	if err != nil {
		return err
	}
	disconnected, err := controller.Disconnect(ctx)
	storeResult(ctx, DisconnectResult{Disconnected: disconnected})
	if err != nil {
		return controller.MapError(err)
	}
	return nil
}

type SetStatusCommand struct {
	controllers ControllerResolver
}

func NewSetStatusCommand(controllers ControllerResolver) *SetStatusCommand {
	return &SetStatusCommand{controllers: controllers}
}

func (c *SetStatusCommand) Execute(ctx context.Context, msg SetStatusMessage) error {
	if c == nil || c.controllers == nil {
		return commandDependencyError("command: set status controllers are required")
	}
	status, err := core.ParseIntegrationStatus(msg.Status)
	if err != nil {
		return commandWrapValidation(err, "command: invalid status")
	}
	controller, err := resolve(ctx, c.controllers, msg.Target)
	if err != nil {
		return err
	}
	if err := controller.SetStatus(ctx, status, msg.Error); err != nil {
		return controller.MapError(err)
	}
	storeResult(ctx, controller.State())
	return nil
}

type RefreshCommand struct {
	controllers ControllerResolver
}

func NewRefreshCommand(controllers ControllerResolver) *RefreshCommand {
	return &RefreshCommand{controllers: controllers}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.controllers == nil {
		return commandDependencyError("command: refresh controllers are required")
	}
	controller, err := resolve(ctx, c.controllers, msg.Target)
	if err != nil {
		return err
	}
	if err := controller.Refresh(ctx); err != nil {
		return controller.MapError(err)
	}
	storeResult(ctx, controller.State())
	return nil
}

type UpdateStateCommand struct {
	controllers ControllerResolver
}

func NewUpdateStateCommand(controllers ControllerResolver) *UpdateStateCommand {
	return &UpdateStateCommand{controllers: controllers}
}

func (c *UpdateStateCommand) Execute(ctx context.Context, msg UpdateStateMessage) error {
	if c == nil || c.controllers == nil {
		return commandDependencyError("command: update state controllers are required")
	}
	controller, err := resolve(ctx, c.controllers, msg.Target)
	if err != nil {
		return err
	}
	if err := controller.UpdateState(ctx, msg.Patch); err != nil {
		return controller.MapError(err)
	}
	storeResult(ctx, controller.State())
	return nil
}

type StoreCredentialCommand struct {
	controllers ControllerResolver
}

func NewStoreCredentialCommand(controllers ControllerResolver) *StoreCredentialCommand {
	return &StoreCredentialCommand{controllers: controllers}
}

func (c *StoreCredentialCommand) Execute(ctx context.Context, msg StoreCredentialMessage) error {
	if c == nil || c.controllers == nil {
		return commandDependencyError("command: store credential controllers are required")
	}
	if strings.TrimSpace(msg.Name) == "" {
		return commandInvalidInputError("command: credential name is required")
	}
	controller, err := resolve(ctx, c.controllers, msg.Target)
	if err != nil {
		return err
	}
	if err := controller.StoreCredential(ctx, msg.Name, msg.Value); err != nil {
		return controller.MapError(err)
	}
	return nil
}

type DeleteCredentialCommand struct {
	controllers ControllerResolver
}

func NewDeleteCredentialCommand(controllers ControllerResolver) *DeleteCredentialCommand {
	return &DeleteCredentialCommand{controllers: controllers}
}

func (c *DeleteCredentialCommand) Execute(ctx context.Context, msg DeleteCredentialMessage) error {
	if c == nil || c.controllers == nil {
		return commandDependencyError("command: delete credential controllers are required")
	}
	if strings.TrimSpace(msg.Name) == "" {
		return commandInvalidInputError("command: credential name is required")
	}
	controller, err := resolve(ctx, c.controllers, msg.Target)
	if err != nil {
		return err
	}
	if err := controller.DeleteCredential(ctx, msg.Name); err != nil {
		return controller.MapError(err)
	}
	return nil
}

// HandleWebhookCommand never fails on a bad delivery; the outcome is stored
// as a core.WebhookResult.
type HandleWebhookCommand struct {
	controllers ControllerResolver
}

func NewHandleWebhookCommand(controllers ControllerResolver) *HandleWebhookCommand {
	return &HandleWebhookCommand{controllers: controllers}
}

func (c *HandleWebhookCommand) Execute(ctx context.Context, msg HandleWebhookMessage) error {
	if c == nil || c.controllers == nil {
		return commandDependencyError("command: webhook controllers are required")
	}
	controller, err := resolve(ctx, c.controllers, msg.Target)
	if err != nil {
		return err
	}
	storeResult(ctx, controller.HandleWebhook(ctx, msg.Payload))
	return nil
}

func resolve(ctx context.Context, controllers ControllerResolver, target Target) (*core.Controller, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	controller, err := controllers.Controller(ctx, target.IntegrationType, target.InstanceID)
	if err != nil {
		return nil, core.MapServiceError(err)
	}
	if controller == nil {
		return nil, commandDependencyError("command: controller resolver returned nil")
	}
	return controller, nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
