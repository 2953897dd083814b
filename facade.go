package integrations

import (
	"fmt"

	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
)

type Commands struct {
	Connect          *integrationcommand.ConnectCommand
	Disconnect       *integrationcommand.DisconnectCommand
	SetStatus        *integrationcommand.SetStatusCommand
	Refresh          *integrationcommand.RefreshCommand
	UpdateState      *integrationcommand.UpdateStateCommand
	StoreCredential  *integrationcommand.StoreCredentialCommand
	DeleteCredential *integrationcommand.DeleteCredentialCommand
	HandleWebhook    *integrationcommand.HandleWebhookCommand
}

type Queries struct {
	GetState      *integrationquery.GetStateQuery
	HealthCheck   *integrationquery.HealthCheckQuery
	GetCredential *integrationquery.GetCredentialQuery
	ListKinds     *integrationquery.ListKindsQuery
	// ListEvents is nil unless an event reader is available.
	ListEvents *integrationquery.ListEventsQuery
}

type Facade struct {
	controllers *core.ControllerSet
	commands    Commands
	queries     Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	eventReader core.EventReader
}

// WithEventReader enables the list events query, typically with a
// sqlstore.EventLog.
func WithEventReader(reader core.EventReader) FacadeOption {
	return func(options *facadeOptions) {
		options.eventReader = reader
	}
}

func NewFacade(controllers *core.ControllerSet, opts ...FacadeOption) (*Facade, error) {
	if controllers == nil || controllers.Registry() == nil {
		return nil, fmt.Errorf("integrations: controller set is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{controllers: controllers}
	facade.commands = Commands{
		Connect:          integrationcommand.NewConnectCommand(controllers),
		Disconnect:       integrationcommand.NewDisconnectCommand(controllers),
		SetStatus:        integrationcommand.NewSetStatusCommand(controllers),
		Refresh:          integrationcommand.NewRefreshCommand(controllers),
		UpdateState:      integrationcommand.NewUpdateStateCommand(controllers),
		StoreCredential:  integrationcommand.NewStoreCredentialCommand(controllers),
		DeleteCredential: integrationcommand.NewDeleteCredentialCommand(controllers),
		HandleWebhook:    integrationcommand.NewHandleWebhookCommand(controllers),
	}
	facade.queries = Queries{
		GetState:      integrationquery.NewGetStateQuery(controllers),
		HealthCheck:   integrationquery.NewHealthCheckQuery(controllers),
		GetCredential: integrationquery.NewGetCredentialQuery(controllers),
		ListKinds:     integrationquery.NewListKindsQuery(controllers.Registry()),
	}
	if cfg.eventReader != nil {
		facade.queries.ListEvents = integrationquery.NewListEventsQuery(cfg.eventReader)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Controllers() *core.ControllerSet {
	if f == nil {
		return nil
	}
	return f.controllers
}
