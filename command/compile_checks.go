package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Commander[ConnectMessage]          = (*ConnectCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]       = (*DisconnectCommand)(nil)
	_ gocmd.Commander[SetStatusMessage]        = (*SetStatusCommand)(nil)
	_ gocmd.Commander[RefreshMessage]          = (*RefreshCommand)(nil)
	_ gocmd.Commander[UpdateStateMessage]      = (*UpdateStateCommand)(nil)
	_ gocmd.Commander[StoreCredentialMessage]  = (*StoreCredentialCommand)(nil)
	_ gocmd.Commander[DeleteCredentialMessage] = (*DeleteCredentialCommand)(nil)
	_ gocmd.Commander[HandleWebhookMessage]    = (*HandleWebhookCommand)(nil)

	_ ControllerResolver = (*core.ControllerSet)(nil)
)
