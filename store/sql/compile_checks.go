package sqlstore

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

var (
	_ core.CredentialStore    = (*CredentialStore)(nil)
	_ core.CredentialLister   = (*CredentialStore)(nil)
	_ core.CredentialStore    = (*CachedCredentialStore)(nil)
	_ core.CredentialLister   = (*CachedCredentialStore)(nil)
	_ core.StateStore         = (*StateStore)(nil)
	_ core.EventEmitter       = (*EventLog)(nil)
	_ core.EventReader        = (*EventLog)(nil)
	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
)
