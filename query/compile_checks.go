package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[GetStateMessage, *core.IntegrationState]    = (*GetStateQuery)(nil)
	_ gocmd.Querier[HealthCheckMessage, core.HealthCheckResult] = (*HealthCheckQuery)(nil)
	_ gocmd.Querier[GetCredentialMessage, CredentialView]       = (*GetCredentialQuery)(nil)
	_ gocmd.Querier[ListKindsMessage, []KindInfo]               = (*ListKindsQuery)(nil)
	_ gocmd.Querier[ListEventsMessage, []core.Event]            = (*ListEventsQuery)(nil)

	_ ControllerResolver = (*core.ControllerSet)(nil)
	_ KindLister         = (*core.KindRegistry)(nil)
)
