package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

// ControllerResolver returns the controller for one integration instance.
type ControllerResolver interface {
	Controller(ctx context.Context, integrationType string, instanceID string) (*core.Controller, error)
}

// KindLister lists registered integration kinds.
type KindLister interface {
	List() []core.Kind
}

type GetStateQuery struct {
	controllers ControllerResolver
}

func NewGetStateQuery(controllers ControllerResolver) *GetStateQuery {
	return &GetStateQuery{controllers: controllers}
}

// Query returns nil while the integration is not configured.
func (q *GetStateQuery) Query(ctx context.Context, msg GetStateMessage) (*core.IntegrationState, error) {
	if q == nil || q.controllers == nil {
		return nil, queryDependencyError("query: state controllers are required")
	}
	controller, err := resolve(ctx, q.controllers, msg.Target)
	if err != nil {
		return nil, err
	}
	return controller.State(), nil
}

type HealthCheckQuery struct {
	controllers ControllerResolver
}

func NewHealthCheckQuery(controllers ControllerResolver) *HealthCheckQuery {
	return &HealthCheckQuery{controllers: controllers}
}

func (q *HealthCheckQuery) Query(ctx context.Context, msg HealthCheckMessage) (core.HealthCheckResult, error) {
	if q == nil || q.controllers == nil {
		return core.HealthCheckResult{}, queryDependencyError("query: health controllers are required")
	}
	controller, err := resolve(ctx, q.controllers, msg.Target)
	if err != nil {
		return core.HealthCheckResult{}, err
	}
	return controller.HealthCheck(ctx), nil
}

type GetCredentialQuery struct {
	controllers ControllerResolver
}

func NewGetCredentialQuery(controllers ControllerResolver) *GetCredentialQuery {
	return &GetCredentialQuery{controllers: controllers}
}

// Query reports whether the credential exists. Present values come back as
// core.RedactedValue.
func (q *GetCredentialQuery) Query(ctx context.Context, msg GetCredentialMessage) (CredentialView, error) {
	if q == nil || q.controllers == nil {
		return CredentialView{}, queryDependencyError("query: credential controllers are required")
	}
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		return CredentialView{}, queryInvalidInputError("query: credential name is required")
	}
	controller, err := resolve(ctx, q.controllers, msg.Target)
	if err != nil {
		return CredentialView{}, err
	}
	_, found, err := controller.GetCredential(ctx, name)
	if err != nil {
		return CredentialView{}, controller.MapError(err)
	}
	view := CredentialView{Name: name, Present: found}
	if found {
		view.Value = core.RedactedValue
	}
	return view, nil
}

type ListKindsQuery struct {
	kinds KindLister
}

func NewListKindsQuery(kinds KindLister) *ListKindsQuery {
	return &ListKindsQuery{kinds: kinds}
}

func (q *ListKindsQuery) Query(_ context.Context, _ ListKindsMessage) ([]KindInfo, error) {
	if q == nil || q.kinds == nil {
		return nil, queryDependencyError("query: kind registry is required")
	}
	kinds := q.kinds.List()
	out := make([]KindInfo, 0, len(kinds))
	for _, kind := range kinds {
		if kind == nil {
			continue
		}
		_, verifies := kind.(core.WebhookVerifier)
		_, pings := kind.(core.HealthPinger)
		out = append(out, KindInfo{
			Type:               kind.Type(),
			VerifiesWebhooks:   verifies,
			SupportsHealthPing: pings,
		})
	}
	return out, nil
}

type ListEventsQuery struct {
	reader core.EventReader
}

func NewListEventsQuery(reader core.EventReader) *ListEventsQuery {
	return &ListEventsQuery{reader: reader}
}

func (q *ListEventsQuery) Query(ctx context.Context, msg ListEventsMessage) ([]core.Event, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	events, err := q.reader.List(ctx, core.EventFilter{
		Type:            strings.TrimSpace(msg.EventType),
		IntegrationType: strings.TrimSpace(msg.IntegrationType),
		Since:           msg.Since,
		Limit:           msg.Limit,
	})
	if err != nil {
		return nil, queryWrapDependency(err, "query: list events failed")
	}
	return events, nil
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
		return nil, queryDependencyError("query: controller resolver returned nil")
	}
	return controller, nil
}
