package core

import (
	"fmt"
	"strings"
	"time"
)

type IntegrationStatus string

const (
	StatusNotConfigured IntegrationStatus = "not_configured"
	StatusActive        IntegrationStatus = "active"
	StatusError         IntegrationStatus = "error"
	StatusSuspended     IntegrationStatus = "suspended"
)

func (s IntegrationStatus) Valid() bool {
	switch s {
	case StatusNotConfigured, StatusActive, StatusError, StatusSuspended:
		return true
	default:
		return false
	}
}

// Configured reports whether s can be held by a present state record.
func (s IntegrationStatus) Configured() bool {
	switch s {
	case StatusActive, StatusError, StatusSuspended:
		return true
	default:
		return false
	}
}

func ParseIntegrationStatus(raw string) (IntegrationStatus, error) {
	status := IntegrationStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", NewIntegrationError("", ErrorCodeInvalidStatus, fmt.Sprintf("unknown integration status %q", raw), nil)
	}
	return status, nil
}

// IntegrationState is present exactly while the integration is configured.
type IntegrationState struct {
	Type           string            `json:"type"`
	Status         IntegrationStatus `json:"status"`
	ConnectedAt    time.Time         `json:"connected_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	Error          string            `json:"error,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

func (s *IntegrationState) Clone() *IntegrationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Metadata = cloneFields(s.Metadata)
	if len(s.Metadata) == 0 {
		out.Metadata = nil
	}
	return &out
}

// StatePatch carries the fields UpdateState replaces. Nil fields are left
// untouched; Metadata keys are merged.
type StatePatch struct {
	Status         *IntegrationStatus
	Error          *string
	ConnectedAt    *time.Time
	LastActivityAt *time.Time
	Metadata       map[string]any
}

func (p StatePatch) Empty() bool {
	return p.Status == nil && p.Error == nil && p.ConnectedAt == nil &&
		p.LastActivityAt == nil && len(p.Metadata) == 0
}

type StateEventKind string

const (
	StateEventConnect    StateEventKind = "connect"
	StateEventDisconnect StateEventKind = "disconnect"
	StateEventSetStatus  StateEventKind = "set_status"
	StateEventRefresh    StateEventKind = "refresh"
	StateEventUpdate     StateEventKind = "update"
)

type StateEvent struct {
	Kind            StateEventKind
	IntegrationType string
	Status          IntegrationStatus
	Error           string
	Patch           StatePatch
	Metadata        map[string]any
	At              time.Time
}

func ConnectEvent(integrationType string, at time.Time, metadata map[string]any) StateEvent {
	return StateEvent{Kind: StateEventConnect, IntegrationType: integrationType, At: at, Metadata: metadata}
}

func DisconnectEvent() StateEvent {
	return StateEvent{Kind: StateEventDisconnect}
}

func SetStatusEvent(status IntegrationStatus, errMessage string, at time.Time) StateEvent {
	return StateEvent{Kind: StateEventSetStatus, Status: status, Error: errMessage, At: at}
}

func RefreshEvent(at time.Time) StateEvent {
	return StateEvent{Kind: StateEventRefresh, At: at}
}

func UpdateEvent(patch StatePatch) StateEvent {
	return StateEvent{Kind: StateEventUpdate, Patch: patch}
}

// Transition computes the next state without touching current. A nil result
// means the integration is not configured. Refresh and set_status on a nil
// state fail with NOT_CONFIGURED; update on a nil state is a no-op.
func Transition(current *IntegrationState, event StateEvent) (*IntegrationState, error) {
	integrationType := strings.TrimSpace(event.IntegrationType)
	if current != nil && integrationType == "" {
		integrationType = current.Type
	}

	switch event.Kind {
	case StateEventConnect:
		if integrationType == "" {
			return current.Clone(), NewIntegrationError("", ErrorCodeInvalidConfig, "integration type is required", nil)
		}
		next := &IntegrationState{
			Type:           integrationType,
			Status:         StatusActive,
			ConnectedAt:    event.At,
			LastActivityAt: event.At,
		}
		if len(event.Metadata) > 0 {
			next.Metadata = cloneFields(event.Metadata)
		}
		return next, nil

	case StateEventDisconnect:
		return nil, nil

	case StateEventSetStatus:
		if current == nil {
			return nil, notConfiguredError(integrationType)
		}
		if !event.Status.Configured() {
			return current.Clone(), NewIntegrationError(
				integrationType,
				ErrorCodeInvalidStatus,
				fmt.Sprintf("cannot set status %q on a configured integration", event.Status),
				nil,
			)
		}
		next := current.Clone()
		next.Status = event.Status
		next.Error = strings.TrimSpace(event.Error)
		next.LastActivityAt = advanceActivity(current.LastActivityAt, event.At)
		return next, nil

	case StateEventRefresh:
		if current == nil {
			return nil, notConfiguredError(integrationType)
		}
		next := current.Clone()
		next.LastActivityAt = advanceActivity(current.LastActivityAt, event.At)
		return next, nil

	case StateEventUpdate:
		if current == nil {
			return nil, nil
		}
		return applyPatch(current, event.Patch)

	default:
		return current.Clone(), NewIntegrationError(integrationType, ErrorCodeInvalidOptions, fmt.Sprintf("unknown state event %q", event.Kind), nil)
	}
}

func applyPatch(current *IntegrationState, patch StatePatch) (*IntegrationState, error) {
	next := current.Clone()
	if patch.Status != nil {
		if !patch.Status.Configured() {
			return current.Clone(), NewIntegrationError(
				current.Type,
				ErrorCodeInvalidStatus,
				fmt.Sprintf("cannot set status %q on a configured integration", *patch.Status),
				nil,
			)
		}
		next.Status = *patch.Status
	}
	if patch.Error != nil {
		next.Error = *patch.Error
	}
	if patch.ConnectedAt != nil {
		next.ConnectedAt = *patch.ConnectedAt
	}
	if patch.LastActivityAt != nil {
		next.LastActivityAt = *patch.LastActivityAt
	}
	if len(patch.Metadata) > 0 {
		if next.Metadata == nil {
			next.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for key, value := range patch.Metadata {
			next.Metadata[key] = value
		}
	}
	return next, nil
}

// advanceActivity never lets the activity timestamp move backwards.
func advanceActivity(previous time.Time, at time.Time) time.Time {
	if at.Before(previous) {
		return previous
	}
	return at
}

func notConfiguredError(integrationType string) *IntegrationError {
	return NewIntegrationError(integrationType, ErrorCodeNotConfigured, ErrNotConfigured.Message, nil)
}
