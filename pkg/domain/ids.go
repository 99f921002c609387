// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "certifier/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a CredentialID where an EventID is expected.
type (
	TenantID       uuid.UUID
	CredentialID   uuid.UUID
	EventID        uuid.UUID
	ParticipantID  uuid.UUID
	TemplateID     uuid.UUID
	SubscriptionID uuid.UUID
	DeliveryID     uuid.UUID
	ActivityID     uuid.UUID
)

// Constructors for fresh identifiers.

func NewTenantID() TenantID             { return TenantID(uuid.New()) }
func NewCredentialID() CredentialID     { return CredentialID(uuid.New()) }
func NewEventID() EventID               { return EventID(uuid.New()) }
func NewParticipantID() ParticipantID   { return ParticipantID(uuid.New()) }
func NewTemplateID() TemplateID         { return TemplateID(uuid.New()) }
func NewSubscriptionID() SubscriptionID { return SubscriptionID(uuid.New()) }
func NewDeliveryID() DeliveryID         { return DeliveryID(uuid.New()) }
func NewActivityID() ActivityID         { return ActivityID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseTenantID(s string) (TenantID, error) {
	id, err := parseUUID(s, "tenant ID")
	return TenantID(id), err
}

func ParseCredentialID(s string) (CredentialID, error) {
	id, err := parseUUID(s, "credential ID")
	return CredentialID(id), err
}

func ParseEventID(s string) (EventID, error) {
	id, err := parseUUID(s, "event ID")
	return EventID(id), err
}

func ParseParticipantID(s string) (ParticipantID, error) {
	id, err := parseUUID(s, "participant ID")
	return ParticipantID(id), err
}

func ParseTemplateID(s string) (TemplateID, error) {
	id, err := parseUUID(s, "template ID")
	return TemplateID(id), err
}

func ParseSubscriptionID(s string) (SubscriptionID, error) {
	id, err := parseUUID(s, "subscription ID")
	return SubscriptionID(id), err
}

// String methods - for logging and debugging.

func (id TenantID) String() string       { return uuid.UUID(id).String() }
func (id CredentialID) String() string   { return uuid.UUID(id).String() }
func (id EventID) String() string        { return uuid.UUID(id).String() }
func (id ParticipantID) String() string  { return uuid.UUID(id).String() }
func (id TemplateID) String() string     { return uuid.UUID(id).String() }
func (id SubscriptionID) String() string { return uuid.UUID(id).String() }
func (id DeliveryID) String() string     { return uuid.UUID(id).String() }
func (id ActivityID) String() string     { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id TenantID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ParticipantID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id SubscriptionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DeliveryID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets identifiers appear directly in JSON bodies and as map keys.

func (id TenantID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id CredentialID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id EventID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id ParticipantID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id TemplateID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id SubscriptionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id DeliveryID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id ActivityID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

// parseUUID is the shared validation logic. Nil UUIDs are rejected: no
// record is ever stored under the zero identifier.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" cannot be nil")
	}
	return id, nil
}
