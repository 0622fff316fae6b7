// Package records holds the persisted domain model: clients, their consent
// records and the append-only audit trail, plus the Store contract every
// persistence backend implements.
package records

import "time"

// Client is the primary business entity. Email is globally unique; Active
// governs logical deletion (the row is retained and stays retrievable by id).
type Client struct {
	ID           int64
	Name         string
	Phone        string
	Email        string
	BirthDate    *time.Time
	RegisteredAt time.Time
	Active       bool
}

// Consent is an immutable record of a client accepting or declining terms.
// Append-only: no update or delete operation exists.
type Consent struct {
	ID           int64
	ClientID     int64
	AcceptsTerms bool
	ConsentedAt  time.Time
}

// AuditEntry is an immutable log record of an action taken against a client.
// The mutation pipeline writes one per guarded operation; direct appends are
// allowed for manual entries.
type AuditEntry struct {
	ID         int64
	ClientID   int64
	Action     string
	OccurredAt time.Time
}

// Audit action labels written by the mutation pipeline. The strings are part of
// the stored record contract, so they stay in the original service vocabulary.
const (
	ActionClientCreated     = "Cliente creado"
	ActionClientUpdated     = "Cliente actualizado"
	ActionClientDeactivated = "Cliente eliminado (borrado lógico)"
	ActionConsentRecorded   = "Consentimiento registrado"
)

// NewClient carries the fields for a client insert. RegisteredAt is assigned by
// the service from the request clock before the store sees it.
type NewClient struct {
	Name         string
	Phone        string
	Email        string
	BirthDate    *time.Time
	Active       bool
	RegisteredAt time.Time
}

// ClientPatch carries a full-field client update. RegisteredAt is immutable and
// deliberately absent.
type ClientPatch struct {
	Name      string
	Phone     string
	Email     string
	BirthDate *time.Time
	Active    bool
}

// NewConsent carries the fields for a consent insert.
type NewConsent struct {
	ClientID     int64
	AcceptsTerms bool
	ConsentedAt  time.Time
}

// NewAuditEntry carries the fields for an audit insert.
type NewAuditEntry struct {
	ClientID   int64
	Action     string
	OccurredAt time.Time
}
