package records

import "context"

// Filter narrows client listings. Each non-empty field is a case-insensitive
// substring constraint; multiple fields are ANDed together.
type Filter struct {
	Name  string
	Email string
	Phone string
}

// Page is an offset/limit window over an insertion-ordered listing.
type Page struct {
	Skip  int
	Limit int
}

// Store is the persistence contract for the records domain. Implementations
// report infrastructure facts via pkg/platform/sentinel (ErrNotFound for absent
// rows and foreign keys, ErrConflict for unique-constraint rejections) and must
// provide read-your-writes inside a transaction: the postgres store honors a
// *sql.Tx carried in context, the memory store serializes under its own lock.
//
// Listings are insertion (id) ordered.
type Store interface {
	InsertClient(ctx context.Context, in NewClient) (Client, error)
	GetClient(ctx context.Context, id int64) (Client, error)
	ListClients(ctx context.Context, filter Filter, page Page) ([]Client, error)
	UpdateClient(ctx context.Context, id int64, patch ClientPatch) (Client, error)
	SetClientActive(ctx context.Context, id int64, active bool) (Client, error)
	// DeleteClient removes the row physically; consents and audit entries
	// cascade with it. Not exposed over HTTP, used by retention tooling.
	DeleteClient(ctx context.Context, id int64) error

	InsertConsent(ctx context.Context, in NewConsent) (Consent, error)
	ListConsents(ctx context.Context, clientID int64) ([]Consent, error)

	InsertAuditEntry(ctx context.Context, in NewAuditEntry) (AuditEntry, error)
	ListAuditByClient(ctx context.Context, clientID int64) ([]AuditEntry, error)
	ListAudit(ctx context.Context, page Page) ([]AuditEntry, error)
}
