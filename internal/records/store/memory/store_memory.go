// Package memory provides an in-memory records.Store used by unit tests and
// the dev-mode server (no database configured).
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"padron/internal/records"
	"padron/pkg/platform/sentinel"
)

// Store keeps all rows in insertion-ordered slices guarded by one mutex. Email
// uniqueness is enforced through a secondary index, mirroring the unique
// constraint the postgres store gets from the database.
type Store struct {
	mu sync.RWMutex

	clients  []records.Client
	consents []records.Consent
	audit    []records.AuditEntry

	emailIndex map[string]int64 // email -> client id

	nextClientID  int64
	nextConsentID int64
	nextAuditID   int64
}

func New() *Store {
	return &Store{emailIndex: make(map[string]int64)}
}

func (s *Store) InsertClient(_ context.Context, in records.NewClient) (records.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emailIndex[in.Email]; exists {
		return records.Client{}, sentinel.ErrConflict
	}

	s.nextClientID++
	c := records.Client{
		ID:           s.nextClientID,
		Name:         in.Name,
		Phone:        in.Phone,
		Email:        in.Email,
		BirthDate:    in.BirthDate,
		RegisteredAt: orNow(in.RegisteredAt),
		Active:       in.Active,
	}
	s.clients = append(s.clients, c)
	s.emailIndex[c.Email] = c.ID
	return c, nil
}

func (s *Store) GetClient(_ context.Context, id int64) (records.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.clients[i], nil
	}
	return records.Client{}, sentinel.ErrNotFound
}

func (s *Store) ListClients(_ context.Context, filter records.Filter, page records.Page) ([]records.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]records.Client, 0)
	for _, c := range s.clients {
		if matches(c, filter) {
			matched = append(matched, c)
		}
	}
	return window(matched, page), nil
}

func (s *Store) UpdateClient(_ context.Context, id int64, patch records.ClientPatch) (records.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return records.Client{}, sentinel.ErrNotFound
	}
	if owner, taken := s.emailIndex[patch.Email]; taken && owner != id {
		return records.Client{}, sentinel.ErrConflict
	}

	c := s.clients[i]
	delete(s.emailIndex, c.Email)
	c.Name = patch.Name
	c.Phone = patch.Phone
	c.Email = patch.Email
	c.BirthDate = patch.BirthDate
	c.Active = patch.Active
	s.clients[i] = c
	s.emailIndex[c.Email] = c.ID
	return c, nil
}

func (s *Store) SetClientActive(_ context.Context, id int64, active bool) (records.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return records.Client{}, sentinel.ErrNotFound
	}
	s.clients[i].Active = active
	return s.clients[i], nil
}

func (s *Store) DeleteClient(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return sentinel.ErrNotFound
	}

	delete(s.emailIndex, s.clients[i].Email)
	s.clients = append(s.clients[:i], s.clients[i+1:]...)

	// Same cascade the postgres schema enforces via ON DELETE CASCADE.
	s.consents = filterConsents(s.consents, id)
	s.audit = filterAudit(s.audit, id)
	return nil
}

func (s *Store) InsertConsent(_ context.Context, in records.NewConsent) (records.Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(in.ClientID) < 0 {
		return records.Consent{}, sentinel.ErrNotFound
	}

	s.nextConsentID++
	c := records.Consent{
		ID:           s.nextConsentID,
		ClientID:     in.ClientID,
		AcceptsTerms: in.AcceptsTerms,
		ConsentedAt:  orNow(in.ConsentedAt),
	}
	s.consents = append(s.consents, c)
	return c, nil
}

func (s *Store) ListConsents(_ context.Context, clientID int64) ([]records.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]records.Consent, 0)
	for _, c := range s.consents {
		if c.ClientID == clientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) InsertAuditEntry(_ context.Context, in records.NewAuditEntry) (records.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(in.ClientID) < 0 {
		return records.AuditEntry{}, sentinel.ErrNotFound
	}

	s.nextAuditID++
	e := records.AuditEntry{
		ID:         s.nextAuditID,
		ClientID:   in.ClientID,
		Action:     in.Action,
		OccurredAt: orNow(in.OccurredAt),
	}
	s.audit = append(s.audit, e)
	return e, nil
}

func (s *Store) ListAuditByClient(_ context.Context, clientID int64) ([]records.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]records.AuditEntry, 0)
	for _, e := range s.audit {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListAudit(_ context.Context, page records.Page) ([]records.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return window(s.audit, page), nil
}

// Snapshot captures the full store state. Together with Restore it gives the
// in-memory transaction runner the same rollback contract a SQL transaction
// provides.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		clients:       append([]records.Client(nil), s.clients...),
		consents:      append([]records.Consent(nil), s.consents...),
		audit:         append([]records.AuditEntry(nil), s.audit...),
		emailIndex:    make(map[string]int64, len(s.emailIndex)),
		nextClientID:  s.nextClientID,
		nextConsentID: s.nextConsentID,
		nextAuditID:   s.nextAuditID,
	}
	for k, v := range s.emailIndex {
		snap.emailIndex[k] = v
	}
	return snap
}

// Restore rewinds the store to a previously captured Snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients = snap.clients
	s.consents = snap.consents
	s.audit = snap.audit
	s.emailIndex = snap.emailIndex
	s.nextClientID = snap.nextClientID
	s.nextConsentID = snap.nextConsentID
	s.nextAuditID = snap.nextAuditID
}

// Snapshot is an opaque copy of store state.
type Snapshot struct {
	clients       []records.Client
	consents      []records.Consent
	audit         []records.AuditEntry
	emailIndex    map[string]int64
	nextClientID  int64
	nextConsentID int64
	nextAuditID   int64
}

func (s *Store) indexOf(id int64) int {
	for i, c := range s.clients {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func matches(c records.Client, f records.Filter) bool {
	return containsFold(c.Name, f.Name) &&
		containsFold(c.Email, f.Email) &&
		containsFold(c.Phone, f.Phone)
}

func containsFold(value, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(substr))
}

func window[T any](rows []T, page records.Page) []T {
	skip := page.Skip
	if skip < 0 {
		skip = 0
	}
	if skip >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if page.Limit > 0 && skip+page.Limit < end {
		end = skip + page.Limit
	}
	return append([]T{}, rows[skip:end]...)
}

func filterConsents(rows []records.Consent, clientID int64) []records.Consent {
	out := rows[:0]
	for _, c := range rows {
		if c.ClientID != clientID {
			out = append(out, c)
		}
	}
	return out
}

func filterAudit(rows []records.AuditEntry, clientID int64) []records.AuditEntry {
	out := rows[:0]
	for _, e := range rows {
		if e.ClientID != clientID {
			out = append(out, e)
		}
	}
	return out
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
