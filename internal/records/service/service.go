// Package service implements the mutation pipeline and the query surface over
// the records store. Every guarded write runs inside StoreTx.RunInTx together
// with its audit entry: both persist or neither does.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"padron/internal/platform/metrics"
	"padron/internal/records"
	dErrors "padron/pkg/domain-errors"
	"padron/pkg/platform/sentinel"
	"padron/pkg/requestcontext"
)

// Service orchestrates store access. It keeps transaction composition out of
// handlers and translation of store facts into domain errors in one place.
type Service struct {
	store   records.Store
	tx      StoreTx
	cache   *Cache
	mirror  chan<- records.AuditEntry
	logger  *slog.Logger
	metrics *metrics.Metrics

	pageSize    int
	maxPageSize int
}

// Options carries the optional collaborators.
type Options struct {
	Cache       *Cache
	Mirror      chan<- records.AuditEntry
	PageSize    int
	MaxPageSize int
}

func New(store records.Store, tx StoreTx, logger *slog.Logger, m *metrics.Metrics, opts Options) *Service {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Service{
		store:       store,
		tx:          tx,
		cache:       opts.Cache,
		mirror:      opts.Mirror,
		logger:      logger,
		metrics:     m,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
	}
}

// -----------------------------------------------------------------------------
// Mutation pipeline
// -----------------------------------------------------------------------------

// CreateClient inserts a client and its "Cliente creado" audit entry in one
// transaction.
func (s *Service) CreateClient(ctx context.Context, in records.NewClient) (records.Client, error) {
	if err := validateClientFields(in.Name, in.Phone, in.Email); err != nil {
		return records.Client{}, err
	}
	now := requestcontext.Now(ctx).UTC()
	in.RegisteredAt = now

	var (
		created records.Client
		entry   records.AuditEntry
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, store records.Store) error {
		var err error
		created, err = store.InsertClient(ctx, in)
		if err != nil {
			return err
		}
		entry, err = store.InsertAuditEntry(ctx, records.NewAuditEntry{
			ClientID:   created.ID,
			Action:     records.ActionClientCreated,
			OccurredAt: now,
		})
		return err
	})
	if err != nil {
		return records.Client{}, s.translate(err)
	}

	s.metrics.ClientsCreated.Inc()
	s.committed(ctx, entry)
	return created, nil
}

// UpdateClient applies a full-field patch and its audit entry in one transaction.
func (s *Service) UpdateClient(ctx context.Context, id int64, patch records.ClientPatch) (records.Client, error) {
	if err := validateClientFields(patch.Name, patch.Phone, patch.Email); err != nil {
		return records.Client{}, err
	}
	now := requestcontext.Now(ctx).UTC()

	var (
		updated records.Client
		entry   records.AuditEntry
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, store records.Store) error {
		var err error
		updated, err = store.UpdateClient(ctx, id, patch)
		if err != nil {
			return err
		}
		entry, err = store.InsertAuditEntry(ctx, records.NewAuditEntry{
			ClientID:   id,
			Action:     records.ActionClientUpdated,
			OccurredAt: now,
		})
		return err
	})
	if err != nil {
		return records.Client{}, s.translate(err)
	}

	s.invalidate(ctx, id)
	s.committed(ctx, entry)
	return updated, nil
}

// DeactivateClient performs the logical delete: the row survives with
// activo=false, children are untouched, and the audit trail records it.
func (s *Service) DeactivateClient(ctx context.Context, id int64) (records.Client, error) {
	now := requestcontext.Now(ctx).UTC()

	var (
		client records.Client
		entry  records.AuditEntry
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, store records.Store) error {
		var err error
		client, err = store.SetClientActive(ctx, id, false)
		if err != nil {
			return err
		}
		entry, err = store.InsertAuditEntry(ctx, records.NewAuditEntry{
			ClientID:   id,
			Action:     records.ActionClientDeactivated,
			OccurredAt: now,
		})
		return err
	})
	if err != nil {
		return records.Client{}, s.translate(err)
	}

	s.invalidate(ctx, id)
	s.committed(ctx, entry)
	return client, nil
}

// RecordConsent appends an immutable consent record plus its audit entry. The
// owning client is resolved first so a missing client fails before any write.
func (s *Service) RecordConsent(ctx context.Context, in records.NewConsent) (records.Consent, error) {
	if in.ClientID <= 0 {
		return records.Consent{}, dErrors.New(dErrors.CodeBadRequest, "cliente_id is required")
	}
	now := requestcontext.Now(ctx).UTC()
	in.ConsentedAt = now

	var (
		consent records.Consent
		entry   records.AuditEntry
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, store records.Store) error {
		if _, err := store.GetClient(ctx, in.ClientID); err != nil {
			return err
		}
		var err error
		consent, err = store.InsertConsent(ctx, in)
		if err != nil {
			return err
		}
		entry, err = store.InsertAuditEntry(ctx, records.NewAuditEntry{
			ClientID:   in.ClientID,
			Action:     records.ActionConsentRecorded,
			OccurredAt: now,
		})
		return err
	})
	if err != nil {
		return records.Consent{}, s.translate(err)
	}

	s.committed(ctx, entry)
	return consent, nil
}

// AppendAudit writes a manual audit entry: a single insert, no audit-of-audit.
// The insert still runs through StoreTx so it serializes with pipeline
// transactions; a write that returned to the caller can never be undone by an
// unrelated rollback.
func (s *Service) AppendAudit(ctx context.Context, in records.NewAuditEntry) (records.AuditEntry, error) {
	if in.ClientID <= 0 {
		return records.AuditEntry{}, dErrors.New(dErrors.CodeBadRequest, "cliente_id is required")
	}
	if strings.TrimSpace(in.Action) == "" {
		return records.AuditEntry{}, dErrors.New(dErrors.CodeBadRequest, "accion is required")
	}
	in.OccurredAt = requestcontext.Now(ctx).UTC()

	var entry records.AuditEntry
	err := s.tx.RunInTx(ctx, func(ctx context.Context, store records.Store) error {
		var err error
		entry, err = store.InsertAuditEntry(ctx, in)
		return err
	})
	if err != nil {
		return records.AuditEntry{}, s.translate(err)
	}

	s.metrics.AuditEntries.Inc()
	s.offerMirror(entry)
	return entry, nil
}

// -----------------------------------------------------------------------------
// Query service
// -----------------------------------------------------------------------------

// GetClient returns the client, soft-deleted or not. Served from the redis
// cache when one is configured.
func (s *Service) GetClient(ctx context.Context, id int64) (records.Client, error) {
	if s.cache != nil {
		if client, ok := s.cache.Get(ctx, id); ok {
			return client, nil
		}
	}
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		return records.Client{}, s.translate(err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, client)
	}
	return client, nil
}

// ListClients pages over all clients in insertion order.
func (s *Service) ListClients(ctx context.Context, skip, limit int) ([]records.Client, error) {
	clients, err := s.store.ListClients(ctx, records.Filter{}, s.page(skip, limit))
	if err != nil {
		return nil, s.translate(err)
	}
	return clients, nil
}

// SearchClients returns every client matching the filter; an empty result set
// is valid, not an error.
func (s *Service) SearchClients(ctx context.Context, filter records.Filter) ([]records.Client, error) {
	clients, err := s.store.ListClients(ctx, filter, records.Page{})
	if err != nil {
		return nil, s.translate(err)
	}
	return clients, nil
}

// ListConsents returns all consent records for a client in insertion order.
func (s *Service) ListConsents(ctx context.Context, clientID int64) ([]records.Consent, error) {
	consents, err := s.store.ListConsents(ctx, clientID)
	if err != nil {
		return nil, s.translate(err)
	}
	return consents, nil
}

// ListAuditByClient returns a client's full audit trail in insertion order.
func (s *Service) ListAuditByClient(ctx context.Context, clientID int64) ([]records.AuditEntry, error) {
	entries, err := s.store.ListAuditByClient(ctx, clientID)
	if err != nil {
		return nil, s.translate(err)
	}
	return entries, nil
}

// ListAudit pages over the global audit trail.
func (s *Service) ListAudit(ctx context.Context, skip, limit int) ([]records.AuditEntry, error) {
	entries, err := s.store.ListAudit(ctx, s.page(skip, limit))
	if err != nil {
		return nil, s.translate(err)
	}
	return entries, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Service) page(skip, limit int) records.Page {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	return records.Page{Skip: skip, Limit: limit}
}

// committed runs the post-commit bookkeeping for a pipeline mutation.
func (s *Service) committed(ctx context.Context, entry records.AuditEntry) {
	s.metrics.IncrementMutation(entry.Action)
	s.offerMirror(entry)
	s.logger.InfoContext(ctx, "mutation committed",
		"request_id", requestcontext.RequestID(ctx),
		"cliente_id", entry.ClientID,
		"accion", entry.Action,
	)
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

// offerMirror hands the committed entry to the mirror worker without blocking
// the request; the mirror is best-effort and must never stall a mutation.
func (s *Service) offerMirror(entry records.AuditEntry) {
	if s.mirror == nil {
		return
	}
	select {
	case s.mirror <- entry:
	default:
		s.logger.Warn("audit mirror inbox full, dropping entry", "audit_id", entry.ID)
	}
}

// translate maps store facts and already-coded errors onto the domain taxonomy.
func (s *Service) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case dErrors.Is(err, dErrors.CodeBadRequest),
		dErrors.Is(err, dErrors.CodeTimeout):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "client not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "correo_electronico already registered")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}

func validateClientFields(name, phone, email string) error {
	if strings.TrimSpace(name) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "nombre is required")
	}
	if strings.TrimSpace(phone) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "telefono is required")
	}
	if strings.TrimSpace(email) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "correo_electronico is required")
	}
	if !strings.Contains(email, "@") {
		return dErrors.New(dErrors.CodeBadRequest, "correo_electronico is not a valid address")
	}
	return nil
}
