// Package postgres implements records.Store on PostgreSQL via database/sql and
// lib/pq. Writes participate in a transaction when one is carried in context
// (pkg/platform/tx), which is how the mutation pipeline makes a business write
// and its audit row commit or roll back together.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"padron/internal/records"
	"padron/pkg/platform/sentinel"
	txcontext "padron/pkg/platform/tx"
)

// Postgres error classes we translate into sentinel facts.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const clientColumns = "id, nombre, telefono, correo_electronico, fecha_nacimiento, fecha_registro, activo"

func (s *Store) InsertClient(ctx context.Context, in records.NewClient) (records.Client, error) {
	query := `
		INSERT INTO clientes (nombre, telefono, correo_electronico, fecha_nacimiento, fecha_registro, activo)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + clientColumns
	row := s.execer(ctx).QueryRowContext(ctx, query,
		in.Name, in.Phone, in.Email, in.BirthDate, in.RegisteredAt, in.Active)

	c, err := scanClient(row)
	if err != nil {
		return records.Client{}, translate(err, "insert client")
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id int64) (records.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clientes WHERE id = $1`
	c, err := scanClient(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return records.Client{}, translate(err, "get client")
	}
	return c, nil
}

func (s *Store) ListClients(ctx context.Context, filter records.Filter, page records.Page) ([]records.Client, error) {
	var (
		conds []string
		args  []any
	)
	addCond := func(column, substr string) {
		if substr == "" {
			return
		}
		args = append(args, "%"+substr+"%")
		conds = append(conds, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
	}
	addCond("nombre", filter.Name)
	addCond("correo_electronico", filter.Email)
	addCond("telefono", filter.Phone)

	query := `SELECT ` + clientColumns + ` FROM clientes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if page.Skip > 0 {
		args = append(args, page.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list clients")
	}
	defer rows.Close()

	out := make([]records.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, translate(err, "scan client")
		}
		out = append(out, c)
	}
	return out, translate(rows.Err(), "list clients")
}

func (s *Store) UpdateClient(ctx context.Context, id int64, patch records.ClientPatch) (records.Client, error) {
	query := `
		UPDATE clientes
		SET nombre = $2, telefono = $3, correo_electronico = $4, fecha_nacimiento = $5, activo = $6
		WHERE id = $1
		RETURNING ` + clientColumns
	row := s.execer(ctx).QueryRowContext(ctx, query,
		id, patch.Name, patch.Phone, patch.Email, patch.BirthDate, patch.Active)

	c, err := scanClient(row)
	if err != nil {
		return records.Client{}, translate(err, "update client")
	}
	return c, nil
}

func (s *Store) SetClientActive(ctx context.Context, id int64, active bool) (records.Client, error) {
	query := `UPDATE clientes SET activo = $2 WHERE id = $1 RETURNING ` + clientColumns
	c, err := scanClient(s.execer(ctx).QueryRowContext(ctx, query, id, active))
	if err != nil {
		return records.Client{}, translate(err, "set client active")
	}
	return c, nil
}

func (s *Store) DeleteClient(ctx context.Context, id int64) error {
	// Children go with the row via ON DELETE CASCADE (see schema.go).
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM clientes WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete client")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translate(err, "delete client")
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) InsertConsent(ctx context.Context, in records.NewConsent) (records.Consent, error) {
	query := `
		INSERT INTO consentimientos (cliente_id, acepta_terminos, fecha_consentimiento)
		VALUES ($1, $2, $3)
		RETURNING id, cliente_id, acepta_terminos, fecha_consentimiento`
	row := s.execer(ctx).QueryRowContext(ctx, query, in.ClientID, in.AcceptsTerms, in.ConsentedAt)

	var c records.Consent
	if err := row.Scan(&c.ID, &c.ClientID, &c.AcceptsTerms, &c.ConsentedAt); err != nil {
		return records.Consent{}, translate(err, "insert consent")
	}
	return c, nil
}

func (s *Store) ListConsents(ctx context.Context, clientID int64) ([]records.Consent, error) {
	query := `
		SELECT id, cliente_id, acepta_terminos, fecha_consentimiento
		FROM consentimientos WHERE cliente_id = $1 ORDER BY id`
	rows, err := s.execer(ctx).QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, translate(err, "list consents")
	}
	defer rows.Close()

	out := make([]records.Consent, 0)
	for rows.Next() {
		var c records.Consent
		if err := rows.Scan(&c.ID, &c.ClientID, &c.AcceptsTerms, &c.ConsentedAt); err != nil {
			return nil, translate(err, "scan consent")
		}
		out = append(out, c)
	}
	return out, translate(rows.Err(), "list consents")
}

func (s *Store) InsertAuditEntry(ctx context.Context, in records.NewAuditEntry) (records.AuditEntry, error) {
	query := `
		INSERT INTO auditoria (cliente_id, accion, fecha)
		VALUES ($1, $2, $3)
		RETURNING id, cliente_id, accion, fecha`
	row := s.execer(ctx).QueryRowContext(ctx, query, in.ClientID, in.Action, in.OccurredAt)

	var e records.AuditEntry
	if err := row.Scan(&e.ID, &e.ClientID, &e.Action, &e.OccurredAt); err != nil {
		return records.AuditEntry{}, translate(err, "insert audit entry")
	}
	return e, nil
}

func (s *Store) ListAuditByClient(ctx context.Context, clientID int64) ([]records.AuditEntry, error) {
	query := `SELECT id, cliente_id, accion, fecha FROM auditoria WHERE cliente_id = $1 ORDER BY id`
	return s.queryAudit(ctx, query, clientID)
}

func (s *Store) ListAudit(ctx context.Context, page records.Page) ([]records.AuditEntry, error) {
	query := `SELECT id, cliente_id, accion, fecha FROM auditoria ORDER BY id`
	args := make([]any, 0, 2)
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if page.Skip > 0 {
		args = append(args, page.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.queryAudit(ctx, query, args...)
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]records.AuditEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "list audit")
	}
	defer rows.Close()

	out := make([]records.AuditEntry, 0)
	for rows.Next() {
		var e records.AuditEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Action, &e.OccurredAt); err != nil {
			return nil, translate(err, "scan audit entry")
		}
		out = append(out, e)
	}
	return out, translate(rows.Err(), "list audit")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (records.Client, error) {
	var (
		c         records.Client
		birthDate sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &birthDate, &c.RegisteredAt, &c.Active)
	if err != nil {
		return records.Client{}, err
	}
	if birthDate.Valid {
		bd := birthDate.Time
		c.BirthDate = &bd
	}
	return c, nil
}

// translate maps driver errors onto sentinel facts so callers never see pq types.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
