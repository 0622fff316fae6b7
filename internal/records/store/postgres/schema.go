package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the full DDL for the records domain. Child tables reference
// clientes with ON DELETE CASCADE, so a physical client delete takes its
// consents and audit trail with it without application-level bookkeeping.
const schema = `
CREATE TABLE IF NOT EXISTS clientes (
	id                 BIGSERIAL PRIMARY KEY,
	nombre             TEXT NOT NULL,
	telefono           TEXT NOT NULL,
	correo_electronico TEXT NOT NULL UNIQUE,
	fecha_nacimiento   DATE,
	fecha_registro     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	activo             BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS consentimientos (
	id                   BIGSERIAL PRIMARY KEY,
	cliente_id           BIGINT NOT NULL REFERENCES clientes(id) ON DELETE CASCADE,
	acepta_terminos      BOOLEAN NOT NULL,
	fecha_consentimiento TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_consentimientos_cliente ON consentimientos (cliente_id);

CREATE TABLE IF NOT EXISTS auditoria (
	id         BIGSERIAL PRIMARY KEY,
	cliente_id BIGINT NOT NULL REFERENCES clientes(id) ON DELETE CASCADE,
	accion     TEXT NOT NULL,
	fecha      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_auditoria_cliente ON auditoria (cliente_id);
`

// EnsureSchema creates the tables when they do not exist yet. Idempotent; ran
// at startup so a fresh database is usable without external migration tooling.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
