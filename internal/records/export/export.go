// Package export serializes the full client set as CSV or JSON. Rows are read
// in store pages and written as they arrive, so exports never buffer the whole
// table in memory.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"padron/internal/records"
	dErrors "padron/pkg/domain-errors"
)

// Supported format strings, as received on the wire.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

const dateLayout = "2006-01-02"

// defaultPageSize bounds one store read per flush.
const defaultPageSize = 500

// Lister is the slice of the store the exporter needs.
type Lister interface {
	ListClients(ctx context.Context, filter records.Filter, page records.Page) ([]records.Client, error)
}

type Exporter struct {
	store    Lister
	pageSize int
}

func New(store Lister) *Exporter {
	return &Exporter{store: store, pageSize: defaultPageSize}
}

// ContentType returns the response content type for a supported format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// WriteClients streams every client to w in the requested format. Unknown
// formats fail with CodeBadRequest before anything is written.
func (e *Exporter) WriteClients(ctx context.Context, w io.Writer, format string) error {
	switch format {
	case FormatCSV:
		return e.writeCSV(ctx, w)
	case FormatJSON:
		return e.writeJSON(ctx, w)
	default:
		return dErrors.New(dErrors.CodeBadRequest, "unsupported export format: "+format)
	}
}

func (e *Exporter) writeCSV(ctx context.Context, w io.Writer) error {
	cw := csv.NewWriter(w)
	header := func() error {
		return cw.Write([]string{"id", "nombre", "telefono", "correo_electronico", "fecha_nacimiento", "fecha_registro", "activo"})
	}

	err := e.eachPage(ctx, header, func(clients []records.Client) error {
		for _, c := range clients {
			row := []string{
				strconv.FormatInt(c.ID, 10),
				c.Name,
				c.Phone,
				c.Email,
				formatBirthDate(c.BirthDate),
				c.RegisteredAt.UTC().Format(time.RFC3339),
				strconv.FormatBool(c.Active),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write export")
	}
	return nil
}

// jsonClient is the export wire shape; field names match the CSV header.
type jsonClient struct {
	ID              int64   `json:"id"`
	Nombre          string  `json:"nombre"`
	Telefono        string  `json:"telefono"`
	Correo          string  `json:"correo_electronico"`
	FechaNacimiento *string `json:"fecha_nacimiento"`
	FechaRegistro   string  `json:"fecha_registro"`
	Activo          bool    `json:"activo"`
}

func (e *Exporter) writeJSON(ctx context.Context, w io.Writer) error {
	open := func() error {
		_, err := io.WriteString(w, "[")
		return err
	}

	first := true
	err := e.eachPage(ctx, open, func(clients []records.Client) error {
		for _, c := range clients {
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			first = false

			item := jsonClient{
				ID:            c.ID,
				Nombre:        c.Name,
				Telefono:      c.Phone,
				Correo:        c.Email,
				FechaRegistro: c.RegisteredAt.UTC().Format(time.RFC3339),
				Activo:        c.Active,
			}
			if c.BirthDate != nil {
				bd := c.BirthDate.Format(dateLayout)
				item.FechaNacimiento = &bd
			}
			payload, err := json.Marshal(item)
			if err != nil {
				return err
			}
			if _, err := w.Write(payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write export")
	}
	return nil
}

// eachPage reads the table in insertion-ordered windows and hands each batch
// to emit until the store runs dry. start runs after the first read succeeds
// and before any emit, so a store failure on the opening page leaves the
// writer untouched and the caller free to answer with an error status.
func (e *Exporter) eachPage(ctx context.Context, start func() error, emit func([]records.Client) error) error {
	for skip := 0; ; skip += e.pageSize {
		clients, err := e.store.ListClients(ctx, records.Filter{}, records.Page{Skip: skip, Limit: e.pageSize})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read clients for export")
		}
		if skip == 0 {
			if err := start(); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "write export")
			}
		}
		if len(clients) == 0 {
			return nil
		}
		if err := emit(clients); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "write export")
		}
		if len(clients) < e.pageSize {
			return nil
		}
	}
}

func formatBirthDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
