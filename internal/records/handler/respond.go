package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"padron/internal/records"
	dErrors "padron/pkg/domain-errors"
	"padron/pkg/requestcontext"
)

// clientResponse is the wire shape of a client. Field names are the API's
// external contract and stay in the service's original vocabulary.
type clientResponse struct {
	ID              int64     `json:"id"`
	Nombre          string    `json:"nombre"`
	Telefono        string    `json:"telefono"`
	Correo          string    `json:"correo_electronico"`
	FechaNacimiento *string   `json:"fecha_nacimiento"`
	FechaRegistro   time.Time `json:"fecha_registro"`
	Activo          bool      `json:"activo"`
}

type consentResponse struct {
	ID                  int64     `json:"id"`
	ClienteID           int64     `json:"cliente_id"`
	AceptaTerminos      bool      `json:"acepta_terminos"`
	FechaConsentimiento time.Time `json:"fecha_consentimiento"`
}

type auditResponse struct {
	ID        int64     `json:"id"`
	ClienteID int64     `json:"cliente_id"`
	Accion    string    `json:"accion"`
	Fecha     time.Time `json:"fecha"`
}

func toClientResponse(c records.Client) clientResponse {
	resp := clientResponse{
		ID:            c.ID,
		Nombre:        c.Name,
		Telefono:      c.Phone,
		Correo:        c.Email,
		FechaRegistro: c.RegisteredAt,
		Activo:        c.Active,
	}
	if c.BirthDate != nil {
		bd := c.BirthDate.Format(dateLayout)
		resp.FechaNacimiento = &bd
	}
	return resp
}

func toClientResponses(clients []records.Client) []clientResponse {
	out := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, toClientResponse(c))
	}
	return out
}

func toConsentResponse(c records.Consent) consentResponse {
	return consentResponse{
		ID:                  c.ID,
		ClienteID:           c.ClientID,
		AceptaTerminos:      c.AcceptsTerms,
		FechaConsentimiento: c.ConsentedAt,
	}
}

func toAuditResponse(e records.AuditEntry) auditResponse {
	return auditResponse{
		ID:        e.ID,
		ClienteID: e.ClientID,
		Accion:    e.Action,
		Fecha:     e.OccurredAt,
	}
}

func toAuditResponses(entries []records.AuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditResponse(e))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates domain errors into the JSON error envelope. Internal
// details go to the log, never to the caller.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	WriteError(w, err)
}

// WriteError writes the error envelope for a coded error. Exported for reuse in
// router-level handlers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && errors.As(err, &de) {
		// Message is caller-safe by construction for non-internal codes.
		body["error_description"] = de.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(body)
}
