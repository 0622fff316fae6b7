// Package handler is the thin HTTP layer over the records service. It maps
// requests to typed service calls and domain errors to transport statuses;
// business logic stays out.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"padron/internal/platform/metrics"
	"padron/internal/records"
	"padron/internal/records/export"
	dErrors "padron/pkg/domain-errors"
	"padron/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mocks.go -package=mocks Service

// Service defines the operations the HTTP layer needs from the records service.
type Service interface {
	CreateClient(ctx context.Context, in records.NewClient) (records.Client, error)
	GetClient(ctx context.Context, id int64) (records.Client, error)
	ListClients(ctx context.Context, skip, limit int) ([]records.Client, error)
	SearchClients(ctx context.Context, filter records.Filter) ([]records.Client, error)
	UpdateClient(ctx context.Context, id int64, patch records.ClientPatch) (records.Client, error)
	DeactivateClient(ctx context.Context, id int64) (records.Client, error)
	RecordConsent(ctx context.Context, in records.NewConsent) (records.Consent, error)
	ListConsents(ctx context.Context, clientID int64) ([]records.Consent, error)
	AppendAudit(ctx context.Context, in records.NewAuditEntry) (records.AuditEntry, error)
	ListAuditByClient(ctx context.Context, clientID int64) ([]records.AuditEntry, error)
	ListAudit(ctx context.Context, skip, limit int) ([]records.AuditEntry, error)
}

// Exporter streams the full client set in a wire format.
type Exporter interface {
	WriteClients(ctx context.Context, w io.Writer, format string) error
}

type Handler struct {
	logger   *slog.Logger
	svc      Service
	exporter Exporter
	metrics  *metrics.Metrics
}

func New(svc Service, exporter Exporter, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		svc:      svc,
		exporter: exporter,
		metrics:  m,
	}
}

// Register mounts all routes on the given router. Static segments (export,
// buscar) take priority over the {clienteID} parameter.
func (h *Handler) Register(r chi.Router) {
	r.Route("/clientes", func(r chi.Router) {
		r.Post("/", h.handleCreateClient)
		r.Get("/", h.handleListClients)
		r.Get("/export", h.handleExport)
		r.Get("/buscar", h.handleSearchClients)
		r.Route("/{clienteID}", func(r chi.Router) {
			r.Get("/", h.handleGetClient)
			r.Put("/", h.handleUpdateClient)
			r.Delete("/", h.handleDeactivateClient)
			r.Get("/consentimientos", h.handleListConsents)
			r.Get("/auditoria", h.handleListAuditByClient)
		})
	})
	r.Post("/consentimientos", h.handleCreateConsent)
	r.Route("/auditoria", func(r chi.Router) {
		r.Post("/", h.handleCreateAudit)
		r.Get("/", h.handleListAudit)
	})
}

// -----------------------------------------------------------------------------
// Clients
// -----------------------------------------------------------------------------

type clientRequest struct {
	Nombre          string  `json:"nombre"`
	Telefono        string  `json:"telefono"`
	Correo          string  `json:"correo_electronico"`
	FechaNacimiento *string `json:"fecha_nacimiento"`
	Activo          *bool   `json:"activo"`
}

func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	birthDate, err := parseBirthDate(req.FechaNacimiento)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	active := true
	if req.Activo != nil {
		active = *req.Activo
	}

	client, err := h.svc.CreateClient(r.Context(), records.NewClient{
		Name:      req.Nombre,
		Phone:     req.Telefono,
		Email:     req.Correo,
		BirthDate: birthDate,
		Active:    active,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientResponse(client))
}

func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	client, err := h.svc.GetClient(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	clients, err := h.svc.ListClients(r.Context(), skip, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponses(clients))
}

func (h *Handler) handleSearchClients(w http.ResponseWriter, r *http.Request) {
	filter := records.Filter{
		Name:  r.URL.Query().Get("nombre"),
		Email: r.URL.Query().Get("correo"),
		Phone: r.URL.Query().Get("telefono"),
	}
	clients, err := h.svc.SearchClients(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponses(clients))
}

func (h *Handler) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	birthDate, err := parseBirthDate(req.FechaNacimiento)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	active := true
	if req.Activo != nil {
		active = *req.Activo
	}

	client, err := h.svc.UpdateClient(r.Context(), id, records.ClientPatch{
		Name:      req.Nombre,
		Phone:     req.Telefono,
		Email:     req.Correo,
		BirthDate: birthDate,
		Active:    active,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

func (h *Handler) handleDeactivateClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	client, err := h.svc.DeactivateClient(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatJSON
	}
	if format != export.FormatJSON && format != export.FormatCSV {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "unsupported export format: "+format))
		return
	}

	h.metrics.ExportRequests.WithLabelValues(format).Inc()
	w.Header().Set("Content-Type", export.ContentType(format))
	if format == export.FormatCSV {
		w.Header().Set("Content-Disposition", `attachment; filename=clientes.csv`)
	}

	tw := &trackingWriter{ResponseWriter: w}
	if err := h.exporter.WriteClients(r.Context(), tw, format); err != nil {
		if !tw.wrote {
			// Nothing streamed yet, so the status line is still ours.
			w.Header().Del("Content-Disposition")
			h.writeError(w, r, err)
			return
		}
		// Headers are gone already; all we can do is log the broken stream.
		h.logger.ErrorContext(r.Context(), "export stream failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"format", format,
			"error", err.Error(),
		)
	}
}

// trackingWriter records whether any body byte has left for the client, which
// decides between a real error response and a truncated stream.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.wrote = true
	}
	return t.ResponseWriter.Write(p)
}

// -----------------------------------------------------------------------------
// Consents
// -----------------------------------------------------------------------------

type consentRequest struct {
	ClienteID      int64 `json:"cliente_id"`
	AceptaTerminos *bool `json:"acepta_terminos"`
}

func (h *Handler) handleCreateConsent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.AceptaTerminos == nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "acepta_terminos is required"))
		return
	}

	consent, err := h.svc.RecordConsent(r.Context(), records.NewConsent{
		ClientID:     req.ClienteID,
		AcceptsTerms: *req.AceptaTerminos,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsentResponse(consent))
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	id, err := clientID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	consents, err := h.svc.ListConsents(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]consentResponse, 0, len(consents))
	for _, c := range consents {
		out = append(out, toConsentResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// -----------------------------------------------------------------------------
// Audit
// -----------------------------------------------------------------------------

type auditRequest struct {
	ClienteID int64  `json:"cliente_id"`
	Accion    string `json:"accion"`
}

func (h *Handler) handleCreateAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	entry, err := h.svc.AppendAudit(r.Context(), records.NewAuditEntry{
		ClientID: req.ClienteID,
		Action:   req.Accion,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuditResponse(entry))
}

func (h *Handler) handleListAuditByClient(w http.ResponseWriter, r *http.Request) {
	id, err := clientID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.svc.ListAuditByClient(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(entries))
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.svc.ListAudit(r.Context(), skip, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(entries))
}

// -----------------------------------------------------------------------------
// Request parsing
// -----------------------------------------------------------------------------

func clientID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "clienteID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "client id must be a positive integer")
	}
	return id, nil
}

func pageParams(r *http.Request) (skip, limit int, err error) {
	skip, err = queryInt(r, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err = queryInt(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be an integer")
	}
	return n, nil
}

const dateLayout = "2006-01-02"

func parseBirthDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "fecha_nacimiento must be formatted as YYYY-MM-DD")
	}
	return &t, nil
}
