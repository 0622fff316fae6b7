package handler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"padron/internal/platform/metrics"
	"padron/internal/records"
	"padron/internal/records/handler"
	"padron/internal/records/handler/mocks"
	dErrors "padron/pkg/domain-errors"
	"padron/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	svc      *mocks.MockService
	exporter *mocks.MockExporter
	router   http.Handler
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.svc = mocks.NewMockService(s.ctrl)
	s.exporter = mocks.NewMockExporter(s.ctrl)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	s.router = handler.NewRouter(handler.New(s.svc, s.exporter, log, m), log, m)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func sampleClient(id int64) records.Client {
	return records.Client{
		ID:           id,
		Name:         "Ana García",
		Phone:        "555-0100",
		Email:        "ana@example.com",
		RegisteredAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
		Active:       true,
	}
}

// TestCreateClient covers POST /clientes/.
func (s *HandlerSuite) TestCreateClient() {
	s.Run("valid payload yields 201 with the stored client", func() {
		s.svc.EXPECT().
			CreateClient(gomock.Any(), records.NewClient{
				Name: "Ana García", Phone: "555-0100", Email: "ana@example.com", Active: true,
			}).
			Return(sampleClient(1), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/clientes/", map[string]any{
			"nombre":             "Ana García",
			"telefono":           "555-0100",
			"correo_electronico": "ana@example.com",
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(float64(1), (*resp)["id"])
		s.Equal("Ana García", (*resp)["nombre"])
		s.Equal(true, (*resp)["activo"])
	})

	s.Run("birth date is parsed as YYYY-MM-DD", func() {
		bd := time.Date(1990, 6, 2, 0, 0, 0, 0, time.UTC)
		s.svc.EXPECT().
			CreateClient(gomock.Any(), records.NewClient{
				Name: "Ana García", Phone: "555-0100", Email: "ana@example.com",
				BirthDate: &bd, Active: true,
			}).
			Return(sampleClient(1), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/clientes/", map[string]any{
			"nombre":             "Ana García",
			"telefono":           "555-0100",
			"correo_electronico": "ana@example.com",
			"fecha_nacimiento":   "1990-06-02",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("malformed body yields 400 without touching the service", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/clientes/", "{not json")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("malformed birth date yields 400", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/clientes/", map[string]any{
			"nombre":             "Ana García",
			"telefono":           "555-0100",
			"correo_electronico": "ana@example.com",
			"fecha_nacimiento":   "02/06/1990",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("duplicate email maps to 409", func() {
		s.svc.EXPECT().
			CreateClient(gomock.Any(), gomock.Any()).
			Return(records.Client{}, dErrors.New(dErrors.CodeConflict, "correo_electronico already registered"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/clientes/", map[string]any{
			"nombre":             "Ana García",
			"telefono":           "555-0100",
			"correo_electronico": "ana@example.com",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})
}

// TestGetClient covers GET /clientes/{id}.
func (s *HandlerSuite) TestGetClient() {
	s.Run("existing id yields 200", func() {
		s.svc.EXPECT().GetClient(gomock.Any(), int64(7)).Return(sampleClient(7), nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/7"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(float64(7), (*resp)["id"])
	})

	s.Run("unknown id maps to 404", func() {
		s.svc.EXPECT().
			GetClient(gomock.Any(), int64(99)).
			Return(records.Client{}, dErrors.New(dErrors.CodeNotFound, "client not found"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/99"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("non-integer id yields 400 without touching the service", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/abc"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("internal errors yield 500 with no description", func() {
		s.svc.EXPECT().
			GetClient(gomock.Any(), int64(7)).
			Return(records.Client{}, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "storage failure"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/7"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")

		resp := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
		_, leaked := (*resp)["error_description"]
		s.False(leaked, "internal details must not reach the caller")
	})
}

// TestListAndSearch covers GET /clientes/ and GET /clientes/buscar.
func (s *HandlerSuite) TestListAndSearch() {
	s.Run("list forwards skip and limit", func() {
		s.svc.EXPECT().
			ListClients(gomock.Any(), 5, 2).
			Return([]records.Client{sampleClient(6), sampleClient(7)}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/?skip=5&limit=2"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[[]map[string]any](s.T(), rr)
		s.Len(*resp, 2)
	})

	s.Run("missing params default to zero and let the service decide", func() {
		s.svc.EXPECT().ListClients(gomock.Any(), 0, 0).Return([]records.Client{}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.JSONEq("[]", string(testutil.ReadBody(s.T(), rr)))
	})

	s.Run("non-integer skip yields 400", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/?skip=diez"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("search forwards all three filters", func() {
		s.svc.EXPECT().
			SearchClients(gomock.Any(), records.Filter{Name: "ana", Email: "example", Phone: "555"}).
			Return([]records.Client{sampleClient(1)}, nil)

		rr := testutil.DoRequest(s.router,
			testutil.NewRequest(s.T(), http.MethodGet, "/clientes/buscar?nombre=ana&correo=example&telefono=555"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})
}

// TestUpdateAndDeactivate covers PUT and DELETE on /clientes/{id}.
func (s *HandlerSuite) TestUpdateAndDeactivate() {
	s.Run("update forwards the patch and yields 200", func() {
		s.svc.EXPECT().
			UpdateClient(gomock.Any(), int64(3), records.ClientPatch{
				Name: "Ana G.", Phone: "555-0101", Email: "ana@example.com", Active: false,
			}).
			Return(sampleClient(3), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/clientes/3", map[string]any{
			"nombre":             "Ana G.",
			"telefono":           "555-0101",
			"correo_electronico": "ana@example.com",
			"activo":             false,
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("delete is the logical one and returns the deactivated client", func() {
		deactivated := sampleClient(3)
		deactivated.Active = false
		s.svc.EXPECT().DeactivateClient(gomock.Any(), int64(3)).Return(deactivated, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/clientes/3"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(false, (*resp)["activo"])
	})
}

// TestExport covers GET /clientes/export.
func (s *HandlerSuite) TestExport() {
	s.Run("defaults to json", func() {
		s.exporter.EXPECT().
			WriteClients(gomock.Any(), gomock.Any(), "json").
			Return(nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/export"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.Equal("application/json", rr.Header().Get("Content-Type"))
	})

	s.Run("csv sets the download headers", func() {
		s.exporter.EXPECT().
			WriteClients(gomock.Any(), gomock.Any(), "csv").
			Return(nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/export?format=csv"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.Equal("text/csv", rr.Header().Get("Content-Type"))
		s.Equal(`attachment; filename=clientes.csv`, rr.Header().Get("Content-Disposition"))
	})

	s.Run("unknown format yields 400 without touching the exporter", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/export?format=xml"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("store failure before the first byte yields 500", func() {
		s.exporter.EXPECT().
			WriteClients(gomock.Any(), gomock.Any(), "csv").
			Return(dErrors.Wrap(errors.New("connection refused"), dErrors.CodeInternal, "read clients for export"))

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/export?format=csv"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
		s.Empty(rr.Header().Get("Content-Disposition"))
	})

	s.Run("mid-stream failure keeps the 200 and the partial body", func() {
		s.exporter.EXPECT().
			WriteClients(gomock.Any(), gomock.Any(), "json").
			DoAndReturn(func(_ context.Context, w io.Writer, _ string) error {
				if _, err := io.WriteString(w, `[{"id":1}`); err != nil {
					return err
				}
				return dErrors.Wrap(errors.New("connection reset"), dErrors.CodeInternal, "read clients for export")
			})

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/export?format=json"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.Equal(`[{"id":1}`, rr.Body.String())
	})
}

// TestConsents covers POST /consentimientos/ and GET /clientes/{id}/consentimientos.
func (s *HandlerSuite) TestConsents() {
	s.Run("valid consent yields 201", func() {
		s.svc.EXPECT().
			RecordConsent(gomock.Any(), records.NewConsent{ClientID: 4, AcceptsTerms: true}).
			Return(records.Consent{
				ID: 1, ClientID: 4, AcceptsTerms: true,
				ConsentedAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
			}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consentimientos/", map[string]any{
			"cliente_id":      4,
			"acepta_terminos": true,
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(float64(4), (*resp)["cliente_id"])
		s.Equal(true, (*resp)["acepta_terminos"])
	})

	s.Run("missing acepta_terminos yields 400", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consentimientos/", map[string]any{
			"cliente_id": 4,
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown owner maps to 404", func() {
		s.svc.EXPECT().
			RecordConsent(gomock.Any(), gomock.Any()).
			Return(records.Consent{}, dErrors.New(dErrors.CodeNotFound, "client not found"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/consentimientos/", map[string]any{
			"cliente_id":      99,
			"acepta_terminos": false,
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("listing a client's consents yields 200", func() {
		s.svc.EXPECT().
			ListConsents(gomock.Any(), int64(4)).
			Return([]records.Consent{{ID: 1, ClientID: 4, AcceptsTerms: true}}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/4/consentimientos"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[[]map[string]any](s.T(), rr)
		s.Len(*resp, 1)
	})
}

// TestAudit covers POST /auditoria/, GET /auditoria/, and the per-client trail.
func (s *HandlerSuite) TestAudit() {
	s.Run("manual entry yields 201", func() {
		s.svc.EXPECT().
			AppendAudit(gomock.Any(), records.NewAuditEntry{ClientID: 4, Action: "Revisión manual"}).
			Return(records.AuditEntry{
				ID: 9, ClientID: 4, Action: "Revisión manual",
				OccurredAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
			}, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auditoria/", map[string]any{
			"cliente_id": 4,
			"accion":     "Revisión manual",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal("Revisión manual", (*resp)["accion"])
	})

	s.Run("global trail forwards pagination", func() {
		s.svc.EXPECT().
			ListAudit(gomock.Any(), 0, 5).
			Return([]records.AuditEntry{{ID: 1, ClientID: 4, Action: records.ActionClientCreated}}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/auditoria/?limit=5"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("per-client trail yields 200", func() {
		s.svc.EXPECT().
			ListAuditByClient(gomock.Any(), int64(4)).
			Return([]records.AuditEntry{}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clientes/4/auditoria"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.JSONEq("[]", string(testutil.ReadBody(s.T(), rr)))
	})
}

// TestHealthz covers the liveness endpoint.
func (s *HandlerSuite) TestHealthz() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}
