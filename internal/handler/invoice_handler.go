package handler

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Invoices
// ============================================================

const (
	maxInvoiceBody = 1 << 20
	maxImportBody  = 32 << 20
	xlsxMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func listInvoicesHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients/{clientId}/invoices")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		span.SetAttributes(attribute.String("client.id", clientID))

		invoices, err := svc.ListInvoices(ctx, clientID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Invoice]{Data: invoices, Total: len(invoices)})
	}
}

func createInvoiceHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/clients/{clientId}/invoices")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		span.SetAttributes(attribute.String("client.id", clientID))

		var inv domain.Invoice
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInvoiceBody)).Decode(&inv); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if inv.ClientID != "" && inv.ClientID != clientID {
			writeError(w, http.StatusBadRequest, "client_id does not match the URL")
			return
		}
		inv.ClientID = clientID

		created, err := svc.CreateInvoice(ctx, &inv)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func deleteInvoiceHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/clients/{clientId}/invoices/{invoiceId}")
		defer span.End()

		clientID := chi.URLParam(r, "clientId")
		invoiceID := chi.URLParam(r, "invoiceId")
		span.SetAttributes(
			attribute.String("client.id", clientID),
			attribute.String("invoice.id", invoiceID),
		)

		if err := svc.DeleteInvoice(ctx, clientID, invoiceID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "invoice deleted", ID: invoiceID})
	}
}

// importInvoicesHandler takes the raw file as the request body. The format
// comes from ?format= or else the Content-Type.
func importInvoicesHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/invoices/import")
		defer span.End()

		format := importFormat(r)
		span.SetAttributes(attribute.String("import.format", format))

		report, err := svc.ImportInvoices(ctx, http.MaxBytesReader(w, r.Body, maxImportBody), format)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		status := http.StatusOK
		if report.Imported == 0 && len(report.RowErrors) > 0 {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, report)
	}
}

func importFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.ToLower(f)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == xlsxMediaType {
		return service.FormatXLSX
	}
	return service.FormatCSV
}
