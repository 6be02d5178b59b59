package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/importer"
	"github.com/boddenberg/pharma-crm/internal/infra/observability"
	"github.com/boddenberg/pharma-crm/internal/infra/resilience"
	"github.com/boddenberg/pharma-crm/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Import formats accepted by ImportInvoices.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// InvoiceService records invoices and keeps the analytics cache coherent.
type InvoiceService struct {
	clients  port.ClientStore
	store    port.InvoiceStore
	cache    port.Cache[[]domain.Invoice]
	bulkhead *resilience.Bulkhead
	opts     importer.Options
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewInvoiceService(
	clients port.ClientStore,
	store port.InvoiceStore,
	cache port.Cache[[]domain.Invoice],
	bulkhead *resilience.Bulkhead,
	opts importer.Options,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		clients:  clients,
		store:    store,
		cache:    cache,
		bulkhead: bulkhead,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *InvoiceService) ListInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.ListInvoices")
	defer span.End()

	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.store.ListInvoices(ctx, clientID)
}

// CreateInvoice validates an invoice of an existing client and stores it.
func (s *InvoiceService) CreateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.CreateInvoice")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", inv.ClientID))

	if err := prepareInvoice(inv); err != nil {
		return nil, err
	}
	if _, err := s.clients.GetClient(ctx, inv.ClientID); err != nil {
		return nil, err
	}
	return s.persist(ctx, inv)
}

func (s *InvoiceService) DeleteInvoice(ctx context.Context, clientID, invoiceID string) error {
	ctx, span := tracer.Start(ctx, "InvoiceService.DeleteInvoice")
	defer span.End()

	if err := s.store.DeleteInvoice(ctx, clientID, invoiceID); err != nil {
		return err
	}
	s.cache.Delete(invoicesCacheKey(clientID))
	s.logger.Info("invoice deleted", zap.String("client_id", clientID), zap.String("invoice_id", invoiceID))
	return nil
}

// ImportInvoices parses a CSV or XLSX export and stores every invoice it
// contains. Unusable rows and invoices that fail to persist end up in the
// report; only an unreadable file or a missing header fails the whole call.
func (s *InvoiceService) ImportInvoices(ctx context.Context, r io.Reader, format string) (*domain.ImportReport, error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.ImportInvoices")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("import", time.Since(start))
	}()

	var (
		parsed *importer.Result
		err    error
	)
	switch strings.ToLower(format) {
	case FormatCSV, "":
		parsed, err = importer.ParseCSV(r, s.opts)
	case FormatXLSX:
		parsed, err = importer.ParseXLSX(r, s.opts)
	default:
		return nil, &domain.ErrValidation{Field: "format", Message: "must be csv or xlsx"}
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("import.rows", parsed.Rows),
		attribute.Int("import.invoices", len(parsed.Invoices)),
	)

	report := &domain.ImportReport{
		Rows:      parsed.Rows,
		RowErrors: parsed.RowErrors,
	}

	known, err := s.existingClients(ctx, parsed.Invoices)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	fail := func(line int, msg string) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed++
		report.RowErrors = append(report.RowErrors, domain.ImportRowError{Line: line, Message: msg})
	}
	touched := make(map[string]bool)

	var g errgroup.Group
	for i := range parsed.Invoices {
		inv := &parsed.Invoices[i]
		line := parsed.Lines[i]
		if !known[inv.ClientID] {
			fail(line, fmt.Sprintf("client %s not found", inv.ClientID))
			continue
		}
		if err := prepareInvoice(inv); err != nil {
			fail(line, err.Error())
			continue
		}

		g.Go(func() error {
			err := s.bulkhead.Run(ctx, func() error {
				_, err := s.store.CreateInvoice(ctx, inv)
				return err
			})
			if err != nil {
				s.logger.Warn("import: invoice not stored",
					zap.String("client_id", inv.ClientID),
					zap.Int("line", line),
					zap.Error(err),
				)
				fail(line, err.Error())
				return nil
			}
			mu.Lock()
			report.Imported++
			touched[inv.ClientID] = true
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for clientID := range touched {
		s.cache.Delete(invoicesCacheKey(clientID))
	}
	sort.SliceStable(report.RowErrors, func(i, j int) bool {
		return report.RowErrors[i].Line < report.RowErrors[j].Line
	})

	s.metrics.AddImport(report.Imported, report.Failed+len(parsed.RowErrors))
	s.logger.Info("import finished",
		zap.Int("rows", report.Rows),
		zap.Int("imported", report.Imported),
		zap.Int("failed", report.Failed),
		zap.Int("row_errors", len(report.RowErrors)),
	)
	return report, nil
}

// existingClients resolves every distinct client of an import once.
func (s *InvoiceService) existingClients(ctx context.Context, invoices []domain.Invoice) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, inv := range invoices {
		if _, seen := known[inv.ClientID]; seen {
			continue
		}
		_, err := s.clients.GetClient(ctx, inv.ClientID)
		switch {
		case err == nil:
			known[inv.ClientID] = true
		case isNotFound(err):
			known[inv.ClientID] = false
		default:
			return nil, err
		}
	}
	return known, nil
}

func (s *InvoiceService) persist(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	created, err := s.store.CreateInvoice(ctx, inv)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(invoicesCacheKey(inv.ClientID))
	s.logger.Info("invoice created",
		zap.String("client_id", inv.ClientID),
		zap.String("invoice_id", inv.ID),
	)
	return created, nil
}

// prepareInvoice validates inv and fills its id and missing totals.
func prepareInvoice(inv *domain.Invoice) error {
	if strings.TrimSpace(inv.ClientID) == "" {
		return &domain.ErrValidation{Field: "client_id", Message: "required"}
	}
	if inv.InvoiceDate.IsZero() {
		return &domain.ErrValidation{Field: "invoice_date", Message: "required"}
	}
	if inv.TotalAmount.IsNegative() || inv.TotalCommission.IsNegative() ||
		inv.RestAmount.IsNegative() || inv.RestCommission.IsNegative() {
		return &domain.ErrValidation{Field: "total_amount", Message: "amounts must not be negative"}
	}
	for i, p := range inv.Products {
		if strings.TrimSpace(p.ProductName) == "" {
			return &domain.ErrValidation{Field: fmt.Sprintf("products[%d].product_name", i), Message: "required"}
		}
		if p.Amount.IsNegative() || p.Commission.IsNegative() {
			return &domain.ErrValidation{Field: fmt.Sprintf("products[%d].amount", i), Message: "must not be negative"}
		}
	}
	if inv.Products == nil {
		inv.Products = []domain.LineItem{}
	}

	amount, commission := inv.LinesTotal()
	if inv.TotalAmount.IsZero() {
		inv.TotalAmount = amount
	}
	if inv.TotalCommission.IsZero() {
		inv.TotalCommission = commission
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}
