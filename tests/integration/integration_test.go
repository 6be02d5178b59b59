package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/pharma-crm/internal/analytics"
	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/handler"
	"github.com/boddenberg/pharma-crm/internal/importer"
	"github.com/boddenberg/pharma-crm/internal/infra/cache"
	"github.com/boddenberg/pharma-crm/internal/infra/client"
	"github.com/boddenberg/pharma-crm/internal/infra/observability"
	"github.com/boddenberg/pharma-crm/internal/infra/resilience"
	"github.com/boddenberg/pharma-crm/internal/infra/supabase"
	"github.com/boddenberg/pharma-crm/internal/service"

	"go.uber.org/zap"
)

// postgrest is an in-memory stand-in for the PostgREST endpoints the
// record store uses: eq filters, embedded invoice_products and inserts.
type postgrest struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
}

func newPostgrest() *postgrest {
	return &postgrest{tables: map[string][]map[string]any{
		"clients":          {{"id": "cli-1", "name": "Farmacia Central", "city": "Rosario"}},
		"invoices":         {},
		"invoice_products": {},
	}}
}

func (p *postgrest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if _, ok := p.tables[table]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	filters := map[string]string{}
	for key, values := range r.URL.Query() {
		if strings.HasPrefix(values[0], "eq.") {
			filters[key] = strings.TrimPrefix(values[0], "eq.")
		}
	}
	matches := func(row map[string]any) bool {
		for k, v := range filters {
			if row[k] != v {
				return false
			}
		}
		return true
	}

	switch r.Method {
	case http.MethodGet:
		out := []map[string]any{}
		for _, row := range p.tables[table] {
			if !matches(row) {
				continue
			}
			copied := map[string]any{}
			for k, v := range row {
				copied[k] = v
			}
			if table == "invoices" && strings.Contains(r.URL.Query().Get("select"), "invoice_products") {
				lines := []map[string]any{}
				for _, l := range p.tables["invoice_products"] {
					if l["invoice_id"] == row["id"] {
						lines = append(lines, l)
					}
				}
				copied["invoice_products"] = lines
			}
			out = append(out, copied)
		}
		if table == "invoices" {
			sort.SliceStable(out, func(i, j int) bool {
				return out[i]["invoice_date"].(string) < out[j]["invoice_date"].(string)
			})
		}
		json.NewEncoder(w).Encode(out)

	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var rows []map[string]any
		if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
			json.Unmarshal(body, &rows)
		} else {
			var row map[string]any
			json.Unmarshal(body, &row)
			rows = append(rows, row)
		}
		for _, row := range rows {
			for _, existing := range p.tables[table] {
				if existing["id"] == row["id"] {
					w.WriteHeader(http.StatusConflict)
					return
				}
			}
		}
		p.tables[table] = append(p.tables[table], rows...)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rows)

	case http.MethodDelete:
		kept := p.tables[table][:0]
		removed := []map[string]any{}
		for _, row := range p.tables[table] {
			if matches(row) {
				removed = append(removed, row)
				continue
			}
			kept = append(kept, row)
		}
		p.tables[table] = kept
		json.NewEncoder(w).Encode(removed)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newStack(t *testing.T) (*httptest.Server, *postgrest) {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	backend := newPostgrest()
	pgSrv := httptest.NewServer(backend)
	t.Cleanup(pgSrv.Close)

	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	store := supabase.NewClient(pgSrv.Client(), pgSrv.URL, "anon", "service",
		resilience.NewCircuitBreaker("record-store", logger), cfg, logger)

	invoiceCache := cache.New[[]domain.Invoice](time.Minute)
	t.Cleanup(invoiceCache.Stop)
	clock := func() time.Time { return time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC) }

	router := handler.NewRouter(handler.Services{
		Analytics: service.NewAnalyticsService(store, store, invoiceCache, analytics.NewEngine(), analytics.PeriodThreeMonths, clock, metrics, logger),
		Invoices:  service.NewInvoiceService(store, store, invoiceCache, resilience.NewBulkhead(4), importer.Options{MaxRows: 1000}, metrics, logger),
		Clients:   service.NewClientService(store, logger),
		Store:     store,
	}, metrics, logger)

	apiSrv := httptest.NewServer(router)
	t.Cleanup(apiSrv.Close)
	return apiSrv, backend
}

// TestIntegration_ImportThenAnalyze uploads a sales export through the API,
// stores it in the record store and reads the analytics back with the CLI client.
func TestIntegration_ImportThenAnalyze(t *testing.T) {
	apiSrv, backend := newStack(t)

	csv := `factura;cliente;fecha;producto;monto;comision
F-1;cli-1;10/05/2024;A;80;8
F-1;cli-1;10/05/2024;B;80;8
F-2;cli-1;05/06/2024;A;100;10
F-3;cli-1;15/06/2024;B;50;5
F-4;cli-404;15/06/2024;B;50;5
`
	resp, err := http.Post(apiSrv.URL+"/v1/invoices/import?format=csv", "text/csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("import request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var report domain.ImportReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Imported != 3 || report.Failed != 1 || len(report.RowErrors) != 1 || report.RowErrors[0].Line != 6 {
		t.Errorf("unexpected import report %+v", report)
	}

	backend.mu.Lock()
	storedInvoices, storedLines := len(backend.tables["invoices"]), len(backend.tables["invoice_products"])
	backend.mu.Unlock()
	if storedInvoices != 3 || storedLines != 4 {
		t.Errorf("expected 3 invoices and 4 lines stored, got %d and %d", storedInvoices, storedLines)
	}

	api := client.NewCRMClient(apiSrv.Client(), apiSrv.URL, resilience.NewCircuitBreaker("crm-api", zap.NewNop()),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond})

	result, err := api.GetClientAnalytics(context.Background(), "cli-1", "3 months")
	if err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if result.TotalSales.String() != "310" || result.InvoiceCount != 3 {
		t.Errorf("unexpected totals %s / %d", result.TotalSales, result.InvoiceCount)
	}
	if result.DaysSinceLastPurchase != 5 {
		t.Errorf("expected 5 days since last purchase, got %d", result.DaysSinceLastPurchase)
	}
	if result.Status != domain.StatusDeclining {
		t.Errorf("expected declining, got %s", result.Status)
	}
}

// TestIntegration_PostInvoiceInvalidatesCache checks that a new invoice
// shows up in analytics computed right after an earlier, cached computation.
func TestIntegration_PostInvoiceInvalidatesCache(t *testing.T) {
	apiSrv, _ := newStack(t)
	api := client.NewCRMClient(apiSrv.Client(), apiSrv.URL, resilience.NewCircuitBreaker("crm-api", zap.NewNop()),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond})
	ctx := context.Background()

	before, err := api.GetClientAnalytics(ctx, "cli-1", "1 month")
	if err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if before.InvoiceCount != 0 {
		t.Errorf("expected no invoices yet, got %d", before.InvoiceCount)
	}

	body := `{"client_id":"cli-1","invoice_date":"2024-06-18","products":[{"product_name":"A","amount":"42.50","commission":"4.25"}]}`
	var inv domain.Invoice
	if err := json.Unmarshal([]byte(body), &inv); err != nil {
		t.Fatal(err)
	}
	created, err := api.PostInvoice(ctx, &inv)
	if err != nil {
		t.Fatalf("post invoice failed: %v", err)
	}
	if created.ID == "" || created.TotalAmount.String() != "42.5" {
		t.Errorf("expected id and derived total, got %+v", created)
	}

	after, err := api.GetClientAnalytics(ctx, "cli-1", "1 month")
	if err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if after.InvoiceCount != 1 || after.TotalSales.String() != "42.5" {
		t.Errorf("expected the new invoice in analytics, got %d / %s", after.InvoiceCount, after.TotalSales)
	}
}

func TestIntegration_UnknownClient(t *testing.T) {
	apiSrv, _ := newStack(t)

	resp, err := http.Get(apiSrv.URL + "/v1/clients/ghost/analytics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
