package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/boddenberg/pharma-crm/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunAnalyze_JSONFile(t *testing.T) {
	path := writeFile(t, "invoices.json", `[
		{"id":"inv-1","client_id":"cli-1","invoice_date":"2024-05-10","products":[{"product_name":"A","amount":"80","commission":"8"},{"product_name":"B","amount":"80","commission":"8"}]},
		{"id":"inv-2","client_id":"cli-1","invoice_date":"2024-06-05","products":[{"product_name":"A","amount":"100","commission":"10"}]},
		{"id":"inv-3","client_id":"cli-1","invoice_date":"2024-06-15","products":[{"product_name":"B","amount":"50","commission":"5"}]},
		{"id":"inv-9","client_id":"cli-2","invoice_date":"2024-06-15","products":[{"product_name":"C","amount":"999","commission":"1"}]}
	]`)

	var out bytes.Buffer
	err := runAnalyze(context.Background(), analyzeOptions{file: path, clientID: "cli-1", period: "3 months", now: "2024-06-20"}, &out)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var result domain.ClientAnalytics
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("invalid output: %v", err)
	}
	if result.InvoiceCount != 3 {
		t.Errorf("expected 3 invoices of cli-1, got %d", result.InvoiceCount)
	}
	if result.Status != domain.StatusDeclining {
		t.Errorf("expected declining, got %s", result.Status)
	}
	if len(result.Skipped) != 0 {
		t.Errorf("expected other clients to be filtered out, got %v", result.Skipped)
	}
}

func TestRunAnalyze_CSVFile(t *testing.T) {
	path := writeFile(t, "sales.csv", "client_id,date,product,amount\ncli-1,2024-06-01,A,10\ncli-1,2024-06-10,A,20\n")

	var out bytes.Buffer
	if err := runAnalyze(context.Background(), analyzeOptions{file: path, clientID: "cli-1", period: "1m", now: "2024-06-20"}, &out); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	var result domain.ClientAnalytics
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.InvoiceCount != 2 {
		t.Errorf("expected 2 invoices, got %d", result.InvoiceCount)
	}
}

func TestRunAnalyze_InvalidPeriod(t *testing.T) {
	path := writeFile(t, "invoices.json", `[]`)

	err := runAnalyze(context.Background(), analyzeOptions{file: path, clientID: "cli-1", period: "fortnight"}, io.Discard)

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Errorf("expected period validation error, got %v", err)
	}
}

func TestRunAnalyze_NeedsSource(t *testing.T) {
	if err := runAnalyze(context.Background(), analyzeOptions{clientID: "cli-1"}, io.Discard); err == nil {
		t.Error("expected an error without --file or --api")
	}
}

type fakePoster struct {
	mu     sync.Mutex
	posted []domain.Invoice
	fail   map[string]bool
}

func (f *fakePoster) PostInvoice(_ context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[inv.ClientID] {
		return nil, &domain.ErrNotFound{Resource: "client", ID: inv.ClientID}
	}
	f.posted = append(f.posted, *inv)
	return inv, nil
}

func TestRunImport(t *testing.T) {
	path := writeFile(t, "sales.csv", `invoice,client_id,date,product,amount
F-1,cli-1,2024-06-01,A,10
F-1,cli-1,2024-06-01,B,5
F-2,cli-2,2024-06-02,A,7
F-3,cli-1,oops,A,1
`)
	poster := &fakePoster{fail: map[string]bool{"cli-2": true}}

	var out bytes.Buffer
	if err := runImport(context.Background(), importOptions{file: path, concurrency: 2}, poster, &out, io.Discard); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	var report domain.ImportReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("invalid output: %v", err)
	}
	if report.Rows != 4 || report.Imported != 1 || report.Failed != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if len(report.RowErrors) != 2 || report.RowErrors[0].Line != 4 || report.RowErrors[1].Line != 5 {
		t.Errorf("unexpected row errors %+v", report.RowErrors)
	}
	if len(poster.posted) != 1 || len(poster.posted[0].Products) != 2 {
		t.Errorf("expected F-1 with two lines to be posted, got %+v", poster.posted)
	}
}
