package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boddenberg/pharma-crm/internal/analytics"
	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/importer"
	"github.com/boddenberg/pharma-crm/internal/infra/client"
	"github.com/boddenberg/pharma-crm/internal/infra/observability"
	"github.com/boddenberg/pharma-crm/internal/infra/resilience"

	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	file     string
	clientID string
	period   string
	now      string
	api      string
	byID     bool
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute the analytics snapshot of one client",
		Long: "Reads invoices from a JSON, CSV or XLSX file and prints the analytics JSON.\n" +
			"With --api the snapshot is fetched from a running CRM API instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "invoice file (.json, .csv or .xlsx)")
	cmd.Flags().StringVar(&opts.clientID, "client", "", "client id")
	cmd.Flags().StringVar(&opts.period, "period", string(analytics.PeriodThreeMonths), "1 month, 3 months, 6 months, 1 year or all time")
	cmd.Flags().StringVar(&opts.now, "now", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.api, "api", "", "CRM API base URL")
	cmd.Flags().BoolVar(&opts.byID, "by-product-id", false, "group products by product id when present")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func runAnalyze(ctx context.Context, opts analyzeOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var result *domain.ClientAnalytics
	switch {
	case opts.api != "":
		logger := observability.NewLogger("warn")
		cfg := resilience.Config{MaxRetries: 2, InitialBackoff: 200 * time.Millisecond}
		api := client.NewCRMClient(&http.Client{Timeout: 30 * time.Second}, opts.api, resilience.NewCircuitBreaker("crm-api", logger), cfg)
		r, err := api.GetClientAnalytics(ctx, opts.clientID, opts.period)
		if err != nil {
			return err
		}
		result = r

	case opts.file != "":
		period, err := analytics.ParsePeriod(opts.period)
		if err != nil {
			return err
		}
		now := time.Now()
		if opts.now != "" {
			d, err := domain.ParseDate(opts.now)
			if err != nil {
				return fmt.Errorf("--now: %w", err)
			}
			now = d.Time
		}

		loaded, err := loadInvoices(opts.file)
		if err != nil {
			return err
		}
		for _, re := range loaded.RowErrors {
			fmt.Fprintf(os.Stderr, "line %d: %s\n", re.Line, re.Message)
		}

		engineOpts := []analytics.Option{}
		if opts.byID {
			engineOpts = append(engineOpts, analytics.WithProductKey(analytics.KeyByProductID))
		}
		result = analytics.NewEngine(engineOpts...).Analyze(opts.clientID, forClient(loaded.Invoices, opts.clientID), period, now)

	default:
		return fmt.Errorf("either --file or --api is required")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// loadInvoices reads a JSON array of invoices or a CSV/XLSX sales export.
func loadInvoices(path string) (*importer.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var invoices []domain.Invoice
		if err := json.NewDecoder(f).Decode(&invoices); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return &importer.Result{Invoices: invoices, Rows: len(invoices), RowErrors: []domain.ImportRowError{}}, nil
	case ".xlsx":
		return importer.ParseXLSX(f, importer.Options{})
	default:
		return importer.ParseCSV(f, importer.Options{})
	}
}

// forClient keeps the invoices of clientID. Invoices without a client id
// stay so the engine reports them as skipped.
func forClient(invoices []domain.Invoice, clientID string) []domain.Invoice {
	out := make([]domain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.ClientID == clientID || inv.ClientID == "" {
			out = append(out, inv)
		}
	}
	return out
}
