package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/infra/client"
	"github.com/boddenberg/pharma-crm/internal/infra/observability"
	"github.com/boddenberg/pharma-crm/internal/infra/resilience"
	"github.com/boddenberg/pharma-crm/internal/port"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type importOptions struct {
	file        string
	api         string
	concurrency int
	retries     int
}

func newImportCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Post the invoices of a sales export to a CRM API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.NewLogger("warn")
			defer logger.Sync()

			cfg := resilience.Config{MaxRetries: opts.retries, InitialBackoff: 200 * time.Millisecond}
			api := client.NewCRMClient(&http.Client{Timeout: 30 * time.Second}, opts.api, resilience.NewCircuitBreaker("crm-api", logger), cfg)
			return runImport(cmd.Context(), opts, api, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "sales export (.csv, .xlsx or .json)")
	cmd.Flags().StringVar(&opts.api, "api", "http://localhost:8080", "CRM API base URL")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "parallel uploads")
	cmd.Flags().IntVar(&opts.retries, "retries", 3, "retries per invoice on transient failures")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runImport(ctx context.Context, opts importOptions, poster port.InvoicePoster, out, progress io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.concurrency < 1 {
		opts.concurrency = 1
	}

	loaded, err := loadInvoices(opts.file)
	if err != nil {
		return err
	}
	invoices := loaded.Invoices
	report := &domain.ImportReport{Rows: loaded.Rows, RowErrors: loaded.RowErrors}

	bar := progressbar.NewOptions(len(invoices),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("importing invoices"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	for i := range invoices {
		i := i
		inv := &invoices[i]
		g.Go(func() error {
			_, err := poster.PostInvoice(gCtx, inv)
			mu.Lock()
			if err != nil {
				report.Failed++
				line := 0
				if i < len(loaded.Lines) {
					line = loaded.Lines[i]
				}
				report.RowErrors = append(report.RowErrors, domain.ImportRowError{
					Line:    line,
					Message: fmt.Sprintf("invoice %s of client %s (%s): %v", inv.InvoiceNumber, inv.ClientID, inv.InvoiceDate, err),
				})
			} else {
				report.Imported++
			}
			mu.Unlock()
			_ = bar.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	_ = bar.Finish()

	sort.SliceStable(report.RowErrors, func(i, j int) bool {
		return report.RowErrors[i].Line < report.RowErrors[j].Line
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Failed > 0 {
		fmt.Fprintf(progress, "%d of %d invoices failed\n", report.Failed, len(invoices))
	}
	return nil
}
