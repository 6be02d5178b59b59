// Package supabase provides the record store backed by Supabase PostgREST:
// clients, invoices and their product lines.
package supabase

import (
	"context"
	"net/http"

	"github.com/boddenberg/pharma-crm/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

const (
	tableClients         = "clients"
	tableInvoices        = "invoices"
	tableInvoiceProducts = "invoice_products"
)

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// Ping checks that PostgREST answers with a cheap read. It bypasses retries
// so /readyz reflects the current state.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	_, err := c.doRequest(ctx, http.MethodGet, tableClients+"?select=id&limit=1")
	return resilience.ToDomainError("supabase", err)
}

// execute runs fn through the circuit breaker with retries.
func (c *Client) execute(ctx context.Context, service string, fn func() error) error {
	return resilience.Execute(ctx, c.cb, c.cfg, "supabase/"+service, fn)
}
