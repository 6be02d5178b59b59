// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/pharma-crm/internal/domain"
)

// ClientStore persists CRM clients (pharmacies, drugstores).
type ClientStore interface {
	ListClients(ctx context.Context) ([]domain.Client, error)
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	CreateClient(ctx context.Context, client *domain.Client) (*domain.Client, error)
}

// InvoiceStore persists invoices together with their product lines.
type InvoiceStore interface {
	// ListInvoices returns the full invoice history of a client, lines included.
	ListInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error)
	CreateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, clientID, invoiceID string) error
}

// Pinger reports whether a backend is reachable. Used by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InvoicePoster sends invoices to a running CRM API (used by the offline CLI).
type InvoicePoster interface {
	PostInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error)
}

// Cache provides generic caching with TTL. Delete bumps a per-key
// generation that SetIfGeneration checks, so a slow load cannot overwrite
// an invalidation that happened while it ran.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Generation(key string) uint64
	SetIfGeneration(key string, value T, gen uint64) bool
}

// Clock returns the reference time for analytics. Tests inject a fixed one.
type Clock func() time.Time
