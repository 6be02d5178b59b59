package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/pharma-crm/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Invoices (implements port.InvoiceStore)
// ============================================================

// supabaseInvoice maps the invoices table with its embedded product lines.
type supabaseInvoice struct {
	ID              string          `json:"id"`
	ClientID        string          `json:"client_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	InvoiceDate     domain.Date     `json:"invoice_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	RestAmount      decimal.Decimal `json:"rest_amount"`
	RestCommission  decimal.Decimal `json:"rest_commission"`
	Products        []supabaseLine  `json:"invoice_products"`
}

// supabaseLine maps the invoice_products table.
type supabaseLine struct {
	ID          string          `json:"id,omitempty"`
	InvoiceID   string          `json:"invoice_id"`
	ProductID   *string         `json:"product_id"`
	ProductName string          `json:"product_name"`
	Amount      decimal.Decimal `json:"amount"`
	Commission  decimal.Decimal `json:"commission"`
}

func (r *supabaseInvoice) toDomain() domain.Invoice {
	inv := domain.Invoice{
		ID:              r.ID,
		ClientID:        r.ClientID,
		InvoiceNumber:   r.InvoiceNumber,
		InvoiceDate:     r.InvoiceDate,
		TotalAmount:     r.TotalAmount,
		TotalCommission: r.TotalCommission,
		RestAmount:      r.RestAmount,
		RestCommission:  r.RestCommission,
		Products:        make([]domain.LineItem, 0, len(r.Products)),
	}
	for _, l := range r.Products {
		item := domain.LineItem{ProductName: l.ProductName, Amount: l.Amount, Commission: l.Commission}
		if l.ProductID != nil {
			item.ProductID = *l.ProductID
		}
		inv.Products = append(inv.Products, item)
	}
	return inv
}

// ListInvoices returns the whole history of a client, oldest first, with
// product lines embedded through the invoice_products foreign key.
func (c *Client) ListInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListInvoices")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	var invoices []domain.Invoice
	err := c.execute(ctx, "invoices", func() error {
		path := fmt.Sprintf("%s?client_id=eq.%s&select=*,%s(*)&order=invoice_date.asc,id.asc",
			tableInvoices, url.QueryEscape(clientID), tableInvoiceProducts)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}

		invoices = []domain.Invoice{}
		if isEmpty(body) {
			return nil
		}

		var rows []supabaseInvoice
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode invoices: %w", err)
		}
		invoices = make([]domain.Invoice, 0, len(rows))
		for i := range rows {
			invoices = append(invoices, rows[i].toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("invoice.count", len(invoices)))
	return invoices, nil
}

// CreateInvoice inserts the invoice row, then its product lines. If the
// lines cannot be stored the invoice row is removed again.
func (c *Client) CreateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateInvoice")
	defer span.End()
	span.SetAttributes(
		attribute.String("client.id", inv.ClientID),
		attribute.String("invoice.id", inv.ID),
	)

	row := map[string]any{
		"id":               inv.ID,
		"client_id":        inv.ClientID,
		"invoice_number":   inv.InvoiceNumber,
		"invoice_date":     inv.InvoiceDate.String(),
		"total_amount":     inv.TotalAmount,
		"total_commission": inv.TotalCommission,
		"rest_amount":      inv.RestAmount,
		"rest_commission":  inv.RestCommission,
	}
	if err := c.execute(ctx, "invoices", func() error {
		_, err := c.doPost(ctx, tableInvoices, row)
		return err
	}); err != nil {
		return nil, err
	}

	if len(inv.Products) > 0 {
		lines := make([]supabaseLine, 0, len(inv.Products))
		for _, p := range inv.Products {
			l := supabaseLine{
				ID:          uuid.New().String(),
				InvoiceID:   inv.ID,
				ProductName: p.ProductName,
				Amount:      p.Amount,
				Commission:  p.Commission,
			}
			if p.ProductID != "" {
				id := p.ProductID
				l.ProductID = &id
			}
			lines = append(lines, l)
		}

		if err := c.execute(ctx, "invoice_products", func() error {
			_, err := c.doPost(ctx, tableInvoiceProducts, lines)
			return err
		}); err != nil {
			c.logger.Warn("supabase: rolling back invoice without lines",
				zap.String("invoice_id", inv.ID),
				zap.Error(err),
			)
			if _, delErr := c.doDelete(ctx, fmt.Sprintf("%s?id=eq.%s", tableInvoices, url.QueryEscape(inv.ID))); delErr != nil {
				c.logger.Error("supabase: rollback failed", zap.String("invoice_id", inv.ID), zap.Error(delErr))
			}
			return nil, err
		}
	}

	return inv, nil
}

// DeleteInvoice removes an invoice of a client together with its lines.
func (c *Client) DeleteInvoice(ctx context.Context, clientID, invoiceID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteInvoice")
	defer span.End()
	span.SetAttributes(
		attribute.String("client.id", clientID),
		attribute.String("invoice.id", invoiceID),
	)

	return c.execute(ctx, "invoices", func() error {
		path := fmt.Sprintf("%s?id=eq.%s&client_id=eq.%s&select=id",
			tableInvoices, url.QueryEscape(invoiceID), url.QueryEscape(clientID))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		if isEmpty(body) {
			return &domain.ErrNotFound{Resource: "invoice", ID: invoiceID}
		}

		if _, err := c.doDelete(ctx, fmt.Sprintf("%s?invoice_id=eq.%s", tableInvoiceProducts, url.QueryEscape(invoiceID))); err != nil {
			return err
		}
		_, err = c.doDelete(ctx, fmt.Sprintf("%s?id=eq.%s&client_id=eq.%s",
			tableInvoices, url.QueryEscape(invoiceID), url.QueryEscape(clientID)))
		return err
	})
}
