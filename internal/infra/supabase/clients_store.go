package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/pharma-crm/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Clients (implements port.ClientStore)
// ============================================================

// ListClients returns every client ordered by name.
func (c *Client) ListClients(ctx context.Context) ([]domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListClients")
	defer span.End()

	var clients []domain.Client
	err := c.execute(ctx, "clients", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, tableClients+"?select=*&order=name.asc")
		if err != nil {
			return err
		}
		clients = []domain.Client{}
		if isEmpty(body) {
			return nil
		}
		if err := json.Unmarshal(body, &clients); err != nil {
			return fmt.Errorf("decode clients: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clients, nil
}

// GetClient fetches a single client.
func (c *Client) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetClient")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	var client *domain.Client
	err := c.execute(ctx, "clients", func() error {
		path := fmt.Sprintf("%s?id=eq.%s&limit=1", tableClients, url.QueryEscape(clientID))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		if isEmpty(body) {
			return &domain.ErrNotFound{Resource: "client", ID: clientID}
		}

		var rows []domain.Client
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode client: %w", err)
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "client", ID: clientID}
		}
		client = &rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// CreateClient inserts a client. The id must already be assigned.
func (c *Client) CreateClient(ctx context.Context, client *domain.Client) (*domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateClient")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", client.ID))

	row := map[string]any{
		"id":             client.ID,
		"name":           client.Name,
		"code":           client.Code,
		"city":           client.City,
		"representative": client.Representative,
	}

	var created *domain.Client
	err := c.execute(ctx, "clients", func() error {
		body, err := c.doPost(ctx, tableClients, row)
		if err != nil {
			return err
		}
		var rows []domain.Client
		if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
			created = client
			return nil
		}
		created = &rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
