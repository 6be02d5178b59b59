package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// CRMClient talks to a running CRM API. It implements port.InvoicePoster.
type CRMClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewCRMClient creates a new CRMClient.
func NewCRMClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *CRMClient {
	return &CRMClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

// PostInvoice creates an invoice with retry, circuit breaker, and tracing.
func (c *CRMClient) PostInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	ctx, span := tracer.Start(ctx, "CRMClient.PostInvoice")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", inv.ClientID))

	payload, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("encode invoice: %w", err)
	}

	var created domain.Invoice
	err = resilience.Execute(ctx, c.cb, c.cfg, "crm-api", func() error {
		endpoint := fmt.Sprintf("%s/v1/clients/%s/invoices", c.baseURL, url.PathEscape(inv.ClientID))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return responseError(resp, inv.ClientID)
		}
		return json.NewDecoder(resp.Body).Decode(&created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetClientAnalytics fetches the analytics snapshot computed by the API.
func (c *CRMClient) GetClientAnalytics(ctx context.Context, clientID, period string) (*domain.ClientAnalytics, error) {
	ctx, span := tracer.Start(ctx, "CRMClient.GetClientAnalytics")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	var result domain.ClientAnalytics
	err := resilience.Execute(ctx, c.cb, c.cfg, "crm-api", func() error {
		endpoint := fmt.Sprintf("%s/v1/clients/%s/analytics", c.baseURL, url.PathEscape(clientID))
		if period != "" {
			endpoint += "?period=" + url.QueryEscape(period)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return resilience.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return responseError(resp, clientID)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// responseError turns an API error answer into a domain error. Client-side
// failures are permanent; 429 and 5xx are retried.
func responseError(resp *http.Response, clientID string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &domain.ErrNotFound{Resource: "client", ID: clientID}
	case resp.StatusCode == http.StatusConflict:
		return &domain.ErrConflict{Message: msg}
	case resp.StatusCode == http.StatusBadRequest:
		return &domain.ErrValidation{Field: "request", Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("crm api rate limited: %s", msg)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return resilience.Permanent(fmt.Errorf("crm api returned status %d: %s", resp.StatusCode, msg))
	}
	return fmt.Errorf("crm api returned status %d: %s", resp.StatusCode, msg)
}
