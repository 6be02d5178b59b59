package service_test

import (
	"context"
	"errors"
	"sync"

	"github.com/boddenberg/pharma-crm/internal/domain"
)

// --- Mocks ---

type mockClientStore struct {
	mu      sync.Mutex
	clients map[string]*domain.Client
	err     error
	created []*domain.Client
	gets    int
}

func newMockClientStore(ids ...string) *mockClientStore {
	m := &mockClientStore{clients: map[string]*domain.Client{}}
	for _, id := range ids {
		m.clients[id] = &domain.Client{ID: id, Name: "Farmacia " + id}
	}
	return m
}

func (m *mockClientStore) ListClients(_ context.Context) ([]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []domain.Client{}
	for _, c := range m.clients {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockClientStore) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.clients[clientID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "client", ID: clientID}
	}
	return c, nil
}

func (m *mockClientStore) CreateClient(_ context.Context, client *domain.Client) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, client)
	m.clients[client.ID] = client
	return client, nil
}

type mockInvoiceStore struct {
	mu        sync.Mutex
	invoices  []domain.Invoice
	listErr   error
	createErr func(inv *domain.Invoice) error
	deleteErr error
	created   []domain.Invoice
	deleted   []string
	lists     int
	onList    func()
}

func (m *mockInvoiceStore) ListInvoices(_ context.Context, clientID string) ([]domain.Invoice, error) {
	if m.onList != nil {
		m.onList()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []domain.Invoice{}
	for _, inv := range m.invoices {
		if inv.ClientID == clientID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *mockInvoiceStore) CreateInvoice(_ context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	if m.createErr != nil {
		if err := m.createErr(inv); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *inv)
	m.invoices = append(m.invoices, *inv)
	return inv, nil
}

func (m *mockInvoiceStore) DeleteInvoice(_ context.Context, clientID, invoiceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, inv := range m.invoices {
		if inv.ID == invoiceID && inv.ClientID == clientID {
			m.invoices = append(m.invoices[:i], m.invoices[i+1:]...)
			m.deleted = append(m.deleted, invoiceID)
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "invoice", ID: invoiceID}
}

var errStoreDown = errors.New("connection refused")
