package service

import (
	"context"
	"strings"

	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientService manages the pharmacies a representative visits.
type ClientService struct {
	store  port.ClientStore
	logger *zap.Logger
}

func NewClientService(store port.ClientStore, logger *zap.Logger) *ClientService {
	return &ClientService{store: store, logger: logger}
}

func (s *ClientService) ListClients(ctx context.Context) ([]domain.Client, error) {
	ctx, span := tracer.Start(ctx, "ClientService.ListClients")
	defer span.End()

	return s.store.ListClients(ctx)
}

func (s *ClientService) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	ctx, span := tracer.Start(ctx, "ClientService.GetClient")
	defer span.End()

	return s.store.GetClient(ctx, clientID)
}

// CreateClient validates and stores a new client under a fresh id.
func (s *ClientService) CreateClient(ctx context.Context, client *domain.Client) (*domain.Client, error) {
	ctx, span := tracer.Start(ctx, "ClientService.CreateClient")
	defer span.End()

	client.Name = strings.TrimSpace(client.Name)
	if client.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	}
	if client.ID == "" {
		client.ID = uuid.New().String()
	}

	created, err := s.store.CreateClient(ctx, client)
	if err != nil {
		return nil, err
	}
	s.logger.Info("client created", zap.String("client_id", created.ID), zap.String("name", created.Name))
	return created, nil
}
