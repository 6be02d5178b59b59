package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/pharma-crm/internal/analytics"
	"github.com/boddenberg/pharma-crm/internal/domain"
	"github.com/boddenberg/pharma-crm/internal/infra/observability"
	"github.com/boddenberg/pharma-crm/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/analytics")

func invoicesCacheKey(clientID string) string {
	return "invoices:" + clientID
}

// AnalyticsService fetches a client's history and runs the analytics engine over it.
type AnalyticsService struct {
	clients       port.ClientStore
	invoices      port.InvoiceStore
	cache         port.Cache[[]domain.Invoice]
	engine        *analytics.Engine
	defaultPeriod analytics.Period
	clock         port.Clock
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewAnalyticsService creates the analytics service with all dependencies injected.
// A nil clock falls back to time.Now.
func NewAnalyticsService(
	clients port.ClientStore,
	invoices port.InvoiceStore,
	cache port.Cache[[]domain.Invoice],
	engine *analytics.Engine,
	defaultPeriod analytics.Period,
	clock port.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AnalyticsService {
	if clock == nil {
		clock = time.Now
	}
	if defaultPeriod == "" {
		defaultPeriod = analytics.PeriodThreeMonths
	}
	return &AnalyticsService{
		clients:       clients,
		invoices:      invoices,
		cache:         cache,
		engine:        engine,
		defaultPeriod: defaultPeriod,
		clock:         clock,
		metrics:       metrics,
		logger:        logger,
	}
}

// GetClientAnalytics computes the analytics snapshot of a client for the given
// period token. asOf overrides the reference time when non-nil.
func (s *AnalyticsService) GetClientAnalytics(ctx context.Context, clientID, periodToken string, asOf *time.Time) (*domain.ClientAnalytics, error) {
	period := s.defaultPeriod
	if periodToken != "" {
		p, err := analytics.ParsePeriod(periodToken)
		if err != nil {
			return nil, err
		}
		period = p
	}

	_, result, err := s.analyze(ctx, clientID, period, asOf)
	return result, err
}

// GetVisitBrief projects the three-month analytics of a client into what a
// representative needs before a visit.
func (s *AnalyticsService) GetVisitBrief(ctx context.Context, clientID string, asOf *time.Time) (*domain.VisitBrief, error) {
	ctx, span := tracer.Start(ctx, "AnalyticsService.GetVisitBrief")
	defer span.End()

	client, a, err := s.analyze(ctx, clientID, analytics.PeriodThreeMonths, asOf)
	if err != nil {
		return nil, err
	}

	return &domain.VisitBrief{
		ClientID:              a.ClientID,
		ClientName:            client.Name,
		Status:                a.Status,
		StatusMessage:         a.StatusMessage,
		DaysSinceLastPurchase: a.DaysSinceLastPurchase,
		LastPurchase:          a.LastPurchase,
		MonthlyGrowthPct:      a.MonthlyGrowth.GrowthPct,
		RecommendedActions:    a.RecommendedActions,
		Alerts:                a.Alerts,
		TopProducts:           productNames(a.TopProducts),
		StoppedProducts:       productNames(a.StoppedProducts),
		DecliningProducts:     productNames(a.DecliningProducts),
		TalkingPoints:         talkingPoints(a),
	}, nil
}

// InvalidateClient drops the cached history of a client.
func (s *AnalyticsService) InvalidateClient(clientID string) {
	s.cache.Delete(invoicesCacheKey(clientID))
}

func (s *AnalyticsService) analyze(ctx context.Context, clientID string, period analytics.Period, asOf *time.Time) (*domain.Client, *domain.ClientAnalytics, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if clientID == "" {
		return nil, nil, &domain.ErrValidation{Field: "clientId", Message: "required"}
	}

	ctx, span := tracer.Start(ctx, "AnalyticsService.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("client.id", clientID),
		attribute.String("analytics.period", string(period)),
	)

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("analytics", time.Since(start))
	}()

	var (
		client   *domain.Client
		invoices []domain.Invoice
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := s.clients.GetClient(gCtx, clientID)
		if err != nil {
			s.logger.Error("failed to fetch client",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			s.metrics.IncrStoreError("clients")
			return fmt.Errorf("client fetch: %w", err)
		}
		client = c
		return nil
	})

	g.Go(func() error {
		inv, err := s.loadInvoices(gCtx, clientID)
		if err != nil {
			s.logger.Error("failed to fetch invoices",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			s.metrics.IncrStoreError("invoices")
			return fmt.Errorf("invoices fetch: %w", err)
		}
		invoices = inv
		return nil
	})

	if err := g.Wait(); err != nil {
		s.metrics.IncrComputation("error")
		return nil, nil, err
	}

	now := s.clock()
	if asOf != nil {
		now = *asOf
	}

	result := s.engine.Analyze(clientID, invoices, period, now)

	s.metrics.IncrComputation("success")
	s.metrics.IncrClientStatus(result.Status)
	if n := len(result.Skipped); n > 0 {
		s.metrics.AddSkippedInvoices(n)
		s.logger.Warn("invoices skipped during analytics",
			zap.String("client_id", clientID),
			zap.Int("skipped", n),
		)
	}
	span.SetAttributes(
		attribute.String("analytics.status", string(result.Status)),
		attribute.Int("invoice.count", result.InvoiceCount),
	)

	s.logger.Debug("analytics computed",
		zap.String("client_id", clientID),
		zap.String("period", string(period)),
		zap.String("status", string(result.Status)),
	)
	return client, result, nil
}

func (s *AnalyticsService) loadInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error) {
	key := invoicesCacheKey(clientID)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("invoices")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("invoices")

	gen := s.cache.Generation(key)
	invoices, err := s.invoices.ListInvoices(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !s.cache.SetIfGeneration(key, invoices, gen) {
		s.logger.Debug("invoice history changed during load, not caching",
			zap.String("client_id", clientID),
		)
	}
	return invoices, nil
}

func productNames(products []domain.ProductAnalysis) []string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	return names
}

func talkingPoints(a *domain.ClientAnalytics) []string {
	points := []string{}
	if len(a.TopProducts) > 0 {
		top := a.TopProducts[0]
		points = append(points, fmt.Sprintf("Producto principal: %s (%.1f%% de las ventas)", top.Name, top.SharePct))
	}
	for _, p := range a.GrowingProducts {
		points = append(points, fmt.Sprintf("Felicitar por %s: crece %.1f%% frente al mes anterior", p.Name, p.GrowthPct))
	}
	for _, p := range a.DecliningProducts {
		points = append(points, fmt.Sprintf("Indagar la caída de %s (%.1f%%)", p.Name, p.GrowthPct))
	}
	for _, p := range a.StoppedProducts {
		points = append(points, fmt.Sprintf("Recuperar %s: sin compras desde %s", p.Name, p.LastPurchase))
	}
	if a.InvoiceCount > 0 && a.DaysSinceLastPurchase > 30 {
		points = append(points, fmt.Sprintf("Última compra hace %d días", a.DaysSinceLastPurchase))
	}
	return points
}
