package analytics

import (
	"sort"
	"time"

	"github.com/boddenberg/pharma-crm/internal/domain"
)

// Engine runs the period selector, aggregator, classifier and alert
// generator in sequence. It holds only immutable settings and is safe for
// concurrent use.
type Engine struct {
	thresholds Thresholds
	key        KeyFunc
}

// Option customizes an Engine.
type Option func(*Engine)

// WithThresholds replaces DefaultThresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithProductKey replaces the by-name product join.
func WithProductKey(k KeyFunc) Option {
	return func(e *Engine) {
		if k != nil {
			e.key = k
		}
	}
}

// NewEngine creates an engine with the default thresholds and by-name join.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{thresholds: DefaultThresholds(), key: KeyByName}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the engine's thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Analyze computes the analytics of one client over period, relative to now.
// Invoices missing a date or a client id, or belonging to another client,
// are reported in Skipped instead of aggregated.
func (e *Engine) Analyze(clientID string, invoices []domain.Invoice, period Period, now time.Time) *domain.ClientAnalytics {
	t := e.thresholds
	today := domain.DateOf(now)
	window := SelectPeriod(period, now)

	valid, skipped := sanitize(clientID, invoices)
	agg := Aggregate(valid, window, today, e.key)
	products := analyzeProducts(agg, t)

	res := &domain.ClientAnalytics{
		ClientID:                clientID,
		Window:                  window,
		GeneratedAt:             now,
		TotalSales:              agg.Sales,
		TotalCommission:         agg.Commission,
		CommissionRatePct:       percent(agg.Commission, agg.Sales),
		InvoiceCount:            agg.InvoiceCount,
		AvgTicket:               avgTicket(MonthTotals{Sales: agg.Sales, Invoices: agg.InvoiceCount}),
		AvgDaysBetweenPurchases: agg.AvgDaysBetweenPurchases(),
		DaysSinceLastPurchase:   agg.DaysSinceLastPurchase(),
		LastPurchase:            agg.LastPurchase,
		MonthlyGrowth:           spanGrowth(agg, 1),
		QuarterlyGrowth:         spanGrowth(agg, 3),
		SemesterGrowth:          spanGrowth(agg, 6),
		MonthlyTrend:            monthlyTrend(agg, t.TrendMonths),
		Products:                products,
		GrowingProducts:         filterProducts(products, func(p domain.ProductAnalysis) bool { return p.IsGrowing }),
		DecliningProducts:       filterProducts(products, func(p domain.ProductAnalysis) bool { return p.IsDeclining }),
		StoppedProducts:         filterProducts(products, func(p domain.ProductAnalysis) bool { return p.IsStopped }),
		Skipped:                 skipped,
	}

	top := t.TopProducts
	if top > len(products) {
		top = len(products)
	}
	res.TopProducts = append(make([]domain.ProductAnalysis, 0, top), products[:top]...)

	if window.Bounded {
		res.PeriodComparison = &domain.PeriodGrowth{
			Current:   agg.Sales,
			Previous:  agg.PreviousSales,
			GrowthPct: Growth(agg.PreviousSales, agg.Sales),
		}
	}

	res.Status = ClassifyStatus(res.DaysSinceLastPurchase, res.MonthlyGrowth.GrowthPct, len(res.StoppedProducts), t)
	res.StatusMessage, res.RecommendedActions = statusText(res.Status, len(valid) > 0, t)

	act := newMonthActivity(agg)
	res.WhyGrowing = explainGrowth(products, act, t)
	res.WhyDeclining = explainDecline(products, act, t)

	res.Alerts = GenerateAlerts(res, t)
	return res
}

func sanitize(clientID string, invoices []domain.Invoice) ([]domain.Invoice, []domain.SkippedInvoice) {
	valid := make([]domain.Invoice, 0, len(invoices))
	var skipped []domain.SkippedInvoice
	for _, inv := range invoices {
		switch {
		case inv.InvoiceDate.IsZero():
			skipped = append(skipped, domain.SkippedInvoice{InvoiceID: inv.ID, Reason: "missing invoice_date"})
		case inv.ClientID == "":
			skipped = append(skipped, domain.SkippedInvoice{InvoiceID: inv.ID, Reason: "missing client_id"})
		case clientID != "" && inv.ClientID != clientID:
			skipped = append(skipped, domain.SkippedInvoice{InvoiceID: inv.ID, Reason: "belongs to client " + inv.ClientID})
		default:
			valid = append(valid, inv)
		}
	}
	sort.SliceStable(skipped, func(i, j int) bool { return skipped[i].InvoiceID < skipped[j].InvoiceID })
	return valid, skipped
}

// spanGrowth compares the last n calendar months against the n before them.
func spanGrowth(agg *Aggregation, n int) domain.PeriodGrowth {
	cur, prev := agg.Span(0, n), agg.Span(-n, n)
	return domain.PeriodGrowth{
		Current:   cur.Sales,
		Previous:  prev.Sales,
		GrowthPct: Growth(prev.Sales, cur.Sales),
	}
}

// monthlyTrend returns n points, oldest first, ending with the current month.
func monthlyTrend(agg *Aggregation, n int) []domain.MonthlyPoint {
	points := make([]domain.MonthlyPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		m := agg.Month(-i)
		points = append(points, domain.MonthlyPoint{
			Month:      monthKey(monthStart(agg.Today, -i)),
			Sales:      m.Sales,
			Commission: m.Commission,
			Invoices:   m.Invoices,
		})
	}
	return points
}
