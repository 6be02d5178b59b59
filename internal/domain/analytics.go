package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Client Analytics
// ============================================================

// ClientStatus is the client-level classification, recomputed on every call.
type ClientStatus string

const (
	StatusInactive  ClientStatus = "inactive"
	StatusAtRisk    ClientStatus = "at_risk"
	StatusDeclining ClientStatus = "declining"
	StatusGrowing   ClientStatus = "growing"
	StatusStable    ClientStatus = "stable"
)

// ProductTrend labels a product's month-over-month movement.
type ProductTrend string

const (
	TrendGrowing   ProductTrend = "growing"
	TrendDeclining ProductTrend = "declining"
	TrendStopped   ProductTrend = "stopped"
	TrendStable    ProductTrend = "stable"
	TrendDormant   ProductTrend = "dormant"
)

// PeriodWindow is an inclusive date range plus the equally long window
// immediately before it. Unbounded windows (all time) have a zero Start
// and no Previous.
type PeriodWindow struct {
	Period   string        `json:"period"`
	Start    Date          `json:"start"`
	End      Date          `json:"end"`
	Bounded  bool          `json:"bounded"`
	Previous *PeriodWindow `json:"previous,omitempty"`
}

// Contains reports whether d falls inside the window, both ends inclusive.
func (w PeriodWindow) Contains(d Date) bool {
	if d.After(w.End.Time) {
		return false
	}
	return !w.Bounded || !d.Before(w.Start.Time)
}

// ProductAnalysis is the derived per-product view of a client's purchases.
type ProductAnalysis struct {
	Name               string          `json:"name"`
	TotalSales         decimal.Decimal `json:"total_sales"`
	TotalCommission    decimal.Decimal `json:"total_commission"`
	Occurrences        int             `json:"occurrences"`
	AvgSale            decimal.Decimal `json:"avg_sale"`
	CurrentMonthSales  decimal.Decimal `json:"current_month_sales"`
	PreviousMonthSales decimal.Decimal `json:"previous_month_sales"`
	GrowthPct          float64         `json:"growth_pct"`
	// SharePct is TotalSales over the client's invoice totals in the window.
	SharePct           float64         `json:"share_pct"`
	LastPurchase       Date            `json:"last_purchase"`
	IsGrowing          bool            `json:"is_growing"`
	IsDeclining        bool            `json:"is_declining"`
	IsStopped          bool            `json:"is_stopped"`
	Trend              ProductTrend    `json:"trend"`
	Recommendation     string          `json:"recommendation"`
}

// PeriodGrowth compares sales of a sub-period against the one before it.
type PeriodGrowth struct {
	Current   decimal.Decimal `json:"current"`
	Previous  decimal.Decimal `json:"previous"`
	GrowthPct float64         `json:"growth_pct"`
}

// MonthlyPoint is one calendar month of the trend series.
type MonthlyPoint struct {
	Month      string          `json:"month"` // YYYY-MM
	Sales      decimal.Decimal `json:"sales"`
	Commission decimal.Decimal `json:"commission"`
	Invoices   int             `json:"invoices"`
}

// SkippedInvoice is an input record the engine refused to aggregate.
type SkippedInvoice struct {
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
}

// ClientAnalytics is the self-contained output of one analytics computation.
type ClientAnalytics struct {
	ClientID    string       `json:"client_id"`
	Window      PeriodWindow `json:"window"`
	GeneratedAt time.Time    `json:"generated_at"`

	TotalSales              decimal.Decimal `json:"total_sales"`
	TotalCommission         decimal.Decimal `json:"total_commission"`
	CommissionRatePct       float64         `json:"commission_rate_pct"`
	InvoiceCount            int             `json:"invoice_count"`
	AvgTicket               decimal.Decimal `json:"avg_ticket"`
	AvgDaysBetweenPurchases float64         `json:"avg_days_between_purchases"`
	DaysSinceLastPurchase   int             `json:"days_since_last_purchase"`
	LastPurchase            Date            `json:"last_purchase"`

	// PeriodComparison is nil for unbounded windows: there is no previous window.
	PeriodComparison *PeriodGrowth  `json:"period_comparison,omitempty"`
	MonthlyGrowth    PeriodGrowth   `json:"monthly_growth"`
	QuarterlyGrowth  PeriodGrowth   `json:"quarterly_growth"`
	SemesterGrowth   PeriodGrowth   `json:"semester_growth"`
	MonthlyTrend     []MonthlyPoint `json:"monthly_trend"`

	Products          []ProductAnalysis `json:"products"`
	TopProducts       []ProductAnalysis `json:"top_products"`
	GrowingProducts   []ProductAnalysis `json:"growing_products"`
	DecliningProducts []ProductAnalysis `json:"declining_products"`
	StoppedProducts   []ProductAnalysis `json:"stopped_products"`

	Status             ClientStatus `json:"status"`
	StatusMessage      string       `json:"status_message"`
	RecommendedActions []string     `json:"recommended_actions"`
	Alerts             []string     `json:"alerts"`
	WhyGrowing         []string     `json:"why_growing"`
	WhyDeclining       []string     `json:"why_declining"`

	Skipped []SkippedInvoice `json:"skipped_invoices,omitempty"`
}

// VisitBrief is the visit-preparation projection of ClientAnalytics.
type VisitBrief struct {
	ClientID              string       `json:"client_id"`
	ClientName            string       `json:"client_name"`
	Status                ClientStatus `json:"status"`
	StatusMessage         string       `json:"status_message"`
	DaysSinceLastPurchase int          `json:"days_since_last_purchase"`
	LastPurchase          Date         `json:"last_purchase"`
	MonthlyGrowthPct      float64      `json:"monthly_growth_pct"`
	RecommendedActions    []string     `json:"recommended_actions"`
	Alerts                []string     `json:"alerts"`
	TopProducts           []string     `json:"top_products"`
	StoppedProducts       []string     `json:"stopped_products"`
	DecliningProducts     []string     `json:"declining_products"`
	TalkingPoints         []string     `json:"talking_points"`
}
