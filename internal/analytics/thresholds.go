// Package analytics turns a client's invoice history into trend, growth,
// status and recommendation data.
//
// The engine is a pure function of its inputs: no I/O, no goroutines, no
// state kept between calls. Calling Analyze twice with the same invoices
// and the same reference time yields equal results.
package analytics

import "github.com/boddenberg/pharma-crm/internal/domain"

// Thresholds are the fixed cut-offs used by the classifier and the alert
// generator. They are values, not configuration: DefaultThresholds is what
// production uses, tests build their own to probe boundaries.
type Thresholds struct {
	// Product month-over-month growth above/below which a product is growing/declining.
	ProductGrowingPct   float64
	ProductDecliningPct float64

	// Client status machine.
	InactiveDays       int
	AtRiskGrowthPct    float64
	AtRiskStoppedCount int
	DecliningGrowthPct float64
	GrowingGrowthPct   float64

	// Alerts.
	OverdueFactor      float64
	SignificantDropPct float64

	// Presentation.
	TopProducts       int
	ExplainedProducts int
	TrendMonths       int
}

// DefaultThresholds returns the thresholds the CRM dashboards are built on.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ProductGrowingPct:   15,
		ProductDecliningPct: -15,

		InactiveDays:       60,
		AtRiskGrowthPct:    -20,
		AtRiskStoppedCount: 2,
		DecliningGrowthPct: -5,
		GrowingGrowthPct:   15,

		OverdueFactor:      1.5,
		SignificantDropPct: -20,

		TopProducts:       5,
		ExplainedProducts: 3,
		TrendMonths:       12,
	}
}

// KeyFunc maps a line item to the key its figures are accumulated under.
type KeyFunc func(item domain.LineItem) string

// KeyByName joins products by their free-text name.
func KeyByName(item domain.LineItem) string {
	return item.ProductName
}

// KeyByProductID joins by catalog id when the line carries one and falls
// back to the name otherwise.
func KeyByProductID(item domain.LineItem) string {
	if item.ProductID != "" {
		return "id:" + item.ProductID
	}
	return item.ProductName
}
