package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/boddenberg/pharma-crm/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	recommendStopped   = "Sin pedidos este mes: confirmar stock en farmacia y reactivar el pedido"
	recommendDeclining = "Ventas en descenso: revisar condiciones comerciales y reforzar la presentación"
	recommendGrowing   = "Ventas en crecimiento: asegurar stock y proponer ampliar el pedido"
	recommendStable    = "Ventas estables: mantener la frecuencia de visita"
	recommendDormant   = "Sin actividad reciente: evaluar reintroducir el producto"
)

// statusCopy is the fixed message and action list attached to each status.
type statusCopy struct {
	message string
	actions []string
}

var statusCatalog = map[domain.ClientStatus]statusCopy{
	domain.StatusInactive: {
		message: "Cliente inactivo: lleva más de %d días sin comprar",
		actions: []string{
			"Agendar una visita presencial esta semana",
			"Llamar para conocer el motivo de la inactividad",
			"Ofrecer una condición especial de reactivación",
		},
	},
	domain.StatusAtRisk: {
		message: "Cliente en riesgo: caída fuerte de ventas o productos discontinuados",
		actions: []string{
			"Priorizar la visita en la próxima ruta",
			"Revisar los productos que dejó de comprar",
			"Negociar un pedido de recuperación",
		},
	},
	domain.StatusDeclining: {
		message: "Ventas en descenso respecto al mes anterior",
		actions: []string{
			"Revisar la rotación de los productos en descenso",
			"Reforzar la presentación de la línea principal",
		},
	},
	domain.StatusGrowing: {
		message: "Cliente en crecimiento: las ventas del mes superan al anterior",
		actions: []string{
			"Asegurar disponibilidad de stock",
			"Proponer productos complementarios",
			"Consolidar la relación con visitas regulares",
		},
	},
	domain.StatusStable: {
		message: "Cliente estable: ventas en línea con el mes anterior",
		actions: []string{
			"Mantener la frecuencia de visita",
			"Presentar novedades del catálogo",
		},
	},
}

const noHistoryMessage = "Cliente sin historial de compras"

var noHistoryActions = []string{
	"Programar una visita de presentación",
	"Presentar el catálogo de productos",
}

// analyzeProducts derives one ProductAnalysis per aggregated key, sorted by
// total sales descending and name ascending.
func analyzeProducts(agg *Aggregation, t Thresholds) []domain.ProductAnalysis {
	keys := make([]string, 0, len(agg.Products))
	for k := range agg.Products {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	products := make([]domain.ProductAnalysis, 0, len(keys))
	for _, k := range keys {
		products = append(products, classifyProduct(agg.Products[k], agg.Sales, t))
	}

	sort.SliceStable(products, func(i, j int) bool {
		if c := products[i].TotalSales.Cmp(products[j].TotalSales); c != 0 {
			return c > 0
		}
		return products[i].Name < products[j].Name
	})
	return products
}

func classifyProduct(pt *ProductTotals, clientSales decimal.Decimal, t Thresholds) domain.ProductAnalysis {
	cur, prev := pt.CurrentMonth, pt.PreviousMonth
	growth := Growth(prev, cur)

	stopped := prev.IsPositive() && cur.IsZero()
	declining := growth < t.ProductDecliningPct && !stopped
	growing := growth > t.ProductGrowingPct

	pa := domain.ProductAnalysis{
		Name:               pt.Name,
		TotalSales:         pt.Sales,
		TotalCommission:    pt.Commission,
		Occurrences:        pt.Occurrences,
		CurrentMonthSales:  cur,
		PreviousMonthSales: prev,
		GrowthPct:          growth,
		SharePct:           percent(pt.Sales, clientSales),
		LastPurchase:       pt.LastPurchase,
		IsGrowing:          growing,
		IsDeclining:        declining,
		IsStopped:          stopped,
	}
	if pt.Occurrences > 0 {
		pa.AvgSale = pt.Sales.Div(decimal.NewFromInt(int64(pt.Occurrences))).Round(2)
	}

	switch {
	case stopped:
		pa.Trend, pa.Recommendation = domain.TrendStopped, recommendStopped
	case declining:
		pa.Trend, pa.Recommendation = domain.TrendDeclining, recommendDeclining
	case growing:
		pa.Trend, pa.Recommendation = domain.TrendGrowing, recommendGrowing
	case !cur.IsZero() || !prev.IsZero():
		pa.Trend, pa.Recommendation = domain.TrendStable, recommendStable
	default:
		pa.Trend, pa.Recommendation = domain.TrendDormant, recommendDormant
	}
	return pa
}

// ClassifyStatus evaluates the client status in strict priority order; the
// first matching rule wins.
func ClassifyStatus(daysSinceLastPurchase int, monthlyGrowthPct float64, stoppedCount int, t Thresholds) domain.ClientStatus {
	switch {
	case daysSinceLastPurchase > t.InactiveDays:
		return domain.StatusInactive
	case monthlyGrowthPct < t.AtRiskGrowthPct || stoppedCount >= t.AtRiskStoppedCount:
		return domain.StatusAtRisk
	case monthlyGrowthPct < t.DecliningGrowthPct:
		return domain.StatusDeclining
	case monthlyGrowthPct > t.GrowingGrowthPct:
		return domain.StatusGrowing
	default:
		return domain.StatusStable
	}
}

// statusText returns the message and a fresh copy of the action list.
func statusText(status domain.ClientStatus, hasHistory bool, t Thresholds) (string, []string) {
	if !hasHistory {
		return noHistoryMessage, append([]string(nil), noHistoryActions...)
	}
	c := statusCatalog[status]
	msg := c.message
	if status == domain.StatusInactive {
		msg = fmt.Sprintf(msg, t.InactiveDays)
	}
	return msg, append([]string(nil), c.actions...)
}

// monthActivity is the invoice frequency and ticket data behind the
// narrative explanations.
type monthActivity struct {
	currentInvoices  int
	previousInvoices int
	currentTicket    decimal.Decimal
	quarterTicket    decimal.Decimal
}

func newMonthActivity(agg *Aggregation) monthActivity {
	cur, prev, quarter := agg.Month(0), agg.Month(-1), agg.Span(0, 3)
	return monthActivity{
		currentInvoices:  cur.Invoices,
		previousInvoices: prev.Invoices,
		currentTicket:    avgTicket(cur),
		quarterTicket:    avgTicket(quarter),
	}
}

func avgTicket(m MonthTotals) decimal.Decimal {
	if m.Invoices == 0 {
		return decimal.Zero
	}
	return m.Sales.Div(decimal.NewFromInt(int64(m.Invoices))).Round(2)
}

// explainGrowth lists the reasons behind a rising client, omitting any
// category with nothing to report.
func explainGrowth(products []domain.ProductAnalysis, act monthActivity, t Thresholds) []string {
	why := make([]string, 0)
	n := 0
	for _, p := range products {
		if n == t.ExplainedProducts {
			break
		}
		if p.IsGrowing {
			why = append(why, fmt.Sprintf("%s creció %+.1f%% frente al mes anterior", p.Name, p.GrowthPct))
			n++
		}
	}
	if act.currentInvoices > act.previousInvoices {
		why = append(why, fmt.Sprintf("Mayor frecuencia de compra: %d facturas este mes frente a %d el mes anterior",
			act.currentInvoices, act.previousInvoices))
	}
	if act.currentInvoices > 0 && act.currentTicket.GreaterThan(act.quarterTicket) {
		why = append(why, fmt.Sprintf("Ticket promedio de $%s por encima del promedio trimestral de $%s",
			act.currentTicket.StringFixed(2), act.quarterTicket.StringFixed(2)))
	}
	return why
}

// explainDecline mirrors explainGrowth and additionally names every stopped product.
func explainDecline(products []domain.ProductAnalysis, act monthActivity, t Thresholds) []string {
	why := make([]string, 0)
	n := 0
	for _, p := range products {
		if n == t.ExplainedProducts {
			break
		}
		if p.IsDeclining {
			why = append(why, fmt.Sprintf("%s cayó %.1f%% frente al mes anterior", p.Name, math.Abs(p.GrowthPct)))
			n++
		}
	}
	if act.currentInvoices < act.previousInvoices {
		why = append(why, fmt.Sprintf("Menor frecuencia de compra: %d facturas este mes frente a %d el mes anterior",
			act.currentInvoices, act.previousInvoices))
	}
	if act.currentInvoices > 0 && act.currentTicket.LessThan(act.quarterTicket) {
		why = append(why, fmt.Sprintf("Ticket promedio de $%s por debajo del promedio trimestral de $%s",
			act.currentTicket.StringFixed(2), act.quarterTicket.StringFixed(2)))
	}
	for _, p := range products {
		if p.IsStopped {
			why = append(why, fmt.Sprintf("%s dejó de comprarse (mes anterior: $%s)", p.Name, p.PreviousMonthSales.StringFixed(2)))
		}
	}
	return why
}

func filterProducts(products []domain.ProductAnalysis, keep func(domain.ProductAnalysis) bool) []domain.ProductAnalysis {
	out := make([]domain.ProductAnalysis, 0)
	for _, p := range products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
