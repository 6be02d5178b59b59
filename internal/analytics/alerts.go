package analytics

import (
	"fmt"
	"math"
	"strings"

	"github.com/boddenberg/pharma-crm/internal/domain"
)

// GenerateAlerts scans an already classified result. Each rule is evaluated
// independently and in a fixed order; an empty list is a valid outcome.
func GenerateAlerts(a *domain.ClientAnalytics, t Thresholds) []string {
	alerts := make([]string, 0)

	avg := a.AvgDaysBetweenPurchases
	if avg > 0 && float64(a.DaysSinceLastPurchase) > t.OverdueFactor*avg {
		alerts = append(alerts, fmt.Sprintf("Compra atrasada: %d días desde la última compra (promedio entre compras: %.1f días)",
			a.DaysSinceLastPurchase, avg))
	}

	if n := len(a.StoppedProducts); n > 0 {
		names := make([]string, 0, n)
		for _, p := range a.StoppedProducts {
			names = append(names, p.Name)
		}
		alerts = append(alerts, fmt.Sprintf("%d producto(s) sin pedido este mes: %s", n, strings.Join(names, ", ")))
	}

	if g := a.MonthlyGrowth.GrowthPct; g < t.SignificantDropPct {
		alerts = append(alerts, fmt.Sprintf("Caída significativa: las ventas del mes bajaron %.1f%% frente al mes anterior", math.Abs(g)))
	}

	return alerts
}
