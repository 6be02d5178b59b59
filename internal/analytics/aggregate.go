package analytics

import (
	"sort"

	"github.com/boddenberg/pharma-crm/internal/domain"

	"github.com/shopspring/decimal"
)

// ProductTotals accumulates one product key's figures.
type ProductTotals struct {
	Key           string
	Name          string
	Sales         decimal.Decimal
	Commission    decimal.Decimal
	Occurrences   int
	LastPurchase  domain.Date
	CurrentMonth  decimal.Decimal
	PreviousMonth decimal.Decimal
}

// MonthTotals is one calendar month of client-level sums.
type MonthTotals struct {
	Sales      decimal.Decimal
	Commission decimal.Decimal
	Invoices   int
}

// Aggregation is the Aggregator's output. Map iteration order carries no
// meaning; the classifier imposes presentation order.
type Aggregation struct {
	Window   domain.PeriodWindow
	Today    domain.Date
	Products map[string]*ProductTotals

	// Window-scoped client totals.
	Sales         decimal.Decimal
	Commission    decimal.Decimal
	InvoiceCount  int
	PurchaseDates []domain.Date

	// PreviousSales is only meaningful for bounded windows.
	PreviousSales decimal.Decimal

	// LastPurchase spans the whole history up to the end of the window.
	LastPurchase domain.Date

	// Months holds client-level sums per YYYY-MM over the whole history,
	// independent of the selected window.
	Months map[string]MonthTotals
}

// Aggregate folds invoices into per-product and per-month sums.
//
// Product totals only include invoices inside window. The current and
// previous calendar month sums are tracked for every product regardless of
// the window, since monthly growth is always month-over-month.
func Aggregate(invoices []domain.Invoice, window domain.PeriodWindow, today domain.Date, key KeyFunc) *Aggregation {
	if key == nil {
		key = KeyByName
	}
	agg := &Aggregation{
		Window:   window,
		Today:    today,
		Products: make(map[string]*ProductTotals),
		Months:   make(map[string]MonthTotals),
	}

	currentMonth, previousMonth := calendarSpan(today, 1)

	for i := range invoices {
		inv := &invoices[i]
		date := inv.InvoiceDate
		sales, commission := inv.Sales(), inv.Commission()

		mk := monthKey(date)
		m := agg.Months[mk]
		m.Sales = m.Sales.Add(sales)
		m.Commission = m.Commission.Add(commission)
		m.Invoices++
		agg.Months[mk] = m

		if !date.After(window.End.Time) && date.After(agg.LastPurchase.Time) {
			agg.LastPurchase = date
		}

		if window.Previous != nil && window.Previous.Contains(date) {
			agg.PreviousSales = agg.PreviousSales.Add(sales)
		}

		inWindow := window.Contains(date)
		inCurrent := currentMonth.Contains(date)
		inPrevious := previousMonth.Contains(date)
		if !inWindow && !inCurrent && !inPrevious {
			continue
		}

		if inWindow {
			agg.Sales = agg.Sales.Add(sales)
			agg.Commission = agg.Commission.Add(commission)
			agg.InvoiceCount++
			agg.PurchaseDates = append(agg.PurchaseDates, date)
		}

		lines := inv.Products
		if inv.HasRest() {
			lines = append(lines[:len(lines):len(lines)], domain.LineItem{
				ProductName: domain.RestProductName,
				Amount:      inv.RestAmount,
				Commission:  inv.RestCommission,
			})
		}

		for _, line := range lines {
			pt := agg.product(key(line), line.ProductName)
			if inWindow {
				pt.Sales = pt.Sales.Add(line.Amount)
				pt.Commission = pt.Commission.Add(line.Commission)
				pt.Occurrences++
				if date.After(pt.LastPurchase.Time) {
					pt.LastPurchase = date
				}
			}
			if inCurrent {
				pt.CurrentMonth = pt.CurrentMonth.Add(line.Amount)
			}
			if inPrevious {
				pt.PreviousMonth = pt.PreviousMonth.Add(line.Amount)
			}
		}
	}

	sort.Slice(agg.PurchaseDates, func(i, j int) bool {
		return agg.PurchaseDates[i].Before(agg.PurchaseDates[j].Time)
	})

	return agg
}

// product returns the totals for k, creating them on first sight. When
// several names share a key the smallest one wins so the result does not
// depend on input order.
func (a *Aggregation) product(k, name string) *ProductTotals {
	pt, ok := a.Products[k]
	if !ok {
		pt = &ProductTotals{Key: k, Name: name}
		a.Products[k] = pt
		return pt
	}
	if name != "" && (pt.Name == "" || name < pt.Name) {
		pt.Name = name
	}
	return pt
}

// Month returns the client sums for the calendar month offset months away from today.
func (a *Aggregation) Month(offset int) MonthTotals {
	return a.Months[monthKey(monthStart(a.Today, offset))]
}

// Span sums n calendar months ending offset months away from today.
func (a *Aggregation) Span(offset, n int) MonthTotals {
	var out MonthTotals
	for i := 0; i < n; i++ {
		m := a.Month(offset - i)
		out.Sales = out.Sales.Add(m.Sales)
		out.Commission = out.Commission.Add(m.Commission)
		out.Invoices += m.Invoices
	}
	return out
}

// AvgDaysBetweenPurchases is the mean gap between consecutive window
// invoices, rounded to one decimal. Fewer than two invoices yield 0.
func (a *Aggregation) AvgDaysBetweenPurchases() float64 {
	n := len(a.PurchaseDates)
	if n < 2 {
		return 0
	}
	days := a.PurchaseDates[0].DaysUntil(a.PurchaseDates[n-1])
	return decimal.NewFromInt(int64(days)).Div(decimal.NewFromInt(int64(n - 1))).Round(1).InexactFloat64()
}

// DaysSinceLastPurchase counts whole days from the last purchase to today,
// never negative. A client without purchases reports 0.
func (a *Aggregation) DaysSinceLastPurchase() int {
	if a.LastPurchase.IsZero() {
		return 0
	}
	if d := a.LastPurchase.DaysUntil(a.Today); d > 0 {
		return d
	}
	return 0
}
