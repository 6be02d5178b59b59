package analytics

import (
	"strings"
	"time"

	"github.com/boddenberg/pharma-crm/internal/domain"

	"github.com/shopspring/decimal"
)

// Period is a named analysis window.
type Period string

const (
	PeriodOneMonth    Period = "1 month"
	PeriodThreeMonths Period = "3 months"
	PeriodSixMonths   Period = "6 months"
	PeriodOneYear     Period = "1 year"
	PeriodAllTime     Period = "all time"
)

// Periods lists the accepted tokens in display order.
var Periods = []Period{PeriodOneMonth, PeriodThreeMonths, PeriodSixMonths, PeriodOneYear, PeriodAllTime}

var periodMonths = map[Period]int{
	PeriodOneMonth:    1,
	PeriodThreeMonths: 3,
	PeriodSixMonths:   6,
	PeriodOneYear:     12,
}

var periodAliases = map[string]Period{
	"1m": PeriodOneMonth, "1month": PeriodOneMonth,
	"3m": PeriodThreeMonths, "3months": PeriodThreeMonths,
	"6m": PeriodSixMonths, "6months": PeriodSixMonths,
	"1y": PeriodOneYear, "1year": PeriodOneYear, "12m": PeriodOneYear,
	"all": PeriodAllTime, "alltime": PeriodAllTime,
}

// ParsePeriod resolves a token or one of its query-string aliases.
func ParsePeriod(s string) (Period, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	p := Period(norm)
	if _, ok := periodMonths[p]; ok || p == PeriodAllTime {
		return p, nil
	}
	if p, ok := periodAliases[strings.NewReplacer(" ", "", "_", "", "-", "").Replace(norm)]; ok {
		return p, nil
	}
	return "", &domain.ErrValidation{Field: "period", Message: "must be one of 1 month, 3 months, 6 months, 1 year, all time"}
}

// SelectPeriod resolves p into calendar-month aligned boundaries around now.
//
// A bounded window of N months starts on the first day of the month N months
// before now and ends on the last day of the current month. Its previous
// window covers the same number of calendar months right before it.
func SelectPeriod(p Period, now time.Time) domain.PeriodWindow {
	today := domain.DateOf(now)
	months, bounded := periodMonths[p]
	if !bounded {
		return domain.PeriodWindow{
			Period: string(PeriodAllTime),
			End:    monthEnd(today, 0),
		}
	}

	span := months + 1
	return domain.PeriodWindow{
		Period:  string(p),
		Start:   monthStart(today, -months),
		End:     monthEnd(today, 0),
		Bounded: true,
		Previous: &domain.PeriodWindow{
			Period:  string(p),
			Start:   monthStart(today, -months-span),
			End:     monthEnd(today, -span),
			Bounded: true,
		},
	}
}

// calendarSpan is the window covering the last n calendar months (current
// month included) and the n months before it.
func calendarSpan(today domain.Date, n int) (current, previous domain.PeriodWindow) {
	current = domain.PeriodWindow{Start: monthStart(today, -(n - 1)), End: monthEnd(today, 0), Bounded: true}
	previous = domain.PeriodWindow{Start: monthStart(today, -(2*n - 1)), End: monthEnd(today, -n), Bounded: true}
	return current, previous
}

func monthStart(d domain.Date, offset int) domain.Date {
	return domain.NewDate(d.Year(), d.Month()+time.Month(offset), 1)
}

// monthEnd relies on time.Date normalizing day 0 to the last day of the prior month.
func monthEnd(d domain.Date, offset int) domain.Date {
	return domain.NewDate(d.Year(), d.Month()+time.Month(offset)+1, 0)
}

func monthKey(d domain.Date) string {
	return d.Format("2006-01")
}

var hundred = decimal.NewFromInt(100)

// Growth is the percentage change from prev to cur. There is no undefined
// case: a zero baseline maps to +100, -100 or 0.
func Growth(prev, cur decimal.Decimal) float64 {
	if prev.IsZero() {
		switch cur.Sign() {
		case 0:
			return 0
		case 1:
			return 100
		default:
			return -100
		}
	}
	return cur.Sub(prev).Mul(hundred).Div(prev.Abs()).InexactFloat64()
}

// percent is part/whole as a percentage rounded to two decimals.
func percent(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Mul(hundred).Div(whole).Round(2).InexactFloat64()
}
