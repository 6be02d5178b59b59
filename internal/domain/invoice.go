package domain

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RestProductName is the pseudo-product that carries an invoice's
// miscellaneous amount not tied to a catalogued product.
const RestProductName = "Resto General"

// ============================================================
// Date
// ============================================================

// Date is a calendar date (no time of day) serialized as YYYY-MM-DD.
// The zero Date marshals to null.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date, keeping t's own wall clock fields.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts ISO dates, RFC3339 timestamps and DD/MM/YYYY.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02T15:04:05", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysUntil returns the whole days from d to other (negative when other is earlier).
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time).Hours() / 24)
}

// ============================================================
// Invoices
// ============================================================

// Invoice is a sales invoice issued to a client.
type Invoice struct {
	ID              string          `json:"id"`
	ClientID        string          `json:"client_id"`
	InvoiceNumber   string          `json:"invoice_number,omitempty"`
	InvoiceDate     Date            `json:"invoice_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	RestAmount      decimal.Decimal `json:"rest_amount"`
	RestCommission  decimal.Decimal `json:"rest_commission"`
	Products        []LineItem      `json:"products"`
}

// LineItem is one product line of an invoice. ProductName is the join key;
// ProductID is optional and only used by catalog-aware key functions.
type LineItem struct {
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Amount      decimal.Decimal `json:"amount"`
	Commission  decimal.Decimal `json:"commission"`
}

// HasRest reports whether the invoice carries a miscellaneous rest entry.
func (inv *Invoice) HasRest() bool {
	return !inv.RestAmount.IsZero() || !inv.RestCommission.IsZero()
}

// LinesTotal sums line amounts and commissions plus the rest entry.
func (inv *Invoice) LinesTotal() (amount, commission decimal.Decimal) {
	amount, commission = inv.RestAmount, inv.RestCommission
	for _, p := range inv.Products {
		amount = amount.Add(p.Amount)
		commission = commission.Add(p.Commission)
	}
	return amount, commission
}

// Sales returns the invoice total, falling back to the line sum when the
// total was not recorded.
func (inv *Invoice) Sales() decimal.Decimal {
	if !inv.TotalAmount.IsZero() {
		return inv.TotalAmount
	}
	amount, _ := inv.LinesTotal()
	return amount
}

// Commission mirrors Sales for the commission column.
func (inv *Invoice) Commission() decimal.Decimal {
	if !inv.TotalCommission.IsZero() {
		return inv.TotalCommission
	}
	_, commission := inv.LinesTotal()
	return commission
}

// ImportReport summarizes a CSV bulk import.
type ImportReport struct {
	Rows      int              `json:"rows"`
	Imported  int              `json:"imported"`
	Failed    int              `json:"failed"`
	RowErrors []ImportRowError `json:"row_errors"`
}

// ImportRowError points at a CSV line (1-based, header included) that could not be used.
type ImportRowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}
