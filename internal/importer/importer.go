// Package importer turns tabular sales exports (CSV or XLSX) into invoices.
//
// Each data row is one product line. Rows sharing an invoice reference, or
// the same client and date when no reference column is present, form one
// invoice. A row without a product name feeds the invoice's rest amount.
package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/boddenberg/pharma-crm/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Result is what a parse produced: the grouped invoices in order of first
// appearance and every row that could not be used.
type Result struct {
	Invoices  []domain.Invoice
	// Lines holds the source line of each invoice's first row.
	Lines     []int
	Rows      int
	RowErrors []domain.ImportRowError
}

// Options tune the parser.
type Options struct {
	// MaxRows caps the number of data rows; 0 means no cap.
	MaxRows int
}

const (
	colInvoice    = "invoice"
	colClient     = "client_id"
	colDate       = "date"
	colProduct    = "product"
	colProductID  = "product_id"
	colAmount     = "amount"
	colCommission = "commission"
)

var headerAliases = map[string]string{
	"invoice": colInvoice, "invoice_number": colInvoice, "factura": colInvoice, "nro_factura": colInvoice,
	"client_id": colClient, "client": colClient, "cliente": colClient, "id_cliente": colClient,
	"date": colDate, "invoice_date": colDate, "fecha": colDate,
	"product": colProduct, "product_name": colProduct, "producto": colProduct,
	"product_id": colProductID, "id_producto": colProductID,
	"amount": colAmount, "sales": colAmount, "monto": colAmount, "venta": colAmount, "importe": colAmount,
	"commission": colCommission, "comision": colCommission, "comisión": colCommission,
}

var requiredColumns = []string{colClient, colDate, colAmount}

// header maps canonical column names to their index in a record.
type header map[string]int

func parseHeader(record []string) (header, error) {
	h := make(header, len(record))
	for i, raw := range record {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
		name = strings.ReplaceAll(name, " ", "_")
		if canon, ok := headerAliases[name]; ok {
			if _, dup := h[canon]; !dup {
				h[canon] = i
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := h[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ErrValidation{Field: "header", Message: "missing required column(s): " + strings.Join(missing, ", ")}
	}
	return h, nil
}

func (h header) get(record []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// builder groups rows into invoices.
type builder struct {
	opts     Options
	header   header
	result   *Result
	index    map[string]int
	dateSeen map[string]domain.Date
}

func newBuilder(h header, opts Options) *builder {
	return &builder{
		opts:     opts,
		header:   h,
		result:   &Result{Invoices: []domain.Invoice{}, Lines: []int{}, RowErrors: []domain.ImportRowError{}},
		index:    make(map[string]int),
		dateSeen: make(map[string]domain.Date),
	}
}

// add consumes one data row. line is the 1-based source line, header included.
func (b *builder) add(line int, record []string) error {
	if isBlank(record) {
		return nil
	}
	b.result.Rows++
	if b.opts.MaxRows > 0 && b.result.Rows > b.opts.MaxRows {
		return &domain.ErrValidation{Field: "rows", Message: fmt.Sprintf("import exceeds %d rows", b.opts.MaxRows)}
	}

	if err := b.addRow(line, record); err != nil {
		b.result.RowErrors = append(b.result.RowErrors, domain.ImportRowError{Line: line, Message: err.Error()})
	}
	return nil
}

func (b *builder) addRow(line int, record []string) error {
	clientID := b.header.get(record, colClient)
	if clientID == "" {
		return fmt.Errorf("client_id is empty")
	}

	date, err := parseDate(b.header.get(record, colDate))
	if err != nil {
		return err
	}

	amount, err := parseAmount(b.header.get(record, colAmount))
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	commission := decimal.Zero
	if raw := b.header.get(record, colCommission); raw != "" {
		if commission, err = parseAmount(raw); err != nil {
			return fmt.Errorf("commission: %w", err)
		}
	}
	if amount.IsNegative() || commission.IsNegative() {
		return fmt.Errorf("amounts must not be negative")
	}

	ref := b.header.get(record, colInvoice)
	key := "date:" + clientID + "|" + date.String()
	if ref != "" {
		key = "ref:" + clientID + "|" + ref
		if seen, ok := b.dateSeen[key]; ok && !seen.Equal(date.Time) {
			return fmt.Errorf("invoice %s already dated %s", ref, seen)
		}
	}

	i, ok := b.index[key]
	if !ok {
		b.result.Invoices = append(b.result.Invoices, domain.Invoice{
			ClientID:      clientID,
			InvoiceNumber: ref,
			InvoiceDate:   date,
			Products:      []domain.LineItem{},
		})
		b.result.Lines = append(b.result.Lines, line)
		i = len(b.result.Invoices) - 1
		b.index[key] = i
		b.dateSeen[key] = date
	}
	inv := &b.result.Invoices[i]

	product := b.header.get(record, colProduct)
	if product == "" {
		inv.RestAmount = inv.RestAmount.Add(amount)
		inv.RestCommission = inv.RestCommission.Add(commission)
		return nil
	}
	inv.Products = append(inv.Products, domain.LineItem{
		ProductID:   b.header.get(record, colProductID),
		ProductName: product,
		Amount:      amount,
		Commission:  commission,
	})
	return nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseDate accepts the domain layouts plus Excel serial day numbers.
func parseDate(raw string) (domain.Date, error) {
	if raw == "" {
		return domain.Date{}, fmt.Errorf("date is empty")
	}
	if d, err := domain.ParseDate(raw); err == nil {
		return d, nil
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return domain.DateOf(t), nil
		}
	}
	return domain.Date{}, fmt.Errorf("invalid date %q", raw)
}

// parseAmount accepts "1234.5", "1234,5", "1.234,50", "1,234.50",
// "1,234,567" and an optional currency symbol. When both separators appear
// the last one is the decimal mark. A separator repeated on its own is
// grouping, and so is a single comma followed by exactly three digits after
// a non-zero integer part ("1,234" but not "0,500").
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.NewReplacer("$", "", " ", "", "\u00a0", "").Replace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("value is empty")
	}

	commas, dots := strings.Count(s, ","), strings.Count(s, ".")
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case commas > 0 && dots > 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case commas > 0 && dots > 0:
		s = strings.ReplaceAll(s, ",", "")
	case commas > 1, commas == 1 && isThousandsGroup(s, comma):
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", raw)
	}
	return d, nil
}

// isThousandsGroup reports whether the separator at i splits a non-zero
// integer part of at most three digits from exactly three trailing digits.
func isThousandsGroup(s string, i int) bool {
	head := strings.TrimLeft(s[:i], "+-")
	tail := s[i+1:]
	if len(tail) != 3 || head == "" || len(head) > 3 || head[0] == '0' {
		return false
	}
	return isDigits(head) && isDigits(tail)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
