package analytics_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/pharma-crm/internal/analytics"
	"github.com/boddenberg/pharma-crm/internal/domain"

	"github.com/shopspring/decimal"
)

// --- Helpers ---

var refNow = time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func line(name string, amount float64) domain.LineItem {
	return domain.LineItem{ProductName: name, Amount: dec(amount), Commission: dec(amount / 10)}
}

func invoice(id, date string, lines ...domain.LineItem) domain.Invoice {
	d, err := domain.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.Invoice{ID: id, ClientID: "cli-1", InvoiceDate: d, Products: lines}
}

func names(products []domain.ProductAnalysis) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}

func findProduct(t *testing.T, products []domain.ProductAnalysis, name string) domain.ProductAnalysis {
	t.Helper()
	for _, p := range products {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("product %q not found in %v", name, names(products))
	return domain.ProductAnalysis{}
}

// --- Tests ---

func TestAnalyze_EndToEnd(t *testing.T) {
	invoices := []domain.Invoice{
		invoice("inv-1", "2024-05-10", line("A", 80), line("B", 80)),
		invoice("inv-2", "2024-06-05", line("A", 100)),
		invoice("inv-3", "2024-06-15", line("B", 50)),
	}

	res := analytics.NewEngine().Analyze("cli-1", invoices, analytics.PeriodOneMonth, refNow)

	if !res.TotalSales.Equal(dec(310)) {
		t.Errorf("expected total sales 310, got %s", res.TotalSales)
	}
	if res.InvoiceCount != 3 {
		t.Errorf("expected 3 invoices, got %d", res.InvoiceCount)
	}
	if res.DaysSinceLastPurchase != 5 {
		t.Errorf("expected 5 days since last purchase, got %d", res.DaysSinceLastPurchase)
	}
	if res.AvgDaysBetweenPurchases != 18 {
		t.Errorf("expected 18 days between purchases, got %v", res.AvgDaysBetweenPurchases)
	}
	if res.LastPurchase.String() != "2024-06-15" {
		t.Errorf("expected last purchase 2024-06-15, got %s", res.LastPurchase)
	}

	a := findProduct(t, res.Products, "A")
	if a.GrowthPct != 25 || !a.IsGrowing || a.Trend != domain.TrendGrowing {
		t.Errorf("A: expected growing at +25%%, got %+v", a)
	}
	b := findProduct(t, res.Products, "B")
	if b.GrowthPct != -37.5 || !b.IsDeclining || b.IsStopped || b.Trend != domain.TrendDeclining {
		t.Errorf("B: expected declining at -37.5%%, got %+v", b)
	}

	if got := names(res.Products); strings.Join(got, ",") != "A,B" {
		t.Errorf("expected products ordered A,B by sales, got %v", got)
	}

	if res.MonthlyGrowth.GrowthPct != -6.25 {
		t.Errorf("expected monthly growth -6.25, got %v", res.MonthlyGrowth.GrowthPct)
	}
	if res.Status != domain.StatusDeclining {
		t.Errorf("expected status declining, got %s", res.Status)
	}
	if len(res.Alerts) != 0 {
		t.Errorf("expected no alerts, got %v", res.Alerts)
	}

	if len(res.WhyGrowing) != 2 || !strings.HasPrefix(res.WhyGrowing[0], "A creció +25.0%") {
		t.Errorf("unexpected why_growing: %v", res.WhyGrowing)
	}
	if !strings.Contains(res.WhyGrowing[1], "2 facturas este mes frente a 1") {
		t.Errorf("expected frequency explanation, got %q", res.WhyGrowing[1])
	}
	if len(res.WhyDeclining) != 2 || !strings.HasPrefix(res.WhyDeclining[0], "B cayó 37.5%") {
		t.Errorf("unexpected why_declining: %v", res.WhyDeclining)
	}
	if !strings.Contains(res.WhyDeclining[1], "$75.00 por debajo del promedio trimestral de $103.33") {
		t.Errorf("expected ticket explanation, got %q", res.WhyDeclining[1])
	}

	if res.PeriodComparison == nil {
		t.Fatal("expected period comparison for bounded window")
	}
	if res.PeriodComparison.GrowthPct != 100 {
		t.Errorf("expected +100%% against an empty previous window, got %v", res.PeriodComparison.GrowthPct)
	}
}

func TestAnalyze_ZeroHistory(t *testing.T) {
	res := analytics.NewEngine().Analyze("cli-1", nil, analytics.PeriodThreeMonths, refNow)

	if res.Status != domain.StatusStable {
		t.Errorf("expected stable, got %s", res.Status)
	}
	if res.StatusMessage != "Cliente sin historial de compras" {
		t.Errorf("unexpected message %q", res.StatusMessage)
	}
	if len(res.RecommendedActions) == 0 {
		t.Error("expected recommended actions")
	}
	if !res.TotalSales.IsZero() || res.InvoiceCount != 0 || res.DaysSinceLastPurchase != 0 {
		t.Errorf("expected empty totals, got %+v", res)
	}
	if len(res.Alerts) != 0 {
		t.Errorf("expected no alerts, got %v", res.Alerts)
	}

	body, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"products":[]`, `"top_products":[]`, `"stopped_products":[]`, `"alerts":[]`, `"why_growing":[]`} {
		if !strings.Contains(string(body), field) {
			t.Errorf("expected %s in %s", field, body)
		}
	}
}

func TestAnalyze_InactivePriority(t *testing.T) {
	// 61 days without purchases wins over every other rule.
	invoices := []domain.Invoice{
		invoice("inv-1", "2024-04-20", line("A", 100)),
	}
	res := analytics.NewEngine().Analyze("cli-1", invoices, analytics.PeriodOneYear, refNow)

	if res.DaysSinceLastPurchase != 61 {
		t.Fatalf("expected 61 days, got %d", res.DaysSinceLastPurchase)
	}
	if res.Status != domain.StatusInactive {
		t.Errorf("expected inactive, got %s", res.Status)
	}
	if !strings.Contains(res.StatusMessage, "60") {
		t.Errorf("expected threshold in message, got %q", res.StatusMessage)
	}
}

func TestAnalyze_StoppedProduct(t *testing.T) {
	invoices := []domain.Invoice{
		invoice("inv-1", "2024-05-10", line("X", 500)),
	}
	res := analytics.NewEngine().Analyze("cli-1", invoices, analytics.PeriodOneMonth, refNow)

	x := findProduct(t, res.Products, "X")
	if !x.IsStopped || x.IsDeclining || x.Trend != domain.TrendStopped {
		t.Errorf("expected stopped (not declining), got %+v", x)
	}
	if len(res.StoppedProducts) != 1 {
		t.Errorf("expected 1 stopped product, got %d", len(res.StoppedProducts))
	}
	if res.Status != domain.StatusAtRisk {
		t.Errorf("expected at_risk after -100%% month, got %s", res.Status)
	}
	if len(res.Alerts) != 2 {
		t.Fatalf("expected stopped and drop alerts, got %v", res.Alerts)
	}
	if res.Alerts[0] != "1 producto(s) sin pedido este mes: X" {
		t.Errorf("unexpected stopped alert %q", res.Alerts[0])
	}
	if !strings.Contains(res.Alerts[1], "bajaron 100.0%") {
		t.Errorf("unexpected drop alert %q", res.Alerts[1])
	}
	if len(res.WhyDeclining) == 0 || !strings.Contains(res.WhyDeclining[len(res.WhyDeclining)-1], "X dejó de comprarse (mes anterior: $500.00)") {
		t.Errorf("expected stopped explanation, got %v", res.WhyDeclining)
	}
}

func TestAnalyze_OverdueAlert(t *testing.T) {
	invoices := []domain.Invoice{
		invoice("inv-1", "2024-01-05", line("A", 100)),
		invoice("inv-2", "2024-01-15", line("A", 100)),
		invoice("inv-3", "2024-01-25", line("A", 100)),
	}
	res := analytics.NewEngine().Analyze("cli-1", invoices, analytics.PeriodSixMonths, refNow)

	if res.AvgDaysBetweenPurchases != 10 {
		t.Fatalf("expected 10 days between purchases, got %v", res.AvgDaysBetweenPurchases)
	}
	if len(res.Alerts) == 0 || !strings.HasPrefix(res.Alerts[0], "Compra atrasada: 147 días") {
		t.Errorf("expected overdue alert first, got %v", res.Alerts)
	}
	if res.Status != domain.StatusInactive {
		t.Errorf("expected inactive, got %s", res.Status)
	}
}

func TestAnalyze_TieBreakByName(t *testing.T) {
	first := []domain.Invoice{
		invoice("inv-1", "2024-06-01", line("Beta", 100), line("Alfa", 100), line("Gamma", 300)),
	}
	second := []domain.Invoice{
		invoice("inv-1", "2024-06-01", line("Gamma", 300), line("Alfa", 100), line("Beta", 100)),
	}
	engine := analytics.NewEngine()

	for _, invoices := range [][]domain.Invoice{first, second} {
		res := engine.Analyze("cli-1", invoices, analytics.PeriodOneMonth, refNow)
		if got := strings.Join(names(res.Products), ","); got != "Gamma,Alfa,Beta" {
			t.Errorf("expected Gamma,Alfa,Beta, got %s", got)
		}
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	invoices := []domain.Invoice{
		invoice("inv-1", "2024-03-10", line("A", 10), line("B", 20)),
		invoice("inv-2", "2024-05-10", line("C", 30), line("A", 15)),
		invoice("inv-3", "2024-06-10", line("B", 5)),
	}
	engine := analytics.NewEngine()

	first, err := json.Marshal(engine.Analyze("cli-1", invoices, analytics.PeriodAllTime, refNow))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(engine.Analyze("cli-1", invoices, analytics.PeriodAllTime, refNow))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("expected identical results\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestAnalyze_AllTimeHasNoComparison(t *testing.T) {
	invoices := []domain.Invoice{invoice("inv-1", "2020-01-10", line("A", 10))}
	res := analytics.NewEngine().Analyze("cli-1", invoices, analytics.PeriodAllTime, refNow)

	if res.PeriodComparison != nil {
		t.Errorf("expected no period comparison, got %+v", res.PeriodComparison)
	}
	if !res.TotalSales.Equal(dec(10)) {
		t.Errorf("expected all history in window, got %s", res.TotalSales)
	}
	if len(res.MonthlyTrend) != 12 {
		t.Errorf("expected 12 trend points, got %d", len(res.MonthlyTrend))
	}
	if res.MonthlyTrend[11].Month != "2024-06" || res.MonthlyTrend[0].Month != "2023-07" {
		t.Errorf("unexpected trend range %s..%s", res.MonthlyTrend[0].Month, res.MonthlyTrend[11].Month)
	}
}

func TestAnalyze_RestPseudoProduct(t *testing.T) {
	inv := invoice("inv-1", "2024-06-10", line("A", 100))
	inv.RestAmount = dec(50)
	inv.RestCommission = dec(5)
	inv.TotalAmount = dec(150)

	res := analytics.NewEngine().Analyze("cli-1", []domain.Invoice{inv}, analytics.PeriodOneMonth, refNow)

	rest := findProduct(t, res.Products, domain.RestProductName)
	if !rest.TotalSales.Equal(dec(50)) {
		t.Errorf("expected rest sales 50, got %s", rest.TotalSales)
	}
	if rest.SharePct != 33.33 {
		t.Errorf("expected rest share 33.33, got %v", rest.SharePct)
	}
	if !res.TotalSales.Equal(dec(150)) {
		t.Errorf("expected client total 150, got %s", res.TotalSales)
	}
}

func TestAnalyze_ShareOfInvoiceTotals(t *testing.T) {
	// The invoice total carries 100 of sales without product lines.
	inv := invoice("inv-1", "2024-06-10", line("A", 60), line("B", 40))
	inv.TotalAmount = dec(200)

	res := analytics.NewEngine().Analyze("cli-1", []domain.Invoice{inv}, analytics.PeriodOneMonth, refNow)

	if a := findProduct(t, res.Products, "A"); a.SharePct != 30 {
		t.Errorf("expected A share 30 of the client total, got %v", a.SharePct)
	}
	if b := findProduct(t, res.Products, "B"); b.SharePct != 20 {
		t.Errorf("expected B share 20 of the client total, got %v", b.SharePct)
	}
}

func TestAnalyze_EmptyInvoiceCountsTowardsTotals(t *testing.T) {
	inv := invoice("inv-1", "2024-06-10")
	inv.TotalAmount = dec(80)

	res := analytics.NewEngine().Analyze("cli-1", []domain.Invoice{inv}, analytics.PeriodOneMonth, refNow)

	if res.InvoiceCount != 1 || !res.TotalSales.Equal(dec(80)) {
		t.Errorf("expected one invoice of 80, got %d / %s", res.InvoiceCount, res.TotalSales)
	}
	if len(res.Products) != 0 {
		t.Errorf("expected no products, got %v", names(res.Products))
	}
}

func TestAnalyze_SkipsInvalidInvoices(t *testing.T) {
	noDate := domain.Invoice{ID: "inv-b", ClientID: "cli-1", Products: []domain.LineItem{line("A", 10)}}
	other := invoice("inv-a", "2024-06-01", line("A", 10))
	other.ClientID = "cli-2"
	valid := invoice("inv-c", "2024-06-02", line("A", 10))

	res := analytics.NewEngine().Analyze("cli-1", []domain.Invoice{noDate, other, valid}, analytics.PeriodOneMonth, refNow)

	if res.InvoiceCount != 1 {
		t.Errorf("expected 1 valid invoice, got %d", res.InvoiceCount)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("expected 2 skipped, got %v", res.Skipped)
	}
	if res.Skipped[0].InvoiceID != "inv-a" || res.Skipped[1].InvoiceID != "inv-b" {
		t.Errorf("expected skipped sorted by id, got %v", res.Skipped)
	}
	if res.Skipped[1].Reason != "missing invoice_date" {
		t.Errorf("unexpected reason %q", res.Skipped[1].Reason)
	}
}

func TestAnalyze_KeyByProductID(t *testing.T) {
	a := domain.LineItem{ProductID: "p1", ProductName: "Amoxil", Amount: dec(10)}
	b := domain.LineItem{ProductID: "p1", ProductName: "AMOXIL 500", Amount: dec(20)}
	invoices := []domain.Invoice{invoice("inv-1", "2024-06-01", a, b)}

	byName := analytics.NewEngine().Analyze("cli-1", invoices, analytics.PeriodOneMonth, refNow)
	if len(byName.Products) != 2 {
		t.Errorf("expected 2 products by name, got %d", len(byName.Products))
	}

	byID := analytics.NewEngine(analytics.WithProductKey(analytics.KeyByProductID)).
		Analyze("cli-1", invoices, analytics.PeriodOneMonth, refNow)
	if len(byID.Products) != 1 {
		t.Fatalf("expected 1 product by id, got %d", len(byID.Products))
	}
	if byID.Products[0].Name != "AMOXIL 500" || !byID.Products[0].TotalSales.Equal(dec(30)) {
		t.Errorf("unexpected merged product %+v", byID.Products[0])
	}
}

func TestAnalyze_TopProductsCapped(t *testing.T) {
	lines := []domain.LineItem{
		line("P1", 70), line("P2", 60), line("P3", 50), line("P4", 40),
		line("P5", 30), line("P6", 20), line("P7", 10),
	}
	res := analytics.NewEngine().Analyze("cli-1", []domain.Invoice{invoice("inv-1", "2024-06-01", lines...)}, analytics.PeriodOneMonth, refNow)

	if len(res.TopProducts) != 5 {
		t.Fatalf("expected 5 top products, got %d", len(res.TopProducts))
	}
	if res.TopProducts[0].Name != "P1" || res.TopProducts[4].Name != "P5" {
		t.Errorf("unexpected top products %v", names(res.TopProducts))
	}
}

func TestClassifyStatus(t *testing.T) {
	th := analytics.DefaultThresholds()
	tests := []struct {
		name    string
		days    int
		growth  float64
		stopped int
		want    domain.ClientStatus
	}{
		{"inactive beats growth", 61, 50, 0, domain.StatusInactive},
		{"exactly 60 days is not inactive", 60, 0, 0, domain.StatusStable},
		{"steep drop", 5, -25, 0, domain.StatusAtRisk},
		{"two stopped products", 5, 30, 2, domain.StatusAtRisk},
		{"mild drop", 5, -10, 1, domain.StatusDeclining},
		{"growth", 5, 20, 0, domain.StatusGrowing},
		{"boundary -5 is stable", 5, -5, 0, domain.StatusStable},
		{"boundary 15 is stable", 5, 15, 0, domain.StatusStable},
	}
	for _, tt := range tests {
		if got := analytics.ClassifyStatus(tt.days, tt.growth, tt.stopped, th); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestWithThresholds(t *testing.T) {
	th := analytics.DefaultThresholds()
	th.TopProducts = 1
	engine := analytics.NewEngine(analytics.WithThresholds(th))

	if engine.Thresholds().TopProducts != 1 {
		t.Fatal("expected custom thresholds")
	}
	res := engine.Analyze("cli-1", []domain.Invoice{invoice("inv-1", "2024-06-01", line("A", 1), line("B", 2))}, analytics.PeriodOneMonth, refNow)
	if len(res.TopProducts) != 1 || res.TopProducts[0].Name != "B" {
		t.Errorf("unexpected top products %v", names(res.TopProducts))
	}
}
