package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createTestReport(t *testing.T) *Report {
	t.Helper()
	sales := []*models.SalesRecord{
		{Plate: "AA11AA", BookingPrice: dec("20.00"), Brand: "BMW", Driver: "ana"},
		{Plate: "BB22BB", BookingPrice: dec("30.00"), Brand: "Audi", Driver: "rui"},
	}
	deliveries := []*models.DeliveryRecord{
		{Plate: "AA11AA", BookingPrice: dec("20.00"), Brand: "BMW", Driver: "ana"},
		{Plate: "BB22BB", BookingPrice: dec("35.00"), Brand: "Audi", Driver: "rui"},
	}
	cash := []*models.CashRecord{
		{Plate: "AA11AA", Price: dec("20.00"), PaymentMethod: models.PaymentCash, Driver: "ana"},
	}
	l, err := ledger.New(models.NewBatch("report-batch"))
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	if err := l.Populate(sales, deliveries, cash); err != nil {
		t.Fatalf("Populate() error = %v", err)
	}
	return NewReport(l.Batch(), l.All())
}

func TestGenerateConsoleReport(t *testing.T) {
	rg, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := rg.GenerateReport(createTestReport(t), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"SETTLEMENT REPORT",
		"Batch: report-batch",
		"=== STATUS BREAKDOWN ===",
		"inconsistent",
		"=== SETTLEMENT ===",
		"Collected:              20.00",
		"Delivered:              1 of 2 expected (50.0%)",
		"=== BY PAYMENT METHOD ===",
		"cash",
		"=== OPEN ITEMS ===",
		"BB22BB",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console report missing %q\n%s", want, out)
		}
	}
}

func TestGenerateJSONReport(t *testing.T) {
	rg, err := NewReportGenerator(&ReportConfig{Format: FormatJSON})
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := rg.GenerateReport(createTestReport(t), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.Batch.ID != "report-batch" {
		t.Errorf("batch id = %s", decoded.Batch.ID)
	}
	// Valid records are filtered out by default; the inconsistent and
	// pending ones remain.
	if len(decoded.Records) != 2 {
		t.Errorf("records = %d, want 2", len(decoded.Records))
	}
}

func TestGenerateCSVReport(t *testing.T) {
	rg, err := NewReportGenerator(&ReportConfig{Format: FormatCSV, CSVHeaders: true, CSVDelimiter: ','})
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := rg.GenerateReport(createTestReport(t), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	// Header, two non-valid records, totals.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4\n%v", len(rows), rows)
	}
	if rows[0][0] != "Plate" {
		t.Errorf("header row = %v", rows[0])
	}
	last := rows[len(rows)-1]
	if last[0] != "TOTAL" || last[7] != "20.00" {
		t.Errorf("totals row = %v", last)
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	if _, err := NewReportGenerator(&ReportConfig{Format: "xml"}); err == nil {
		t.Error("unsupported format must be rejected")
	}
}
