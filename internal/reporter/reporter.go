// Package reporter renders the settlement report of a batch in the
// formats the back office consumes: a console summary for operators, a
// JSON document for downstream systems, and a CSV export for the
// accounting spreadsheet.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"valet-reconciliation-service/internal/aggregator"
	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeValidRecords bool `json:"include_valid_records"`
	IncludeOpenItems    bool `json:"include_open_items"`
	IncludeBreakdowns   bool `json:"include_breakdowns"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:              FormatConsole,
		IncludeValidRecords: false,
		IncludeOpenItems:    true,
		IncludeBreakdowns:   true,
		CSVDelimiter:        ',',
		CSVHeaders:          true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// Report bundles what the generator renders.
type Report struct {
	Batch       *models.Batch       `json:"batch"`
	Summary     *aggregator.Summary `json:"summary"`
	Records     []*ledger.Record    `json:"records,omitempty"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// NewReport assembles a report for the batch from its current records.
func NewReport(batch *models.Batch, records []*ledger.Record) *Report {
	return &Report{
		Batch:       batch,
		Summary:     aggregator.Compute(records),
		Records:     records,
		GeneratedAt: time.Now().UTC(),
	}
}

// ReportGenerator renders settlement reports in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the report to the writer.
func (rg *ReportGenerator) GenerateReport(report *Report, writer io.Writer) error {
	if report == nil || report.Batch == nil {
		return fmt.Errorf("report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report *Report, writer io.Writer) error {
	batch := report.Batch
	summary := report.Summary

	fmt.Fprintf(writer, "SETTLEMENT REPORT\n")
	fmt.Fprintf(writer, "Batch: %s\n", batch.ID)
	fmt.Fprintf(writer, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	status := "open"
	if batch.Closed {
		status = "closed"
	}
	fmt.Fprintf(writer, "Status: %s\n\n", status)

	fmt.Fprintf(writer, "=== RECORDS ===\n")
	fmt.Fprintf(writer, "  Sales rows:    %d\n", batch.SalesCount)
	fmt.Fprintf(writer, "  Delivery rows: %d\n", batch.DeliveryCount)
	fmt.Fprintf(writer, "  Receipts:      %d\n", batch.CashCount)
	fmt.Fprintf(writer, "  Reconciled:    %d\n\n", summary.Records)

	fmt.Fprintf(writer, "=== STATUS BREAKDOWN ===\n")
	for _, st := range []ledger.Status{
		ledger.StatusValid, ledger.StatusInconsistent,
		ledger.StatusMissingInSales, ledger.StatusMissingInDelivery,
		ledger.StatusPermanentInconsistency, ledger.StatusPending,
		ledger.StatusResolved, ledger.StatusValidated, ledger.StatusCorrected,
	} {
		if n := summary.StatusCounts[st]; n > 0 {
			fmt.Fprintf(writer, "  %-24s %d\n", st, n)
		}
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SETTLEMENT ===\n")
	fmt.Fprintf(writer, "  Expected (ERP):         %s\n", summary.ExpectedERP.StringFixed(2))
	fmt.Fprintf(writer, "  Expected (back office): %s\n", summary.ExpectedBackOffice.StringFixed(2))
	fmt.Fprintf(writer, "  Collected:              %s\n", summary.Collected.StringFixed(2))
	fmt.Fprintf(writer, "  Collection rate:        %s\n", summary.CollectionRate.Mul(hundred).StringFixed(1)+"%")
	fmt.Fprintf(writer, "  Delivered:              %d of %d expected (%s)\n\n",
		summary.DeliveredCount, summary.ExpectedCount, summary.DeliveryRate.Mul(hundred).StringFixed(1)+"%")

	if rg.config.IncludeBreakdowns {
		rg.printBreakdowns(summary, writer)
	}
	if rg.config.IncludeOpenItems {
		rg.printOpenItems(report.Records, writer)
	}
	return nil
}

func (rg *ReportGenerator) printBreakdowns(summary *aggregator.Summary, writer io.Writer) {
	if len(summary.ByPaymentMethod) > 0 {
		fmt.Fprintf(writer, "=== BY PAYMENT METHOD ===\n")
		for _, m := range summary.ByPaymentMethod {
			fmt.Fprintf(writer, "  %-16s %4d receipts  %s\n", m.Method, m.Count, m.Collected.StringFixed(2))
		}
		fmt.Fprintf(writer, "\n")
	}
	if len(summary.ByBrand) > 0 {
		fmt.Fprintf(writer, "=== BY BRAND ===\n")
		for _, g := range summary.ByBrand {
			fmt.Fprintf(writer, "  %-16s %4d records   expected %s  collected %s\n",
				g.Name, g.Count, g.Expected.StringFixed(2), g.Collected.StringFixed(2))
		}
		fmt.Fprintf(writer, "\n")
	}
	if len(summary.ByDriver) > 0 {
		fmt.Fprintf(writer, "=== BY DRIVER ===\n")
		for _, g := range summary.ByDriver {
			fmt.Fprintf(writer, "  %-16s %4d records   collected %s\n",
				g.Name, g.Count, g.Collected.StringFixed(2))
			for _, m := range g.ByMethod {
				fmt.Fprintf(writer, "    %-14s %4d receipts  %s\n", m.Method, m.Count, m.Collected.StringFixed(2))
			}
		}
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) printOpenItems(records []*ledger.Record, writer io.Writer) {
	var open []*ledger.Record
	for _, rec := range records {
		switch {
		case rec.Status == ledger.StatusInconsistent,
			rec.Status == ledger.StatusPermanentInconsistency,
			rec.Status == ledger.StatusPending,
			rec.Status.IsMissing() && rec.Resolution == ledger.ResolutionNone:
			open = append(open, rec)
		}
	}
	if len(open) == 0 {
		return
	}

	fmt.Fprintf(writer, "=== OPEN ITEMS ===\n")
	for _, rec := range open {
		detail := string(rec.Status)
		if rec.PermanentKind != "" {
			detail += " (" + string(rec.PermanentKind) + ")"
		}
		for _, inc := range rec.Inconsistencies {
			detail += fmt.Sprintf(" %s: %s vs %s;", inc.Field, inc.SalesValue, inc.DeliveryValue)
		}
		fmt.Fprintf(writer, "  %-12s %s\n", rec.Plate, detail)
	}
	fmt.Fprintf(writer, "\n")
}

func (rg *ReportGenerator) generateJSONReport(report *Report, writer io.Writer) error {
	out := *report
	if !rg.config.IncludeValidRecords {
		out.Records = filterRecords(report.Records)
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&out)
}

// filterRecords drops records whose lifecycle needs no attention from
// the JSON payload.
func filterRecords(records []*ledger.Record) []*ledger.Record {
	var out []*ledger.Record
	for _, rec := range records {
		if rec.Status == ledger.StatusValid || rec.Status.IsTerminal() {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (rg *ReportGenerator) generateCSVReport(report *Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Plate",
			"Match_Key",
			"Status",
			"Resolution",
			"Payment_Method",
			"Booking_Price_Sales",
			"Booking_Price_Delivery",
			"Price_On_Delivery",
			"Price_Difference",
			"Permanent_Kind",
			"Notes",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, rec := range report.Records {
		if !rg.config.IncludeValidRecords && rec.Status == ledger.StatusValid {
			continue
		}
		row := []string{
			rec.Plate,
			rec.MatchKey,
			string(rec.Status),
			string(rec.Resolution),
			rec.PaymentMethod.String(),
			rec.BookingPriceSales.StringFixed(2),
			rec.BookingPriceDelivery.StringFixed(2),
			rec.PriceOnDelivery.StringFixed(2),
			rec.PriceDifference.StringFixed(2),
			string(rec.PermanentKind),
			rec.Notes,
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write record row: %w", err)
		}
	}

	if err := csvWriter.Write([]string{
		"TOTAL", "", "", "", "",
		report.Summary.ExpectedERP.StringFixed(2),
		report.Summary.ExpectedBackOffice.StringFixed(2),
		report.Summary.Collected.StringFixed(2),
		report.Summary.Collected.Sub(report.Summary.ExpectedBackOffice).StringFixed(2),
		"", "",
	}); err != nil {
		return fmt.Errorf("failed to write totals row: %w", err)
	}
	return nil
}
