// Package loader turns the raw export files of the valet operation
// into typed records. It handles the messiness of real exports: header
// names that differ per system and language, currency-formatted
// prices, spreadsheet serial dates, and half-filled rows.
//
// A Table is the raw grid read from a file (CSV or XLSX). A Mapping is
// a data-driven table of header aliases that projects the grid into
// RawRows keyed by canonical field name, so supporting a new export
// layout means adding aliases, not code. Builders then produce the
// typed records, degrading gracefully on bad cells instead of
// rejecting whole rows.
package loader

import (
	"fmt"
	"strings"

	"valet-reconciliation-service/pkg/errors"
	"valet-reconciliation-service/pkg/logger"
)

// Canonical field names shared by the mappings, the raw rows and the
// record store.
const (
	FieldPlate         = "plate"
	FieldBookingPrice  = "booking_price"
	FieldBrand         = "brand"
	FieldDriver        = "driver"
	FieldCampaign      = "campaign"
	FieldCheckIn       = "check_in"
	FieldCheckOut      = "check_out"
	FieldCampaignPay   = "campaign_pay"
	FieldOnlinePayment = "online_payment"
	FieldPrice         = "price"
	FieldPaymentMethod = "payment_method"
	FieldReceivedAt    = "received_at"
)

// RawRow is one export row projected onto canonical field names.
// Absent and unmapped cells are simply not present in the map.
type RawRow map[string]string

// Get returns the trimmed cell value for a canonical field.
func (r RawRow) Get(field string) string {
	return strings.TrimSpace(r[field])
}

// Table is the raw grid read from an export file before any field
// mapping is applied.
type Table struct {
	Source  string
	Headers []string
	Rows    [][]string
}

// FieldMapping binds one canonical field to the header spellings the
// source systems use for it. Alias matching is case-insensitive on
// trimmed headers.
type FieldMapping struct {
	Field    string
	Aliases  []string
	Required bool
}

// Mapping is the full alias table for one export kind.
type Mapping []FieldMapping

// SalesMapping maps the ERP sales export. The ERP ships Portuguese
// headers; English aliases cover re-exports from spreadsheets.
func SalesMapping() Mapping {
	return Mapping{
		{Field: FieldPlate, Aliases: []string{"matricula", "matrícula", "plate", "license plate", "licenseplate"}, Required: true},
		{Field: FieldBookingPrice, Aliases: []string{"booking price", "bookingprice", "preco", "preço", "valor"}},
		{Field: FieldBrand, Aliases: []string{"marca", "brand", "car brand", "carbrand"}},
		{Field: FieldDriver, Aliases: []string{"condutor", "motorista", "driver"}},
		{Field: FieldCampaign, Aliases: []string{"campanha", "campaign"}},
		{Field: FieldCheckIn, Aliases: []string{"entrada", "check in", "checkin", "check-in"}},
		{Field: FieldCheckOut, Aliases: []string{"saida", "saída", "check out", "checkout", "check-out"}},
	}
}

// DeliveryMapping maps the back-office delivery export, which adds the
// campaign and online payment flags.
func DeliveryMapping() Mapping {
	return append(SalesMapping(),
		FieldMapping{Field: FieldCampaignPay, Aliases: []string{"campanha paga", "campaign pay", "campaignpay", "pago por campanha"}},
		FieldMapping{Field: FieldOnlinePayment, Aliases: []string{"pagamento online", "online payment", "onlinepayment", "pago online"}},
	)
}

// CashMapping maps the cash receipt export.
func CashMapping() Mapping {
	return Mapping{
		{Field: FieldPlate, Aliases: []string{"matricula", "matrícula", "plate", "license plate", "licenseplate"}, Required: true},
		{Field: FieldPrice, Aliases: []string{"preco", "preço", "price", "valor", "amount"}},
		{Field: FieldPaymentMethod, Aliases: []string{"forma de pagamento", "metodo de pagamento", "método de pagamento", "payment method", "paymentmethod", "pagamento"}},
		{Field: FieldCampaign, Aliases: []string{"campanha", "campaign"}},
		{Field: FieldDriver, Aliases: []string{"condutor", "motorista", "driver"}},
		{Field: FieldBrand, Aliases: []string{"marca", "brand"}},
		{Field: FieldReceivedAt, Aliases: []string{"data", "date", "received at", "receivedat", "recebido em"}},
	}
}

// Resolve matches the table headers against the alias table and
// returns the canonical field to column index projection. A required
// field without a matching header is an error; optional fields are
// simply left out.
func (m Mapping) Resolve(headers []string) (map[string]int, error) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	columns := make(map[string]int, len(m))
	var missing []string
	for _, fm := range m {
		idx := -1
		for _, alias := range fm.Aliases {
			for i, h := range normalized {
				if h == alias {
					idx = i
					break
				}
			}
			if idx >= 0 {
				break
			}
		}
		if idx >= 0 {
			columns[fm.Field] = idx
		} else if fm.Required {
			missing = append(missing, fm.Field)
		}
	}
	if len(missing) > 0 {
		return nil, errors.New(errors.CategoryParse, errors.CodeMissingColumn,
			fmt.Sprintf("no header matches required field(s) %s", strings.Join(missing, ", "))).
			WithContext("headers", headers).
			WithSuggestion("check the export layout or extend the field mapping aliases")
	}
	return columns, nil
}

// Apply projects the table rows into RawRows. Rows whose cells are all
// empty are skipped; short rows contribute the cells they have.
func (m Mapping) Apply(t *Table) ([]RawRow, error) {
	columns, err := m.Resolve(t.Headers)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("loader").WithField("source", t.Source)
	rows := make([]RawRow, 0, len(t.Rows))
	skipped := 0
	for _, cells := range t.Rows {
		if isEmptyRow(cells) {
			skipped++
			continue
		}
		row := make(RawRow, len(columns))
		for field, idx := range columns {
			if idx < len(cells) {
				row[field] = cells[idx]
			}
		}
		rows = append(rows, row)
	}
	if skipped > 0 {
		log.WithField("empty_rows", skipped).Debug("skipped empty rows")
	}
	return rows, nil
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Stats summarizes one build pass over an export.
type Stats struct {
	Rows     int
	Built    int
	Degraded int
	Errors   []*errors.ReconError
}

// AddError records a degradation with its cause.
func (s *Stats) AddError(err *errors.ReconError) {
	s.Errors = append(s.Errors, err)
	s.Degraded++
}

// String returns a one-line summary for logging.
func (s *Stats) String() string {
	return fmt.Sprintf("built %d of %d rows (%d degraded)", s.Built, s.Rows, s.Degraded)
}
