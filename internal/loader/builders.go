package loader

import (
	"strings"
	"time"

	"valet-reconciliation-service/internal/models"
	"valet-reconciliation-service/internal/normalizer"
	"valet-reconciliation-service/pkg/errors"
	"valet-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// BuildSalesRecords turns mapped sales rows into typed records. A row
// is never dropped for a bad cell: an unparseable price degrades to
// zero and an unparseable date to absent, each counted in the stats.
// Only the plate is carried verbatim; normalization happens at match
// time so the original spelling survives for reporting.
func BuildSalesRecords(rows []RawRow, source string) ([]*models.SalesRecord, *Stats) {
	stats := &Stats{Rows: len(rows)}
	log := logger.WithComponent("loader").WithField("source", source)

	records := make([]*models.SalesRecord, 0, len(rows))
	for i, row := range rows {
		rec := &models.SalesRecord{
			Plate:    row.Get(FieldPlate),
			Brand:    row.Get(FieldBrand),
			Driver:   row.Get(FieldDriver),
			Campaign: row.Get(FieldCampaign),
		}
		rec.BookingPrice = buildPrice(row, FieldBookingPrice, source, i, stats)
		rec.CheckIn = buildDate(row, FieldCheckIn, source, i, stats)
		rec.CheckOut = buildDate(row, FieldCheckOut, source, i, stats)
		records = append(records, rec)
		stats.Built++
	}

	log.WithField("stats", stats.String()).Info("sales export loaded")
	return records, stats
}

// BuildDeliveryRecords turns mapped delivery rows into typed records.
// The campaign and online payment flags are tri-state: an empty or
// unrecognized cell stays unstated rather than defaulting to false.
func BuildDeliveryRecords(rows []RawRow, source string) ([]*models.DeliveryRecord, *Stats) {
	stats := &Stats{Rows: len(rows)}
	log := logger.WithComponent("loader").WithField("source", source)

	records := make([]*models.DeliveryRecord, 0, len(rows))
	for i, row := range rows {
		rec := &models.DeliveryRecord{
			Plate:    row.Get(FieldPlate),
			Brand:    row.Get(FieldBrand),
			Driver:   row.Get(FieldDriver),
			Campaign: row.Get(FieldCampaign),
		}
		rec.BookingPrice = buildPrice(row, FieldBookingPrice, source, i, stats)
		rec.CheckIn = buildDate(row, FieldCheckIn, source, i, stats)
		rec.CheckOut = buildDate(row, FieldCheckOut, source, i, stats)
		rec.CampaignPay = buildFlag(row, FieldCampaignPay)
		rec.OnlinePayment = buildFlag(row, FieldOnlinePayment)
		records = append(records, rec)
		stats.Built++
	}

	log.WithField("stats", stats.String()).Info("delivery export loaded")
	return records, stats
}

// BuildCashRecords turns mapped receipt rows into typed records. The
// payment method goes through token normalization; spellings outside
// the known token table survive as custom method tags.
func BuildCashRecords(rows []RawRow, source string) ([]*models.CashRecord, *Stats) {
	stats := &Stats{Rows: len(rows)}
	log := logger.WithComponent("loader").WithField("source", source)

	records := make([]*models.CashRecord, 0, len(rows))
	for i, row := range rows {
		rec := &models.CashRecord{
			Plate:         row.Get(FieldPlate),
			PaymentMethod: normalizer.NormalizePaymentMethod(row.Get(FieldPaymentMethod)),
			Campaign:      row.Get(FieldCampaign),
			Driver:        row.Get(FieldDriver),
			Brand:         row.Get(FieldBrand),
		}
		rec.Price = buildPrice(row, FieldPrice, source, i, stats)
		rec.ReceivedAt = buildDate(row, FieldReceivedAt, source, i, stats)
		records = append(records, rec)
		stats.Built++
	}

	log.WithField("stats", stats.String()).Info("cash export loaded")
	return records, stats
}

func buildPrice(row RawRow, field, source string, rowIdx int, stats *Stats) decimal.Decimal {
	raw := row.Get(field)
	if raw == "" {
		return decimal.Zero
	}
	price, ok := normalizer.ParsePrice(raw)
	if !ok {
		stats.AddError(errors.ParseError(errors.CodeInvalidAmount, source, rowIdx+1, field, raw))
		return decimal.Zero
	}
	return price
}

func buildDate(row RawRow, field, source string, rowIdx int, stats *Stats) *time.Time {
	raw := row.Get(field)
	if raw == "" {
		return nil
	}
	ts, ok := normalizer.ParseDate(raw)
	if !ok {
		stats.AddError(errors.ParseError(errors.CodeInvalidDate, source, rowIdx+1, field, raw))
		return nil
	}
	return &ts
}

// buildFlag parses an explicit yes/no cell into a tri-state flag.
func buildFlag(row RawRow, field string) *bool {
	switch strings.ToLower(row.Get(field)) {
	case "true", "yes", "sim", "1", "x", "y", "s":
		return models.BoolPtr(true)
	case "false", "no", "nao", "não", "0", "n":
		return models.BoolPtr(false)
	default:
		return nil
	}
}
