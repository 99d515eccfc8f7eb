package ledger

import (
	"fmt"
	"strings"

	"valet-reconciliation-service/internal/classifier"
	"valet-reconciliation-service/internal/models"
	"valet-reconciliation-service/pkg/errors"
	"valet-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Resolution is an operator adjudication applied to a record.
// Price and Brand carry the manually supplied values and are read only
// for ResolutionManual.
type Resolution struct {
	Type  ResolutionType
	Price *decimal.Decimal
	Brand *string
	Notes string
}

// Resolve applies an operator resolution to the record under matchKey.
//
// Inconsistent records accept use_sales, use_delivery and manual: the
// chosen value is copied into both derived fields so a later comparison
// of the same record finds no difference, and the record moves to
// resolved. Missing records accept ignore, which keeps the missing
// status but marks it adjudicated, and create, which moves the record
// to resolved on the strength of the surviving side.
//
// No resolution leads out of permanent_inconsistency.
func (l *Ledger) Resolve(matchKey string, res Resolution) (*Record, error) {
	rec, err := l.mutable(matchKey)
	if err != nil {
		return nil, err
	}

	switch {
	case rec.Status == StatusInconsistent:
		if err := l.resolveInconsistent(rec, res); err != nil {
			return nil, err
		}
	case rec.Status.IsMissing():
		if err := l.resolveMissing(rec, res); err != nil {
			return nil, err
		}
	case rec.Status == StatusPermanentInconsistency:
		return nil, errors.StateError(errors.CodeInvalidTransition, matchKey,
			fmt.Sprintf("record %s is permanently inconsistent", matchKey)).
			WithSuggestion("permanent inconsistencies are escalated outside the reconciliation flow")
	default:
		return nil, errors.StateError(errors.CodeInvalidTransition, matchKey,
			fmt.Sprintf("record %s in status %s does not accept resolutions", matchKey, rec.Status))
	}

	rec.Notes = res.Notes
	rec.recompute()
	l.log.WithFields(logger.Fields{
		"match_key":  matchKey,
		"resolution": string(res.Type),
		"status":     string(rec.Status),
	}).Info("record resolved")
	l.notify(rec)
	return rec, nil
}

func (l *Ledger) resolveInconsistent(rec *Record, res Resolution) error {
	switch res.Type {
	case ResolutionUseSales:
		rec.BookingPriceDelivery = rec.BookingPriceSales
		rec.BrandDelivery = rec.BrandSales
	case ResolutionUseDelivery:
		rec.BookingPriceSales = rec.BookingPriceDelivery
		rec.BrandSales = rec.BrandDelivery
	case ResolutionManual:
		if rec.HasInconsistency(classifier.FieldBookingPrice) && res.Price == nil {
			return errors.ValidationError(errors.CodeInvalidResolution, "price", nil).
				WithSuggestion("a manual resolution of a price inconsistency must supply the price")
		}
		if rec.HasInconsistency(classifier.FieldBrand) && res.Brand == nil {
			return errors.ValidationError(errors.CodeInvalidResolution, "brand", nil).
				WithSuggestion("a manual resolution of a brand inconsistency must supply the brand")
		}
		if res.Price != nil {
			rec.BookingPriceSales = *res.Price
			rec.BookingPriceDelivery = *res.Price
		}
		if res.Brand != nil {
			brand := strings.TrimSpace(*res.Brand)
			rec.BrandSales = brand
			rec.BrandDelivery = brand
		}
	default:
		return errors.ValidationError(errors.CodeInvalidResolution, "resolution", string(res.Type)).
			WithSuggestion("inconsistent records accept use_sales, use_delivery or manual")
	}
	rec.Status = StatusResolved
	rec.Resolution = res.Type
	return nil
}

func (l *Ledger) resolveMissing(rec *Record, res Resolution) error {
	switch res.Type {
	case ResolutionIgnore:
		// Status stays missing; the resolution mark is what unblocks
		// the close gate.
		rec.Resolution = ResolutionIgnore
	case ResolutionCreate:
		rec.Status = StatusResolved
		rec.Resolution = ResolutionCreate
	default:
		return errors.ValidationError(errors.CodeInvalidResolution, "resolution", string(res.Type)).
			WithSuggestion("missing records accept ignore or create")
	}
	return nil
}

// ValidateDelivery confirms or corrects a pending receipt with the
// payment method and price observed at delivery. The corroboration
// rules are re-run against the supplied method first: a verdict other
// than clean moves the record to permanent_inconsistency regardless of
// the correction. Otherwise the record becomes validated when the
// receipt figures were confirmed unchanged, or corrected when either
// differs.
func (l *Ledger) ValidateDelivery(matchKey string, method models.PaymentMethod, price decimal.Decimal, notes string) (*Record, error) {
	rec, err := l.mutable(matchKey)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusPending {
		return nil, errors.StateError(errors.CodeInvalidTransition, matchKey,
			fmt.Sprintf("record %s in status %s is not pending validation", matchKey, rec.Status))
	}
	if rec.Cash == nil {
		return nil, errors.StateError(errors.CodeMissingCounterpart, matchKey,
			fmt.Sprintf("record %s has no receipt to validate", matchKey))
	}

	campaign := rec.Cash.Campaign
	kind := classifier.ClassifyPermanent(method, campaign, rec.Delivery)

	rec.PaymentMethod = method
	rec.PriceOnDelivery = price
	rec.Notes = notes

	switch {
	case kind != classifier.PermanentNone:
		rec.Status = StatusPermanentInconsistency
		rec.PermanentKind = kind
	case method != rec.Cash.PaymentMethod || !price.Equal(rec.Cash.Price):
		rec.Status = StatusCorrected
		rec.Resolution = ResolutionCorrected
	default:
		rec.Status = StatusValidated
		rec.Resolution = ResolutionValidated
	}

	rec.recompute()
	l.log.WithFields(logger.Fields{
		"match_key": matchKey,
		"status":    string(rec.Status),
		"method":    method.String(),
	}).Info("delivery validated")
	l.notify(rec)
	return rec, nil
}

// mutable looks up the record and enforces the closed-batch guard
// shared by every mutation.
func (l *Ledger) mutable(matchKey string) (*Record, error) {
	if l.batch.Closed {
		return nil, errors.StateError(errors.CodeBatchClosed, matchKey,
			fmt.Sprintf("batch %s is closed", l.batch.ID))
	}
	rec, ok := l.records[matchKey]
	if !ok {
		return nil, errors.StateError(errors.CodeUnknownRecord, matchKey,
			fmt.Sprintf("no record under key %s in batch %s", matchKey, l.batch.ID))
	}
	return rec, nil
}
