// Package classifier decides what kind of disagreement a record set
// carries: field-level inconsistencies between a matched sales/delivery
// pair, and permanent inconsistencies on cash receipts whose payment
// method requires corroboration by the delivery record.
package classifier

import (
	"strings"

	"valet-reconciliation-service/internal/models"
	"valet-reconciliation-service/internal/normalizer"

	"github.com/shopspring/decimal"
)

// PriceTolerance is the maximum absolute booking-price difference still
// treated as equal. Exactly 0.01 passes; anything above is flagged.
var PriceTolerance = decimal.New(1, -2)

// Field names tagged on inconsistencies.
const (
	FieldBookingPrice = "booking_price"
	FieldBrand        = "brand"
)

// FieldInconsistency records one field that differs between the matched
// pair. Both values are retained so the operator can pick a side.
type FieldInconsistency struct {
	Field         string `json:"field"`
	SalesValue    string `json:"salesValue"`
	DeliveryValue string `json:"deliveryValue"`
}

// CompareFields returns the field-level inconsistencies of a matched
// sales/delivery pair. An empty result means the pair is valid.
func CompareFields(sale *models.SalesRecord, del *models.DeliveryRecord) []FieldInconsistency {
	var diffs []FieldInconsistency

	if sale.BookingPrice.Sub(del.BookingPrice).Abs().GreaterThan(PriceTolerance) {
		diffs = append(diffs, FieldInconsistency{
			Field:         FieldBookingPrice,
			SalesValue:    sale.BookingPrice.StringFixed(2),
			DeliveryValue: del.BookingPrice.StringFixed(2),
		})
	}

	if !normalizer.NormalizeValue(sale.Brand).Equals(normalizer.NormalizeValue(del.Brand)) {
		diffs = append(diffs, FieldInconsistency{
			Field:         FieldBrand,
			SalesValue:    sale.Brand,
			DeliveryValue: del.Brand,
		})
	}

	return diffs
}

// PermanentKind tags a discrepancy that business rules forbid resolving
// by source preference: the counterpart record must corroborate the
// payment method, and it does not.
type PermanentKind string

const (
	// PermanentNone means the record passed corroboration.
	PermanentNone PermanentKind = ""

	// KindCampaignMismatch: a no-pay receipt whose campaign differs
	// from the delivery record's campaign.
	KindCampaignMismatch PermanentKind = "campaign_mismatch"

	// KindNoPayWithoutCampaignFlag: a no-pay receipt whose delivery
	// record does not explicitly clear the campaign-pay flag.
	KindNoPayWithoutCampaignFlag PermanentKind = "no_pay_without_campaign_flag"

	// KindOnlineWithoutFlag: an online receipt whose delivery record
	// does not explicitly set the online-payment flag.
	KindOnlineWithoutFlag PermanentKind = "online_without_flag"
)

// String returns the string representation of PermanentKind
func (k PermanentKind) String() string { return string(k) }

// ClassifyPermanent evaluates the permanent-inconsistency rules for a
// receipt with the given payment method and campaign, against its
// delivery cross-reference. Rules are evaluated in a fixed order and
// the first match wins.
//
// An absent cross-reference fails corroboration: the rules that need a
// flag cannot be satisfied by a record that does not exist, so no-pay
// and online receipts without a delivery counterpart are flagged
// rather than silently passed.
func ClassifyPermanent(method models.PaymentMethod, campaign string, crossRef *models.DeliveryRecord) PermanentKind {
	switch method {
	case models.PaymentNoPay:
		if crossRef != nil && !strings.EqualFold(strings.TrimSpace(campaign), strings.TrimSpace(crossRef.Campaign)) {
			return KindCampaignMismatch
		}
		if crossRef == nil || crossRef.CampaignPay == nil || *crossRef.CampaignPay {
			return KindNoPayWithoutCampaignFlag
		}
	case models.PaymentOnline:
		if crossRef == nil || crossRef.OnlinePayment == nil || !*crossRef.OnlinePayment {
			return KindOnlineWithoutFlag
		}
	}
	return PermanentNone
}
