// Package normalizer canonicalizes raw record values so that records
// from the three sources become comparable: plates into match keys,
// free-text cell values into scalars, payment-method text into the
// closed enum, and spreadsheet dates into timestamps.
//
// Every function here is pure and total: malformed input degrades to a
// zero value, it never fails the batch.
package normalizer

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"valet-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// plateStripSet lists the punctuation removed from plates in addition
// to whitespace. Exports write plates as "AB-12-CD", "ab 12 cd",
// "AB.12.CD" and worse; all collapse to the same key.
const plateStripSet = `-.,/\()[]{}+*?^$|`

// NormalizePlate derives the match key for a raw plate: uppercase, then
// strip whitespace and separator punctuation. Empty or blank input
// yields ""; callers must exclude such records from matching rather
// than join them on the empty key.
//
// NormalizePlate is idempotent: applying it twice equals applying it
// once.
func NormalizePlate(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(plateStripSet, r) {
			return -1
		}
		return r
	}, upper)
}

// Scalar is a value normalized for equality comparison only; it is
// never persisted.
type Scalar struct {
	IsNumber bool
	Number   decimal.Decimal
	Text     string
}

// Equals compares two scalars: numerically when both are numbers,
// otherwise by normalized text.
func (s Scalar) Equals(other Scalar) bool {
	if s.IsNumber && other.IsNumber {
		return s.Number.Equal(other.Number)
	}
	if s.IsNumber != other.IsNumber {
		return false
	}
	return s.Text == other.Text
}

// String returns the comparable form of the scalar.
func (s Scalar) String() string {
	if s.IsNumber {
		return s.Number.String()
	}
	return s.Text
}

// NormalizeValue trims a cell value, strips currency glyphs and
// thousands separators, and yields a numeric scalar if the remainder
// parses as a number, else the lowercased text.
func NormalizeValue(v string) Scalar {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return Scalar{Text: ""}
	}

	if d, ok := ParsePrice(trimmed); ok {
		return Scalar{IsNumber: true, Number: d}
	}
	return Scalar{Text: strings.ToLower(trimmed)}
}

// ParsePrice parses a price cell, tolerating currency glyphs, grouping
// separators and a decimal comma. Returns false when the cleaned text
// is not numeric.
func ParsePrice(v string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(v)
	for _, glyph := range []string{"€", "$", "£"} {
		s = strings.ReplaceAll(s, glyph, "")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	// "12,50" style decimal comma: one comma, no dot, and not a
	// thousands group of exactly three digits.
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		if frac := s[strings.Index(s, ",")+1:]; len(frac) != 3 {
			if d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1)); err == nil {
				return d, true
			}
		}
	}
	if d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "")); err == nil {
		return d, true
	}
	return decimal.Zero, false
}

// paymentTokens maps substrings of the raw payment-method text to the
// canonical method. Matching is case-insensitive and first match wins,
// so more specific tokens come first.
var paymentTokens = []struct {
	token  string
	method models.PaymentMethod
}{
	{"dinheiro", models.PaymentCash},
	{"cartão", models.PaymentCard},
	{"cartao", models.PaymentCard},
	{"online", models.PaymentOnline},
	{"digital", models.PaymentOnline},
	{"no pay", models.PaymentNoPay},
	{"sem pagamento", models.PaymentNoPay},
}

// NormalizePaymentMethod maps raw payment-method text to the canonical
// enum by case-insensitive substring match. Unmatched text passes
// through lowercased as a custom tag (Category() == PaymentUnknown);
// a custom tag is data quality to report, not an error.
func NormalizePaymentMethod(raw string) models.PaymentMethod {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return models.PaymentUnknown
	}
	for _, entry := range paymentTokens {
		if strings.Contains(lowered, entry.token) {
			return entry.method
		}
	}
	return models.PaymentMethod(lowered)
}

// serialEpochOffsetDays is the offset between the spreadsheet serial
// epoch (1899-12-30) and the Unix epoch, in days.
const serialEpochOffsetDays = 25569

// dateLayouts are the textual date formats accepted from exports.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02-01-2006 15:04:05",
	"02-01-2006",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
}

// ParseDate parses a cell that may hold a spreadsheet serial number or
// a textual date. The serial epoch is 1899-12-30, so the Unix timestamp
// is (serial − 25569) × 86400 seconds; fractional days carry the time
// of day. Unparseable input yields (zero, false), never a panic.
func ParseDate(v string) (time.Time, bool) {
	s := strings.TrimSpace(v)
	if s == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial <= 0 {
			return time.Time{}, false
		}
		secs := (serial - serialEpochOffsetDays) * 86400
		return time.Unix(int64(secs), 0).UTC(), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
