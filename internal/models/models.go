// Package models defines the source record types that enter a
// reconciliation batch: the ERP sales export, the back-office delivery
// export and the cash-register receipts. Records are immutable once a
// batch has been populated; all comparison happens on normalized copies
// elsewhere.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the canonical payment method of a receipt. Values
// outside the four known methods are carried through as lowercased
// custom tags; Category collapses them to PaymentUnknown.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentOnline  PaymentMethod = "online"
	PaymentNoPay   PaymentMethod = "no-pay"
	PaymentUnknown PaymentMethod = "unknown"
)

// String returns the string representation of PaymentMethod
func (p PaymentMethod) String() string {
	return string(p)
}

// IsKnown reports whether the payment method is one of the four
// canonical methods rather than a custom tag.
func (p PaymentMethod) IsKnown() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentOnline, PaymentNoPay:
		return true
	default:
		return false
	}
}

// Category collapses custom tags to PaymentUnknown so aggregation
// buckets stay closed.
func (p PaymentMethod) Category() PaymentMethod {
	if p.IsKnown() {
		return p
	}
	return PaymentUnknown
}

// SalesRecord is one row of the ERP export: the booking as the sales
// system expects it to have happened.
type SalesRecord struct {
	Plate        string          `json:"plate"`
	BookingPrice decimal.Decimal `json:"bookingPrice"`
	Brand        string          `json:"brand"`
	Driver       string          `json:"driver,omitempty"`
	Campaign     string          `json:"campaign,omitempty"`
	CheckIn      *time.Time      `json:"checkIn,omitempty"`
	CheckOut     *time.Time      `json:"checkOut,omitempty"`
}

// PlateValue returns the raw plate string used as the join key.
func (s *SalesRecord) PlateValue() string { return s.Plate }

// String returns a string representation of the SalesRecord
func (s *SalesRecord) String() string {
	return fmt.Sprintf("SalesRecord{Plate: %s, Price: %s, Brand: %s}",
		s.Plate, s.BookingPrice.StringFixed(2), s.Brand)
}

// DeliveryRecord is one row of the back-office export. It is the
// source-of-truth record for campaign and online-payment corroboration,
// so the two flags are tri-state: nil means the export did not state
// them, which is not the same as false.
type DeliveryRecord struct {
	Plate         string          `json:"plate"`
	BookingPrice  decimal.Decimal `json:"bookingPrice"`
	Brand         string          `json:"brand"`
	Driver        string          `json:"driver,omitempty"`
	Campaign      string          `json:"campaign,omitempty"`
	CampaignPay   *bool           `json:"campaignPay,omitempty"`
	OnlinePayment *bool           `json:"onlinePayment,omitempty"`
	CheckIn       *time.Time      `json:"checkIn,omitempty"`
	CheckOut      *time.Time      `json:"checkOut,omitempty"`
}

// PlateValue returns the raw plate string used as the join key.
func (d *DeliveryRecord) PlateValue() string { return d.Plate }

// String returns a string representation of the DeliveryRecord
func (d *DeliveryRecord) String() string {
	return fmt.Sprintf("DeliveryRecord{Plate: %s, Price: %s, Brand: %s, Driver: %s}",
		d.Plate, d.BookingPrice.StringFixed(2), d.Brand, d.Driver)
}

// CashRecord is one cash-register receipt: what was actually collected
// on delivery.
type CashRecord struct {
	Plate         string          `json:"plate"`
	Price         decimal.Decimal `json:"price"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Campaign      string          `json:"campaign,omitempty"`
	Driver        string          `json:"driver,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	ReceivedAt    *time.Time      `json:"receivedAt,omitempty"`
}

// PlateValue returns the raw plate string used as the join key.
func (c *CashRecord) PlateValue() string { return c.Plate }

// String returns a string representation of the CashRecord
func (c *CashRecord) String() string {
	return fmt.Sprintf("CashRecord{Plate: %s, Price: %s, Method: %s}",
		c.Plate, c.Price.StringFixed(2), c.PaymentMethod)
}

// Batch groups one import run. All reconciliation operates within one
// batch; a batch becomes immutable once closed.
type Batch struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	SalesCount    int       `json:"salesCount"`
	DeliveryCount int       `json:"deliveryCount"`
	CashCount     int       `json:"cashCount"`
	Closed        bool      `json:"closed"`
}

// NewBatch creates an open batch with the given opaque identifier.
func NewBatch(id string) *Batch {
	return &Batch{
		ID:        strings.TrimSpace(id),
		CreatedAt: time.Now().UTC(),
	}
}

// Validate performs basic validation on the Batch
func (b *Batch) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("batch id cannot be empty")
	}
	if b.CreatedAt.IsZero() {
		return fmt.Errorf("batch creation time cannot be zero")
	}
	return nil
}

// Close marks the batch immutable. Closing twice is an error so callers
// notice double exports.
func (b *Batch) Close() error {
	if b.Closed {
		return fmt.Errorf("batch %s is already closed", b.ID)
	}
	b.Closed = true
	return nil
}

// BoolPtr returns a pointer to b. The loader and tests use it to
// express the tri-state delivery flags.
func BoolPtr(b bool) *bool { return &b }

// TimePtr returns a pointer to t, or nil for the zero time.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
