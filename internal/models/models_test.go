package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPaymentMethod_IsKnown(t *testing.T) {
	tests := []struct {
		method PaymentMethod
		known  bool
	}{
		{PaymentCash, true},
		{PaymentCard, true},
		{PaymentOnline, true},
		{PaymentNoPay, true},
		{PaymentMethod("voucher hotel"), false},
		{PaymentUnknown, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			if got := tt.method.IsKnown(); got != tt.known {
				t.Errorf("PaymentMethod.IsKnown() = %v, want %v", got, tt.known)
			}
		})
	}
}

func TestPaymentMethod_Category(t *testing.T) {
	if got := PaymentCard.Category(); got != PaymentCard {
		t.Errorf("Category() = %v, want %v", got, PaymentCard)
	}
	if got := PaymentMethod("voucher hotel").Category(); got != PaymentUnknown {
		t.Errorf("Category() = %v, want %v", got, PaymentUnknown)
	}
}

func TestDeliveryRecordFlagTriState(t *testing.T) {
	rec := &DeliveryRecord{Plate: "AA11AA"}
	if rec.CampaignPay != nil || rec.OnlinePayment != nil {
		t.Error("flags must default to unstated")
	}

	rec.CampaignPay = BoolPtr(false)
	if rec.CampaignPay == nil || *rec.CampaignPay {
		t.Error("explicit false must be distinguishable from unstated")
	}
}

func TestRecordJSONRoundTrip(t *testing.T) {
	checkIn := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	rec := &DeliveryRecord{
		Plate:         "AA-11-AA",
		BookingPrice:  decimal.RequireFromString("20.50"),
		Brand:         "BMW",
		OnlinePayment: BoolPtr(true),
		CheckIn:       &checkIn,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded DeliveryRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Plate != rec.Plate || !decoded.BookingPrice.Equal(rec.BookingPrice) {
		t.Errorf("round trip changed the record: %+v", decoded)
	}
	if decoded.OnlinePayment == nil || !*decoded.OnlinePayment {
		t.Error("online payment flag lost in round trip")
	}
	if decoded.CampaignPay != nil {
		t.Error("unstated flag must stay unstated after round trip")
	}
}

func TestNewBatch(t *testing.T) {
	batch := NewBatch("  2026-08  ")
	if batch.ID != "2026-08" {
		t.Errorf("ID = %q, want trimmed", batch.ID)
	}
	if batch.CreatedAt.IsZero() {
		t.Error("CreatedAt must be set")
	}
	if err := batch.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := NewBatch("").Validate(); err == nil {
		t.Error("empty id must be invalid")
	}
}

func TestBatchClose(t *testing.T) {
	batch := NewBatch("2026-08")
	if err := batch.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !batch.Closed {
		t.Error("batch not marked closed")
	}
	if err := batch.Close(); err == nil {
		t.Error("closing twice must fail")
	}
}

func TestTimePtr(t *testing.T) {
	if TimePtr(time.Time{}) != nil {
		t.Error("zero time must map to nil")
	}
	now := time.Now()
	if got := TimePtr(now); got == nil || !got.Equal(now) {
		t.Error("non-zero time must round trip")
	}
}
