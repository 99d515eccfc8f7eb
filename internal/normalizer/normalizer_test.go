package normalizer

import (
	"testing"
	"time"

	"valet-reconciliation-service/internal/models"
)

func TestNormalizePlate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase with dashes", "ab-12-cd", "AB12CD"},
		{"spaces", "ab 12 cd", "AB12CD"},
		{"mixed separators", "Ab.12/Cd", "AB12CD"},
		{"brackets and braces", "(AB)[12]{CD}", "AB12CD"},
		{"regex metacharacters", "AB+12*CD?^$|", "AB12CD"},
		{"backslash", `AB\12\CD`, "AB12CD"},
		{"already normalized", "AB12CD", "AB12CD"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"tabs and newlines", "AB\t12\nCD", "AB12CD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePlate(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizePlate(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizePlate_Idempotent(t *testing.T) {
	inputs := []string{"ab-12-cd", "XY 99 ZZ", "12.ab.CD", "", "  AB|12  "}

	for _, input := range inputs {
		once := NormalizePlate(input)
		twice := NormalizePlate(once)
		if once != twice {
			t.Errorf("NormalizePlate not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantNumber bool
		expected   string
	}{
		{"plain number", "100", true, "100"},
		{"decimal", "12.50", true, "12.5"},
		{"euro glyph", "€ 12.50", true, "12.5"},
		{"dollar glyph", "$100", true, "100"},
		{"decimal comma", "12,50", true, "12.5"},
		{"thousands separator", "1,250.00", true, "1250"},
		{"brand text", "  Mercedes  ", false, "mercedes"},
		{"mixed text", "VIP Parking", false, "vip parking"},
		{"empty", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeValue(tt.input)
			if got.IsNumber != tt.wantNumber {
				t.Fatalf("NormalizeValue(%q).IsNumber = %v, want %v", tt.input, got.IsNumber, tt.wantNumber)
			}
			if got.String() != tt.expected {
				t.Errorf("NormalizeValue(%q) = %q, want %q", tt.input, got.String(), tt.expected)
			}
		})
	}
}

func TestScalar_Equals(t *testing.T) {
	if !NormalizeValue("€ 100.00").Equals(NormalizeValue("100")) {
		t.Error("expected currency-stripped number to equal plain number")
	}
	if !NormalizeValue("Mercedes").Equals(NormalizeValue("  MERCEDES ")) {
		t.Error("expected case-insensitive text equality")
	}
	if NormalizeValue("100").Equals(NormalizeValue("onehundred")) {
		t.Error("number should not equal text")
	}
}

func TestNormalizePaymentMethod(t *testing.T) {
	tests := []struct {
		input    string
		expected models.PaymentMethod
	}{
		{"Dinheiro", models.PaymentCash},
		{"pago em dinheiro", models.PaymentCash},
		{"Cartão", models.PaymentCard},
		{"cartao de credito", models.PaymentCard},
		{"Online", models.PaymentOnline},
		{"pagamento digital", models.PaymentOnline},
		{"No Pay", models.PaymentNoPay},
		{"sem pagamento", models.PaymentNoPay},
		{"", models.PaymentUnknown},
	}

	for _, tt := range tests {
		if got := NormalizePaymentMethod(tt.input); got != tt.expected {
			t.Errorf("NormalizePaymentMethod(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizePaymentMethod_CustomTag(t *testing.T) {
	got := NormalizePaymentMethod("Voucher Hotel")
	if got != models.PaymentMethod("voucher hotel") {
		t.Errorf("expected custom tag to pass through lowercased, got %q", got)
	}
	if got.IsKnown() {
		t.Error("custom tag must not be a known method")
	}
	if got.Category() != models.PaymentUnknown {
		t.Errorf("custom tag category = %q, want unknown", got.Category())
	}
}

func TestParseDate_Serial(t *testing.T) {
	// Serial 25569 is the Unix epoch day.
	got, ok := ParseDate("25569")
	if !ok {
		t.Fatal("expected serial 25569 to parse")
	}
	if !got.Equal(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("serial 25569 = %v, want 1970-01-01T00:00:00Z", got)
	}

	// 45292 is 2024-01-01; .5 is noon.
	got, ok = ParseDate("45292.5")
	if !ok {
		t.Fatal("expected serial 45292.5 to parse")
	}
	if !got.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("serial 45292.5 = %v, want 2024-01-01T12:00:00Z", got)
	}
}

func TestParseDate_Strings(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"15-01-2024", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"15/01/2024 14:30:00", time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)},
		{"2024-01-15T10:00:00Z", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.input)
		if !ok {
			t.Errorf("ParseDate(%q) failed to parse", tt.input)
			continue
		}
		if !got.Equal(tt.expected) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseDate_Malformed(t *testing.T) {
	for _, input := range []string{"", "not a date", "-12", "0", "32/13/2024"} {
		if _, ok := ParseDate(input); ok {
			t.Errorf("ParseDate(%q) parsed, want failure", input)
		}
	}
}
