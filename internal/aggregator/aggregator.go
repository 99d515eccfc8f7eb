// Package aggregator computes the settlement figures of a batch from
// its reconciliation records. Everything here is a pure function of the
// record slice: aggregates are recomputed on demand and never cached,
// so a second call after further resolutions reflects the new state.
package aggregator

import (
	"sort"

	"valet-reconciliation-service/internal/ledger"

	"github.com/shopspring/decimal"
)

// MethodTotals accumulates receipts under one payment method.
type MethodTotals struct {
	Method    string          `json:"method"`
	Count     int             `json:"count"`
	Collected decimal.Decimal `json:"collected"`
}

// GroupTotals accumulates records under one brand or driver, with a
// per-method breakdown of what was collected.
type GroupTotals struct {
	Name      string          `json:"name"`
	Count     int             `json:"count"`
	Expected  decimal.Decimal `json:"expected"`
	Collected decimal.Decimal `json:"collected"`
	ByMethod  []MethodTotals  `json:"byMethod,omitempty"`
}

// Summary is the full aggregate view of a batch.
type Summary struct {
	Records      int                   `json:"records"`
	StatusCounts map[ledger.Status]int `json:"statusCounts"`

	// ExpectedERP sums the booking prices the sales export promised,
	// ExpectedBackOffice the ones the delivery export settled on, and
	// Collected what the receipts actually brought in.
	ExpectedERP        decimal.Decimal `json:"expectedERP"`
	ExpectedBackOffice decimal.Decimal `json:"expectedBackOffice"`
	Collected          decimal.Decimal `json:"collected"`

	// CollectionRate is Collected over ExpectedBackOffice, zero when
	// nothing was expected.
	CollectionRate decimal.Decimal `json:"collectionRate"`

	// ExpectedCount counts the records either export announced,
	// DeliveredCount those that ended with a receipt attached.
	// DeliveryRate is DeliveredCount over ExpectedCount, zero when the
	// exports announced nothing.
	ExpectedCount  int             `json:"expectedCount"`
	DeliveredCount int             `json:"deliveredCount"`
	DeliveryRate   decimal.Decimal `json:"deliveryRate"`

	ByPaymentMethod []MethodTotals `json:"byPaymentMethod"`
	ByBrand         []GroupTotals  `json:"byBrand"`
	ByDriver        []GroupTotals  `json:"byDriver"`
}

// Compute builds the aggregate summary for the records. The input is
// not mutated and group orderings are alphabetical, so repeated calls
// over the same state yield identical summaries.
func Compute(records []*ledger.Record) *Summary {
	s := &Summary{
		Records:      len(records),
		StatusCounts: make(map[ledger.Status]int),
	}
	methods := make(map[string]*MethodTotals)
	brands := make(map[string]*GroupTotals)
	drivers := make(map[string]*GroupTotals)
	driverMethods := make(map[string]map[string]*MethodTotals)

	for _, rec := range records {
		s.StatusCounts[rec.Status]++

		if rec.Sales != nil || rec.Delivery != nil {
			s.ExpectedCount++
		}
		if rec.Cash != nil {
			s.DeliveredCount++
		}
		if rec.Sales != nil {
			s.ExpectedERP = s.ExpectedERP.Add(rec.BookingPriceSales)
		}
		if rec.Delivery != nil {
			s.ExpectedBackOffice = s.ExpectedBackOffice.Add(rec.BookingPriceDelivery)
		}
		if rec.Cash == nil {
			accumulateGroup(brands, brandOf(rec), rec.BookingPrice(), decimal.Zero, false)
			accumulateGroup(drivers, driverOf(rec), rec.BookingPrice(), decimal.Zero, false)
			continue
		}

		s.Collected = s.Collected.Add(rec.PriceOnDelivery)
		method := rec.PaymentMethod.String()
		accumulateMethod(methods, method, rec.PriceOnDelivery)
		accumulateGroup(brands, brandOf(rec), rec.BookingPrice(), rec.PriceOnDelivery, true)
		accumulateGroup(drivers, driverOf(rec), rec.BookingPrice(), rec.PriceOnDelivery, true)

		driver := driverOf(rec)
		if driverMethods[driver] == nil {
			driverMethods[driver] = make(map[string]*MethodTotals)
		}
		accumulateMethod(driverMethods[driver], method, rec.PriceOnDelivery)
	}

	if s.ExpectedBackOffice.IsPositive() {
		s.CollectionRate = s.Collected.DivRound(s.ExpectedBackOffice, 4)
	}
	if s.ExpectedCount > 0 {
		s.DeliveryRate = decimal.NewFromInt(int64(s.DeliveredCount)).
			DivRound(decimal.NewFromInt(int64(s.ExpectedCount)), 4)
	}

	s.ByPaymentMethod = sortedMethods(methods)
	s.ByBrand = sortedGroups(brands)
	s.ByDriver = sortedGroups(drivers)
	for i := range s.ByDriver {
		s.ByDriver[i].ByMethod = sortedMethods(driverMethods[s.ByDriver[i].Name])
	}
	return s
}

// brandOf prefers the adjudicated delivery-side brand, falling back to
// the sales side and finally the receipt.
func brandOf(rec *ledger.Record) string {
	switch {
	case rec.BrandDelivery != "":
		return rec.BrandDelivery
	case rec.BrandSales != "":
		return rec.BrandSales
	case rec.Cash != nil:
		return rec.Cash.Brand
	default:
		return ""
	}
}

func driverOf(rec *ledger.Record) string {
	switch {
	case rec.Delivery != nil && rec.Delivery.Driver != "":
		return rec.Delivery.Driver
	case rec.Sales != nil && rec.Sales.Driver != "":
		return rec.Sales.Driver
	case rec.Cash != nil:
		return rec.Cash.Driver
	default:
		return ""
	}
}

func accumulateMethod(m map[string]*MethodTotals, method string, amount decimal.Decimal) {
	t := m[method]
	if t == nil {
		t = &MethodTotals{Method: method}
		m[method] = t
	}
	t.Count++
	t.Collected = t.Collected.Add(amount)
}

func accumulateGroup(m map[string]*GroupTotals, name string, expected, collected decimal.Decimal, received bool) {
	t := m[name]
	if t == nil {
		t = &GroupTotals{Name: name}
		m[name] = t
	}
	t.Count++
	t.Expected = t.Expected.Add(expected)
	if received {
		t.Collected = t.Collected.Add(collected)
	}
}

func sortedMethods(m map[string]*MethodTotals) []MethodTotals {
	out := make([]MethodTotals, 0, len(m))
	for _, t := range m {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

func sortedGroups(m map[string]*GroupTotals) []GroupTotals {
	out := make([]GroupTotals, 0, len(m))
	for _, t := range m {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
