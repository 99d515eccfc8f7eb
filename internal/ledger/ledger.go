// Package ledger owns the adjudicated reconciliation records of one
// batch: their lifecycle states, the operator-driven transitions
// between them, and the close gate. The ledger is the session object:
// constructed per batch, owned by the caller, mutated by exactly one
// writer. In-memory state is the source of truth for the session;
// persistence happens through mutation listeners wired by the caller.
package ledger

import (
	"fmt"

	"valet-reconciliation-service/internal/classifier"
	"valet-reconciliation-service/internal/matcher"
	"valet-reconciliation-service/internal/models"
	"valet-reconciliation-service/internal/normalizer"
	"valet-reconciliation-service/pkg/errors"
	"valet-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a reconciliation record. The set is
// closed; transitions happen only through the exported ledger
// operations, each of which validates the source state.
type Status string

const (
	// StatusValid: matched sales/delivery pair with no field
	// inconsistencies.
	StatusValid Status = "valid"

	// StatusInconsistent: matched pair with at least one differing
	// field, awaiting operator resolution.
	StatusInconsistent Status = "inconsistent"

	// StatusMissingInSales: present in the delivery export only.
	StatusMissingInSales Status = "missing_in_sales"

	// StatusMissingInDelivery: present in the sales export only.
	StatusMissingInDelivery Status = "missing_in_delivery"

	// StatusPermanentInconsistency: a receipt whose payment method
	// failed corroboration. No operator transition leads out of this
	// state; such records are escalated outside the system.
	StatusPermanentInconsistency Status = "permanent_inconsistency"

	// StatusPending: a receipt awaiting delivery validation.
	StatusPending Status = "pending"

	// StatusResolved, StatusValidated, StatusCorrected are terminal:
	// the record stays in the ledger, tagged with how it ended.
	StatusResolved  Status = "resolved"
	StatusValidated Status = "validated"
	StatusCorrected Status = "corrected"
)

// String returns the string representation of Status
func (s Status) String() string { return string(s) }

// IsMissing reports whether the record is a one-sided orphan.
func (s Status) IsMissing() bool {
	return s == StatusMissingInSales || s == StatusMissingInDelivery
}

// IsTerminal reports whether an operator action already closed the
// record's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusResolved, StatusValidated, StatusCorrected:
		return true
	default:
		return false
	}
}

// isBlocking reports whether the comparison status takes precedence
// over the receipt lifecycle during population.
func (s Status) isBlocking() bool {
	return s == StatusInconsistent || s.IsMissing()
}

// ResolutionType enumerates how a record was adjudicated.
type ResolutionType string

const (
	ResolutionNone        ResolutionType = ""
	ResolutionUseSales    ResolutionType = "use_sales"
	ResolutionUseDelivery ResolutionType = "use_delivery"
	ResolutionManual      ResolutionType = "manual"
	ResolutionIgnore      ResolutionType = "ignore"
	ResolutionCreate      ResolutionType = "create"
	ResolutionValidated   ResolutionType = "validated"
	ResolutionCorrected   ResolutionType = "corrected"
)

// Record is the adjudicated unit the ledger owns: one per match key per
// batch, created during population, mutated only by resolution actions,
// never deleted.
//
// The source records stay immutable; resolutions write to the derived
// Booking*/Brand* fields. PriceDifference is always recomputed from
// PriceOnDelivery minus the booking price, never set directly.
type Record struct {
	Plate    string `json:"plate"`
	MatchKey string `json:"matchKey"`
	Status   Status `json:"status"`

	Sales    *models.SalesRecord    `json:"sales,omitempty"`
	Delivery *models.DeliveryRecord `json:"delivery,omitempty"`
	Cash     *models.CashRecord     `json:"cash,omitempty"`

	Inconsistencies []classifier.FieldInconsistency `json:"inconsistencies,omitempty"`
	PermanentKind   classifier.PermanentKind        `json:"permanentKind,omitempty"`

	Resolution ResolutionType `json:"resolution,omitempty"`
	Notes      string         `json:"notes,omitempty"`

	PaymentMethod models.PaymentMethod `json:"paymentMethod,omitempty"`

	BookingPriceSales    decimal.Decimal `json:"bookingPriceSales"`
	BookingPriceDelivery decimal.Decimal `json:"bookingPriceDelivery"`
	BrandSales           string          `json:"brandSales,omitempty"`
	BrandDelivery        string          `json:"brandDelivery,omitempty"`
	PriceOnDelivery      decimal.Decimal `json:"priceOnDelivery"`
	PriceDifference      decimal.Decimal `json:"priceDifference"`
}

// BookingPrice returns the booking price the receipt is reconciled
// against: the back-office figure when the delivery export carried the
// record, else the ERP figure.
func (r *Record) BookingPrice() decimal.Decimal {
	if r.Delivery != nil {
		return r.BookingPriceDelivery
	}
	return r.BookingPriceSales
}

// recompute keeps the derived price difference consistent after every
// mutation.
func (r *Record) recompute() {
	r.PriceDifference = r.PriceOnDelivery.Sub(r.BookingPrice())
}

// HasInconsistency reports whether the named field is in the
// inconsistency list.
func (r *Record) HasInconsistency(field string) bool {
	for _, inc := range r.Inconsistencies {
		if inc.Field == field {
			return true
		}
	}
	return false
}

// MutationListener observes every applied ledger mutation. The batch
// service uses it to enqueue outbox writes.
type MutationListener func(*Record)

// Ledger is the stateful aggregate for one batch.
type Ledger struct {
	batch     *models.Batch
	records   map[string]*Record
	order     []string
	populated bool
	listeners []MutationListener
	log       logger.Logger
}

// New creates an empty ledger for the batch.
func New(batch *models.Batch) (*Ledger, error) {
	if batch == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "batch", nil)
	}
	if err := batch.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidData, "invalid batch")
	}
	return &Ledger{
		batch:   batch,
		records: make(map[string]*Record),
		log:     logger.WithComponent("ledger").WithField("batch_id", batch.ID),
	}, nil
}

// Restore rebuilds a session from previously persisted records. The
// records are installed as-is: no classification runs and no listeners
// fire, so replaying a stored batch never re-persists it. A closed
// batch restores fine; its session serves reads and rejects mutations.
func Restore(batch *models.Batch, records []*Record) (*Ledger, error) {
	l, err := New(batch)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec == nil || rec.MatchKey == "" {
			return nil, errors.ValidationError(errors.CodeInvalidData, "record", rec).
				WithSuggestion("persisted reconciliation records must carry a match key")
		}
		if _, ok := l.records[rec.MatchKey]; !ok {
			l.order = append(l.order, rec.MatchKey)
		}
		l.records[rec.MatchKey] = rec
	}
	l.populated = true
	return l, nil
}

// OnMutation registers a listener invoked after every applied mutation,
// including the initial population (once per created record).
func (l *Ledger) OnMutation(listener MutationListener) {
	l.listeners = append(l.listeners, listener)
}

func (l *Ledger) notify(rec *Record) {
	for _, listener := range l.listeners {
		listener(rec)
	}
}

// Populate builds the initial reconciliation records from the three
// source sets: sales×delivery pairs are classified valid or
// inconsistent, orphans become missing records, and cash receipts enter
// the validation lifecycle as pending or permanently inconsistent.
//
// Populate may run once per ledger and not on a closed batch.
func (l *Ledger) Populate(sales []*models.SalesRecord, deliveries []*models.DeliveryRecord, cash []*models.CashRecord) error {
	if l.batch.Closed {
		return errors.StateError(errors.CodeBatchClosed, "",
			fmt.Sprintf("batch %s is closed", l.batch.ID))
	}
	if l.populated {
		return errors.StateError(errors.CodeInvalidTransition, "",
			fmt.Sprintf("batch %s is already populated", l.batch.ID))
	}

	comparison := matcher.Match(sales, deliveries)
	if comparison.SkippedA > 0 || comparison.SkippedB > 0 {
		l.log.WithFields(logger.Fields{
			"sales_skipped":    comparison.SkippedA,
			"delivery_skipped": comparison.SkippedB,
		}).Warn("records without a usable plate excluded from matching")
	}

	for _, pair := range comparison.Pairs {
		rec := l.newRecord(pair.Key, pair.B.Plate)
		rec.Sales = pair.A
		rec.Delivery = pair.B
		rec.BookingPriceSales = pair.A.BookingPrice
		rec.BookingPriceDelivery = pair.B.BookingPrice
		rec.BrandSales = pair.A.Brand
		rec.BrandDelivery = pair.B.Brand
		rec.Inconsistencies = classifier.CompareFields(pair.A, pair.B)
		if len(rec.Inconsistencies) == 0 {
			rec.Status = StatusValid
		} else {
			rec.Status = StatusInconsistent
		}
		rec.recompute()
	}

	for _, delivery := range comparison.OnlyB {
		rec := l.newRecord(normalizer.NormalizePlate(delivery.Plate), delivery.Plate)
		rec.Delivery = delivery
		rec.BookingPriceDelivery = delivery.BookingPrice
		rec.BrandDelivery = delivery.Brand
		rec.Status = StatusMissingInSales
		rec.recompute()
	}

	for _, sale := range comparison.OnlyA {
		rec := l.newRecord(normalizer.NormalizePlate(sale.Plate), sale.Plate)
		rec.Sales = sale
		rec.BookingPriceSales = sale.BookingPrice
		rec.BrandSales = sale.Brand
		rec.Status = StatusMissingInDelivery
		rec.recompute()
	}

	l.populateCash(deliveries, cash)

	l.batch.SalesCount = len(sales)
	l.batch.DeliveryCount = len(deliveries)
	l.batch.CashCount = len(cash)
	l.populated = true

	counts := l.Counts()
	l.log.WithFields(logger.Fields{
		"records":      len(l.order),
		"valid":        counts[StatusValid],
		"inconsistent": counts[StatusInconsistent],
		"missing":      counts[StatusMissingInSales] + counts[StatusMissingInDelivery],
		"pending":      counts[StatusPending],
		"permanent":    counts[StatusPermanentInconsistency],
	}).Info("batch populated")

	for _, key := range l.order {
		l.notify(l.records[key])
	}
	return nil
}

// populateCash attaches each receipt to its ledger record, creating one
// when the plate never appeared in either export, and runs the payment
// method corroboration against the matched delivery record.
//
// A blocking comparison status (inconsistent or missing) is kept; the
// receipt lifecycle applies only to records that compared clean or that
// exist because of the receipt alone.
func (l *Ledger) populateCash(deliveries []*models.DeliveryRecord, cash []*models.CashRecord) {
	receipts := matcher.Match(deliveries, cash)
	if receipts.SkippedB > 0 {
		l.log.WithField("cash_skipped", receipts.SkippedB).
			Warn("receipts without a usable plate excluded from matching")
	}

	for _, pair := range receipts.Pairs {
		rec, ok := l.records[pair.Key]
		if !ok {
			// Delivery matched the receipt but was itself skipped
			// upstream; treat as receipt-only.
			rec = l.newRecord(pair.Key, pair.B.Plate)
		}
		l.attachCash(rec, pair.B, pair.A)
	}
	for _, receipt := range receipts.OnlyB {
		key := normalizer.NormalizePlate(receipt.Plate)
		rec, ok := l.records[key]
		if !ok {
			rec = l.newRecord(key, receipt.Plate)
		}
		l.attachCash(rec, receipt, nil)
	}
}

// attachCash records the receipt on rec and assigns the lifecycle
// status unless a blocking comparison status takes precedence.
func (l *Ledger) attachCash(rec *Record, receipt *models.CashRecord, crossRef *models.DeliveryRecord) {
	rec.Cash = receipt
	rec.PaymentMethod = receipt.PaymentMethod
	rec.PriceOnDelivery = receipt.Price
	if crossRef == nil {
		crossRef = rec.Delivery
	}

	kind := classifier.ClassifyPermanent(receipt.PaymentMethod, receipt.Campaign, crossRef)
	if rec.Status.isBlocking() {
		// Field or presence problems outrank the receipt lifecycle;
		// the corroboration verdict is still recorded for reporting.
		rec.PermanentKind = kind
		rec.recompute()
		return
	}
	if kind != classifier.PermanentNone {
		rec.Status = StatusPermanentInconsistency
		rec.PermanentKind = kind
	} else {
		rec.Status = StatusPending
	}
	rec.recompute()
}

// Batch returns the batch this ledger reconciles.
func (l *Ledger) Batch() *models.Batch { return l.batch }

// Get returns the record for a matching key.
func (l *Ledger) Get(matchKey string) (*Record, bool) {
	rec, ok := l.records[matchKey]
	return rec, ok
}

// All returns every record in deterministic order: sales×delivery pairs
// in delivery input order, then sales-only orphans in sales input
// order, then delivery-only orphans in delivery input order, then
// receipt-only records in receipt input order.
func (l *Ledger) All() []*Record {
	out := make([]*Record, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, l.records[key])
	}
	return out
}

// Filtered returns the records currently in the given status, in ledger
// order.
func (l *Ledger) Filtered(status Status) []*Record {
	var out []*Record
	for _, key := range l.order {
		if rec := l.records[key]; rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

// Counts returns the number of records per status.
func (l *Ledger) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, key := range l.order {
		counts[l.records[key].Status]++
	}
	return counts
}

// CanClose reports whether the batch may be closed: no record is still
// inconsistent and every missing record carries a resolution. The
// verdict is recomputed from current state on every call.
func (l *Ledger) CanClose() bool {
	for _, key := range l.order {
		rec := l.records[key]
		if rec.Status == StatusInconsistent {
			return false
		}
		if rec.Status.IsMissing() && rec.Resolution == ResolutionNone {
			return false
		}
	}
	return true
}

// Close closes the batch. Closed batches reject every further mutation.
func (l *Ledger) Close() error {
	if l.batch.Closed {
		return errors.StateError(errors.CodeBatchClosed, "",
			fmt.Sprintf("batch %s is already closed", l.batch.ID))
	}
	if !l.CanClose() {
		counts := l.Counts()
		return errors.StateError(errors.CodeBatchNotReady, "",
			fmt.Sprintf("batch %s has unresolved records", l.batch.ID)).
			WithContext("inconsistent", counts[StatusInconsistent]).
			WithContext("missing_in_sales", counts[StatusMissingInSales]).
			WithContext("missing_in_delivery", counts[StatusMissingInDelivery]).
			WithSuggestion("resolve or ignore the remaining inconsistent and missing records before closing")
	}
	if err := l.batch.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryState, errors.CodeBatchClosed, "closing batch")
	}
	l.log.Info("batch closed")
	return nil
}

// newRecord creates and indexes an empty record for the key.
func (l *Ledger) newRecord(key, plate string) *Record {
	rec := &Record{
		Plate:    plate,
		MatchKey: key,
		Status:   StatusPending,
	}
	l.records[key] = rec
	l.order = append(l.order, key)
	return rec
}
