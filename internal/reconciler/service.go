// Package reconciler wires the pieces into the batch workflow: import
// the three exports, populate the ledger, take operator actions, and
// close the batch. One Service holds the open sessions; everything
// else is owned by the session's ledger.
package reconciler

import (
	"context"
	"fmt"
	"sync"

	"valet-reconciliation-service/internal/aggregator"
	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/internal/loader"
	"valet-reconciliation-service/internal/models"
	"valet-reconciliation-service/internal/normalizer"
	"valet-reconciliation-service/internal/store"
	"valet-reconciliation-service/pkg/errors"
	"valet-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// ImportFiles names the three export files of a batch. Cash is
// optional; a batch without receipts still reconciles the two exports.
type ImportFiles struct {
	Sales    string
	Delivery string
	Cash     string
}

// Service runs reconciliation batches against a record store.
type Service struct {
	store  store.Store
	outbox *store.Outbox
	log    logger.Logger

	mu       sync.Mutex
	sessions map[string]*ledger.Ledger
}

// NewService creates a Service persisting to st.
func NewService(st store.Store) *Service {
	return &Service{
		store:    st,
		outbox:   store.NewOutbox(st),
		log:      logger.WithComponent("reconciler"),
		sessions: make(map[string]*ledger.Ledger),
	}
}

// OpenBatch imports the export files, persists their raw rows, and
// populates a new ledger session for the batch.
func (s *Service) OpenBatch(ctx context.Context, batchID string, files ImportFiles) (*ledger.Ledger, error) {
	salesRows, err := s.importFile(ctx, batchID, files.Sales, store.SourceSales, loader.SalesMapping())
	if err != nil {
		return nil, err
	}
	deliveryRows, err := s.importFile(ctx, batchID, files.Delivery, store.SourceDelivery, loader.DeliveryMapping())
	if err != nil {
		return nil, err
	}
	var cashRows []loader.RawRow
	if files.Cash != "" {
		cashRows, err = s.importFile(ctx, batchID, files.Cash, store.SourceCash, loader.CashMapping())
		if err != nil {
			return nil, err
		}
	}
	return s.openSession(ctx, models.NewBatch(batchID), salesRows, deliveryRows, cashRows)
}

// ReopenBatch rebuilds a session for a stored batch. The stored header
// decides the session's mutability: a closed batch reopens read-only
// and rejects every further action. Previously flushed adjudications
// are restored as-is; only when no reconciliation rows survived is the
// ledger repopulated from the stored raw rows.
func (s *Service) ReopenBatch(ctx context.Context, batchID string) (*ledger.Ledger, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.GetReconciliation(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return s.restoreSession(batch, stored)
	}

	salesRows, err := s.store.GetRawRows(ctx, batchID, store.SourceSales)
	if err != nil {
		return nil, err
	}
	deliveryRows, err := s.store.GetRawRows(ctx, batchID, store.SourceDelivery)
	if err != nil {
		return nil, err
	}
	cashRows, err := s.store.GetRawRows(ctx, batchID, store.SourceCash)
	if err != nil {
		// A batch imported without receipts has no cash rows.
		cashRows = nil
	}
	return s.openSession(ctx, batch, salesRows, deliveryRows, cashRows)
}

func (s *Service) importFile(ctx context.Context, batchID, path string, kind store.SourceKind, mapping loader.Mapping) ([]loader.RawRow, error) {
	table, err := loader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows, err := mapping.Apply(table)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRawRows(ctx, batchID, kind, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) openSession(ctx context.Context, batch *models.Batch, salesRows, deliveryRows, cashRows []loader.RawRow) (*ledger.Ledger, error) {
	if err := s.checkNoSession(batch.ID); err != nil {
		return nil, err
	}

	sales, salesStats := loader.BuildSalesRecords(salesRows, string(store.SourceSales))
	deliveries, deliveryStats := loader.BuildDeliveryRecords(deliveryRows, string(store.SourceDelivery))
	cash, cashStats := loader.BuildCashRecords(cashRows, string(store.SourceCash))

	session, err := ledger.New(batch)
	if err != nil {
		return nil, err
	}
	session.OnMutation(func(rec *ledger.Record) {
		s.outbox.Enqueue(batch.ID, rec)
	})

	if err := session.Populate(sales, deliveries, cash); err != nil {
		return nil, err
	}
	if err := s.store.SaveBatch(ctx, session.Batch()); err != nil {
		return nil, err
	}
	s.flush(ctx)

	s.mu.Lock()
	s.sessions[batch.ID] = session
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{
		"batch_id": batch.ID,
		"degraded": salesStats.Degraded + deliveryStats.Degraded + cashStats.Degraded,
		"records":  len(session.All()),
	}).Info("batch opened")
	return session, nil
}

// restoreSession rebuilds the session from stored reconciliation
// records. Restoration enqueues nothing; the store already holds this
// state.
func (s *Service) restoreSession(batch *models.Batch, records []*ledger.Record) (*ledger.Ledger, error) {
	if err := s.checkNoSession(batch.ID); err != nil {
		return nil, err
	}

	session, err := ledger.Restore(batch, records)
	if err != nil {
		return nil, err
	}
	session.OnMutation(func(rec *ledger.Record) {
		s.outbox.Enqueue(batch.ID, rec)
	})

	s.mu.Lock()
	s.sessions[batch.ID] = session
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{
		"batch_id": batch.ID,
		"records":  len(records),
		"closed":   batch.Closed,
	}).Info("batch reopened")
	return session, nil
}

func (s *Service) checkNoSession(batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, open := s.sessions[batchID]; open {
		return errors.StateError(errors.CodeInvalidTransition, "",
			fmt.Sprintf("batch %s already has an open session", batchID))
	}
	return nil
}

// Session returns the open ledger session for the batch.
func (s *Service) Session(batchID string) (*ledger.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[batchID]
	if !ok {
		return nil, errors.StateError(errors.CodeUnknownRecord, "",
			fmt.Sprintf("no open session for batch %s", batchID)).
			WithSuggestion("open or reopen the batch first")
	}
	return session, nil
}

// Resolve applies an operator resolution and persists the mutation.
func (s *Service) Resolve(ctx context.Context, batchID, matchKey string, res ledger.Resolution) (*ledger.Record, error) {
	session, err := s.Session(batchID)
	if err != nil {
		return nil, err
	}
	rec, err := session.Resolve(matchKey, res)
	if err != nil {
		return nil, err
	}
	s.flush(ctx)
	return rec, nil
}

// ValidateDelivery confirms or corrects a pending receipt. The method
// arrives as raw operator text and goes through the same normalization
// as imported receipts.
func (s *Service) ValidateDelivery(ctx context.Context, batchID, matchKey, rawMethod string, price decimal.Decimal, notes string) (*ledger.Record, error) {
	session, err := s.Session(batchID)
	if err != nil {
		return nil, err
	}
	method := normalizer.NormalizePaymentMethod(rawMethod)
	rec, err := session.ValidateDelivery(matchKey, method, price, notes)
	if err != nil {
		return nil, err
	}
	s.flush(ctx)
	return rec, nil
}

// CloseBatch closes the batch when its close gate allows it and
// persists the final state. The session is dropped; further actions
// need a reopen, which will find the batch immutable.
func (s *Service) CloseBatch(ctx context.Context, batchID string) error {
	session, err := s.Session(batchID)
	if err != nil {
		return err
	}
	if err := session.Close(); err != nil {
		return err
	}
	if err := s.store.SaveBatch(ctx, session.Batch()); err != nil {
		return err
	}
	s.flush(ctx)

	s.mu.Lock()
	delete(s.sessions, batchID)
	s.mu.Unlock()
	return nil
}

// Summary computes the current aggregates of the batch.
func (s *Service) Summary(batchID string) (*aggregator.Summary, error) {
	session, err := s.Session(batchID)
	if err != nil {
		return nil, err
	}
	return aggregator.Compute(session.All()), nil
}

// PendingWrites returns the number of queued store writes.
func (s *Service) PendingWrites() int {
	return s.outbox.Pending()
}

// FlushPending retries the queued store writes.
func (s *Service) FlushPending(ctx context.Context) error {
	return s.outbox.Flush(ctx)
}

// flush is the best-effort flush after an action. Persistence failures
// never roll back ledger state; the outbox already logged and retained
// the writes.
func (s *Service) flush(ctx context.Context) {
	_ = s.outbox.Flush(ctx)
}
