package store

import (
	"context"
	"sync"

	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/pkg/logger"
)

// Outbox queues reconciliation writes for the store. Ledger mutations
// enqueue here and the service flushes after each action: a failing
// database degrades persistence, never the reconciliation itself. A
// failed flush keeps the entries queued for the next attempt, so
// losing a write requires losing the process.
type Outbox struct {
	store Store
	log   logger.Logger

	mu    sync.Mutex
	queue []*outboxEntry
}

type outboxEntry struct {
	batchID  string
	record   *ledger.Record
	attempts int
}

// NewOutbox creates an empty outbox writing to the store.
func NewOutbox(s Store) *Outbox {
	return &Outbox{
		store: s,
		log:   logger.WithComponent("outbox"),
	}
}

// Enqueue queues a snapshot of the record. The ledger keeps mutating
// its records after the call, so the outbox copies at enqueue time to
// persist the state that triggered the write.
func (o *Outbox) Enqueue(batchID string, rec *ledger.Record) {
	snapshot := *rec
	o.mu.Lock()
	o.queue = append(o.queue, &outboxEntry{batchID: batchID, record: &snapshot})
	o.mu.Unlock()
}

// Pending returns the number of queued writes.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Flush writes the queued entries to the store grouped by batch. On
// failure the unwritten entries stay queued with their attempt count
// bumped, and the error is returned after a warning log; callers may
// treat it as non-fatal.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	pending := o.queue
	o.queue = nil
	o.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	byBatch := make(map[string][]*ledger.Record)
	order := make([]string, 0, 1)
	for _, entry := range pending {
		if _, seen := byBatch[entry.batchID]; !seen {
			order = append(order, entry.batchID)
		}
		byBatch[entry.batchID] = append(byBatch[entry.batchID], entry.record)
	}

	written := 0
	for i, batchID := range order {
		if err := o.store.SaveReconciliation(ctx, batchID, byBatch[batchID]); err != nil {
			// Requeue everything not yet written, this batch included.
			attempts := o.requeue(pending, order[i:])
			o.log.WithError(err).WithFields(logger.Fields{
				"batch_id": batchID,
				"pending":  o.Pending(),
				"attempts": attempts,
			}).Warn("flush failed, writes retained in queue")
			return err
		}
		written += len(byBatch[batchID])
	}

	o.log.WithField("records", written).Debug("outbox flushed")
	return nil
}

// requeue puts the entries of the unwritten batches back at the front
// of the queue, preserving their order ahead of anything enqueued
// during the flush. It returns the highest attempt count among the
// retained entries so the failure log shows how long a write has been
// stuck.
func (o *Outbox) requeue(pending []*outboxEntry, unwritten []string) int {
	keep := make(map[string]bool, len(unwritten))
	for _, batchID := range unwritten {
		keep[batchID] = true
	}
	var retained []*outboxEntry
	maxAttempts := 0
	for _, entry := range pending {
		if keep[entry.batchID] {
			entry.attempts++
			if entry.attempts > maxAttempts {
				maxAttempts = entry.attempts
			}
			retained = append(retained, entry)
		}
	}
	o.mu.Lock()
	o.queue = append(retained, o.queue...)
	o.mu.Unlock()
	return maxAttempts
}
