// Package store persists raw export rows and reconciliation results.
// The ledger stays the in-session source of truth; the store is the
// durable copy behind it, written through the outbox so a slow or
// failing database never blocks an operator action.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/internal/loader"
	"valet-reconciliation-service/internal/models"
	"valet-reconciliation-service/pkg/errors"
)

// SourceKind identifies which export a raw row came from.
type SourceKind string

const (
	SourceSales    SourceKind = "sales"
	SourceDelivery SourceKind = "delivery"
	SourceCash     SourceKind = "cash"
)

// Store is the persistence boundary of the reconciliation service.
type Store interface {
	// SaveBatch upserts the batch header.
	SaveBatch(ctx context.Context, batch *models.Batch) error

	// GetBatch returns the stored batch header, including its closed
	// flag.
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)

	// SaveRawRows replaces the raw rows of one export for the batch.
	SaveRawRows(ctx context.Context, batchID string, kind SourceKind, rows []loader.RawRow) error

	// GetRawRows returns the stored raw rows of one export in insert
	// order.
	GetRawRows(ctx context.Context, batchID string, kind SourceKind) ([]loader.RawRow, error)

	// SaveReconciliation upserts reconciliation records, keyed by
	// batch and match key.
	SaveReconciliation(ctx context.Context, batchID string, records []*ledger.Record) error

	// GetReconciliation returns the stored reconciliation records of
	// the batch in match key order.
	GetReconciliation(ctx context.Context, batchID string) ([]*ledger.Record, error)
}

// MemoryStore is the in-memory Store used by tests and by runs that
// need no durability.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]*models.Batch
	raw     map[string]map[SourceKind][]loader.RawRow
	recon   map[string]map[string]*ledger.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string]*models.Batch),
		raw:     make(map[string]map[SourceKind][]loader.RawRow),
		recon:   make(map[string]map[string]*ledger.Record),
	}
}

func (s *MemoryStore) SaveBatch(ctx context.Context, batch *models.Batch) error {
	if batch == nil || batch.ID == "" {
		return errors.ValidationError(errors.CodeMissingField, "batch", batch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *batch
	s.batches[batch.ID] = &copied
	return nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, errors.New(errors.CategoryPersistence, errors.CodeLoadFailed,
			fmt.Sprintf("no batch stored under id %s", batchID)).
			WithSuggestion("import the batch before reopening it")
	}
	copied := *batch
	return &copied, nil
}

func (s *MemoryStore) SaveRawRows(ctx context.Context, batchID string, kind SourceKind, rows []loader.RawRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw[batchID] == nil {
		s.raw[batchID] = make(map[SourceKind][]loader.RawRow)
	}
	copied := make([]loader.RawRow, len(rows))
	for i, row := range rows {
		dup := make(loader.RawRow, len(row))
		for k, v := range row {
			dup[k] = v
		}
		copied[i] = dup
	}
	s.raw[batchID][kind] = copied
	return nil
}

func (s *MemoryStore) GetRawRows(ctx context.Context, batchID string, kind SourceKind) ([]loader.RawRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.raw[batchID][kind]
	if !ok {
		return nil, errors.New(errors.CategoryPersistence, errors.CodeLoadFailed,
			fmt.Sprintf("no %s rows stored for batch %s", kind, batchID)).
			WithSuggestion("import the export before reading it back")
	}
	return rows, nil
}

func (s *MemoryStore) SaveReconciliation(ctx context.Context, batchID string, records []*ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recon[batchID] == nil {
		s.recon[batchID] = make(map[string]*ledger.Record)
	}
	for _, rec := range records {
		copied := *rec
		s.recon[batchID][rec.MatchKey] = &copied
	}
	return nil
}

func (s *MemoryStore) GetReconciliation(ctx context.Context, batchID string) ([]*ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKey := s.recon[batchID]
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*ledger.Record, 0, len(keys))
	for _, key := range keys {
		copied := *byKey[key]
		out = append(out, &copied)
	}
	return out, nil
}
