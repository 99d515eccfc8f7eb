package reconciler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/internal/store"

	"github.com/shopspring/decimal"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

func testFiles(t *testing.T) ImportFiles {
	t.Helper()
	dir := t.TempDir()
	return ImportFiles{
		Sales: writeTestFile(t, dir, "sales.csv",
			"Matricula,Marca,Preco,Condutor\n"+
				"AA-11-AA,BMW,20.00,ana\n"+
				"BB22BB,Audi,30.00,rui\n"+
				"CC33CC,Fiat,15.00,ana\n"),
		Delivery: writeTestFile(t, dir, "delivery.csv",
			"Matricula,Marca,Preco,Condutor,Pagamento Online\n"+
				"AA11AA,BMW,20.00,ana,\n"+
				"BB22BB,Audi,35.00,rui,\n"),
		Cash: writeTestFile(t, dir, "cash.csv",
			"Matricula,Preco,Forma de Pagamento\n"+
				"AA11AA,20.00,Dinheiro\n"),
	}
}

func TestOpenBatchEndToEnd(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	session, err := s.OpenBatch(ctx, "batch-1", testFiles(t))
	if err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}

	counts := session.Counts()
	if counts[ledger.StatusPending] != 1 {
		t.Errorf("pending = %d, want 1", counts[ledger.StatusPending])
	}
	if counts[ledger.StatusInconsistent] != 1 {
		t.Errorf("inconsistent = %d, want 1", counts[ledger.StatusInconsistent])
	}
	if counts[ledger.StatusMissingInDelivery] != 1 {
		t.Errorf("missing_in_delivery = %d, want 1", counts[ledger.StatusMissingInDelivery])
	}
	if session.Batch().SalesCount != 3 || session.Batch().DeliveryCount != 2 || session.Batch().CashCount != 1 {
		t.Errorf("batch counts = %+v", session.Batch())
	}

	// The populated state reached the store through the outbox.
	if s.PendingWrites() != 0 {
		t.Errorf("pending writes = %d", s.PendingWrites())
	}
	stored, err := s.store.GetReconciliation(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetReconciliation() error = %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("stored records = %d, want 3", len(stored))
	}
}

func TestResolvePersists(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewService(st)
	ctx := context.Background()

	if _, err := s.OpenBatch(ctx, "batch-1", testFiles(t)); err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}
	rec, err := s.Resolve(ctx, "batch-1", "BB22BB", ledger.Resolution{Type: ledger.ResolutionUseDelivery})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rec.Status != ledger.StatusResolved {
		t.Errorf("status = %s", rec.Status)
	}

	stored, err := st.GetReconciliation(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetReconciliation() error = %v", err)
	}
	for _, sr := range stored {
		if sr.MatchKey == "BB22BB" && sr.Status != ledger.StatusResolved {
			t.Errorf("stored status = %s, want resolved", sr.Status)
		}
	}
}

func TestValidateDeliveryNormalizesMethod(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := s.OpenBatch(ctx, "batch-1", testFiles(t)); err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}
	rec, err := s.ValidateDelivery(ctx, "batch-1", "AA11AA", "Pago com cartão", decimal.RequireFromString("20.00"), "")
	if err != nil {
		t.Fatalf("ValidateDelivery() error = %v", err)
	}
	// Method changed from cash to card, so the receipt was corrected.
	if rec.Status != ledger.StatusCorrected {
		t.Errorf("status = %s, want %s", rec.Status, ledger.StatusCorrected)
	}
}

func TestCloseBatchWorkflow(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := s.OpenBatch(ctx, "batch-1", testFiles(t)); err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}
	if err := s.CloseBatch(ctx, "batch-1"); err == nil {
		t.Fatal("close must fail with unresolved records")
	}

	if _, err := s.Resolve(ctx, "batch-1", "BB22BB", ledger.Resolution{Type: ledger.ResolutionUseSales}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, err := s.Resolve(ctx, "batch-1", "CC33CC", ledger.Resolution{Type: ledger.ResolutionIgnore}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := s.CloseBatch(ctx, "batch-1"); err != nil {
		t.Fatalf("CloseBatch() error = %v", err)
	}

	// The session is gone after close.
	if _, err := s.Session("batch-1"); err == nil {
		t.Error("session must be dropped after close")
	}
}

func TestReopenBatchFromStore(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewService(st)
	ctx := context.Background()

	if _, err := s.OpenBatch(ctx, "batch-1", testFiles(t)); err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}
	// Drop the session without closing, as a process restart would.
	s.mu.Lock()
	delete(s.sessions, "batch-1")
	s.mu.Unlock()

	session, err := s.ReopenBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ReopenBatch() error = %v", err)
	}
	if len(session.All()) != 3 {
		t.Errorf("reopened records = %d, want 3", len(session.All()))
	}
	counts := session.Counts()
	if counts[ledger.StatusInconsistent] != 1 {
		t.Errorf("inconsistent = %d, want 1", counts[ledger.StatusInconsistent])
	}
}

func TestReopenBatchKeepsAdjudications(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewService(st)
	ctx := context.Background()

	if _, err := s.OpenBatch(ctx, "batch-1", testFiles(t)); err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}
	if _, err := s.Resolve(ctx, "batch-1", "BB22BB", ledger.Resolution{Type: ledger.ResolutionUseDelivery}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Drop the session without closing, as a process restart would.
	s.mu.Lock()
	delete(s.sessions, "batch-1")
	s.mu.Unlock()

	session, err := s.ReopenBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ReopenBatch() error = %v", err)
	}
	rec, ok := session.Get("BB22BB")
	if !ok {
		t.Fatal("BB22BB missing after reopen")
	}
	if rec.Status != ledger.StatusResolved || rec.Resolution != ledger.ResolutionUseDelivery {
		t.Errorf("reopened record = %s (%s), want resolved (use_delivery)", rec.Status, rec.Resolution)
	}
	// Restoration writes nothing back, so the stored state cannot be
	// clobbered by the reopen itself.
	if s.PendingWrites() != 0 {
		t.Errorf("pending writes after reopen = %d", s.PendingWrites())
	}

	// A later action on another record leaves the earlier one intact.
	if _, err := s.Resolve(ctx, "batch-1", "CC33CC", ledger.Resolution{Type: ledger.ResolutionIgnore}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	stored, err := st.GetReconciliation(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetReconciliation() error = %v", err)
	}
	for _, sr := range stored {
		if sr.MatchKey == "BB22BB" && sr.Status != ledger.StatusResolved {
			t.Errorf("stored BB22BB = %s after reopen and a further action, want resolved", sr.Status)
		}
	}
}

func TestClosedBatchStaysClosedAcrossReopen(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewService(st)
	ctx := context.Background()

	if _, err := s.OpenBatch(ctx, "batch-1", testFiles(t)); err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}
	if _, err := s.Resolve(ctx, "batch-1", "BB22BB", ledger.Resolution{Type: ledger.ResolutionUseSales}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, err := s.Resolve(ctx, "batch-1", "CC33CC", ledger.Resolution{Type: ledger.ResolutionIgnore}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := s.CloseBatch(ctx, "batch-1"); err != nil {
		t.Fatalf("CloseBatch() error = %v", err)
	}

	session, err := s.ReopenBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("ReopenBatch() error = %v", err)
	}
	if !session.Batch().Closed {
		t.Error("reopened batch lost its closed flag")
	}
	if _, err := s.Resolve(ctx, "batch-1", "CC33CC", ledger.Resolution{Type: ledger.ResolutionCreate}); err == nil {
		t.Error("resolving on a closed batch must fail")
	}
}

func TestSummary(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := s.OpenBatch(ctx, "batch-1", testFiles(t)); err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}
	summary, err := s.Summary("batch-1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.Records != 3 {
		t.Errorf("records = %d, want 3", summary.Records)
	}
	if !summary.Collected.Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("collected = %s, want 20", summary.Collected)
	}
}

// flakyStore fails reconciliation writes until recovered.
type flakyStore struct {
	*store.MemoryStore
	down bool
}

func (f *flakyStore) SaveReconciliation(ctx context.Context, batchID string, records []*ledger.Record) error {
	if f.down {
		return fmt.Errorf("store unavailable")
	}
	return f.MemoryStore.SaveReconciliation(ctx, batchID, records)
}

func TestPersistenceFailureDoesNotBlockActions(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), down: true}
	s := NewService(st)
	ctx := context.Background()

	if _, err := s.OpenBatch(ctx, "batch-1", testFiles(t)); err != nil {
		t.Fatalf("OpenBatch() error = %v", err)
	}
	if s.PendingWrites() == 0 {
		t.Fatal("writes must queue while the store is down")
	}

	rec, err := s.Resolve(ctx, "batch-1", "BB22BB", ledger.Resolution{Type: ledger.ResolutionUseSales})
	if err != nil {
		t.Fatalf("Resolve() must succeed while the store is down, got %v", err)
	}
	if rec.Status != ledger.StatusResolved {
		t.Errorf("status = %s", rec.Status)
	}

	st.down = false
	if err := s.FlushPending(ctx); err != nil {
		t.Fatalf("FlushPending() error = %v", err)
	}
	if s.PendingWrites() != 0 {
		t.Errorf("pending = %d after recovery", s.PendingWrites())
	}
	stored, err := st.GetReconciliation(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetReconciliation() error = %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("stored = %d records, want 3", len(stored))
	}
}
