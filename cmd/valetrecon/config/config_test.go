package config

import (
	"testing"

	"valet-reconciliation-service/internal/reporter"
	"valet-reconciliation-service/internal/store"
)

func TestCreateStoreDefaultsToMemory(t *testing.T) {
	st, err := CreateStore("")
	if err != nil {
		t.Fatalf("CreateStore() error = %v", err)
	}
	if _, ok := st.(*store.MemoryStore); !ok {
		t.Errorf("store without DSN = %T, want *store.MemoryStore", st)
	}
}

func TestCreateReportConfig(t *testing.T) {
	cfg := CreateReportConfig("json", true)
	if cfg.Format != reporter.FormatJSON {
		t.Errorf("format = %s, want json", cfg.Format)
	}
	if !cfg.IncludeValidRecords {
		t.Error("include valid records flag not carried")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
