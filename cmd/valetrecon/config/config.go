// Package config builds the component configurations of the CLI from
// flags and environment.
package config

import (
	"valet-reconciliation-service/internal/reporter"
	"valet-reconciliation-service/internal/store"
)

// CreateStore builds the record store: MySQL when a DSN is given, the
// in-memory store otherwise. The in-memory store only survives one
// invocation, which suits a plain import-and-report run.
func CreateStore(dsn string) (store.Store, error) {
	if dsn == "" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenMySQL(dsn)
}

// CreateReportConfig builds the reporter configuration for the chosen
// output format.
func CreateReportConfig(format string, includeValid bool) *reporter.ReportConfig {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(format)
	cfg.IncludeValidRecords = includeValid
	return cfg
}
