package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"valet-reconciliation-service/internal/ledger"
	"valet-reconciliation-service/internal/loader"
	"valet-reconciliation-service/internal/models"
	"valet-reconciliation-service/pkg/errors"
	"valet-reconciliation-service/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// batchRow is the batches table.
type batchRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
	SalesCount    int
	DeliveryCount int
	CashCount     int
	Closed        bool
	UpdatedAt     time.Time
}

func (batchRow) TableName() string { return "batches" }

// rawRow is the raw_rows table. The projected cells travel as a JSON
// payload so new canonical fields never need a migration.
type rawRow struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	BatchID string `gorm:"size:64;index:idx_raw_batch_kind"`
	Kind    string `gorm:"size:16;index:idx_raw_batch_kind"`
	Seq     int
	Payload string `gorm:"type:json"`
}

func (rawRow) TableName() string { return "raw_rows" }

// reconciliationRow is the reconciliation_rows table, one row per
// match key per batch, upserted on every ledger mutation.
type reconciliationRow struct {
	BatchID    string `gorm:"primaryKey;size:64"`
	MatchKey   string `gorm:"primaryKey;size:32"`
	Plate      string `gorm:"size:32"`
	Status     string `gorm:"size:32;index"`
	Resolution string `gorm:"size:32"`
	Payload    string `gorm:"type:json"`
	UpdatedAt  time.Time
}

func (reconciliationRow) TableName() string { return "reconciliation_rows" }

// GormStore is the MySQL-backed Store.
type GormStore struct {
	db  *gorm.DB
	log logger.Logger
}

// OpenMySQL connects to MySQL and migrates the schema.
func OpenMySQL(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryPersistence, errors.CodeLoadFailed, "connecting to record store")
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm handle and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&batchRow{}, &rawRow{}, &reconciliationRow{}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPersistence, errors.CodeLoadFailed, "migrating record store schema")
	}
	return &GormStore{
		db:  db,
		log: logger.WithComponent("store"),
	}, nil
}

func (s *GormStore) SaveBatch(ctx context.Context, batch *models.Batch) error {
	if batch == nil || batch.ID == "" {
		return errors.ValidationError(errors.CodeMissingField, "batch", batch)
	}
	row := batchRow{
		ID:            batch.ID,
		CreatedAt:     batch.CreatedAt,
		SalesCount:    batch.SalesCount,
		DeliveryCount: batch.DeliveryCount,
		CashCount:     batch.CashCount,
		Closed:        batch.Closed,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return errors.PersistenceError(errors.CodeSaveFailed, batch.ID, err)
	}
	return nil
}

func (s *GormStore) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	var row batchRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", batchID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.CategoryPersistence, errors.CodeLoadFailed,
			fmt.Sprintf("no batch stored under id %s", batchID)).
			WithSuggestion("import the batch before reopening it")
	}
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeLoadFailed, batchID, err)
	}
	return &models.Batch{
		ID:            row.ID,
		CreatedAt:     row.CreatedAt,
		SalesCount:    row.SalesCount,
		DeliveryCount: row.DeliveryCount,
		CashCount:     row.CashCount,
		Closed:        row.Closed,
	}, nil
}

func (s *GormStore) SaveRawRows(ctx context.Context, batchID string, kind SourceKind, rows []loader.RawRow) error {
	inserts := make([]rawRow, 0, len(rows))
	for i, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return errors.PersistenceError(errors.CodeSaveFailed, batchID, err)
		}
		inserts = append(inserts, rawRow{
			BatchID: batchID,
			Kind:    string(kind),
			Seq:     i,
			Payload: string(payload),
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ? AND kind = ?", batchID, kind).
			Delete(&rawRow{}).Error; err != nil {
			return err
		}
		if len(inserts) == 0 {
			return nil
		}
		return tx.CreateInBatches(inserts, 500).Error
	})
	if err != nil {
		return errors.PersistenceError(errors.CodeSaveFailed, batchID, err)
	}
	s.log.WithFields(logger.Fields{
		"batch_id": batchID,
		"kind":     string(kind),
		"rows":     len(inserts),
	}).Debug("raw rows saved")
	return nil
}

func (s *GormStore) GetRawRows(ctx context.Context, batchID string, kind SourceKind) ([]loader.RawRow, error) {
	var stored []rawRow
	err := s.db.WithContext(ctx).
		Where("batch_id = ? AND kind = ?", batchID, kind).
		Order("seq").
		Find(&stored).Error
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeLoadFailed, batchID, err)
	}

	rows := make([]loader.RawRow, 0, len(stored))
	for _, sr := range stored {
		var row loader.RawRow
		if err := json.Unmarshal([]byte(sr.Payload), &row); err != nil {
			return nil, errors.PersistenceError(errors.CodeLoadFailed, batchID, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *GormStore) SaveReconciliation(ctx context.Context, batchID string, records []*ledger.Record) error {
	upserts := make([]reconciliationRow, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return errors.PersistenceError(errors.CodeSaveFailed, batchID, err)
		}
		upserts = append(upserts, reconciliationRow{
			BatchID:    batchID,
			MatchKey:   rec.MatchKey,
			Plate:      rec.Plate,
			Status:     rec.Status.String(),
			Resolution: string(rec.Resolution),
			Payload:    string(payload),
		})
	}
	if len(upserts) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(upserts, 500).Error
	if err != nil {
		return errors.PersistenceError(errors.CodeSaveFailed, batchID, err)
	}
	s.log.WithFields(logger.Fields{
		"batch_id": batchID,
		"records":  len(upserts),
	}).Debug("reconciliation rows saved")
	return nil
}

func (s *GormStore) GetReconciliation(ctx context.Context, batchID string) ([]*ledger.Record, error) {
	var stored []reconciliationRow
	err := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("match_key").
		Find(&stored).Error
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeLoadFailed, batchID, err)
	}

	records := make([]*ledger.Record, 0, len(stored))
	for _, sr := range stored {
		var rec ledger.Record
		if err := json.Unmarshal([]byte(sr.Payload), &rec); err != nil {
			return nil, errors.PersistenceError(errors.CodeLoadFailed, batchID, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}
