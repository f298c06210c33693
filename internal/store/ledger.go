// Package store keeps a SQLite ledger of every evaluated (model, mode) pair
// so robustness can be compared across runs.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record is one ledger row.
type Record struct {
	ID           uint      `gorm:"primaryKey"`
	RunID        string    `gorm:"index;size:36;not null"`
	Model        string    `gorm:"index;not null"`
	Mode         int       `gorm:"index"`
	Family       string
	Param        string
	CleanMAP     float64
	PerturbedMAP float64
	TopK         int
	Queries      int
	Noise        string
	CreatedAt    time.Time
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	RunID string
	Model string
	Mode  *int
	Limit int
}

// Ledger appends and queries Records.
type Ledger struct {
	db *gorm.DB
}

// Open opens or creates the ledger at dsn and migrates the schema. Use
// ":memory:" for a throwaway ledger.
func Open(dsn string) (*Ledger, error) {
	if dsn == "" {
		return nil, errors.New("empty ledger path")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// sqlite serializes writers; one connection also keeps :memory: shared
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ledger migration failed: %w", err)
	}
	slog.Debug("ledger opened", "dsn", dsn)
	return &Ledger{db: db}, nil
}

// Append inserts records in one transaction.
func (l *Ledger) Append(records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to append %d records: %w", len(records), err)
		}
		return nil
	})
}

// List returns matching records, oldest first.
func (l *Ledger) List(f Filter) ([]Record, error) {
	q := l.db.Model(&Record{})
	if f.RunID != "" {
		q = q.Where("run_id = ?", f.RunID)
	}
	if f.Model != "" {
		q = q.Where("model = ?", f.Model)
	}
	if f.Mode != nil {
		q = q.Where("mode = ?", *f.Mode)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []Record
	if err := q.Order("id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
