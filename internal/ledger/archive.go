package ledger

import (
	"context"

	"github.com/carelink/billing/internal/billing/domain"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Archive mirrors ledger records into SQLite. Writes are best-effort
// side effects of ledger mutations; the in-memory list stays the source
// of truth.
type Archive struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewArchive opens the archive database and migrates the record table.
// The default DSN keeps the archive in memory.
func NewArchive(dsn string, log *zap.Logger) (*Archive, error) {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&domain.BillingRecord{}); err != nil {
		return nil, err
	}
	return &Archive{db: db, log: log.Named("ledger.archive")}, nil
}

// Save upserts one record by id.
func (a *Archive) Save(ctx context.Context, rec domain.BillingRecord) error {
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}

// Clear drops every archived record.
func (a *Archive) Clear(ctx context.Context) error {
	return a.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.BillingRecord{}).Error
}

// Recent returns the most recently updated records, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]domain.BillingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.BillingRecord
	err := a.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
