package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clipforge/internal/config"
	"clipforge/internal/models"
)

// MySQLStore persists the job history rows the studio gallery reads
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.JobRecord{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLStoreFromDB wraps an already-open gorm handle; used by tests
// with the sqlite driver
func NewMySQLStoreFromDB(db *gorm.DB) (*MySQLStore, error) {
	if err := db.AutoMigrate(&models.JobRecord{}); err != nil {
		return nil, err
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) GetDB() *gorm.DB {
	return s.db
}

// SaveJobRecord upserts one terminal job row
func (s *MySQLStore) SaveJobRecord(ctx context.Context, record *models.JobRecord) error {
	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to save job record: %w", err)
	}
	return nil
}

// ListJobRecords returns history rows newest first
func (s *MySQLStore) ListJobRecords(ctx context.Context, limit, offset int) ([]models.JobRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []models.JobRecord
	err := s.db.WithContext(ctx).
		Order("completed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	return records, nil
}

// ListJobRecordsByClip returns history rows for one clip, newest first
func (s *MySQLStore) ListJobRecordsByClip(ctx context.Context, clipID string, limit int) ([]models.JobRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []models.JobRecord
	err := s.db.WithContext(ctx).
		Where("clip_id = ?", clipID).
		Order("completed_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list job records for clip: %w", err)
	}
	return records, nil
}

// Transaction helper
func (s *MySQLStore) WithTx(fn func(*gorm.DB) error) error {
	return s.db.Transaction(fn)
}
