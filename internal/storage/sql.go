package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvModel is one row of the wallet_kv table.
type kvModel struct {
	Key       string    `gorm:"column:k;type:varchar(128);primaryKey"`
	Value     []byte    `gorm:"column:v;type:blob;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name.
func (kvModel) TableName() string {
	return "wallet_kv"
}

// SQLKV is a KV stored in a SQL table through gorm.
type SQLKV struct {
	db *gorm.DB
}

// OpenSQLite opens a SQLite database at dsn (":memory:" for tests).
// A single connection keeps in-memory databases shared across calls.
func OpenSQLite(dsn string) (*SQLKV, error) {
	return openSQL(sqlite.Open(dsn), 1)
}

// OpenMySQL opens a MySQL database with dsn.
func OpenMySQL(dsn string) (*SQLKV, error) {
	return openSQL(mysql.Open(dsn), 4)
}

func openSQL(dialector gorm.Dialector, maxOpen int) (*SQLKV, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&kvModel{}); err != nil {
		return nil, fmt.Errorf("migrate wallet_kv: %w", err)
	}
	return &SQLKV{db: db}, nil
}

func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var m kvModel
	err := s.db.WithContext(ctx).Where("k = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read key",
			"operation", "get",
			"key", key,
			"error", err,
		)
		return nil, err
	}
	return m.Value, nil
}

func (s *SQLKV) Put(ctx context.Context, key string, value []byte) error {
	m := &kvModel{Key: key, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "k"}},
			DoUpdates: clause.AssignmentColumns([]string{"v", "updated_at"}),
		}).
		Create(m).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to write key",
			"operation", "put",
			"key", key,
			"error", err,
		)
		return err
	}
	return nil
}

func (s *SQLKV) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("k = ?", key).Delete(&kvModel{}).Error; err != nil {
		slog.ErrorContext(ctx, "failed to delete key",
			"operation", "delete",
			"key", key,
			"error", err,
		)
		return err
	}
	return nil
}

func (s *SQLKV) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
