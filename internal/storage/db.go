package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open은 DSN 형식에 따라 PostgreSQL 또는 SQLite 연결을 엽니다.
// postgres:// 또는 postgresql:// 로 시작하면 PostgreSQL, 그 외에는 SQLite 파일 경로로 취급합니다.
func Open(cfg Config) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage: empty DSN")
	}

	gormCfg := &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(cfg.LogLevel),
		SkipDefaultTransaction: cfg.SkipDefaultTxn,
		PrepareStmt:            cfg.PrepareStmt,
	}

	var dialector gorm.Dialector
	if isPostgresDSN(cfg.DSN) {
		dialector = postgres.Open(cfg.DSN)
	} else {
		if !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("storage: create sqlite dir: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("storage: get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

// AutoMigrate는 저장소 모델의 스키마를 생성하거나 갱신합니다.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("storage: nil db handle")
	}
	return db.AutoMigrate(&Run{}, &RunAgent{})
}

// Close는 기반 연결 풀을 닫습니다.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}
