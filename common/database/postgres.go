package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xfn3t/smart-warehouse-sub000/common/config"

	_ "github.com/lib/pq"
)

// NewPostgresDB 打开 PostgreSQL 连接池并做一次 Ping
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close 关闭连接池（允许 nil）
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
