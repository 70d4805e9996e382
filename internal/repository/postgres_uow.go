package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// NewPostgresRepositories 用同一个 DBTX 构造全部仓储
func NewPostgresRepositories(db DBTX) Repositories {
	return Repositories{
		Robots:     NewPostgresRobotsRepository(db),
		Warehouses: NewPostgresWarehousesRepository(db),
		Products:   NewPostgresProductsRepository(db),
		Locations:  NewPostgresLocationsRepository(db),
		History:    NewPostgresHistoryRepository(db),
	}
}

// PostgresUnitOfWork 基于 *sql.Tx 的事务
type PostgresUnitOfWork struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresUnitOfWork(db *sql.DB, logger *zap.Logger) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db, logger: logger}
}

func (u *PostgresUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) (err error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				u.logger.Warn("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(ctx, NewPostgresRepositories(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
