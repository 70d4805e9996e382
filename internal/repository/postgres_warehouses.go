package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

type PostgresWarehousesRepository struct {
	db DBTX
}

func NewPostgresWarehousesRepository(db DBTX) *PostgresWarehousesRepository {
	return &PostgresWarehousesRepository{db: db}
}

const warehouseSelect = `
		SELECT id, code, name, zone_max, row_max, shelf_max
		FROM warehouses`

func scanWarehouse(s rowScanner) (*models.Warehouse, error) {
	var w models.Warehouse
	if err := s.Scan(&w.ID, &w.Code, &w.Name, &w.ZoneMax, &w.RowMax, &w.ShelfMax); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *PostgresWarehousesRepository) GetByID(ctx context.Context, id int64) (*models.Warehouse, error) {
	w, err := scanWarehouse(r.db.QueryRowContext(ctx, warehouseSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("warehouse not found: id=%d", id)
		}
		return nil, fmt.Errorf("get warehouse %d: %w", id, err)
	}
	return w, nil
}

func (r *PostgresWarehousesRepository) GetByCode(ctx context.Context, code string) (*models.Warehouse, error) {
	w, err := scanWarehouse(r.db.QueryRowContext(ctx, warehouseSelect+` WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("warehouse not found: code=%s", code)
		}
		return nil, fmt.Errorf("get warehouse %s: %w", code, err)
	}
	return w, nil
}

func (r *PostgresWarehousesRepository) List(ctx context.Context) ([]*models.Warehouse, error) {
	rows, err := r.db.QueryContext(ctx, warehouseSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Warehouse{}
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
