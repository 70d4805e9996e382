package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

type PostgresProductsRepository struct {
	db DBTX
}

func NewPostgresProductsRepository(db DBTX) *PostgresProductsRepository {
	return &PostgresProductsRepository{db: db}
}

func scanProduct(s rowScanner) (*models.Product, error) {
	var (
		p           models.Product
		warehouseID sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.Code, &p.Name, &warehouseID); err != nil {
		return nil, err
	}
	if warehouseID.Valid {
		id := warehouseID.Int64
		p.WarehouseID = &id
	}
	return &p, nil
}

func (r *PostgresProductsRepository) GetByCodeInWarehouse(ctx context.Context, code string, warehouseID int64) (*models.Product, error) {
	q := `
		SELECT id, code, name, warehouse_id
		FROM products
		WHERE code = $1 AND warehouse_id = $2
	`
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, code, warehouseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product not found: code=%s warehouse_id=%d", code, warehouseID)
		}
		return nil, fmt.Errorf("get product %s: %w", code, err)
	}
	return p, nil
}

func (r *PostgresProductsRepository) GetByCode(ctx context.Context, code string) (*models.Product, error) {
	q := `
		SELECT id, code, name, warehouse_id
		FROM products
		WHERE code = $1
		ORDER BY id
		LIMIT 1
	`
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product not found: code=%s", code)
		}
		return nil, fmt.Errorf("get product %s: %w", code, err)
	}
	return p, nil
}
