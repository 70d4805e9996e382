package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

type PostgresLocationsRepository struct {
	db DBTX
}

func NewPostgresLocationsRepository(db DBTX) *PostgresLocationsRepository {
	return &PostgresLocationsRepository{db: db}
}

func (r *PostgresLocationsRepository) Get(ctx context.Context, warehouseID int64, c models.Coordinate) (*models.Location, error) {
	q := `
		SELECT id
		FROM locations
		WHERE warehouse_id = $1 AND zone = $2 AND row_number = $3 AND shelf = $4
	`
	loc := models.Location{WarehouseID: warehouseID, Coordinate: c}
	if err := r.db.QueryRowContext(ctx, q, warehouseID, c.Zone, c.Row, c.Shelf).Scan(&loc.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("location not found: warehouse_id=%d zone=%d row=%d shelf=%d", warehouseID, c.Zone, c.Row, c.Shelf)
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

// GetOrCreate 依赖 (warehouse_id, zone, row_number, shelf) 唯一约束，并发创建时返回同一行
func (r *PostgresLocationsRepository) GetOrCreate(ctx context.Context, warehouseID int64, c models.Coordinate) (*models.Location, error) {
	q := `
		INSERT INTO locations (warehouse_id, zone, row_number, shelf)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (warehouse_id, zone, row_number, shelf)
		DO UPDATE SET zone = EXCLUDED.zone
		RETURNING id
	`
	loc := models.Location{WarehouseID: warehouseID, Coordinate: c}
	if err := r.db.QueryRowContext(ctx, q, warehouseID, c.Zone, c.Row, c.Shelf).Scan(&loc.ID); err != nil {
		return nil, fmt.Errorf("get or create location: %w", err)
	}
	return &loc, nil
}

func (r *PostgresLocationsRepository) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*models.Location, error) {
	q := `
		SELECT id, zone, row_number, shelf
		FROM locations
		WHERE warehouse_id = $1
		ORDER BY zone, row_number, shelf
	`
	rows, err := r.db.QueryContext(ctx, q, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Location{}
	for rows.Next() {
		loc := models.Location{WarehouseID: warehouseID}
		if err := rows.Scan(&loc.ID, &loc.Zone, &loc.Row, &loc.Shelf); err != nil {
			return nil, err
		}
		out = append(out, &loc)
	}
	return out, rows.Err()
}
