package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

type PostgresHistoryRepository struct {
	db DBTX
}

func NewPostgresHistoryRepository(db DBTX) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{db: db}
}

// LatestFor 按创建顺序取最新；created_at 相同时以 id 区分
func (r *PostgresHistoryRepository) LatestFor(ctx context.Context, productID, locationID, warehouseID int64) (*models.InventoryHistoryRecord, error) {
	q := `
		SELECT
			id,
			correlation_id,
			expected_quantity,
			actual_quantity,
			difference,
			status,
			scanned_at,
			created_at
		FROM inventory_history
		WHERE product_id = $1 AND location_id = $2 AND warehouse_id = $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	rec := models.InventoryHistoryRecord{
		ProductID:   productID,
		LocationID:  locationID,
		WarehouseID: warehouseID,
	}
	err := r.db.QueryRowContext(ctx, q, productID, locationID, warehouseID).Scan(
		&rec.ID,
		&rec.CorrelationID,
		&rec.ExpectedQuantity,
		&rec.ActualQuantity,
		&rec.Difference,
		&rec.Status,
		&rec.ScannedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("no history for product_id=%d location_id=%d", productID, locationID)
		}
		return nil, fmt.Errorf("latest history: %w", err)
	}
	return &rec, nil
}

func (r *PostgresHistoryRepository) Create(ctx context.Context, rec *models.InventoryHistoryRecord) error {
	q := `
		INSERT INTO inventory_history (
			correlation_id,
			warehouse_id,
			robot_id,
			product_id,
			location_id,
			expected_quantity,
			actual_quantity,
			difference,
			status,
			scanned_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, q,
		rec.CorrelationID,
		rec.WarehouseID,
		rec.RobotID,
		rec.ProductID,
		rec.LocationID,
		rec.ExpectedQuantity,
		rec.ActualQuantity,
		rec.Difference,
		string(rec.Status),
		rec.ScannedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history %s: %w", rec.CorrelationID, err)
	}
	return nil
}

func (r *PostgresHistoryRepository) RecentScanTimes(ctx context.Context, locationID, warehouseID int64, limit int) ([]time.Time, error) {
	q := `
		SELECT scanned_at
		FROM inventory_history
		WHERE location_id = $1 AND warehouse_id = $2
		ORDER BY scanned_at DESC, id DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, q, locationID, warehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]time.Time, 0, limit)
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t.UTC())
	}
	return out, rows.Err()
}

func (r *PostgresHistoryRepository) CountSince(ctx context.Context, locationID, warehouseID int64, since time.Time) (int, error) {
	q := `
		SELECT COUNT(*)
		FROM inventory_history
		WHERE location_id = $1 AND warehouse_id = $2 AND scanned_at >= $3
	`
	var n int
	if err := r.db.QueryRowContext(ctx, q, locationID, warehouseID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

func (r *PostgresHistoryRepository) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*models.InventoryHistoryRecord, error) {
	q := `
		SELECT
			h.id,
			h.correlation_id,
			h.warehouse_id,
			w.code,
			h.robot_id,
			rb.robot_code,
			h.product_id,
			p.code,
			h.location_id,
			h.expected_quantity,
			h.actual_quantity,
			h.difference,
			h.status,
			h.scanned_at,
			h.created_at
		FROM inventory_history h
		JOIN warehouses w ON w.id = h.warehouse_id
		JOIN robots rb ON rb.id = h.robot_id
		JOIN products p ON p.id = h.product_id
		WHERE h.warehouse_id = $1
		ORDER BY h.created_at, h.id
	`
	rows, err := r.db.QueryContext(ctx, q, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.InventoryHistoryRecord{}
	for rows.Next() {
		var rec models.InventoryHistoryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.CorrelationID,
			&rec.WarehouseID,
			&rec.WarehouseCode,
			&rec.RobotID,
			&rec.RobotCode,
			&rec.ProductID,
			&rec.ProductCode,
			&rec.LocationID,
			&rec.ExpectedQuantity,
			&rec.ActualQuantity,
			&rec.Difference,
			&rec.Status,
			&rec.ScannedAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
