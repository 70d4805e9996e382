package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

type PostgresRobotsRepository struct {
	db DBTX
}

func NewPostgresRobotsRepository(db DBTX) *PostgresRobotsRepository {
	return &PostgresRobotsRepository{db: db}
}

const robotColumns = `
		r.id,
		r.robot_code,
		r.warehouse_id,
		COALESCE(w.code, ''),
		r.status,
		r.battery_level,
		r.current_zone,
		r.current_row,
		r.current_shelf,
		r.last_update
	FROM robots r
	LEFT JOIN warehouses w ON w.id = r.warehouse_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRobot(s rowScanner) (*models.Robot, error) {
	var (
		r           models.Robot
		warehouseID sql.NullInt64
		lastUpdate  sql.NullTime
	)
	if err := s.Scan(
		&r.ID,
		&r.Code,
		&warehouseID,
		&r.WarehouseCode,
		&r.Status,
		&r.BatteryLevel,
		&r.Location.Zone,
		&r.Location.Row,
		&r.Location.Shelf,
		&lastUpdate,
	); err != nil {
		return nil, err
	}
	if warehouseID.Valid {
		id := warehouseID.Int64
		r.WarehouseID = &id
	}
	if lastUpdate.Valid {
		t := lastUpdate.Time.UTC()
		r.LastUpdate = &t
	}
	return &r, nil
}

func (r *PostgresRobotsRepository) GetByCode(ctx context.Context, code string) (*models.Robot, error) {
	q := `SELECT` + robotColumns + `
		WHERE r.robot_code = $1 AND r.is_deleted = false`
	robot, err := scanRobot(r.db.QueryRowContext(ctx, q, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("robot not found: robot_code=%s", code)
		}
		return nil, fmt.Errorf("get robot %s: %w", code, err)
	}
	return robot, nil
}

func (r *PostgresRobotsRepository) ListAssigned(ctx context.Context) ([]*models.Robot, error) {
	q := `SELECT` + robotColumns + `
		WHERE r.is_deleted = false AND r.warehouse_id IS NOT NULL
		ORDER BY r.id`
	return r.list(ctx, q)
}

func (r *PostgresRobotsRepository) ListByWarehouse(ctx context.Context, warehouseID int64) ([]*models.Robot, error) {
	q := `SELECT` + robotColumns + `
		WHERE r.is_deleted = false AND r.warehouse_id = $1
		ORDER BY r.id`
	return r.list(ctx, q, warehouseID)
}

func (r *PostgresRobotsRepository) list(ctx context.Context, q string, args ...any) ([]*models.Robot, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Robot{}
	for rows.Next() {
		robot, err := scanRobot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, robot)
	}
	return out, rows.Err()
}

func (r *PostgresRobotsRepository) UpdateState(ctx context.Context, robot *models.Robot) error {
	q := `
		UPDATE robots
		SET battery_level = $2,
		    current_zone = $3,
		    current_row = $4,
		    current_shelf = $5,
		    status = $6,
		    last_update = $7
		WHERE id = $1 AND is_deleted = false
	`
	res, err := r.db.ExecContext(ctx, q,
		robot.ID,
		robot.BatteryLevel,
		robot.Location.Zone,
		robot.Location.Row,
		robot.Location.Shelf,
		robot.Status,
		robot.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("update robot %s: %w", robot.Code, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("robot not found: robot_code=%s", robot.Code)
	}
	return nil
}
