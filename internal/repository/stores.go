package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/merchplan-system/internal/model"
)

const storeColumns = `id, name, address, latitude::text, longitude::text,
	contact_person_name, contact_person_phone, created_at, updated_at`

func scanStore(row pgx.Row) (*model.Store, error) {
	var s model.Store
	var lat, lon *string
	err := row.Scan(&s.ID, &s.Name, &s.Address, &lat, &lon,
		&s.ContactPersonName, &s.ContactPersonPhone, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if s.Latitude, err = scanNullDecimal(lat); err != nil {
		return nil, err
	}
	if s.Longitude, err = scanNullDecimal(lon); err != nil {
		return nil, err
	}

	return &s, nil
}

// CreateStore создаёт новую торговую точку и возвращает её идентификатор.
func (r *PostgresRepository) CreateStore(ctx context.Context, s *model.Store) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO stores (name, address, latitude, longitude, contact_person_name, contact_person_phone)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		s.Name, s.Address, decimalToString(s.Latitude), decimalToString(s.Longitude),
		s.ContactPersonName, s.ContactPersonPhone,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create store: %w", err)
	}
	return id, nil
}

// GetStore возвращает торговую точку по идентификатору.
func (r *PostgresRepository) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = $1`, id,
	)

	s, err := scanStore(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return s, nil
}

// ListStores возвращает все торговые точки, отсортированные по названию.
func (r *PostgresRepository) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+storeColumns+` FROM stores ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select stores: %w", err)
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stores, nil
}

// ListStoresByIDs возвращает торговые точки по списку идентификаторов.
// Порядок результата не гарантируется.
func (r *PostgresRepository) ListStoresByIDs(ctx context.Context, ids []int64) ([]model.Store, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select stores by ids: %w", err)
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stores, nil
}

// UpdateStore обновляет данные торговой точки.
func (r *PostgresRepository) UpdateStore(ctx context.Context, s *model.Store) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stores
		 SET name = $2, address = $3, latitude = $4, longitude = $5,
		     contact_person_name = $6, contact_person_phone = $7, updated_at = now()
		 WHERE id = $1`,
		s.ID, s.Name, s.Address, decimalToString(s.Latitude), decimalToString(s.Longitude),
		s.ContactPersonName, s.ContactPersonPhone,
	)
	if err != nil {
		return fmt.Errorf("update store: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStoreNotFound
	}
	return nil
}

// DeleteStore удаляет торговую точку по идентификатору.
func (r *PostgresRepository) DeleteStore(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete store: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStoreNotFound
	}
	return nil
}

// ListStoresWithCoordinates возвращает точки с заданными координатами.
// Если указан мерчендайзер, выборка ограничивается точками из его планов,
// опционально — только из плана на указанную дату.
func (r *PostgresRepository) ListStoresWithCoordinates(ctx context.Context, merchandiserID int64, planDate *time.Time) ([]model.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL`
	args := []any{}

	if merchandiserID > 0 {
		query += ` AND id IN (
			SELECT pv.store_id FROM plan_visits pv
			JOIN daily_plans dp ON dp.id = pv.plan_id
			WHERE dp.merchandiser_id = $1`
		args = append(args, merchandiserID)
		if planDate != nil {
			query += ` AND dp.plan_date = $2`
			args = append(args, *planDate)
		}
		query += `)`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select map stores: %w", err)
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stores, nil
}

// ListPlanStores возвращает точки плана с координатами в порядке посещения.
func (r *PostgresRepository) ListPlanStores(ctx context.Context, planID int64) ([]model.Store, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.address, s.latitude::text, s.longitude::text,
		        s.contact_person_name, s.contact_person_phone, s.created_at, s.updated_at
		 FROM plan_visits pv
		 JOIN stores s ON s.id = pv.store_id
		 WHERE pv.plan_id = $1 AND s.latitude IS NOT NULL AND s.longitude IS NOT NULL
		 ORDER BY pv.visit_order`,
		planID,
	)
	if err != nil {
		return nil, fmt.Errorf("select plan stores: %w", err)
	}
	defer rows.Close()

	var stores []model.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stores, nil
}
