package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/merchplan-system/internal/model"
)

// UpsertStoreMetrics сохраняет срезы метрик за дату. Повторное сохранение за ту
// же дату перезаписывает прежние значения: на пару (точка, дата) существует не
// более одной строки. Запись выполняется в одной транзакции с повтором при
// транзиентных сбоях.
func (r *PostgresRepository) UpsertStoreMetrics(ctx context.Context, metrics []model.StoreMetric) error {
	return r.withRetry(ctx, func() error {
		return r.upsertStoreMetrics(ctx, metrics)
	})
}

func (r *PostgresRepository) upsertStoreMetrics(ctx context.Context, metrics []model.StoreMetric) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range metrics {
		_, err = tx.Exec(ctx,
			`INSERT INTO store_metrics (store_id, date, total_orders_count, total_quantity_ordered, average_order_amount)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (store_id, date) DO UPDATE
			 SET total_orders_count = EXCLUDED.total_orders_count,
			     total_quantity_ordered = EXCLUDED.total_quantity_ordered,
			     average_order_amount = EXCLUDED.average_order_amount,
			     updated_at = now()`,
			m.StoreID, m.Date, m.TotalOrdersCount, m.TotalQuantityOrdered, m.AverageOrderAmount.String(),
		)
		if err != nil {
			return fmt.Errorf("upsert store metric: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// ListStoreMetrics возвращает сохранённые срезы метрик, новые даты первыми.
func (r *PostgresRepository) ListStoreMetrics(ctx context.Context) ([]model.StoreMetric, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.store_id, s.name, m.date, m.total_orders_count,
		        m.total_quantity_ordered, m.average_order_amount::text, m.created_at, m.updated_at
		 FROM store_metrics m
		 JOIN stores s ON s.id = m.store_id
		 ORDER BY m.date DESC, s.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select store metrics: %w", err)
	}
	defer rows.Close()

	var metrics []model.StoreMetric
	for rows.Next() {
		var m model.StoreMetric
		var avg string
		if err := rows.Scan(&m.ID, &m.StoreID, &m.StoreName, &m.Date, &m.TotalOrdersCount,
			&m.TotalQuantityOrdered, &avg, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan store metric: %w", err)
		}
		if m.AverageOrderAmount, err = scanDecimal(avg); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return metrics, nil
}

// GetStoreMetric возвращает сохранённый срез метрик по идентификатору.
func (r *PostgresRepository) GetStoreMetric(ctx context.Context, id int64) (*model.StoreMetric, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT m.id, m.store_id, s.name, m.date, m.total_orders_count,
		        m.total_quantity_ordered, m.average_order_amount::text, m.created_at, m.updated_at
		 FROM store_metrics m
		 JOIN stores s ON s.id = m.store_id
		 WHERE m.id = $1`,
		id,
	)

	var m model.StoreMetric
	var avg string
	err := row.Scan(&m.ID, &m.StoreID, &m.StoreName, &m.Date, &m.TotalOrdersCount,
		&m.TotalQuantityOrdered, &avg, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMetricNotFound
		}
		return nil, fmt.Errorf("get store metric: %w", err)
	}
	if m.AverageOrderAmount, err = scanDecimal(avg); err != nil {
		return nil, err
	}

	return &m, nil
}
