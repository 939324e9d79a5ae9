package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/merchplan-system/internal/model"
)

// mapOrderWriteError переводит нарушения внешних ключей заказа в доменные ошибки.
func mapOrderWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		switch {
		case strings.Contains(pgErr.ConstraintName, "store"):
			return ErrStoreNotFound
		case strings.Contains(pgErr.ConstraintName, "product"):
			return ErrProductNotFound
		case strings.Contains(pgErr.ConstraintName, "merchandiser"):
			return ErrUserNotFound
		}
	}
	return err
}

// CreateOrder создаёт заказ вместе с позициями в одной транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (store_id, merchandiser_id, order_date, status, total_amount)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		o.StoreID, o.MerchandiserID, o.OrderDate, string(o.Status), o.TotalAmount.String(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", mapOrderWriteError(err))
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price_per_unit)
			 VALUES ($1, $2, $3, $4)`,
			id, item.ProductID, item.Quantity, item.PricePerUnit.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", mapOrderWriteError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetOrder возвращает заказ с позициями по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT o.id, o.store_id, s.name, o.merchandiser_id, u.login,
		        o.order_date, o.status, o.total_amount::text, o.created_at, o.updated_at
		 FROM orders o
		 JOIN stores s ON s.id = o.store_id
		 JOIN users u ON u.id = o.merchandiser_id
		 WHERE o.id = $1`,
		id,
	)

	var o model.Order
	var status, total string
	err := row.Scan(&o.ID, &o.StoreID, &o.StoreName, &o.MerchandiserID, &o.Merchandiser,
		&o.OrderDate, &status, &total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = model.OrderStatus(status)
	if o.TotalAmount, err = scanDecimal(total); err != nil {
		return nil, err
	}

	items, err := r.listOrderItems(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]

	return &o, nil
}

// ListOrders возвращает заказы, отсортированные по дате (новые первыми).
// При merchandiserID > 0 выборка ограничивается заказами этого мерчендайзера.
func (r *PostgresRepository) ListOrders(ctx context.Context, merchandiserID int64) ([]model.Order, error) {
	query := `SELECT o.id, o.store_id, s.name, o.merchandiser_id, u.login,
	                 o.order_date, o.status, o.total_amount::text, o.created_at, o.updated_at
	          FROM orders o
	          JOIN stores s ON s.id = o.store_id
	          JOIN users u ON u.id = o.merchandiser_id`
	args := []any{}
	if merchandiserID > 0 {
		query += ` WHERE o.merchandiser_id = $1`
		args = append(args, merchandiserID)
	}
	query += ` ORDER BY o.order_date DESC, o.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	var ids []int64
	for rows.Next() {
		var o model.Order
		var status, total string
		if err := rows.Scan(&o.ID, &o.StoreID, &o.StoreName, &o.MerchandiserID, &o.Merchandiser,
			&o.OrderDate, &status, &total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		if o.TotalAmount, err = scanDecimal(total); err != nil {
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(ids) > 0 {
		items, err := r.listOrderItems(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range orders {
			orders[i].Items = items[orders[i].ID]
		}
	}

	return orders, nil
}

func (r *PostgresRepository) listOrderItems(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT oi.order_id, oi.id, oi.product_id, p.name, oi.quantity, oi.price_per_unit::text
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ANY($1)
		 ORDER BY oi.id`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	res := make(map[int64][]model.OrderItem)
	for rows.Next() {
		var orderID int64
		var item model.OrderItem
		var price string
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.PricePerUnit, err = scanDecimal(price); err != nil {
			return nil, err
		}
		res[orderID] = append(res[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateOrder обновляет заказ и при replaceItems сверяет позиции с переданным
// списком: совпавшие по id обновляются, новые создаются, отсутствующие удаляются.
// Всё выполняется в одной транзакции, чтобы читатель не увидел частичное состояние.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, o *model.Order, replaceItems bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE orders
		 SET store_id = $2, order_date = $3, status = $4, total_amount = $5, updated_at = now()
		 WHERE id = $1`,
		o.ID, o.StoreID, o.OrderDate, string(o.Status), o.TotalAmount.String(),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", mapOrderWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	if replaceItems {
		keepIDs := make([]int64, 0, len(o.Items))
		for i := range o.Items {
			item := &o.Items[i]
			if item.ID > 0 {
				itemTag, err := tx.Exec(ctx,
					`UPDATE order_items
					 SET product_id = $3, quantity = $4, price_per_unit = $5, updated_at = now()
					 WHERE id = $1 AND order_id = $2`,
					item.ID, o.ID, item.ProductID, item.Quantity, item.PricePerUnit.String(),
				)
				if err != nil {
					return fmt.Errorf("update order item: %w", mapOrderWriteError(err))
				}
				if itemTag.RowsAffected() == 1 {
					keepIDs = append(keepIDs, item.ID)
					continue
				}
				// Неизвестный id — создаём позицию заново.
			}

			err = tx.QueryRow(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, price_per_unit)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				o.ID, item.ProductID, item.Quantity, item.PricePerUnit.String(),
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", mapOrderWriteError(err))
			}
			keepIDs = append(keepIDs, item.ID)
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM order_items WHERE order_id = $1 AND NOT (id = ANY($2))`,
			o.ID, keepIDs,
		)
		if err != nil {
			return fmt.Errorf("delete removed order items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// DeleteOrder удаляет заказ вместе с позициями.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// AggregateStoreMetrics агрегирует заказы в диапазоне дат (включительно)
// по торговым точкам. Точки без заказов в диапазоне не попадают в результат.
func (r *PostgresRepository) AggregateStoreMetrics(ctx context.Context, start, end time.Time) ([]model.StoreMetric, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.store_id, s.name,
		        COUNT(o.id),
		        COALESCE(SUM(iq.qty), 0),
		        COALESCE(AVG(o.total_amount), 0)::text
		 FROM orders o
		 JOIN stores s ON s.id = o.store_id
		 LEFT JOIN LATERAL (
		     SELECT SUM(quantity) AS qty FROM order_items WHERE order_id = o.id
		 ) iq ON TRUE
		 WHERE o.order_date >= $1 AND o.order_date <= $2
		 GROUP BY o.store_id, s.name
		 ORDER BY s.name`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate store metrics: %w", err)
	}
	defer rows.Close()

	var metrics []model.StoreMetric
	for rows.Next() {
		var m model.StoreMetric
		var avg string
		if err := rows.Scan(&m.StoreID, &m.StoreName, &m.TotalOrdersCount, &m.TotalQuantityOrdered, &avg); err != nil {
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
