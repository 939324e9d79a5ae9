package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/merchplan-system/internal/model"
)

// mapPlanWriteError переводит нарушения ограничений плана в доменные ошибки.
func mapPlanWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		if strings.Contains(pgErr.ConstraintName, "visit_order") {
			return ErrDuplicateVisitOrder
		}
		return ErrPlanExists
	case pgerrcode.ForeignKeyViolation:
		switch {
		case strings.Contains(pgErr.ConstraintName, "store"):
			return ErrStoreNotFound
		case strings.Contains(pgErr.ConstraintName, "merchandiser"):
			return ErrUserNotFound
		}
	}
	return err
}

// CreatePlan создаёт дневной план вместе с посещениями в одной транзакции.
func (r *PostgresRepository) CreatePlan(ctx context.Context, p *model.DailyPlan) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO daily_plans (merchandiser_id, plan_date, notes)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		p.MerchandiserID, p.PlanDate, p.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert daily plan: %w", mapPlanWriteError(err))
	}

	for _, v := range p.Visits {
		_, err = tx.Exec(ctx,
			`INSERT INTO plan_visits (plan_id, store_id, visit_order, completed, visited_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, v.StoreID, v.VisitOrder, v.Completed, v.VisitedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert plan visit: %w", mapPlanWriteError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetPlan возвращает дневной план с посещениями по идентификатору.
func (r *PostgresRepository) GetPlan(ctx context.Context, id int64) (*model.DailyPlan, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT p.id, p.merchandiser_id, u.login, p.plan_date, p.notes, p.created_at, p.updated_at
		 FROM daily_plans p
		 JOIN users u ON u.id = p.merchandiser_id
		 WHERE p.id = $1`,
		id,
	)

	var p model.DailyPlan
	err := row.Scan(&p.ID, &p.MerchandiserID, &p.Merchandiser, &p.PlanDate, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("get daily plan: %w", err)
	}

	visits, err := r.listPlanVisits(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	p.Visits = visits[id]

	return &p, nil
}

// ListPlans возвращает дневные планы, отсортированные по дате (новые первыми).
// При merchandiserID > 0 выборка ограничивается планами этого мерчендайзера.
func (r *PostgresRepository) ListPlans(ctx context.Context, merchandiserID int64) ([]model.DailyPlan, error) {
	query := `SELECT p.id, p.merchandiser_id, u.login, p.plan_date, p.notes, p.created_at, p.updated_at
	          FROM daily_plans p
	          JOIN users u ON u.id = p.merchandiser_id`
	args := []any{}
	if merchandiserID > 0 {
		query += ` WHERE p.merchandiser_id = $1`
		args = append(args, merchandiserID)
	}
	query += ` ORDER BY p.plan_date DESC, p.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select daily plans: %w", err)
	}
	defer rows.Close()

	var plans []model.DailyPlan
	var ids []int64
	for rows.Next() {
		var p model.DailyPlan
		if err := rows.Scan(&p.ID, &p.MerchandiserID, &p.Merchandiser, &p.PlanDate, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan daily plan: %w", err)
		}
		plans = append(plans, p)
		ids = append(ids, p.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(ids) > 0 {
		visits, err := r.listPlanVisits(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range plans {
			plans[i].Visits = visits[plans[i].ID]
		}
	}

	return plans, nil
}

func (r *PostgresRepository) listPlanVisits(ctx context.Context, planIDs []int64) (map[int64][]model.StoreVisit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pv.plan_id, pv.id, pv.store_id, s.name, s.address, pv.visit_order, pv.completed, pv.visited_at
		 FROM plan_visits pv
		 JOIN stores s ON s.id = pv.store_id
		 WHERE pv.plan_id = ANY($1)
		 ORDER BY pv.visit_order`,
		planIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select plan visits: %w", err)
	}
	defer rows.Close()

	res := make(map[int64][]model.StoreVisit)
	for rows.Next() {
		var planID int64
		var v model.StoreVisit
		if err := rows.Scan(&planID, &v.ID, &v.StoreID, &v.StoreName, &v.StoreAddress, &v.VisitOrder, &v.Completed, &v.VisitedAt); err != nil {
			return nil, fmt.Errorf("scan plan visit: %w", err)
		}
		res[planID] = append(res[planID], v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdatePlan обновляет план и при reconcileVisits сверяет посещения с переданным
// списком: совпавшие по id обновляются на месте, новые создаются, отсутствующие
// удаляются. Порядок посещений берётся из запроса как есть, без перенумерации.
func (r *PostgresRepository) UpdatePlan(ctx context.Context, p *model.DailyPlan, reconcileVisits bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE daily_plans SET plan_date = $2, notes = $3, updated_at = now() WHERE id = $1`,
		p.ID, p.PlanDate, p.Notes,
	)
	if err != nil {
		return fmt.Errorf("update daily plan: %w", mapPlanWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}

	if reconcileVisits {
		// Сначала удаляем выбывшие посещения, чтобы освободить их visit_order
		// до обновления оставшихся строк.
		keepIDs := make([]int64, 0, len(p.Visits))
		for _, v := range p.Visits {
			if v.ID > 0 {
				keepIDs = append(keepIDs, v.ID)
			}
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM plan_visits WHERE plan_id = $1 AND NOT (id = ANY($2))`,
			p.ID, keepIDs,
		)
		if err != nil {
			return fmt.Errorf("delete removed plan visits: %w", err)
		}

		// Сдвигаем оставшиеся visit_order во временный диапазон, иначе перестановка
		// номеров между строками упрётся в уникальный индекс внутри транзакции.
		_, err = tx.Exec(ctx,
			`UPDATE plan_visits SET visit_order = visit_order + 1000000 WHERE plan_id = $1`,
			p.ID,
		)
		if err != nil {
			return fmt.Errorf("shift plan visit orders: %w", err)
		}

		for i := range p.Visits {
			v := &p.Visits[i]
			if v.ID > 0 {
				visitTag, err := tx.Exec(ctx,
					`UPDATE plan_visits
					 SET store_id = $3, visit_order = $4, completed = $5, visited_at = $6, updated_at = now()
					 WHERE id = $1 AND plan_id = $2`,
					v.ID, p.ID, v.StoreID, v.VisitOrder, v.Completed, v.VisitedAt,
				)
				if err != nil {
					return fmt.Errorf("update plan visit: %w", mapPlanWriteError(err))
				}
				if visitTag.RowsAffected() == 1 {
					continue
				}
				// Неизвестный id — создаём посещение заново.
			}

			err = tx.QueryRow(ctx,
				`INSERT INTO plan_visits (plan_id, store_id, visit_order, completed, visited_at)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				p.ID, v.StoreID, v.VisitOrder, v.Completed, v.VisitedAt,
			).Scan(&v.ID)
			if err != nil {
				return fmt.Errorf("insert plan visit: %w", mapPlanWriteError(err))
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// DeletePlan удаляет дневной план вместе с посещениями.
func (r *PostgresRepository) DeletePlan(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM daily_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete daily plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}
