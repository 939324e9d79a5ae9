package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/merchplan-system/internal/model"
)

// CreateLog сохраняет запись журнала действий.
func (r *PostgresRepository) CreateLog(ctx context.Context, userID int64, action string, details map[string]any) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO logs (user_id, action, details) VALUES ($1, $2, $3)`,
		userID, action, details,
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// ListLogs возвращает записи журнала, новые первыми.
func (r *PostgresRepository) ListLogs(ctx context.Context, limit int) ([]model.LogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.id, l.user_id, COALESCE(u.login, ''), l.action, l.details, l.created_at
		 FROM logs l
		 LEFT JOIN users u ON u.id = l.user_id
		 ORDER BY l.created_at DESC, l.id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select logs: %w", err)
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserLogin, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}
