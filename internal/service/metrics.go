package service

import (
	"context"
	"time"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/validation"
)

// metricsRangeStart задаёт нижнюю границу накопительного периода при сохранении
// метрик: показатели считаются от этой даты до целевой включительно.
var metricsRangeStart = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// ComputeMetrics агрегирует показатели точек по заказам за период [start, end]
// включительно. Точки без заказов за период в результат не попадают, средний
// чек округляется до копеек. Результат не сохраняется.
func (s *Service) ComputeMetrics(ctx context.Context, start, end time.Time) ([]model.StoreMetric, error) {
	if start.After(end) {
		return nil, ErrInvalidRange
	}

	metrics, err := s.repo.AggregateStoreMetrics(ctx, start, end)
	if err != nil {
		return nil, err
	}

	for i := range metrics {
		metrics[i].AverageOrderAmount = metrics[i].AverageOrderAmount.Round(2)
	}
	return metrics, nil
}

// SaveMetrics вычисляет накопительные показатели всех точек на целевую дату и
// сохраняет их как срез за эту дату. Повторное сохранение за ту же дату
// перезаписывает прежний срез.
func (s *Service) SaveMetrics(ctx context.Context, caller Caller, targetDate time.Time) ([]model.StoreMetric, error) {
	metrics, err := s.ComputeMetrics(ctx, metricsRangeStart, targetDate)
	if err != nil {
		return nil, err
	}

	for i := range metrics {
		metrics[i].Date = targetDate
	}

	if len(metrics) > 0 {
		if err := s.repo.UpsertStoreMetrics(ctx, metrics); err != nil {
			return nil, err
		}
	}

	s.writeLog(ctx, caller, "metrics_saved", map[string]any{
		"date":         targetDate.Format(validation.DateLayout),
		"stores_count": len(metrics),
	})

	return metrics, nil
}

// ListStoreMetrics возвращает сохранённые срезы метрик.
func (s *Service) ListStoreMetrics(ctx context.Context) ([]model.StoreMetric, error) {
	return s.repo.ListStoreMetrics(ctx)
}

// GetStoreMetric возвращает сохранённый срез метрик по идентификатору.
func (s *Service) GetStoreMetric(ctx context.Context, id int64) (*model.StoreMetric, error) {
	return s.repo.GetStoreMetric(ctx, id)
}
