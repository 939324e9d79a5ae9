package service

import (
	"context"
	"fmt"
	"math"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/repository"
	"github.com/mmeshcher/merchplan-system/internal/routing"
)

// RouteInput содержит параметры расчёта маршрута.
// RoundTrip включает оптимизацию порядка посещения и замыкает маршрут
// на первую точку.
type RouteInput struct {
	StoreIDs  []int64
	RoundTrip bool
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateRoute рассчитывает маршрут по торговым точкам через внешний сервис.
// Точки без координат отбрасываются с сохранением исходного порядка; если
// пригодных точек меньше двух, запрос к сервису не выполняется.
func (s *Service) CalculateRoute(ctx context.Context, caller Caller, in *RouteInput) (*model.RouteResult, error) {
	if len(in.StoreIDs) == 0 {
		return nil, validationErr("store_ids", "is required")
	}
	if s.routeClient == nil {
		return nil, fmt.Errorf("%w: routing service is not configured", ErrRouteService)
	}

	stores, err := s.repo.ListStoresByIDs(ctx, in.StoreIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.Store, len(stores))
	for i := range stores {
		byID[stores[i].ID] = &stores[i]
	}

	// Точки собираются в порядке запроса; неизвестный идентификатор — ошибка,
	// точка без координат просто пропускается.
	var routable []*model.Store
	for _, id := range in.StoreIDs {
		store, ok := byID[id]
		if !ok {
			return nil, repository.ErrStoreNotFound
		}
		if store.HasCoordinates() {
			routable = append(routable, store)
		}
	}

	if len(routable) < 2 {
		return nil, ErrInsufficientWaypoints
	}

	points := make([]routing.Point, 0, len(routable))
	for _, store := range routable {
		points = append(points, routing.Point{
			Latitude:  store.Latitude.InexactFloat64(),
			Longitude: store.Longitude.InexactFloat64(),
		})
	}

	trip, err := s.routeClient.CalculateRoute(ctx, points, in.RoundTrip)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRouteService, err)
	}

	ordered := make([]model.RoutePoint, 0, len(routable))
	for _, idx := range trip.WaypointOrder {
		store := routable[idx]
		ordered = append(ordered, model.RoutePoint{
			StoreID:   store.ID,
			StoreName: store.Name,
			Address:   store.Address,
			Latitude:  *store.Latitude,
			Longitude: *store.Longitude,
		})
	}

	result := &model.RouteResult{
		TotalDistanceKm:  round2(trip.DistanceMeters / 1000),
		TotalDurationMin: round2(trip.DurationSeconds / 60),
		OrderedPoints:    ordered,
		Geometry:         trip.Geometry,
		Optimized:        in.RoundTrip,
	}

	s.writeLog(ctx, caller, "route_calculated", map[string]any{
		"stores_count": len(ordered),
		"round_trip":   in.RoundTrip,
	})

	return result, nil
}
