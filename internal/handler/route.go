package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/service"
)

type routeRequest struct {
	StoreIDs  []int64 `json:"store_ids"`
	RoundTrip bool    `json:"round_trip"`
}

type routePointResponse struct {
	StoreID   int64           `json:"store_id"`
	StoreName string          `json:"store_name"`
	Address   string          `json:"address"`
	Latitude  decimal.Decimal `json:"latitude"`
	Longitude decimal.Decimal `json:"longitude"`
}

type routeResponse struct {
	TotalDistanceKm  float64              `json:"total_distance_km"`
	TotalDurationMin float64              `json:"total_duration_min"`
	OrderedPoints    []routePointResponse `json:"ordered_points"`
	Geometry         string               `json:"geometry"`
	Optimized        bool                 `json:"optimized"`
}

func toRouteResponse(res *model.RouteResult) routeResponse {
	points := make([]routePointResponse, 0, len(res.OrderedPoints))
	for _, p := range res.OrderedPoints {
		points = append(points, routePointResponse{
			StoreID:   p.StoreID,
			StoreName: p.StoreName,
			Address:   p.Address,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		})
	}

	return routeResponse{
		TotalDistanceKm:  res.TotalDistanceKm,
		TotalDurationMin: res.TotalDurationMin,
		OrderedPoints:    points,
		Geometry:         res.Geometry,
		Optimized:        res.Optimized,
	}
}

// CalculateRoute рассчитывает маршрут по торговым точкам через внешний сервис.
func (h *Handler) CalculateRoute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.CalculateRoute(r.Context(), caller, &service.RouteInput{
		StoreIDs:  req.StoreIDs,
		RoundTrip: req.RoundTrip,
	})
	if err != nil {
		h.handleServiceError(w, err, "calculate route")
		return
	}

	h.writeJSON(w, http.StatusOK, toRouteResponse(result))
}
