package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/validation"
)

type metricResponse struct {
	ID                   int64           `json:"id,omitempty"`
	StoreID              int64           `json:"store_id"`
	StoreName            string          `json:"store_name"`
	Date                 string          `json:"date,omitempty"`
	TotalOrdersCount     int64           `json:"total_orders_count"`
	TotalQuantityOrdered int64           `json:"total_quantity_ordered"`
	AverageOrderAmount   decimal.Decimal `json:"average_order_amount"`
}

func toMetricResponse(m *model.StoreMetric) metricResponse {
	resp := metricResponse{
		ID:                   m.ID,
		StoreID:              m.StoreID,
		StoreName:            m.StoreName,
		TotalOrdersCount:     m.TotalOrdersCount,
		TotalQuantityOrdered: m.TotalQuantityOrdered,
		AverageOrderAmount:   m.AverageOrderAmount,
	}
	if !m.Date.IsZero() {
		resp.Date = m.Date.Format(validation.DateLayout)
	}
	return resp
}

func toMetricResponses(metrics []model.StoreMetric) []metricResponse {
	resp := make([]metricResponse, 0, len(metrics))
	for i := range metrics {
		resp = append(resp, toMetricResponse(&metrics[i]))
	}
	return resp
}

// ListStoreMetrics возвращает сохранённые срезы метрик.
func (h *Handler) ListStoreMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.ListStoreMetrics(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "list metrics")
		return
	}
	h.writeJSON(w, http.StatusOK, toMetricResponses(metrics))
}

// GetStoreMetric возвращает сохранённый срез метрик по идентификатору.
func (h *Handler) GetStoreMetric(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	metric, err := h.service.GetStoreMetric(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, "get metric")
		return
	}

	h.writeJSON(w, http.StatusOK, toMetricResponse(metric))
}

type calculateMetricsRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// CalculateMetrics вычисляет показатели точек за период, не сохраняя их.
func (h *Handler) CalculateMetrics(w http.ResponseWriter, r *http.Request) {
	var req calculateMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := validation.ParseDate(req.StartDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "start_date must be in YYYY-MM-DD format")
		return
	}
	end, err := validation.ParseDate(req.EndDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "end_date must be in YYYY-MM-DD format")
		return
	}

	metrics, err := h.service.ComputeMetrics(r.Context(), start, end)
	if err != nil {
		h.handleServiceError(w, err, "calculate metrics")
		return
	}

	h.writeJSON(w, http.StatusOK, toMetricResponses(metrics))
}

type saveMetricsRequest struct {
	Date string `json:"date"`
}

// SaveMetrics вычисляет накопительные показатели на дату и сохраняет срез.
// Дата по умолчанию — сегодня.
func (h *Handler) SaveMetrics(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req saveMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	targetDate := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		d, err := validation.ParseDate(req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
			return
		}
		targetDate = d
	}

	metrics, err := h.service.SaveMetrics(r.Context(), caller, targetDate)
	if err != nil {
		h.handleServiceError(w, err, "save metrics")
		return
	}

	h.writeJSON(w, http.StatusOK, toMetricResponses(metrics))
}

type logResponse struct {
	ID        int64          `json:"id"`
	UserID    *int64         `json:"user_id"`
	UserLogin string         `json:"user_login,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// ListLogs возвращает записи журнала действий, новые первыми.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := h.service.ListLogs(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, err, "list logs")
		return
	}

	resp := make([]logResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, logResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			UserLogin: e.UserLogin,
			Action:    e.Action,
			Details:   e.Details,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
