package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/service"
	"github.com/mmeshcher/merchplan-system/internal/validation"
)

type storeRequest struct {
	Name               string           `json:"name"`
	Address            string           `json:"address"`
	Latitude           *decimal.Decimal `json:"latitude"`
	Longitude          *decimal.Decimal `json:"longitude"`
	ContactPersonName  string           `json:"contact_person_name"`
	ContactPersonPhone string           `json:"contact_person_phone"`
}

func (req *storeRequest) toInput() *service.StoreInput {
	return &service.StoreInput{
		Name:               req.Name,
		Address:            req.Address,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		ContactPersonName:  req.ContactPersonName,
		ContactPersonPhone: req.ContactPersonPhone,
	}
}

type storeResponse struct {
	ID                 int64            `json:"id"`
	Name               string           `json:"name"`
	Address            string           `json:"address"`
	Latitude           *decimal.Decimal `json:"latitude"`
	Longitude          *decimal.Decimal `json:"longitude"`
	ContactPersonName  string           `json:"contact_person_name,omitempty"`
	ContactPersonPhone string           `json:"contact_person_phone,omitempty"`
	CreatedAt          string           `json:"created_at,omitempty"`
	UpdatedAt          string           `json:"updated_at,omitempty"`
}

func toStoreResponse(s *model.Store) storeResponse {
	return storeResponse{
		ID:                 s.ID,
		Name:               s.Name,
		Address:            s.Address,
		Latitude:           s.Latitude,
		Longitude:          s.Longitude,
		ContactPersonName:  s.ContactPersonName,
		ContactPersonPhone: s.ContactPersonPhone,
		CreatedAt:          s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          s.UpdatedAt.Format(time.RFC3339),
	}
}

func toStoreResponses(stores []model.Store) []storeResponse {
	resp := make([]storeResponse, 0, len(stores))
	for i := range stores {
		resp = append(resp, toStoreResponse(&stores[i]))
	}
	return resp
}

// ListStores возвращает все торговые точки.
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.service.ListStores(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "list stores")
		return
	}
	h.writeJSON(w, http.StatusOK, toStoreResponses(stores))
}

// CreateStore создаёт торговую точку.
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store, err := h.service.CreateStore(r.Context(), caller, req.toInput())
	if err != nil {
		h.handleServiceError(w, err, "create store")
		return
	}

	h.writeJSON(w, http.StatusCreated, toStoreResponse(store))
}

// GetStore возвращает торговую точку по идентификатору.
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	store, err := h.service.GetStore(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err, "get store")
		return
	}

	h.writeJSON(w, http.StatusOK, toStoreResponse(store))
}

// UpdateStore обновляет торговую точку.
func (h *Handler) UpdateStore(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, err := idFromURL(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store, err := h.service.UpdateStore(r.Context(), caller, id, req.toInput())
	if err != nil {
		h.handleServiceError(w, err, "update store")
		return
	}

	h.writeJSON(w, http.StatusOK, toStoreResponse(store))
}

// DeleteStore удаляет торговую точку.
func (h *Handler) DeleteStore(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, err := idFromURL(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.service.DeleteStore(r.Context(), caller, id); err != nil {
		h.handleServiceError(w, err, "delete store")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMapStores возвращает точки с координатами для отображения на карте.
// Необязательный параметр plan_date сужает выборку до планов на дату.
func (h *Handler) ListMapStores(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var planDate *time.Time
	if raw := r.URL.Query().Get("plan_date"); raw != "" {
		d, err := validation.ParseDate(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "plan_date must be in YYYY-MM-DD format")
			return
		}
		planDate = &d
	}

	stores, err := h.service.ListMapStores(r.Context(), caller, planDate)
	if err != nil {
		h.handleServiceError(w, err, "list map stores")
		return
	}

	h.writeJSON(w, http.StatusOK, toStoreResponses(stores))
}
