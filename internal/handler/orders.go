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

type orderItemRequest struct {
	ID           int64           `json:"id,omitempty"`
	ProductID    int64           `json:"product_id"`
	Quantity     int32           `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

func toOrderItemInputs(items []orderItemRequest) []service.OrderItemInput {
	res := make([]service.OrderItemInput, 0, len(items))
	for _, item := range items {
		res = append(res, service.OrderItemInput{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PricePerUnit: item.PricePerUnit,
		})
	}
	return res
}

type orderRequest struct {
	StoreID   int64              `json:"store_id"`
	OrderDate string             `json:"order_date"`
	Status    model.OrderStatus  `json:"status,omitempty"`
	Items     []orderItemRequest `json:"items"`
}

type orderUpdateRequest struct {
	StoreID   *int64             `json:"store_id"`
	OrderDate *string            `json:"order_date"`
	Status    *model.OrderStatus `json:"status"`
	Items     []orderItemRequest `json:"items"`
}

type orderItemResponse struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int32           `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

type orderResponse struct {
	ID                   int64               `json:"id"`
	StoreID              int64               `json:"store_id"`
	StoreName            string              `json:"store_name"`
	MerchandiserID       int64               `json:"merchandiser_id"`
	MerchandiserUsername string              `json:"merchandiser_username"`
	OrderDate            string              `json:"order_date"`
	Status               string              `json:"status"`
	TotalAmount          decimal.Decimal     `json:"total_amount"`
	Items                []orderItemResponse `json:"items"`
	CreatedAt            string              `json:"created_at,omitempty"`
	UpdatedAt            string              `json:"updated_at,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     item.Quantity,
			PricePerUnit: item.PricePerUnit,
		})
	}

	return orderResponse{
		ID:                   o.ID,
		StoreID:              o.StoreID,
		StoreName:            o.StoreName,
		MerchandiserID:       o.MerchandiserID,
		MerchandiserUsername: o.Merchandiser,
		OrderDate:            o.OrderDate.Format(validation.DateLayout),
		Status:               string(o.Status),
		TotalAmount:          o.TotalAmount,
		Items:                items,
		CreatedAt:            o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            o.UpdatedAt.Format(time.RFC3339),
	}
}

// ListOrders возвращает заказы: менеджеру — все, мерчендайзеру — только свои.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	orders, err := h.service.ListOrders(r.Context(), caller)
	if err != nil {
		h.handleServiceError(w, err, "list orders")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CreateOrder создаёт заказ от имени текущего пользователя. Итоговая сумма
// вычисляется сервером из позиций, значение из запроса игнорируется.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orderDate, err := validation.ParseDate(req.OrderDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "order_date must be in YYYY-MM-DD format")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), caller, &service.OrderInput{
		StoreID:   req.StoreID,
		OrderDate: orderDate,
		Status:    req.Status,
		Items:     toOrderItemInputs(req.Items),
	})
	if err != nil {
		h.handleServiceError(w, err, "create order")
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.service.GetOrder(r.Context(), caller, id)
	if err != nil {
		h.handleServiceError(w, err, "get order")
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// UpdateOrder частично обновляет заказ.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
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

	var req orderUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := &service.OrderUpdateInput{
		StoreID: req.StoreID,
		Status:  req.Status,
	}
	if req.OrderDate != nil {
		d, err := validation.ParseDate(*req.OrderDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "order_date must be in YYYY-MM-DD format")
			return
		}
		in.OrderDate = &d
	}
	if req.Items != nil {
		in.Items = toOrderItemInputs(req.Items)
	}

	order, err := h.service.UpdateOrder(r.Context(), caller, id, in)
	if err != nil {
		h.handleServiceError(w, err, "update order")
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// DeleteOrder удаляет заказ.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteOrder(r.Context(), caller, id); err != nil {
		h.handleServiceError(w, err, "delete order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
