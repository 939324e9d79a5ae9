package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/service"
	"github.com/mmeshcher/merchplan-system/internal/validation"
)

type visitRequest struct {
	ID         int64      `json:"id,omitempty"`
	StoreID    int64      `json:"store_id"`
	VisitOrder int32      `json:"visit_order"`
	Completed  bool       `json:"completed"`
	VisitedAt  *time.Time `json:"visited_at"`
}

func toVisitInputs(visits []visitRequest) []service.VisitInput {
	res := make([]service.VisitInput, 0, len(visits))
	for _, v := range visits {
		res = append(res, service.VisitInput{
			ID:         v.ID,
			StoreID:    v.StoreID,
			VisitOrder: v.VisitOrder,
			Completed:  v.Completed,
			VisitedAt:  v.VisitedAt,
		})
	}
	return res
}

type planRequest struct {
	MerchandiserID int64          `json:"merchandiser_id"`
	PlanDate       string         `json:"plan_date"`
	Notes          string         `json:"notes"`
	Visits         []visitRequest `json:"visits"`
}

type planUpdateRequest struct {
	PlanDate *string        `json:"plan_date"`
	Notes    *string        `json:"notes"`
	Visits   []visitRequest `json:"visits"`
}

type visitResponse struct {
	ID           int64      `json:"id"`
	StoreID      int64      `json:"store_id"`
	StoreName    string     `json:"store_name"`
	StoreAddress string     `json:"store_address"`
	VisitOrder   int32      `json:"visit_order"`
	Completed    bool       `json:"completed"`
	VisitedAt    *time.Time `json:"visited_at"`
}

type planResponse struct {
	ID                   int64           `json:"id"`
	MerchandiserID       int64           `json:"merchandiser_id"`
	MerchandiserUsername string          `json:"merchandiser_username"`
	PlanDate             string          `json:"plan_date"`
	Notes                string          `json:"notes,omitempty"`
	Visits               []visitResponse `json:"visits"`
	CreatedAt            string          `json:"created_at,omitempty"`
	UpdatedAt            string          `json:"updated_at,omitempty"`
}

func toPlanResponse(p *model.DailyPlan) planResponse {
	visits := make([]visitResponse, 0, len(p.Visits))
	for _, v := range p.Visits {
		visits = append(visits, visitResponse{
			ID:           v.ID,
			StoreID:      v.StoreID,
			StoreName:    v.StoreName,
			StoreAddress: v.StoreAddress,
			VisitOrder:   v.VisitOrder,
			Completed:    v.Completed,
			VisitedAt:    v.VisitedAt,
		})
	}

	return planResponse{
		ID:                   p.ID,
		MerchandiserID:       p.MerchandiserID,
		MerchandiserUsername: p.Merchandiser,
		PlanDate:             p.PlanDate.Format(validation.DateLayout),
		Notes:                p.Notes,
		Visits:               visits,
		CreatedAt:            p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            p.UpdatedAt.Format(time.RFC3339),
	}
}

// ListPlans возвращает дневные планы: менеджеру — все, мерчендайзеру — только свои.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	plans, err := h.service.ListPlans(r.Context(), caller)
	if err != nil {
		h.handleServiceError(w, err, "list plans")
		return
	}

	resp := make([]planResponse, 0, len(plans))
	for i := range plans {
		resp = append(resp, toPlanResponse(&plans[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CreatePlan создаёт дневной план посещений.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	planDate, err := validation.ParseDate(req.PlanDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "plan_date must be in YYYY-MM-DD format")
		return
	}

	plan, err := h.service.CreatePlan(r.Context(), caller, &service.PlanInput{
		MerchandiserID: req.MerchandiserID,
		PlanDate:       planDate,
		Notes:          req.Notes,
		Visits:         toVisitInputs(req.Visits),
	})
	if err != nil {
		h.handleServiceError(w, err, "create plan")
		return
	}

	h.writeJSON(w, http.StatusCreated, toPlanResponse(plan))
}

// GetPlan возвращает дневной план по идентификатору.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
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

	plan, err := h.service.GetPlan(r.Context(), caller, id)
	if err != nil {
		h.handleServiceError(w, err, "get plan")
		return
	}

	h.writeJSON(w, http.StatusOK, toPlanResponse(plan))
}

// UpdatePlan частично обновляет план. Переданный список посещений полностью
// заменяет прежний по сверке идентификаторов.
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
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

	var req planUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := &service.PlanUpdateInput{Notes: req.Notes}
	if req.PlanDate != nil {
		d, err := validation.ParseDate(*req.PlanDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "plan_date must be in YYYY-MM-DD format")
			return
		}
		in.PlanDate = &d
	}
	if req.Visits != nil {
		in.Visits = toVisitInputs(req.Visits)
	}

	plan, err := h.service.UpdatePlan(r.Context(), caller, id, in)
	if err != nil {
		h.handleServiceError(w, err, "update plan")
		return
	}

	h.writeJSON(w, http.StatusOK, toPlanResponse(plan))
}

// DeletePlan удаляет план вместе с посещениями.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeletePlan(r.Context(), caller, id); err != nil {
		h.handleServiceError(w, err, "delete plan")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListPlanStores возвращает точки плана с координатами в порядке посещения.
func (h *Handler) ListPlanStores(w http.ResponseWriter, r *http.Request) {
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

	stores, err := h.service.ListPlanStores(r.Context(), caller, id)
	if err != nil {
		h.handleServiceError(w, err, "list plan stores")
		return
	}

	h.writeJSON(w, http.StatusOK, toStoreResponses(stores))
}
