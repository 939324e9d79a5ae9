package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/repository"
	"github.com/mmeshcher/merchplan-system/internal/validation"
)

// VisitInput содержит данные посещения точки из запроса.
type VisitInput struct {
	ID         int64
	StoreID    int64
	VisitOrder int32
	Completed  bool
	VisitedAt  *time.Time
}

// PlanInput содержит данные для создания дневного плана.
type PlanInput struct {
	MerchandiserID int64
	PlanDate       time.Time
	Notes          string
	Visits         []VisitInput
}

// PlanUpdateInput содержит данные частичного обновления плана.
// Visits == nil оставляет посещения нетронутыми.
type PlanUpdateInput struct {
	PlanDate *time.Time
	Notes    *string
	Visits   []VisitInput
}

// validateVisits проверяет посещения целиком до любой записи в базу:
// номера посещений положительны и уникальны, каждая точка встречается не более раза.
func validateVisits(visits []VisitInput) error {
	orders := make(map[int32]struct{}, len(visits))
	stores := make(map[int64]struct{}, len(visits))
	for i, v := range visits {
		if v.StoreID <= 0 {
			return validationErr(fmt.Sprintf("visits[%d].store", i), "is required")
		}
		if v.VisitOrder <= 0 {
			return validationErr(fmt.Sprintf("visits[%d].visit_order", i), "must be a positive integer")
		}
		if _, ok := orders[v.VisitOrder]; ok {
			return validationErr(fmt.Sprintf("visits[%d].visit_order", i), "duplicates another visit in the plan")
		}
		orders[v.VisitOrder] = struct{}{}
		if _, ok := stores[v.StoreID]; ok {
			return validationErr(fmt.Sprintf("visits[%d].store", i), "is already in the plan")
		}
		stores[v.StoreID] = struct{}{}
	}
	return nil
}

func toStoreVisits(visits []VisitInput) []model.StoreVisit {
	res := make([]model.StoreVisit, 0, len(visits))
	for _, v := range visits {
		res = append(res, model.StoreVisit{
			ID:         v.ID,
			StoreID:    v.StoreID,
			VisitOrder: v.VisitOrder,
			Completed:  v.Completed,
			VisitedAt:  v.VisitedAt,
		})
	}
	return res
}

// CreatePlan создаёт дневной план. Менеджер назначает план любому мерчендайзеру,
// мерчендайзер — только себе. На пару (мерчендайзер, дата) допускается один план.
func (s *Service) CreatePlan(ctx context.Context, caller Caller, in *PlanInput) (*model.DailyPlan, error) {
	if in.MerchandiserID == 0 {
		in.MerchandiserID = caller.ID
	}
	if !caller.IsManager() && in.MerchandiserID != caller.ID {
		return nil, validationErr("merchandiser", "merchandiser can create plans only for themselves")
	}
	if in.PlanDate.IsZero() {
		return nil, validationErr("plan_date", "is required")
	}
	if err := validateVisits(in.Visits); err != nil {
		return nil, err
	}

	plan := &model.DailyPlan{
		MerchandiserID: in.MerchandiserID,
		PlanDate:       in.PlanDate,
		Notes:          in.Notes,
		Visits:         toStoreVisits(in.Visits),
	}

	id, err := s.repo.CreatePlan(ctx, plan)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	s.writeLog(ctx, caller, "daily_plan_created", map[string]any{
		"plan_id":   id,
		"plan_date": created.PlanDate.Format(validation.DateLayout),
	})

	return created, nil
}

// GetPlan возвращает план. Мерчендайзер видит только собственные планы.
func (s *Service) GetPlan(ctx context.Context, caller Caller, id int64) (*model.DailyPlan, error) {
	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsManager() && plan.MerchandiserID != caller.ID {
		return nil, repository.ErrPlanNotFound
	}
	return plan, nil
}

// ListPlans возвращает планы: менеджеру — все, мерчендайзеру — только свои.
func (s *Service) ListPlans(ctx context.Context, caller Caller) ([]model.DailyPlan, error) {
	if caller.IsManager() {
		return s.repo.ListPlans(ctx, 0)
	}
	return s.repo.ListPlans(ctx, caller.ID)
}

// UpdatePlan частично обновляет план. Если передан список посещений, он
// сверяется с текущим: совпавшие по id обновляются, новые создаются,
// отсутствующие удаляются. Весь список проверяется до записи, при ошибке
// валидации состояние плана не меняется.
func (s *Service) UpdatePlan(ctx context.Context, caller Caller, id int64, in *PlanUpdateInput) (*model.DailyPlan, error) {
	plan, err := s.GetPlan(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if in.PlanDate != nil {
		plan.PlanDate = *in.PlanDate
	}
	if in.Notes != nil {
		plan.Notes = *in.Notes
	}

	reconcile := in.Visits != nil
	if reconcile {
		if err := validateVisits(in.Visits); err != nil {
			return nil, err
		}
		plan.Visits = toStoreVisits(in.Visits)
	}

	if err := s.repo.UpdatePlan(ctx, plan, reconcile); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	s.writeLog(ctx, caller, "daily_plan_updated", map[string]any{
		"plan_id":   id,
		"plan_date": updated.PlanDate.Format(validation.DateLayout),
	})

	return updated, nil
}

// DeletePlan удаляет план вместе с посещениями.
func (s *Service) DeletePlan(ctx context.Context, caller Caller, id int64) error {
	plan, err := s.GetPlan(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeletePlan(ctx, id); err != nil {
		return err
	}

	s.writeLog(ctx, caller, "daily_plan_deleted", map[string]any{
		"plan_id":   id,
		"plan_date": plan.PlanDate.Format(validation.DateLayout),
	})
	return nil
}

// ListPlanStores возвращает точки плана с координатами в порядке посещения.
func (s *Service) ListPlanStores(ctx context.Context, caller Caller, planID int64) ([]model.Store, error) {
	if _, err := s.GetPlan(ctx, caller, planID); err != nil {
		return nil, err
	}
	return s.repo.ListPlanStores(ctx, planID)
}

// ListMapStores возвращает точки с координатами для отображения на карте.
// Мерчендайзер видит только точки из собственных планов; planDate дополнительно
// сужает выборку до планов на указанную дату.
func (s *Service) ListMapStores(ctx context.Context, caller Caller, planDate *time.Time) ([]model.Store, error) {
	if caller.IsManager() {
		return s.repo.ListStoresWithCoordinates(ctx, 0, planDate)
	}
	return s.repo.ListStoresWithCoordinates(ctx, caller.ID, planDate)
}
