package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/repository"
)

// OrderItemInput содержит данные позиции заказа из запроса.
// PricePerUnit фиксируется в позиции и не пересчитывается при изменении цены товара.
type OrderItemInput struct {
	ID           int64
	ProductID    int64
	Quantity     int32
	PricePerUnit decimal.Decimal
}

// OrderInput содержит данные для создания заказа.
type OrderInput struct {
	StoreID   int64
	OrderDate time.Time
	Status    model.OrderStatus
	Items     []OrderItemInput
}

// OrderUpdateInput содержит данные частичного обновления заказа.
// Nil-поля не меняются; Items == nil оставляет позиции нетронутыми.
type OrderUpdateInput struct {
	StoreID   *int64
	OrderDate *time.Time
	Status    *model.OrderStatus
	Items     []OrderItemInput
}

func validateOrderItems(items []OrderItemInput) error {
	if len(items) == 0 {
		return validationErr("items", "at least one item is required")
	}
	for i, item := range items {
		if item.ProductID <= 0 {
			return validationErr(fmt.Sprintf("items[%d].product", i), "is required")
		}
		if item.Quantity <= 0 {
			return validationErr(fmt.Sprintf("items[%d].quantity", i), "must be a positive integer")
		}
		if !item.PricePerUnit.IsPositive() {
			return validationErr(fmt.Sprintf("items[%d].price_per_unit", i), "must be positive")
		}
	}
	return nil
}

// ComputeOrderTotal вычисляет сумму заказа как sum(quantity * price_per_unit)
// в десятичной арифметике с округлением до копеек.
func ComputeOrderTotal(items []OrderItemInput) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		line := item.PricePerUnit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
	}
	return total.Round(2)
}

// resolveProducts проверяет, что каждый товар из позиций существует.
func (s *Service) resolveProducts(ctx context.Context, items []OrderItemInput) error {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	products, err := s.repo.ListProductsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(products) != len(ids) {
		return repository.ErrProductNotFound
	}
	return nil
}

func toOrderItems(items []OrderItemInput) []model.OrderItem {
	res := make([]model.OrderItem, 0, len(items))
	for _, item := range items {
		res = append(res, model.OrderItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PricePerUnit: item.PricePerUnit.Round(2),
		})
	}
	return res
}

// CreateOrder создаёт заказ от имени вызывающего. Итоговая сумма всегда
// вычисляется на сервере; значение из запроса игнорируется. Заказ и позиции
// записываются атомарно: при ошибке валидации ничего не сохраняется.
func (s *Service) CreateOrder(ctx context.Context, caller Caller, in *OrderInput) (*model.Order, error) {
	if in.StoreID <= 0 {
		return nil, validationErr("store", "is required")
	}
	if in.OrderDate.IsZero() {
		return nil, validationErr("order_date", "is required")
	}
	if in.Status == "" {
		in.Status = model.OrderStatusCreated
	}
	if !in.Status.IsValid() {
		return nil, validationErr("status", "unknown order status")
	}
	if err := validateOrderItems(in.Items); err != nil {
		return nil, err
	}
	if err := s.resolveProducts(ctx, in.Items); err != nil {
		return nil, err
	}

	order := &model.Order{
		StoreID:        in.StoreID,
		MerchandiserID: caller.ID,
		OrderDate:      in.OrderDate,
		Status:         in.Status,
		TotalAmount:    ComputeOrderTotal(in.Items),
		Items:          toOrderItems(in.Items),
	}

	id, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	s.writeLog(ctx, caller, "order_created", map[string]any{
		"order_id":   id,
		"store_name": created.StoreName,
	})

	return created, nil
}

// GetOrder возвращает заказ. Мерчендайзер видит только собственные заказы.
func (s *Service) GetOrder(ctx context.Context, caller Caller, id int64) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsManager() && order.MerchandiserID != caller.ID {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders возвращает заказы: менеджеру — все, мерчендайзеру — только свои.
func (s *Service) ListOrders(ctx context.Context, caller Caller) ([]model.Order, error) {
	if caller.IsManager() {
		return s.repo.ListOrders(ctx, 0)
	}
	return s.repo.ListOrders(ctx, caller.ID)
}

// UpdateOrder частично обновляет заказ. Если передан список позиций, он
// полностью заменяет прежний по сверке идентификаторов, и сумма заказа
// пересчитывается из нового списка. Обновление атомарно.
func (s *Service) UpdateOrder(ctx context.Context, caller Caller, id int64, in *OrderUpdateInput) (*model.Order, error) {
	order, err := s.GetOrder(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if in.StoreID != nil {
		if *in.StoreID <= 0 {
			return nil, validationErr("store", "is required")
		}
		order.StoreID = *in.StoreID
	}
	if in.OrderDate != nil {
		order.OrderDate = *in.OrderDate
	}
	if in.Status != nil {
		if !in.Status.IsValid() {
			return nil, validationErr("status", "unknown order status")
		}
		order.Status = *in.Status
	}

	replaceItems := in.Items != nil
	if replaceItems {
		if err := validateOrderItems(in.Items); err != nil {
			return nil, err
		}
		if err := s.resolveProducts(ctx, in.Items); err != nil {
			return nil, err
		}
		order.Items = toOrderItems(in.Items)
		order.TotalAmount = ComputeOrderTotal(in.Items)
	}

	if err := s.repo.UpdateOrder(ctx, order, replaceItems); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	s.writeLog(ctx, caller, "order_updated", map[string]any{
		"order_id":   id,
		"store_name": updated.StoreName,
	})

	return updated, nil
}

// DeleteOrder удаляет заказ.
func (s *Service) DeleteOrder(ctx context.Context, caller Caller, id int64) error {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}

	s.writeLog(ctx, caller, "order_deleted", map[string]any{
		"order_id":   id,
		"store_name": order.StoreName,
	})
	return nil
}
