package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/validation"
)

// StoreInput содержит данные торговой точки для создания или обновления.
type StoreInput struct {
	Name               string
	Address            string
	Latitude           *decimal.Decimal
	Longitude          *decimal.Decimal
	ContactPersonName  string
	ContactPersonPhone string
}

func validateStoreInput(in *StoreInput) error {
	if in.Name == "" {
		return validationErr("name", "is required")
	}
	if in.Address == "" {
		return validationErr("address", "is required")
	}
	// Координаты задаются только парой: точка либо полностью на карте, либо нет.
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return validationErr("latitude", "latitude and longitude must be set together")
	}
	if in.Latitude != nil && !validation.IsValidLatitude(*in.Latitude) {
		return validationErr("latitude", "must be between -90 and 90")
	}
	if in.Longitude != nil && !validation.IsValidLongitude(*in.Longitude) {
		return validationErr("longitude", "must be between -180 and 180")
	}
	return nil
}

// CreateStore создаёт торговую точку.
func (s *Service) CreateStore(ctx context.Context, caller Caller, in *StoreInput) (*model.Store, error) {
	if err := validateStoreInput(in); err != nil {
		return nil, err
	}

	store := &model.Store{
		Name:               in.Name,
		Address:            in.Address,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		ContactPersonName:  in.ContactPersonName,
		ContactPersonPhone: in.ContactPersonPhone,
	}

	id, err := s.repo.CreateStore(ctx, store)
	if err != nil {
		return nil, err
	}

	s.writeLog(ctx, caller, "store_created", map[string]any{"store_id": id, "store_name": in.Name})

	return s.repo.GetStore(ctx, id)
}

// GetStore возвращает торговую точку по идентификатору.
func (s *Service) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	return s.repo.GetStore(ctx, id)
}

// ListStores возвращает все торговые точки.
func (s *Service) ListStores(ctx context.Context) ([]model.Store, error) {
	return s.repo.ListStores(ctx)
}

// UpdateStore обновляет торговую точку. Пустые имя и адрес, а также
// отсутствующие координаты сохраняют прежние значения.
func (s *Service) UpdateStore(ctx context.Context, caller Caller, id int64, in *StoreInput) (*model.Store, error) {
	store, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name == "" {
		in.Name = store.Name
	}
	if in.Address == "" {
		in.Address = store.Address
	}
	if in.Latitude == nil && in.Longitude == nil {
		in.Latitude = store.Latitude
		in.Longitude = store.Longitude
	}
	if err := validateStoreInput(in); err != nil {
		return nil, err
	}

	store.Name = in.Name
	store.Address = in.Address
	store.Latitude = in.Latitude
	store.Longitude = in.Longitude
	store.ContactPersonName = in.ContactPersonName
	store.ContactPersonPhone = in.ContactPersonPhone

	if err := s.repo.UpdateStore(ctx, store); err != nil {
		return nil, err
	}

	s.writeLog(ctx, caller, "store_updated", map[string]any{"store_id": id, "store_name": store.Name})

	return s.repo.GetStore(ctx, id)
}

// DeleteStore удаляет торговую точку.
func (s *Service) DeleteStore(ctx context.Context, caller Caller, id int64) error {
	store, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteStore(ctx, id); err != nil {
		return err
	}

	s.writeLog(ctx, caller, "store_deleted", map[string]any{"store_id": id, "store_name": store.Name})
	return nil
}

// ProductInput содержит данные товара для создания или обновления.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
}

func validateProductInput(in *ProductInput) error {
	if in.Name == "" {
		return validationErr("name", "is required")
	}
	if in.Price.IsNegative() {
		return validationErr("price", "must be non-negative")
	}
	return nil
}

// CreateProduct создаёт товар в каталоге.
func (s *Service) CreateProduct(ctx context.Context, caller Caller, in *ProductInput) (*model.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	product := &model.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(2),
	}

	id, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	s.writeLog(ctx, caller, "product_created", map[string]any{"product_id": id, "product_name": in.Name})

	return s.repo.GetProduct(ctx, id)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts возвращает все товары каталога.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// UpdateProduct обновляет товар. Цены в уже оформленных заказах не меняются:
// позиции заказов хранят снимок цены на момент оформления.
func (s *Service) UpdateProduct(ctx context.Context, caller Caller, id int64, in *ProductInput) (*model.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name == "" {
		in.Name = product.Name
	}
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	product.Name = in.Name
	product.Description = in.Description
	product.Price = in.Price.Round(2)

	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}

	s.writeLog(ctx, caller, "product_updated", map[string]any{"product_id": id, "product_name": product.Name})

	return s.repo.GetProduct(ctx, id)
}

// DeleteProduct удаляет товар из каталога.
func (s *Service) DeleteProduct(ctx context.Context, caller Caller, id int64) error {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.writeLog(ctx, caller, "product_deleted", map[string]any{"product_id": id, "product_name": product.Name})
	return nil
}
