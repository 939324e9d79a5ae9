// Package model содержит доменные сущности сервиса мерчендайзинга.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleManager      Role = "manager"
	RoleMerchandiser Role = "merchandiser"
)

// IsValid сообщает, является ли значение роли допустимым.
func (r Role) IsValid() bool {
	return r == RoleManager || r == RoleMerchandiser
}

// User представляет пользователя системы: менеджера или мерчендайзера.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Store представляет торговую точку, в которую поставляется продукция.
// Координаты опциональны: точки без координат не участвуют в маршрутах.
type Store struct {
	ID                 int64
	Name               string
	Address            string
	Latitude           *decimal.Decimal
	Longitude          *decimal.Decimal
	ContactPersonName  string
	ContactPersonPhone string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasCoordinates сообщает, заданы ли у точки обе координаты.
func (s *Store) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Product представляет кондитерское изделие из каталога фабрики.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusProcessed OrderStatus = "processed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid сообщает, является ли значение статуса допустимым.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusProcessed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderItem представляет позицию заказа. Цена фиксируется на момент
// оформления и не зависит от последующих изменений цены товара.
type OrderItem struct {
	ID           int64
	ProductID    int64
	ProductName  string
	Quantity     int32
	PricePerUnit decimal.Decimal
}

// Order представляет заказ мерчендайзера для торговой точки.
// TotalAmount всегда вычисляется сервером из позиций заказа.
type Order struct {
	ID             int64
	StoreID        int64
	StoreName      string
	MerchandiserID int64
	Merchandiser   string
	OrderDate      time.Time
	Status         OrderStatus
	TotalAmount    decimal.Decimal
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StoreVisit представляет запланированное посещение точки в рамках дневного плана.
type StoreVisit struct {
	ID           int64
	StoreID      int64
	StoreName    string
	StoreAddress string
	VisitOrder   int32
	Completed    bool
	VisitedAt    *time.Time
}

// DailyPlan представляет дневной план посещений мерчендайзера.
type DailyPlan struct {
	ID             int64
	MerchandiserID int64
	Merchandiser   string
	PlanDate       time.Time
	Notes          string
	Visits         []StoreVisit
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StoreMetric представляет сохранённый срез показателей точки за дату.
type StoreMetric struct {
	ID                   int64
	StoreID              int64
	StoreName            string
	Date                 time.Time
	TotalOrdersCount     int64
	TotalQuantityOrdered int64
	AverageOrderAmount   decimal.Decimal
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RoutePoint представляет одну точку рассчитанного маршрута.
type RoutePoint struct {
	StoreID   int64
	StoreName string
	Address   string
	Latitude  decimal.Decimal
	Longitude decimal.Decimal
}

// RouteResult представляет рассчитанный маршрут. Не сохраняется в БД.
type RouteResult struct {
	TotalDistanceKm  float64
	TotalDurationMin float64
	OrderedPoints    []RoutePoint
	Geometry         string
	Optimized        bool
}

// LogEntry представляет запись журнала действий пользователей.
type LogEntry struct {
	ID        int64
	UserID    *int64
	UserLogin string
	Action    string
	Details   map[string]any
	CreatedAt time.Time
}
