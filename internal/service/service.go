// Package service реализует бизнес-логику сервиса мерчендайзинга.
package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/repository"
	"github.com/mmeshcher/merchplan-system/internal/routing"
)

// ErrInvalidRange возвращается, если начало диапазона метрик позже его конца.
var (
	ErrInvalidRange = errors.New("start date is after end date")
	// ErrInsufficientWaypoints возвращается, если для маршрута осталось меньше двух точек с координатами.
	ErrInsufficientWaypoints = errors.New("at least two stores with coordinates are required for routing")
	// ErrRouteService возвращается при сбое внешнего сервиса маршрутизации.
	ErrRouteService = errors.New("routing service failed")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError описывает ошибку валидации входных данных с указанием поля.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Caller описывает инициатора операции: идентификатор и роль из контекста запроса.
type Caller struct {
	ID   int64
	Role model.Role
}

// IsManager сообщает, выполняется ли операция от имени менеджера.
func (c Caller) IsManager() bool {
	return c.Role == model.RoleManager
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	DeleteUser(ctx context.Context, id int64) error

	CreateStore(ctx context.Context, s *model.Store) (int64, error)
	GetStore(ctx context.Context, id int64) (*model.Store, error)
	ListStores(ctx context.Context) ([]model.Store, error)
	ListStoresByIDs(ctx context.Context, ids []int64) ([]model.Store, error)
	UpdateStore(ctx context.Context, s *model.Store) error
	DeleteStore(ctx context.Context, id int64) error
	ListStoresWithCoordinates(ctx context.Context, merchandiserID int64, planDate *time.Time) ([]model.Store, error)
	ListPlanStores(ctx context.Context, planID int64) ([]model.Store, error)

	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, o *model.Order) (int64, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, merchandiserID int64) ([]model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order, replaceItems bool) error
	DeleteOrder(ctx context.Context, id int64) error
	AggregateStoreMetrics(ctx context.Context, start, end time.Time) ([]model.StoreMetric, error)

	CreatePlan(ctx context.Context, p *model.DailyPlan) (int64, error)
	GetPlan(ctx context.Context, id int64) (*model.DailyPlan, error)
	ListPlans(ctx context.Context, merchandiserID int64) ([]model.DailyPlan, error)
	UpdatePlan(ctx context.Context, p *model.DailyPlan, reconcileVisits bool) error
	DeletePlan(ctx context.Context, id int64) error

	UpsertStoreMetrics(ctx context.Context, metrics []model.StoreMetric) error
	ListStoreMetrics(ctx context.Context) ([]model.StoreMetric, error)
	GetStoreMetric(ctx context.Context, id int64) (*model.StoreMetric, error)

	CreateLog(ctx context.Context, userID int64, action string, details map[string]any) error
	ListLogs(ctx context.Context, limit int) ([]model.LogEntry, error)
}

// RouteCalculator описывает контракт внешнего сервиса маршрутизации.
type RouteCalculator interface {
	CalculateRoute(ctx context.Context, points []routing.Point, roundTrip bool) (*routing.Trip, error)
}

// Service содержит бизнес-логику сервиса мерчендайзинга.
type Service struct {
	repo        Repository
	routeClient RouteCalculator
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом маршрутизации.
func NewService(repo Repository, routeClient RouteCalculator) *Service {
	return &Service{
		repo:        repo,
		routeClient: routeClient,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с указанной ролью.
func (s *Service) RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error) {
	if !role.IsValid() {
		return 0, validationErr("role", "must be manager or merchandiser")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	id, err := s.repo.CreateUser(ctx, login, hashed, role)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его данные.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// UpdateUser обновляет логин, роль и опционально пароль пользователя.
func (s *Service) UpdateUser(ctx context.Context, id int64, login string, role model.Role, password string) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if login != "" {
		u.Login = login
	}
	if role != "" {
		if !role.IsValid() {
			return nil, validationErr("role", "must be manager or merchandiser")
		}
		u.Role = role
	}

	u.PasswordHash = nil
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hashed
	}

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	return s.repo.GetUserByID(ctx, id)
}

// DeleteUser удаляет пользователя по идентификатору.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// ListLogs возвращает записи журнала действий.
func (s *Service) ListLogs(ctx context.Context, limit int) ([]model.LogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.ListLogs(ctx, limit)
}

// writeLog сохраняет запись журнала; сбой журналирования не прерывает операцию.
func (s *Service) writeLog(ctx context.Context, caller Caller, action string, details map[string]any) {
	_ = s.repo.CreateLog(ctx, caller.ID, action, details)
}
