// Package handler содержит HTTP-обработчики API сервиса мерчендайзинга.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/merchplan-system/internal/middleware"
	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/repository"
	"github.com/mmeshcher/merchplan-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, id int64, login string, role model.Role, password string) (*model.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateStore(ctx context.Context, caller service.Caller, in *service.StoreInput) (*model.Store, error)
	GetStore(ctx context.Context, id int64) (*model.Store, error)
	ListStores(ctx context.Context) ([]model.Store, error)
	UpdateStore(ctx context.Context, caller service.Caller, id int64, in *service.StoreInput) (*model.Store, error)
	DeleteStore(ctx context.Context, caller service.Caller, id int64) error

	CreateProduct(ctx context.Context, caller service.Caller, in *service.ProductInput) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	UpdateProduct(ctx context.Context, caller service.Caller, id int64, in *service.ProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, caller service.Caller, id int64) error

	CreateOrder(ctx context.Context, caller service.Caller, in *service.OrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, caller service.Caller, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, caller service.Caller) ([]model.Order, error)
	UpdateOrder(ctx context.Context, caller service.Caller, id int64, in *service.OrderUpdateInput) (*model.Order, error)
	DeleteOrder(ctx context.Context, caller service.Caller, id int64) error

	CreatePlan(ctx context.Context, caller service.Caller, in *service.PlanInput) (*model.DailyPlan, error)
	GetPlan(ctx context.Context, caller service.Caller, id int64) (*model.DailyPlan, error)
	ListPlans(ctx context.Context, caller service.Caller) ([]model.DailyPlan, error)
	UpdatePlan(ctx context.Context, caller service.Caller, id int64, in *service.PlanUpdateInput) (*model.DailyPlan, error)
	DeletePlan(ctx context.Context, caller service.Caller, id int64) error
	ListPlanStores(ctx context.Context, caller service.Caller, planID int64) ([]model.Store, error)
	ListMapStores(ctx context.Context, caller service.Caller, planDate *time.Time) ([]model.Store, error)

	ComputeMetrics(ctx context.Context, start, end time.Time) ([]model.StoreMetric, error)
	SaveMetrics(ctx context.Context, caller service.Caller, targetDate time.Time) ([]model.StoreMetric, error)
	ListStoreMetrics(ctx context.Context) ([]model.StoreMetric, error)
	GetStoreMetric(ctx context.Context, id int64) (*model.StoreMetric, error)

	CalculateRoute(ctx context.Context, caller service.Caller, in *service.RouteInput) (*model.RouteResult, error)

	ListLogs(ctx context.Context, limit int) ([]model.LogEntry, error)
}

// Handler реализует HTTP-обработчики API сервиса мерчендайзинга.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func callerFromRequest(r *http.Request) (service.Caller, bool) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return service.Caller{}, false
	}
	return service.Caller{ID: user.ID, Role: user.Role}, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// handleServiceError переводит доменные ошибки в HTTP-статусы.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error, op string) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInsufficientWaypoints):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrStoreNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrPlanNotFound),
		errors.Is(err, repository.ErrMetricNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrPlanExists),
		errors.Is(err, repository.ErrDuplicateVisitOrder):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRouteService):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error(op+" error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

type credentialsRequest struct {
	Login    string     `json:"login"`
	Password string     `json:"password"`
	Role     model.Role `json:"role,omitempty"`
}

type userResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Login:     u.Login,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// Register обрабатывает регистрацию нового пользователя. Роль по умолчанию —
// мерчендайзер.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	if req.Role == "" {
		req.Role = model.RoleMerchandiser
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.Role)
	if err != nil {
		h.handleServiceError(w, err, "register user")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID, req.Role)
	h.writeJSON(w, http.StatusOK, userResponse{ID: userID, Login: req.Login, Role: string(req.Role)})
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.handleServiceError(w, err, "login user")
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID, user.Role)
	h.writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout сбрасывает cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}
