package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/merchplan-system/internal/middleware"
	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/repository"
	"github.com/mmeshcher/merchplan-system/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUser *model.User
	authErr  error

	stores    []model.Store
	store     *model.Store
	storesErr error

	products []model.Product
	product  *model.Product

	orders   []model.Order
	order    *model.Order
	orderErr error

	plans   []model.DailyPlan
	plan    *model.DailyPlan
	planErr error

	metrics    []model.StoreMetric
	metric     *model.StoreMetric
	metricsErr error

	route    *model.RouteResult
	routeErr error

	logs []model.LogEntry
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }

func (s *stubService) UpdateUser(ctx context.Context, id int64, login string, role model.Role, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) DeleteUser(ctx context.Context, id int64) error { return nil }

func (s *stubService) CreateStore(ctx context.Context, caller service.Caller, in *service.StoreInput) (*model.Store, error) {
	return s.store, s.storesErr
}

func (s *stubService) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	return s.store, s.storesErr
}

func (s *stubService) ListStores(ctx context.Context) ([]model.Store, error) {
	return s.stores, s.storesErr
}

func (s *stubService) UpdateStore(ctx context.Context, caller service.Caller, id int64, in *service.StoreInput) (*model.Store, error) {
	return s.store, s.storesErr
}

func (s *stubService) DeleteStore(ctx context.Context, caller service.Caller, id int64) error {
	return s.storesErr
}

func (s *stubService) CreateProduct(ctx context.Context, caller service.Caller, in *service.ProductInput) (*model.Product, error) {
	return s.product, nil
}

func (s *stubService) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.product, nil
}

func (s *stubService) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.products, nil
}

func (s *stubService) UpdateProduct(ctx context.Context, caller service.Caller, id int64, in *service.ProductInput) (*model.Product, error) {
	return s.product, nil
}

func (s *stubService) DeleteProduct(ctx context.Context, caller service.Caller, id int64) error {
	return nil
}

func (s *stubService) CreateOrder(ctx context.Context, caller service.Caller, in *service.OrderInput) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) GetOrder(ctx context.Context, caller service.Caller, id int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) ListOrders(ctx context.Context, caller service.Caller) ([]model.Order, error) {
	return s.orders, s.orderErr
}

func (s *stubService) UpdateOrder(ctx context.Context, caller service.Caller, id int64, in *service.OrderUpdateInput) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) DeleteOrder(ctx context.Context, caller service.Caller, id int64) error {
	return s.orderErr
}

func (s *stubService) CreatePlan(ctx context.Context, caller service.Caller, in *service.PlanInput) (*model.DailyPlan, error) {
	return s.plan, s.planErr
}

func (s *stubService) GetPlan(ctx context.Context, caller service.Caller, id int64) (*model.DailyPlan, error) {
	return s.plan, s.planErr
}

func (s *stubService) ListPlans(ctx context.Context, caller service.Caller) ([]model.DailyPlan, error) {
	return s.plans, s.planErr
}

func (s *stubService) UpdatePlan(ctx context.Context, caller service.Caller, id int64, in *service.PlanUpdateInput) (*model.DailyPlan, error) {
	return s.plan, s.planErr
}

func (s *stubService) DeletePlan(ctx context.Context, caller service.Caller, id int64) error {
	return s.planErr
}

func (s *stubService) ListPlanStores(ctx context.Context, caller service.Caller, planID int64) ([]model.Store, error) {
	return s.stores, s.planErr
}

func (s *stubService) ListMapStores(ctx context.Context, caller service.Caller, planDate *time.Time) ([]model.Store, error) {
	return s.stores, s.storesErr
}

func (s *stubService) ComputeMetrics(ctx context.Context, start, end time.Time) ([]model.StoreMetric, error) {
	return s.metrics, s.metricsErr
}

func (s *stubService) SaveMetrics(ctx context.Context, caller service.Caller, targetDate time.Time) ([]model.StoreMetric, error) {
	return s.metrics, s.metricsErr
}

func (s *stubService) ListStoreMetrics(ctx context.Context) ([]model.StoreMetric, error) {
	return s.metrics, s.metricsErr
}

func (s *stubService) GetStoreMetric(ctx context.Context, id int64) (*model.StoreMetric, error) {
	return s.metric, s.metricsErr
}

func (s *stubService) CalculateRoute(ctx context.Context, caller service.Caller, in *service.RouteInput) (*model.RouteResult, error) {
	return s.route, s.routeErr
}

func (s *stubService) ListLogs(ctx context.Context, limit int) ([]model.LogEntry, error) {
	return s.logs, nil
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authCookie(t *testing.T, h *Handler, userID int64, role model.Role) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, userID, role)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no auth cookie set")
	}
	return cookies[0]
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{registerUserID: 42}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie not set on register")
	}

	var resp userResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 42 || resp.Role != "merchandiser" {
		t.Fatalf("response = %+v, want id 42 and default merchandiser role", resp)
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc := &stubService{registerErr: repository.ErrUserExists}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Login: "user", Password: "pass"})
	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{authErr: service.ErrInvalidCredentials}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{Login: "user", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestCreateOrder_ReturnsServerTotal(t *testing.T) {
	svc := &stubService{
		order: &model.Order{
			ID:          7,
			StoreID:     1,
			StoreName:   "Store 1",
			OrderDate:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
			Status:      model.OrderStatusCreated,
			TotalAmount: decimal.RequireFromString("17.49"),
			Items: []model.OrderItem{
				{ID: 1, ProductID: 1, Quantity: 3, PricePerUnit: decimal.RequireFromString("2.50")},
				{ID: 2, ProductID: 2, Quantity: 1, PricePerUnit: decimal.RequireFromString("9.99")},
			},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(orderRequest{
		StoreID:   1,
		OrderDate: "2025-03-14",
		Items: []orderItemRequest{
			{ProductID: 1, Quantity: 3, PricePerUnit: decimal.RequireFromString("2.50")},
			{ProductID: 2, Quantity: 1, PricePerUnit: decimal.RequireFromString("9.99")},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 2, model.RoleMerchandiser))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp orderResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalAmount.String() != "17.49" {
		t.Fatalf("total = %s, want 17.49", resp.TotalAmount)
	}
}

func TestCreatePlan_DuplicateDateConflict(t *testing.T) {
	svc := &stubService{planErr: repository.ErrPlanExists}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(planRequest{
		MerchandiserID: 2,
		PlanDate:       "2025-03-14",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/daily_plans", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1, model.RoleManager))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestCalculateRoute_InsufficientWaypoints(t *testing.T) {
	svc := &stubService{routeErr: service.ErrInsufficientWaypoints}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(routeRequest{StoreIDs: []int64{1, 2}})
	req := httptest.NewRequest(http.MethodPost, "/api/route", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 2, model.RoleMerchandiser))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestCalculateRoute_ServiceUnavailable(t *testing.T) {
	svc := &stubService{routeErr: service.ErrRouteService}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(routeRequest{StoreIDs: []int64{1, 2}})
	req := httptest.NewRequest(http.MethodPost, "/api/route", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 2, model.RoleMerchandiser))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusServiceUnavailable)
	}
}

func TestCalculateMetrics_InvalidRange(t *testing.T) {
	svc := &stubService{metricsErr: service.ErrInvalidRange}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(calculateMetricsRequest{
		StartDate: "2025-03-02",
		EndDate:   "2025-03-01",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/metrics/calculate", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1, model.RoleManager))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestRouter_ManagerOnlyRoutes(t *testing.T) {
	svc := &stubService{store: &model.Store{ID: 1, Name: "Store 1", Address: "Lenina 1"}}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(storeRequest{Name: "Store 1", Address: "Lenina 1"})

	// Мерчендайзеру запрещены управляющие операции.
	req := httptest.NewRequest(http.MethodPost, "/api/stores", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 2, model.RoleMerchandiser))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("merchandiser create store status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}

	// Менеджеру — разрешены.
	req = httptest.NewRequest(http.MethodPost, "/api/stores", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1, model.RoleManager))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusCreated {
		t.Fatalf("manager create store status = %d, want %d", rec.Result().StatusCode, http.StatusCreated)
	}

	// Чтение справочника доступно любому аутентифицированному пользователю.
	req = httptest.NewRequest(http.MethodGet, "/api/stores", nil)
	req.AddCookie(authCookie(t, h, 2, model.RoleMerchandiser))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("merchandiser list stores status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_Unauthenticated(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}
