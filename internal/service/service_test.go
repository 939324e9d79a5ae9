package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/merchplan-system/internal/model"
	"github.com/mmeshcher/merchplan-system/internal/repository"
	"github.com/mmeshcher/merchplan-system/internal/routing"
)

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	stores       []model.Store
	storesByIDs  []model.Store
	storesErr    error
	updatedStore *model.Store

	order      *model.Order
	orderErr   error
	createdID  int64
	createErr  error
	updatedOrd *model.Order

	plan         *model.DailyPlan
	planErr      error
	updatedPlan  *model.DailyPlan
	updatePlanN  int
	reconcileArg bool

	products []model.Product

	aggregated    []model.StoreMetric
	aggregatedErr error
	upserted      []model.StoreMetric
	upsertN       int

	logs []string
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }
func (s *stubRepo) UpdateUser(ctx context.Context, u *model.User) error { return nil }
func (s *stubRepo) DeleteUser(ctx context.Context, id int64) error      { return nil }

func (s *stubRepo) CreateStore(ctx context.Context, st *model.Store) (int64, error) {
	return s.createdID, s.createErr
}

func (s *stubRepo) GetStore(ctx context.Context, id int64) (*model.Store, error) {
	for i := range s.stores {
		if s.stores[i].ID == id {
			return &s.stores[i], nil
		}
	}
	return nil, repository.ErrStoreNotFound
}

func (s *stubRepo) ListStores(ctx context.Context) ([]model.Store, error) {
	return s.stores, s.storesErr
}

func (s *stubRepo) ListStoresByIDs(ctx context.Context, ids []int64) ([]model.Store, error) {
	return s.storesByIDs, s.storesErr
}

func (s *stubRepo) UpdateStore(ctx context.Context, st *model.Store) error {
	s.updatedStore = st
	return nil
}

func (s *stubRepo) DeleteStore(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) ListStoresWithCoordinates(ctx context.Context, merchandiserID int64, planDate *time.Time) ([]model.Store, error) {
	return s.stores, nil
}

func (s *stubRepo) ListPlanStores(ctx context.Context, planID int64) ([]model.Store, error) {
	return s.stores, nil
}

func (s *stubRepo) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	return s.createdID, s.createErr
}

func (s *stubRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	for i := range s.products {
		if s.products[i].ID == id {
			return &s.products[i], nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (s *stubRepo) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.products, nil
}

func (s *stubRepo) ListProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	var res []model.Product
	for _, id := range ids {
		for i := range s.products {
			if s.products[i].ID == id {
				res = append(res, s.products[i])
			}
		}
	}
	return res, nil
}

func (s *stubRepo) UpdateProduct(ctx context.Context, p *model.Product) error { return nil }
func (s *stubRepo) DeleteProduct(ctx context.Context, id int64) error         { return nil }

func (s *stubRepo) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	s.updatedOrd = o
	return s.createdID, s.createErr
}

func (s *stubRepo) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) ListOrders(ctx context.Context, merchandiserID int64) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) UpdateOrder(ctx context.Context, o *model.Order, replaceItems bool) error {
	s.updatedOrd = o
	return nil
}

func (s *stubRepo) DeleteOrder(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) AggregateStoreMetrics(ctx context.Context, start, end time.Time) ([]model.StoreMetric, error) {
	return s.aggregated, s.aggregatedErr
}

func (s *stubRepo) CreatePlan(ctx context.Context, p *model.DailyPlan) (int64, error) {
	s.updatedPlan = p
	return s.createdID, s.createErr
}

func (s *stubRepo) GetPlan(ctx context.Context, id int64) (*model.DailyPlan, error) {
	return s.plan, s.planErr
}

func (s *stubRepo) ListPlans(ctx context.Context, merchandiserID int64) ([]model.DailyPlan, error) {
	return nil, nil
}

func (s *stubRepo) UpdatePlan(ctx context.Context, p *model.DailyPlan, reconcileVisits bool) error {
	s.updatePlanN++
	s.updatedPlan = p
	s.reconcileArg = reconcileVisits
	return nil
}

func (s *stubRepo) DeletePlan(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) UpsertStoreMetrics(ctx context.Context, metrics []model.StoreMetric) error {
	s.upsertN++
	s.upserted = metrics
	return nil
}

func (s *stubRepo) ListStoreMetrics(ctx context.Context) ([]model.StoreMetric, error) {
	return nil, nil
}

func (s *stubRepo) GetStoreMetric(ctx context.Context, id int64) (*model.StoreMetric, error) {
	return nil, repository.ErrMetricNotFound
}

func (s *stubRepo) CreateLog(ctx context.Context, userID int64, action string, details map[string]any) error {
	s.logs = append(s.logs, action)
	return nil
}

func (s *stubRepo) ListLogs(ctx context.Context, limit int) ([]model.LogEntry, error) {
	return nil, nil
}

type stubRoute struct {
	trip  *routing.Trip
	err   error
	calls int
}

func (s *stubRoute) CalculateRoute(ctx context.Context, points []routing.Point, roundTrip bool) (*routing.Trip, error) {
	s.calls++
	return s.trip, s.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func manager() Caller      { return Caller{ID: 1, Role: model.RoleManager} }
func merchandiser() Caller { return Caller{ID: 2, Role: model.RoleMerchandiser} }

func TestComputeOrderTotal_Exact(t *testing.T) {
	items := []OrderItemInput{
		{ProductID: 1, Quantity: 3, PricePerUnit: dec("2.50")},
		{ProductID: 2, Quantity: 1, PricePerUnit: dec("9.99")},
	}

	total := ComputeOrderTotal(items)
	if total.String() != "17.49" {
		t.Fatalf("total = %s, want 17.49", total)
	}
}

func TestComputeOrderTotal_Empty(t *testing.T) {
	if total := ComputeOrderTotal(nil); !total.IsZero() {
		t.Fatalf("total = %s, want 0", total)
	}
}

func TestCreateOrder_RejectsInvalidItems(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	tests := []struct {
		name  string
		items []OrderItemInput
	}{
		{"no items", nil},
		{"zero quantity", []OrderItemInput{{ProductID: 1, Quantity: 0, PricePerUnit: dec("1")}}},
		{"negative price", []OrderItemInput{{ProductID: 1, Quantity: 1, PricePerUnit: dec("-1")}}},
		{"missing product", []OrderItemInput{{Quantity: 1, PricePerUnit: dec("1")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), merchandiser(), &OrderInput{
				StoreID:   1,
				OrderDate: time.Now(),
				Items:     tt.items,
			})
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if repo.updatedOrd != nil {
				t.Fatalf("order must not be written on validation failure")
			}
		})
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	repo := &stubRepo{products: []model.Product{{ID: 1, Price: dec("2.50")}}}
	svc := NewService(repo, nil)

	_, err := svc.CreateOrder(context.Background(), merchandiser(), &OrderInput{
		StoreID:   1,
		OrderDate: time.Now(),
		Items: []OrderItemInput{
			{ProductID: 1, Quantity: 1, PricePerUnit: dec("2.50")},
			{ProductID: 99, Quantity: 1, PricePerUnit: dec("3.00")},
		},
	})
	if !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestGetOrder_ScopedToOwner(t *testing.T) {
	repo := &stubRepo{order: &model.Order{ID: 10, MerchandiserID: 7}}
	svc := NewService(repo, nil)

	_, err := svc.GetOrder(context.Background(), merchandiser(), 10)
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("foreign order must look like not found, got %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), manager(), 10); err != nil {
		t.Fatalf("manager must see any order, got %v", err)
	}
}

func TestValidateVisits(t *testing.T) {
	tests := []struct {
		name    string
		visits  []VisitInput
		wantErr bool
	}{
		{"valid", []VisitInput{{StoreID: 1, VisitOrder: 1}, {StoreID: 2, VisitOrder: 2}}, false},
		{"empty", nil, false},
		{"zero order", []VisitInput{{StoreID: 1, VisitOrder: 0}}, true},
		{"negative order", []VisitInput{{StoreID: 1, VisitOrder: -1}}, true},
		{"duplicate order", []VisitInput{{StoreID: 1, VisitOrder: 1}, {StoreID: 2, VisitOrder: 1}}, true},
		{"duplicate store", []VisitInput{{StoreID: 1, VisitOrder: 1}, {StoreID: 1, VisitOrder: 2}}, true},
		{"gaps allowed", []VisitInput{{StoreID: 1, VisitOrder: 5}, {StoreID: 2, VisitOrder: 2}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateVisits(tt.visits)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateVisits = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdatePlan_ValidatesBeforeWrite(t *testing.T) {
	repo := &stubRepo{plan: &model.DailyPlan{ID: 3, MerchandiserID: 2}}
	svc := NewService(repo, nil)

	_, err := svc.UpdatePlan(context.Background(), merchandiser(), 3, &PlanUpdateInput{
		Visits: []VisitInput{
			{StoreID: 1, VisitOrder: 1},
			{StoreID: 2, VisitOrder: 1},
		},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.updatePlanN != 0 {
		t.Fatalf("plan must not be written when visits are invalid")
	}
}

func TestUpdatePlan_ReconcilesOnlyWithVisits(t *testing.T) {
	repo := &stubRepo{plan: &model.DailyPlan{ID: 3, MerchandiserID: 2, Notes: "old"}}
	svc := NewService(repo, nil)

	notes := "updated"
	if _, err := svc.UpdatePlan(context.Background(), merchandiser(), 3, &PlanUpdateInput{Notes: &notes}); err != nil {
		t.Fatalf("UpdatePlan error: %v", err)
	}
	if repo.reconcileArg {
		t.Fatalf("visits must stay untouched when not provided")
	}

	if _, err := svc.UpdatePlan(context.Background(), merchandiser(), 3, &PlanUpdateInput{
		Visits: []VisitInput{{StoreID: 1, VisitOrder: 1}},
	}); err != nil {
		t.Fatalf("UpdatePlan error: %v", err)
	}
	if !repo.reconcileArg {
		t.Fatalf("visits must be reconciled when provided")
	}
}

func TestGetPlan_ScopedToOwner(t *testing.T) {
	repo := &stubRepo{plan: &model.DailyPlan{ID: 3, MerchandiserID: 7}}
	svc := NewService(repo, nil)

	_, err := svc.GetPlan(context.Background(), merchandiser(), 3)
	if !errors.Is(err, repository.ErrPlanNotFound) {
		t.Fatalf("foreign plan must look like not found, got %v", err)
	}
}

func TestComputeMetrics_InvalidRange(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	start := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.ComputeMetrics(context.Background(), start, end)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestComputeMetrics_SingleDayAllowed(t *testing.T) {
	repo := &stubRepo{
		aggregated: []model.StoreMetric{
			{StoreID: 1, TotalOrdersCount: 2, AverageOrderAmount: dec("10.005")},
		},
	}
	svc := NewService(repo, nil)

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	metrics, err := svc.ComputeMetrics(context.Background(), day, day)
	if err != nil {
		t.Fatalf("ComputeMetrics error: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("got %d metrics, want 1", len(metrics))
	}
	if metrics[0].AverageOrderAmount.String() != "10.01" {
		t.Fatalf("average = %s, want 10.01", metrics[0].AverageOrderAmount)
	}
}

func TestSaveMetrics_StampsTargetDate(t *testing.T) {
	repo := &stubRepo{
		aggregated: []model.StoreMetric{
			{StoreID: 1, TotalOrdersCount: 3, AverageOrderAmount: dec("5")},
			{StoreID: 2, TotalOrdersCount: 1, AverageOrderAmount: dec("12.50")},
		},
	}
	svc := NewService(repo, nil)

	target := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	metrics, err := svc.SaveMetrics(context.Background(), manager(), target)
	if err != nil {
		t.Fatalf("SaveMetrics error: %v", err)
	}

	if repo.upsertN != 1 {
		t.Fatalf("upsert called %d times, want 1", repo.upsertN)
	}
	for _, m := range metrics {
		if !m.Date.Equal(target) {
			t.Fatalf("metric date = %v, want %v", m.Date, target)
		}
	}
}

func TestSaveMetrics_NoOrdersNoUpsert(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	target := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	metrics, err := svc.SaveMetrics(context.Background(), manager(), target)
	if err != nil {
		t.Fatalf("SaveMetrics error: %v", err)
	}
	if len(metrics) != 0 {
		t.Fatalf("got %d metrics, want 0", len(metrics))
	}
	if repo.upsertN != 0 {
		t.Fatalf("upsert must not be called for empty aggregation")
	}
}

func TestCalculateRoute_InsufficientWaypoints(t *testing.T) {
	repo := &stubRepo{
		storesByIDs: []model.Store{
			{ID: 1, Latitude: decPtr("55.75"), Longitude: decPtr("37.61")},
			{ID: 2},
			{ID: 3},
		},
	}
	route := &stubRoute{}
	svc := NewService(repo, route)

	_, err := svc.CalculateRoute(context.Background(), manager(), &RouteInput{StoreIDs: []int64{1, 2, 3}})
	if !errors.Is(err, ErrInsufficientWaypoints) {
		t.Fatalf("expected ErrInsufficientWaypoints, got %v", err)
	}
	if route.calls != 0 {
		t.Fatalf("routing service must not be called with fewer than two points")
	}
}

func TestCalculateRoute_UnknownStore(t *testing.T) {
	repo := &stubRepo{
		storesByIDs: []model.Store{
			{ID: 1, Latitude: decPtr("55.75"), Longitude: decPtr("37.61")},
		},
	}
	svc := NewService(repo, &stubRoute{})

	_, err := svc.CalculateRoute(context.Background(), manager(), &RouteInput{StoreIDs: []int64{1, 99}})
	if !errors.Is(err, repository.ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestCalculateRoute_OrderedPoints(t *testing.T) {
	repo := &stubRepo{
		storesByIDs: []model.Store{
			{ID: 1, Name: "A", Latitude: decPtr("55.75"), Longitude: decPtr("37.61")},
			{ID: 2, Name: "B", Latitude: decPtr("55.76"), Longitude: decPtr("37.62")},
			{ID: 3, Name: "C", Latitude: decPtr("55.77"), Longitude: decPtr("37.63")},
		},
	}
	route := &stubRoute{
		trip: &routing.Trip{
			Geometry:        "geom",
			DistanceMeters:  12345,
			DurationSeconds: 789,
			WaypointOrder:   []int{2, 0, 1},
		},
	}
	svc := NewService(repo, route)

	res, err := svc.CalculateRoute(context.Background(), manager(), &RouteInput{
		StoreIDs:  []int64{1, 2, 3},
		RoundTrip: true,
	})
	if err != nil {
		t.Fatalf("CalculateRoute error: %v", err)
	}

	if res.TotalDistanceKm != 12.35 {
		t.Fatalf("distance = %v, want 12.35", res.TotalDistanceKm)
	}
	if res.TotalDurationMin != 13.15 {
		t.Fatalf("duration = %v, want 13.15", res.TotalDurationMin)
	}
	if !res.Optimized {
		t.Fatalf("round trip result must be marked optimized")
	}

	got := make([]int64, 0, len(res.OrderedPoints))
	seen := make(map[int64]int)
	for _, p := range res.OrderedPoints {
		got = append(got, p.StoreID)
		seen[p.StoreID]++
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("ordered points = %v, want [3 1 2]", got)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("store %d appears %d times in route", id, n)
		}
	}
}

func TestCalculateRoute_ServiceFailure(t *testing.T) {
	repo := &stubRepo{
		storesByIDs: []model.Store{
			{ID: 1, Latitude: decPtr("55.75"), Longitude: decPtr("37.61")},
			{ID: 2, Latitude: decPtr("55.76"), Longitude: decPtr("37.62")},
		},
	}
	route := &stubRoute{err: errors.New("connection refused")}
	svc := NewService(repo, route)

	_, err := svc.CalculateRoute(context.Background(), manager(), &RouteInput{StoreIDs: []int64{1, 2}})
	if !errors.Is(err, ErrRouteService) {
		t.Fatalf("expected ErrRouteService, got %v", err)
	}
}

func TestRegisterUser_InvalidRole(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass", "admin")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createUserErr: repository.ErrUserExists}
	svc := NewService(repo, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass", model.RoleMerchandiser)
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	repo := &stubRepo{getUserErr: repository.ErrUserNotFound}
	svc := NewService(repo, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user", "pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateStoreInput_CoordinatesPaired(t *testing.T) {
	err := validateStoreInput(&StoreInput{
		Name:     "store",
		Address:  "addr",
		Latitude: decPtr("55.75"),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for unpaired coordinates, got %v", err)
	}
}
