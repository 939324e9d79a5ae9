// Package routing предоставляет клиент для внешнего сервиса маршрутизации (OSRM).
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNoRoute возвращается, если сервис не нашёл маршрут для переданных точек.
var ErrNoRoute = errors.New("no route found for given points")

// Client инкапсулирует HTTP-взаимодействие с сервисом маршрутизации.
// Повторные попытки не выполняются: ошибка сразу возвращается вызывающему.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Point задаёт координаты одной точки маршрута.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Trip описывает рассчитанный маршрут в исходных единицах сервиса
// (метры, секунды). WaypointOrder содержит индексы входных точек
// в порядке фактического посещения.
type Trip struct {
	Geometry        string
	DistanceMeters  float64
	DurationSeconds float64
	WaypointOrder   []int
}

type osrmLeg struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry string  `json:"geometry"`
}

type osrmWaypoint struct {
	WaypointIndex int `json:"waypoint_index"`
}

type osrmResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Routes    []osrmLeg      `json:"routes"`
	Trips     []osrmLeg      `json:"trips"`
	Waypoints []osrmWaypoint `json:"waypoints"`
}

// NewClient создаёт HTTP-клиент для обращения к сервису маршрутизации по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CalculateRoute запрашивает маршрут через переданные точки.
// При roundTrip используется сервис /trip: порядок посещений оптимизируется,
// а маршрут замыкается на первую точку. Иначе используется /route и точки
// посещаются в порядке запроса.
func (c *Client) CalculateRoute(ctx context.Context, points []Point, roundTrip bool) (*Trip, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("routing client not configured")
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("at least two points required")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	coords := make([]string, 0, len(points))
	for _, p := range points {
		coords = append(coords,
			strconv.FormatFloat(p.Longitude, 'f', 6, 64)+","+strconv.FormatFloat(p.Latitude, 'f', 6, 64))
	}

	var url string
	if roundTrip {
		url = fmt.Sprintf("%s/trip/v1/driving/%s?overview=full", base, strings.Join(coords, ";"))
	} else {
		url = fmt.Sprintf("%s/route/v1/driving/%s?overview=full&alternatives=false&steps=false",
			base, strings.Join(coords, ";"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Code != "Ok" {
		if result.Message != "" {
			return nil, fmt.Errorf("routing service error %s: %s", result.Code, result.Message)
		}
		return nil, fmt.Errorf("routing service error %s", result.Code)
	}

	legs := result.Routes
	if roundTrip {
		legs = result.Trips
	}
	if len(legs) == 0 {
		return nil, ErrNoRoute
	}
	best := legs[0]

	trip := &Trip{
		Geometry:        best.Geometry,
		DistanceMeters:  best.Distance,
		DurationSeconds: best.Duration,
		WaypointOrder:   make([]int, len(points)),
	}

	if roundTrip {
		// OSRM возвращает waypoints в порядке входных точек, где waypoint_index —
		// позиция точки в оптимизированном обходе.
		if len(result.Waypoints) != len(points) {
			return nil, fmt.Errorf("routing service returned %d waypoints for %d points",
				len(result.Waypoints), len(points))
		}
		for inputIdx, wp := range result.Waypoints {
			if wp.WaypointIndex < 0 || wp.WaypointIndex >= len(points) {
				return nil, fmt.Errorf("routing service returned invalid waypoint index %d", wp.WaypointIndex)
			}
			trip.WaypointOrder[wp.WaypointIndex] = inputIdx
		}
	} else {
		for i := range points {
			trip.WaypointOrder[i] = i
		}
	}

	return trip, nil
}
