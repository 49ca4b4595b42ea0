package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

const (
	defaultBaseURL              = "https://routes.googleapis.com"
	computeRoutesPath           = "directions/v2:computeRoutes"
	computeRoutesFieldMask      = "routes.optimizedIntermediateWaypointIndex,routes.distanceMeters,routes.duration,routes.polyline.encodedPolyline,routes.legs.duration,routes.legs.distanceMeters"
	maxIntermediates            = 25
	requestBodyReadLimit  int64 = 1024
)

var (
	errAPIKeyRequired = errors.New("google maps api key is required")
)

// Client wraps the Google Routes API used to order delivery stops.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Routes API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Routes client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64
	Longitude float64
}

// OptimizeRequest asks for the best visiting order of Stops on a round trip
// that starts and ends at Depot.
type OptimizeRequest struct {
	Depot         LatLng
	Stops         []LatLng
	DepartureTime time.Time
}

// OptimizedRoute is the provider answer. Order holds indexes into the request
// stops in visiting order; LegDurations[i] is the travel time to reach the i-th
// visited stop (the final leg back to the depot is not included).
type OptimizedRoute struct {
	Order           []int
	DistanceMeters  int
	DurationSeconds int
	Polyline        string
	LegDurations    []time.Duration
}

type routesLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routesWaypoint struct {
	Location struct {
		LatLng routesLatLng `json:"latLng"`
	} `json:"location"`
}

type computeRoutesRequest struct {
	Origin                routesWaypoint   `json:"origin"`
	Destination           routesWaypoint   `json:"destination"`
	Intermediates         []routesWaypoint `json:"intermediates,omitempty"`
	TravelMode            string           `json:"travelMode"`
	RoutingPreference     string           `json:"routingPreference,omitempty"`
	OptimizeWaypointOrder bool             `json:"optimizeWaypointOrder"`
	DepartureTime         string           `json:"departureTime,omitempty"`
}

type computeRoutesResponse struct {
	Routes []struct {
		OptimizedIntermediateWaypointIndex []int  `json:"optimizedIntermediateWaypointIndex"`
		DistanceMeters                     int    `json:"distanceMeters"`
		Duration                           string `json:"duration"`
		Polyline                           struct {
			EncodedPolyline string `json:"encodedPolyline"`
		} `json:"polyline"`
		Legs []struct {
			Duration       string `json:"duration"`
			DistanceMeters int    `json:"distanceMeters"`
		} `json:"legs"`
	} `json:"routes"`
}

// OptimizeRoute calls computeRoutes with waypoint optimization enabled. The API
// takes at most maxIntermediates stops per call, so longer lists are optimized
// as consecutive depot round trips of up to that many stops each, in request
// order, and the batches are stitched into one visiting order. A stitched
// route carries no polyline.
func (c *Client) OptimizeRoute(ctx context.Context, req OptimizeRequest) (*OptimizedRoute, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeRouteProviderUnavailable, "route provider not configured")
	}
	if len(req.Stops) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one stop is required")
	}
	if len(req.Stops) <= maxIntermediates {
		b, err := c.optimizeBatch(ctx, req.Depot, req.Stops, req.DepartureTime)
		if err != nil {
			return nil, err
		}
		return &OptimizedRoute{
			Order:           b.order,
			DistanceMeters:  b.distanceMeters,
			DurationSeconds: int(b.duration / time.Second),
			Polyline:        b.polyline,
			LegDurations:    b.stopLegs(),
		}, nil
	}

	out := &OptimizedRoute{
		Order:        make([]int, 0, len(req.Stops)),
		LegDurations: make([]time.Duration, 0, len(req.Stops)),
	}
	var elapsed, carry time.Duration
	for offset := 0; offset < len(req.Stops); offset += maxIntermediates {
		end := offset + maxIntermediates
		if end > len(req.Stops) {
			end = len(req.Stops)
		}
		departure := req.DepartureTime
		if !departure.IsZero() {
			departure = departure.Add(elapsed)
		}
		b, err := c.optimizeBatch(ctx, req.Depot, req.Stops[offset:end], departure)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, err, "optimize stop batch").
				WithDetails(map[string]any{"batch_start": offset, "batch_size": end - offset, "stops": len(req.Stops)})
		}
		for _, idx := range b.order {
			out.Order = append(out.Order, offset+idx)
		}
		// The van returns to the depot between batches; that return leg is
		// travel time before the next batch's first stop.
		legs := b.stopLegs()
		if len(legs) > 0 {
			legs[0] += carry
		}
		out.LegDurations = append(out.LegDurations, legs...)
		carry = b.returnLeg()
		out.DistanceMeters += b.distanceMeters
		elapsed += b.duration
	}
	out.DurationSeconds = int(elapsed / time.Second)
	return out, nil
}

// batch is one computeRoutes answer with all legs, including the return to the
// depot.
type batch struct {
	order          []int
	distanceMeters int
	duration       time.Duration
	polyline       string
	legs           []time.Duration
}

func (b batch) stopLegs() []time.Duration {
	n := len(b.order)
	if n > len(b.legs) {
		n = len(b.legs)
	}
	return append([]time.Duration(nil), b.legs[:n]...)
}

func (b batch) returnLeg() time.Duration {
	if len(b.legs) > len(b.order) {
		return b.legs[len(b.order)]
	}
	return 0
}

func (c *Client) optimizeBatch(ctx context.Context, depot LatLng, stops []LatLng, departure time.Time) (*batch, error) {
	body := computeRoutesRequest{
		Origin:                toWaypoint(depot),
		Destination:           toWaypoint(depot),
		TravelMode:            "DRIVE",
		OptimizeWaypointOrder: true,
	}
	for _, stop := range stops {
		body.Intermediates = append(body.Intermediates, toWaypoint(stop))
	}
	if !departure.IsZero() && departure.After(time.Now()) {
		body.RoutingPreference = "TRAFFIC_AWARE"
		body.DepartureTime = departure.UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal compute routes request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(computeRoutesPath), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build compute routes request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", computeRoutesFieldMask)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, err, "execute compute routes request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "compute routes request failed")
	}

	var apiResp computeRoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, err, "decode compute routes response")
	}
	if len(apiResp.Routes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeRouteProviderUnavailable, "compute routes returned no route")
	}
	route := apiResp.Routes[0]

	order := route.OptimizedIntermediateWaypointIndex
	if len(order) == 0 && len(stops) == 1 {
		order = []int{0}
	}
	if err := ValidatePermutation(order, len(stops)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, err, "invalid waypoint order")
	}

	duration, err := parseDuration(route.Duration)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, err, "decode route duration")
	}

	legs := make([]time.Duration, 0, len(route.Legs))
	for _, leg := range route.Legs {
		d, err := parseDuration(leg.Duration)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, err, "decode leg duration")
		}
		legs = append(legs, d)
	}

	return &batch{
		order:          order,
		distanceMeters: route.DistanceMeters,
		duration:       duration,
		polyline:       route.Polyline.EncodedPolyline,
		legs:           legs,
	}, nil
}

func toWaypoint(p LatLng) routesWaypoint {
	var w routesWaypoint
	w.Location.LatLng = routesLatLng{Latitude: p.Latitude, Longitude: p.Longitude}
	return w
}

// parseDuration reads protobuf JSON durations such as "1234s" or "12.5s".
func parseDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	if !strings.HasSuffix(trimmed, "s") {
		return 0, fmt.Errorf("unexpected duration %q", raw)
	}
	secs, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "s"), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected duration %q: %w", raw, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ValidatePermutation reports whether order visits each of n stops exactly once.
func ValidatePermutation(order []int, n int) error {
	if len(order) != n {
		return fmt.Errorf("expected %d indexes, got %d", n, len(order))
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("index %d out of range or repeated", idx)
		}
		seen[idx] = true
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
