package truck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Route is a street route between two coordinates.
type Route struct {
	Path      []Coordinate `json:"path"`
	DistanceM float64      `json:"distance_m"`
	DurationS float64      `json:"duration_s"`
}

// Router asks an OSRM-compatible service for a driving route. The route is
// only drawn on the map; the truck itself moves in a straight line.
type Router struct {
	BaseURL string
	Client  *http.Client

	tracer trace.Tracer
}

func NewRouter(baseURL string, timeout time.Duration) *Router {
	return &Router{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		tracer:  otel.Tracer(tracerName),
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry json.RawMessage `json:"geometry"`
		Distance float64         `json:"distance"`
		Duration float64         `json:"duration"`
	} `json:"routes"`
}

// Route fetches the driving route from one coordinate to another.
func (r *Router) Route(ctx context.Context, from, to Coordinate) (route *Route, err error) {
	tracer := r.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(ctx, "truck.Route")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		r.BaseURL, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build route request: %w", err)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode route response: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return nil, fmt.Errorf("no route: %s %s", body.Code, body.Message)
	}

	best := body.Routes[0]
	geom, err := geojson.UnmarshalGeometry(best.Geometry)
	if err != nil {
		return nil, fmt.Errorf("decode route geometry: %w", err)
	}
	if !geom.IsLineString() {
		return nil, fmt.Errorf("route geometry is %s, want LineString", geom.Type)
	}

	route = &Route{DistanceM: best.Distance, DurationS: best.Duration}
	for _, p := range geom.LineString {
		if len(p) < 2 {
			continue
		}
		route.Path = append(route.Path, Coordinate{Lat: p[1], Lon: p[0]})
	}
	span.SetAttributes(
		attribute.Int("route.points", len(route.Path)),
		attribute.Float64("route.distance_m", route.DistanceM),
	)
	return route, nil
}
