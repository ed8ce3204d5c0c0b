package truck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fkdmshk/agv-simulation/truck"

var ErrAddressNotFound = errors.New("address not found")

// Geocoder resolves free-form addresses through a Nominatim-compatible
// search endpoint. Lookups are not retried.
type Geocoder struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client

	// OnLookup, when set, is called with "ok", "not_found" or "error" after
	// every lookup.
	OnLookup func(outcome string)

	tracer trace.Tracer
}

func NewGeocoder(baseURL, userAgent string, timeout time.Duration) *Geocoder {
	return &Geocoder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: timeout},
		tracer:    otel.Tracer(tracerName),
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the first match for address.
func (g *Geocoder) Geocode(ctx context.Context, address string) (coord Coordinate, err error) {
	tracer := g.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(ctx, "truck.Geocode", trace.WithAttributes(attribute.String("address", address)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if g.OnLookup != nil {
			switch {
			case err == nil:
				g.OnLookup("ok")
			case errors.Is(err, ErrAddressNotFound):
				g.OnLookup("not_found")
			default:
				g.OnLookup("error")
			}
		}
	}()

	if strings.TrimSpace(address) == "" {
		return Coordinate{}, fmt.Errorf("%w: empty address", ErrAddressNotFound)
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Coordinate{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", g.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client().Do(req)
	if err != nil {
		return Coordinate{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinate{}, fmt.Errorf("geocode %q: unexpected status %s", address, resp.Status)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Coordinate{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(places) == 0 {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrAddressNotFound, address)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("error parsing latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("error parsing longitude: %w", err)
	}
	span.SetAttributes(attribute.String("display_name", places[0].DisplayName))

	return Coordinate{Lat: lat, Lon: lon}, nil
}

func (g *Geocoder) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}
