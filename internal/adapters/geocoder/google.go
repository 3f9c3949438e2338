// Package geocoder implements ports.AddressResolver on the Google Geocoding API.
package geocoder

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/samirrijal/servezone/internal/core/domain"
	"github.com/samirrijal/servezone/internal/core/ports"
	"github.com/samirrijal/servezone/internal/pkg/metrics"
)

// DefaultBaseURL is the Google Geocoding JSON endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	// Region biases results towards a ccTLD region code, e.g. "in".
	Region string
	// RateLimit is the sustained requests per second; zero disables limiting.
	RateLimit float64
	CacheTTL  time.Duration
	Timeout   time.Duration
}

// Client geocodes addresses and caches forward results.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	region     string
	limiter    *rate.Limiter
	cache      ports.CacheService
	cacheTTL   int
	logger     *slog.Logger
}

var _ ports.AddressResolver = (*Client)(nil)

// New creates a Client. cache may be nil.
func New(cfg Config, cache ports.CacheService, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		region:     cfg.Region,
		limiter:    limiter,
		cache:      cache,
		cacheTTL:   int(cfg.CacheTTL / time.Second),
		logger:     logger,
	}
}

type geocodeResponse struct {
	Results      []geocodeResult `json:"results"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type geocodeResult struct {
	AddressComponents []addressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Geocode resolves free text to a point and structured address.
func (c *Client) Geocode(ctx context.Context, query string) (*domain.ResolvedAddress, error) {
	normalized := normalize(query)
	if normalized == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrGeocodeFailure)
	}

	key := CacheKey(normalized)
	if c.cache != nil {
		if data, err := c.cache.Get(ctx, key); err == nil {
			var addr domain.ResolvedAddress
			if err := json.Unmarshal(data, &addr); err == nil {
				metrics.CacheHits.WithLabelValues("geocode_forward").Inc()
				return &addr, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("geocode_forward").Inc()
	}

	params := url.Values{"address": {strings.Join(strings.Fields(query), " ")}}
	if c.region != "" {
		params.Set("region", c.region)
	}
	resp, err := c.call(ctx, "forward", params)
	if err != nil {
		return nil, err
	}

	addr := toResolvedAddress(resp.Results[0])
	if c.cache != nil {
		if data, err := json.Marshal(addr); err == nil {
			_ = c.cache.Set(ctx, key, data, c.cacheTTL)
		}
	}
	return addr, nil
}

// ReverseGeocode returns the formatted address nearest to p.
func (c *Client) ReverseGeocode(ctx context.Context, p domain.GeoPoint) (string, error) {
	params := url.Values{
		"latlng": {strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lon, 'f', 6, 64)},
	}
	resp, err := c.call(ctx, "reverse", params)
	if err != nil {
		return "", err
	}
	return resp.Results[0].FormattedAddress, nil
}

// call performs one rate-limited request. A response without results is a
// geocode failure.
func (c *Client) call(ctx context.Context, op string, params url.Values) (*geocodeResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("geocoder: api key not configured: %w", domain.ErrGeocodeFailure)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocoder: rate limit: %w", err)
	}

	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocoder: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues(op, "transport_error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("geocoder: request: %v: %w", err, domain.ErrGeocodeFailure)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		metrics.GeocodeRequests.WithLabelValues(op, "http_"+strconv.Itoa(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("geocoder: upstream status %d: %w", resp.StatusCode, domain.ErrGeocodeFailure)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("geocoder: read body: %v: %w", err, domain.ErrGeocodeFailure)
	}

	var out geocodeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("geocoder: parse response: %v: %w", err, domain.ErrGeocodeFailure)
	}
	metrics.GeocodeRequests.WithLabelValues(op, strings.ToLower(out.Status)).Inc()

	if out.Status != "OK" || len(out.Results) == 0 {
		c.logger.DebugContext(ctx, "geocoder returned no result", "op", op, "status", out.Status, "message", out.ErrorMessage)
		return nil, &StatusError{Status: out.Status, Message: out.ErrorMessage}
	}
	return &out, nil
}

// StatusError is a non-OK status from the upstream API. It matches
// domain.ErrGeocodeFailure.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("geocoder: status %s: %s", e.Status, e.Message)
	}
	return "geocoder: status " + e.Status
}

func (e *StatusError) Is(target error) bool {
	return target == domain.ErrGeocodeFailure
}

// NoResults reports whether err means the query matched nothing.
func NoResults(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == "ZERO_RESULTS"
}

func toResolvedAddress(r geocodeResult) *domain.ResolvedAddress {
	byType := make(map[string]string)
	for _, comp := range r.AddressComponents {
		for _, typ := range comp.Types {
			if _, ok := byType[typ]; !ok {
				byType[typ] = comp.LongName
			}
		}
	}
	return &domain.ResolvedAddress{
		FormattedAddress: r.FormattedAddress,
		Area:             first(byType, "sublocality_level_1", "sublocality", "neighborhood"),
		City:             first(byType, "locality", "administrative_area_level_2"),
		State:            byType["administrative_area_level_1"],
		PostalCode:       byType["postal_code"],
		Point:            domain.NewGeoPoint(r.Geometry.Location.Lat, r.Geometry.Location.Lng),
	}
}

func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}

// CacheKey returns the cache key for a normalized forward query.
func CacheKey(normalized string) string {
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("geocode:fwd:%x", h)
}

// normalize folds width and case variants so equivalent queries share a
// cache entry.
func normalize(q string) string {
	q = norm.NFKC.String(q)
	return cases.Fold().String(strings.Join(strings.Fields(q), " "))
}
