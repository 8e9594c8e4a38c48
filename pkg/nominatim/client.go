// Package nominatim provides a client for the Nominatim (OpenStreetMap)
// geocoding API.
//
// Requests are rate limited to comply with the Nominatim usage policy
// (1 request per second) and always carry a User-Agent, which the service
// requires.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client defines the geocoding operations.
type Client interface {
	// Search geocodes a free-form address. An empty slice means the
	// address produced no results; that is not an error.
	Search(ctx context.Context, query string) ([]Result, error)
}

// Result is one geocoding candidate.
type Result struct {
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	DisplayName string   `json:"display_name"`
	PlaceID     string   `json:"place_id,omitempty"`
	OSMType     string   `json:"osm_type,omitempty"`
	OSMID       string   `json:"osm_id,omitempty"`
	Importance  *float64 `json:"importance,omitempty"`
}

// ErrInvalidResponse reports a 200 response whose body is not the
// expected JSON result array.
var ErrInvalidResponse = errors.New("nominatim: invalid response body")

// StatusError is a non-200 response from Nominatim.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nominatim: API returned status %d", e.StatusCode)
}

// Option configures the Nominatim client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a new Nominatim client with the given User-Agent.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://nominatim.openstreetmap.org",
		userAgent: userAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(1, 1), // Nominatim policy: 1 req/s
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchItem is one raw Nominatim result. Numeric fields arrive as JSON
// strings or numbers depending on the field, so everything is decoded
// leniently.
type searchItem struct {
	Lat         string      `json:"lat"`
	Lon         string      `json:"lon"`
	DisplayName string      `json:"display_name"`
	PlaceID     json.Number `json:"place_id"`
	OSMType     string      `json:"osm_type"`
	OSMID       json.Number `json:"osm_id"`
	Importance  float64     `json:"importance"`
}

// Search geocodes an address, returning up to 5 candidates.
func (c *httpClient) Search(ctx context.Context, query string) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: rate limit")
	}

	params := url.Values{
		"q":              {query},
		"format":         {"json"},
		"addressdetails": {"1"},
		"limit":          {"5"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: read body")
	}

	var items []searchItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, eris.Wrapf(ErrInvalidResponse, "parse response: %v", err)
	}

	results := make([]Result, 0, len(items))
	for _, item := range items {
		lat, latErr := strconv.ParseFloat(item.Lat, 64)
		lng, lngErr := strconv.ParseFloat(item.Lon, 64)
		if item.Lat == "" || item.Lon == "" || latErr != nil || lngErr != nil {
			zap.L().Debug("nominatim: skipping result without valid coordinates")
			continue
		}
		r := Result{
			Lat:         lat,
			Lng:         lng,
			DisplayName: item.DisplayName,
			PlaceID:     item.PlaceID.String(),
			OSMType:     item.OSMType,
			OSMID:       item.OSMID.String(),
		}
		if r.PlaceID == "" || r.PlaceID == "0" {
			r.PlaceID = ""
		}
		if r.OSMID == "" || r.OSMID == "0" {
			r.OSMID = ""
		}
		if item.Importance != 0 {
			importance := item.Importance
			r.Importance = &importance
		}
		results = append(results, r)
	}

	return results, nil
}
