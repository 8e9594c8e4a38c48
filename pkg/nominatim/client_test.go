package nominatim

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "1600 Pennsylvania Ave NW", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "civicd-test/1.0", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
  {"lat": "38.8977", "lon": "-77.0365", "display_name": "White House, Washington, DC",
   "place_id": 12345, "osm_type": "way", "osm_id": 238241022, "importance": 0.84},
  {"lat": "38.9", "lon": "-77.04", "display_name": "Somewhere nearby"}
]`)
	}))
	defer srv.Close()

	c := NewClient("civicd-test/1.0", WithBaseURL(srv.URL), WithRateLimit(1000))
	results, err := c.Search(context.Background(), "1600 Pennsylvania Ave NW")
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.InDelta(t, 38.8977, first.Lat, 0.0001)
	assert.InDelta(t, -77.0365, first.Lng, 0.0001)
	assert.Equal(t, "White House, Washington, DC", first.DisplayName)
	assert.Equal(t, "12345", first.PlaceID)
	assert.Equal(t, "way", first.OSMType)
	assert.Equal(t, "238241022", first.OSMID)
	require.NotNil(t, first.Importance)
	assert.InDelta(t, 0.84, *first.Importance, 0.001)

	second := results[1]
	assert.Empty(t, second.PlaceID)
	assert.Nil(t, second.Importance)
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html>unexpected maintenance page</html>`)
	}))
	defer srv.Close()

	c := NewClient("civicd-test/1.0", WithBaseURL(srv.URL), WithRateLimit(1000))
	results, err := c.Search(context.Background(), "somewhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResponse))
	assert.Nil(t, results)
}

func TestSearch_SkipsResultsWithBadCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[
  {"lat": "not-a-number", "lon": "-77.0365", "display_name": "bad"},
  {"display_name": "missing"},
  {"lat": "38.9", "lon": "-77.04", "display_name": "good"}
]`)
	}))
	defer srv.Close()

	c := NewClient("ua", WithBaseURL(srv.URL), WithRateLimit(1000))
	results, err := c.Search(context.Background(), "anywhere")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].DisplayName)
}

func TestSearch_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c := NewClient("ua", WithBaseURL(srv.URL), WithRateLimit(1000))
	results, err := c.Search(context.Background(), "gibberish qzx")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("ua", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.Search(context.Background(), "anywhere")

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusTooManyRequests, serr.StatusCode)
}

func TestSearch_RateLimiterSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	// 20 req/s keeps the test fast while still proving the limiter gates
	// the second call.
	c := NewClient("ua", WithBaseURL(srv.URL), WithRateLimit(20))

	start := time.Now()
	_, err := c.Search(context.Background(), "first")
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "second")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSearch_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("ua", WithRateLimit(0.001))
	_, err := c.Search(ctx, "anywhere")
	require.Error(t, err)
}
