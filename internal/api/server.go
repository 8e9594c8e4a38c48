// Package api exposes the civic data gateway over HTTP: KML boundary
// parsing, USPS address validation, Nominatim geocoding and Congress.gov
// House member lookup.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/civic-tools/civicd/internal/config"
	"github.com/civic-tools/civicd/pkg/congress"
	"github.com/civic-tools/civicd/pkg/nominatim"
	"github.com/civic-tools/civicd/pkg/usps"
)

// Version reported by the root endpoint.
const Version = "1.0.0"

// Server holds the gateway's upstream clients and configuration.
type Server struct {
	cfg      *config.Config
	usps     usps.Client
	geocoder nominatim.Client
	congress congress.Client
}

// NewServer creates a Server with the given upstream clients.
func NewServer(cfg *config.Config, uspsClient usps.Client, geocoder nominatim.Client, congressClient congress.Client) *Server {
	return &Server{
		cfg:      cfg,
		usps:     uspsClient,
		geocoder: geocoder,
		congress: congressClient,
	}
}

// Router builds the chi router with CORS, compression and logging.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: s.cfg.CORS.AllowCredentials(),
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleRoot)
	r.Post("/kml/parse", s.handleKMLParse)
	r.Post("/usps/validate", s.handleUSPSValidate)
	r.Post("/geocode", s.handleGeocode)
	r.Get("/house/members", s.handleHouseMembers)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "civicd",
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "civic data gateway",
		"version": Version,
	})
}

// writeJSON serializes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

// writeError sends a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request with latency and status.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
