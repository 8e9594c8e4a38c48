package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/civic-tools/civicd/internal/kml"
	"github.com/civic-tools/civicd/pkg/congress"
	"github.com/civic-tools/civicd/pkg/nominatim"
	"github.com/civic-tools/civicd/pkg/usps"
)

// uspsEnvelope is the /usps/validate response body.
type uspsEnvelope struct {
	Success             bool               `json:"success"`
	StandardizedAddress *usps.Standardized `json:"standardized_address,omitempty"`
	Error               string             `json:"error,omitempty"`
}

// geocodeEnvelope is the /geocode response body.
type geocodeEnvelope struct {
	Success bool               `json:"success"`
	Results []nominatim.Result `json:"results"`
	Error   string             `json:"error,omitempty"`
	Query   string             `json:"query"`
}

// membersEnvelope is the /house/members response body.
type membersEnvelope struct {
	Success    bool              `json:"success"`
	Members    []congress.Member `json:"members"`
	TotalCount int               `json:"total_count"`
	Error      string            `json:"error,omitempty"`
}

// handleKMLParse accepts a multipart KML upload and returns GeoJSON
// boundary features.
func (s *Server) handleKMLParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds upload limit of %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "missing file upload field")
		return
	}
	defer file.Close() //nolint:errcheck

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".kml") {
		writeError(w, http.StatusBadRequest, "invalid file type, please upload a KML file")
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds upload limit of %d bytes", tooLarge.Limit))
			return
		}
		zap.L().Error("api: read upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read uploaded file")
		return
	}

	result, err := kml.Parse(raw)
	if err != nil {
		if errors.Is(err, kml.ErrMalformedInput) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid KML file: %v", err))
			return
		}
		zap.L().Error("api: parse KML", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "an unexpected error occurred while parsing the KML file")
		return
	}

	if result.Success {
		zap.L().Info("api: parsed KML file",
			zap.String("filename", header.Filename),
			zap.Int("features", len(result.Features)),
		)
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUSPSValidate standardizes a US address through the USPS Web Tools
// API. Address-level rejections come back as success=false envelopes;
// upstream failures map to 5xx.
func (s *Server) handleUSPSValidate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.USPS.UserID == "" {
		zap.L().Error("api: USPS user ID not configured")
		writeError(w, http.StatusInternalServerError,
			"USPS API is not configured, set usps.user_id or CIVICD_USPS_USER_ID")
		return
	}

	var addr usps.Address
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if addr.Street1 == "" || addr.City == "" || len(addr.State) != 2 || addr.Zip == "" {
		writeError(w, http.StatusBadRequest, "street1, city, two-letter state and zip are required")
		return
	}

	standardized, err := s.usps.Validate(r.Context(), addr)
	if err != nil {
		var verr *usps.ValidationError
		if errors.As(err, &verr) {
			zap.L().Warn("api: USPS validation error", zap.String("error", verr.Message))
			writeJSON(w, http.StatusOK, uspsEnvelope{Success: false, Error: verr.Message})
			return
		}
		var serr *usps.StatusError
		if errors.As(err, &serr) {
			zap.L().Error("api: USPS HTTP error", zap.Int("status", serr.StatusCode))
			writeError(w, http.StatusBadGateway, fmt.Sprintf("USPS API returned error: %d", serr.StatusCode))
			return
		}
		if isConnectionError(err) {
			zap.L().Error("api: USPS request error", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "unable to connect to USPS API, please try again later")
			return
		}
		zap.L().Error("api: USPS validation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "an unexpected error occurred during address validation")
		return
	}

	writeJSON(w, http.StatusOK, uspsEnvelope{Success: true, StandardizedAddress: standardized})
}

// handleGeocode geocodes a free-form address via Nominatim.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	results, err := s.geocoder.Search(r.Context(), req.Address)
	if err != nil {
		if errors.Is(err, nominatim.ErrInvalidResponse) {
			zap.L().Error("api: Nominatim response unreadable", zap.Error(err))
			writeJSON(w, http.StatusOK, geocodeEnvelope{
				Success: false,
				Results: []nominatim.Result{},
				Error:   "Invalid response from geocoding service",
				Query:   req.Address,
			})
			return
		}
		var serr *nominatim.StatusError
		if errors.As(err, &serr) {
			zap.L().Error("api: Nominatim HTTP error", zap.Int("status", serr.StatusCode))
			writeError(w, http.StatusBadGateway, fmt.Sprintf("Nominatim API returned error: %d", serr.StatusCode))
			return
		}
		if isConnectionError(err) {
			zap.L().Error("api: Nominatim request error", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "unable to connect to Nominatim API, please try again later")
			return
		}
		zap.L().Error("api: geocoding failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "an unexpected error occurred during geocoding")
		return
	}

	if len(results) == 0 {
		writeJSON(w, http.StatusOK, geocodeEnvelope{
			Success: false,
			Results: []nominatim.Result{},
			Error:   "no results found for the given address",
			Query:   req.Address,
		})
		return
	}

	zap.L().Info("api: geocoded address", zap.Int("results", len(results)))
	writeJSON(w, http.StatusOK, geocodeEnvelope{Success: true, Results: results, Query: req.Address})
}

// handleHouseMembers lists US House members from Congress.gov.
func (s *Server) handleHouseMembers(w http.ResponseWriter, r *http.Request) {
	opts := congress.MemberOptions{
		State:       r.URL.Query().Get("state"),
		CurrentOnly: true,
	}
	if v := r.URL.Query().Get("current_only"); v != "" {
		opts.CurrentOnly = v != "false"
	}

	members, err := s.congress.HouseMembers(r.Context(), opts)
	if err != nil {
		switch {
		case errors.Is(err, congress.ErrAuthRequired):
			zap.L().Error("api: Congress API requires authentication")
			writeError(w, http.StatusInternalServerError,
				"Congress API requires authentication, set congress.api_key or CIVICD_CONGRESS_API_KEY")
		default:
			var serr *congress.StatusError
			if errors.As(err, &serr) {
				zap.L().Error("api: Congress HTTP error", zap.Int("status", serr.StatusCode))
				writeError(w, http.StatusBadGateway, fmt.Sprintf("Congress API returned error: %d", serr.StatusCode))
				return
			}
			if isConnectionError(err) {
				zap.L().Error("api: Congress request error", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "unable to connect to Congress API, please try again later")
				return
			}
			zap.L().Error("api: fetch House members failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "an unexpected error occurred while fetching House members")
		}
		return
	}

	writeJSON(w, http.StatusOK, membersEnvelope{
		Success:    true,
		Members:    members,
		TotalCount: len(members),
	})
}

// isConnectionError reports whether the error chain contains a transport
// failure (dial, DNS, timeout) rather than an HTTP-level response.
func isConnectionError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
