// Package usps provides a client for the USPS Web Tools address
// validation API.
package usps

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the USPS address validation operations.
type Client interface {
	// Validate standardizes a US address. Address-level rejections from
	// USPS are returned as *ValidationError; transport failures and
	// upstream HTTP errors are returned as other error types.
	Validate(ctx context.Context, addr Address) (*Standardized, error)
}

// Address is an address to validate.
type Address struct {
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// Standardized is the USPS-standardized form of an address. Zip carries
// ZIP+4 as "12345-6789" when the +4 is known.
type Standardized struct {
	Street1 string `json:"street1"`
	Street2 string `json:"street2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Zip4    string `json:"zip4"`
}

// ValidationError is an address-level rejection from USPS (address not
// found, invalid, etc.). It is an expected outcome, not a transport
// failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StatusError is a non-200 response from the USPS endpoint.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("usps: API returned status %d", e.StatusCode)
}

// Option configures the USPS client.
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

type httpClient struct {
	userID  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new USPS Web Tools client.
func NewClient(userID string, opts ...Option) Client {
	c := &httpClient{
		userID:  userID,
		baseURL: "https://secure.shippingapis.com/ShippingAPI.dll",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// validateRequest is the Verify API request body. Marshaling through
// encoding/xml escapes every user-supplied value, which is the XML
// injection defense for this endpoint.
type validateRequest struct {
	XMLName  xml.Name       `xml:"AddressValidateRequest"`
	UserID   string         `xml:"USERID,attr"`
	Revision int            `xml:"Revision"`
	Address  requestAddress `xml:"Address"`
}

// requestAddress uses USPS field conventions: Address1 is the secondary
// line (apt, suite) and Address2 is the primary street.
type requestAddress struct {
	ID       string `xml:"ID,attr"`
	Address1 string `xml:"Address1"`
	Address2 string `xml:"Address2"`
	City     string `xml:"City"`
	State    string `xml:"State"`
	Zip5     string `xml:"Zip5"`
	Zip4     string `xml:"Zip4"`
}

type responseError struct {
	Number      string `xml:"Number"`
	Description string `xml:"Description"`
}

type responseAddress struct {
	Error    *responseError `xml:"Error"`
	Address1 string         `xml:"Address1"`
	Address2 string         `xml:"Address2"`
	City     string         `xml:"City"`
	State    string         `xml:"State"`
	Zip5     string         `xml:"Zip5"`
	Zip4     string         `xml:"Zip4"`
}

type validateResponse struct {
	XMLName     xml.Name
	Number      string           `xml:"Number"`
	Description string           `xml:"Description"`
	Error       *responseError   `xml:"Error"`
	Address     *responseAddress `xml:"Address"`
}

// Validate calls the USPS Verify API and returns the standardized address.
func (c *httpClient) Validate(ctx context.Context, addr Address) (*Standardized, error) {
	body, err := buildRequestXML(addr, c.userID)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"API": {"Verify"},
		"XML": {body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "usps: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "usps: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "usps: read body")
	}

	standardized, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	zap.L().Info("usps: validated address",
		zap.String("city", standardized.City),
		zap.String("state", standardized.State),
	)
	return standardized, nil
}

// buildRequestXML renders the Verify request with user input escaped.
func buildRequestXML(addr Address, userID string) (string, error) {
	zip := addr.Zip
	zip5 := zip
	zip4 := ""
	if len(zip) > 5 {
		zip5 = zip[:5]
		zip4 = zip[5:]
	}
	zip4 = strings.TrimPrefix(zip4, "-")

	req := validateRequest{
		UserID:   userID,
		Revision: 1,
		Address: requestAddress{
			ID:       "0",
			Address1: addr.Street2,
			Address2: addr.Street1,
			City:     addr.City,
			State:    strings.ToUpper(addr.State),
			Zip5:     zip5,
			Zip4:     zip4,
		},
	}

	out, err := xml.Marshal(req)
	if err != nil {
		return "", eris.Wrap(err, "usps: marshal request")
	}
	return string(out), nil
}

// parseResponse decodes the Verify response XML. An Error element at any
// level, an unparseable body, or a missing Address all come back as
// *ValidationError since USPS reports address rejections this way.
func parseResponse(raw []byte) (*Standardized, error) {
	var resp validateResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid XML response from USPS: %v", err)}
	}

	// The root element itself is <Error> when the request was rejected.
	if resp.XMLName.Local == "Error" {
		return nil, validationError(&responseError{Number: resp.Number, Description: resp.Description})
	}
	if resp.Error != nil {
		return nil, validationError(resp.Error)
	}
	if resp.Address == nil {
		return nil, &ValidationError{Message: "no address found in USPS response"}
	}
	if resp.Address.Error != nil {
		return nil, validationError(resp.Address.Error)
	}

	s := &Standardized{
		Street1: resp.Address.Address2,
		Street2: resp.Address.Address1,
		City:    resp.Address.City,
		State:   resp.Address.State,
		Zip:     resp.Address.Zip5,
		Zip4:    resp.Address.Zip4,
	}
	if s.Zip4 != "" {
		s.Zip = s.Zip + "-" + s.Zip4
	}
	return s, nil
}

func validationError(e *responseError) *ValidationError {
	number := e.Number
	if number == "" {
		number = "Unknown"
	}
	desc := e.Description
	if desc == "" {
		desc = "Unknown error"
	}
	return &ValidationError{Message: fmt.Sprintf("USPS Error %s: %s", number, desc)}
}
