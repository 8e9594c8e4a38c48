package usps

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Success(t *testing.T) {
	var gotXML string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Verify", r.URL.Query().Get("API"))
		gotXML = r.URL.Query().Get("XML")
		_, _ = io.WriteString(w, `<AddressValidateResponse>
  <Address ID="0">
    <Address2>1600 PENNSYLVANIA AVE NW</Address2>
    <City>WASHINGTON</City>
    <State>DC</State>
    <Zip5>20500</Zip5>
    <Zip4>0005</Zip4>
  </Address>
</AddressValidateResponse>`)
	}))
	defer srv.Close()

	c := NewClient("TESTUSER", WithBaseURL(srv.URL))
	got, err := c.Validate(context.Background(), Address{
		Street1: "1600 Pennsylvania Ave NW",
		City:    "Washington",
		State:   "dc",
		Zip:     "20500",
	})
	require.NoError(t, err)

	assert.Equal(t, "1600 PENNSYLVANIA AVE NW", got.Street1)
	assert.Equal(t, "WASHINGTON", got.City)
	assert.Equal(t, "DC", got.State)
	assert.Equal(t, "20500-0005", got.Zip)
	assert.Equal(t, "0005", got.Zip4)

	// Request uses USPS field conventions: Address2 carries the street,
	// state is uppercased.
	var sent validateRequest
	require.NoError(t, xml.Unmarshal([]byte(gotXML), &sent))
	assert.Equal(t, "TESTUSER", sent.UserID)
	assert.Equal(t, "1600 Pennsylvania Ave NW", sent.Address.Address2)
	assert.Equal(t, "DC", sent.Address.State)
}

func TestValidate_EscapesUserInput(t *testing.T) {
	var gotXML string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotXML = r.URL.Query().Get("XML")
		_, _ = io.WriteString(w, `<AddressValidateResponse><Address><City>X</City></Address></AddressValidateResponse>`)
	}))
	defer srv.Close()

	c := NewClient("TESTUSER", WithBaseURL(srv.URL))
	_, err := c.Validate(context.Background(), Address{
		Street1: `123 Main St</Address2><Injected>`,
		City:    "Town",
		State:   "CA",
		Zip:     "94105",
	})
	require.NoError(t, err)

	assert.NotContains(t, gotXML, "<Injected>")
	assert.Contains(t, gotXML, "&lt;Injected&gt;")
}

func TestValidate_USPSError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<AddressValidateResponse>
  <Address ID="0">
    <Error>
      <Number>-2147219401</Number>
      <Description>Address Not Found.</Description>
    </Error>
  </Address>
</AddressValidateResponse>`)
	}))
	defer srv.Close()

	c := NewClient("TESTUSER", WithBaseURL(srv.URL))
	_, err := c.Validate(context.Background(), Address{Street1: "1 Nowhere", City: "X", State: "XX", Zip: "00000"})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "USPS Error -2147219401: Address Not Found.", verr.Message)
}

func TestValidate_RootLevelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<Error>
  <Number>80040B1A</Number>
  <Description>Authorization failure.</Description>
</Error>`)
	}))
	defer srv.Close()

	c := NewClient("BADUSER", WithBaseURL(srv.URL))
	_, err := c.Validate(context.Background(), Address{Street1: "1 Main", City: "X", State: "CA", Zip: "94105"})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Message, "Authorization failure")
}

func TestValidate_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("TESTUSER", WithBaseURL(srv.URL))
	_, err := c.Validate(context.Background(), Address{Street1: "1 Main", City: "X", State: "CA", Zip: "94105"})

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
}

func TestValidate_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<AddressValidateResponse><Address>`)
	}))
	defer srv.Close()

	c := NewClient("TESTUSER", WithBaseURL(srv.URL))
	_, err := c.Validate(context.Background(), Address{Street1: "1 Main", City: "X", State: "CA", Zip: "94105"})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Message, "invalid XML response from USPS")
}

func TestBuildRequestXML_SplitsZip(t *testing.T) {
	out, err := buildRequestXML(Address{Street1: "1 Main", City: "X", State: "ca", Zip: "94105-1234"}, "U")
	require.NoError(t, err)

	var req validateRequest
	require.NoError(t, xml.Unmarshal([]byte(out), &req))
	assert.Equal(t, "94105", req.Address.Zip5)
	assert.Equal(t, "1234", req.Address.Zip4)
	assert.Equal(t, "CA", req.Address.State)
}
