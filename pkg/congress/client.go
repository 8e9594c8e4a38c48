// Package congress provides a client for the Congress.gov v3 member API.
package congress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civic-tools/civicd/internal/resilience"
)

// ErrAuthRequired indicates Congress.gov rejected the request for lack of
// an API key.
var ErrAuthRequired = errors.New("congress: API key required")

// Client defines the Congress.gov member operations.
type Client interface {
	// HouseMembers returns House of Representatives members, excluding
	// Senators, optionally filtered by state.
	HouseMembers(ctx context.Context, opts MemberOptions) ([]Member, error)
}

// MemberOptions filters a member query.
type MemberOptions struct {
	// State restricts results to a two-letter state code
	// (case-insensitive). Empty means all states.
	State string

	// CurrentOnly restricts results to sitting members.
	CurrentOnly bool
}

// Member is one Congressional member.
type Member struct {
	BioguideID string `json:"bioguide_id"`
	Name       string `json:"name"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	State      string `json:"state"`
	District   *int   `json:"district,omitempty"`
	Party      string `json:"party"`
	Chamber    string `json:"chamber"`
	URL        string `json:"url,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

// StatusError is a non-200, non-403 response from Congress.gov.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("congress: API returned status %d", e.StatusCode)
}

// Option configures the Congress.gov client.
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

// WithPageLimit sets the per-request member limit.
func WithPageLimit(limit int) Option {
	return func(c *httpClient) {
		c.pageLimit = limit
	}
}

// WithRetry overrides the retry configuration.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	pageLimit int
	http      *http.Client
	retry     resilience.RetryConfig
}

// NewClient creates a new Congress.gov client. The API key may be empty;
// Congress.gov then serves a limited quota and may answer 403.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   "https://api.congress.gov/v3",
		pageLimit: 250,
		http:      &http.Client{Timeout: 15 * time.Second},
		retry:     resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// memberList is the raw Congress.gov member listing.
type memberList struct {
	Members []rawMember `json:"members"`
}

// rawMember carries the fields we read from one member record. District
// and startYear arrive as numbers or strings depending on the record, so
// they are decoded as raw JSON and parsed leniently.
type rawMember struct {
	BioguideID string          `json:"bioguideId"`
	Name       string          `json:"name"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	State      string          `json:"state"`
	District   json.RawMessage `json:"district"`
	PartyName  string          `json:"partyName"`
	Terms      struct {
		Item []rawTerm `json:"item"`
	} `json:"terms"`
}

type rawTerm struct {
	Chamber   string          `json:"chamber"`
	StartYear json.RawMessage `json:"startYear"`
}

// HouseMembers fetches the member list and filters it to House members.
func (c *httpClient) HouseMembers(ctx context.Context, opts MemberOptions) ([]Member, error) {
	params := url.Values{
		"limit":  {strconv.Itoa(c.pageLimit)},
		"format": {"json"},
	}
	if opts.CurrentOnly {
		params.Set("currentMember", "true")
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	var list memberList
	err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.fetchMembers(ctx, params, &list)
	})
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(list.Members))
	for _, raw := range list.Members {
		m, ok := parseMember(raw)
		if !ok {
			continue
		}
		// The API reports "House of Representatives", not "House".
		if !strings.HasPrefix(strings.ToLower(m.Chamber), "house") {
			continue
		}
		if opts.State != "" && !strings.EqualFold(m.State, opts.State) {
			continue
		}
		members = append(members, m)
	}

	zap.L().Info("congress: fetched House members", zap.Int("count", len(members)))
	return members, nil
}

func (c *httpClient) fetchMembers(ctx context.Context, params url.Values, out *memberList) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/member?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "congress: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "congress: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return ErrAuthRequired
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return resilience.NewTransientError(&StatusError{StatusCode: resp.StatusCode}, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "congress: read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "congress: parse response")
	}
	return nil
}

// parseMember normalizes one raw record. Records missing a bioguide ID or
// state are dropped.
func parseMember(raw rawMember) (Member, bool) {
	if raw.BioguideID == "" {
		zap.L().Warn("congress: member missing bioguideId, skipping")
		return Member{}, false
	}
	if raw.State == "" {
		zap.L().Warn("congress: member missing state, skipping", zap.String("bioguide_id", raw.BioguideID))
		return Member{}, false
	}

	m := Member{
		BioguideID: raw.BioguideID,
		Name:       raw.Name,
		FirstName:  raw.FirstName,
		LastName:   raw.LastName,
		State:      raw.State,
		District:   parseDistrict(raw.District, raw.BioguideID),
		Party:      normalizeParty(raw.PartyName),
		Chamber:    latestChamber(raw.Terms.Item),
		URL:        "https://www.congress.gov/member/" + raw.BioguideID,
		ImageURL:   fmt.Sprintf("https://www.congress.gov/img/member/%s_200.jpg", strings.ToLower(raw.BioguideID)),
	}
	return m, true
}

// parseDistrict reads a district number that may be absent, numeric, or a
// quoted string. Anything unparseable is treated as no district
// (Senators, at-large seats).
func parseDistrict(raw json.RawMessage, bioguideID string) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	n, err := lenientInt(raw)
	if err != nil {
		zap.L().Warn("congress: invalid district value",
			zap.String("bioguide_id", bioguideID),
			zap.String("district", string(raw)),
		)
		return nil
	}
	return &n
}

// latestChamber picks the chamber of the term with the greatest start
// year. Terms without a parseable start year sort as year zero.
func latestChamber(terms []rawTerm) string {
	if len(terms) == 0 {
		return "Unknown"
	}
	best := terms[0]
	bestYear, _ := lenientInt(best.StartYear)
	for _, t := range terms[1:] {
		year, _ := lenientInt(t.StartYear)
		if year > bestYear {
			best = t
			bestYear = year
		}
	}
	if best.Chamber == "" {
		return "Unknown"
	}
	return best.Chamber
}

// normalizeParty maps Congress.gov party names onto the three major
// affiliations, passing anything else through verbatim.
func normalizeParty(partyName string) string {
	switch {
	case strings.Contains(partyName, "Democrat"):
		return "Democrat"
	case strings.Contains(partyName, "Republican"):
		return "Republican"
	case strings.Contains(partyName, "Independent"):
		return "Independent"
	case partyName != "":
		return partyName
	default:
		return "Unknown"
	}
}

// lenientInt parses a JSON value that may be a number, a quoted integer,
// or a quoted float.
func lenientInt(raw json.RawMessage) (int, error) {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "congress: parse int %q", string(raw))
	}
	return int(f), nil
}
