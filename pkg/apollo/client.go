// Package apollo is a minimal client for the Apollo.io organization
// enrichment API.
package apollo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apollo.io/api/v1"

// Client enriches organizations by domain.
type Client interface {
	EnrichOrganization(ctx context.Context, domain string) (*Organization, error)
}

// Organization is the subset of Apollo's organization record we use.
type Organization struct {
	Name                  string   `json:"name"`
	WebsiteURL            string   `json:"website_url"`
	Industry              string   `json:"industry"`
	EstimatedNumEmployees int      `json:"estimated_num_employees"`
	City                  string   `json:"city"`
	State                 string   `json:"state"`
	Country               string   `json:"country"`
	LatestFundingStage    string   `json:"latest_funding_stage"`
	AnnualRevenuePrinted  string   `json:"annual_revenue_printed"`
	TechnologyNames       []string `json:"technology_names"`
}

// Location joins the non-empty HQ parts, most specific first.
func (o *Organization) Location() string {
	out := ""
	for _, p := range []string{o.City, o.State, o.Country} {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apollo: unexpected status %d: %s", e.StatusCode, e.Body)
}

// ErrNoOrganization is returned when Apollo has no record for the domain.
var ErrNoOrganization = eris.New("apollo: organization not found")

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apollo API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) EnrichOrganization(ctx context.Context, domain string) (*Organization, error) {
	q := url.Values{}
	q.Set("domain", domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/organizations/enrich?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		Organization *Organization `json:"organization"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal response")
	}
	if out.Organization == nil {
		return nil, eris.Wrapf(ErrNoOrganization, "domain %s", domain)
	}
	return out.Organization, nil
}
