package apollo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichOrganization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/enrich", r.URL.Path)
		assert.Equal(t, "acme.com", r.URL.Query().Get("domain"))
		assert.Equal(t, "apollo-key", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organization":{
			"name":"Acme","industry":"computer software","estimated_num_employees":120,
			"city":"Austin","state":"Texas","country":"United States",
			"latest_funding_stage":"Series B","annual_revenue_printed":"12M",
			"technology_names":["Salesforce","HubSpot"]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("apollo-key", WithBaseURL(srv.URL))
	org, err := c.EnrichOrganization(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, 120, org.EstimatedNumEmployees)
	assert.Equal(t, "Series B", org.LatestFundingStage)
	assert.Equal(t, "Austin, Texas, United States", org.Location())
	assert.Equal(t, []string{"Salesforce", "HubSpot"}, org.TechnologyNames)
}

func TestEnrichOrganization_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.EnrichOrganization(context.Background(), "nowhere.io")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoOrganization))
}

func TestEnrichOrganization_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`upstream down`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.EnrichOrganization(context.Background(), "acme.com")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Body)
}

func TestOrganization_Location(t *testing.T) {
	assert.Equal(t, "", (&Organization{}).Location())
	assert.Equal(t, "Germany", (&Organization{Country: "Germany"}).Location())
	assert.Equal(t, "Berlin, Germany", (&Organization{City: "Berlin", Country: "Germany"}).Location())
}
