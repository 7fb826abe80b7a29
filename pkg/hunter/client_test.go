package hunter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/domain-search", r.URL.Path)
		assert.Equal(t, "acme.com", r.URL.Query().Get("domain"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "personal", r.URL.Query().Get("type"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"domain":"acme.com","organization":"Acme","emails":[
			{"value":"jane@acme.com","first_name":"Jane","last_name":"Doe","position":"VP of Sales","seniority":"executive","linkedin":"https://linkedin.com/in/jane","confidence":94},
			{"value":"bob@acme.com","first_name":"Bob","last_name":"Roe","position":"Engineer"}
		]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.DomainSearch(context.Background(), "acme.com", 5)
	require.NoError(t, err)
	assert.Equal(t, "Acme", resp.Organization)
	require.Len(t, resp.Emails, 2)
	assert.Equal(t, "jane@acme.com", resp.Emails[0].Value)
	assert.Equal(t, "VP of Sales", resp.Emails[0].Position)
	assert.Equal(t, "https://linkedin.com/in/jane", resp.Emails[0].LinkedIn)
	assert.Equal(t, 94, resp.Emails[0].Confidence)
}

func TestDomainSearch_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"errors":[{"id":"too_many_requests"}]}`, wantStatus: 429},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"errors":[{"id":"authentication_failed"}]}`, wantStatus: 401},
		{name: "bad json", status: http.StatusOK, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			c := NewClient("k", WithBaseURL(srv.URL))
			_, err := c.DomainSearch(context.Background(), "acme.com", 1)
			require.Error(t, err)

			var apiErr *APIError
			if tt.wantStatus == 0 {
				assert.False(t, errors.As(err, &apiErr))
				assert.Contains(t, err.Error(), "unmarshal")
				return
			}
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Contains(t, apiErr.Body, "errors")
		})
	}
}

func TestVerifyEmail(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantOK bool
	}{
		{name: "deliverable", body: `{"data":{"email":"a@acme.com","status":"valid","result":"deliverable","score":97}}`, wantOK: true},
		{name: "accept all", body: `{"data":{"email":"a@acme.com","status":"accept_all","result":"risky"}}`, wantOK: true},
		{name: "undeliverable", body: `{"data":{"email":"a@acme.com","status":"invalid","result":"undeliverable"}}`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/email-verifier", r.URL.Path)
				assert.Equal(t, "a@acme.com", r.URL.Query().Get("email"))
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			c := NewClient("k", WithBaseURL(srv.URL))
			v, err := c.VerifyEmail(context.Background(), "a@acme.com")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, v.Deliverable())
		})
	}
}
