package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/visibility-cli/internal/resilience"
)

func TestExtractSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req ExtractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://acme.example", req.URL)

		_ = json.NewEncoder(w).Encode(ExtractResponse{
			Success: true,
			Data: SiteProfile{
				Name:        "Acme Plumbing",
				Description: "Plumbing services in Portland",
				City:        "Portland",
				PageCount:   12,
			},
		})
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL))
	resp, err := client.Extract(context.Background(), ExtractRequest{URL: "https://acme.example"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Acme Plumbing", resp.Data.Name)
	assert.Equal(t, 12, resp.Data.PageCount)
}

func TestExtractTransientStatusIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL))
	_, err := client.Extract(context.Background(), ExtractRequest{URL: "https://acme.example"})
	require.Error(t, err)
	assert.True(t, resilience.IsRetryable(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "overloaded")
}

func TestExtractClientStatusIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL))
	_, err := client.Extract(context.Background(), ExtractRequest{URL: "https://acme.example"})
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestExtractContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("key", WithBaseURL(srv.URL), WithRateLimit(10))
	_, err := client.Extract(ctx, ExtractRequest{URL: "https://acme.example"})
	require.Error(t, err)
}
