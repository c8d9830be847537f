package wikidata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lumenreach/visibility-cli/internal/resilience"
)

// Default base URL targets the Wikidata test instance; production is opt-in
// per publish call.
const (
	defaultTestBaseURL       = "https://test.wikidata.org/w/rest.php/wikibase/v1"
	defaultProductionBaseURL = "https://www.wikidata.org/w/rest.php/wikibase/v1"
)

// Client publishes entities to a Wikibase instance.
type Client interface {
	PublishEntity(ctx context.Context, entity Entity, production bool) (*PublishResponse, error)
}

// PublishResponse is the result of an entity publish attempt.
type PublishResponse struct {
	Success bool   `json:"success"`
	QID     string `json:"qid"`
	Error   string `json:"error,omitempty"`
}

// APIError is returned when the Wikibase API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wikidata: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRejection reports whether the error is a schema or property rejection by
// the destination, which requires human correction rather than a retry.
func (e *APIError) IsRejection() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURLs overrides the test and production base URLs.
func WithBaseURLs(test, production string) Option {
	return func(c *httpClient) {
		c.testBaseURL = test
		c.prodBaseURL = production
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token       string
	testBaseURL string
	prodBaseURL string
	http        *http.Client
}

// NewClient creates a Wikibase REST client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:       token,
		testBaseURL: defaultTestBaseURL,
		prodBaseURL: defaultProductionBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type createItemRequest struct {
	Item    itemPayload `json:"item"`
	Comment string      `json:"comment,omitempty"`
}

type itemPayload struct {
	Labels       map[string]string      `json:"labels"`
	Descriptions map[string]string      `json:"descriptions"`
	Statements   map[string][]statement `json:"statements,omitempty"`
}

type statement struct {
	Property propertyRef `json:"property"`
	Value    valueRef    `json:"value"`
}

type propertyRef struct {
	ID string `json:"id"`
}

type valueRef struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type createItemResponse struct {
	ID string `json:"id"`
}

func (c *httpClient) PublishEntity(ctx context.Context, entity Entity, production bool) (*PublishResponse, error) {
	base := c.testBaseURL
	if production {
		base = c.prodBaseURL
	}

	statements := make(map[string][]statement, len(entity.Claims))
	for _, cl := range entity.Claims {
		statements[cl.Property] = append(statements[cl.Property], statement{
			Property: propertyRef{ID: cl.Property},
			Value:    valueRef{Type: "value", Content: cl.Value},
		})
	}

	body, err := json.Marshal(createItemRequest{
		Item: itemPayload{
			Labels:       entity.Labels,
			Descriptions: entity.Descriptions,
			Statements:   statements,
		},
		Comment: "visibility-cli automated publish",
	})
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: marshal entity")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/entities/items", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Retryable(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var created createItemResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, eris.Wrap(err, "wikidata: decode response")
	}

	return &PublishResponse{Success: true, QID: created.ID}, nil
}
