package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the scoring-provider contract: one prompt against one model,
// returning the text content and token count.
type Client interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

// QueryRequest carries a single prompt for a single model.
type QueryRequest struct {
	Model       string
	Prompt      string
	System      string
	MaxTokens   int64
	Temperature *float64
}

// QueryResponse is the provider's answer.
type QueryResponse struct {
	Content    string
	Model      string
	TokensUsed int
	StopReason string
}

// Option configures the sdkClient.
type Option func(*sdkClient)

// WithRateLimit caps queries per second across all models.
func WithRateLimit(qps float64) Option {
	return func(c *sdkClient) {
		c.limiter = rate.NewLimiter(rate.Limit(qps), 1)
	}
}

// WithBaseURL points the SDK at a different endpoint (tests, proxies).
func WithBaseURL(url string) Option {
	return func(c *sdkClient) {
		c.requestOpts = append(c.requestOpts, option.WithBaseURL(url))
	}
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client      sdk.Client
	limiter     *rate.Limiter
	requestOpts []option.RequestOption
}

// NewClient creates a scoring client backed by the SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		requestOpts: []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, o := range opts {
		o(c)
	}
	c.client = sdk.NewClient(c.requestOpts...)
	return c
}

func (c *sdkClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "anthropic: rate limit wait")
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrapf(err, "anthropic: query %s", req.Model)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &QueryResponse{
		Content:    content,
		Model:      string(msg.Model),
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		StopReason: string(msg.StopReason),
	}, nil
}
