// Package notion posts manual-review cards to a Notion review board.
package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ReviewCard summarizes an entity awaiting human publish review.
type ReviewCard struct {
	BusinessName string
	BusinessID   string
	CanPublish   bool
	Confidence   float64
	Reason       string
}

// Client posts review cards to a Notion database.
type Client interface {
	CreateReviewCard(ctx context.Context, dbID string, card ReviewCard) error
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default Notion rate limit (3 req/s).
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a Notion client with the given integration token,
// throttled to Notion's 3 req/s limit by default.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) CreateReviewCard(ctx context.Context, dbID string, card ReviewCard) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "notion: rate limit")
		}
	}

	status := "Needs Review"
	if card.CanPublish {
		status = "Ready to Publish"
	}

	_, err := c.inner.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: card.BusinessName}}},
			},
			"Business ID": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: card.BusinessID}}},
			},
			"Status": notionapi.SelectProperty{
				Select: notionapi.Option{Name: status},
			},
			"Confidence": notionapi.NumberProperty{
				Number: card.Confidence,
			},
			"Reason": notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: card.Reason}}},
			},
		},
	})
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: create review card for %s", card.BusinessID))
	}
	return nil
}
