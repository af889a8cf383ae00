package payments

import (
	"context"
	"errors"
	"net/url"

	"github.com/audiotailoc/commerce/internal/orders"
)

// CODClient is cash on delivery: no upstream, no webhooks. The intent stays
// PENDING and the order is confirmed by staff.
type CODClient struct {
	ReturnURL string
}

func (c *CODClient) Provider() Provider { return ProviderCOD }

func (c *CODClient) CreateRedirect(_ context.Context, _ PaymentIntent, _ orders.Order) (string, error) {
	return c.ReturnURL, nil
}

func (c *CODClient) ParseWebhook(_ []byte, _ url.Values) (WebhookResult, error) {
	return WebhookResult{}, errors.New("cod has no webhooks")
}
