package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/audiotailoc/commerce/internal/orders"
)

// WebhookResult is the provider-independent view of a verified webhook.
// Either IntentRef (the provider echoes our intent id) or OrderRef (the
// provider echoes our order number) identifies the intent.
type WebhookResult struct {
	IntentRef   string
	OrderRef    string
	ProviderTxn string
	Succeeded   bool
}

// Client is one payment provider integration.
type Client interface {
	Provider() Provider
	// CreateRedirect obtains the provider's checkout reference for a pending
	// intent. Transient upstream failures come back as *ProviderError.
	CreateRedirect(ctx context.Context, intent PaymentIntent, ord orders.Order) (string, error)
	// ParseWebhook verifies the signature over the raw delivery and extracts
	// the outcome. Mismatches fail closed with ErrInvalidSignature.
	ParseWebhook(body []byte, query url.Values) (WebhookResult, error)
}

func hmacSHA256Hex(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(a, b string) bool {
	return hmac.Equal([]byte(strings.ToLower(a)), []byte(strings.ToLower(b)))
}

// signParams joins sorted k=v pairs with &, the sign-data convention both
// VNPAY and PayOS use.
func signParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}
