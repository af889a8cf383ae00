package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/audiotailoc/commerce/internal/orders"
)

type PayOSConfig struct {
	APIURL      string
	ClientID    string
	APIKey      string
	ChecksumKey string
	ReturnURL   string
}

type PayOSClient struct {
	cfg  PayOSConfig
	http *http.Client
}

func NewPayOSClient(cfg PayOSConfig) *PayOSClient {
	return &PayOSClient{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *PayOSClient) Provider() Provider { return ProviderPayOS }

type payosCheckoutReq struct {
	OrderCode   string      `json:"orderCode"`
	Amount      int64       `json:"amount"`
	Currency    string      `json:"currency"`
	ReturnURL   string      `json:"returnUrl"`
	CancelURL   string      `json:"cancelUrl"`
	Description string      `json:"description"`
	Items       []payosItem `json:"items"`
	Signature   string      `json:"signature,omitempty"`
}

type payosItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type payosCheckoutResp struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		CheckoutURL string `json:"checkoutUrl"`
	} `json:"data"`
}

// CreateRedirect asks PayOS for a hosted checkout URL. The request body is
// signed with the checksum key; network or upstream failures surface as a
// retryable *ProviderError and the intent stays PENDING.
func (c *PayOSClient) CreateRedirect(ctx context.Context, intent PaymentIntent, ord orders.Order) (string, error) {
	req := payosCheckoutReq{
		OrderCode:   ord.OrderNo,
		Amount:      intent.AmountCents,
		Currency:    "VND",
		ReturnURL:   c.cfg.ReturnURL,
		CancelURL:   c.cfg.ReturnURL,
		Description: "Thanh toan don hang " + ord.OrderNo,
		Items:       itemize(ord.Items),
	}
	unsigned, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	req.Signature = hmacSHA256Hex(c.cfg.ChecksumKey, string(unsigned))
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/v2/checkout/create", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", c.cfg.ClientID)
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Provider: ProviderPayOS, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", &ProviderError{Provider: ProviderPayOS, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var out payosCheckoutResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: ProviderPayOS, Err: err}
	}
	if out.Data.CheckoutURL == "" {
		return "", &ProviderError{Provider: ProviderPayOS, Err: fmt.Errorf("no checkout url: %s %s", out.Code, out.Desc)}
	}
	return out.Data.CheckoutURL, nil
}

func itemize(items []orders.Item) []payosItem {
	out := make([]payosItem, 0, len(items))
	for _, it := range items {
		out = append(out, payosItem{Name: it.Name, Quantity: it.Quantity, Price: it.UnitPriceCents})
	}
	return out
}

type payosWebhook struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// ParseWebhook verifies the checksum over the data object: sorted k=v pairs
// joined with &, HMAC-SHA256 with the checksum key.
func (c *PayOSClient) ParseWebhook(body []byte, _ url.Values) (WebhookResult, error) {
	var wh payosWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return WebhookResult{}, ErrInvalidSignature
	}
	if wh.Signature == "" || len(wh.Data) == 0 {
		return WebhookResult{}, ErrInvalidSignature
	}

	fields, err := flattenJSON(wh.Data)
	if err != nil {
		return WebhookResult{}, ErrInvalidSignature
	}
	want := hmacSHA256Hex(c.cfg.ChecksumKey, signParams(fields))
	if !equalHex(wh.Signature, want) {
		return WebhookResult{}, ErrInvalidSignature
	}

	return WebhookResult{
		OrderRef:    fields["orderCode"],
		ProviderTxn: fields["reference"],
		Succeeded:   fields["code"] == "00",
	}, nil
}

// flattenJSON renders every top-level field of a JSON object as a string,
// keeping numbers verbatim so the signature input matches the provider's.
func flattenJSON(raw json.RawMessage) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = fmt.Sprintf("%t", t)
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return nil, err
			}
			out[k] = string(b)
		}
	}
	return out, nil
}
