package payments

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/audiotailoc/commerce/internal/orders"
)

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

// VNPayClient builds signed redirect URLs and verifies return/IPN deliveries.
// No outbound call is needed: the redirect itself carries the signed params.
type VNPayClient struct {
	cfg VNPayConfig
}

func NewVNPayClient(cfg VNPayConfig) *VNPayClient { return &VNPayClient{cfg: cfg} }

func (c *VNPayClient) Provider() Provider { return ProviderVNPay }

func (c *VNPayClient) CreateRedirect(_ context.Context, intent PaymentIntent, ord orders.Order) (string, error) {
	params := map[string]string{
		"vnp_Amount":    strconv.FormatInt(intent.AmountCents, 10),
		"vnp_TmnCode":   c.cfg.TmnCode,
		"vnp_TxnRef":    intent.ID,
		"vnp_OrderInfo": "Thanh toan don hang " + ord.OrderNo,
		"vnp_ReturnUrl": c.cfg.ReturnURL,
	}
	signData := signParams(params)
	secureHash := hmacSHA256Hex(c.cfg.HashSecret, signData)
	return c.cfg.PayURL + "?" + signData + "&vnp_SecureHash=" + secureHash, nil
}

// ParseWebhook recomputes the HMAC over every vnp_ parameter except the hash
// itself and compares in constant time. vnp_ResponseCode "00" means paid.
func (c *VNPayClient) ParseWebhook(_ []byte, query url.Values) (WebhookResult, error) {
	got := query.Get("vnp_SecureHash")
	if got == "" {
		return WebhookResult{}, ErrInvalidSignature
	}
	params := map[string]string{}
	for k := range query {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		params[k] = query.Get(k)
	}
	want := hmacSHA256Hex(c.cfg.HashSecret, signParams(params))
	if !equalHex(got, want) {
		return WebhookResult{}, ErrInvalidSignature
	}
	return WebhookResult{
		IntentRef:   query.Get("vnp_TxnRef"),
		ProviderTxn: query.Get("vnp_TransactionNo"),
		Succeeded:   query.Get("vnp_ResponseCode") == "00",
	}, nil
}
