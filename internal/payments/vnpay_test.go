package payments

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiotailoc/commerce/internal/orders"
)

func testVNPay() *VNPayClient {
	return NewVNPayClient(VNPayConfig{
		TmnCode:    "ATLTEST",
		HashSecret: "topsecret",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://shop.example/payment/return",
	})
}

func TestVNPayCreateRedirect(t *testing.T) {
	c := testVNPay()
	intent := PaymentIntent{ID: "intent-1", AmountCents: 2_050_000}
	ord := orders.Order{OrderNo: "ATL-1735689600123-9F3C"}

	redirect, err := c.CreateRedirect(context.Background(), intent, ord)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(redirect, c.cfg.PayURL+"?"))

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "2050000", q.Get("vnp_Amount"))
	assert.Equal(t, "ATLTEST", q.Get("vnp_TmnCode"))
	assert.Equal(t, "intent-1", q.Get("vnp_TxnRef"))
	assert.NotEmpty(t, q.Get("vnp_SecureHash"))

	// the redirect must verify against our own webhook parser
	res, err := c.ParseWebhook(nil, q)
	require.NoError(t, err)
	assert.Equal(t, "intent-1", res.IntentRef)
}

func TestVNPayParseWebhook(t *testing.T) {
	c := testVNPay()

	signed := func(params map[string]string) url.Values {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		q.Set("vnp_SecureHash", hmacSHA256Hex(c.cfg.HashSecret, signParams(params)))
		return q
	}

	t.Run("valid success", func(t *testing.T) {
		q := signed(map[string]string{
			"vnp_TxnRef":        "intent-1",
			"vnp_ResponseCode":  "00",
			"vnp_TransactionNo": "14422574",
			"vnp_Amount":        "2050000",
		})
		res, err := c.ParseWebhook(nil, q)
		require.NoError(t, err)
		assert.True(t, res.Succeeded)
		assert.Equal(t, "intent-1", res.IntentRef)
		assert.Equal(t, "14422574", res.ProviderTxn)
	})

	t.Run("valid failure code", func(t *testing.T) {
		q := signed(map[string]string{
			"vnp_TxnRef":       "intent-1",
			"vnp_ResponseCode": "24",
		})
		res, err := c.ParseWebhook(nil, q)
		require.NoError(t, err)
		assert.False(t, res.Succeeded)
	})

	t.Run("tampered amount", func(t *testing.T) {
		q := signed(map[string]string{
			"vnp_TxnRef":       "intent-1",
			"vnp_ResponseCode": "00",
			"vnp_Amount":       "2050000",
		})
		q.Set("vnp_Amount", "1")
		_, err := c.ParseWebhook(nil, q)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing hash", func(t *testing.T) {
		q := url.Values{}
		q.Set("vnp_TxnRef", "intent-1")
		_, err := c.ParseWebhook(nil, q)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("hash is case-insensitive", func(t *testing.T) {
		params := map[string]string{"vnp_TxnRef": "intent-1", "vnp_ResponseCode": "00"}
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		q.Set("vnp_SecureHash", strings.ToUpper(hmacSHA256Hex(c.cfg.HashSecret, signParams(params))))
		_, err := c.ParseWebhook(nil, q)
		assert.NoError(t, err)
	})
}
