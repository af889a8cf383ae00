package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiotailoc/commerce/internal/orders"
	"github.com/audiotailoc/commerce/internal/payments"
)

type mockPaymentService struct {
	m sync.Mutex

	intent    payments.PaymentIntent
	intentErr error
	outcome   payments.WebhookOutcome
	hookErr   error

	createCalls int
	hookCalls   int
}

func (s *mockPaymentService) CreateIntent(_ context.Context, orderRef string, provider payments.Provider, idemKey string) (payments.PaymentIntent, error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.createCalls++
	if s.intentErr != nil {
		return payments.PaymentIntent{}, s.intentErr
	}
	return s.intent, nil
}

func (s *mockPaymentService) HandleWebhook(_ context.Context, provider payments.Provider, body []byte, query url.Values) (payments.WebhookOutcome, error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.hookCalls++
	if s.hookErr != nil {
		return payments.WebhookOutcome{}, s.hookErr
	}
	return s.outcome, nil
}

func newPaymentsRouter(svc *mockPaymentService) (*mockPublisher, *mockPublisher, http.Handler) {
	paid := &mockPublisher{}
	failed := &mockPublisher{}
	router := NewRouter()
	(&PaymentsHandler{
		Payments:       svc,
		ProducerPaid:   paid,
		ProducerFailed: failed,
		Service:        "commerce-api-test",
	}).Register(router)
	return paid, failed, router
}

func TestCreateIntentHandler(t *testing.T) {
	t.Run("creates intent", func(t *testing.T) {
		svc := &mockPaymentService{intent: payments.PaymentIntent{
			ID:          "intent-1",
			OrderID:     "ord-1",
			Provider:    payments.ProviderVNPay,
			Status:      payments.IntentPending,
			RedirectURL: "https://pay.example/x",
		}}
		_, _, router := newPaymentsRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/payments/intents", "u1",
			`{"order_id":"ord-1","provider":"vnpay","idempotency_key":"key-1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var in payments.PaymentIntent
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &in))
		assert.Equal(t, "https://pay.example/x", in.RedirectURL)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, _, router := newPaymentsRouter(&mockPaymentService{})
		rec := doJSON(t, router, http.MethodPost, "/payments/intents", "u1", `{"provider":"vnpay"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, _, router := newPaymentsRouter(&mockPaymentService{})
		rec := doJSON(t, router, http.MethodPost, "/payments/intents", "u1",
			`{"order_id":"ord-1","provider":"momo","idempotency_key":"key-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("already paid maps to 409", func(t *testing.T) {
		svc := &mockPaymentService{intentErr: payments.ErrOrderAlreadyPaid}
		_, _, router := newPaymentsRouter(svc)
		rec := doJSON(t, router, http.MethodPost, "/payments/intents", "u1",
			`{"order_id":"ord-1","provider":"cod","idempotency_key":"key-1"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("provider outage maps to 502", func(t *testing.T) {
		svc := &mockPaymentService{intentErr: &payments.ProviderError{Provider: payments.ProviderPayOS}}
		_, _, router := newPaymentsRouter(svc)
		rec := doJSON(t, router, http.MethodPost, "/payments/intents", "u1",
			`{"order_id":"ord-1","provider":"payos","idempotency_key":"key-1"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestWebhookHandler(t *testing.T) {
	appliedOutcome := func(succeeded bool) payments.WebhookOutcome {
		return payments.WebhookOutcome{
			Applied:   true,
			Succeeded: succeeded,
			Intent: payments.PaymentIntent{
				ID:          "intent-1",
				OrderID:     "ord-1",
				AmountCents: 2_050_000,
				ProviderTxn: "txn-1",
			},
			Order: orders.Order{ID: "ord-1", OrderNo: "ATL-1735689600123-9F3C"},
		}
	}

	t.Run("applied success emits payment event", func(t *testing.T) {
		svc := &mockPaymentService{outcome: appliedOutcome(true)}
		paid, failed, router := newPaymentsRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/payments/payos/webhook", "", `{"code":"00"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["applied"])

		envs := paid.envelopes(t)
		require.Len(t, envs, 1)
		assert.Equal(t, orders.EventPaymentSucceeded, envs[0].EventType)
		assert.Empty(t, failed.envelopes(t))
	})

	t.Run("applied failure emits failed event", func(t *testing.T) {
		svc := &mockPaymentService{outcome: appliedOutcome(false)}
		paid, failed, router := newPaymentsRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/payments/payos/webhook", "", `{"code":"07"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, paid.envelopes(t))
		assert.Len(t, failed.envelopes(t), 1)
	})

	t.Run("replay emits nothing", func(t *testing.T) {
		out := appliedOutcome(true)
		out.Applied = false
		svc := &mockPaymentService{outcome: out}
		paid, failed, router := newPaymentsRouter(svc)

		rec := doJSON(t, router, http.MethodPost, "/payments/payos/webhook", "", `{"code":"00"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["applied"])
		assert.Empty(t, paid.envelopes(t))
		assert.Empty(t, failed.envelopes(t))
	})

	t.Run("invalid signature maps to 400", func(t *testing.T) {
		svc := &mockPaymentService{hookErr: payments.ErrInvalidSignature}
		_, _, router := newPaymentsRouter(svc)
		rec := doJSON(t, router, http.MethodPost, "/payments/vnpay/webhook", "", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("vnpay IPN arrives as GET", func(t *testing.T) {
		svc := &mockPaymentService{outcome: appliedOutcome(true)}
		_, _, router := newPaymentsRouter(svc)
		rec := doJSON(t, router, http.MethodGet, "/payments/vnpay/webhook?vnp_TxnRef=intent-1", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, svc.hookCalls)
	})

	t.Run("unknown provider path", func(t *testing.T) {
		_, _, router := newPaymentsRouter(&mockPaymentService{})
		rec := doJSON(t, router, http.MethodPost, "/payments/stripe/webhook", "", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
