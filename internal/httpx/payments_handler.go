package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/audiotailoc/commerce/internal/kafka"
	"github.com/audiotailoc/commerce/internal/orders"
	"github.com/audiotailoc/commerce/internal/payments"
)

type PaymentService interface {
	CreateIntent(ctx context.Context, orderRef string, provider payments.Provider, idemKey string) (payments.PaymentIntent, error)
	HandleWebhook(ctx context.Context, provider payments.Provider, body []byte, query url.Values) (payments.WebhookOutcome, error)
}

type PaymentsHandler struct {
	Payments       PaymentService
	ProducerPaid   Publisher
	ProducerFailed Publisher
	Service        string
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments/intents", h.createIntent)
	r.Post("/payments/{provider}/webhook", h.webhook)
	// VNPAY delivers its IPN as a GET with query parameters
	r.Get("/payments/{provider}/webhook", h.webhook)
}

type createIntentReq struct {
	OrderID        string `json:"order_id"`
	Provider       string `json:"provider"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *PaymentsHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.OrderID == "" || req.IdempotencyKey == "" {
		writeBadRequest(w, "missing order_id or idempotency_key")
		return
	}
	provider, ok := payments.ParseProvider(req.Provider)
	if !ok {
		writeError(w, payments.ErrUnsupportedProvider)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	intent, err := h.Payments.CreateIntent(ctx, req.OrderID, provider, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	provider, ok := payments.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		writeError(w, payments.ErrUnsupportedProvider)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeBadRequest(w, "unreadable body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out, err := h.Payments.HandleWebhook(ctx, provider, body, r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	// only the delivery that actually flipped the intent emits an event;
	// a replay stays side-effect free
	if out.Applied {
		payload := orders.PaymentResultPayload{
			OrderID:     out.Intent.OrderID,
			OrderNo:     out.Order.OrderNo,
			Provider:    string(provider),
			AmountCents: out.Intent.AmountCents,
			ProviderTxn: out.Intent.ProviderTxn,
		}
		if out.Succeeded {
			h.publish(h.ProducerPaid, orders.EventPaymentSucceeded, out.Intent.OrderID, payload)
		} else {
			h.publish(h.ProducerFailed, orders.EventPaymentFailed, out.Intent.OrderID, payload)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "applied": out.Applied})
}

func (h *PaymentsHandler) publish(p Publisher, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
