package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/audiotailoc/commerce/internal/identity"
	kafkax "github.com/audiotailoc/commerce/internal/kafka"
	"github.com/audiotailoc/commerce/internal/orders"
)

type OrderStore interface {
	CheckoutTx(ctx context.Context, id identity.Identity, in orders.CheckoutInput) (orders.Order, error)
	Get(ctx context.Context, ref string) (orders.Order, error)
	List(ctx context.Context, p orders.ListParams) ([]orders.Order, int, error)
	CancelTx(ctx context.Context, orderID, reason string) (orders.Order, error)
	UpdateStatusTx(ctx context.Context, orderID string, next orders.Status) (orders.Order, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Producers are topic-bound, one per event type, same as the writers in
// cmd/api.
type OrdersHandler struct {
	Store             OrderStore
	ProducerCreated   Publisher
	ProducerCancelled Publisher
	Service           string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.With(identity.Require).Post("/checkout", h.checkout)
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Put("/orders/{id}/status", h.updateStatus)
}

type checkoutReq struct {
	ShippingAddress string `json:"shipping_address"`
	Note            string `json:"note"`
	Provider        string `json:"provider"`
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	in := orders.CheckoutInput{ShippingAddress: req.ShippingAddress, Note: req.Note}
	if err := in.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id := identity.From(ctx)
	ord, err := h.Store.CheckoutTx(ctx, id, in)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(h.ProducerCreated, orders.EventOrderCreated, ord.ID, r.Header.Get("X-Request-Id"),
		orders.OrderCreatedPayload{
			OrderID:    ord.ID,
			OrderNo:    ord.OrderNo,
			UserID:     ord.UserID,
			Items:      orders.ItemPayloads(ord.Items),
			TotalCents: ord.TotalCents,
			Provider:   req.Provider,
		})

	writeJSON(w, http.StatusCreated, ord)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ord, err := h.Store.Get(ctx, ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := orders.ListParams{}
	if s := q.Get("status"); s != "" {
		st, ok := orders.ParseStatus(s)
		if !ok {
			writeBadRequest(w, "unknown status")
			return
		}
		p.Status = st
	}
	p.Page = atoiDefault(q.Get("page"), 1)
	p.PageSize = atoiDefault(q.Get("page_size"), 20)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, total, err := h.Store.List(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items, "total": total, "page": p.Page, "page_size": p.PageSize,
	})
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ord, err := h.Store.CancelTx(ctx, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(h.ProducerCancelled, orders.EventOrderCancelled, ord.ID, r.Header.Get("X-Request-Id"),
		orders.OrderCancelledPayload{OrderID: ord.ID, OrderNo: ord.OrderNo, Reason: req.Reason})

	writeJSON(w, http.StatusOK, ord)
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	next, ok := orders.ParseStatus(req.Status)
	if !ok {
		writeBadRequest(w, "unknown status")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ord, err := h.Store.UpdateStatusTx(ctx, chi.URLParam(r, "id"), next)
	if err != nil {
		writeError(w, err)
		return
	}

	if next == orders.StatusCancelled {
		h.publish(h.ProducerCancelled, orders.EventOrderCancelled, ord.ID, r.Header.Get("X-Request-Id"),
			orders.OrderCancelledPayload{OrderID: ord.ID, OrderNo: ord.OrderNo})
	}

	writeJSON(w, http.StatusOK, ord)
}

func (h *OrdersHandler) publish(p Publisher, eventType, orderID, trace string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return def
	}
	return n
}
