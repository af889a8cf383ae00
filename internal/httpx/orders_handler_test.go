package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiotailoc/commerce/internal/identity"
	"github.com/audiotailoc/commerce/internal/inventory"
	"github.com/audiotailoc/commerce/internal/orders"
)

type mockOrderStore struct {
	m      sync.Mutex
	orders map[string]orders.Order

	checkoutErr error
	cancelErr   error
	statusErr   error
}

func (s *mockOrderStore) CheckoutTx(_ context.Context, id identity.Identity, in orders.CheckoutInput) (orders.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.checkoutErr != nil {
		return orders.Order{}, s.checkoutErr
	}
	ord := orders.Order{
		ID:              "ord-1",
		OrderNo:         "ATL-1735689600123-9F3C",
		UserID:          id.UserID,
		GuestID:         id.GuestID,
		Status:          orders.StatusPending,
		TotalCents:      2_050_000,
		ShippingAddress: in.ShippingAddress,
		Items:           []orders.Item{{ProductID: "p1", Name: "Loa JBL", Quantity: 1, UnitPriceCents: 2_000_000}},
	}
	if s.orders == nil {
		s.orders = map[string]orders.Order{}
	}
	s.orders[ord.ID] = ord
	return ord, nil
}

func (s *mockOrderStore) Get(_ context.Context, ref string) (orders.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	for _, o := range s.orders {
		if o.ID == ref || o.OrderNo == ref {
			return o, nil
		}
	}
	return orders.Order{}, orders.ErrNotFound
}

func (s *mockOrderStore) List(_ context.Context, p orders.ListParams) ([]orders.Order, int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	out := make([]orders.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if p.Status != "" && o.Status != p.Status {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func (s *mockOrderStore) CancelTx(_ context.Context, orderID, reason string) (orders.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.cancelErr != nil {
		return orders.Order{}, s.cancelErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	o.Status = orders.StatusCancelled
	o.CancelReason = reason
	s.orders[orderID] = o
	return o, nil
}

func (s *mockOrderStore) UpdateStatusTx(_ context.Context, orderID string, next orders.Status) (orders.Order, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.statusErr != nil {
		return orders.Order{}, s.statusErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	if !orders.CanTransition(o.Status, next) {
		return orders.Order{}, orders.ErrInvalidTransition
	}
	o.Status = next
	s.orders[orderID] = o
	return o, nil
}

// mockPublisher records what would have gone to kafka.
type mockPublisher struct {
	m    sync.Mutex
	msgs []kafkago.Message
}

func (p *mockPublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.m.Lock()
	defer p.m.Unlock()
	p.msgs = append(p.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func (p *mockPublisher) envelopes(t *testing.T) []orders.Envelope {
	t.Helper()
	p.m.Lock()
	defer p.m.Unlock()
	out := make([]orders.Envelope, 0, len(p.msgs))
	for _, m := range p.msgs {
		var env orders.Envelope
		require.NoError(t, json.Unmarshal(m.Value, &env))
		out = append(out, env)
	}
	return out
}

func newOrdersRouter(store *mockOrderStore) (*mockPublisher, *mockPublisher, http.Handler) {
	created := &mockPublisher{}
	cancelled := &mockPublisher{}
	router := NewRouter()
	(&OrdersHandler{
		Store:             store,
		ProducerCreated:   created,
		ProducerCancelled: cancelled,
		Service:           "commerce-api-test",
	}).Register(router)
	return created, cancelled, router
}

func doJSON(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doGuest(t *testing.T, h http.Handler, method, path, guestID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guest-Id", guestID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutHandler(t *testing.T) {
	t.Run("creates order and emits event", func(t *testing.T) {
		store := &mockOrderStore{}
		created, _, router := newOrdersRouter(store)

		rec := doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"shipping_address":"12 Nguyen Hue, Q1","provider":"VNPAY"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var ord orders.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ord))
		assert.Equal(t, orders.StatusPending, ord.Status)
		assert.Equal(t, "u1", ord.UserID)

		envs := created.envelopes(t)
		require.Len(t, envs, 1)
		assert.Equal(t, orders.EventOrderCreated, envs[0].EventType)
		assert.Equal(t, ord.ID, envs[0].CorrelationID)
		assert.Equal(t, []byte(ord.ID), created.msgs[0].Key)
	})

	t.Run("requires identity", func(t *testing.T) {
		store := &mockOrderStore{}
		_, _, router := newOrdersRouter(store)
		rec := doJSON(t, router, http.MethodPost, "/checkout", "", `{"shipping_address":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("requires shipping address", func(t *testing.T) {
		store := &mockOrderStore{}
		_, _, router := newOrdersRouter(store)
		rec := doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"note":"fast please"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("shortage maps to 409 with details", func(t *testing.T) {
		store := &mockOrderStore{checkoutErr: &inventory.ShortageError{Shortages: []inventory.Shortage{
			{ProductID: "p1", Requested: 3, Available: 1},
		}}}
		created, _, router := newOrdersRouter(store)

		rec := doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"shipping_address":"x"}`)
		require.Equal(t, http.StatusConflict, rec.Code)

		var body errBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "INSUFFICIENT_STOCK", body.Code)
		require.Len(t, body.Details, 1)
		assert.Equal(t, "p1", body.Details[0].ProductID)
		assert.Empty(t, created.envelopes(t))
	})

	t.Run("empty cart maps to 400", func(t *testing.T) {
		store := &mockOrderStore{checkoutErr: orders.ErrEmptyCart}
		_, _, router := newOrdersRouter(store)
		rec := doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"shipping_address":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCancelHandler(t *testing.T) {
	store := &mockOrderStore{}
	_, cancelled, router := newOrdersRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"shipping_address":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/orders/ord-1/cancel", "u1", `{"reason":"changed my mind"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var ord orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ord))
	assert.Equal(t, orders.StatusCancelled, ord.Status)
	assert.Equal(t, "changed my mind", ord.CancelReason)

	envs := cancelled.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, orders.EventOrderCancelled, envs[0].EventType)
}

func TestUpdateStatusHandler(t *testing.T) {
	t.Run("valid transition", func(t *testing.T) {
		store := &mockOrderStore{}
		_, _, router := newOrdersRouter(store)
		doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"shipping_address":"x"}`)

		rec := doJSON(t, router, http.MethodPut, "/orders/ord-1/status", "u1", `{"status":"CONFIRMED"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid transition maps to 409", func(t *testing.T) {
		store := &mockOrderStore{}
		_, _, router := newOrdersRouter(store)
		doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"shipping_address":"x"}`)

		rec := doJSON(t, router, http.MethodPut, "/orders/ord-1/status", "u1", `{"status":"DELIVERED"}`)
		require.Equal(t, http.StatusConflict, rec.Code)

		var body errBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "INVALID_TRANSITION", body.Code)
	})

	t.Run("unknown status maps to 400", func(t *testing.T) {
		store := &mockOrderStore{}
		_, _, router := newOrdersRouter(store)
		rec := doJSON(t, router, http.MethodPut, "/orders/ord-1/status", "u1", `{"status":"LOST"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cancellation via status change emits event", func(t *testing.T) {
		store := &mockOrderStore{}
		_, cancelled, router := newOrdersRouter(store)
		doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"shipping_address":"x"}`)

		rec := doJSON(t, router, http.MethodPut, "/orders/ord-1/status", "u1", `{"status":"CANCELLED"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, cancelled.envelopes(t), 1)
	})
}

func TestGetAndListHandlers(t *testing.T) {
	store := &mockOrderStore{}
	_, _, router := newOrdersRouter(store)
	doJSON(t, router, http.MethodPost, "/checkout", "u1", `{"shipping_address":"x"}`)

	t.Run("get by id", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/orders/ord-1", "u1", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("get by order number", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/orders/ATL-1735689600123-9F3C", "u1", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown order is 404", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/orders/nope", "u1", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list with status filter", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/orders?status=PENDING", "u1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Items []orders.Order `json:"items"`
			Total int            `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Total)
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/orders?status=nope", "u1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
