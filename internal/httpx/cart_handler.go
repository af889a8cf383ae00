package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/audiotailoc/commerce/internal/cart"
	"github.com/audiotailoc/commerce/internal/identity"
)

type CartService interface {
	AddItem(ctx context.Context, id identity.Identity, productID string, qty int) error
	UpdateQuantity(ctx context.Context, id identity.Identity, productID string, qty int) error
	RemoveItem(ctx context.Context, id identity.Identity, productID string) error
	Get(ctx context.Context, id identity.Identity) (cart.View, error)
	Clear(ctx context.Context, id identity.Identity) error
	Merge(ctx context.Context, guestID, userID string) error
}

type CartHandler struct {
	Cart CartService
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(identity.Require)
		r.Get("/", h.get)
		r.Delete("/", h.clear)
		r.Post("/items", h.addItem)
		r.Put("/items/{productID}", h.updateItem)
		r.Delete("/items/{productID}", h.removeItem)
		r.Post("/merge", h.merge)
	})
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.ProductID == "" {
		writeBadRequest(w, "missing product_id")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := identity.From(ctx)
	if err := h.Cart.AddItem(ctx, id, req.ProductID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	h.respondView(ctx, w, id)
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := identity.From(ctx)
	if err := h.Cart.UpdateQuantity(ctx, id, chi.URLParam(r, "productID"), req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	h.respondView(ctx, w, id)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := identity.From(ctx)
	if err := h.Cart.RemoveItem(ctx, id, chi.URLParam(r, "productID")); err != nil {
		writeError(w, err)
		return
	}
	h.respondView(ctx, w, id)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	h.respondView(ctx, w, identity.From(ctx))
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := identity.From(ctx)
	if err := h.Cart.Clear(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	h.respondView(ctx, w, id)
}

type mergeReq struct {
	GuestID string `json:"guest_id"`
}

// merge folds the given guest cart into the calling user's cart on login.
func (h *CartHandler) merge(w http.ResponseWriter, r *http.Request) {
	var req mergeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := identity.From(ctx)
	if id.UserID == "" || req.GuestID == "" {
		writeBadRequest(w, "merge needs a user identity and a guest_id")
		return
	}
	if err := h.Cart.Merge(ctx, req.GuestID, id.UserID); err != nil {
		writeError(w, err)
		return
	}
	h.respondView(ctx, w, id)
}

func (h *CartHandler) respondView(ctx context.Context, w http.ResponseWriter, id identity.Identity) {
	view, err := h.Cart.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
