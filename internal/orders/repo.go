package orders

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audiotailoc/commerce/internal/identity"
)

type Repo struct{ DB *pgxpool.Pool }

// CheckoutTx turns the owner's cart into an order in one transaction:
// product rows are locked, stock re-checked and decremented, the order and
// its item snapshots inserted and the cart cleared. Any shortage rolls the
// whole thing back and the cart stays untouched.
func (r *Repo) CheckoutTx(ctx context.Context, id identity.Identity, in CheckoutInput) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback(ctx)

	cartID, lines, err := loadCartLines(ctx, tx, id)
	if err != nil {
		return Order{}, err
	}
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}

	// Lock product rows in a stable order so concurrent checkouts sharing
	// products cannot deadlock.
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	for i := range lines {
		l := &lines[i]
		err := tx.QueryRow(ctx,
			`SELECT name, price_cents, stock, active FROM products WHERE id=$1 FOR UPDATE`, l.ProductID).
			Scan(&l.Name, &l.PriceCents, &l.Stock, &l.Active)
		if errors.Is(err, pgx.ErrNoRows) {
			l.Active = false
			continue
		}
		if err != nil {
			return Order{}, err
		}
	}

	items, shortErr := planItems(lines)
	if shortErr != nil {
		return Order{}, shortErr
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`, it.ProductID, it.Quantity); err != nil {
			return Order{}, err
		}
	}

	subtotal, shipping, total := computeAmounts(items)
	ord := Order{
		ID:              uuid.NewString(),
		OrderNo:         NewOrderNo(),
		UserID:          id.UserID,
		GuestID:         id.GuestID,
		Status:          StatusPending,
		SubtotalCents:   subtotal,
		ShippingCents:   shipping,
		TotalCents:      total,
		ShippingAddress: in.ShippingAddress,
		Note:            in.Note,
		Items:           items,
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, order_no, user_id, guest_id, status, subtotal_cents, shipping_cents, total_cents, shipping_address, note)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$6,$7,$8,$9,$10)`,
		ord.ID, ord.OrderNo, ord.UserID, ord.GuestID, ord.Status, subtotal, shipping, total, ord.ShippingAddress, ord.Note); err != nil {
		return Order{}, err
	}
	for i := range ord.Items {
		ord.Items[i].OrderID = ord.ID
		it := ord.Items[i]
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, name, quantity, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.OrderID, it.ProductID, it.Name, it.Quantity, it.UnitPriceCents); err != nil {
			return Order{}, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return ord, nil
}

func loadCartLines(ctx context.Context, tx pgx.Tx, id identity.Identity) (string, []checkoutLine, error) {
	var cartID string
	var err error
	if id.UserID != "" {
		err = tx.QueryRow(ctx,
			`SELECT id FROM carts WHERE user_id=$1 AND status='ACTIVE'`, id.UserID).Scan(&cartID)
	} else {
		err = tx.QueryRow(ctx,
			`SELECT id FROM carts WHERE guest_id=$1 AND status='ACTIVE' AND expires_at > now()`, id.GuestID).Scan(&cartID)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE cart_id=$1`, cartID)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	var lines []checkoutLine
	for rows.Next() {
		var l checkoutLine
		if err := rows.Scan(&l.ProductID, &l.Qty); err != nil {
			return "", nil, err
		}
		lines = append(lines, l)
	}
	return cartID, lines, rows.Err()
}

// Get looks an order up by id or order number, items included.
func (r *Repo) Get(ctx context.Context, ref string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_no, COALESCE(user_id,''), COALESCE(guest_id,''), status,
		       subtotal_cents, shipping_cents, total_cents, shipping_address,
		       COALESCE(note,''), COALESCE(cancel_reason,''), created_at, updated_at
		FROM orders WHERE id=$1 OR order_no=$1`, ref).
		Scan(&o.ID, &o.OrderNo, &o.UserID, &o.GuestID, &o.Status,
			&o.SubtotalCents, &o.ShippingCents, &o.TotalCents, &o.ShippingAddress,
			&o.Note, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, name, quantity, unit_price_cents
		FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Quantity, &it.UnitPriceCents); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

type ListParams struct {
	Status   Status
	Page     int
	PageSize int
}

func (r *Repo) List(ctx context.Context, p ListParams) ([]Order, int, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}

	where := ``
	args := []any{p.PageSize, (p.Page - 1) * p.PageSize}
	countArgs := []any{}
	if p.Status != "" {
		where = `WHERE status=$3`
		args = append(args, p.Status)
		countArgs = append(countArgs, p.Status)
	}

	var total int
	countQ := `SELECT COUNT(*) FROM orders`
	if p.Status != "" {
		countQ += ` WHERE status=$1`
	}
	if err := r.DB.QueryRow(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_no, COALESCE(user_id,''), COALESCE(guest_id,''), status,
		       subtotal_cents, shipping_cents, total_cents, shipping_address,
		       COALESCE(note,''), COALESCE(cancel_reason,''), created_at, updated_at
		FROM orders `+where+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNo, &o.UserID, &o.GuestID, &o.Status,
			&o.SubtotalCents, &o.ShippingCents, &o.TotalCents, &o.ShippingAddress,
			&o.Note, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// CancelTx cancels an order on the owner's behalf, restoring stock for every
// item in the same transaction. Only PENDING, CONFIRMED and PROCESSING
// orders can be cancelled this way.
func (r *Repo) CancelTx(ctx context.Context, orderID, reason string) (Order, error) {
	return r.transition(ctx, orderID, StatusCancelled, reason, Cancellable)
}

// UpdateStatusTx applies an admin status change, rejecting edges outside the
// state machine. Moving into CANCELLED from a stock-holding state restores
// quantities.
func (r *Repo) UpdateStatusTx(ctx context.Context, orderID string, next Status) (Order, error) {
	return r.transition(ctx, orderID, next, "", func(from Status) bool {
		return CanTransition(from, next)
	})
}

func (r *Repo) transition(ctx context.Context, orderID string, next Status, reason string, allowed func(Status) bool) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback(ctx)

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 OR order_no=$1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if !allowed(current) {
		return Order{}, ErrInvalidTransition
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, cancel_reason=NULLIF($3,''), updated_at=now()
		WHERE id=$1 OR order_no=$1`, orderID, next, reason); err != nil {
		return Order{}, err
	}

	if next == StatusCancelled && holdsStock(current) {
		if err := restoreStock(ctx, tx, orderID); err != nil {
			return Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return r.Get(ctx, orderID)
}

func restoreStock(ctx context.Context, tx pgx.Tx, orderID string) error {
	rows, err := tx.Query(ctx, `
		SELECT oi.product_id, oi.quantity
		FROM order_items oi JOIN orders o ON o.id = oi.order_id
		WHERE o.id=$1 OR o.order_no=$1`, orderID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			return err
		}
		recs = append(recs, x)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, x.pid, x.qty); err != nil {
			return err
		}
	}
	return nil
}

// MarkConfirmed flips a PENDING order to CONFIRMED. The condition on the
// current status makes a replayed payment webhook a no-op: only the delivery
// that actually flips the row reports applied=true.
func (r *Repo) MarkConfirmed(ctx context.Context, orderID string) (bool, error) {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET status='CONFIRMED', updated_at=now() WHERE id=$1 AND status='PENDING'`, orderID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
