package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/audiotailoc/commerce/internal/identity"
)

// Guest carts expire; the expiry is checked on read, cleanup is a cron job.
const guestCartDays = 7

type Repo struct{ DB *pgxpool.Pool }

// findCart returns the owner's ACTIVE cart id, or pgx.ErrNoRows.
// Expired guest carts are treated as absent.
func (r *Repo) findCart(ctx context.Context, id identity.Identity) (string, error) {
	var cartID string
	var err error
	if id.UserID != "" {
		err = r.DB.QueryRow(ctx,
			`SELECT id FROM carts WHERE user_id=$1 AND status='ACTIVE'`, id.UserID).Scan(&cartID)
	} else {
		err = r.DB.QueryRow(ctx,
			`SELECT id FROM carts WHERE guest_id=$1 AND status='ACTIVE' AND expires_at > now()`, id.GuestID).Scan(&cartID)
	}
	return cartID, err
}

func (r *Repo) findOrCreateCart(ctx context.Context, id identity.Identity) (string, error) {
	cartID, err := r.findCart(ctx, id)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	cartID = uuid.NewString()
	if id.UserID != "" {
		_, err = r.DB.Exec(ctx,
			`INSERT INTO carts(id, user_id, status) VALUES ($1, $2, 'ACTIVE')`, cartID, id.UserID)
	} else {
		_, err = r.DB.Exec(ctx,
			`INSERT INTO carts(id, guest_id, status, expires_at) VALUES ($1, $2, 'ACTIVE', now() + make_interval(days => $3))`,
			cartID, id.GuestID, guestCartDays)
	}
	if err != nil {
		return "", err
	}
	return cartID, nil
}

// UpsertItem adds qty to an existing line or inserts a new one.
func (r *Repo) UpsertItem(ctx context.Context, id identity.Identity, productID string, qty int, unitPriceCents int64) error {
	cartID, err := r.findOrCreateCart(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO cart_items(cart_id, product_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, productID, qty, unitPriceCents)
	return err
}

// SetQuantity replaces a line's quantity. ErrItemNotFound when the line does
// not exist.
func (r *Repo) SetQuantity(ctx context.Context, id identity.Identity, productID string, qty int) error {
	cartID, err := r.findCart(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx,
		`UPDATE cart_items SET quantity=$3 WHERE cart_id=$1 AND product_id=$2`, cartID, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// RemoveItem is idempotent: removing an absent line is a no-op.
func (r *Repo) RemoveItem(ctx context.Context, id identity.Identity, productID string) error {
	cartID, err := r.findCart(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2`, cartID, productID)
	return err
}

func (r *Repo) Lines(ctx context.Context, id identity.Identity) ([]Line, error) {
	cartID, err := r.findCart(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT ci.product_id, ci.quantity, p.name, p.price_cents, p.active
		FROM cart_items ci
		LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.added_at`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		var name *string
		var price *int64
		var active *bool
		if err := rows.Scan(&l.ProductID, &l.Quantity, &name, &price, &active); err != nil {
			return nil, err
		}
		if name == nil || active == nil || !*active {
			l.Unavailable = true
			if name != nil {
				l.Name = *name
			}
		} else {
			l.Name = *name
			l.UnitPriceCents = *price
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) Clear(ctx context.Context, id identity.Identity) error {
	cartID, err := r.findCart(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return err
}

// Merge folds an ACTIVE guest cart into the user's cart, summing quantities,
// then marks the guest cart CONVERTED. A missing guest cart is a no-op.
func (r *Repo) Merge(ctx context.Context, guestID, userID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var guestCartID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM carts WHERE guest_id=$1 AND status='ACTIVE' AND expires_at > now()`, guestID).Scan(&guestCartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	var userCartID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM carts WHERE user_id=$1 AND status='ACTIVE'`, userID).Scan(&userCartID)
	if errors.Is(err, pgx.ErrNoRows) {
		userCartID = uuid.NewString()
		if _, err := tx.Exec(ctx,
			`INSERT INTO carts(id, user_id, status) VALUES ($1, $2, 'ACTIVE')`, userCartID, userID); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_items(cart_id, product_id, quantity, unit_price_cents)
		SELECT $2, product_id, quantity, unit_price_cents FROM cart_items WHERE cart_id=$1
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		guestCartID, userCartID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, guestCartID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE carts SET status='CONVERTED' WHERE id=$1`, guestCartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
