package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const intentColumns = `id, order_id, provider, idempotency_key, amount_cents, status,
	COALESCE(provider_txn,''), COALESCE(redirect_url,''), created_at, updated_at`

func scanIntent(row pgx.Row) (PaymentIntent, error) {
	var in PaymentIntent
	err := row.Scan(&in.ID, &in.OrderID, &in.Provider, &in.IdempotencyKey, &in.AmountCents,
		&in.Status, &in.ProviderTxn, &in.RedirectURL, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentIntent{}, ErrIntentNotFound
	}
	return in, err
}

// Create inserts the intent. A unique-constraint hit on idempotency_key
// comes back as ErrIntentExists so the caller can return the winner's row.
func (r *Repo) Create(ctx context.Context, in PaymentIntent) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payment_intents(id, order_id, provider, idempotency_key, amount_cents, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		in.ID, in.OrderID, in.Provider, in.IdempotencyKey, in.AmountCents, in.Status)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrIntentExists
	}
	return err
}

func (r *Repo) ByID(ctx context.Context, id string) (PaymentIntent, error) {
	return scanIntent(r.DB.QueryRow(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id=$1`, id))
}

func (r *Repo) ByIdempotencyKey(ctx context.Context, key string) (PaymentIntent, error) {
	return scanIntent(r.DB.QueryRow(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE idempotency_key=$1`, key))
}

func (r *Repo) LatestByOrder(ctx context.Context, orderID string, provider Provider) (PaymentIntent, error) {
	return scanIntent(r.DB.QueryRow(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE order_id=$1 AND provider=$2
		ORDER BY created_at DESC LIMIT 1`, orderID, provider))
}

func (r *Repo) SetRedirect(ctx context.Context, id, redirectURL string) error {
	_, err := r.DB.Exec(ctx,
		`UPDATE payment_intents SET redirect_url=$2, updated_at=now() WHERE id=$1`, id, redirectURL)
	return err
}

// MarkStatus flips the intent from one status to another. The WHERE clause
// on the current status is what makes webhook consumption exactly-once:
// a replay finds no PENDING row and applies nothing.
func (r *Repo) MarkStatus(ctx context.Context, id string, from, to IntentStatus, providerTxn string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payment_intents
		SET status=$3, provider_txn=COALESCE(NULLIF($4,''), provider_txn), updated_at=now()
		WHERE id=$1 AND status=$2`, id, from, to, providerTxn)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
