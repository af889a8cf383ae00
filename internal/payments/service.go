package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/audiotailoc/commerce/internal/orders"
	"github.com/audiotailoc/commerce/internal/redisx"
)

// IntentStore is the persistence side of intents, implemented by Repo.
type IntentStore interface {
	Create(ctx context.Context, in PaymentIntent) error
	ByID(ctx context.Context, id string) (PaymentIntent, error)
	ByIdempotencyKey(ctx context.Context, key string) (PaymentIntent, error)
	LatestByOrder(ctx context.Context, orderID string, provider Provider) (PaymentIntent, error)
	SetRedirect(ctx context.Context, id, redirectURL string) error
	MarkStatus(ctx context.Context, id string, from, to IntentStatus, providerTxn string) (bool, error)
}

// OrderStore is the slice of the orders repo the reconciler needs.
type OrderStore interface {
	Get(ctx context.Context, ref string) (orders.Order, error)
	MarkConfirmed(ctx context.Context, orderID string) (bool, error)
}

type Service struct {
	Intents IntentStore
	Orders  OrderStore
	Clients map[Provider]Client
	Redis   *redis.Client // optional fast-path webhook dedup
}

// CreateIntent is idempotent on the client-supplied key: resubmitting it
// returns the existing intent with no new side effects. A retry after a
// provider failure re-attempts only the redirect call.
func (s *Service) CreateIntent(ctx context.Context, orderRef string, provider Provider, idemKey string) (PaymentIntent, error) {
	client, ok := s.Clients[provider]
	if !ok {
		return PaymentIntent{}, ErrUnsupportedProvider
	}

	existing, err := s.Intents.ByIdempotencyKey(ctx, idemKey)
	if err == nil {
		if existing.RedirectURL != "" || existing.Status != IntentPending {
			return existing, nil
		}
		// previous attempt never got a redirect from the provider; retry
		// that call against the same intent
		return s.attachRedirect(ctx, client, existing)
	}
	if !errors.Is(err, ErrIntentNotFound) {
		return PaymentIntent{}, err
	}

	ord, err := s.Orders.Get(ctx, orderRef)
	if err != nil {
		return PaymentIntent{}, err
	}
	if ord.Status != orders.StatusPending {
		return PaymentIntent{}, ErrOrderAlreadyPaid
	}

	intent := PaymentIntent{
		ID:             uuid.NewString(),
		OrderID:        ord.ID,
		Provider:       provider,
		IdempotencyKey: idemKey,
		AmountCents:    ord.TotalCents,
		Status:         IntentPending,
	}
	if err := s.Intents.Create(ctx, intent); err != nil {
		if errors.Is(err, ErrIntentExists) {
			// lost a race with a concurrent request on the same key; hand
			// back the winner's intent instead of surfacing the conflict
			winner, ferr := s.Intents.ByIdempotencyKey(ctx, idemKey)
			if ferr != nil {
				return PaymentIntent{}, ferr
			}
			if winner.RedirectURL != "" || winner.Status != IntentPending {
				return winner, nil
			}
			return s.attachRedirect(ctx, client, winner)
		}
		return PaymentIntent{}, err
	}
	return s.attachRedirect(ctx, client, intent)
}

func (s *Service) attachRedirect(ctx context.Context, client Client, intent PaymentIntent) (PaymentIntent, error) {
	ord, err := s.Orders.Get(ctx, intent.OrderID)
	if err != nil {
		return PaymentIntent{}, err
	}
	redirect, err := client.CreateRedirect(ctx, intent, ord)
	if err != nil {
		return PaymentIntent{}, err
	}
	if err := s.Intents.SetRedirect(ctx, intent.ID, redirect); err != nil {
		return PaymentIntent{}, err
	}
	intent.RedirectURL = redirect
	return intent, nil
}

// WebhookOutcome reports what a delivery actually did. A replay of an
// already-consumed webhook comes back with Applied=false and no error.
type WebhookOutcome struct {
	Applied   bool
	Succeeded bool
	Intent    PaymentIntent
	Order     orders.Order
}

// HandleWebhook verifies the delivery and applies the PENDING -> terminal
// transition at most once. Only the delivery that flips the intent also
// confirms the order.
func (s *Service) HandleWebhook(ctx context.Context, provider Provider, body []byte, query url.Values) (WebhookOutcome, error) {
	client, ok := s.Clients[provider]
	if !ok {
		return WebhookOutcome{}, ErrUnsupportedProvider
	}

	res, err := client.ParseWebhook(body, query)
	if err != nil {
		return WebhookOutcome{}, err
	}

	intent, err := s.resolveIntent(ctx, provider, res)
	if err != nil {
		return WebhookOutcome{}, err
	}

	// fast-path dedup read; the conditional DB update below stays the truth.
	// The key is only ever written after the delivery is fully applied, so a
	// transient failure never blocks the provider's retry.
	var dedupKey string
	if s.Redis != nil && res.ProviderTxn != "" {
		dedupKey = fmt.Sprintf(redisx.KeyWebhookDedup, provider, res.ProviderTxn)
		n, err := s.Redis.Exists(ctx, dedupKey).Result()
		if err != nil {
			log.Printf("webhook dedup check: %v", err)
		} else if n > 0 {
			return WebhookOutcome{Applied: false, Succeeded: res.Succeeded, Intent: intent}, nil
		}
	}

	to := IntentSucceeded
	if !res.Succeeded {
		to = IntentFailed
	}
	applied, err := s.Intents.MarkStatus(ctx, intent.ID, IntentPending, to, res.ProviderTxn)
	if err != nil {
		return WebhookOutcome{}, err
	}
	out := WebhookOutcome{Applied: applied, Succeeded: res.Succeeded, Intent: intent}
	if applied {
		out.Intent.Status = to
		if res.ProviderTxn != "" {
			out.Intent.ProviderTxn = res.ProviderTxn
		}
	} else if stored, err := s.Intents.ByID(ctx, intent.ID); err == nil {
		// replay: report the status the store actually holds
		out.Intent = stored
	}

	// MarkConfirmed is conditional on PENDING, so re-running it after a
	// half-applied delivery (intent flipped, confirm failed) heals the order.
	if res.Succeeded && out.Intent.Status == IntentSucceeded {
		if _, err := s.Orders.MarkConfirmed(ctx, intent.OrderID); err != nil {
			return WebhookOutcome{}, err
		}
	}

	if dedupKey != "" {
		if err := s.Redis.Set(ctx, dedupKey, "1", redisx.TTLDedup).Err(); err != nil {
			log.Printf("webhook dedup mark: %v", err)
		}
	}
	if ord, err := s.Orders.Get(ctx, intent.OrderID); err == nil {
		out.Order = ord
	}
	return out, nil
}

func (s *Service) resolveIntent(ctx context.Context, provider Provider, res WebhookResult) (PaymentIntent, error) {
	if res.IntentRef != "" {
		return s.Intents.ByID(ctx, res.IntentRef)
	}
	if res.OrderRef == "" {
		return PaymentIntent{}, ErrIntentNotFound
	}
	ord, err := s.Orders.Get(ctx, res.OrderRef)
	if err != nil {
		return PaymentIntent{}, ErrIntentNotFound
	}
	return s.Intents.LatestByOrder(ctx, ord.ID, provider)
}
