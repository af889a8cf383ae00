package payments

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderCOD   Provider = "COD"
	ProviderVNPay Provider = "VNPAY"
	ProviderPayOS Provider = "PAYOS"
)

func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToUpper(s)) {
	case ProviderCOD:
		return ProviderCOD, true
	case ProviderVNPay:
		return ProviderVNPay, true
	case ProviderPayOS:
		return ProviderPayOS, true
	}
	return "", false
}

type IntentStatus string

const (
	IntentPending   IntentStatus = "PENDING"
	IntentSucceeded IntentStatus = "SUCCEEDED"
	IntentFailed    IntentStatus = "FAILED"
	IntentCancelled IntentStatus = "CANCELLED"
)

// PaymentIntent is one attempt to collect payment for an order. Intents are
// never deleted; terminal ones stay around as the payment audit trail.
type PaymentIntent struct {
	ID             string       `json:"id"`
	OrderID        string       `json:"order_id"`
	Provider       Provider     `json:"provider"`
	IdempotencyKey string       `json:"idempotency_key"`
	AmountCents    int64        `json:"amount_cents"`
	Status         IntentStatus `json:"status"`
	ProviderTxn    string       `json:"provider_txn,omitempty"`
	RedirectURL    string       `json:"redirect_url,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

var (
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrIntentExists        = errors.New("payment intent already exists for this idempotency key")
	ErrOrderAlreadyPaid    = errors.New("order already paid")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
)

// ProviderError wraps a transient upstream failure. The caller may retry
// with the same idempotency key; no duplicate intent will be created.
type ProviderError struct {
	Provider Provider
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
