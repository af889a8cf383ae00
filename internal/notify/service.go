package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/audiotailoc/commerce/internal/kafka"
	"github.com/audiotailoc/commerce/internal/orders"
	"github.com/audiotailoc/commerce/internal/redisx"
)

type Sender interface {
	Send(ctx context.Context, text string) error
}

// Service consumes order and payment events and relays each one to the
// staff chat exactly once per event id.
type Service struct {
	Sender Sender
	Redis  *redis.Client
}

// HandleEvent is the consumer handler. Unknown event types commit silently.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// The dedup key is written only after a successful send: a transient
	// sender failure leaves the key unset, so the kafka redelivery goes
	// through instead of being swallowed.
	var key string
	if s.Redis != nil && env.EventID != "" {
		key = fmt.Sprintf(redisx.KeyNotifierDedup, env.EventID)
		n, err := s.Redis.Exists(ctx, key).Result()
		if err != nil {
			log.Printf("notifier dedup: %v", err)
		} else if n > 0 {
			return nil
		}
	}

	text, err := FormatEvent(env)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	if err := s.Sender.Send(ctx, text); err != nil {
		return err
	}
	if key != "" {
		if err := s.Redis.Set(ctx, key, "1", redisx.TTLDedup).Err(); err != nil {
			log.Printf("notifier dedup mark: %v", err)
		}
	}
	return nil
}

// FormatEvent renders the staff-facing message for one event envelope.
func FormatEvent(env orders.Envelope) (string, error) {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🔔 *Đơn hàng mới* #%s — %d₫ (%d sản phẩm)", p.OrderNo, p.TotalCents, len(p.Items)), nil
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return "", err
		}
		msg := fmt.Sprintf("❌ *Đơn hàng huỷ* #%s", p.OrderNo)
		if p.Reason != "" {
			msg += " — " + p.Reason
		}
		return msg, nil
	case orders.EventPaymentSucceeded:
		p, err := kafkax.UnwrapPayload[orders.PaymentResultPayload](env.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("💰 *Thanh toán thành công* #%s — %d₫ qua %s", p.OrderNo, p.AmountCents, p.Provider), nil
	case orders.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[orders.PaymentResultPayload](env.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("⚠️ *Thanh toán thất bại* #%s qua %s", p.OrderNo, p.Provider), nil
	}
	return "", nil
}
