package redisx

import "time"

const (
	// Rendered cart view: cart:view:{user_id|guest_id} -> JSON
	KeyCartView = "cart:view:%s"

	// Webhook fast-path dedup: dedup:webhook:{provider}:{ref}
	KeyWebhookDedup = "dedup:webhook:%s:%s"

	// Notifier event dedup: dedup:notifier:{event_id}
	KeyNotifierDedup = "dedup:notifier:%s"
)

var (
	TTLCartView = 1 * time.Minute
	TTLDedup    = 48 * time.Hour
)
