package orders

const (
	TopicOrderCreated     = "commerce.order.created"
	TopicOrderCancelled   = "commerce.order.cancelled"
	TopicPaymentSucceeded = "commerce.payment.succeeded"
	TopicPaymentFailed    = "commerce.payment.failed"
)

// Topics lists everything the notifier subscribes to.
var Topics = []string{TopicOrderCreated, TopicOrderCancelled, TopicPaymentSucceeded, TopicPaymentFailed}

// Partition key = order id, so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
