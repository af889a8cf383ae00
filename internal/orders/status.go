package orders

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusConfirmed: true, StatusProcessing: true, StatusCancelled: true},
	StatusConfirmed:  {StatusProcessing: true, StatusShipped: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:  {StatusRefunded: true},
	StatusCancelled:  {StatusRefunded: true},
	StatusRefunded:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0 || s == StatusDelivered || s == StatusCancelled
}

// cancellable by the order's owner; later states need an admin transition.
var cancellable = map[Status]bool{
	StatusPending:    true,
	StatusConfirmed:  true,
	StatusProcessing: true,
}

func Cancellable(s Status) bool { return cancellable[s] }

// holdsStock reports whether an order in this state still owns decremented
// stock, i.e. whether moving it to CANCELLED must restore quantities.
func holdsStock(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validNext[st]
	return st, ok
}
