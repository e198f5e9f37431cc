package domain

type PaymentEventKind int

const (
	PaymentEventOther PaymentEventKind = iota
	PaymentEventCompleted
	PaymentEventExpired
)

func (k PaymentEventKind) String() string {
	switch k {
	case PaymentEventCompleted:
		return "completed"
	case PaymentEventExpired:
		return "expired"
	default:
		return "other"
	}
}

// PaymentEvent is a verified provider notification decoded into one of the known kinds.
// Reference is the quiz id the checkout was scoped to; it is empty for PaymentEventOther.
type PaymentEvent struct {
	ID        string
	Kind      PaymentEventKind
	Type      string
	Reference string
}
