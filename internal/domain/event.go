package domain

const (
	EventNameQuizCreated    = "quiz.created"
	EventNameQuizDowngraded = "quiz.downgraded"
	EventNameQuizPaid       = "quiz.paid"
	EventNameQuizExpired    = "quiz.expired"
	EventNameQuizSwept      = "quiz.swept"

	EventNamePaymentReceived = "payment.received"
)

type EventQuizCreated struct {
	Quiz Quiz
}

func (EventQuizCreated) Name() string { return EventNameQuizCreated }

type EventQuizDowngraded struct {
	QuizID string
}

func (EventQuizDowngraded) Name() string { return EventNameQuizDowngraded }

type EventQuizPaid struct {
	QuizID string
}

func (EventQuizPaid) Name() string { return EventNameQuizPaid }

// EventQuizExpired is published when an unpaid premium quiz is removed after its checkout expired.
type EventQuizExpired struct {
	QuizID string
}

func (EventQuizExpired) Name() string { return EventNameQuizExpired }

// EventQuizSwept is published for each quiz deleted by the retention sweep.
type EventQuizSwept struct {
	QuizID  string
	Plan    Plan
	Paid    bool
	AgeDays int
}

func (EventQuizSwept) Name() string { return EventNameQuizSwept }

// EventPaymentReceived is published for every verified provider notification, including ignored ones.
type EventPaymentReceived struct {
	EventID   string
	Kind      PaymentEventKind
	Duplicate bool
}

func (EventPaymentReceived) Name() string { return EventNamePaymentReceived }
