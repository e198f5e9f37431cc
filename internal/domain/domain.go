package domain

import (
	stderrors "errors"
	"time"

	"github.com/victornm/quizinho/internal/errors"
)

const (
	MinQuestions    = 2
	MinAlternatives = 2
	MaxAlternatives = 4
)

// Retention windows, counted from the quiz creation time.
const (
	FreeRetention          = 7 * 24 * time.Hour
	PremiumRetention       = 30 * 24 * time.Hour
	UnpaidPremiumRetention = 24 * time.Hour
)

// ErrUnchanged is returned by a transition that has nothing to do, so the store can skip the write.
var ErrUnchanged = stderrors.New("quiz unchanged")

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPremium
}

// Retention is how long a paid quiz of this plan is kept, and how long its QR image is hosted.
func (p Plan) Retention() time.Duration {
	if p == PlanPremium {
		return PremiumRetention
	}
	return FreeRetention
}

// Question is one multiple choice item. Insertion order is presentation order.
type Question struct {
	Text               string   `json:"text"`
	Alternatives       []string `json:"alternatives"`
	CorrectAlternative string   `json:"correctAlternative"`
}

// Quiz is the persisted quiz document.
type Quiz struct {
	ID         string     `json:"id"`
	Questions  []Question `json:"questions"`
	QRImageURL string     `json:"qrImageUrl"`
	Plan       Plan       `json:"plan"`
	Paid       bool       `json:"paid"`
	Theme      string     `json:"theme,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewQuiz builds a quiz document in its initial state for the plan.
// Free quizzes never wait for a payment and start as paid; premium ones start unpaid.
func NewQuiz(id string, questions []Question, qrImageURL string, plan Plan, theme string, now time.Time) Quiz {
	q := Quiz{
		ID:         id,
		Questions:  questions,
		QRImageURL: qrImageURL,
		Plan:       plan,
		Paid:       plan == PlanFree,
		CreatedAt:  now.UTC(),
	}
	if plan == PlanPremium {
		q.Theme = theme
	}
	return q
}

// AwaitingPayment reports whether the quiz is a premium quiz whose checkout has not completed.
func (q Quiz) AwaitingPayment() bool {
	return q.Plan == PlanPremium && !q.Paid
}

// Downgrade turns an abandoned premium attempt into a free quiz in place.
func (q *Quiz) Downgrade() error {
	if !q.AwaitingPayment() {
		return errors.InvalidOperation(errors.WithMessagef("quiz %s cannot be downgraded: plan=%s paid=%t", q.ID, q.Plan, q.Paid))
	}

	q.Plan = PlanFree
	q.Paid = true
	q.Theme = ""
	return nil
}

// MarkPaid records a confirmed payment. Applying it twice is a no-op.
func (q *Quiz) MarkPaid() error {
	if !q.AwaitingPayment() {
		return ErrUnchanged
	}

	q.Paid = true
	return nil
}

// Retention returns how long the quiz is kept given its current plan and payment state.
func (q Quiz) Retention() time.Duration {
	if q.AwaitingPayment() {
		return UnpaidPremiumRetention
	}
	return q.Plan.Retention()
}
