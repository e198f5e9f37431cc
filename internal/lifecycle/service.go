package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/errors"
	"github.com/victornm/quizinho/internal/event"
	"github.com/victornm/quizinho/internal/ident"
)

const defaultClaimTTL = 24 * time.Hour

type Store interface {
	Get(ctx context.Context, id string) (*domain.Quiz, error)
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, q domain.Quiz) error
	Update(ctx context.Context, id string, fn func(q *domain.Quiz) error) (*domain.Quiz, error)
	DeleteIf(ctx context.Context, id string, pred func(q domain.Quiz) bool) (bool, error)
	ListIDs(ctx context.Context) ([]string, error)
}

type IDAllocator interface {
	Resolve(ctx context.Context, custom string, exists ident.ExistsFunc) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, id, target string, expiration time.Duration) (string, error)
}

type Gateway interface {
	CreateCheckout(ctx context.Context, quizID string) (string, error)
	ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error)
}

// EventClaimer remembers provider event ids so redeliveries are acknowledged without reprocessing.
type EventClaimer interface {
	ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

type Config struct {
	EventBus  *event.Bus
	Store     Store
	IDs       IDAllocator
	Publisher Publisher
	Gateway   Gateway

	// Claimer is optional. Without it every delivery is processed; the transitions are idempotent.
	Claimer  EventClaimer
	ClaimTTL time.Duration

	PublicBaseURL string
	Now           func() time.Time
}

type Service struct {
	eb        *event.Bus
	store     Store
	ids       IDAllocator
	publisher Publisher
	gateway   Gateway
	claimer   EventClaimer
	claimTTL  time.Duration
	baseURL   string
	now       func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:        c.EventBus,
		store:     c.Store,
		ids:       c.IDs,
		publisher: c.Publisher,
		gateway:   c.Gateway,
		claimer:   c.Claimer,
		claimTTL:  c.ClaimTTL,
		baseURL:   strings.TrimSuffix(c.PublicBaseURL, "/"),
		now:       c.Now,
	}

	if s.claimTTL <= 0 {
		s.claimTTL = defaultClaimTTL
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type CreateQuizRequest struct {
	Questions  []domain.Question
	Plan       domain.Plan
	CustomID   string
	PreviousID string
	Theme      string
}

// CreateQuizResponse carries exactly one of the two URLs.
type CreateQuizResponse struct {
	QuizURL    string
	PaymentURL string
}

// CreateOrUpdateQuiz validates the request, publishes the QR image and either stores a free quiz,
// downgrades the caller's abandoned premium attempt, or stores an unpaid premium quiz behind a checkout.
func (s *Service) CreateOrUpdateQuiz(ctx context.Context, req CreateQuizRequest) (*CreateQuizResponse, error) {
	if !req.Plan.Valid() {
		return nil, errors.Validation(errors.WithMessagef("invalid plan %q", req.Plan))
	}
	if err := domain.ValidateQuestions(req.Questions); err != nil {
		return nil, err
	}

	var custom string
	if req.Plan == domain.PlanPremium {
		var err error
		if custom, err = ident.ValidateCustom(req.CustomID); err != nil {
			return nil, err
		}
	}

	id, err := s.ids.Resolve(ctx, custom, s.store.Exists)
	if err != nil {
		return nil, errors.Internal(err)
	}

	qrURL, err := s.publisher.Publish(ctx, id, s.quizURL(id), req.Plan.Retention())
	if err != nil {
		slog.ErrorContext(ctx, "lifecycle: publish qr code failed", "id", id, "error", err)
		return nil, errors.Artifact(errors.WithMessagef("failed to generate qr code"), errors.WithCause(err))
	}

	// A downgraded quiz keeps the QR image it was created with.
	if req.Plan == domain.PlanFree && req.PreviousID != "" {
		resp, err := s.downgrade(ctx, req.PreviousID)
		if !stderrors.Is(err, errors.NotFound()) {
			return resp, err
		}
	}

	resp := &CreateQuizResponse{}
	if req.Plan == domain.PlanPremium {
		resp.PaymentURL, err = s.gateway.CreateCheckout(ctx, id)
		if err != nil {
			slog.ErrorContext(ctx, "lifecycle: create checkout failed", "id", id, "error", err)
			return nil, errors.Payment(errors.WithMessagef("failed to create payment session"), errors.WithCause(err))
		}
	} else {
		resp.QuizURL = s.quizURL(id)
	}

	q := domain.NewQuiz(id, cloneQuestions(req.Questions), qrURL, req.Plan, req.Theme, s.now())
	if err := s.store.Insert(ctx, q); err != nil {
		return nil, internal(err)
	}

	slog.InfoContext(ctx, "lifecycle: quiz created", "id", id, "plan", q.Plan, "custom", custom != "")
	s.eb.Publish(ctx, domain.EventQuizCreated{Quiz: q})

	return resp, nil
}

// downgrade applies Downgrade to an existing quiz. It reports NotFound when prevID
// refers to nothing, so the caller falls back to creating a new free quiz.
func (s *Service) downgrade(ctx context.Context, prevID string) (*CreateQuizResponse, error) {
	_, err := s.store.Update(ctx, prevID, (*domain.Quiz).Downgrade)
	if stderrors.Is(err, errors.NotFound()) {
		return nil, err
	}
	if err != nil {
		return nil, internal(err)
	}

	slog.InfoContext(ctx, "lifecycle: quiz downgraded to free", "id", prevID)
	s.eb.Publish(ctx, domain.EventQuizDowngraded{QuizID: prevID})

	return &CreateQuizResponse{QuizURL: s.quizURL(prevID)}, nil
}

// HandlePaymentNotification verifies a provider delivery and reconciles the referenced quiz.
// Unknown references and repeated deliveries are acknowledged without changes.
func (s *Service) HandlePaymentNotification(ctx context.Context, payload []byte, signature string) (err error) {
	evt, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		slog.WarnContext(ctx, "lifecycle: rejected payment notification", "error", err)
		return err
	}

	if s.claimer != nil && evt.ID != "" {
		first, cerr := s.claimer.ClaimEvent(ctx, evt.ID, s.claimTTL)
		switch {
		case cerr != nil:
			slog.WarnContext(ctx, "lifecycle: claim payment event failed, processing anyway", "event_id", evt.ID, "error", cerr)
		case !first:
			slog.InfoContext(ctx, "lifecycle: duplicate payment event", "event_id", evt.ID, "type", evt.Type)
			s.eb.Publish(ctx, domain.EventPaymentReceived{EventID: evt.ID, Kind: evt.Kind, Duplicate: true})
			return nil
		default:
			defer func() {
				if err == nil {
					return
				}
				if rerr := s.claimer.ReleaseEvent(context.WithoutCancel(ctx), evt.ID); rerr != nil {
					slog.ErrorContext(ctx, "lifecycle: release payment event failed", "event_id", evt.ID, "error", rerr)
				}
			}()
		}
	}

	s.eb.Publish(ctx, domain.EventPaymentReceived{EventID: evt.ID, Kind: evt.Kind})

	switch evt.Kind {
	case domain.PaymentEventCompleted:
		return s.markPaid(ctx, evt)
	case domain.PaymentEventExpired:
		return s.expire(ctx, evt)
	default:
		slog.DebugContext(ctx, "lifecycle: ignoring payment event", "event_id", evt.ID, "type", evt.Type)
		return nil
	}
}

func (s *Service) markPaid(ctx context.Context, evt domain.PaymentEvent) error {
	if evt.Reference == "" {
		slog.WarnContext(ctx, "lifecycle: completed checkout without reference", "event_id", evt.ID)
		return nil
	}

	_, err := s.store.Update(ctx, evt.Reference, (*domain.Quiz).MarkPaid)
	switch {
	case stderrors.Is(err, domain.ErrUnchanged):
		slog.InfoContext(ctx, "lifecycle: quiz already paid or free", "id", evt.Reference)
		return nil
	case stderrors.Is(err, errors.NotFound()):
		slog.WarnContext(ctx, "lifecycle: completed checkout for unknown quiz", "id", evt.Reference, "event_id", evt.ID)
		return nil
	case err != nil:
		return internal(err)
	}

	slog.InfoContext(ctx, "lifecycle: quiz paid", "id", evt.Reference)
	s.eb.Publish(ctx, domain.EventQuizPaid{QuizID: evt.Reference})
	return nil
}

func (s *Service) expire(ctx context.Context, evt domain.PaymentEvent) error {
	if evt.Reference == "" {
		slog.WarnContext(ctx, "lifecycle: expired checkout without reference", "event_id", evt.ID)
		return nil
	}

	deleted, err := s.store.DeleteIf(ctx, evt.Reference, domain.Quiz.AwaitingPayment)
	if err != nil {
		return internal(err)
	}
	if !deleted {
		slog.InfoContext(ctx, "lifecycle: expired checkout left quiz untouched", "id", evt.Reference)
		return nil
	}

	slog.InfoContext(ctx, "lifecycle: deleted unpaid premium quiz", "id", evt.Reference)
	s.eb.Publish(ctx, domain.EventQuizExpired{QuizID: evt.Reference})
	return nil
}

func (s *Service) GetQuiz(ctx context.Context, id string) (*domain.Quiz, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.Validation(errors.WithMessagef("quiz id is required"))
	}

	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, internal(err)
	}

	return q, nil
}

// ListQuizIDs returns every stored id in lower case, for clients checking slug availability.
func (s *Service) ListQuizIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, internal(err)
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.ToLower(id)
	}

	return out, nil
}

func (s *Service) quizURL(id string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, id)
}

func cloneQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

// internal keeps typed errors and wraps everything else as Internal.
func internal(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.Internal(err)
}
