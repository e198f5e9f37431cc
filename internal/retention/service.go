// Package retention deletes quizzes that outlived their plan's retention window.
package retention

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/errors"
	"github.com/victornm/quizinho/internal/event"
)

const defaultConcurrency = 8

type Store interface {
	ListIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*domain.Quiz, error)
	DeleteIf(ctx context.Context, id string, pred func(q domain.Quiz) bool) (bool, error)
}

// Policy holds the age, in whole days, at which a quiz is removed.
type Policy struct {
	FreeDays          int
	UnpaidPremiumDays int
	PaidPremiumDays   int
}

func DefaultPolicy() Policy {
	return Policy{
		FreeDays:          7,
		UnpaidPremiumDays: 1,
		PaidPremiumDays:   30,
	}
}

// Expired reports whether q should be deleted at age days.
func (p Policy) Expired(q domain.Quiz, age int) bool {
	switch {
	case q.Plan == domain.PlanFree:
		return age >= p.FreeDays
	case q.AwaitingPayment():
		return age >= p.UnpaidPremiumDays
	case q.Plan == domain.PlanPremium:
		return age >= p.PaidPremiumDays
	default:
		return false
	}
}

// AgeInDays counts the whole days elapsed since created.
func AgeInDays(created, now time.Time) int {
	return int(now.Sub(created) / (24 * time.Hour))
}

type Config struct {
	EventBus    *event.Bus
	Store       Store
	Policy      Policy
	Concurrency int
	Now         func() time.Time
}

type Service struct {
	eb          *event.Bus
	store       Store
	policy      Policy
	concurrency int
	now         func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:          c.EventBus,
		store:       c.Store,
		policy:      c.Policy,
		concurrency: c.Concurrency,
		now:         c.Now,
	}

	if s.policy == (Policy{}) {
		s.policy = DefaultPolicy()
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type SweepResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// Sweep checks every quiz present when it starts and deletes the expired ones.
// A quiz that fails to load or delete is logged and counted; only listing ids fails the sweep.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("retention: list quiz ids: %w", err)
	}

	now := s.now()
	var deleted, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			ok, err := s.sweepOne(ctx, id, now)
			switch {
			case err != nil:
				failed.Add(1)
				slog.ErrorContext(ctx, "retention: sweep quiz failed", "id", id, "error", err)
			case ok:
				deleted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Scanned: len(ids),
		Deleted: int(deleted.Load()),
		Failed:  int(failed.Load()),
	}

	slog.InfoContext(ctx, "retention: sweep finished",
		"scanned", res.Scanned,
		"deleted", res.Deleted,
		"failed", res.Failed,
	)

	return res, nil
}

func (s *Service) sweepOne(ctx context.Context, id string, now time.Time) (bool, error) {
	q, err := s.store.Get(ctx, id)
	if stderrors.Is(err, errors.NotFound()) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	age := AgeInDays(q.CreatedAt, now)
	if !s.policy.Expired(*q, age) {
		return false, nil
	}

	// Re-check under the store's lock: a payment may land between Get and delete.
	deleted, err := s.store.DeleteIf(ctx, id, func(cur domain.Quiz) bool {
		return s.policy.Expired(cur, AgeInDays(cur.CreatedAt, now))
	})
	if err != nil || !deleted {
		return false, err
	}

	slog.InfoContext(ctx, "retention: deleted quiz", "id", id, "plan", q.Plan, "paid", q.Paid, "age_days", age)
	s.eb.Publish(ctx, domain.EventQuizSwept{
		QuizID:  id,
		Plan:    q.Plan,
		Paid:    q.Paid,
		AgeDays: age,
	})

	return true, nil
}
