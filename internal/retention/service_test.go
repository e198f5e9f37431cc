package retention_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/event"
	"github.com/victornm/quizinho/internal/retention"
	"github.com/victornm/quizinho/internal/store"
)

var now = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

func TestPolicy_Expired(t *testing.T) {
	p := retention.DefaultPolicy()

	tests := map[string]struct {
		plan domain.Plan
		paid bool
		age  int
		want bool
	}{
		"free at 6 days is kept":             {plan: domain.PlanFree, paid: true, age: 6, want: false},
		"free at 7 days is deleted":          {plan: domain.PlanFree, paid: true, age: 7, want: true},
		"free at 8 days is deleted":          {plan: domain.PlanFree, paid: true, age: 8, want: true},
		"unpaid premium at 0 days is kept":   {plan: domain.PlanPremium, paid: false, age: 0, want: false},
		"unpaid premium at 1 day is deleted": {plan: domain.PlanPremium, paid: false, age: 1, want: true},
		"paid premium at 29 days is kept":    {plan: domain.PlanPremium, paid: true, age: 29, want: false},
		"paid premium at 30 days is deleted": {plan: domain.PlanPremium, paid: true, age: 30, want: true},
	}

	for name, tt := range tests {
		q := domain.Quiz{Plan: tt.plan, Paid: tt.paid}
		assert.Equal(t, tt.want, p.Expired(q, tt.age), name)
	}
}

func TestAgeInDays(t *testing.T) {
	assert.Equal(t, 0, retention.AgeInDays(now.Add(-23*time.Hour), now))
	assert.Equal(t, 1, retention.AgeInDays(now.Add(-24*time.Hour), now))
	assert.Equal(t, 6, retention.AgeInDays(now.Add(-(7*24-1)*time.Hour), now))
	assert.Equal(t, 8, retention.AgeInDays(now.AddDate(0, 0, -8), now))
}

func TestService_Sweep(t *testing.T) {
	ctx := context.Background()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})
	t.Cleanup(func() { rc.Close() })
	st := store.NewRedis(rc, "test")

	seed := []struct {
		id   string
		plan domain.Plan
		paid bool
		age  int
	}{
		{"free8", domain.PlanFree, true, 8},
		{"free6", domain.PlanFree, true, 6},
		{"unpd2", domain.PlanPremium, false, 2},
		{"unpd0", domain.PlanPremium, false, 0},
		{"paid31", domain.PlanPremium, true, 31},
		{"paid10", domain.PlanPremium, true, 10},
	}
	for _, sd := range seed {
		q := domain.NewQuiz(sd.id, nil, "", sd.plan, "", now.AddDate(0, 0, -sd.age))
		q.Paid = sd.paid
		require.NoError(t, st.Insert(ctx, q))
	}

	eb := event.NewBus()
	var (
		mu    sync.Mutex
		swept []string
	)
	eb.Subscribe(func(ctx context.Context, e event.Event) error {
		mu.Lock()
		swept = append(swept, e.(domain.EventQuizSwept).QuizID)
		mu.Unlock()
		return nil
	}, domain.EventNameQuizSwept)

	s := retention.NewService(retention.Config{
		EventBus: eb,
		Store:    st,
		Now:      func() time.Time { return now },
	})

	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	eb.Stop()

	assert.Equal(t, retention.SweepResult{Scanned: 6, Deleted: 3}, res)
	assert.ElementsMatch(t, []string{"free8", "unpd2", "paid31"}, swept)

	ids, err := st.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"free6", "paid10", "unpd0"}, ids)
}

func TestService_Sweep_FailuresDoNotAbort(t *testing.T) {
	fs := &fakeStore{
		quizzes: map[string]domain.Quiz{
			"old01": {ID: "old01", Plan: domain.PlanFree, Paid: true, CreatedAt: now.AddDate(0, 0, -9)},
			"old02": {ID: "old02", Plan: domain.PlanFree, Paid: true, CreatedAt: now.AddDate(0, 0, -9)},
			"old03": {ID: "old03", Plan: domain.PlanFree, Paid: true, CreatedAt: now.AddDate(0, 0, -9)},
		},
		failGet:    map[string]bool{"old01": true},
		failDelete: map[string]bool{"old02": true},
	}

	s := retention.NewService(retention.Config{
		EventBus:    event.NewBus(),
		Store:       fs,
		Concurrency: 2,
		Now:         func() time.Time { return now },
	})

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, retention.SweepResult{Scanned: 3, Deleted: 1, Failed: 2}, res)
	assert.Equal(t, []string{"old03"}, fs.deleted)
}

func TestService_Sweep_ListFailure(t *testing.T) {
	s := retention.NewService(retention.Config{
		EventBus: event.NewBus(),
		Store:    &fakeStore{listErr: stderrors.New("connection refused")},
	})

	_, err := s.Sweep(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

type fakeStore struct {
	mu         sync.Mutex
	quizzes    map[string]domain.Quiz
	failGet    map[string]bool
	failDelete map[string]bool
	listErr    error
	deleted    []string
}

func (s *fakeStore) ListIDs(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.quizzes))
	for id := range s.quizzes {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	if s.failGet[id] {
		return nil, stderrors.New("decode failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quizzes[id]
	return &q, nil
}

func (s *fakeStore) DeleteIf(ctx context.Context, id string, pred func(q domain.Quiz) bool) (bool, error) {
	if s.failDelete[id] {
		return false, stderrors.New("timeout")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !pred(s.quizzes[id]) {
		return false, nil
	}
	delete(s.quizzes, id)
	s.deleted = append(s.deleted, id)
	return true, nil
}
