package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/quizinho/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	QuizRef struct {
		ID string `json:"id"`
	}
)

// PublishQuizPaid tells clients waiting on the checkout page that the quiz is ready to share.
func (a *API) PublishQuizPaid(ctx context.Context, e domain.EventQuizPaid) error {
	return a.publishNotification(ctx, e.QuizID, e.Name(), QuizRef{ID: e.QuizID})
}

func (a *API) publishNotification(ctx context.Context, quizID, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:quiz:%s", a.prefix, quizID), b).Err()
}
