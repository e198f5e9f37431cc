package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/errors"
)

const maxTxRetries = 5

// Redis keeps each quiz as a JSON document under <prefix>:quiz:<id> and the set
// of all ids under <prefix>:quizzes. Writes to a document run in WATCH/MULTI
// transactions, so concurrent transitions on one quiz never interleave.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

func (r *Redis) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	b, err := r.client.Get(ctx, r.quizKey(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get quiz %s: %w", id, err)
	}

	return decode(id, b)
}

func (r *Redis) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.quizKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: exists %s: %w", id, err)
	}

	return n > 0, nil
}

func (r *Redis) Insert(ctx context.Context, q domain.Quiz) error {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quiz %s: %w", q.ID, err)
	}

	key := r.quizKey(q.ID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return alreadyExists(q.ID)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, 0)
			p.SAdd(ctx, r.indexKey(), q.ID)
			return nil
		})
		return err
	}, key)

	if stderrors.Is(err, redis.TxFailedErr) {
		return alreadyExists(q.ID)
	}
	if err != nil {
		return wrap("insert", q.ID, err)
	}

	return nil
}

// Update loads the quiz, applies fn and writes the result back atomically.
// When fn returns domain.ErrUnchanged nothing is written and the error is passed through.
func (r *Redis) Update(ctx context.Context, id string, fn func(q *domain.Quiz) error) (*domain.Quiz, error) {
	key := r.quizKey(id)

	var out *domain.Quiz
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return notFound(id)
		}
		if err != nil {
			return err
		}

		q, err := decode(id, b)
		if err != nil {
			return err
		}

		if err := fn(q); err != nil {
			out = q
			return err
		}

		nb, err := json.Marshal(q)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, nb, redis.KeepTTL)
			return nil
		})
		out = q
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return out, wrap("update", id, err)
		}
		return out, nil
	}

	return nil, fmt.Errorf("redis: update quiz %s: %w", id, redis.TxFailedErr)
}

// DeleteIf removes the quiz when pred holds for its current state.
// A missing quiz is not an error and reports false.
func (r *Redis) DeleteIf(ctx context.Context, id string, pred func(q domain.Quiz) bool) (bool, error) {
	key := r.quizKey(id)

	var deleted bool
	txf := func(tx *redis.Tx) error {
		deleted = false

		b, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		q, err := decode(id, b)
		if err != nil {
			return err
		}
		if !pred(*q) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			p.SRem(ctx, r.indexKey(), id)
			return nil
		})
		deleted = err == nil
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, wrap("delete", id, err)
		}
		return deleted, nil
	}

	return false, fmt.Errorf("redis: delete quiz %s: %w", id, redis.TxFailedErr)
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.quizKey(id))
		p.SRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete quiz %s: %w", id, err)
	}

	return nil
}

func (r *Redis) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list quiz ids: %w", err)
	}

	slices.Sort(ids)
	return ids, nil
}

// ClaimEvent records a provider event id and reports whether this is its first delivery.
func (r *Redis) ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.eventKey(eventID), time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim event %s: %w", eventID, err)
	}

	return ok, nil
}

// ReleaseEvent forgets a claimed event id so a later delivery is processed again.
func (r *Redis) ReleaseEvent(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, r.eventKey(eventID)).Err(); err != nil {
		return fmt.Errorf("redis: release event %s: %w", eventID, err)
	}

	return nil
}

func (r *Redis) quizKey(id string) string {
	return fmt.Sprintf("%s:quiz:%s", r.prefix, id)
}

func (r *Redis) indexKey() string {
	return fmt.Sprintf("%s:quizzes", r.prefix)
}

func (r *Redis) eventKey(id string) string {
	return fmt.Sprintf("%s:event:%s", r.prefix, id)
}

func decode(id string, b []byte) (*domain.Quiz, error) {
	var q domain.Quiz
	if err := json.Unmarshal(b, &q); err != nil {
		return nil, fmt.Errorf("unmarshal quiz %s: %w", id, err)
	}

	return &q, nil
}

func notFound(id string) error {
	return errors.NotFound(errors.WithMessagef("quiz not found: id=%s", id))
}

func alreadyExists(id string) error {
	return errors.AlreadyExists(errors.WithMessagef("quiz already exists: id=%s", id))
}

// wrap keeps typed errors and domain.ErrUnchanged intact and tags everything else with the operation.
func wrap(op, id string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) || stderrors.Is(err, domain.ErrUnchanged) {
		return err
	}

	return fmt.Errorf("%s quiz %s: %w", op, id, err)
}
