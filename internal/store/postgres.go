package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/errors"
)

const codeUniqueViolation = "23505"

// Postgres keeps quizzes in the quizzes table created by the migrations package.
// The document is stored as JSONB; plan, paid and created_at are duplicated into
// columns so the retention sweep can be inspected with plain SQL.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	const stmt = `SELECT data FROM quizzes WHERE id = $1;`

	var b []byte
	err := s.db.QueryRow(ctx, stmt, id).Scan(&b)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get quiz %s: %w", id, err)
	}

	return decode(id, b)
}

func (s *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	const stmt = `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1);`

	var ok bool
	if err := s.db.QueryRow(ctx, stmt, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: exists %s: %w", id, err)
	}

	return ok, nil
}

func (s *Postgres) Insert(ctx context.Context, q domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (id, plan, paid, data, created_at)
VALUES ($1, $2, $3, $4, $5);`

	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("postgres: marshal quiz %s: %w", q.ID, err)
	}

	_, err = s.db.Exec(ctx, stmt, q.ID, string(q.Plan), q.Paid, b, q.CreatedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return alreadyExists(q.ID)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert quiz %s: %w", q.ID, err)
	}

	return nil
}

// Update locks the row, applies fn and writes the result in the same transaction.
// When fn returns domain.ErrUnchanged the transaction is rolled back and the error is passed through.
func (s *Postgres) Update(ctx context.Context, id string, fn func(q *domain.Quiz) error) (q *domain.Quiz, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := rollback(ctx, tx); rbErr != nil {
				err = stderrors.Join(err, rbErr)
			}
		}
	}()

	q, err = s.lockQuiz(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err = fn(q); err != nil {
		return q, err
	}

	b, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal quiz %s: %w", id, err)
	}

	const stmt = `UPDATE quizzes SET plan = $2, paid = $3, data = $4 WHERE id = $1;`
	if _, err = tx.Exec(ctx, stmt, id, string(q.Plan), q.Paid, b); err != nil {
		return nil, fmt.Errorf("postgres: update quiz %s: %w", id, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}

	return q, nil
}

func (s *Postgres) DeleteIf(ctx context.Context, id string, pred func(q domain.Quiz) bool) (deleted bool, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := rollback(ctx, tx); rbErr != nil {
				err = stderrors.Join(err, rbErr)
			}
		}
	}()

	q, err := s.lockQuiz(ctx, tx, id)
	if stderrors.Is(err, errors.NotFound()) {
		return false, tx.Rollback(ctx)
	}
	if err != nil {
		return false, err
	}

	if !pred(*q) {
		return false, tx.Rollback(ctx)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM quizzes WHERE id = $1;`, id); err != nil {
		return false, fmt.Errorf("postgres: delete quiz %s: %w", id, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit: %w", err)
	}

	return true, nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM quizzes WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("postgres: delete quiz %s: %w", id, err)
	}

	return nil
}

func (s *Postgres) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM quizzes ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quiz ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list quiz ids: %w", err)
	}

	return ids, nil
}

func (s *Postgres) lockQuiz(ctx context.Context, tx pgx.Tx, id string) (*domain.Quiz, error) {
	const stmt = `SELECT data FROM quizzes WHERE id = $1 FOR UPDATE;`

	var b []byte
	err := tx.QueryRow(ctx, stmt, id).Scan(&b)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock quiz %s: %w", id, err)
	}

	return decode(id, b)
}

func rollback(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Rollback(ctx); err != nil && !stderrors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
