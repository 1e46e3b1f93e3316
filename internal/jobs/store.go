package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Spok95/vetclinic-bot/internal/infra/db"
)

// Store: состояние задач в базе.
type Store interface {
	// Insert пишет задачу через q (можно передать транзакцию) или через свой пул, если q == nil.
	Insert(ctx context.Context, q db.Querier, j Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	MarkPublished(ctx context.Context, ids ...uuid.UUID) error
	MarkDone(ctx context.Context, id uuid.UUID, attempts int) error
	MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error
	// MarkDead возвращает true только тому вызову, который реально перевёл задачу в dead.
	MarkDead(ctx context.Context, id uuid.UUID, attempts int, lastErr string) (bool, error)
	Unpublished(ctx context.Context, olderThan time.Time, limit int) ([]Job, error)
	PurgeDone(ctx context.Context, before time.Time) (int64, error)
	CountDead(ctx context.Context) (int, error)
	ListDead(ctx context.Context, limit int) ([]Job, error)
}

type PgStore struct {
	db db.Querier
}

func NewPgStore(q db.Querier) *PgStore { return &PgStore{db: q} }

const jobCols = `id, kind, payload, status, attempts, max_attempts, last_error, created_at, updated_at, published_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var payload []byte
	if err := row.Scan(&j.ID, &j.Kind, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.PublishedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}

func (s *PgStore) Insert(ctx context.Context, q db.Querier, j Job) error {
	if q == nil {
		q = s.db
	}
	_, err := q.Exec(ctx, `
		INSERT INTO jobs (id, kind, payload, status, max_attempts)
		VALUES ($1,$2,$3,$4,$5)
	`, j.ID, j.Kind, []byte(j.Payload), StatusPending, j.MaxAttempts)
	return err
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (s *PgStore) MarkPublished(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	_, err := s.db.Exec(ctx, `UPDATE jobs SET published_at = now() WHERE id = ANY($1::uuid[]) AND published_at IS NULL`, strIDs)
	return err
}

func (s *PgStore) MarkDone(ctx context.Context, id uuid.UUID, attempts int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE jobs SET status = $2, attempts = $3, last_error = '', updated_at = now()
		WHERE id = $1 AND status NOT IN ('done', 'dead')
	`, id, StatusDone, attempts)
	return err
}

func (s *PgStore) MarkRetrying(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE jobs SET status = $2, attempts = $3, last_error = $4, updated_at = now()
		WHERE id = $1 AND status NOT IN ('done', 'dead')
	`, id, StatusRetrying, attempts, lastErr)
	return err
}

func (s *PgStore) MarkDead(ctx context.Context, id uuid.UUID, attempts int, lastErr string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs SET status = $2, attempts = $3, last_error = $4, updated_at = now()
		WHERE id = $1 AND status NOT IN ('done', 'dead')
	`, id, StatusDead, attempts, lastErr)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) Unpublished(ctx context.Context, olderThan time.Time, limit int) ([]Job, error) {
	return s.list(ctx, `
		SELECT `+jobCols+` FROM jobs
		WHERE published_at IS NULL AND status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, olderThan, limit)
}

func (s *PgStore) PurgeDone(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM jobs WHERE status = 'done' AND updated_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) CountDead(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'dead'`).Scan(&n)
	return n, err
}

func (s *PgStore) ListDead(ctx context.Context, limit int) ([]Job, error) {
	return s.list(ctx, `
		SELECT `+jobCols+` FROM jobs
		WHERE status = 'dead'
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
}

func (s *PgStore) list(ctx context.Context, sql string, args ...any) ([]Job, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}
