package announcements

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/vetclinic-bot/internal/infra/db"
)

type Repo struct {
	db db.Querier
}

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const annCols = `id, title, message, sent_by, created_at, sent_at, resent_at, target_count`

func scanAnnouncement(row pgx.Row) (*Announcement, error) {
	var a Announcement
	if err := row.Scan(&a.ID, &a.Title, &a.Message, &a.SentBy, &a.CreatedAt, &a.SentAt, &a.ResentAt, &a.TargetCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repo) Create(ctx context.Context, title, message string, sentBy *int64) (*Announcement, error) {
	a, err := scanAnnouncement(r.db.QueryRow(ctx, `
		INSERT INTO announcements (title, message, sent_by)
		VALUES ($1,$2,$3)
		RETURNING `+annCols, title, message, sentBy))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.New("insert announcement: no row returned")
	}
	return a, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*Announcement, error) {
	return scanAnnouncement(r.db.QueryRow(ctx, `SELECT `+annCols+` FROM announcements WHERE id = $1`, id))
}

// EachFunc вызывается для каждого получателя внутри транзакции отправки.
type EachFunc func(ctx context.Context, tx db.Querier, d Dispatch, chatID int64) error

// Dispatch регистрирует новую отправку объявления и для каждого чата вызывает each
// в той же транзакции. Первая отправка ставит sent_at, последующие ставят resent_at.
func (r *Repo) Dispatch(ctx context.Context, id int64, requestedBy *int64, chats []int64, each EachFunc) (_ *Dispatch, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	if err = tx.QueryRow(ctx, `SELECT TRUE FROM announcements WHERE id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, err
	}

	d, err := dispatchTx(ctx, tx, id, requestedBy, chats, each)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return d, nil
}

// CreateAndDispatch создаёт объявление и его первую отправку одной транзакцией:
// объявление без отправки в базе не остаётся.
func (r *Repo) CreateAndDispatch(ctx context.Context, title, message string, sentBy *int64, chats []int64, each EachFunc) (_ *Announcement, _ *Dispatch, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	a, err := scanAnnouncement(tx.QueryRow(ctx, `
		INSERT INTO announcements (title, message, sent_by)
		VALUES ($1,$2,$3)
		RETURNING `+annCols, title, message, sentBy))
	if err != nil {
		return nil, nil, fmt.Errorf("insert announcement: %w", err)
	}
	if a == nil {
		err = errors.New("insert announcement: no row returned")
		return nil, nil, err
	}

	d, err := dispatchTx(ctx, tx, a.ID, sentBy, chats, each)
	if err != nil {
		return nil, nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return a, d, nil
}

func dispatchTx(ctx context.Context, tx db.Querier, id int64, requestedBy *int64, chats []int64, each EachFunc) (*Dispatch, error) {
	d := Dispatch{AnnouncementID: id, RequestedBy: requestedBy, TargetCount: len(chats)}
	if err := tx.QueryRow(ctx, `
		INSERT INTO announcement_dispatches (announcement_id, requested_by, target_count)
		VALUES ($1,$2,$3)
		RETURNING id, created_at
	`, id, requestedBy, len(chats)).Scan(&d.ID, &d.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert dispatch: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE announcements SET
			resent_at    = CASE WHEN sent_at IS NULL THEN resent_at ELSE now() END,
			sent_at      = COALESCE(sent_at, now()),
			target_count = $2
		WHERE id = $1
	`, id, len(chats)); err != nil {
		return nil, fmt.Errorf("stamp announcement: %w", err)
	}

	for _, chatID := range chats {
		if err := each(ctx, tx, d, chatID); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (r *Repo) IsDelivered(ctx context.Context, dispatchID, chatID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM announcement_deliveries WHERE dispatch_id = $1 AND chat_id = $2)
	`, dispatchID, chatID).Scan(&ok)
	return ok, err
}

func (r *Repo) MarkDelivered(ctx context.Context, dispatchID, chatID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO announcement_deliveries (dispatch_id, chat_id)
		VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, dispatchID, chatID)
	return err
}

// Stats: сводка по последним объявлениям для выгрузки.
func (r *Repo) Stats(ctx context.Context, limit int) ([]Stat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.title,
		       COUNT(DISTINCT d.id),
		       COALESCE(SUM(d.target_count), 0),
		       (SELECT COUNT(*) FROM announcement_deliveries x
		          JOIN announcement_dispatches y ON y.id = x.dispatch_id
		         WHERE y.announcement_id = a.id)
		FROM announcements a
		LEFT JOIN announcement_dispatches d ON d.announcement_id = a.id
		GROUP BY a.id, a.title
		ORDER BY a.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stat
	for rows.Next() {
		var s Stat
		if err := rows.Scan(&s.AnnouncementID, &s.Title, &s.Dispatches, &s.Targeted, &s.Delivered); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
