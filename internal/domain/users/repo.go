package users

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

const userCols = `u.id, u.phone, u.first_name, u.last_name, u.password_hash, u.role, u.is_active, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Phone, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users u WHERE u.id = $1`, id))
}

func (r *Repo) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users u WHERE u.phone = $1`, phone))
}

// GetByChatID возвращает пользователя, привязанного к чату, или nil.
func (r *Repo) GetByChatID(ctx context.Context, chatID int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		SELECT `+userCols+`
		FROM users u
		JOIN telegram_links l ON l.user_id = u.id
		WHERE l.chat_id = $1
	`, chatID))
}

// RegisterClient создаёт клиента и привязку к чату в одной транзакции:
// либо появляются обе записи, либо ни одной.
func (r *Repo) RegisterClient(ctx context.Context, reg Registration) (_ *User, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	u, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO users AS u (phone, first_name, last_name, password_hash, role)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING `+userCols,
		reg.Phone, reg.FirstName, reg.LastName, reg.PasswordHash, RoleClient))
	if err != nil {
		return nil, wrapUnique("insert user", err)
	}
	if u == nil {
		return nil, errors.New("insert user: no row returned")
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO telegram_links (user_id, chat_id, language) VALUES ($1,$2,$3)
	`, u.ID, reg.ChatID, reg.Language); err != nil {
		return nil, wrapUnique("insert telegram link", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

func wrapUnique(op string, err error) error {
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrAlreadyRegistered)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// LinkChat привязывает существующего пользователя (обычно сотрудника) к чату.
func (r *Repo) LinkChat(ctx context.Context, phone string, chatID int64, lang string) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO telegram_links (user_id, chat_id, language)
		SELECT id, $2, $3 FROM users WHERE phone = $1
		ON CONFLICT (user_id) DO UPDATE SET chat_id = EXCLUDED.chat_id, linked_at = now()
	`, phone, chatID, lang)
	if err != nil {
		return wrapUnique("link chat", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBroadcastChats: чаты активных клиентов, получающих рассылки.
func (r *Repo) ListBroadcastChats(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT l.chat_id
		FROM telegram_links l
		JOIN users u ON u.id = l.user_id
		WHERE u.is_active AND u.role = $1
		ORDER BY l.chat_id
	`, RoleClient)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *Repo) SetRole(ctx context.Context, phone string, role Role) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE phone = $1`, phone, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Disable: мягкое отключение: пользователи никогда не удаляются.
func (r *Repo) Disable(ctx context.Context, phone string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_active = FALSE, updated_at = now() WHERE phone = $1`, phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
