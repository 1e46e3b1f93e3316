package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Spok95/vetclinic-bot/internal/domain/users"
	"github.com/Spok95/vetclinic-bot/internal/infra/db"
)

type TokenStore interface {
	// Consume помечает jti использованным; повторный вызов возвращает ErrTokenUsed.
	Consume(ctx context.Context, jti uuid.UUID, userID int64) error
}

type UserGetter interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

type PgTokens struct {
	db db.Querier
}

func NewPgTokens(q db.Querier) *PgTokens { return &PgTokens{db: q} }

func (t *PgTokens) Consume(ctx context.Context, jti uuid.UUID, userID int64) error {
	tag, err := t.db.Exec(ctx, `
		INSERT INTO login_tokens (jti, user_id) VALUES ($1,$2)
		ON CONFLICT (jti) DO NOTHING
	`, jti.String(), userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenUsed
	}
	return nil
}

// Exchanger меняет одноразовый токен из бота на токен доступа фронтенда.
type Exchanger struct {
	issuer *Issuer
	tokens TokenStore
	users  UserGetter
}

func NewExchanger(issuer *Issuer, tokens TokenStore, users UserGetter) *Exchanger {
	return &Exchanger{issuer: issuer, tokens: tokens, users: users}
}

func (e *Exchanger) Exchange(ctx context.Context, loginToken string) (string, *users.User, error) {
	c, err := e.issuer.Parse(loginToken, PurposeLogin)
	if err != nil {
		return "", nil, err
	}
	userID, err := c.UserID()
	if err != nil {
		return "", nil, fmt.Errorf("%w: subject", ErrInvalidToken)
	}
	jti, err := uuid.Parse(c.ID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: jti", ErrInvalidToken)
	}

	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	if u == nil || !u.IsActive {
		return "", nil, fmt.Errorf("%w: user inactive", ErrInvalidToken)
	}
	if err := e.tokens.Consume(ctx, jti, userID); err != nil {
		if errors.Is(err, ErrTokenUsed) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("consume login token: %w", err)
	}

	access, err := e.issuer.AccessToken(*u)
	if err != nil {
		return "", nil, err
	}
	return access, u, nil
}
