package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/vetclinic-bot/internal/infra/db"
)

// PgTicks хранит водяной знак последнего отработанного тика по каждому виду задач.
type PgTicks struct {
	db db.Querier
}

func NewPgTicks(q db.Querier) *PgTicks { return &PgTicks{db: q} }

// Claim двигает водяной знак kind вперёд до tick и в той же транзакции вызывает fn.
// Если знак уже стоит на tick или дальше, возвращает false и fn не вызывает.
func (t *PgTicks) Claim(ctx context.Context, kind string, tick time.Time, fn func(ctx context.Context, tx db.Querier) error) (_ bool, err error) {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		INSERT INTO dispatcher_ticks (kind, tick_at) VALUES ($1,$2)
		ON CONFLICT (kind) DO UPDATE SET tick_at = EXCLUDED.tick_at
		WHERE dispatcher_ticks.tick_at < EXCLUDED.tick_at
	`, kind, tick)
	if err != nil {
		return false, fmt.Errorf("advance watermark: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return false, nil
	}

	if err = fn(ctx, tx); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
