package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/vetclinic-bot/assets"
	"github.com/Spok95/vetclinic-bot/internal/config"
	"github.com/Spok95/vetclinic-bot/internal/infra/db"
)

type Role string

const (
	RoleWeb        Role = "web"
	RoleWorker     Role = "worker"
	RoleDispatcher Role = "dispatcher"
	RoleBot        Role = "bot"
)

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleWeb, RoleWorker, RoleDispatcher, RoleBot:
		return r, nil
	}
	return "", fmt.Errorf("%w %q (web|worker|dispatcher|bot)", ErrUnknownRole, s)
}

// NeedsStatic: статику готовит только веб-роль.
func (r Role) NeedsStatic() bool { return r == RoleWeb }

// steps: шаги подготовки процесса до запуска роли.
type steps struct {
	waitDB  func(ctx context.Context) error
	migrate func(ctx context.Context) error
	static  func() (int, error)
}

func (s steps) run(ctx context.Context, role Role, log *slog.Logger) error {
	if err := s.waitDB(ctx); err != nil {
		return fmt.Errorf("wait for database: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if role.NeedsStatic() {
		n, err := s.static()
		if err != nil {
			return fmt.Errorf("static assets: %w", err)
		}
		log.Info("static assets ready", "written", n)
	}
	return nil
}

// Bootstrap ждёт базу, применяет миграции и для web готовит статику.
// Любая ошибка фатальна для процесса.
func Bootstrap(ctx context.Context, cfg config.Config, role Role, log *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	s := steps{
		waitDB: func(ctx context.Context) error {
			return db.WaitReady(ctx, pool, cfg.Bootstrap.DBWaitTimeout, log)
		},
		migrate: func(ctx context.Context) error { return db.Migrate(ctx, pool, log) },
		static: func() (int, error) {
			sub, err := fs.Sub(assets.FS, "static")
			if err != nil {
				return 0, err
			}
			return PrepareStatic(sub, cfg.HTTP.StaticDir)
		},
	}
	if err := s.run(ctx, role, log); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
