package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/vetclinic-bot/internal/bot"
	"github.com/Spok95/vetclinic-bot/internal/config"
	"github.com/Spok95/vetclinic-bot/internal/domain/announcements"
	"github.com/Spok95/vetclinic-bot/internal/domain/users"
	"github.com/Spok95/vetclinic-bot/internal/infra/db"
	"github.com/Spok95/vetclinic-bot/internal/jobs"
	"github.com/Spok95/vetclinic-bot/internal/report"
)

// Admin: разовые административные команды. Каждая открывает только то, что ей нужно.
type Admin struct {
	cfg config.Config
	log *slog.Logger
	out io.Writer
}

func NewAdmin(cfg config.Config, log *slog.Logger, out io.Writer) *Admin {
	return &Admin{cfg: cfg, log: log, out: out}
}

func (a *Admin) openDB(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.WaitReady(ctx, pool, a.cfg.Bootstrap.DBWaitTimeout, a.log); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (a *Admin) WebhookSet() error {
	if a.cfg.Telegram.WebhookURL == "" {
		return fmt.Errorf("%w: telegram.webhook_url is empty", config.ErrConfig)
	}
	api, err := NewTelegram(a.cfg, a.log)
	if err != nil {
		return err
	}
	if err := bot.SetWebhook(api, a.cfg.Telegram.WebhookURL, a.cfg.Telegram.WebhookSecret); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "webhook set: %s\n", a.cfg.Telegram.WebhookURL)
	return nil
}

func (a *Admin) WebhookDelete() error {
	api, err := NewTelegram(a.cfg, a.log)
	if err != nil {
		return err
	}
	if err := bot.DeleteWebhook(api); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, "webhook deleted")
	return nil
}

func (a *Admin) WebhookInfo() error {
	api, err := NewTelegram(a.cfg, a.log)
	if err != nil {
		return err
	}
	info, err := bot.WebhookInfo(api)
	if err != nil {
		return err
	}
	if !info.IsSet() {
		_, _ = fmt.Fprintln(a.out, "webhook: not set")
		return nil
	}
	_, _ = fmt.Fprintf(a.out, "webhook: %s\npending updates: %d\n", info.URL, info.PendingUpdateCount)
	if info.LastErrorMessage != "" {
		_, _ = fmt.Fprintf(a.out, "last error: %s\n", info.LastErrorMessage)
	}
	return nil
}

// AnnounceResend ставит повторную отправку объявлений, как кнопка в админке.
func (a *Admin) AnnounceResend(ctx context.Context, ids []int64) error {
	pool, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	d, err := newDeps(ctx, a.cfg, pool, a.log)
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.bcast.Resend(ctx, nil, ids...)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "queued %d deliveries for %d announcement(s)\n", n, len(ids))
	return nil
}

func (a *Admin) withUsers(ctx context.Context, fn func(r *users.Repo) error) error {
	pool, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(users.NewRepo(pool))
}

func (a *Admin) UsersRole(ctx context.Context, rawPhone, rawRole string) error {
	phone, err := users.NormalizePhone(rawPhone)
	if err != nil {
		return err
	}
	role, err := users.ParseRole(rawRole)
	if err != nil {
		return err
	}
	return a.withUsers(ctx, func(r *users.Repo) error {
		if err := r.SetRole(ctx, phone, role); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "%s: role %s\n", phone, role)
		return nil
	})
}

func (a *Admin) UsersDisable(ctx context.Context, rawPhone string) error {
	phone, err := users.NormalizePhone(rawPhone)
	if err != nil {
		return err
	}
	return a.withUsers(ctx, func(r *users.Repo) error {
		if err := r.Disable(ctx, phone); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "%s: disabled\n", phone)
		return nil
	})
}

// UsersLink привязывает чат сотрудника, чтобы ему была доступна /announce.
func (a *Admin) UsersLink(ctx context.Context, rawPhone string, chatID int64) error {
	phone, err := users.NormalizePhone(rawPhone)
	if err != nil {
		return err
	}
	return a.withUsers(ctx, func(r *users.Repo) error {
		if err := r.LinkChat(ctx, phone, chatID, "en"); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "%s: linked to chat %d\n", phone, chatID)
		return nil
	})
}

func (a *Admin) DeadLettersExport(ctx context.Context, path string) error {
	pool, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := report.Export(ctx, jobs.NewPgStore(pool), announcements.NewRepo(pool), path)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "exported %d dead job(s) to %s\n", n, path)
	return nil
}

// Migrate применяет миграции и печатает их состояние.
func (a *Admin) Migrate(ctx context.Context) error {
	pool, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, a.log); err != nil {
		return err
	}
	lines, err := db.MigrationStatus(ctx, pool)
	if err != nil {
		return err
	}
	for _, l := range lines {
		_, _ = fmt.Fprintln(a.out, l)
	}
	return nil
}
