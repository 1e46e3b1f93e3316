package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/vetclinic-bot/internal/auth"
	"github.com/Spok95/vetclinic-bot/internal/bot"
	"github.com/Spok95/vetclinic-bot/internal/broadcast"
	"github.com/Spok95/vetclinic-bot/internal/config"
	"github.com/Spok95/vetclinic-bot/internal/dialog"
	"github.com/Spok95/vetclinic-bot/internal/dispatcher"
	"github.com/Spok95/vetclinic-bot/internal/domain/announcements"
	"github.com/Spok95/vetclinic-bot/internal/domain/users"
	"github.com/Spok95/vetclinic-bot/internal/infra/broker"
	httpx "github.com/Spok95/vetclinic-bot/internal/infra/http"
	"github.com/Spok95/vetclinic-bot/internal/infra/logger"
	"github.com/Spok95/vetclinic-bot/internal/jobs"
	"github.com/Spok95/vetclinic-bot/internal/web"
)

const (
	brokerDialAttempts = 10
	sweepEvery         = time.Minute
)

// deps: общие зависимости ролей поверх пула и брокера.
type deps struct {
	cfg    config.Config
	log    *slog.Logger
	pool   *pgxpool.Pool
	broker *broker.Client

	users  *users.Repo
	anns   *announcements.Repo
	store  *jobs.PgStore
	queue  *jobs.Queue
	issuer *auth.Issuer
	bcast  *broadcast.Service
}

func newDeps(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, log *slog.Logger) (*deps, error) {
	bc, err := broker.Dial(ctx, cfg.Broker.URL, brokerDialAttempts, log)
	if err != nil {
		return nil, err
	}
	if err := bc.Setup(backoffOf(cfg), cfg.Worker.MaxAttempts); err != nil {
		_ = bc.Close()
		return nil, fmt.Errorf("broker setup: %w", err)
	}

	d := &deps{cfg: cfg, log: log, pool: pool, broker: bc}
	d.users = users.NewRepo(pool)
	d.anns = announcements.NewRepo(pool)
	d.store = jobs.NewPgStore(pool)
	d.queue = jobs.NewQueue(d.store, bc, cfg.Worker.MaxAttempts, log)
	d.issuer = auth.NewIssuer(cfg.App.SecretKey)
	d.bcast = broadcast.NewService(d.anns, d.users, d.queue, log)
	return d, nil
}

func (d *deps) Close() {
	if err := d.broker.Close(); err != nil {
		d.log.Warn("broker close", "err", err)
	}
}

func backoffOf(cfg config.Config) jobs.Backoff {
	return jobs.Backoff{Base: cfg.Worker.BackoffBase, Max: cfg.Worker.BackoffMax}
}

// NewTelegram создаёт клиента Bot API и направляет его логи в slog.
func NewTelegram(cfg config.Config, log *slog.Logger) (*tgbotapi.BotAPI, error) {
	_ = tgbotapi.SetLogger(logger.BotAPILogger{Log: log.With("component", "tgbotapi")})
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	api.Debug = cfg.App.Debug
	log.Info("telegram authorized", "bot", api.Self.UserName)
	return api, nil
}

func (d *deps) newBot(api bot.API) (*bot.Bot, *dialog.Store) {
	sessions := dialog.NewStore(d.cfg.Telegram.SessionTTL)
	b := bot.New(api, d.log.With("component", "bot"), d.users, sessions, d.bcast, d.issuer, d.cfg.Frontend.LoginURL)
	return b, sessions
}

// Run выполняет роль до отмены ctx. Ошибка означает аварийное завершение процесса.
func Run(ctx context.Context, cfg config.Config, role Role, log *slog.Logger) error {
	if err := checkMode(cfg, role); err != nil {
		return err
	}

	pool, err := Bootstrap(ctx, cfg, role, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	d, err := newDeps(ctx, cfg, pool, log)
	if err != nil {
		return err
	}
	defer d.Close()

	log.Info("starting role", "role", role, "telegram_mode", cfg.Telegram.Mode)
	switch role {
	case RoleWeb:
		return d.runWeb(ctx)
	case RoleWorker:
		return d.runWorker(ctx)
	case RoleDispatcher:
		return d.runDispatcher(ctx)
	case RoleBot:
		return d.runBot(ctx)
	}
	return fmt.Errorf("%w %q", ErrUnknownRole, role)
}

// checkMode: режимы polling и webhook взаимоисключающие.
func checkMode(cfg config.Config, role Role) error {
	if role == RoleBot && cfg.Telegram.Mode != config.ModePolling {
		return fmt.Errorf("%w: bot role requires telegram.mode=polling, updates arrive via the web role in %s mode",
			config.ErrConfig, cfg.Telegram.Mode)
	}
	return nil
}

func (d *deps) runWeb(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	handlers := web.NewHandlers(d.log.With("component", "web"),
		auth.NewExchanger(d.issuer, auth.NewPgTokens(d.pool), d.users), d.issuer, d.bcast)
	routes := web.Routes{StaticDir: d.cfg.HTTP.StaticDir}

	if d.cfg.Telegram.Mode == config.ModeWebhook {
		api, err := NewTelegram(d.cfg, d.log)
		if err != nil {
			return err
		}
		b, sessions := d.newBot(api)
		routes.WebhookPath = d.cfg.Telegram.WebhookPath
		routes.Webhook = b.WebhookHandler(d.cfg.Telegram.WebhookSecret)
		g.Go(func() error {
			sessions.RunSweeper(ctx, sweepEvery, b.NotifyExpired)
			return nil
		})
	}

	srv := httpx.New(d.cfg.HTTP.Addr, httpx.Options{
		AllowedHosts:   d.cfg.HTTP.AllowedHosts,
		TrustedOrigins: d.cfg.HTTP.TrustedOrigins,
		ExposeMetrics:  d.cfg.Metrics.Enabled,
		OriginExempt:   []string{routes.WebhookPath},
	}, d.log, func(r chi.Router) { handlers.Mount(r, routes) })

	g.Go(func() error { return srv.Run(ctx) })
	return g.Wait()
}

func (d *deps) runWorker(ctx context.Context) error {
	api, err := NewTelegram(d.cfg, d.log)
	if err != nil {
		return err
	}

	w := jobs.NewWorker(d.store, d.broker, d.cfg.Worker.MaxAttempts, d.log)
	w.Handle(broadcast.KindDeliver, d.bcast.Deliver(api))
	jobs.RegisterMaintenance(w, d.store, d.cfg.Dispatcher.JobsRetention, d.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx, d.broker, d.cfg.Worker.Concurrency) })
	d.serveMetrics(ctx, g)
	return g.Wait()
}

func (d *deps) runDispatcher(ctx context.Context) error {
	disp := dispatcher.New(dispatcher.NewPgTicks(d.pool), d.queue,
		d.cfg.Schedules(), d.cfg.Dispatcher.CheckInterval, d.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return disp.Run(ctx) })
	d.serveMetrics(ctx, g)
	return g.Wait()
}

func (d *deps) runBot(ctx context.Context) error {
	api, err := NewTelegram(d.cfg, d.log)
	if err != nil {
		return err
	}
	// webhook снимается только явной командой, при активном webhook getUpdates не работает
	info, err := bot.WebhookInfo(api)
	if err != nil {
		return err
	}
	if info.IsSet() {
		return fmt.Errorf("%w: webhook %s is registered, run `clinic webhook delete` before polling",
			config.ErrConfig, info.URL)
	}
	b, sessions := d.newBot(api)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx, d.cfg.Telegram.PollTimeout) })
	g.Go(func() error {
		sessions.RunSweeper(ctx, sweepEvery, b.NotifyExpired)
		return nil
	})
	d.serveMetrics(ctx, g)
	return g.Wait()
}

// serveMetrics поднимает /health и /metrics для ролей без веб-сервера.
func (d *deps) serveMetrics(ctx context.Context, g *errgroup.Group) {
	if d.cfg.Metrics.Addr == "" {
		return
	}
	srv := httpx.New(d.cfg.Metrics.Addr, httpx.Options{
		AllowedHosts:  []string{"*"},
		ExposeMetrics: d.cfg.Metrics.Enabled,
	}, d.log, nil)
	g.Go(func() error { return srv.Run(ctx) })
}
