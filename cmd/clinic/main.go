package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Spok95/vetclinic-bot/internal/app"
	"github.com/Spok95/vetclinic-bot/internal/config"
	"github.com/Spok95/vetclinic-bot/internal/infra/logger"
)

const usage = `usage: clinic [--config file] <command>

roles (long-running):
  web | worker | dispatcher | bot      (or APP_ROLE)

admin:
  webhook set|delete|info
  announce resend <id>...
  users role <phone> <role>
  users disable <phone>
  users link <phone> <chat_id>
  deadletters export <file.xlsx>
  migrate
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// command: роль или административная команда из командной строки.
type command struct {
	role   app.Role
	admin  string
	args   []string
	ids    []int64
	chatID int64
}

func parseCommand(args []string, envRole string) (command, error) {
	if len(args) == 0 {
		if envRole == "" {
			return command{}, errors.New("no role given")
		}
		args = []string{envRole}
	}

	switch args[0] {
	case "web", "worker", "dispatcher", "bot":
		role, err := app.ParseRole(args[0])
		return command{role: role}, err

	case "migrate":
		return command{admin: "migrate"}, nil

	case "webhook":
		if len(args) != 2 {
			return command{}, errors.New("webhook: expected set|delete|info")
		}
		switch args[1] {
		case "set", "delete", "info":
			return command{admin: "webhook " + args[1]}, nil
		}
		return command{}, fmt.Errorf("webhook: unknown action %q", args[1])

	case "announce":
		if len(args) < 3 || args[1] != "resend" {
			return command{}, errors.New("announce: expected resend <id>...")
		}
		c := command{admin: "announce resend"}
		for _, s := range args[2:] {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				return command{}, fmt.Errorf("announce: bad id %q", s)
			}
			c.ids = append(c.ids, id)
		}
		return c, nil

	case "users":
		if len(args) < 2 {
			return command{}, errors.New("users: expected role|disable|link")
		}
		want := map[string]int{"role": 4, "disable": 3, "link": 4}
		n, ok := want[args[1]]
		if !ok {
			return command{}, fmt.Errorf("users: unknown action %q", args[1])
		}
		if len(args) != n {
			return command{}, fmt.Errorf("users %s: wrong number of arguments", args[1])
		}
		c := command{admin: "users " + args[1], args: args[2:]}
		if args[1] == "link" {
			id, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil || id == 0 {
				return command{}, fmt.Errorf("users link: bad chat id %q", args[3])
			}
			c.chatID = id
		}
		return c, nil

	case "deadletters":
		if len(args) != 3 || args[1] != "export" {
			return command{}, errors.New("deadletters: expected export <file.xlsx>")
		}
		return command{admin: "deadletters export", args: args[2:]}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", args[0])
}

// run возвращает код выхода: 0 при успехе, 1 при ошибке, 2 при неверном вызове.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("clinic", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	configPath := fs.StringP("config", "c", "config/config.yaml", "path to yaml config (optional)")
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cmd, err := parseCommand(fs.Args(), os.Getenv("APP_ROLE"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "clinic: %v\n\n%s", err, usage)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "err", err)
		return 1
	}
	log := logger.New(cfg.IsDev()).With("role", roleLabel(cmd))
	slog.SetDefault(log)

	if err := execute(ctx, cmd, cfg, log, stdout); err != nil {
		log.Error("fatal", "err", err)
		return 1
	}
	return 0
}

func roleLabel(c command) string {
	if c.role != "" {
		return string(c.role)
	}
	return "admin"
}

func execute(ctx context.Context, c command, cfg config.Config, log *slog.Logger, out io.Writer) error {
	if c.role != "" {
		return app.Run(ctx, cfg, c.role, log)
	}

	a := app.NewAdmin(cfg, log, out)
	switch c.admin {
	case "webhook set":
		return a.WebhookSet()
	case "webhook delete":
		return a.WebhookDelete()
	case "webhook info":
		return a.WebhookInfo()
	case "announce resend":
		return a.AnnounceResend(ctx, c.ids)
	case "users role":
		return a.UsersRole(ctx, c.args[0], c.args[1])
	case "users disable":
		return a.UsersDisable(ctx, c.args[0])
	case "users link":
		return a.UsersLink(ctx, c.args[0], c.chatID)
	case "deadletters export":
		return a.DeadLettersExport(ctx, c.args[0])
	case "migrate":
		return a.Migrate(ctx)
	}
	return fmt.Errorf("unhandled command %q", strings.TrimSpace(c.admin))
}
