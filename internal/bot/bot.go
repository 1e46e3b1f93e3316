package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"

	"github.com/Spok95/vetclinic-bot/internal/dialog"
	"github.com/Spok95/vetclinic-bot/internal/domain/users"
	"github.com/Spok95/vetclinic-bot/internal/infra/metrics"
)

// API: часть tgbotapi.BotAPI, которой пользуется бот.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

type Users interface {
	GetByChatID(ctx context.Context, chatID int64) (*users.User, error)
	GetByPhone(ctx context.Context, phone string) (*users.User, error)
	RegisterClient(ctx context.Context, reg users.Registration) (*users.User, error)
	LinkChat(ctx context.Context, phone string, chatID int64, lang string) error
}

type Announcer interface {
	Announce(ctx context.Context, senderChatID int64, text string) (int, error)
}

type TokenIssuer interface {
	LoginToken(userID int64) (string, error)
}

const (
	seenLimit  = 1024
	chatStripe = 64
)

type Bot struct {
	api       API
	log       *slog.Logger
	users     Users
	sessions  *dialog.Store
	announcer Announcer
	tokens    TokenIssuer
	loginURL  string

	// update_id, уже обработанные этим процессом
	seenMu    sync.Mutex
	seen      map[int]struct{}
	seenOrder []int

	// апдейты одного чата обрабатываются по очереди
	chatMu [chatStripe]sync.Mutex
}

func New(api API, log *slog.Logger, usersRepo Users, sessions *dialog.Store,
	announcer Announcer, tokens TokenIssuer, loginURL string) *Bot {

	return &Bot{
		api: api, log: log, users: usersRepo, sessions: sessions,
		announcer: announcer, tokens: tokens, loginURL: loginURL,
		seen: make(map[int]struct{}, seenLimit),
	}
}

// HandleUpdate: единая точка входа для polling и webhook.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if !b.markSeen(upd.UpdateID) {
		b.log.Debug("duplicate update skipped", "update_id", upd.UpdateID)
		return
	}

	chat := upd.FromChat()
	if chat == nil {
		return
	}
	mu := &b.chatMu[uint64(chat.ID)%chatStripe]
	mu.Lock()
	defer mu.Unlock()

	switch {
	case upd.Message != nil:
		b.onMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		b.onCallback(ctx, upd.CallbackQuery)
	}
}

func (b *Bot) markSeen(id int) bool {
	b.seenMu.Lock()
	defer b.seenMu.Unlock()
	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}
	b.seenOrder = append(b.seenOrder, id)
	if len(b.seenOrder) > seenLimit {
		delete(b.seen, b.seenOrder[0])
		b.seenOrder = b.seenOrder[1:]
	}
	return true
}

// Run: long polling. Offset сдвигается только после обработки апдейта,
// поэтому после падения апдейт может прийти повторно.
func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	if err := b.SetCommands(); err != nil {
		b.log.Warn("set commands failed", "err", err)
	}

	offset := 0
	backoff := pollBackoff()
	for ctx.Err() == nil {
		u := tgbotapi.NewUpdate(offset)
		u.Timeout = timeoutSec
		updates, err := b.api.GetUpdates(u)
		if err != nil {
			wait, _ := backoff.Next()
			b.log.Warn("get updates failed", "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		backoff = pollBackoff()

		for _, upd := range updates {
			if ctx.Err() != nil {
				return nil
			}
			b.HandleUpdate(ctx, upd)
			metrics.BotUpdates.WithLabelValues("polling").Inc()
			offset = upd.UpdateID + 1
		}
	}
	return nil
}

func pollBackoff() retry.Backoff {
	return retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
}

// SetCommands регистрирует меню команд в Telegram.
func (b *Bot) SetCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Register as a clinic client"},
		tgbotapi.BotCommand{Command: "announce", Description: "Broadcast a message (staff only)"},
		tgbotapi.BotCommand{Command: "cancel", Description: "Cancel registration"},
		tgbotapi.BotCommand{Command: "help", Description: "Show commands"},
	)
	_, err := b.api.Request(cfg)
	return err
}

// NotifyExpired сообщает чату, что регистрация прервана по таймауту.
func (b *Bot) NotifyExpired(sess dialog.Session) {
	m := tgbotapi.NewMessage(sess.ChatID, tr(sess.Lang, "session_expired"))
	m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(m)
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}
