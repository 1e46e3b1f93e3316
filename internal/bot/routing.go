package bot

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/vetclinic-bot/internal/broadcast"
	"github.com/Spok95/vetclinic-bot/internal/dialog"
)

func (b *Bot) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	lang := defaultLang
	if msg.From != nil {
		lang = langOf(msg.From.LanguageCode)
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, lang)
		return
	}

	sess, ok := b.sessions.Get(chatID)
	if !ok {
		u, err := b.users.GetByChatID(ctx, chatID)
		if err != nil {
			b.log.Error("lookup chat failed", "chat_id", chatID, "err", err)
			b.reply(chatID, tr(lang, "internal_error"))
			return
		}
		if u != nil {
			b.reply(chatID, tr(lang, "help"))
			return
		}
		// незнакомый чат: сразу открываем онбординг и обрабатываем сообщение в нём
		sess = b.openSession(msg, lang)
	}

	if strings.TrimSpace(msg.Text) == tr(sess.Lang, "btn_cancel") {
		b.cancel(chatID, sess.Lang)
		return
	}

	switch sess.State {
	case dialog.StateAwaitingPhone:
		b.onPhone(ctx, sess, msg)
	case dialog.StateAwaitingName:
		b.onName(sess, msg)
	case dialog.StateAwaitingPassword:
		b.onPassword(ctx, sess, msg)
	default:
		b.sessions.Reset(chatID)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, lang string) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.sessions.Reset(chatID)
		u, err := b.users.GetByChatID(ctx, chatID)
		if err != nil {
			b.log.Error("lookup chat failed", "chat_id", chatID, "err", err)
			b.reply(chatID, tr(lang, "internal_error"))
			return
		}
		if u != nil {
			b.reply(chatID, tr(lang, "already_registered"))
			return
		}
		sess := b.openSession(msg, lang)
		b.askPhone(chatID, sess.Lang, "share_phone")

	case "cancel":
		if sess, ok := b.sessions.Get(chatID); ok {
			lang = sess.Lang
		}
		b.cancel(chatID, lang)

	case "announce":
		b.handleAnnounce(ctx, msg, lang)

	default:
		b.reply(chatID, tr(lang, "help"))
	}
}

func (b *Bot) handleAnnounce(ctx context.Context, msg *tgbotapi.Message, lang string) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.CommandArguments())

	n, err := b.announcer.Announce(ctx, chatID, text)
	switch {
	case errors.Is(err, broadcast.ErrForbidden):
		b.log.Info("announce denied", "chat_id", chatID)
		b.reply(chatID, tr(lang, "not_allowed"))
	case errors.Is(err, broadcast.ErrEmptyMessage):
		b.reply(chatID, tr(lang, "announce_usage"))
	case err != nil:
		b.log.Error("announce failed", "chat_id", chatID, "err", err)
		b.reply(chatID, tr(lang, "internal_error"))
	default:
		b.log.Info("announce started", "chat_id", chatID, "jobs", n)
		b.reply(chatID, tr(lang, "broadcast_started"))
	}
}

func (b *Bot) onCallback(_ context.Context, cb *tgbotapi.CallbackQuery) {
	if err := b.answerCallback(cb, "", false); err != nil {
		b.log.Debug("answer callback failed", "err", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	switch cb.Data {
	case "nav:cancel":
		lang := defaultLang
		if sess, ok := b.sessions.Get(chatID); ok {
			lang = sess.Lang
		} else if cb.From != nil {
			lang = langOf(cb.From.LanguageCode)
		}
		b.clearMarkup(chatID, cb.Message.MessageID)
		b.cancel(chatID, lang)
	}
}

func (b *Bot) openSession(msg *tgbotapi.Message, lang string) dialog.Session {
	sess := dialog.Session{
		ChatID: msg.Chat.ID,
		State:  dialog.StateAwaitingPhone,
		Lang:   lang,
	}
	if msg.From != nil {
		sess.UserID = msg.From.ID
	}
	b.sessions.Set(sess)
	return sess
}

func (b *Bot) cancel(chatID int64, lang string) {
	b.sessions.Set(dialog.Session{ChatID: chatID, State: dialog.StateAborted})
	m := tgbotapi.NewMessage(chatID, tr(lang, "cancelled"))
	m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(m)
}
