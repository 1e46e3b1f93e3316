package bot

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/vetclinic-bot/internal/auth"
	"github.com/Spok95/vetclinic-bot/internal/dialog"
	"github.com/Spok95/vetclinic-bot/internal/domain/users"
)

// Попыток ввода пароля существующего аккаунта.
const maxPasswordAttempts = 3

// AWAITING_PHONE: принимаем только собственный контакт отправителя.
func (b *Bot) onPhone(ctx context.Context, sess dialog.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	c := msg.Contact
	if c == nil {
		b.askPhone(chatID, sess.Lang, "share_phone")
		return
	}
	if msg.From == nil || c.UserID != msg.From.ID {
		b.askPhone(chatID, sess.Lang, "invalid_phone")
		return
	}
	phone, err := users.NormalizePhone(c.PhoneNumber)
	if err != nil {
		b.askPhone(chatID, sess.Lang, "invalid_phone")
		return
	}

	u, err := b.users.GetByPhone(ctx, phone)
	if err != nil {
		b.log.Error("lookup phone failed", "chat_id", chatID, "err", err)
		b.reply(chatID, tr(sess.Lang, "internal_error"))
		return
	}
	if u != nil && (u.Role.IsStaff() || !u.IsActive) {
		key := "clients_only"
		if !u.Role.IsStaff() {
			key = "already_registered"
		}
		b.sessions.Set(dialog.Session{ChatID: chatID, State: dialog.StateAborted})
		b.sendRemoveKeyboard(chatID, tr(sess.Lang, key))
		return
	}
	if u != nil {
		// клиент уже есть: имя не спрашиваем, чат привяжем после проверки пароля
		sess.Phone = phone
		sess.Existing = true
		sess.State = dialog.StateAwaitingPassword
		b.sessions.Set(sess)
		b.sendRemoveKeyboard(chatID, tr(sess.Lang, "existing_account"))
		b.askPassword(chatID, sess.Lang, "ask_existing_password")
		return
	}

	sess.Phone = phone
	sess.State = dialog.StateAwaitingName
	b.sessions.Set(sess)
	b.sendRemoveKeyboard(chatID, tr(sess.Lang, "ask_name"))
}

// AWAITING_NAME: "Имя Фамилия" одной строкой, фамилия может отсутствовать.
func (b *Bot) onName(sess dialog.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.Contact != nil {
		b.reply(chatID, tr(sess.Lang, "ask_name"))
		return
	}
	first, last, ok := parseName(msg.Text)
	if !ok {
		b.reply(chatID, tr(sess.Lang, "invalid_name"))
		return
	}
	sess.FirstName, sess.LastName = first, last
	sess.State = dialog.StateAwaitingPassword
	b.sessions.Set(sess)
	b.askPassword(chatID, sess.Lang, "ask_password")
}

// AWAITING_PASSWORD: единственный переход, который пишет в базу.
func (b *Bot) onPassword(ctx context.Context, sess dialog.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	password := msg.Text
	if msg.Contact != nil || utf8.RuneCountInString(password) < auth.MinPasswordLen {
		b.askPassword(chatID, sess.Lang, "invalid_password")
		return
	}
	if sess.Existing {
		b.linkExisting(ctx, sess, msg)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		b.log.Error("hash password failed", "chat_id", chatID, "err", err)
		b.reply(chatID, tr(sess.Lang, "internal_error"))
		return
	}

	u, err := b.users.RegisterClient(ctx, users.Registration{
		Phone:        sess.Phone,
		FirstName:    sess.FirstName,
		LastName:     sess.LastName,
		PasswordHash: hash,
		ChatID:       chatID,
		Language:     sess.Lang,
	})
	if errors.Is(err, users.ErrAlreadyRegistered) {
		b.sessions.Set(dialog.Session{ChatID: chatID, State: dialog.StateAborted})
		b.reply(chatID, tr(sess.Lang, "already_registered"))
		return
	}
	if err != nil {
		// сессия остаётся на вводе пароля, можно попробовать ещё раз
		b.log.Error("register client failed", "chat_id", chatID, "err", err)
		b.reply(chatID, tr(sess.Lang, "internal_error"))
		return
	}

	sess.State = dialog.StateRegistered
	b.sessions.Set(sess)
	b.deleteMessage(chatID, msg.MessageID)
	b.log.Info("client registered", "user_id", u.ID, "chat_id", chatID)

	text := tr(sess.Lang, "registered_success")
	if link, err := b.loginLink(u.ID); err != nil {
		b.log.Error("login link failed", "user_id", u.ID, "err", err)
	} else {
		text += "\n" + tr(sess.Lang, "login_link") + link
	}
	b.reply(chatID, text)
}

// linkExisting привязывает чат к существующему клиенту, если пароль совпал.
func (b *Bot) linkExisting(ctx context.Context, sess dialog.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	u, err := b.users.GetByPhone(ctx, sess.Phone)
	if err != nil {
		b.log.Error("lookup phone failed", "chat_id", chatID, "err", err)
		b.reply(chatID, tr(sess.Lang, "internal_error"))
		return
	}
	if u == nil || u.Role.IsStaff() || !u.IsActive {
		b.sessions.Set(dialog.Session{ChatID: chatID, State: dialog.StateAborted})
		b.reply(chatID, tr(sess.Lang, "clients_only"))
		return
	}

	b.deleteMessage(chatID, msg.MessageID)
	if !auth.CheckPassword(u.PasswordHash, msg.Text) {
		sess.Attempts++
		if sess.Attempts >= maxPasswordAttempts {
			b.log.Warn("link attempts exhausted", "chat_id", chatID, "user_id", u.ID)
			b.sessions.Set(dialog.Session{ChatID: chatID, State: dialog.StateAborted})
			b.reply(chatID, tr(sess.Lang, "too_many_attempts"))
			return
		}
		b.sessions.Set(sess)
		b.askPassword(chatID, sess.Lang, "wrong_password")
		return
	}

	err = b.users.LinkChat(ctx, sess.Phone, chatID, sess.Lang)
	if errors.Is(err, users.ErrAlreadyRegistered) {
		// чат уже привязан к другому аккаунту
		b.sessions.Set(dialog.Session{ChatID: chatID, State: dialog.StateAborted})
		b.reply(chatID, tr(sess.Lang, "already_registered"))
		return
	}
	if err != nil {
		b.log.Error("link chat failed", "chat_id", chatID, "user_id", u.ID, "err", err)
		b.reply(chatID, tr(sess.Lang, "internal_error"))
		return
	}

	sess.State = dialog.StateRegistered
	b.sessions.Set(sess)
	b.log.Info("client linked", "user_id", u.ID, "chat_id", chatID)

	text := tr(sess.Lang, "account_linked")
	if link, err := b.loginLink(u.ID); err != nil {
		b.log.Error("login link failed", "user_id", u.ID, "err", err)
	} else {
		text += "\n" + tr(sess.Lang, "login_link") + link
	}
	b.reply(chatID, text)
}

func (b *Bot) loginLink(userID int64) (string, error) {
	token, err := b.tokens.LoginToken(userID)
	if err != nil {
		return "", err
	}
	return auth.LoginURL(b.loginURL, token)
}

func parseName(text string) (first, last string, ok bool) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "", "", false
	}
	for _, w := range words {
		if !isNameWord(w) {
			return "", "", false
		}
	}
	return words[0], strings.Join(words[1:], " "), true
}

func isNameWord(w string) bool {
	letters := 0
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == '-' || r == '\'' || r == '’':
		default:
			return false
		}
	}
	return letters > 0
}
