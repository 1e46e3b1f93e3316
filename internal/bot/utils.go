package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

/*** HELPERS ***/

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) error {
	resp := tgbotapi.NewCallback(cb.ID, text)
	resp.ShowAlert = alert
	_, err := b.api.Request(resp)
	return err
}

func (b *Bot) askPhone(chatID int64, lang, key string) {
	m := tgbotapi.NewMessage(chatID, tr(lang, key))
	m.ReplyMarkup = contactKeyboard(lang)
	b.send(m)
}

func (b *Bot) askPassword(chatID int64, lang, key string) {
	m := tgbotapi.NewMessage(chatID, tr(lang, key))
	m.ReplyMarkup = navKeyboard(lang)
	b.send(m)
}

func (b *Bot) sendRemoveKeyboard(chatID int64, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(m)
}

// clearMarkup убрать inline-кнопки у сообщения, текст оставляем как есть
func (b *Bot) clearMarkup(chatID int64, messageID int) {
	rm := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if _, err := b.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, rm)); err != nil {
		b.log.Debug("clear markup failed", "chat_id", chatID, "err", err)
	}
}

// deleteMessage: best effort, пароль не должен оставаться в истории чата.
func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debug("delete message failed", "chat_id", chatID, "err", err)
	}
}
