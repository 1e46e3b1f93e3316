package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// contactKeyboard: нижняя панель с запросом контакта.
func contactKeyboard(lang string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(tr(lang, "btn_share_phone"))),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(tr(lang, "btn_cancel"))),
	)
	kb.OneTimeKeyboard = true
	return kb
}

func navKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tr(lang, "btn_cancel"), "nav:cancel"),
		),
	)
}
