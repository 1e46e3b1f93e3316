package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/vetclinic-bot/internal/infra/metrics"
)

const (
	maxUpdateBytes = 1 << 20
	// SecretHeader Telegram добавляет к каждому запросу, если webhook зарегистрирован с secret_token.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// WebhookHandler принимает апдейты от Telegram и синхронно передаёт их в HandleUpdate.
// Запрос без совпадающего секрета отклоняется до разбора тела; пустой secret отклоняет всё.
func (b *Bot) WebhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !secretMatches(r.Header.Get(SecretHeader), secret) {
			b.log.Warn("webhook: secret mismatch", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var upd tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
			b.log.Warn("webhook: bad update", "err", err)
			http.Error(w, "malformed update", http.StatusBadRequest)
			return
		}

		// обрыв соединения со стороны Telegram не должен прерывать регистрацию посередине
		b.HandleUpdate(context.WithoutCancel(r.Context()), upd)
		metrics.BotUpdates.WithLabelValues("webhook").Inc()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

func secretMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// WebhookAPI: вызовы Telegram для административных команд webhook.
type WebhookAPI interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

var ErrNoWebhookSecret = errors.New("webhook secret is empty")

// SetWebhook регистрирует публичный URL вместе с secret_token. WebhookConfig в tgbotapi
// не знает secret_token, поэтому setWebhook вызывается напрямую. Повторный вызов безопасен.
func SetWebhook(api WebhookAPI, link, secret string) error {
	u, err := url.Parse(link)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("webhook url %q: must be an absolute https url", link)
	}
	if secret == "" {
		return ErrNoWebhookSecret
	}
	params := tgbotapi.Params{"url": u.String(), "secret_token": secret}
	params.AddBool("drop_pending_updates", true)
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

func DeleteWebhook(api WebhookAPI) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func WebhookInfo(api WebhookAPI) (tgbotapi.WebhookInfo, error) {
	info, err := api.GetWebhookInfo()
	if err != nil {
		return info, fmt.Errorf("webhook info: %w", err)
	}
	return info, nil
}
