package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/vetclinic-bot/internal/auth"
	"github.com/Spok95/vetclinic-bot/internal/broadcast"
	"github.com/Spok95/vetclinic-bot/internal/dialog"
	"github.com/Spok95/vetclinic-bot/internal/domain/users"
)

const loginBase = "https://clinic.example/login"

type fakeAPI struct {
	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	requests  []tgbotapi.Chattable
	updates   [][]tgbotapi.Update
	offsets   []int
	onDrained func()
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, cfg.Offset)
	if len(f.updates) == 0 {
		f.mu.Unlock()
		if f.onDrained != nil {
			f.onDrained()
		}
		return nil, nil
	}
	batch := f.updates[0]
	f.updates = f.updates[1:]
	f.mu.Unlock()
	return batch, nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastText() string {
	ts := f.texts()
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1]
}

type fakeUsers struct {
	mu         sync.Mutex
	byPhone    map[string]*users.User
	byChat     map[int64]*users.User
	registered []users.Registration
	linked     map[int64]string
	failWith   error
	linkErr    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byPhone: map[string]*users.User{}, byChat: map[int64]*users.User{}, linked: map[int64]string{}}
}

func (f *fakeUsers) LinkChat(_ context.Context, phone string, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	u, ok := f.byPhone[phone]
	if !ok {
		return users.ErrNotFound
	}
	f.linked[chatID] = phone
	f.byChat[chatID] = u
	return nil
}

func (f *fakeUsers) GetByChatID(_ context.Context, chatID int64) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byChat[chatID], nil
}

func (f *fakeUsers) GetByPhone(_ context.Context, phone string) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byPhone[phone], nil
}

func (f *fakeUsers) RegisterClient(_ context.Context, reg users.Registration) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if _, ok := f.byPhone[reg.Phone]; ok {
		return nil, users.ErrAlreadyRegistered
	}
	u := &users.User{
		ID: int64(len(f.registered) + 1), Phone: reg.Phone,
		FirstName: reg.FirstName, LastName: reg.LastName,
		PasswordHash: reg.PasswordHash, Role: users.RoleClient, IsActive: true,
	}
	f.registered = append(f.registered, reg)
	f.byPhone[reg.Phone] = u
	f.byChat[reg.ChatID] = u
	return u, nil
}

type fakeAnnouncer struct {
	calls []string
	err   error
}

func (f *fakeAnnouncer) Announce(_ context.Context, _ int64, text string) (int, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

type fixture struct {
	bot       *Bot
	api       *fakeAPI
	users     *fakeUsers
	sessions  *dialog.Store
	announcer *fakeAnnouncer
	nextID    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:       &fakeAPI{},
		users:     newFakeUsers(),
		sessions:  dialog.NewStore(15 * time.Minute),
		announcer: &fakeAnnouncer{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.bot = New(f.api, log, f.users, f.sessions, f.announcer, auth.NewIssuer("test-secret-key-0123456789"), loginBase)
	return f
}

func (f *fixture) message(chatID int64, m tgbotapi.Message) tgbotapi.Update {
	f.nextID++
	m.MessageID = f.nextID
	m.Chat = &tgbotapi.Chat{ID: chatID}
	if m.From == nil {
		m.From = &tgbotapi.User{ID: chatID, LanguageCode: "en"}
	}
	return tgbotapi.Update{UpdateID: f.nextID, Message: &m}
}

func (f *fixture) text(chatID int64, text string) {
	f.bot.HandleUpdate(context.Background(), f.message(chatID, tgbotapi.Message{Text: text}))
}

func (f *fixture) command(chatID int64, text string) {
	cmd := strings.Fields(text)[0]
	f.bot.HandleUpdate(context.Background(), f.message(chatID, tgbotapi.Message{
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}))
}

func (f *fixture) contact(chatID, ownerID int64, phone string) {
	f.bot.HandleUpdate(context.Background(), f.message(chatID, tgbotapi.Message{
		Contact: &tgbotapi.Contact{PhoneNumber: phone, FirstName: "Ana", UserID: ownerID},
	}))
}

func (f *fixture) state(chatID int64) dialog.State {
	s, ok := f.sessions.Get(chatID)
	if !ok {
		return ""
	}
	return s.State
}

func TestRegistration_HappyPath(t *testing.T) {
	f := newFixture(t)
	const chat = int64(42)

	f.contact(chat, chat, "+998 90 123-45-67")
	require.Equal(t, dialog.StateAwaitingName, f.state(chat))
	assert.Equal(t, tr("en", "ask_name"), f.api.lastText())

	f.text(chat, "Ana Pérez")
	require.Equal(t, dialog.StateAwaitingPassword, f.state(chat))
	s, _ := f.sessions.Get(chat)
	assert.Equal(t, "Ana", s.FirstName)
	assert.Equal(t, "Pérez", s.LastName)

	f.text(chat, "secret1")

	require.Len(t, f.users.registered, 1)
	reg := f.users.registered[0]
	assert.Equal(t, "+998901234567", reg.Phone)
	assert.Equal(t, chat, reg.ChatID)
	assert.True(t, auth.CheckPassword(reg.PasswordHash, "secret1"))
	assert.Equal(t, users.RoleClient, f.users.byChat[chat].Role)

	_, ok := f.sessions.Get(chat)
	assert.False(t, ok, "session must be discarded after registration")

	last := f.api.lastText()
	assert.Contains(t, last, tr("en", "registered_success"))
	assert.Contains(t, last, loginBase+"?token=")

	links := 0
	for _, txt := range f.api.texts() {
		if strings.Contains(txt, loginBase) {
			links++
		}
	}
	assert.Equal(t, 1, links)

	var deleted bool
	for _, r := range f.api.requests {
		if _, ok := r.(tgbotapi.DeleteMessageConfig); ok {
			deleted = true
		}
	}
	assert.True(t, deleted, "password message should be deleted")
}

func TestAwaitingPhone_RepromptsOnUnexpectedInput(t *testing.T) {
	f := newFixture(t)
	const chat = int64(7)

	f.command(chat, "/start")
	require.Equal(t, dialog.StateAwaitingPhone, f.state(chat))

	inputs := []func(){
		func() { f.text(chat, "hello") },
		func() { f.text(chat, "+998901234567") },
		func() { f.text(chat, "") },
	}
	for _, in := range inputs {
		before := len(f.api.texts())
		in()
		assert.Equal(t, dialog.StateAwaitingPhone, f.state(chat))
		assert.Len(t, f.api.texts(), before+1)
		assert.Equal(t, tr("en", "share_phone"), f.api.lastText())
	}
	assert.Empty(t, f.users.registered)
}

func TestAwaitingPhone_ForeignContactRejected(t *testing.T) {
	f := newFixture(t)
	const chat = int64(7)

	f.command(chat, "/start")
	f.contact(chat, 999, "+998901234567")

	assert.Equal(t, dialog.StateAwaitingPhone, f.state(chat))
	assert.Equal(t, tr("en", "invalid_phone"), f.api.lastText())
}

func TestAwaitingPhone_ExistingPhone(t *testing.T) {
	tests := []struct {
		name   string
		role   users.Role
		active bool
		want   string
	}{
		{"disabled client", users.RoleClient, false, "already_registered"},
		{"doctor", users.RoleDoctor, true, "clients_only"},
		{"admin", users.RoleAdmin, true, "clients_only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.users.byPhone["+998901234567"] = &users.User{ID: 1, Phone: "+998901234567", Role: tt.role, IsActive: tt.active}

			f.contact(5, 5, "+998901234567")

			_, ok := f.sessions.Get(5)
			assert.False(t, ok)
			assert.Equal(t, tr("en", tt.want), f.api.lastText())
			assert.Empty(t, f.users.registered)
			assert.Empty(t, f.users.linked)
		})
	}
}

func existingClient(t *testing.T, f *fixture, password string) *users.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &users.User{ID: 77, Phone: "+998901234567", FirstName: "Ana", PasswordHash: hash, Role: users.RoleClient, IsActive: true}
	f.users.byPhone[u.Phone] = u
	return u
}

func TestExistingClient_LinksChatAfterPassword(t *testing.T) {
	f := newFixture(t)
	const chat = int64(21)
	existingClient(t, f, "oldpass1")

	f.contact(chat, chat, "+998901234567")

	require.Equal(t, dialog.StateAwaitingPassword, f.state(chat), "name step is skipped")
	s, _ := f.sessions.Get(chat)
	assert.True(t, s.Existing)
	assert.Contains(t, f.api.texts(), tr("en", "existing_account"))
	assert.Equal(t, tr("en", "ask_existing_password"), f.api.lastText())
	assert.Empty(t, f.users.linked, "nothing is written before the password step")

	f.text(chat, "oldpass1")

	assert.Equal(t, map[int64]string{chat: "+998901234567"}, f.users.linked)
	assert.Empty(t, f.users.registered)
	_, ok := f.sessions.Get(chat)
	assert.False(t, ok)
	last := f.api.lastText()
	assert.Contains(t, last, tr("en", "account_linked"))
	assert.Contains(t, last, loginBase+"?token=")

	var deleted bool
	for _, r := range f.api.requests {
		if _, ok := r.(tgbotapi.DeleteMessageConfig); ok {
			deleted = true
		}
	}
	assert.True(t, deleted, "password message should be deleted")
}

func TestExistingClient_WrongPassword(t *testing.T) {
	f := newFixture(t)
	const chat = int64(22)
	existingClient(t, f, "oldpass1")
	f.contact(chat, chat, "+998901234567")

	for i := 1; i < maxPasswordAttempts; i++ {
		f.text(chat, "guess-"+string(rune('0'+i)))
		assert.Equal(t, dialog.StateAwaitingPassword, f.state(chat))
		assert.Equal(t, tr("en", "wrong_password"), f.api.lastText())
	}

	f.text(chat, "guess-last")
	_, ok := f.sessions.Get(chat)
	assert.False(t, ok)
	assert.Equal(t, tr("en", "too_many_attempts"), f.api.lastText())
	assert.Empty(t, f.users.linked)
}

func TestExistingClient_ChatTakenByAnotherAccount(t *testing.T) {
	f := newFixture(t)
	const chat = int64(23)
	existingClient(t, f, "oldpass1")
	f.users.linkErr = users.ErrAlreadyRegistered
	f.contact(chat, chat, "+998901234567")

	f.text(chat, "oldpass1")

	_, ok := f.sessions.Get(chat)
	assert.False(t, ok)
	assert.Equal(t, tr("en", "already_registered"), f.api.lastText())
}

func TestExistingClient_LinkFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	const chat = int64(24)
	existingClient(t, f, "oldpass1")
	f.users.linkErr = errors.New("db down")
	f.contact(chat, chat, "+998901234567")

	f.text(chat, "oldpass1")
	assert.Equal(t, dialog.StateAwaitingPassword, f.state(chat))
	assert.Equal(t, tr("en", "internal_error"), f.api.lastText())

	f.users.linkErr = nil
	f.text(chat, "oldpass1")
	assert.Len(t, f.users.linked, 1)
}

func TestAwaitingName_Validation(t *testing.T) {
	f := newFixture(t)
	const chat = int64(8)
	f.contact(chat, chat, "+998901234567")

	for _, bad := range []string{"", "   ", "R2D2", "Ana 123"} {
		f.text(chat, bad)
		assert.Equal(t, dialog.StateAwaitingName, f.state(chat), "input %q", bad)
		assert.Equal(t, tr("en", "invalid_name"), f.api.lastText())
	}

	// повторный контакт (дубликат апдейта) просто повторяет вопрос
	f.contact(chat, chat, "+998901234567")
	assert.Equal(t, dialog.StateAwaitingName, f.state(chat))
	assert.Equal(t, tr("en", "ask_name"), f.api.lastText())

	f.text(chat, "O'Neil")
	assert.Equal(t, dialog.StateAwaitingPassword, f.state(chat))
	s, _ := f.sessions.Get(chat)
	assert.Equal(t, "O'Neil", s.FirstName)
	assert.Empty(t, s.LastName)
}

func TestAwaitingPassword_ShortNeverRegisters(t *testing.T) {
	f := newFixture(t)
	const chat = int64(9)
	f.contact(chat, chat, "+998901234567")
	f.text(chat, "Ana Pérez")

	for _, pw := range []string{"", "a", "12345", "пар"} {
		f.text(chat, pw)
		assert.Equal(t, dialog.StateAwaitingPassword, f.state(chat), "password %q", pw)
		assert.Equal(t, tr("en", "invalid_password"), f.api.lastText())
	}
	assert.Empty(t, f.users.registered)
}

func TestAwaitingPassword_StoreFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	const chat = int64(10)
	f.users.failWith = errors.New("db down")
	f.contact(chat, chat, "+998901234567")
	f.text(chat, "Ana Pérez")

	f.text(chat, "secret1")
	assert.Equal(t, dialog.StateAwaitingPassword, f.state(chat))
	assert.Equal(t, tr("en", "internal_error"), f.api.lastText())

	f.users.failWith = nil
	f.text(chat, "secret1")
	require.Len(t, f.users.registered, 1)
}

func TestAwaitingPassword_AlreadyRegisteredRace(t *testing.T) {
	f := newFixture(t)
	const chat = int64(11)
	f.contact(chat, chat, "+998901234567")
	f.text(chat, "Ana Pérez")
	f.users.failWith = users.ErrAlreadyRegistered

	f.text(chat, "secret1")

	_, ok := f.sessions.Get(chat)
	assert.False(t, ok)
	assert.Equal(t, tr("en", "already_registered"), f.api.lastText())
}

func TestStart_LinkedChat(t *testing.T) {
	f := newFixture(t)
	f.users.byChat[3] = &users.User{ID: 3, Role: users.RoleClient}

	f.command(3, "/start")

	_, ok := f.sessions.Get(3)
	assert.False(t, ok)
	assert.Equal(t, tr("en", "already_registered"), f.api.lastText())
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	const chat = int64(12)
	f.contact(chat, chat, "+998901234567")

	f.command(chat, "/cancel")
	_, ok := f.sessions.Get(chat)
	assert.False(t, ok)
	assert.Equal(t, tr("en", "cancelled"), f.api.lastText())

	// после отмены любое сообщение начинает онбординг заново
	f.text(chat, "hi")
	assert.Equal(t, dialog.StateAwaitingPhone, f.state(chat))
}

func TestCancel_InlineButton(t *testing.T) {
	f := newFixture(t)
	const chat = int64(13)
	f.contact(chat, chat, "+998901234567")
	f.text(chat, "Ana")

	f.nextID++
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: f.nextID,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb1",
			From:    &tgbotapi.User{ID: chat},
			Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: chat}},
			Data:    "nav:cancel",
		},
	})

	_, ok := f.sessions.Get(chat)
	assert.False(t, ok)
	assert.Equal(t, tr("en", "cancelled"), f.api.lastText())
}

func TestAnnounce(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"denied", broadcast.ErrForbidden, "not_allowed"},
		{"empty", broadcast.ErrEmptyMessage, "announce_usage"},
		{"failure", errors.New("boom"), "internal_error"},
		{"ok", nil, "broadcast_started"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.announcer.err = tt.err

			f.command(20, "/announce hello")

			assert.Equal(t, []string{"hello"}, f.announcer.calls)
			assert.Equal(t, tr("en", tt.want), f.api.lastText())
			_, ok := f.sessions.Get(20)
			assert.False(t, ok, "announce must not open a session")
		})
	}
}

func TestAnnounce_DoesNotTouchOnboarding(t *testing.T) {
	f := newFixture(t)
	f.announcer.err = broadcast.ErrForbidden
	const chat = int64(21)
	f.contact(chat, chat, "+998901234567")

	f.command(chat, "/announce hello")
	assert.Equal(t, dialog.StateAwaitingName, f.state(chat))
}

func TestDuplicateUpdateSkipped(t *testing.T) {
	f := newFixture(t)
	upd := f.message(30, tgbotapi.Message{Text: "hi"})

	f.bot.HandleUpdate(context.Background(), upd)
	sent := len(f.api.texts())
	f.bot.HandleUpdate(context.Background(), upd)

	assert.Len(t, f.api.texts(), sent)
}

func TestLanguageFromTelegram(t *testing.T) {
	f := newFixture(t)
	f.bot.HandleUpdate(context.Background(), f.message(31, tgbotapi.Message{
		Text: "salom",
		From: &tgbotapi.User{ID: 31, LanguageCode: "uz"},
	}))
	assert.Equal(t, tr("uz", "share_phone"), f.api.lastText())

	assert.Equal(t, "ru", langOf("ru-RU"))
	assert.Equal(t, "en", langOf("de"))
	assert.Equal(t, "en", langOf(""))
}

func TestRun_AdvancesOffsetAfterHandling(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.api.updates = [][]tgbotapi.Update{{
		f.message(40, tgbotapi.Message{Text: "hi"}),
		f.message(41, tgbotapi.Message{Text: "hi"}),
	}}
	f.api.onDrained = cancel

	require.NoError(t, f.bot.Run(ctx, 1))

	require.Len(t, f.api.offsets, 2)
	assert.Equal(t, 0, f.api.offsets[0])
	assert.Equal(t, f.nextID+1, f.api.offsets[1])
	assert.Equal(t, dialog.StateAwaitingPhone, f.state(40))
	assert.Equal(t, dialog.StateAwaitingPhone, f.state(41))

	_, isCommands := f.api.requests[0].(tgbotapi.SetMyCommandsConfig)
	assert.True(t, isCommands)
}

const hookSecret = "s3cretTokenFromConfig"

func webhookRequest(method, body, secret string) *http.Request {
	r := httptest.NewRequest(method, "/bot/webhook/telegram/", strings.NewReader(body))
	if secret != "" {
		r.Header.Set(SecretHeader, secret)
	}
	return r
}

func TestWebhookHandler(t *testing.T) {
	f := newFixture(t)
	h := f.bot.WebhookHandler(hookSecret)

	t.Run("malformed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, webhookRequest(http.MethodPost, "{not json", hookSecret))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, webhookRequest(http.MethodGet, "", hookSecret))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("ok", func(t *testing.T) {
		body := `{"update_id":500,"message":{"message_id":1,"chat":{"id":77,"type":"private"},"from":{"id":77,"language_code":"ru"},"text":"hi"}}`
		rec := httptest.NewRecorder()
		h(rec, webhookRequest(http.MethodPost, body, hookSecret))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
		assert.Equal(t, dialog.StateAwaitingPhone, f.state(77))
		assert.Equal(t, tr("ru", "share_phone"), f.api.lastText())
	})
}

func TestWebhookHandler_RejectsForgedUpdates(t *testing.T) {
	const adminChat = int64(42)
	body := `{"update_id":900,"message":{"message_id":1,"chat":{"id":42,"type":"private"},"from":{"id":42},` +
		`"text":"/announce pay here: evil.example","entities":[{"type":"bot_command","offset":0,"length":9}]}}`

	tests := []struct {
		name    string
		handler string
		header  string
	}{
		{"no header", hookSecret, ""},
		{"wrong secret", hookSecret, "guessed"},
		{"secret prefix", hookSecret, hookSecret[:8]},
		{"handler without secret", "", "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.users.byChat[adminChat] = &users.User{ID: 1, Role: users.RoleAdmin, IsActive: true}

			rec := httptest.NewRecorder()
			f.bot.WebhookHandler(tt.handler)(rec, webhookRequest(http.MethodPost, body, tt.header))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, f.announcer.calls)
			assert.Empty(t, f.api.texts())
		})
	}

	t.Run("matching secret is handled", func(t *testing.T) {
		f := newFixture(t)
		f.users.byChat[adminChat] = &users.User{ID: 1, Role: users.RoleAdmin, IsActive: true}

		rec := httptest.NewRecorder()
		f.bot.WebhookHandler(hookSecret)(rec, webhookRequest(http.MethodPost, body, hookSecret))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"pay here: evil.example"}, f.announcer.calls)
	})
}

type fakeWebhookAPI struct {
	fakeAPI
	info      tgbotapi.WebhookInfo
	endpoints []string
	params    []tgbotapi.Params
}

func (f *fakeWebhookAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) { return f.info, nil }

func (f *fakeWebhookAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints = append(f.endpoints, endpoint)
	f.params = append(f.params, params)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestWebhookAdmin(t *testing.T) {
	api := &fakeWebhookAPI{info: tgbotapi.WebhookInfo{URL: "https://clinic.example/bot/webhook/telegram/"}}

	require.NoError(t, SetWebhook(api, "https://clinic.example/bot/webhook/telegram/", hookSecret))
	require.NoError(t, DeleteWebhook(api))

	assert.Equal(t, []string{"setWebhook"}, api.endpoints)
	assert.Equal(t, tgbotapi.Params{
		"url":                  "https://clinic.example/bot/webhook/telegram/",
		"secret_token":         hookSecret,
		"drop_pending_updates": "true",
	}, api.params[0])
	require.Len(t, api.requests, 1)
	_, ok := api.requests[0].(tgbotapi.DeleteWebhookConfig)
	assert.True(t, ok)

	info, err := WebhookInfo(api)
	require.NoError(t, err)
	assert.True(t, info.IsSet())

	assert.Error(t, SetWebhook(api, "://bad", hookSecret))
	assert.Error(t, SetWebhook(api, "http://clinic.example/hook", hookSecret))
	assert.ErrorIs(t, SetWebhook(api, "https://clinic.example/hook", ""), ErrNoWebhookSecret)
	assert.Len(t, api.endpoints, 1)
}
