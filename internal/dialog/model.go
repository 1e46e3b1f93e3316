package dialog

import "time"

type State string

const (
	// Онбординг клиента
	StateAwaitingPhone    State = "AWAITING_PHONE"
	StateAwaitingName     State = "AWAITING_NAME"
	StateAwaitingPassword State = "AWAITING_PASSWORD"

	// Терминальные: сессия после них удаляется
	StateRegistered State = "REGISTERED"
	StateAborted    State = "ABORTED"
)

func (s State) Terminal() bool { return s == StateRegistered || s == StateAborted }

// Session: черновик регистрации одного чата. Живёт только в памяти процесса.
type Session struct {
	ChatID    int64
	UserID    int64 // Telegram user id владельца чата
	State     State
	Lang      string
	Phone     string
	FirstName string
	LastName  string
	// номер уже в базе: пароль сверяется с сохранённым, чат привязывается к аккаунту
	Existing  bool
	Attempts  int
	UpdatedAt time.Time
}
