package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// BotAPILogger отдаёт внутренние сообщения tgbotapi в slog (tgbotapi.SetLogger).
type BotAPILogger struct {
	Log *slog.Logger
}

func (l BotAPILogger) Println(v ...interface{}) {
	l.Log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l BotAPILogger) Printf(format string, v ...interface{}) {
	l.Log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
