package announcements

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("announcement not found")

// Announcement: текст рассылки. Содержимое после создания не меняется,
// повторные отправки фиксируются только в метаданных.
type Announcement struct {
	ID          int64
	Title       string
	Message     string
	SentBy      *int64
	CreatedAt   time.Time
	SentAt      *time.Time
	ResentAt    *time.Time
	TargetCount int
}

// Dispatch: одна отправка объявления (первая или повторная).
type Dispatch struct {
	ID             int64
	AnnouncementID int64
	RequestedBy    *int64
	TargetCount    int
	CreatedAt      time.Time
}

type Stat struct {
	AnnouncementID int64
	Title          string
	Dispatches     int
	Targeted       int
	Delivered      int
}
