package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/vetclinic-bot/internal/domain/announcements"
	"github.com/Spok95/vetclinic-bot/internal/domain/users"
	"github.com/Spok95/vetclinic-bot/internal/infra/db"
	"github.com/Spok95/vetclinic-bot/internal/jobs"
)

const KindDeliver = "announcement.deliver"

var (
	ErrForbidden    = errors.New("only admins and moderators can broadcast")
	ErrEmptyMessage = errors.New("empty announcement")
)

type Announcements interface {
	CreateAndDispatch(ctx context.Context, title, message string, sentBy *int64, chats []int64, each announcements.EachFunc) (*announcements.Announcement, *announcements.Dispatch, error)
	Get(ctx context.Context, id int64) (*announcements.Announcement, error)
	Dispatch(ctx context.Context, id int64, requestedBy *int64, chats []int64, each announcements.EachFunc) (*announcements.Dispatch, error)
	IsDelivered(ctx context.Context, dispatchID, chatID int64) (bool, error)
	MarkDelivered(ctx context.Context, dispatchID, chatID int64) error
}

type Users interface {
	GetByChatID(ctx context.Context, chatID int64) (*users.User, error)
	ListBroadcastChats(ctx context.Context) ([]int64, error)
}

type Enqueuer interface {
	EnqueueTx(ctx context.Context, tx db.Querier, kind string, payload any) (jobs.Job, error)
	Publish(ctx context.Context, js ...jobs.Job) int
}

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// DeliverPayload: одна доставка объявления в один чат в рамках одной отправки.
type DeliverPayload struct {
	AnnouncementID int64 `json:"announcement_id"`
	DispatchID     int64 `json:"dispatch_id"`
	ChatID         int64 `json:"chat_id"`
}

type Service struct {
	anns  Announcements
	users Users
	queue Enqueuer
	log   *slog.Logger
}

func NewService(anns Announcements, usersRepo Users, queue Enqueuer, log *slog.Logger) *Service {
	return &Service{anns: anns, users: usersRepo, queue: queue, log: log.With("component", "broadcast")}
}

// Announce обрабатывает /announce: проверка прав, создание объявления и первая отправка.
// Возвращает число поставленных доставок.
func (s *Service) Announce(ctx context.Context, senderChatID int64, text string) (int, error) {
	sender, err := s.users.GetByChatID(ctx, senderChatID)
	if err != nil {
		return 0, fmt.Errorf("lookup sender: %w", err)
	}
	if sender == nil || !sender.IsActive || !sender.Role.CanAnnounce() {
		return 0, ErrForbidden
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyMessage
	}

	chats, err := s.users.ListBroadcastChats(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recipients: %w", err)
	}

	var queued []jobs.Job
	a, d, err := s.anns.CreateAndDispatch(ctx, titleOf(text), text, &sender.ID, chats, s.enqueueEach(&queued))
	if err != nil {
		return 0, fmt.Errorf("create announcement: %w", err)
	}

	s.queue.Publish(ctx, queued...)
	s.log.Info("announcement created", "announcement_id", a.ID, "dispatch_id", d.ID,
		"sender_id", sender.ID, "recipients", len(queued))
	return len(queued), nil
}

// Resend ставит повторную отправку каждого объявления. Текст объявлений не меняется,
// каждая отправка получает свою запись и свой набор доставок.
func (s *Service) Resend(ctx context.Context, requestedBy *int64, ids ...int64) (int, error) {
	total := 0
	for _, id := range ids {
		n, err := s.dispatch(ctx, id, requestedBy)
		if err != nil {
			return total, fmt.Errorf("announcement %d: %w", id, err)
		}
		total += n
	}
	return total, nil
}

func (s *Service) dispatch(ctx context.Context, id int64, requestedBy *int64) (int, error) {
	chats, err := s.users.ListBroadcastChats(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recipients: %w", err)
	}

	var queued []jobs.Job
	d, err := s.anns.Dispatch(ctx, id, requestedBy, chats, s.enqueueEach(&queued))
	if err != nil {
		return 0, err
	}

	s.queue.Publish(ctx, queued...)
	s.log.Info("announcement dispatched", "announcement_id", id, "dispatch_id", d.ID, "recipients", len(queued))
	return len(queued), nil
}

// enqueueEach ставит доставку в транзакции отправки и копит задачи для публикации после commit.
func (s *Service) enqueueEach(queued *[]jobs.Job) announcements.EachFunc {
	return func(ctx context.Context, tx db.Querier, d announcements.Dispatch, chatID int64) error {
		j, err := s.queue.EnqueueTx(ctx, tx, KindDeliver, DeliverPayload{
			AnnouncementID: d.AnnouncementID,
			DispatchID:     d.ID,
			ChatID:         chatID,
		})
		if err != nil {
			return err
		}
		*queued = append(*queued, j)
		return nil
	}
}

// Deliver: обработчик задачи announcement.deliver. Повторная доставка той же задачи
// не шлёт сообщение второй раз.
func (s *Service) Deliver(sender Sender) jobs.Handler {
	return func(ctx context.Context, j jobs.Job) error {
		var p DeliverPayload
		if err := j.Decode(&p); err != nil {
			return err
		}

		done, err := s.anns.IsDelivered(ctx, p.DispatchID, p.ChatID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		a, err := s.anns.Get(ctx, p.AnnouncementID)
		if err != nil {
			return err
		}
		if a == nil {
			return jobs.Permanent(fmt.Errorf("%w: %d", announcements.ErrNotFound, p.AnnouncementID))
		}

		if _, err := sender.Send(tgbotapi.NewMessage(p.ChatID, a.Message)); err != nil {
			return classifySendError(err)
		}
		return s.anns.MarkDelivered(ctx, p.DispatchID, p.ChatID)
	}
}

// classifySendError: 403 (бот заблокирован) и 400 (чат не найден) повтор не исправит.
func classifySendError(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		switch tgErr.Code {
		case 400, 403:
			return jobs.Permanent(err)
		}
	}
	return err
}

func titleOf(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	r := []rune(strings.TrimSpace(line))
	if len(r) > 64 {
		r = append(r[:61], []rune("...")...)
	}
	return string(r)
}
