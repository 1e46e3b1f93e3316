package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRetrying Status = "retrying"
	StatusDone     Status = "done"
	StatusDead     Status = "dead"
)

// Finished: повторная доставка такой задачи ничего не делает.
func (s Status) Finished() bool { return s == StatusDone || s == StatusDead }

var (
	ErrUnknownKind = errors.New("unknown job kind")
	// ErrPermanent: повторять бессмысленно, задача сразу уходит в dead-letter.
	ErrPermanent = errors.New("permanent failure")
)

// Permanent помечает ошибку обработчика как неповторяемую.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

type Job struct {
	ID          uuid.UUID
	Kind        string
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	MaxAttempts int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// Decode разбирает payload; кривой payload не исправится повтором.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", j.Kind, err))
	}
	return nil
}

// Message: то, что уходит в брокер. Источник правды по задаче: строка в jobs.
type Message struct {
	JobID   uuid.UUID `json:"job_id"`
	Kind    string    `json:"kind"`
	Attempt int       `json:"attempt,omitempty"`
}

func (j Job) Message() Message { return Message{JobID: j.ID, Kind: j.Kind, Attempt: j.Attempts} }
