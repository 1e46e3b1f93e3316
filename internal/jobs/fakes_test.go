package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/vetclinic-bot/internal/infra/db"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*Job
	deadMoves int
}

func newMemStore() *memStore { return &memStore{jobs: map[uuid.UUID]*Job{}} }

func (s *memStore) Insert(_ context.Context, _ db.Querier, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.Status = StatusPending
	j.CreatedAt = time.Now()
	s.jobs[j.ID] = &j
	return nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) MarkPublished(_ context.Context, ids ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		if j, ok := s.jobs[id]; ok && j.PublishedAt == nil {
			j.PublishedAt = &now
		}
	}
	return nil
}

func (s *memStore) set(id uuid.UUID, st Status, attempts int, lastErr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status.Finished() {
		return false
	}
	j.Status, j.Attempts, j.LastError = st, attempts, lastErr
	return true
}

func (s *memStore) MarkDone(_ context.Context, id uuid.UUID, attempts int) error {
	s.set(id, StatusDone, attempts, "")
	return nil
}

func (s *memStore) MarkRetrying(_ context.Context, id uuid.UUID, attempts int, lastErr string) error {
	s.set(id, StatusRetrying, attempts, lastErr)
	return nil
}

func (s *memStore) MarkDead(_ context.Context, id uuid.UUID, attempts int, lastErr string) (bool, error) {
	moved := s.set(id, StatusDead, attempts, lastErr)
	if moved {
		s.mu.Lock()
		s.deadMoves++
		s.mu.Unlock()
	}
	return moved, nil
}

func (s *memStore) Unpublished(_ context.Context, olderThan time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if j.PublishedAt == nil && j.Status == StatusPending && j.CreatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memStore) PurgeDone(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, j := range s.jobs {
		if j.Status == StatusDone && j.UpdatedAt.Before(before) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountDead(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == StatusDead {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListDead(context.Context, int) ([]Job, error) { return nil, nil }

// fakeBroker копит опубликованные и отложенные сообщения.
type fakeBroker struct {
	mu        sync.Mutex
	published []Message
	retries   []Message
	attempts  []int
	failPub   bool
	failRetry bool
}

func (b *fakeBroker) Publish(_ context.Context, m Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPub {
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, m)
	return nil
}

func (b *fakeBroker) Retry(_ context.Context, m Message, attempt int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failRetry {
		return errors.New("broker returned unroutable message")
	}
	b.retries = append(b.retries, m)
	b.attempts = append(b.attempts, attempt)
	return nil
}

func (b *fakeBroker) popRetry() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.retries) == 0 {
		return Message{}, false
	}
	m := b.retries[0]
	b.retries = b.retries[1:]
	return m, true
}
