package dialog

import (
	"context"
	"sync"
	"time"
)

// Store: сессии по chat id с таймаутом неактивности. После рестарта процесса
// сессии пропадают, и чат начинает регистрацию заново.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{sessions: map[int64]*Session{}, ttl: ttl, now: time.Now}
}

// Get возвращает копию живой сессии. Просроченная сессия считается прерванной и удаляется.
func (s *Store) Get(chatID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return Session{}, false
	}
	if s.expired(sess) {
		delete(s.sessions, chatID)
		return Session{}, false
	}
	return *sess, true
}

// Set сохраняет сессию. Терминальное состояние удаляет её.
func (s *Store) Set(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.State.Terminal() {
		delete(s.sessions, sess.ChatID)
		return
	}
	sess.UpdatedAt = s.now()
	s.sessions[sess.ChatID] = &sess
}

func (s *Store) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) expired(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.UpdatedAt) > s.ttl
}

// Sweep удаляет просроченные сессии и возвращает их в состоянии ABORTED.
func (s *Store) Sweep() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var aborted []Session
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			out := *sess
			out.State = StateAborted
			aborted = append(aborted, out)
		}
	}
	return aborted
}

// RunSweeper периодически чистит просроченные сессии до отмены ctx.
func (s *Store) RunSweeper(ctx context.Context, every time.Duration, onAbort func(Session)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, sess := range s.Sweep() {
				if onAbort != nil {
					onAbort(sess)
				}
			}
		}
	}
}
