package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizrank-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore and app.AttemptStore.
// Generated quizzes expire after ttl; attempts are kept.
type QuizStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.RWMutex
	quizzes  map[string]storedQuiz
	attempts map[string][]domain.QuizAttempt
}

type storedQuiz struct {
	quiz      domain.RandomizedQuiz
	expiresAt time.Time
}

func NewQuizStore(ttl time.Duration) *QuizStore {
	return NewQuizStoreWithClock(ttl, time.Now)
}

// NewQuizStoreWithClock is test-only for deterministic expiry.
func NewQuizStoreWithClock(ttl time.Duration, now func() time.Time) *QuizStore {
	return &QuizStore{
		ttl:      ttl,
		clock:    now,
		quizzes:  make(map[string]storedQuiz),
		attempts: make(map[string][]domain.QuizAttempt),
	}
}

func (s *QuizStore) SaveQuiz(_ context.Context, q domain.RandomizedQuiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = s.clock().Add(s.ttl)
	}
	s.quizzes[q.ID] = storedQuiz{quiz: q, expiresAt: expiresAt}
	s.sweepLocked()
	return nil
}

func (s *QuizStore) GetQuiz(_ context.Context, quizID string) (domain.RandomizedQuiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.quizzes[quizID]
	if !ok || s.expiredLocked(entry) {
		return domain.RandomizedQuiz{}, domain.ErrQuizNotFound
	}
	return entry.quiz, nil
}

func (s *QuizStore) SaveAttempt(_ context.Context, a domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey(a.StudentID, a.ModuleID)
	s.attempts[key] = append(s.attempts[key], a)
	return nil
}

// ListAttempts returns the attempts of studentID on moduleID, oldest first.
func (s *QuizStore) ListAttempts(_ context.Context, studentID, moduleID string) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.QuizAttempt(nil), s.attempts[attemptKey(studentID, moduleID)]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *QuizStore) expiredLocked(entry storedQuiz) bool {
	return !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock())
}

func (s *QuizStore) sweepLocked() {
	for id, entry := range s.quizzes {
		if s.expiredLocked(entry) {
			delete(s.quizzes, id)
		}
	}
}

func attemptKey(studentID, moduleID string) string {
	return studentID + "\x00" + moduleID
}
