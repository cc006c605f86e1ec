package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"quizrank-service/internal/domain"
)

// QuizStore keeps generated quizzes and submitted attempts in Redis.
//   - quizzes: SET quiz:{quizID} {json} EX ttl, gone once the TTL passes
//   - attempts: RPUSH attempts:{studentID}:{moduleID} {json}, kept
type QuizStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewQuizStore(client *redis.Client, ttl time.Duration) *QuizStore {
	return &QuizStore{client: client, ttl: ttl}
}

func (s *QuizStore) SaveQuiz(ctx context.Context, q domain.RandomizedQuiz) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quiz %s: %w", q.ID, err)
	}
	if err := s.client.Set(ctx, quizKey(q.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: save quiz %s: %w", domain.ErrPersistence, q.ID, err)
	}
	return nil
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.RandomizedQuiz, error) {
	raw, err := s.client.Get(ctx, quizKey(quizID)).Bytes()
	if isNil(err) {
		return domain.RandomizedQuiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.RandomizedQuiz{}, fmt.Errorf("%w: get quiz %s: %w", domain.ErrPersistence, quizID, err)
	}
	var q domain.RandomizedQuiz
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.RandomizedQuiz{}, fmt.Errorf("decode quiz %s: %w", quizID, err)
	}
	return q, nil
}

func (s *QuizStore) SaveAttempt(ctx context.Context, a domain.QuizAttempt) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", a.ID, err)
	}
	if err := s.client.RPush(ctx, attemptsKey(a.StudentID, a.ModuleID), payload).Err(); err != nil {
		return fmt.Errorf("%w: save attempt %s: %w", domain.ErrPersistence, a.ID, err)
	}
	return nil
}

// ListAttempts returns the attempts of studentID on moduleID, oldest first.
func (s *QuizStore) ListAttempts(ctx context.Context, studentID, moduleID string) ([]domain.QuizAttempt, error) {
	raws, err := s.client.LRange(ctx, attemptsKey(studentID, moduleID), 0, -1).Result()
	if err != nil && !isNil(err) {
		return nil, fmt.Errorf("%w: list attempts: %w", domain.ErrPersistence, err)
	}
	out := make([]domain.QuizAttempt, 0, len(raws))
	for _, raw := range raws {
		var a domain.QuizAttempt
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func quizKey(quizID string) string {
	return "quiz:" + quizID
}

func attemptsKey(studentID, moduleID string) string {
	return "attempts:" + studentID + ":" + moduleID
}
