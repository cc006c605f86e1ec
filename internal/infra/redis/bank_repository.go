package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizrank-service/internal/domain"
)

// BankLoader fetches question banks from a backing store (e.g., Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, moduleID string) (domain.QuestionBank, error)
}

// BankRepository caches question banks in Redis and falls back to a loader on cache miss.
// Banks are stored as JSON: SET bank:{moduleID} {json} EX ttl
type BankRepository struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBankRepository(client *redis.Client, loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *BankRepository) GetBank(ctx context.Context, moduleID string) (domain.QuestionBank, error) {
	if bank, ok := r.cached(ctx, moduleID); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(moduleID, func() (any, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := r.cached(ctx, moduleID); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, moduleID)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		payload, err := json.Marshal(bank)
		if err != nil {
			return domain.QuestionBank{}, fmt.Errorf("encode bank %s: %w", moduleID, err)
		}
		// A failed cache write only costs a reload later.
		_ = r.client.Set(ctx, bankKey(moduleID), payload, r.ttlWithJitter()).Err()
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

// Invalidate drops the cached bank of moduleID.
func (r *BankRepository) Invalidate(ctx context.Context, moduleID string) error {
	if err := r.client.Del(ctx, bankKey(moduleID)).Err(); err != nil {
		return fmt.Errorf("%w: invalidate bank %s: %w", domain.ErrPersistence, moduleID, err)
	}
	return nil
}

func (r *BankRepository) cached(ctx context.Context, moduleID string) (domain.QuestionBank, bool) {
	raw, err := r.client.Get(ctx, bankKey(moduleID)).Bytes()
	if err != nil {
		return domain.QuestionBank{}, false
	}
	var bank domain.QuestionBank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return domain.QuestionBank{}, false
	}
	return bank, true
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func bankKey(moduleID string) string {
	return "bank:" + moduleID
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
