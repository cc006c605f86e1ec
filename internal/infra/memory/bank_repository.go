package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizrank-service/internal/domain"
)

// BankLoader fetches question banks from a backing store (e.g., Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, moduleID string) (domain.QuestionBank, error)
}

// BankRepository caches question banks with TTL to avoid repeated DB hits.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedBank
}

type cachedBank struct {
	bank      domain.QuestionBank
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBank),
	}
}

func (r *BankRepository) GetBank(ctx context.Context, moduleID string) (domain.QuestionBank, error) {
	if bank, ok := r.cached(moduleID); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(moduleID, func() (any, error) {
		if bank, ok := r.cached(moduleID); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, moduleID)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		r.mu.Lock()
		r.cache[moduleID] = cachedBank{
			bank:      bank,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

// Invalidate drops the cached bank of moduleID.
func (r *BankRepository) Invalidate(moduleID string) {
	r.mu.Lock()
	delete(r.cache, moduleID)
	r.mu.Unlock()
}

func (r *BankRepository) cached(moduleID string) (domain.QuestionBank, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[moduleID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.QuestionBank{}, false
	}
	return entry.bank, true
}

// ttlWithJitterLocked adds up to 10% jitter to spread expirations. r.mu must be held.
func (r *BankRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticBankLoader is a loader backed by an in-memory map, keyed by module id.
type StaticBankLoader struct {
	banks map[string]domain.QuestionBank
}

func NewStaticBankLoader(banks ...domain.QuestionBank) *StaticBankLoader {
	l := &StaticBankLoader{banks: make(map[string]domain.QuestionBank, len(banks))}
	for _, b := range banks {
		l.banks[b.ModuleID] = b
	}
	return l
}

func (l *StaticBankLoader) LoadBank(_ context.Context, moduleID string) (domain.QuestionBank, error) {
	if bank, ok := l.banks[moduleID]; ok {
		return bank, nil
	}
	return domain.QuestionBank{}, domain.ErrBankNotFound
}

// ModuleIDs lists the modules the loader holds banks for.
func (l *StaticBankLoader) ModuleIDs() []string {
	ids := make([]string, 0, len(l.banks))
	for id := range l.banks {
		ids = append(ids, id)
	}
	return ids
}
