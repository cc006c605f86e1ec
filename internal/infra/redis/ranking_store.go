package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"quizrank-service/internal/domain"
)

const rankingIndexKey = "rankings:index"

// RankingStore persists class ranking documents as JSON under ranking:{classID}.
// Save is an optimistic transaction: WATCH the key, compare revisions, MULTI/EXEC.
type RankingStore struct {
	client *redis.Client
}

func NewRankingStore(client *redis.Client) *RankingStore {
	return &RankingStore{client: client}
}

func (s *RankingStore) Get(ctx context.Context, classID string) (domain.ClassRankingDocument, error) {
	return readRanking(ctx, s.client, classID)
}

func (s *RankingStore) Save(ctx context.Context, doc domain.ClassRankingDocument) (domain.ClassRankingDocument, error) {
	key := rankingKey(doc.ClassID)
	var saved domain.ClassRankingDocument

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		stored, err := readRanking(ctx, tx, doc.ClassID)
		switch {
		case errors.Is(err, domain.ErrRankingNotFound):
		case err != nil:
			return err
		default:
			current = stored.Revision
		}
		if current != doc.Revision {
			return fmt.Errorf("%w: class %s at revision %d, write based on %d",
				domain.ErrRankingConflict, doc.ClassID, current, doc.Revision)
		}

		next := doc
		next.Revision = current + 1
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode ranking %s: %w", doc.ClassID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, rankingIndexKey, doc.ClassID)
			return nil
		})
		if err != nil {
			return err
		}
		saved = next
		return nil
	}, key)

	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, redis.TxFailedErr):
		return domain.ClassRankingDocument{}, fmt.Errorf("%w: class %s changed during write", domain.ErrRankingConflict, doc.ClassID)
	case errors.Is(err, domain.ErrRankingConflict), errors.Is(err, domain.ErrPersistence):
		return domain.ClassRankingDocument{}, err
	default:
		return domain.ClassRankingDocument{}, fmt.Errorf("%w: save ranking %s: %w", domain.ErrPersistence, doc.ClassID, err)
	}
}

// List returns every ranking document ordered by class id.
func (s *RankingStore) List(ctx context.Context) ([]domain.ClassRankingDocument, error) {
	classIDs, err := s.client.SMembers(ctx, rankingIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list rankings: %w", domain.ErrPersistence, err)
	}
	sort.Strings(classIDs)

	out := make([]domain.ClassRankingDocument, 0, len(classIDs))
	for _, classID := range classIDs {
		doc, err := readRanking(ctx, s.client, classID)
		if errors.Is(err, domain.ErrRankingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRanking(ctx context.Context, c getter, classID string) (domain.ClassRankingDocument, error) {
	raw, err := c.Get(ctx, rankingKey(classID)).Bytes()
	if isNil(err) {
		return domain.ClassRankingDocument{}, domain.ErrRankingNotFound
	}
	if err != nil {
		return domain.ClassRankingDocument{}, fmt.Errorf("%w: get ranking %s: %w", domain.ErrPersistence, classID, err)
	}
	var doc domain.ClassRankingDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.ClassRankingDocument{}, fmt.Errorf("decode ranking %s: %w", classID, err)
	}
	return doc, nil
}

func rankingKey(classID string) string {
	return "ranking:" + classID
}
