package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quizrank-service/internal/domain"
)

// RankingStore is an in-memory ranking.RankingRepository with revision checks.
type RankingStore struct {
	mu   sync.RWMutex
	docs map[string]domain.ClassRankingDocument
}

func NewRankingStore() *RankingStore {
	return &RankingStore{docs: make(map[string]domain.ClassRankingDocument)}
}

func (s *RankingStore) Get(_ context.Context, classID string) (domain.ClassRankingDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[classID]
	if !ok {
		return domain.ClassRankingDocument{}, domain.ErrRankingNotFound
	}
	return cloneRanking(doc), nil
}

func (s *RankingStore) Save(_ context.Context, doc domain.ClassRankingDocument) (domain.ClassRankingDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.docs[doc.ClassID].Revision
	if current != doc.Revision {
		return domain.ClassRankingDocument{}, fmt.Errorf("%w: class %s at revision %d, write based on %d",
			domain.ErrRankingConflict, doc.ClassID, current, doc.Revision)
	}
	doc.Revision = current + 1
	doc = cloneRanking(doc)
	s.docs[doc.ClassID] = doc
	return cloneRanking(doc), nil
}

// List returns every ranking document ordered by class id.
func (s *RankingStore) List(_ context.Context) ([]domain.ClassRankingDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ClassRankingDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, cloneRanking(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassID < out[j].ClassID })
	return out, nil
}

func cloneRanking(doc domain.ClassRankingDocument) domain.ClassRankingDocument {
	doc.Rankings = append([]domain.ClassRankingEntry(nil), doc.Rankings...)
	return doc
}
