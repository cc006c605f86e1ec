package app

import (
	"sync"

	"quizrank-service/internal/domain"
)

// RankingHub fans persisted ranking documents out to live subscribers, per class.
// It implements ranking.Publisher.
type RankingHub struct {
	mu          sync.RWMutex
	latest      map[string]domain.ClassRankingDocument
	subscribers map[string]map[chan domain.ClassRankingDocument]struct{}
}

func NewRankingHub() *RankingHub {
	return &RankingHub{
		latest:      make(map[string]domain.ClassRankingDocument),
		subscribers: make(map[string]map[chan domain.ClassRankingDocument]struct{}),
	}
}

// PublishRanking records doc as the latest ranking of its class and broadcasts it.
// Older revisions arriving late are dropped.
func (h *RankingHub) PublishRanking(doc domain.ClassRankingDocument) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.latest[doc.ClassID]; ok && prev.Revision > doc.Revision {
		return
	}
	h.latest[doc.ClassID] = doc
	for ch := range h.subscribers[doc.ClassID] {
		select {
		case ch <- doc:
		default:
			// Slow subscriber: replace its stale pending update with the newest one.
			select {
			case <-ch:
			default:
			}
			ch <- doc
		}
	}
}

// Subscribe returns a channel receiving ranking updates of classID. The latest known
// ranking, if any, is delivered first. The caller must invoke cancel to avoid leaks.
func (h *RankingHub) Subscribe(classID string) (<-chan domain.ClassRankingDocument, func()) {
	ch := make(chan domain.ClassRankingDocument, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[classID]
	if !ok {
		subs = make(map[chan domain.ClassRankingDocument]struct{})
		h.subscribers[classID] = subs
	}
	subs[ch] = struct{}{}
	if doc, ok := h.latest[classID]; ok {
		ch <- doc
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[classID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, classID)
		}
	}
	return ch, cancel
}

// Subscribers returns the number of live subscriptions for classID.
func (h *RankingHub) Subscribers(classID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[classID])
}
