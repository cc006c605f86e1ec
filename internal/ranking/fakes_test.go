package ranking

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"quizrank-service/internal/domain"
)

var testNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScores struct {
	mu          sync.Mutex
	classes     map[string]domain.ClassInfo
	enrollments map[string][]string
	students    map[string]domain.StudentProfile
	scores      map[string]domain.UnifiedScore
	scoreErrs   map[string]error
	studentGets int
}

func newFakeScores() *fakeScores {
	return &fakeScores{
		classes:     map[string]domain.ClassInfo{},
		enrollments: map[string][]string{},
		students:    map[string]domain.StudentProfile{},
		scores:      map[string]domain.UnifiedScore{},
		scoreErrs:   map[string]error{},
	}
}

func (f *fakeScores) addClass(id, name string, studentIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes[id] = domain.ClassInfo{ID: id, Name: name, Status: domain.ClassStatusActive}
	f.enrollments[id] = append(f.enrollments[id], studentIDs...)
}

func (f *fakeScores) addStudent(id, name string, score float64, modules map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students[id] = domain.StudentProfile{ID: id, DisplayName: name, Email: id + "@example.com"}
	f.scores[id] = domain.UnifiedScore{
		StudentID:       id,
		NormalizedScore: score,
		ModuleScores:    modules,
		LastActivity:    testNow.Add(-time.Hour),
	}
}

func (f *fakeScores) GetClass(_ context.Context, classID string) (domain.ClassInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[classID]
	if !ok {
		return domain.ClassInfo{}, domain.ErrClassNotFound
	}
	return c, nil
}

func (f *fakeScores) ListActiveClasses(_ context.Context) ([]domain.ClassInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ClassInfo
	for _, c := range f.classes {
		if c.Status == domain.ClassStatusActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeScores) ActiveStudentIDs(_ context.Context, classID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.enrollments[classID]...), nil
}

func (f *fakeScores) ActiveClassIDs(_ context.Context, studentID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for classID, ids := range f.enrollments {
		for _, id := range ids {
			if id == studentID {
				out = append(out, classID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeScores) GetStudent(_ context.Context, studentID string) (domain.StudentProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.studentGets++
	p, ok := f.students[studentID]
	if !ok {
		return domain.StudentProfile{}, domain.ErrStudentNotFound
	}
	return p, nil
}

func (f *fakeScores) GetScore(_ context.Context, studentID string) (domain.UnifiedScore, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scoreErrs[studentID]; err != nil {
		return domain.UnifiedScore{}, false, err
	}
	s, ok := f.scores[studentID]
	return s, ok, nil
}

type fakeRankings struct {
	mu            sync.Mutex
	docs          map[string]domain.ClassRankingDocument
	saves         int
	conflictsLeft int
	// beforeSave runs once, ahead of the next Save, to interleave a concurrent writer.
	beforeSave func()
}

func newFakeRankings() *fakeRankings {
	return &fakeRankings{docs: map[string]domain.ClassRankingDocument{}}
}

func (f *fakeRankings) Get(_ context.Context, classID string) (domain.ClassRankingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[classID]
	if !ok {
		return domain.ClassRankingDocument{}, domain.ErrRankingNotFound
	}
	d.Rankings = append([]domain.ClassRankingEntry(nil), d.Rankings...)
	return d, nil
}

func (f *fakeRankings) Save(_ context.Context, doc domain.ClassRankingDocument) (domain.ClassRankingDocument, error) {
	f.mu.Lock()
	hook := f.beforeSave
	f.beforeSave = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return domain.ClassRankingDocument{}, domain.ErrRankingConflict
	}
	if f.docs[doc.ClassID].Revision != doc.Revision {
		return domain.ClassRankingDocument{}, domain.ErrRankingConflict
	}
	doc.Revision++
	doc.Rankings = append([]domain.ClassRankingEntry(nil), doc.Rankings...)
	f.docs[doc.ClassID] = doc
	f.saves++
	return doc, nil
}

func (f *fakeRankings) List(_ context.Context) ([]domain.ClassRankingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ClassRankingDocument, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassID < out[j].ClassID })
	return out, nil
}

func (f *fakeRankings) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type recordingPublisher struct {
	mu   sync.Mutex
	docs []domain.ClassRankingDocument
}

func (p *recordingPublisher) PublishRanking(doc domain.ClassRankingDocument) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs = append(p.docs, doc)
}

func newTestAggregator(scores *fakeScores, rankings *fakeRankings) *Aggregator {
	settings := DefaultSettings()
	settings.BatchPause = time.Millisecond
	return NewAggregatorWithClock(scores, rankings, settings, discardLogger(), func() time.Time { return testNow })
}

func assertDenseRanks(t interface {
	Helper()
	Errorf(string, ...any)
}, entries []domain.ClassRankingEntry) {
	t.Helper()
	for i, e := range entries {
		if e.ClassRank != i+1 {
			t.Errorf("entry %d (%s) has rank %d", i, e.StudentID, e.ClassRank)
		}
		if i > 0 && entries[i-1].TotalNormalizedScore < e.TotalNormalizedScore {
			t.Errorf("entries not sorted descending at %d", i)
		}
	}
}
