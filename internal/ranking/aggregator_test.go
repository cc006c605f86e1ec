package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizrank-service/internal/domain"
)

func seedClass(scores *fakeScores) {
	scores.addStudent("stu-ana", "Ana Souza", 82.5, map[string]float64{"m1": 90, "m2": 75})
	scores.addStudent("stu-bruno", "Bruno Lima", 64, map[string]float64{"m1": 64})
	scores.addStudent("stu-carla", "Carla Dias", 82.5, map[string]float64{"m1": 70, "m2": 95})
	scores.addStudent("stu-davi", "", 0, nil)
	scores.addClass("class-1", "Nutrição A", "stu-ana", "stu-bruno", "stu-carla", "stu-davi")
}

func entryIDs(entries []domain.ClassRankingEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.StudentID
	}
	return out
}

func TestBuildFullRanksAndSummarizes(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	pub := &recordingPublisher{}
	agg := newTestAggregator(scores, rankings)
	agg.SetPublisher(pub)

	doc, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	assert.Equal(t, "class-1", doc.ClassID)
	assert.Equal(t, "Nutrição A", doc.ClassName)
	assert.Equal(t, 4, doc.StudentsCount)
	// Ties keep enrollment order.
	assert.Equal(t, []string{"stu-ana", "stu-carla", "stu-bruno", "stu-davi"}, entryIDs(doc.Rankings))
	assertDenseRanks(t, doc.Rankings)

	ana := doc.Rankings[0]
	assert.Equal(t, "Ana", ana.StudentName)
	assert.Equal(t, "-ANA", ana.AnonymousID)
	assert.Equal(t, 2, ana.CompletedModules)
	assert.True(t, ana.IsActive)
	assert.Equal(t, "stu-ana@example.com", ana.Email)
	assert.Equal(t, testNow.Add(-time.Hour), ana.LastActivity)

	davi := doc.Rankings[3]
	assert.Equal(t, DefaultStudentName, davi.StudentName)
	assert.Zero(t, davi.CompletedModules)

	assert.InDelta(t, 57.3, doc.Metadata.AverageScore, 1e-9) // 229/4 = 57.25
	assert.InDelta(t, 50.0, doc.Metadata.CompletionRate, 1e-9)
	assert.Equal(t, 4, doc.Metadata.ActiveStudents)
	assert.Equal(t, SchemaVersion, doc.Metadata.Version)
	assert.Equal(t, testNow, doc.Metadata.LastFullRebuild)
	assert.Equal(t, int64(1), doc.Revision)

	require.Len(t, pub.docs, 1)
	assert.Equal(t, doc, pub.docs[0])
}

func TestBuildFullSkipsUnreadableStudents(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	scores.addClass("class-1", "", "stu-ghost")
	scores.scoreErrs["stu-bruno"] = fmt.Errorf("%w: timeout", domain.ErrPersistence)

	doc, err := newTestAggregator(scores, rankings).BuildFull(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-ana", "stu-carla", "stu-davi"}, entryIDs(doc.Rankings))
	assertDenseRanks(t, doc.Rankings)
}

func TestBuildFullMissingScoreIsZero(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	scores.addStudent("stu-eva", "Eva", 50, nil)
	delete(scores.scores, "stu-eva")
	scores.addClass("class-2", "B", "stu-eva")

	doc, err := newTestAggregator(scores, rankings).BuildFull(context.Background(), "class-2")
	require.NoError(t, err)
	require.Len(t, doc.Rankings, 1)
	assert.Zero(t, doc.Rankings[0].TotalNormalizedScore)
	assert.Equal(t, testNow, doc.Rankings[0].LastActivity)
}

func TestBuildFullUnknownClass(t *testing.T) {
	rankings := newFakeRankings()
	_, err := newTestAggregator(newFakeScores(), rankings).BuildFull(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrClassNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Zero(t, rankings.saveCount())
}

func TestBuildFullIsIdempotent(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	agg := newTestAggregator(scores, rankings)

	first, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)
	second, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	assert.Equal(t, first.Revision+1, second.Revision)
	second.Revision = first.Revision
	assert.Equal(t, first, second)
}

func TestBuildFullCancelledWritesNothing(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAggregator(scores, rankings).BuildFull(ctx, "class-1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rankings.saveCount())
}

func TestBuildFullReadsInBatches(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	var ids []string
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("stu-%d", i)
		scores.addStudent(id, "Student "+id, float64(i*10), nil)
		ids = append(ids, id)
	}
	scores.addClass("class-3", "C", ids...)

	settings := DefaultSettings()
	settings.BatchPause = 20 * time.Millisecond
	agg := NewAggregatorWithClock(scores, rankings, settings, discardLogger(), time.Now)

	start := time.Now()
	doc, err := agg.BuildFull(context.Background(), "class-3")
	require.NoError(t, err)
	assert.Len(t, doc.Rankings, 7)
	// 7 students in batches of 3 means two pauses.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, "stu-6", doc.Rankings[0].StudentID)
}

func TestUpsertStudentReranks(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	agg := newTestAggregator(scores, rankings)
	_, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	doc, err := agg.UpsertStudent(context.Background(), "class-1", "stu-bruno", domain.ScoreSnapshot{
		NormalizedScore: 140,
		ModuleScores:    map[string]float64{"m1": 100, "m2": 100, "m3": 69.9},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"stu-bruno", "stu-ana", "stu-carla", "stu-davi"}, entryIDs(doc.Rankings))
	assertDenseRanks(t, doc.Rankings)
	bruno := doc.Rankings[0]
	assert.Equal(t, 100.0, bruno.TotalNormalizedScore)
	assert.Equal(t, 2, bruno.CompletedModules)
	assert.Equal(t, testNow, bruno.LastActivity)
	assert.Equal(t, int64(2), doc.Revision)
	assert.InDelta(t, 66.3, doc.Metadata.AverageScore, 1e-9) // 265/4 = 66.25
	assert.InDelta(t, 75.0, doc.Metadata.CompletionRate, 1e-9)
	assert.Equal(t, testNow, doc.Metadata.LastFullRebuild)
}

func TestUpsertStudentAppendsNewcomer(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	agg := newTestAggregator(scores, rankings)
	_, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	scores.addStudent("stu-fabio", "Fábio Reis", 0, nil)
	doc, err := agg.UpsertStudent(context.Background(), "class-1", "stu-fabio", domain.ScoreSnapshot{NormalizedScore: 82.5})
	require.NoError(t, err)

	require.Len(t, doc.Rankings, 5)
	// Equal scores keep their order; the newcomer goes after existing ties.
	assert.Equal(t, []string{"stu-ana", "stu-carla", "stu-fabio", "stu-bruno", "stu-davi"}, entryIDs(doc.Rankings))
	assert.Equal(t, "Fábio", doc.Rankings[2].StudentName)
	assertDenseRanks(t, doc.Rankings)
}

func TestUpsertStudentBuildsMissingRanking(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	doc, err := newTestAggregator(scores, rankings).UpsertStudent(context.Background(), "class-1", "stu-ana", domain.ScoreSnapshot{NormalizedScore: 10})
	require.NoError(t, err)
	// The build reads the source data, not the snapshot.
	assert.Len(t, doc.Rankings, 4)
	assert.Equal(t, 82.5, doc.Rankings[0].TotalNormalizedScore)
}

func TestUpsertStudentUnknownStudent(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	agg := newTestAggregator(scores, rankings)
	_, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	_, err = agg.UpsertStudent(context.Background(), "class-1", "stu-nobody", domain.ScoreSnapshot{NormalizedScore: 50})
	require.ErrorIs(t, err, domain.ErrStudentNotFound)
	assert.Equal(t, domain.KindSkippable, domain.KindOf(err))
	assert.Equal(t, 1, rankings.saveCount())
}

func TestUpsertStudentRetriesConflicts(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	agg := newTestAggregator(scores, rankings)
	_, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	rankings.conflictsLeft = 2
	doc, err := agg.UpsertStudent(context.Background(), "class-1", "stu-davi", domain.ScoreSnapshot{NormalizedScore: 99})
	require.NoError(t, err)
	assert.Equal(t, "stu-davi", doc.Rankings[0].StudentID)

	rankings.conflictsLeft = 10
	_, err = agg.UpsertStudent(context.Background(), "class-1", "stu-davi", domain.ScoreSnapshot{NormalizedScore: 10})
	require.ErrorIs(t, err, domain.ErrRankingConflict)
	assert.True(t, domain.IsRetryable(err))
}

func TestBuildFullRecomputesAfterConflict(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	agg := newTestAggregator(scores, rankings)
	_, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	rankings.beforeSave = func() {
		scores.addStudent("stu-davi", "Davi Rocha", 97, map[string]float64{"m1": 100, "m2": 94})
		_, err := agg.UpsertStudent(context.Background(), "class-1", "stu-davi", domain.ScoreSnapshot{NormalizedScore: 97})
		require.NoError(t, err)
	}

	doc, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.Revision)
	require.NotEmpty(t, doc.Rankings)
	assert.Equal(t, "stu-davi", doc.Rankings[0].StudentID)
	assert.Equal(t, 97.0, doc.Rankings[0].TotalNormalizedScore)
}

func TestConcurrentUpsertsLoseNoUpdates(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	scores.addClass("class-9", "Z")
	settings := DefaultSettings()
	settings.MaxConflictRetries = 100
	agg := NewAggregatorWithClock(scores, rankings, settings, discardLogger(), func() time.Time { return testNow })
	_, err := agg.BuildFull(context.Background(), "class-9")
	require.NoError(t, err)

	const n = 12
	for i := 0; i < n; i++ {
		scores.addStudent(fmt.Sprintf("stu-%02d", i), "S", 0, nil)
	}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := agg.UpsertStudent(context.Background(), "class-9", fmt.Sprintf("stu-%02d", i), domain.ScoreSnapshot{NormalizedScore: float64(i)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := rankings.Get(context.Background(), "class-9")
	require.NoError(t, err)
	assert.Len(t, doc.Rankings, n)
	assertDenseRanks(t, doc.Rankings)
}

func TestRemoveStudentFromAllRankings(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	scores.addClass("class-2", "B", "stu-carla", "stu-bruno")
	scores.addClass("class-3", "C", "stu-bruno")
	agg := newTestAggregator(scores, rankings)
	for _, id := range []string{"class-1", "class-2", "class-3"} {
		_, err := agg.BuildFull(context.Background(), id)
		require.NoError(t, err)
	}

	affected, err := agg.RemoveStudent(context.Background(), "stu-carla")
	require.NoError(t, err)
	assert.Equal(t, []string{"class-1", "class-2"}, affected)

	doc, err := rankings.Get(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-ana", "stu-bruno", "stu-davi"}, entryIDs(doc.Rankings))
	assertDenseRanks(t, doc.Rankings)
	assert.Equal(t, 3, doc.StudentsCount)
	assert.InDelta(t, 48.8, doc.Metadata.AverageScore, 1e-9) // 146.5/3 = 48.83

	untouched, err := rankings.Get(context.Background(), "class-3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), untouched.Revision)
}

func TestRemoveStudentNotRanked(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	agg := newTestAggregator(scores, rankings)
	_, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	affected, err := agg.RemoveStudent(context.Background(), "stu-nobody")
	require.NoError(t, err)
	assert.Empty(t, affected)
	assert.Equal(t, 1, rankings.saveCount())
}

func TestRemoveStudentReportsFailures(t *testing.T) {
	scores, rankings := newFakeScores(), newFakeRankings()
	seedClass(scores)
	agg := newTestAggregator(scores, rankings)
	_, err := agg.BuildFull(context.Background(), "class-1")
	require.NoError(t, err)

	rankings.conflictsLeft = 100
	affected, err := agg.RemoveStudent(context.Background(), "stu-ana")
	assert.Empty(t, affected)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRankingConflict))
}
