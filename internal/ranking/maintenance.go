package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quizrank-service/internal/domain"
)

// RegenerateReport summarizes a RegenerateAll run.
type RegenerateReport struct {
	TotalClasses int       `json:"totalClasses"`
	Successful   int       `json:"successful"`
	Failed       int       `json:"failed"`
	Errors       []string  `json:"errors,omitempty"`
	FinishedAt   time.Time `json:"timestamp"`
}

// RegenerateAll rebuilds the ranking of every active class, BatchSize classes at a time with
// BatchPause between batches. A failing class does not stop the run.
func (a *Aggregator) RegenerateAll(ctx context.Context) (RegenerateReport, error) {
	classes, err := a.scores.ListActiveClasses(ctx)
	if err != nil {
		return RegenerateReport{}, fmt.Errorf("list active classes: %w", err)
	}
	report := RegenerateReport{TotalClasses: len(classes)}
	a.logger.Info("regenerating rankings", "classes", len(classes))

	var mu sync.Mutex
	size := a.settings.BatchSize
	for start := 0; start < len(classes); start += size {
		if start > 0 {
			if err := sleepCtx(ctx, a.settings.BatchPause); err != nil {
				return report, err
			}
		}
		var g errgroup.Group
		for _, class := range classes[start:min(start+size, len(classes))] {
			class := class
			g.Go(func() error {
				doc, err := a.BuildFull(ctx, class.ID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", class.ID, err))
					a.logger.Error("class ranking rebuild failed", "class_id", class.ID, "error", err)
					return nil
				}
				report.Successful++
				a.logger.Debug("class ranking regenerated", "class_id", class.ID, "students", doc.StudentsCount)
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Strings(report.Errors)
	report.FinishedAt = a.now()
	a.logger.Info("ranking regeneration finished",
		"successful", report.Successful,
		"failed", report.Failed)
	return report, ctx.Err()
}

// Stats describes the stored ranking documents.
type Stats struct {
	TotalRankings           int            `json:"totalRankings"`
	TotalStudents           int            `json:"totalStudents"`
	AverageStudentsPerClass int            `json:"averageStudentsPerClass"`
	OldestUpdate            *time.Time     `json:"oldestUpdate"`
	NewestUpdate            *time.Time     `json:"newestUpdate"`
	VersionDistribution     map[string]int `json:"versionDistribution"`
	GeneratedAt             time.Time      `json:"generatedAt"`
}

// Stats aggregates counts, update range and schema versions over all ranking documents.
func (a *Aggregator) Stats(ctx context.Context) (Stats, error) {
	docs, err := a.rankings.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list rankings: %w", err)
	}
	st := Stats{
		TotalRankings:       len(docs),
		VersionDistribution: map[string]int{},
		GeneratedAt:         a.now(),
	}
	for _, d := range docs {
		st.TotalStudents += d.StudentsCount
		version := d.Metadata.Version
		if version == "" {
			version = "unknown"
		}
		st.VersionDistribution[version]++

		if d.LastUpdated.IsZero() {
			continue
		}
		updated := d.LastUpdated
		if st.OldestUpdate == nil || updated.Before(*st.OldestUpdate) {
			st.OldestUpdate = &updated
		}
		if st.NewestUpdate == nil || updated.After(*st.NewestUpdate) {
			st.NewestUpdate = &updated
		}
	}
	if len(docs) > 0 {
		st.AverageStudentsPerClass = int(math.Round(float64(st.TotalStudents) / float64(len(docs))))
	}
	return st, nil
}

// ScoreMismatch is a student whose stored score differs from the source by more than the
// significance threshold.
type ScoreMismatch struct {
	StudentID string  `json:"studentId"`
	Stored    float64 `json:"stored"`
	Expected  float64 `json:"expected"`
}

// ConsistencyReport compares a stored ranking with a fresh fold of the source data.
type ConsistencyReport struct {
	ClassID         string          `json:"classId"`
	Consistent      bool            `json:"consistent"`
	StoredCount     int             `json:"storedCount"`
	ExpectedCount   int             `json:"expectedCount"`
	Missing         []string        `json:"missing,omitempty"`
	Unexpected      []string        `json:"unexpected,omitempty"`
	ScoreMismatches []ScoreMismatch `json:"scoreMismatches,omitempty"`
	RankMismatches  []string        `json:"rankMismatches,omitempty"`
	MetadataDrift   bool            `json:"metadataDrift"`
}

// Verify recomputes the ranking of classID in memory and compares it with the stored one.
// Nothing is written.
func (a *Aggregator) Verify(ctx context.Context, classID string) (ConsistencyReport, error) {
	stored, err := a.rankings.Get(ctx, classID)
	if err != nil {
		return ConsistencyReport{}, fmt.Errorf("read ranking %s: %w", classID, err)
	}
	expected, err := a.compute(ctx, classID)
	if err != nil {
		return ConsistencyReport{}, err
	}

	rep := ConsistencyReport{
		ClassID:       classID,
		StoredCount:   len(stored.Rankings),
		ExpectedCount: len(expected.Rankings),
	}

	storedByID := make(map[string]domain.ClassRankingEntry, len(stored.Rankings))
	for _, e := range stored.Rankings {
		storedByID[e.StudentID] = e
	}
	// Tied students may appear in any order, so a rank is valid anywhere within its tie group.
	type rankRange struct{ lo, hi int }
	tieRanks := make(map[float64]rankRange, len(expected.Rankings))
	for _, want := range expected.Rankings {
		r, ok := tieRanks[want.TotalNormalizedScore]
		if !ok {
			r.lo = want.ClassRank
		}
		r.hi = want.ClassRank
		tieRanks[want.TotalNormalizedScore] = r
	}

	expectedIDs := make(map[string]struct{}, len(expected.Rankings))
	for _, want := range expected.Rankings {
		expectedIDs[want.StudentID] = struct{}{}
		got, ok := storedByID[want.StudentID]
		if !ok {
			rep.Missing = append(rep.Missing, want.StudentID)
			continue
		}
		if math.Abs(got.TotalNormalizedScore-want.TotalNormalizedScore) > SignificanceThreshold {
			rep.ScoreMismatches = append(rep.ScoreMismatches, ScoreMismatch{
				StudentID: want.StudentID,
				Stored:    got.TotalNormalizedScore,
				Expected:  want.TotalNormalizedScore,
			})
		}
		if r := tieRanks[want.TotalNormalizedScore]; got.ClassRank < r.lo || got.ClassRank > r.hi {
			rep.RankMismatches = append(rep.RankMismatches, want.StudentID)
		}
	}
	for _, e := range stored.Rankings {
		if _, ok := expectedIDs[e.StudentID]; !ok {
			rep.Unexpected = append(rep.Unexpected, e.StudentID)
		}
	}

	recomputed := ComputeMetadata(stored.Rankings)
	rep.MetadataDrift = recomputed.AverageScore != stored.Metadata.AverageScore ||
		recomputed.CompletionRate != stored.Metadata.CompletionRate ||
		recomputed.ActiveStudents != stored.Metadata.ActiveStudents

	rep.Consistent = len(rep.Missing) == 0 && len(rep.Unexpected) == 0 &&
		len(rep.ScoreMismatches) == 0 && len(rep.RankMismatches) == 0 && !rep.MetadataDrift
	return rep, nil
}
