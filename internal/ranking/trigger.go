package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"quizrank-service/internal/domain"
)

// TriggerResult describes what a score change did to the rankings.
type TriggerResult struct {
	StudentID string   `json:"studentId"`
	Skipped   bool     `json:"skipped"`
	Removed   []string `json:"removedFrom,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Failed    []string `json:"failed,omitempty"`
}

// Trigger turns score change events into ranking mutations.
type Trigger struct {
	agg    *Aggregator
	scores ScoreRepository
	logger *slog.Logger
}

func NewTrigger(agg *Aggregator, scores ScoreRepository, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{agg: agg, scores: scores, logger: logger.With("component", "ranking_trigger")}
}

// HandleScoreChange applies ev. Deleted scores remove the student everywhere; changes below
// SignificanceThreshold are ignored; otherwise every class of the student is upserted in
// parallel. Per-class failures are logged and joined into the returned error.
func (t *Trigger) HandleScoreChange(ctx context.Context, ev domain.ScoreChangeEvent) (TriggerResult, error) {
	res := TriggerResult{StudentID: ev.StudentID}

	if ev.Deleted {
		removed, err := t.agg.RemoveStudent(ctx, ev.StudentID)
		res.Removed = removed
		return res, err
	}

	if !Significant(ev.PreviousScore, ev.NormalizedScore) {
		t.logger.Debug("insignificant score change ignored",
			"student_id", ev.StudentID,
			"previous", ev.PreviousScore,
			"current", ev.NormalizedScore)
		res.Skipped = true
		return res, nil
	}

	classIDs := ev.ClassIDs
	if len(classIDs) == 0 {
		ids, err := t.scores.ActiveClassIDs(ctx, ev.StudentID)
		if err != nil {
			return res, fmt.Errorf("list classes of %s: %w", ev.StudentID, err)
		}
		classIDs = ids
	}
	if len(classIDs) == 0 {
		t.logger.Info("student has no active enrollment", "student_id", ev.StudentID)
		return res, nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, classID := range classIDs {
		classID := classID
		g.Go(func() error {
			_, err := t.agg.UpsertStudent(ctx, classID, ev.StudentID, ev.Snapshot())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.logger.Error("failed to update class ranking",
					"class_id", classID,
					"student_id", ev.StudentID,
					"kind", domain.KindOf(err).String(),
					"error", err)
				res.Failed = append(res.Failed, classID)
				errs = append(errs, fmt.Errorf("class %s: %w", classID, err))
				return nil
			}
			res.Updated = append(res.Updated, classID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(res.Updated)
	sort.Strings(res.Failed)
	t.logger.Info("score change applied",
		"student_id", ev.StudentID,
		"updated", len(res.Updated),
		"failed", len(res.Failed))
	return res, errors.Join(errs...)
}
