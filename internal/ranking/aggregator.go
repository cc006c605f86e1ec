package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quizrank-service/internal/domain"
)

// ScoreRepository reads the source data a ranking is folded from.
type ScoreRepository interface {
	GetClass(ctx context.Context, classID string) (domain.ClassInfo, error)
	ListActiveClasses(ctx context.Context) ([]domain.ClassInfo, error)
	// ActiveStudentIDs lists the students with an active enrollment in classID, in enrollment order.
	ActiveStudentIDs(ctx context.Context, classID string) ([]string, error)
	ActiveClassIDs(ctx context.Context, studentID string) ([]string, error)
	GetStudent(ctx context.Context, studentID string) (domain.StudentProfile, error)
	// GetScore reports false when the student has no unified score yet.
	GetScore(ctx context.Context, studentID string) (domain.UnifiedScore, bool, error)
}

// RankingRepository stores class ranking documents.
//
// Save succeeds only when doc.Revision equals the stored revision (0 for a class without a
// document) and returns the document with its new revision; otherwise it fails with
// domain.ErrRankingConflict.
type RankingRepository interface {
	Get(ctx context.Context, classID string) (domain.ClassRankingDocument, error)
	Save(ctx context.Context, doc domain.ClassRankingDocument) (domain.ClassRankingDocument, error)
	List(ctx context.Context) ([]domain.ClassRankingDocument, error)
}

// Publisher is notified of every persisted ranking document. It must not block.
type Publisher interface {
	PublishRanking(doc domain.ClassRankingDocument)
}

// Settings tunes the aggregator's backpressure and retry behaviour.
type Settings struct {
	BatchSize          int
	BatchPause         time.Duration
	MaxConflictRetries int
	// Concurrency bounds cross-class fan-out (RemoveStudent, RegenerateAll batches excluded).
	Concurrency int
}

func DefaultSettings() Settings {
	return Settings{
		BatchSize:          3,
		BatchPause:         200 * time.Millisecond,
		MaxConflictRetries: 3,
		Concurrency:        4,
	}
}

func (s Settings) normalized() Settings {
	d := DefaultSettings()
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	if s.BatchPause < 0 {
		s.BatchPause = 0
	}
	if s.MaxConflictRetries < 0 {
		s.MaxConflictRetries = 0
	}
	if s.Concurrency <= 0 {
		s.Concurrency = d.Concurrency
	}
	return s
}

// Aggregator maintains denormalized class rankings.
type Aggregator struct {
	scores    ScoreRepository
	rankings  RankingRepository
	publisher Publisher
	logger    *slog.Logger
	settings  Settings
	now       func() time.Time
}

func NewAggregator(scores ScoreRepository, rankings RankingRepository, settings Settings, logger *slog.Logger) *Aggregator {
	return NewAggregatorWithClock(scores, rankings, settings, logger, time.Now)
}

// NewAggregatorWithClock is used by tests for deterministic timestamps.
func NewAggregatorWithClock(scores ScoreRepository, rankings RankingRepository, settings Settings, logger *slog.Logger, now func() time.Time) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		scores:   scores,
		rankings: rankings,
		logger:   logger.With("component", "ranking"),
		settings: settings.normalized(),
		now:      now,
	}
}

// SetPublisher registers p to receive every persisted document.
func (a *Aggregator) SetPublisher(p Publisher) {
	a.publisher = p
}

// BuildFull recomputes the ranking of classID from source data and persists it.
// Students that cannot be read are logged and left out. A cancelled build writes nothing.
func (a *Aggregator) BuildFull(ctx context.Context, classID string) (domain.ClassRankingDocument, error) {
	for attempt := 0; ; attempt++ {
		// Recomputed on every attempt so a concurrent upsert is folded in, not overwritten.
		doc, err := a.compute(ctx, classID)
		if err != nil {
			return domain.ClassRankingDocument{}, err
		}

		current, err := a.rankings.Get(ctx, classID)
		switch {
		case errors.Is(err, domain.ErrRankingNotFound):
			doc.Revision = 0
		case err != nil:
			return domain.ClassRankingDocument{}, fmt.Errorf("read ranking %s: %w", classID, err)
		default:
			doc.Revision = current.Revision
		}

		saved, err := a.rankings.Save(ctx, doc)
		if errors.Is(err, domain.ErrRankingConflict) && attempt < a.settings.MaxConflictRetries {
			a.logger.Debug("ranking changed during rebuild, retrying", "class_id", classID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return domain.ClassRankingDocument{}, fmt.Errorf("save ranking %s: %w", classID, err)
		}

		a.logger.Info("class ranking rebuilt",
			"class_id", classID,
			"students", saved.StudentsCount,
			"average_score", saved.Metadata.AverageScore)
		a.publish(saved)
		return saved, nil
	}
}

// compute folds the current source data of classID into an unsaved ranking document.
func (a *Aggregator) compute(ctx context.Context, classID string) (domain.ClassRankingDocument, error) {
	class, err := a.scores.GetClass(ctx, classID)
	if err != nil {
		return domain.ClassRankingDocument{}, fmt.Errorf("load class %s: %w", classID, err)
	}
	studentIDs, err := a.scores.ActiveStudentIDs(ctx, classID)
	if err != nil {
		return domain.ClassRankingDocument{}, fmt.Errorf("list students of class %s: %w", classID, err)
	}

	entries, err := a.collectEntries(ctx, classID, studentIDs)
	if err != nil {
		return domain.ClassRankingDocument{}, err
	}

	now := a.now()
	name := class.Name
	if name == "" {
		name = "Turma " + classID
	}
	doc := domain.ClassRankingDocument{
		ClassID:     classID,
		ClassName:   name,
		LastUpdated: now,
		Metadata: domain.RankingMetadata{
			LastFullRebuild: now,
			Version:         SchemaVersion,
		},
	}
	refold(&doc, entries)
	return doc, nil
}

// collectEntries reads students in batches of BatchSize, pausing between batches.
// The result keeps the order of studentIDs.
func (a *Aggregator) collectEntries(ctx context.Context, classID string, studentIDs []string) ([]domain.ClassRankingEntry, error) {
	results := make([]*domain.ClassRankingEntry, len(studentIDs))
	size := a.settings.BatchSize

	for start := 0; start < len(studentIDs); start += size {
		if start > 0 {
			if err := sleepCtx(ctx, a.settings.BatchPause); err != nil {
				return nil, err
			}
		}
		end := min(start+size, len(studentIDs))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				entry, err := a.entryFor(gctx, studentIDs[i])
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					a.logger.Warn("skipping student in ranking build",
						"class_id", classID,
						"student_id", studentIDs[i],
						"kind", domain.KindOf(err).String(),
						"error", err)
					return nil
				}
				results[i] = &entry
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	entries := make([]domain.ClassRankingEntry, 0, len(results))
	for _, e := range results {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func (a *Aggregator) entryFor(ctx context.Context, studentID string) (domain.ClassRankingEntry, error) {
	profile, err := a.scores.GetStudent(ctx, studentID)
	if err != nil {
		return domain.ClassRankingEntry{}, fmt.Errorf("load student %s: %w", studentID, err)
	}
	score, found, err := a.scores.GetScore(ctx, studentID)
	if err != nil {
		return domain.ClassRankingEntry{}, fmt.Errorf("load score of %s: %w", studentID, err)
	}
	lastActivity := score.LastActivity
	if !found || lastActivity.IsZero() {
		lastActivity = a.now()
	}
	return newEntry(profile, domain.ScoreSnapshot{
		NormalizedScore: score.NormalizedScore,
		ModuleScores:    score.ModuleScores,
	}, lastActivity), nil
}

// UpsertStudent folds a new score of studentID into the ranking of classID. A class without
// a ranking document is built from scratch instead.
func (a *Aggregator) UpsertStudent(ctx context.Context, classID, studentID string, score domain.ScoreSnapshot) (domain.ClassRankingDocument, error) {
	doc, _, err := a.update(ctx, classID, func(doc *domain.ClassRankingDocument) (bool, error) {
		profile, err := a.scores.GetStudent(ctx, studentID)
		if err != nil {
			return false, fmt.Errorf("load student %s: %w", studentID, err)
		}
		if profile.ID == "" {
			profile.ID = studentID
		}
		refold(doc, applyScore(doc.Rankings, profile, score, a.now()))
		return true, nil
	})
	if errors.Is(err, domain.ErrRankingNotFound) {
		a.logger.Info("class has no ranking yet, building it", "class_id", classID, "student_id", studentID)
		return a.BuildFull(ctx, classID)
	}
	if err != nil {
		return domain.ClassRankingDocument{}, err
	}

	a.logger.Debug("student ranking updated",
		"class_id", classID,
		"student_id", studentID,
		"rank", rankOf(doc.Rankings, studentID))
	return doc, nil
}

// RemoveStudent deletes studentID from every ranking that lists it and returns the affected
// class ids. Classes are processed with bounded concurrency; failures are joined.
func (a *Aggregator) RemoveStudent(ctx context.Context, studentID string) ([]string, error) {
	docs, err := a.rankings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rankings: %w", err)
	}

	var (
		mu       sync.Mutex
		affected []string
		errs     []error
	)
	var g errgroup.Group
	g.SetLimit(a.settings.Concurrency)
	for _, d := range docs {
		if !containsStudent(d.Rankings, studentID) {
			continue
		}
		classID := d.ClassID
		g.Go(func() error {
			_, changed, err := a.update(ctx, classID, func(doc *domain.ClassRankingDocument) (bool, error) {
				remaining, removed := removeEntry(doc.Rankings, studentID)
				if removed {
					refold(doc, remaining)
				}
				return removed, nil
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Error("failed to remove student from ranking",
					"class_id", classID, "student_id", studentID, "error", err)
				errs = append(errs, fmt.Errorf("class %s: %w", classID, err))
				return nil
			}
			if changed {
				affected = append(affected, classID)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(affected)
	a.logger.Info("student removed from rankings", "student_id", studentID, "classes", len(affected))
	return affected, errors.Join(errs...)
}

// update applies change to the stored ranking of classID and saves it. On a revision
// conflict the document is re-read and change re-applied, up to MaxConflictRetries times.
// It reports false without writing when change reports no modification.
func (a *Aggregator) update(ctx context.Context, classID string, change func(*domain.ClassRankingDocument) (bool, error)) (domain.ClassRankingDocument, bool, error) {
	for attempt := 0; ; attempt++ {
		doc, err := a.rankings.Get(ctx, classID)
		if err != nil {
			return domain.ClassRankingDocument{}, false, fmt.Errorf("read ranking %s: %w", classID, err)
		}
		changed, err := change(&doc)
		if err != nil || !changed {
			return doc, false, err
		}
		doc.LastUpdated = a.now()

		saved, err := a.rankings.Save(ctx, doc)
		if errors.Is(err, domain.ErrRankingConflict) && attempt < a.settings.MaxConflictRetries {
			a.logger.Debug("ranking changed concurrently, retrying", "class_id", classID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return domain.ClassRankingDocument{}, false, fmt.Errorf("save ranking %s: %w", classID, err)
		}
		a.publish(saved)
		return saved, true, nil
	}
}

func (a *Aggregator) publish(doc domain.ClassRankingDocument) {
	if a.publisher != nil {
		a.publisher.PublishRanking(doc)
	}
}

func rankOf(entries []domain.ClassRankingEntry, studentID string) int {
	for _, e := range entries {
		if e.StudentID == studentID {
			return e.ClassRank
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
