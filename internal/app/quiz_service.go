package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"quizrank-service/internal/domain"
	"quizrank-service/internal/quiz"
)

// BankRepository loads question banks (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, moduleID string) (domain.QuestionBank, error)
}

// QuizStore keeps generated quizzes until they are submitted or expire.
type QuizStore interface {
	SaveQuiz(ctx context.Context, q domain.RandomizedQuiz) error
	GetQuiz(ctx context.Context, quizID string) (domain.RandomizedQuiz, error)
}

// AttemptStore persists submitted attempts.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, a domain.QuizAttempt) error
	ListAttempts(ctx context.Context, studentID, moduleID string) ([]domain.QuizAttempt, error)
}

// ScoreStore reads and writes unified scores.
type ScoreStore interface {
	GetScore(ctx context.Context, studentID string) (domain.UnifiedScore, bool, error)
	SaveScore(ctx context.Context, s domain.UnifiedScore) error
	DeleteScore(ctx context.Context, studentID string) (bool, error)
}

// EventPublisher emits score change events to the ranking pipeline.
type EventPublisher interface {
	PublishScoreChange(ctx context.Context, ev domain.ScoreChangeEvent) error
}

// QuizService contains the quiz use cases.
type QuizService struct {
	banks        BankRepository
	quizzes      QuizStore
	attempts     AttemptStore
	scores       ScoreStore
	events       EventPublisher
	assembler    *quiz.Assembler
	modulesCount int
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

// Stores groups the persistence dependencies of QuizService.
type Stores struct {
	Banks    BankRepository
	Quizzes  QuizStore
	Attempts AttemptStore
	Scores   ScoreStore
}

func NewQuizService(stores Stores, events EventPublisher, assembler *quiz.Assembler, modulesCount int, logger *slog.Logger) *QuizService {
	return NewQuizServiceWithClock(stores, events, assembler, modulesCount, logger, time.Now)
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(stores Stores, events EventPublisher, assembler *quiz.Assembler, modulesCount int, logger *slog.Logger, now func() time.Time) *QuizService {
	if modulesCount <= 0 {
		modulesCount = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuizService{
		banks:        stores.Banks,
		quizzes:      stores.Quizzes,
		attempts:     stores.Attempts,
		scores:       stores.Scores,
		events:       events,
		assembler:    assembler,
		modulesCount: modulesCount,
		logger:       logger.With("component", "quiz_service"),
		now:          now,
		newID:        uuid.NewString,
	}
}

// GenerateQuiz assembles a new quiz for the student's next attempt on moduleID.
// Assembly failures block the quiz; nothing partial is stored.
func (s *QuizService) GenerateQuiz(ctx context.Context, studentID, moduleID string) (domain.RandomizedQuiz, error) {
	bank, err := s.banks.GetBank(ctx, moduleID)
	if err != nil {
		return domain.RandomizedQuiz{}, fmt.Errorf("load bank for %s: %w", moduleID, err)
	}
	previous, err := s.attempts.ListAttempts(ctx, studentID, moduleID)
	if err != nil {
		return domain.RandomizedQuiz{}, fmt.Errorf("list attempts: %w", err)
	}

	q, err := s.assembler.NewQuiz(bank, studentID, len(previous)+1)
	if err != nil {
		s.logger.Error("quiz assembly failed",
			"module_id", moduleID,
			"student_id", studentID,
			"kind", domain.KindOf(err).String(),
			"error", err)
		return domain.RandomizedQuiz{}, err
	}
	if err := s.quizzes.SaveQuiz(ctx, q); err != nil {
		return domain.RandomizedQuiz{}, fmt.Errorf("store quiz: %w", err)
	}

	s.logger.Info("quiz generated",
		"quiz_id", q.ID,
		"module_id", moduleID,
		"student_id", studentID,
		"attempt", q.AttemptNumber,
		"seed", q.Seed)
	return q, nil
}

// GetQuiz returns a stored quiz.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.RandomizedQuiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// Replay reassembles a stored quiz from its seed and the current bank.
func (s *QuizService) Replay(ctx context.Context, quizID string) (domain.RandomizedQuiz, error) {
	captured, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.RandomizedQuiz{}, err
	}
	bank, err := s.banks.GetBank(ctx, captured.ModuleID)
	if err != nil {
		return domain.RandomizedQuiz{}, fmt.Errorf("load bank for %s: %w", captured.ModuleID, err)
	}
	return s.assembler.Replay(bank, captured)
}

// Submission is a student's answer sheet for one quiz.
type Submission struct {
	StudentID string            `json:"studentId" validate:"required"`
	Answers   map[string]string `json:"answers"`
	TimeSpent int               `json:"timeSpent" validate:"gte=0"`
}

// SubmitAttempt scores sub against quizID, records the attempt and folds the result into
// the student's unified score. Ranking propagation failures are logged, never returned.
func (s *QuizService) SubmitAttempt(ctx context.Context, quizID string, sub Submission) (domain.QuizAttempt, error) {
	q, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if q.StudentID != sub.StudentID {
		return domain.QuizAttempt{}, domain.ErrQuizOwnership
	}

	now := s.now()
	attempt := domain.QuizAttempt{
		ID:               s.newID(),
		QuizID:           q.ID,
		StudentID:        q.StudentID,
		ModuleID:         q.ModuleID,
		AttemptNumber:    q.AttemptNumber,
		Answers:          sub.Answers,
		ScoreCalculation: quiz.Score(q, sub.Answers),
		TimeSpent:        sub.TimeSpent,
		StartedAt:        q.CreatedAt,
		CompletedAt:      now,
	}
	if err := s.attempts.SaveAttempt(ctx, attempt); err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("store attempt: %w", err)
	}

	s.logger.Info("attempt submitted",
		"quiz_id", q.ID,
		"student_id", q.StudentID,
		"module_id", q.ModuleID,
		"percentage", attempt.Percentage,
		"passed", attempt.Passed)

	if err := s.recordModuleScore(ctx, q.StudentID, q.ModuleID, attempt.Percentage, now); err != nil {
		s.logger.Warn("unified score not updated",
			"student_id", q.StudentID,
			"module_id", q.ModuleID,
			"error", err)
	}
	return attempt, nil
}

// recordModuleScore keeps the best percentage per module and republishes the unified score
// when it changes.
func (s *QuizService) recordModuleScore(ctx context.Context, studentID, moduleID string, percentage int, now time.Time) error {
	current, _, err := s.scores.GetScore(ctx, studentID)
	if err != nil {
		return fmt.Errorf("load score: %w", err)
	}

	best, seen := current.ModuleScores[moduleID]
	if seen && best >= float64(percentage) {
		return nil
	}

	modules := make(map[string]float64, len(current.ModuleScores)+1)
	for k, v := range current.ModuleScores {
		modules[k] = v
	}
	modules[moduleID] = float64(percentage)

	updated := domain.UnifiedScore{
		StudentID:       studentID,
		NormalizedScore: NormalizedScore(modules, s.modulesCount),
		ModuleScores:    modules,
		LastActivity:    now,
	}
	if err := s.scores.SaveScore(ctx, updated); err != nil {
		return fmt.Errorf("save score: %w", err)
	}

	if s.events == nil {
		return nil
	}
	ev := domain.ScoreChangeEvent{
		StudentID:       studentID,
		NormalizedScore: updated.NormalizedScore,
		PreviousScore:   current.NormalizedScore,
		ModuleScores:    modules,
		OccurredAt:      now,
	}
	if err := s.events.PublishScoreChange(ctx, ev); err != nil {
		return fmt.Errorf("publish score change: %w", err)
	}
	return nil
}

// ResetScore deletes the unified score of studentID and withdraws the student from every
// class ranking. It fails with domain.ErrStudentNotFound when there is no score to delete.
func (s *QuizService) ResetScore(ctx context.Context, studentID string) error {
	deleted, err := s.scores.DeleteScore(ctx, studentID)
	if err != nil {
		return fmt.Errorf("delete score: %w", err)
	}
	if !deleted {
		return fmt.Errorf("score of %s: %w", studentID, domain.ErrStudentNotFound)
	}
	s.logger.Info("unified score deleted", "student_id", studentID)

	if s.events == nil {
		return nil
	}
	ev := domain.ScoreChangeEvent{StudentID: studentID, Deleted: true, OccurredAt: s.now()}
	if err := s.events.PublishScoreChange(ctx, ev); err != nil {
		s.logger.Warn("score deletion not propagated", "student_id", studentID, "error", err)
	}
	return nil
}

// NormalizedScore averages the best module percentages over modulesCount, capped at 100
// and rounded to one decimal.
func NormalizedScore(moduleScores map[string]float64, modulesCount int) float64 {
	if modulesCount <= 0 {
		return 0
	}
	sum := 0.0
	for _, v := range moduleScores {
		sum += v
	}
	return math.Min(100, math.Round(sum/float64(modulesCount)*10)/10)
}

// ModuleReport is a student's performance summary on one module.
type ModuleReport struct {
	Stats         domain.StudentQuizStats      `json:"stats"`
	Categories    []domain.CategoryPerformance `json:"categories"`
	ErrorPatterns map[string]int               `json:"errorPatterns"`
}

// StudentStats summarizes every attempt of studentID on moduleID.
func (s *QuizService) StudentStats(ctx context.Context, studentID, moduleID string) (ModuleReport, error) {
	attempts, err := s.attempts.ListAttempts(ctx, studentID, moduleID)
	if err != nil {
		return ModuleReport{}, fmt.Errorf("list attempts: %w", err)
	}
	stats, ok := quiz.SummarizeAttempts(attempts)
	if !ok {
		return ModuleReport{}, domain.ErrNoAttempts
	}

	var feedback []domain.QuestionFeedback
	for _, a := range attempts {
		feedback = append(feedback, a.Feedback...)
	}
	return ModuleReport{
		Stats:         stats,
		Categories:    quiz.CategoryBreakdown(feedback),
		ErrorPatterns: quiz.ErrorPatterns(attempts),
	}, nil
}

