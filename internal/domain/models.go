package domain

import "time"

// Difficulty is the tier a bank question belongs to.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the tiers in selection order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// OptionsPerQuestion is the fixed number of answer options of a bank question.
const OptionsPerQuestion = 4

// Question is an authored multiple choice question. Option order is display-only.
type Question struct {
	ID            string     `json:"id" yaml:"id" validate:"required"`
	Text          string     `json:"text" yaml:"text" validate:"required"`
	Options       []string   `json:"options" yaml:"options" validate:"len=4,dive,required"`
	CorrectAnswer string     `json:"correctAnswer" yaml:"correctAnswer" validate:"required"`
	Explanation   string     `json:"explanation" yaml:"explanation" validate:"required"`
	Difficulty    Difficulty `json:"difficulty" yaml:"difficulty" validate:"oneof=easy medium hard"`
	Category      string     `json:"category,omitempty" yaml:"category,omitempty"`
	TimeToAnswer  int        `json:"timeToAnswer,omitempty" yaml:"timeToAnswer,omitempty" validate:"gte=0"` // seconds
	Feedback      string     `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// QuestionBank is the pool of questions a module's quizzes draw from.
type QuestionBank struct {
	ID               string     `json:"id" yaml:"id" validate:"required"`
	ModuleID         string     `json:"moduleId" yaml:"moduleId" validate:"required"`
	Title            string     `json:"title" yaml:"title" validate:"required"`
	QuestionsPerQuiz int        `json:"questionsPerQuiz" yaml:"questionsPerQuiz" validate:"gt=0"`
	PassingScore     int        `json:"passingScore" yaml:"passingScore" validate:"gte=0,lte=100"`
	TotalPoints      int        `json:"totalPoints" yaml:"totalPoints" validate:"gt=0"`
	Questions        []Question `json:"questions" yaml:"questions" validate:"required,dive"`
}

// ShuffledQuestion is a bank question with its options reordered for one quiz.
type ShuffledQuestion struct {
	OriginalID         string     `json:"originalId"`
	Text               string     `json:"text"`
	ShuffledOptions    []string   `json:"shuffledOptions"`
	CorrectOptionIndex int        `json:"correctOptionIndex"`
	Explanation        string     `json:"explanation"`
	Difficulty         Difficulty `json:"difficulty"`
	Category           string     `json:"category,omitempty"`
	Feedback           string     `json:"feedback,omitempty"`
}

// RandomizedQuiz is one student's quiz instance. Seed fully determines its content and order.
type RandomizedQuiz struct {
	ID                string             `json:"id"`
	StudentID         string             `json:"studentId"`
	ModuleID          string             `json:"moduleId"`
	QuestionBankID    string             `json:"questionBankId"`
	Seed              string             `json:"seed"`
	Mode              string             `json:"mode,omitempty"` // selection mode the quiz was assembled with
	AttemptNumber     int                `json:"attemptNumber"`
	PassingScore      int                `json:"passingScore"`
	TotalPoints       int                `json:"totalPoints"`
	CreatedAt         time.Time          `json:"createdAt"`
	SelectedQuestions []ShuffledQuestion `json:"selectedQuestions"`
}

// QuestionFeedback is the per-question outcome of a scored attempt.
type QuestionFeedback struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"isCorrect"`
	StudentAnswer string `json:"studentAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
	Category      string `json:"category,omitempty"`
}

// ScoreCalculation is the result of scoring answers against a quiz.
type ScoreCalculation struct {
	Score          int                `json:"score"`
	Percentage     int                `json:"percentage"`
	Passed         bool               `json:"passed"`
	CorrectCount   int                `json:"correctCount"`
	TotalQuestions int                `json:"totalQuestions"`
	Feedback       []QuestionFeedback `json:"feedback"`
}

// QuizAttempt records a submitted quiz.
type QuizAttempt struct {
	ID            string            `json:"id"`
	QuizID        string            `json:"quizId"`
	StudentID     string            `json:"studentId"`
	ModuleID      string            `json:"moduleId"`
	AttemptNumber int               `json:"attemptNumber"`
	Answers       map[string]string `json:"answers"`
	ScoreCalculation
	TimeSpent   int       `json:"timeSpent"` // seconds
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// CategoryPerformance aggregates feedback rows of one category.
type CategoryPerformance struct {
	Category   string `json:"category"`
	Total      int    `json:"total"`
	Correct    int    `json:"correct"`
	Percentage int    `json:"percentage"`
}

// StudentQuizStats summarizes a student's attempts on one module.
type StudentQuizStats struct {
	StudentID         string    `json:"studentId"`
	ModuleID          string    `json:"moduleId"`
	TotalAttempts     int       `json:"totalAttempts"`
	BestScore         int       `json:"bestScore"`
	BestPercentage    int       `json:"bestPercentage"`
	AverageScore      float64   `json:"averageScore"`
	AveragePercentage int       `json:"averagePercentage"`
	TotalTimeSpent    int       `json:"totalTimeSpent"`
	FirstAttemptAt    time.Time `json:"firstAttemptDate"`
	LastAttemptAt     time.Time `json:"lastAttemptDate"`
	Completed         bool      `json:"isCompleted"`
	CompletedAt       time.Time `json:"completedAt,omitempty"`
}

// StudentProfile is the user record the ranking reads display data from.
type StudentProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	AnonymousID string `json:"anonymousId"`
	Email       string `json:"email"`
}

// UnifiedScore is a student's aggregate score across modules.
type UnifiedScore struct {
	StudentID       string             `json:"studentId"`
	NormalizedScore float64            `json:"normalizedScore"`
	ModuleScores    map[string]float64 `json:"moduleScores"`
	LastActivity    time.Time          `json:"lastActivity"`
}

// ClassInfo identifies a class.
type ClassInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ClassStatusActive marks classes and enrollments that take part in rankings.
const ClassStatusActive = "active"

// ClassRankingEntry is one student's row in a class ranking.
type ClassRankingEntry struct {
	StudentID            string    `json:"studentId"`
	StudentName          string    `json:"studentName"`
	AnonymousID          string    `json:"anonymousId"`
	TotalNormalizedScore float64   `json:"totalNormalizedScore"`
	CompletedModules     int       `json:"completedModules"`
	LastActivity         time.Time `json:"lastActivity"`
	ClassRank            int       `json:"classRank"`
	IsActive             bool      `json:"isActive"`
	Email                string    `json:"email,omitempty"`
}

// RankingMetadata is derived from the entries of a ranking document.
type RankingMetadata struct {
	AverageScore    float64   `json:"averageScore"`
	CompletionRate  float64   `json:"completionRate"`
	ActiveStudents  int       `json:"activeStudents"`
	LastFullRebuild time.Time `json:"lastFullRebuild"`
	Version         string    `json:"version"`
}

// ClassRankingDocument is the denormalized ranking of one class.
// Revision is the optimistic concurrency token owned by the ranking store.
type ClassRankingDocument struct {
	ClassID       string              `json:"classId"`
	ClassName     string              `json:"className"`
	LastUpdated   time.Time           `json:"lastUpdated"`
	StudentsCount int                 `json:"studentsCount"`
	Rankings      []ClassRankingEntry `json:"rankings"`
	Metadata      RankingMetadata     `json:"metadata"`
	Revision      int64               `json:"revision"`
}

// ScoreSnapshot is the score data folded into a ranking entry.
type ScoreSnapshot struct {
	NormalizedScore float64            `json:"normalizedScore"`
	ModuleScores    map[string]float64 `json:"moduleScores"`
}

// ScoreChangeEvent is emitted whenever a student's unified score is written or deleted.
type ScoreChangeEvent struct {
	StudentID       string             `json:"studentId"`
	ClassIDs        []string           `json:"classIds"`
	NormalizedScore float64            `json:"normalizedScore"`
	PreviousScore   float64            `json:"previousScore"`
	ModuleScores    map[string]float64 `json:"moduleScores"`
	Deleted         bool               `json:"deleted"`
	OccurredAt      time.Time          `json:"occurredAt"`
}

// Snapshot returns the score part of the event.
func (e ScoreChangeEvent) Snapshot() ScoreSnapshot {
	return ScoreSnapshot{NormalizedScore: e.NormalizedScore, ModuleScores: e.ModuleScores}
}
