package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"quizrank-service/internal/domain"
)

// ValidationResult collects the findings of one check.
type ValidationResult struct {
	Valid    bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) finish() ValidationResult {
	r.Valid = len(r.Errors) == 0
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	return *r
}

// ValidationReport is the outcome of RunAll.
type ValidationReport struct {
	QuestionBank     ValidationResult `json:"questionBank"`
	ShuffleAlgorithm ValidationResult `json:"shuffleAlgorithm"`
	ScoringSystem    ValidationResult `json:"scoringSystem"`
	Overall          ValidationResult `json:"overall"`
}

// ValidationSuite checks bank integrity and self-tests the shuffler and scoring engine.
type ValidationSuite struct {
	validate *validator.Validate
	mode     Mode
}

func NewValidationSuite(mode Mode) *ValidationSuite {
	return &ValidationSuite{validate: validator.New(), mode: mode}
}

// ValidateBank checks required fields, option shape and uniqueness rules of bank.
func (s *ValidationSuite) ValidateBank(bank domain.QuestionBank) ValidationResult {
	var res ValidationResult

	if err := s.validate.Struct(bank); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				res.errorf("%s: failed %q (%v)", strings.TrimPrefix(fe.Namespace(), "QuestionBank."), fe.Tag(), fe.Value())
			}
		} else {
			res.errorf("validate bank: %v", err)
		}
	}

	if len(bank.Questions) < bank.QuestionsPerQuiz {
		res.errorf("insufficient questions: %d available, %d required", len(bank.Questions), bank.QuestionsPerQuiz)
	}

	ids := make(map[string]struct{}, len(bank.Questions))
	tiers := map[domain.Difficulty]int{}
	for i, q := range bank.Questions {
		if _, dup := ids[q.ID]; dup && q.ID != "" {
			res.errorf("question %d: duplicate id %q", i, q.ID)
		}
		ids[q.ID] = struct{}{}
		tiers[q.Difficulty]++

		seen := make(map[string]struct{}, len(q.Options))
		found, dupOption := false, false
		for _, opt := range q.Options {
			if _, dup := seen[opt]; dup {
				dupOption = true
			}
			seen[opt] = struct{}{}
			if opt == q.CorrectAnswer {
				found = true
			}
		}
		if dupOption {
			res.errorf("question %d: options are not unique", i)
		}
		if !found {
			res.errorf("question %d: correct answer not among options", i)
		}
	}
	for _, tier := range domain.Difficulties {
		if tiers[tier] == 0 {
			res.warnf("no %s questions", tier)
		}
	}
	return res.finish()
}

// CheckShuffler verifies determinism, seed variation and correct-answer preservation
// over the first questions of bank.
func (s *ValidationSuite) CheckShuffler(bank domain.QuestionBank, iterations int) ValidationResult {
	var res ValidationResult
	sample := bank.Questions
	if len(sample) > 7 {
		sample = sample[:7]
	}
	draw := 5
	if len(sample) < draw {
		draw = len(sample)
	}
	if draw == 0 {
		res.errorf("bank has no questions to shuffle")
		return res.finish()
	}

	const seed = "consistent_test_seed"
	first, err1 := SelectUniform(sample, draw, seed)
	second, err2 := SelectUniform(sample, draw, seed)
	if err := errors.Join(err1, err2); err != nil {
		res.errorf("select: %v", err)
		return res.finish()
	}
	if !sameJSON(first, second) {
		res.errorf("selection is not deterministic for a fixed seed")
	}

	if iterations > 0 && draw > 1 {
		orders := make(map[string]struct{}, iterations)
		for i := 0; i < iterations; i++ {
			picked, err := SelectUniform(sample, draw, fmt.Sprintf("test_seed_%d", i))
			if err != nil {
				res.errorf("select: %v", err)
				return res.finish()
			}
			ids := make([]string, len(picked))
			for k, q := range picked {
				ids[k] = q.ID
			}
			orders[strings.Join(ids, ",")] = struct{}{}
		}
		rate := float64(len(orders)) / float64(iterations)
		if rate < 0.5 {
			res.warnf("low shuffle variation: %d%%", roundRatio(100, len(orders), iterations))
		}
	}

	q := sample[0]
	a, errA := ShuffleOptions(q, seed)
	b, errB := ShuffleOptions(q, seed)
	if err := errors.Join(errA, errB); err != nil {
		res.errorf("shuffle options: %v", err)
		return res.finish()
	}
	if !sameJSON(a.ShuffledOptions, b.ShuffledOptions) {
		res.errorf("option shuffle is not deterministic for a fixed seed")
	}
	if a.ShuffledOptions[a.CorrectOptionIndex] != q.CorrectAnswer {
		res.errorf("correct answer not preserved after shuffling")
	}
	return res.finish()
}

// CheckScoring scores perfect, passing and zero answer sets against a 7-question sample.
func (s *ValidationSuite) CheckScoring(bank domain.QuestionBank) ValidationResult {
	var res ValidationResult
	if len(bank.Questions) < 7 {
		res.errorf("scoring check needs 7 questions, bank has %d", len(bank.Questions))
		return res.finish()
	}

	const maxPoints = 10
	probe := domain.RandomizedQuiz{
		ID:           "test_quiz",
		StudentID:    "test_student",
		ModuleID:     bank.ModuleID,
		Seed:         "test_seed",
		PassingScore: 70,
		TotalPoints:  maxPoints,
	}
	for _, q := range bank.Questions[:7] {
		sq, err := ShuffleOptions(q, probe.Seed)
		if err != nil {
			res.errorf("shuffle options: %v", err)
			return res.finish()
		}
		if len(sq.ShuffledOptions) < 2 {
			res.errorf("scoring check needs a wrong option, question %s has %d option(s)", q.ID, len(sq.ShuffledOptions))
			return res.finish()
		}
		probe.SelectedQuestions = append(probe.SelectedQuestions, sq)
	}

	answersWith := func(correct int) map[string]string {
		out := make(map[string]string, len(probe.SelectedQuestions))
		for i, sq := range probe.SelectedQuestions {
			if i < correct {
				out[sq.OriginalID] = sq.ShuffledOptions[sq.CorrectOptionIndex]
				continue
			}
			wrong := 0
			if sq.CorrectOptionIndex == 0 {
				wrong = 1
			}
			out[sq.OriginalID] = sq.ShuffledOptions[wrong]
		}
		return out
	}

	perfect := Score(probe, answersWith(7))
	if perfect.Percentage != 100 || !perfect.Passed || perfect.Score != maxPoints {
		res.errorf("perfect attempt scored %d%% (%d/%d, passed=%v)", perfect.Percentage, perfect.Score, maxPoints, perfect.Passed)
	}
	passing := Score(probe, answersWith(5))
	if passing.Percentage != 71 {
		res.errorf("5 of 7 scored %d%%, want 71%%", passing.Percentage)
	}
	if !passing.Passed {
		res.errorf("5 of 7 not marked as passed")
	}
	zero := Score(probe, answersWith(0))
	if zero.Percentage != 0 || zero.Passed || zero.Score != 0 {
		res.errorf("zero attempt scored %d%% (%d/%d, passed=%v)", zero.Percentage, zero.Score, maxPoints, zero.Passed)
	}
	return res.finish()
}

// RunAll runs every check against bank.
func (s *ValidationSuite) RunAll(bank domain.QuestionBank) ValidationReport {
	report := ValidationReport{
		QuestionBank:     s.ValidateBank(bank),
		ShuffleAlgorithm: s.CheckShuffler(bank, 50),
		ScoringSystem:    s.CheckScoring(bank),
	}
	if report.QuestionBank.Valid {
		if _, err := Assemble(bank, bank.QuestionsPerQuiz, "health_check", s.mode); err != nil {
			report.QuestionBank.Errors = append(report.QuestionBank.Errors, fmt.Sprintf("assemble: %v", err))
			report.QuestionBank.Valid = false
		}
	}

	var overall ValidationResult
	for _, r := range []ValidationResult{report.QuestionBank, report.ShuffleAlgorithm, report.ScoringSystem} {
		overall.Errors = append(overall.Errors, r.Errors...)
		overall.Warnings = append(overall.Warnings, r.Warnings...)
	}
	report.Overall = overall.finish()
	return report
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
