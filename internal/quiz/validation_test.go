package quiz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizrank-service/internal/domain"
)

func TestValidateBankAcceptsWellFormedBank(t *testing.T) {
	s := NewValidationSuite(ModeBalanced)
	res := s.ValidateBank(makeBank(10, 10, 5, 7))
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidateBankReportsProblems(t *testing.T) {
	bank := makeBank(3, 2, 0, 7)
	bank.Questions[0].Options = bank.Questions[0].Options[:3]
	bank.Questions[1].CorrectAnswer = "missing"
	bank.Questions[2].ID = bank.Questions[3].ID
	bank.Questions[4].Options[1] = bank.Questions[4].Options[0]

	res := NewValidationSuite(ModeBalanced).ValidateBank(bank)
	require.False(t, res.Valid)
	joined := strings.Join(res.Errors, "\n")
	assert.Contains(t, joined, "Options")
	assert.Contains(t, joined, "question 1: correct answer not among options")
	assert.Contains(t, joined, "duplicate id")
	assert.Contains(t, joined, "question 4: options are not unique")
	assert.Contains(t, joined, "insufficient questions")
	assert.Contains(t, res.Warnings, "no hard questions")
}

func TestValidateBankRejectsUnknownDifficulty(t *testing.T) {
	bank := makeBank(10, 10, 5, 7)
	bank.Questions[0].Difficulty = domain.Difficulty("extreme")
	res := NewValidationSuite(ModeBalanced).ValidateBank(bank)
	assert.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Errors, "\n"), "Difficulty")
}

func TestCheckShufflerPasses(t *testing.T) {
	res := NewValidationSuite(ModeBalanced).CheckShuffler(makeBank(10, 10, 5, 7), 50)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
}

func TestCheckShufflerEmptyBank(t *testing.T) {
	res := NewValidationSuite(ModeBalanced).CheckShuffler(domain.QuestionBank{}, 10)
	assert.False(t, res.Valid)
}

func TestCheckScoring(t *testing.T) {
	s := NewValidationSuite(ModeBalanced)
	res := s.CheckScoring(makeBank(10, 10, 5, 7))
	assert.True(t, res.Valid, "errors: %v", res.Errors)

	small := s.CheckScoring(makeBank(2, 2, 2, 7))
	assert.False(t, small.Valid)
}

func TestCheckScoringSingleOptionQuestions(t *testing.T) {
	bank := makeBank(3, 3, 1, 7)
	for i := range bank.Questions {
		bank.Questions[i].Options = []string{bank.Questions[i].CorrectAnswer}
	}
	suite := NewValidationSuite(ModeBalanced)

	var res ValidationResult
	require.NotPanics(t, func() { res = suite.CheckScoring(bank) })
	assert.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Errors, "\n"), "needs a wrong option")

	var report ValidationReport
	require.NotPanics(t, func() { report = suite.RunAll(bank) })
	assert.False(t, report.Overall.Valid)
}

func TestRunAll(t *testing.T) {
	s := NewValidationSuite(ModeBalanced)

	good := s.RunAll(makeBank(10, 10, 5, 7))
	assert.True(t, good.Overall.Valid, "errors: %v", good.Overall.Errors)

	bad := makeBank(10, 10, 5, 7)
	bad.Questions[0].CorrectAnswer = "nope"
	report := s.RunAll(bad)
	assert.False(t, report.QuestionBank.Valid)
	assert.False(t, report.Overall.Valid)
	assert.NotEmpty(t, report.Overall.Errors)
}
