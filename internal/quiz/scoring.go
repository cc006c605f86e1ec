package quiz

import (
	"sort"

	"quizrank-service/internal/domain"
)

// UnansweredLabel is recorded as the student answer of skipped questions.
const UnansweredLabel = "Not answered"

// roundRatio returns round_half_up(scale * num / den) using integer arithmetic.
func roundRatio(scale, num, den int) int {
	if den <= 0 {
		return 0
	}
	return (2*scale*num + den) / (2 * den)
}

// Score compares answers (keyed by original question id) with quiz. Missing answers count
// as incorrect. An empty quiz scores zero and does not pass.
func Score(q domain.RandomizedQuiz, answers map[string]string) domain.ScoreCalculation {
	total := len(q.SelectedQuestions)
	feedback := make([]domain.QuestionFeedback, 0, total)
	correct := 0

	for _, sq := range q.SelectedQuestions {
		var correctOption string
		if sq.CorrectOptionIndex >= 0 && sq.CorrectOptionIndex < len(sq.ShuffledOptions) {
			correctOption = sq.ShuffledOptions[sq.CorrectOptionIndex]
		}
		answer, answered := answers[sq.OriginalID]
		isCorrect := answered && correctOption != "" && answer == correctOption
		if isCorrect {
			correct++
		}
		if !answered || answer == "" {
			answer = UnansweredLabel
		}
		feedback = append(feedback, domain.QuestionFeedback{
			QuestionID:    sq.OriginalID,
			Correct:       isCorrect,
			StudentAnswer: answer,
			CorrectAnswer: correctOption,
			Explanation:   sq.Explanation,
			Category:      sq.Category,
		})
	}

	if total == 0 {
		return domain.ScoreCalculation{Feedback: feedback}
	}
	percentage := roundRatio(100, correct, total)
	return domain.ScoreCalculation{
		Score:          roundRatio(q.TotalPoints, correct, total),
		Percentage:     percentage,
		Passed:         percentage >= q.PassingScore,
		CorrectCount:   correct,
		TotalQuestions: total,
		Feedback:       feedback,
	}
}

const uncategorized = "uncategorized"

// CategoryBreakdown groups feedback by category, worst percentage first.
func CategoryBreakdown(feedback []domain.QuestionFeedback) []domain.CategoryPerformance {
	index := map[string]int{}
	var out []domain.CategoryPerformance
	for _, f := range feedback {
		cat := f.Category
		if cat == "" {
			cat = uncategorized
		}
		i, ok := index[cat]
		if !ok {
			i = len(out)
			index[cat] = i
			out = append(out, domain.CategoryPerformance{Category: cat})
		}
		out[i].Total++
		if f.Correct {
			out[i].Correct++
		}
	}
	for i := range out {
		out[i].Percentage = roundRatio(100, out[i].Correct, out[i].Total)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percentage < out[j].Percentage })
	return out
}

// SummarizeAttempts aggregates a student's attempts on one module. It returns false when
// attempts is empty.
func SummarizeAttempts(attempts []domain.QuizAttempt) (domain.StudentQuizStats, bool) {
	if len(attempts) == 0 {
		return domain.StudentQuizStats{}, false
	}
	sorted := make([]domain.QuizAttempt, len(attempts))
	copy(sorted, attempts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartedAt.Before(sorted[j].StartedAt) })

	stats := domain.StudentQuizStats{
		StudentID:      sorted[0].StudentID,
		ModuleID:       sorted[0].ModuleID,
		TotalAttempts:  len(sorted),
		FirstAttemptAt: sorted[0].StartedAt,
		LastAttemptAt:  sorted[len(sorted)-1].StartedAt,
	}
	scoreSum, pctSum := 0, 0
	for _, a := range sorted {
		scoreSum += a.Score
		pctSum += a.Percentage
		stats.TotalTimeSpent += a.TimeSpent
		if a.Score > stats.BestScore {
			stats.BestScore = a.Score
		}
		if a.Percentage > stats.BestPercentage {
			stats.BestPercentage = a.Percentage
		}
		if a.Passed && !stats.Completed {
			stats.Completed = true
			stats.CompletedAt = a.CompletedAt
		}
	}
	stats.AverageScore = float64(roundRatio(100, scoreSum, len(sorted))) / 100
	stats.AveragePercentage = roundRatio(1, pctSum, len(sorted))
	return stats, true
}

// ErrorPatterns counts incorrect answers per category across attempts.
func ErrorPatterns(attempts []domain.QuizAttempt) map[string]int {
	out := map[string]int{}
	for _, a := range attempts {
		for _, f := range a.Feedback {
			if !f.Correct && f.Category != "" {
				out[f.Category]++
			}
		}
	}
	return out
}
