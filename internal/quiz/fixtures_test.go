package quiz

import (
	"fmt"

	"quizrank-service/internal/domain"
)

func makeQuestion(id string, difficulty domain.Difficulty, category string) domain.Question {
	return domain.Question{
		ID:            id,
		Text:          "Question " + id,
		Options:       []string{id + "-a", id + "-b", id + "-c", id + "-d"},
		CorrectAnswer: id + "-c",
		Explanation:   "Because " + id + "-c",
		Difficulty:    difficulty,
		Category:      category,
	}
}

// makeBank builds a bank with the given tier sizes; ids are e1.., m1.., h1...
func makeBank(easy, medium, hard, perQuiz int) domain.QuestionBank {
	bank := domain.QuestionBank{
		ID:               "bank-1",
		ModuleID:         "module-1",
		Title:            "Nutritional assessment basics",
		QuestionsPerQuiz: perQuiz,
		PassingScore:     70,
		TotalPoints:      10,
	}
	add := func(prefix string, n int, d domain.Difficulty, cat string) {
		for i := 1; i <= n; i++ {
			bank.Questions = append(bank.Questions, makeQuestion(fmt.Sprintf("%s%d", prefix, i), d, cat))
		}
	}
	add("e", easy, domain.DifficultyEasy, "anthropometry")
	add("m", medium, domain.DifficultyMedium, "food-surveys")
	add("h", hard, domain.DifficultyHard, "body-composition")
	return bank
}

func questionIDs(qs []domain.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func countTiers(qs []domain.Question) map[domain.Difficulty]int {
	out := map[domain.Difficulty]int{}
	for _, q := range qs {
		out[q.Difficulty]++
	}
	return out
}

func correctAnswers(q domain.RandomizedQuiz, n int) map[string]string {
	out := map[string]string{}
	for i, sq := range q.SelectedQuestions {
		if i < n {
			out[sq.OriginalID] = sq.ShuffledOptions[sq.CorrectOptionIndex]
		} else {
			out[sq.OriginalID] = sq.ShuffledOptions[(sq.CorrectOptionIndex+1)%len(sq.ShuffledOptions)]
		}
	}
	return out
}
