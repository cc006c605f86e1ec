package quiz

import (
	"fmt"

	"quizrank-service/internal/domain"
)

type taggedOption struct {
	text          string
	correct       bool
	originalIndex int
}

// ShuffleOptions reorders the options of q with a per-question seed and tracks where
// the correct answer lands.
func ShuffleOptions(q domain.Question, seed string) (domain.ShuffledQuestion, error) {
	tagged := make([]taggedOption, len(q.Options))
	for i, opt := range q.Options {
		tagged[i] = taggedOption{text: opt, correct: opt == q.CorrectAnswer, originalIndex: i}
	}

	shuffled := Shuffle(tagged, seed+"_"+q.ID)

	correctIndex := -1
	options := make([]string, len(shuffled))
	for i, opt := range shuffled {
		options[i] = opt.text
		if opt.correct && correctIndex < 0 {
			correctIndex = i
		}
	}
	if correctIndex < 0 {
		return domain.ShuffledQuestion{}, fmt.Errorf("question %s: %w", q.ID, domain.ErrCorrectAnswerNotFound)
	}

	return domain.ShuffledQuestion{
		OriginalID:         q.ID,
		Text:               q.Text,
		ShuffledOptions:    options,
		CorrectOptionIndex: correctIndex,
		Explanation:        q.Explanation,
		Difficulty:         q.Difficulty,
		Category:           q.Category,
		Feedback:           q.Feedback,
	}, nil
}
