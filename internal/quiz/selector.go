package quiz

import (
	"fmt"

	"quizrank-service/internal/domain"
)

// TierCounts is the number of questions drawn per difficulty tier.
type TierCounts map[domain.Difficulty]int

// Total returns the sum of all tiers.
func (t TierCounts) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// fixedDistributions holds curriculum-chosen tier counts for specific quiz sizes.
var fixedDistributions = map[int]TierCounts{
	7: {domain.DifficultyEasy: 3, domain.DifficultyMedium: 3, domain.DifficultyHard: 1},
	4: {domain.DifficultyEasy: 2, domain.DifficultyMedium: 1, domain.DifficultyHard: 1},
}

// TierDistribution returns how many questions of each difficulty a quiz of count questions gets.
func TierDistribution(count int) TierCounts {
	if fixed, ok := fixedDistributions[count]; ok {
		out := make(TierCounts, len(fixed))
		for k, v := range fixed {
			out[k] = v
		}
		return out
	}
	easy := count * 40 / 100
	hard := count * 20 / 100
	return TierCounts{
		domain.DifficultyEasy:   easy,
		domain.DifficultyMedium: count - easy - hard,
		domain.DifficultyHard:   hard,
	}
}

// Selection is the outcome of a balanced draw.
type Selection struct {
	Questions []domain.Question
	// Shortfall counts, per tier, the questions the tier could not supply. Backfill covers them.
	Shortfall TierCounts
	Backfill  int
}

// SelectUniform shuffles the whole bank with seed and returns the first count questions.
func SelectUniform(questions []domain.Question, count int, seed string) ([]domain.Question, error) {
	if err := checkCount(len(questions), count); err != nil {
		return nil, err
	}
	return Shuffle(questions, seed)[:count], nil
}

// SelectBalanced draws count questions following TierDistribution. Starved tiers are
// backfilled from the remaining questions; it only fails when the bank is smaller than count.
func SelectBalanced(questions []domain.Question, count int, seed string) (Selection, error) {
	if err := checkCount(len(questions), count); err != nil {
		return Selection{}, err
	}

	buckets := make(map[domain.Difficulty][]domain.Question, len(domain.Difficulties))
	for _, q := range questions {
		buckets[q.Difficulty] = append(buckets[q.Difficulty], q)
	}

	dist := TierDistribution(count)
	sel := Selection{Shortfall: TierCounts{}}
	selected := make([]domain.Question, 0, count)
	for _, tier := range domain.Difficulties {
		want := dist[tier]
		bucket := buckets[tier]
		if len(bucket) >= want {
			picked, err := SelectUniform(bucket, want, seed+"_"+string(tier))
			if err != nil {
				return Selection{}, err
			}
			selected = append(selected, picked...)
			continue
		}
		selected = append(selected, bucket...)
		sel.Shortfall[tier] = want - len(bucket)
	}

	if remaining := count - len(selected); remaining > 0 {
		taken := make(map[string]struct{}, len(selected))
		for _, q := range selected {
			taken[q.ID] = struct{}{}
		}
		available := make([]domain.Question, 0, len(questions)-len(selected))
		for _, q := range questions {
			if _, ok := taken[q.ID]; !ok {
				available = append(available, q)
			}
		}
		picked, err := SelectUniform(available, remaining, seed+"_remaining")
		if err != nil {
			return Selection{}, err
		}
		selected = append(selected, picked...)
		sel.Backfill = len(picked)
	}

	sel.Questions = Shuffle(selected, seed+"_final")
	return sel, nil
}

func checkCount(available, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuestionCount, count)
	}
	if available < count {
		return fmt.Errorf("%w: available %d, required %d", domain.ErrInsufficientQuestions, available, count)
	}
	return nil
}
