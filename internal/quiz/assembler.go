package quiz

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizrank-service/internal/domain"
)

// Mode selects how questions are drawn from a bank.
type Mode string

const (
	ModeBalanced Mode = "balanced"
	ModeUniform  Mode = "uniform"
)

// ParseMode returns the mode named by raw, defaulting to balanced.
func ParseMode(raw string) Mode {
	if Mode(raw) == ModeUniform {
		return ModeUniform
	}
	return ModeBalanced
}

// Assemble builds the quiz content determined by bank, count and seed. It is pure:
// identity fields (ID, StudentID, CreatedAt, AttemptNumber) are left for the caller.
func Assemble(bank domain.QuestionBank, count int, seed string, mode Mode) (domain.RandomizedQuiz, error) {
	var selected []domain.Question
	if mode == ModeUniform {
		picked, err := SelectUniform(bank.Questions, count, seed)
		if err != nil {
			return domain.RandomizedQuiz{}, err
		}
		selected = picked
	} else {
		sel, err := SelectBalanced(bank.Questions, count, seed)
		if err != nil {
			return domain.RandomizedQuiz{}, err
		}
		selected = sel.Questions
	}

	shuffled := make([]domain.ShuffledQuestion, 0, len(selected))
	for _, q := range selected {
		sq, err := ShuffleOptions(q, seed)
		if err != nil {
			return domain.RandomizedQuiz{}, err
		}
		shuffled = append(shuffled, sq)
	}
	if err := ValidateShuffling(selected, shuffled); err != nil {
		return domain.RandomizedQuiz{}, err
	}

	return domain.RandomizedQuiz{
		ModuleID:          bank.ModuleID,
		QuestionBankID:    bank.ID,
		Seed:              seed,
		Mode:              string(mode),
		PassingScore:      bank.PassingScore,
		TotalPoints:       bank.TotalPoints,
		SelectedQuestions: shuffled,
	}, nil
}

// ValidateShuffling checks that shuffled covers exactly the original questions and that
// every question kept four options with an in-range correct index.
func ValidateShuffling(original []domain.Question, shuffled []domain.ShuffledQuestion) error {
	if len(original) != len(shuffled) {
		return fmt.Errorf("%w: %d questions selected, %d shuffled", domain.ErrShuffleValidation, len(original), len(shuffled))
	}
	ids := make(map[string]struct{}, len(shuffled))
	for _, q := range shuffled {
		ids[q.OriginalID] = struct{}{}
		if len(q.ShuffledOptions) != domain.OptionsPerQuestion {
			return fmt.Errorf("%w: question %s has %d options", domain.ErrShuffleValidation, q.OriginalID, len(q.ShuffledOptions))
		}
		if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= domain.OptionsPerQuestion {
			return fmt.Errorf("%w: question %s correct index %d", domain.ErrShuffleValidation, q.OriginalID, q.CorrectOptionIndex)
		}
	}
	for _, q := range original {
		if _, ok := ids[q.ID]; !ok {
			return fmt.Errorf("%w: question %s missing", domain.ErrShuffleValidation, q.ID)
		}
	}
	return nil
}

// GenerateSeed builds a fresh seed for an attempt. Repeated calls differ; capture the
// returned seed to replay the quiz.
func GenerateSeed(studentID, moduleID string, attempt int, now time.Time, rnd *rand.Rand) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = alphabet[rnd.Intn(len(alphabet))]
	}
	return fmt.Sprintf("%s_%s_%d_%s_%s",
		studentID, moduleID, attempt,
		strconv.FormatInt(now.UnixMilli(), 36),
		suffix,
	)
}

// Assembler stamps identity onto assembled quizzes.
type Assembler struct {
	mode  Mode
	clock func() time.Time
	newID func() string

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAssembler(mode Mode) *Assembler {
	return &Assembler{
		mode:  mode,
		clock: time.Now,
		newID: uuid.NewString,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewAssemblerWithClock is used by tests for deterministic timestamps and seeds.
func NewAssemblerWithClock(mode Mode, now func() time.Time, src rand.Source) *Assembler {
	a := NewAssembler(mode)
	a.clock = now
	a.rnd = rand.New(src)
	return a
}

// NewQuiz assembles a fresh quiz for a student attempt.
func (a *Assembler) NewQuiz(bank domain.QuestionBank, studentID string, attempt int) (domain.RandomizedQuiz, error) {
	now := a.clock()
	a.mu.Lock()
	seed := GenerateSeed(studentID, bank.ModuleID, attempt, now, a.rnd)
	a.mu.Unlock()

	q, err := Assemble(bank, bank.QuestionsPerQuiz, seed, a.mode)
	if err != nil {
		return domain.RandomizedQuiz{}, err
	}
	q.ID = a.newID()
	q.StudentID = studentID
	q.AttemptNumber = attempt
	q.CreatedAt = now
	return q, nil
}

// Replay reassembles the content of a captured quiz from its seed, using the mode it was
// assembled with. Quizzes without a recorded mode use the assembler's mode.
func (a *Assembler) Replay(bank domain.QuestionBank, captured domain.RandomizedQuiz) (domain.RandomizedQuiz, error) {
	mode := a.mode
	if captured.Mode != "" {
		mode = ParseMode(captured.Mode)
	}
	q, err := Assemble(bank, len(captured.SelectedQuestions), captured.Seed, mode)
	if err != nil {
		return domain.RandomizedQuiz{}, err
	}
	q.ID = captured.ID
	q.StudentID = captured.StudentID
	q.AttemptNumber = captured.AttemptNumber
	q.CreatedAt = captured.CreatedAt
	return q, nil
}
