package domain

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientQuestions is returned when a bank cannot supply the requested number of questions.
	ErrInsufficientQuestions = errors.New("insufficient questions in bank")
	// ErrInvalidQuestionCount is returned for a negative question count.
	ErrInvalidQuestionCount = errors.New("invalid question count")
	// ErrCorrectAnswerNotFound signals a question whose correct answer is not among its options.
	ErrCorrectAnswerNotFound = errors.New("correct answer not found among options")
	// ErrShuffleValidation is returned when an assembled quiz does not match its selection.
	ErrShuffleValidation = errors.New("shuffled quiz failed validation")
	// ErrBankNotFound indicates the question bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrQuizNotFound indicates a randomized quiz is unknown or expired.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoAttempts indicates a student has not submitted any attempt for a module.
	ErrNoAttempts = errors.New("no attempts recorded")
	// ErrQuizOwnership is returned when a student submits another student's quiz.
	ErrQuizOwnership = errors.New("quiz does not belong to student")
	// ErrStudentNotFound indicates a referenced student has no profile.
	ErrStudentNotFound = errors.New("student not found")
	// ErrClassNotFound indicates a referenced class does not exist.
	ErrClassNotFound = errors.New("class not found")
	// ErrRankingNotFound indicates a class has no ranking document yet.
	ErrRankingNotFound = errors.New("class ranking not found")
	// ErrRankingConflict is returned when a ranking document changed since it was read.
	ErrRankingConflict = errors.New("class ranking modified concurrently")
	// ErrPersistence wraps I/O failures of the backing stores.
	ErrPersistence = errors.New("persistence failure")
)

// ErrorKind tells callers how to react to an error.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindFatal errors must block the operation and never be ignored.
	KindFatal
	// KindSkippable errors affect one item of a batch, which continues without it.
	KindSkippable
	// KindRetryable errors may succeed when the operation is repeated.
	KindRetryable
	// KindNotFound errors report a missing top-level resource.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindSkippable:
		return "skippable"
	case KindRetryable:
		return "retryable"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInsufficientQuestions),
		errors.Is(err, ErrInvalidQuestionCount),
		errors.Is(err, ErrCorrectAnswerNotFound),
		errors.Is(err, ErrShuffleValidation),
		errors.Is(err, ErrQuizOwnership):
		return KindFatal
	case errors.Is(err, ErrStudentNotFound):
		return KindSkippable
	case errors.Is(err, ErrPersistence),
		errors.Is(err, ErrRankingConflict),
		errors.Is(err, context.DeadlineExceeded):
		return KindRetryable
	case errors.Is(err, ErrClassNotFound),
		errors.Is(err, ErrBankNotFound),
		errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrNoAttempts),
		errors.Is(err, ErrRankingNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}
