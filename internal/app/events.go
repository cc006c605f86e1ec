package app

import (
	"context"
	"log/slog"

	"quizrank-service/internal/domain"
	"quizrank-service/internal/ranking"
)

// ScoreChangeHandler applies score change events to the class rankings.
type ScoreChangeHandler interface {
	HandleScoreChange(ctx context.Context, ev domain.ScoreChangeEvent) (ranking.TriggerResult, error)
}

// InlineEvents delivers score changes to a handler in the caller's goroutine.
// Used when no message broker is configured.
type InlineEvents struct {
	handler ScoreChangeHandler
	logger  *slog.Logger
}

func NewInlineEvents(handler ScoreChangeHandler, logger *slog.Logger) *InlineEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineEvents{handler: handler, logger: logger.With("component", "inline_events")}
}

func (e *InlineEvents) PublishScoreChange(ctx context.Context, ev domain.ScoreChangeEvent) error {
	res, err := e.handler.HandleScoreChange(ctx, ev)
	if err != nil {
		return err
	}
	e.logger.Debug("score change applied",
		"student_id", ev.StudentID,
		"skipped", res.Skipped,
		"updated", res.Updated,
		"removed", res.Removed)
	return nil
}
