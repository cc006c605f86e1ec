package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"quizrank-service/internal/domain"
	"quizrank-service/internal/ranking"
)

// ScoreChangeHandler applies one score change event.
type ScoreChangeHandler interface {
	HandleScoreChange(ctx context.Context, ev domain.ScoreChangeEvent) (ranking.TriggerResult, error)
}

// Consumer feeds score change deliveries to a handler. Retryable failures are requeued;
// malformed messages and permanent failures are dropped.
type Consumer struct {
	handler ScoreChangeHandler
	logger  *slog.Logger
}

func NewConsumer(handler ScoreChangeHandler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{handler: handler, logger: logger.With("component", "score_consumer")}
}

// Run handles deliveries until ctx is done or msgs is closed.
func (c *Consumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	c.logger.Info("consumer started", "queue", ScoreChangedQueue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("delivery channel closed", "queue", ScoreChangedQueue)
				return nil
			}
			c.Handle(ctx, msg)
		}
	}
}

// Handle processes one delivery and acknowledges it.
func (c *Consumer) Handle(ctx context.Context, msg amqp.Delivery) {
	var ev domain.ScoreChangeEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil || ev.StudentID == "" {
		c.logger.Error("dropping malformed score change", "error", err, "body", string(msg.Body))
		_ = msg.Nack(false, false)
		return
	}

	res, err := c.handler.HandleScoreChange(ctx, ev)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	// Partial success requeues the whole event; upserts are idempotent.
	requeue := domain.IsRetryable(err) && !msg.Redelivered
	c.logger.Error("score change failed",
		"student_id", ev.StudentID,
		"updated", res.Updated,
		"failed", res.Failed,
		"requeue", requeue,
		"kind", domain.KindOf(err).String(),
		"error", err)
	_ = msg.Nack(false, requeue)
}
