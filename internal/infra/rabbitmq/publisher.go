package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"quizrank-service/internal/domain"
)

// Sender publishes a raw message body to a queue.
type Sender interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// ScoreEvents publishes score change events to ScoreChangedQueue. It implements
// app.EventPublisher.
type ScoreEvents struct {
	sender Sender
}

func NewScoreEvents(sender Sender) *ScoreEvents {
	return &ScoreEvents{sender: sender}
}

func (p *ScoreEvents) PublishScoreChange(ctx context.Context, ev domain.ScoreChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode score change: %w", err)
	}
	if err := p.sender.Publish(ctx, ScoreChangedQueue, body); err != nil {
		return fmt.Errorf("%w: publish score change for %s: %w", domain.ErrPersistence, ev.StudentID, err)
	}
	return nil
}
