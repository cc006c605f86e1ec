package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizrank-service/internal/domain"
)

// AttemptRepository persists submitted attempts. The full attempt is kept as JSONB; the
// columns used for lookups are duplicated.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) SaveAttempt(ctx context.Context, a domain.QuizAttempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO quiz_attempts (id, quiz_id, student_id, module_id, attempt_number, data, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.QuizID, a.StudentID, a.ModuleID, a.AttemptNumber, raw, a.StartedAt, a.CompletedAt)
	if err != nil {
		return persistence("save attempt", err)
	}
	return nil
}

// ListAttempts returns the attempts of studentID on moduleID, oldest first.
func (r *AttemptRepository) ListAttempts(ctx context.Context, studentID, moduleID string) ([]domain.QuizAttempt, error) {
	rows, err := r.pool.Query(ctx, `
SELECT data FROM quiz_attempts
WHERE student_id=$1 AND module_id=$2
ORDER BY started_at, attempt_number`, studentID, moduleID)
	if err != nil {
		return nil, persistence("list attempts", err)
	}
	defer rows.Close()

	var out []domain.QuizAttempt
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, persistence("scan attempt", err)
		}
		var a domain.QuizAttempt
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list attempts", err)
	}
	return out, nil
}
