package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizrank-service/internal/domain"
)

// BankLoader loads question bank JSONB from Postgres.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context, moduleID string) (domain.QuestionBank, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_banks WHERE module_id=$1`, moduleID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionBank{}, fmt.Errorf("%w: %s", domain.ErrBankNotFound, moduleID)
	}
	if err != nil {
		return domain.QuestionBank{}, fmt.Errorf("%w: load bank: %w", domain.ErrPersistence, err)
	}
	var bank domain.QuestionBank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return domain.QuestionBank{}, fmt.Errorf("unmarshal bank: %w", err)
	}
	return bank, nil
}

// SaveBank inserts or replaces the bank of bank.ModuleID.
func (l *BankLoader) SaveBank(ctx context.Context, bank domain.QuestionBank) error {
	raw, err := json.Marshal(bank)
	if err != nil {
		return fmt.Errorf("marshal bank: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
INSERT INTO question_banks (module_id, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (module_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		bank.ModuleID, raw)
	if err != nil {
		return fmt.Errorf("%w: save bank %s: %w", domain.ErrPersistence, bank.ModuleID, err)
	}
	return nil
}
