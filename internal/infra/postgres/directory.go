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

// Directory reads students, classes, enrollments and unified scores from Postgres.
// It implements ranking.ScoreRepository and app.ScoreStore.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) GetClass(ctx context.Context, classID string) (domain.ClassInfo, error) {
	var c domain.ClassInfo
	err := d.pool.QueryRow(ctx, `SELECT id, name, status FROM classes WHERE id=$1`, classID).
		Scan(&c.ID, &c.Name, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ClassInfo{}, fmt.Errorf("%w: %s", domain.ErrClassNotFound, classID)
	}
	if err != nil {
		return domain.ClassInfo{}, persistence("get class", err)
	}
	return c, nil
}

func (d *Directory) ListActiveClasses(ctx context.Context) ([]domain.ClassInfo, error) {
	rows, err := d.pool.Query(ctx, `SELECT id, name, status FROM classes WHERE status=$1 ORDER BY id`, domain.ClassStatusActive)
	if err != nil {
		return nil, persistence("list classes", err)
	}
	defer rows.Close()

	var out []domain.ClassInfo
	for rows.Next() {
		var c domain.ClassInfo
		if err := rows.Scan(&c.ID, &c.Name, &c.Status); err != nil {
			return nil, persistence("scan class", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list classes", err)
	}
	return out, nil
}

func (d *Directory) ActiveStudentIDs(ctx context.Context, classID string) ([]string, error) {
	return d.strings(ctx, "list class students", `
SELECT student_id FROM class_students
WHERE class_id=$1 AND status=$2
ORDER BY enrolled_at, student_id`, classID, domain.ClassStatusActive)
}

func (d *Directory) ActiveClassIDs(ctx context.Context, studentID string) ([]string, error) {
	return d.strings(ctx, "list student classes", `
SELECT class_id FROM class_students
WHERE student_id=$1 AND status=$2
ORDER BY class_id`, studentID, domain.ClassStatusActive)
}

func (d *Directory) GetStudent(ctx context.Context, studentID string) (domain.StudentProfile, error) {
	var p domain.StudentProfile
	err := d.pool.QueryRow(ctx, `SELECT id, display_name, name, anonymous_id, email FROM students WHERE id=$1`, studentID).
		Scan(&p.ID, &p.DisplayName, &p.Name, &p.AnonymousID, &p.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StudentProfile{}, fmt.Errorf("%w: %s", domain.ErrStudentNotFound, studentID)
	}
	if err != nil {
		return domain.StudentProfile{}, persistence("get student", err)
	}
	return p, nil
}

func (d *Directory) GetScore(ctx context.Context, studentID string) (domain.UnifiedScore, bool, error) {
	s := domain.UnifiedScore{StudentID: studentID}
	var modules []byte
	err := d.pool.QueryRow(ctx, `
SELECT normalized_score, module_scores, last_activity FROM unified_scores WHERE student_id=$1`, studentID).
		Scan(&s.NormalizedScore, &modules, &s.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, false, nil
	}
	if err != nil {
		return domain.UnifiedScore{}, false, persistence("get score", err)
	}
	if err := json.Unmarshal(modules, &s.ModuleScores); err != nil {
		return domain.UnifiedScore{}, false, fmt.Errorf("unmarshal module scores: %w", err)
	}
	return s, true, nil
}

func (d *Directory) SaveScore(ctx context.Context, s domain.UnifiedScore) error {
	modules, err := json.Marshal(s.ModuleScores)
	if err != nil {
		return fmt.Errorf("marshal module scores: %w", err)
	}
	_, err = d.pool.Exec(ctx, `
INSERT INTO unified_scores (student_id, normalized_score, module_scores, last_activity)
VALUES ($1, $2, $3, $4)
ON CONFLICT (student_id) DO UPDATE
SET normalized_score = EXCLUDED.normalized_score,
    module_scores = EXCLUDED.module_scores,
    last_activity = EXCLUDED.last_activity`,
		s.StudentID, s.NormalizedScore, modules, s.LastActivity)
	if err != nil {
		return persistence("save score", err)
	}
	return nil
}

// PutStudent inserts or replaces a student profile.
func (d *Directory) PutStudent(ctx context.Context, p domain.StudentProfile) error {
	_, err := d.pool.Exec(ctx, `
INSERT INTO students (id, display_name, name, anonymous_id, email) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET display_name = EXCLUDED.display_name, name = EXCLUDED.name,
    anonymous_id = EXCLUDED.anonymous_id, email = EXCLUDED.email`,
		p.ID, p.DisplayName, p.Name, p.AnonymousID, p.Email)
	if err != nil {
		return persistence("put student", err)
	}
	return nil
}

// PutClass inserts or replaces a class.
func (d *Directory) PutClass(ctx context.Context, c domain.ClassInfo) error {
	_, err := d.pool.Exec(ctx, `
INSERT INTO classes (id, name, status) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`,
		c.ID, c.Name, c.Status)
	if err != nil {
		return persistence("put class", err)
	}
	return nil
}

// Enroll sets the enrollment status of studentID in classID.
func (d *Directory) Enroll(ctx context.Context, classID, studentID, status string) error {
	_, err := d.pool.Exec(ctx, `
INSERT INTO class_students (class_id, student_id, status) VALUES ($1, $2, $3)
ON CONFLICT (class_id, student_id) DO UPDATE SET status = EXCLUDED.status`,
		classID, studentID, status)
	if err != nil {
		return persistence("enroll", err)
	}
	return nil
}

// DeleteScore removes the unified score of studentID. It reports false when none existed.
func (d *Directory) DeleteScore(ctx context.Context, studentID string) (bool, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM unified_scores WHERE student_id=$1`, studentID)
	if err != nil {
		return false, persistence("delete score", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (d *Directory) strings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistence(op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, persistence(op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(op, err)
	}
	return out, nil
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}
