package ranking

import (
	"math"
	"sort"
	"strings"
	"time"

	"quizrank-service/internal/domain"
)

const (
	// SignificanceThreshold is the smallest score change that justifies re-ranking a class.
	SignificanceThreshold = 0.1
	// CompletionThreshold is the score at which a module, or a student, counts as completed.
	CompletionThreshold = 70.0
	// SchemaVersion is stamped on every fully rebuilt ranking document.
	SchemaVersion = "2.0"
	// DefaultStudentName is displayed when a profile carries no usable name.
	DefaultStudentName = "Estudante"

	// float64 subtraction of scores with one decimal can land just under the threshold.
	significanceTolerance = 1e-9
)

// Significant reports whether moving from previous to current is worth a ranking update.
func Significant(previous, current float64) bool {
	return math.Abs(current-previous) >= SignificanceThreshold-significanceTolerance
}

// ClampScore bounds a normalized score to [0, 100].
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

// CompletedModules counts module scores at or above CompletionThreshold.
func CompletedModules(moduleScores map[string]float64) int {
	n := 0
	for _, s := range moduleScores {
		if s >= CompletionThreshold {
			n++
		}
	}
	return n
}

// FirstName returns the first word of the first non-blank candidate.
func FirstName(candidates ...string) string {
	for _, c := range candidates {
		if fields := strings.Fields(c); len(fields) > 0 {
			return fields[0]
		}
	}
	return DefaultStudentName
}

// AnonymousID returns the profile's anonymous id, or the upper-cased last four
// characters of the student id.
func AnonymousID(p domain.StudentProfile) string {
	if p.AnonymousID != "" {
		return p.AnonymousID
	}
	id := []rune(p.ID)
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return strings.ToUpper(string(id))
}

// newEntry builds a fresh ranking row; ClassRank is assigned by Rerank.
func newEntry(p domain.StudentProfile, score domain.ScoreSnapshot, lastActivity time.Time) domain.ClassRankingEntry {
	return domain.ClassRankingEntry{
		StudentID:            p.ID,
		StudentName:          FirstName(p.DisplayName, p.Name),
		AnonymousID:          AnonymousID(p),
		TotalNormalizedScore: ClampScore(score.NormalizedScore),
		CompletedModules:     CompletedModules(score.ModuleScores),
		LastActivity:         lastActivity,
		IsActive:             true,
		Email:                p.Email,
	}
}

// applyScore replaces the row of p in entries, or appends one, and returns the new slice.
func applyScore(entries []domain.ClassRankingEntry, p domain.StudentProfile, score domain.ScoreSnapshot, now time.Time) []domain.ClassRankingEntry {
	for i := range entries {
		if entries[i].StudentID != p.ID {
			continue
		}
		e := &entries[i]
		e.TotalNormalizedScore = ClampScore(score.NormalizedScore)
		e.CompletedModules = CompletedModules(score.ModuleScores)
		e.LastActivity = now
		e.StudentName = FirstName(p.DisplayName, p.Name, e.StudentName)
		if p.Email != "" {
			e.Email = p.Email
		}
		return entries
	}
	return append(entries, newEntry(p, score, now))
}

// removeEntry drops studentID from entries. It reports whether a row was removed.
func removeEntry(entries []domain.ClassRankingEntry, studentID string) ([]domain.ClassRankingEntry, bool) {
	out := entries[:0:0]
	removed := false
	for _, e := range entries {
		if e.StudentID == studentID {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

func containsStudent(entries []domain.ClassRankingEntry, studentID string) bool {
	for _, e := range entries {
		if e.StudentID == studentID {
			return true
		}
	}
	return false
}

// Rerank keeps active entries, orders them by score descending (ties keep their current
// order) and assigns dense ranks 1..N. The input is not modified.
func Rerank(entries []domain.ClassRankingEntry) []domain.ClassRankingEntry {
	out := make([]domain.ClassRankingEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsActive {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalNormalizedScore > out[j].TotalNormalizedScore
	})
	for i := range out {
		out[i].ClassRank = i + 1
	}
	return out
}

// ComputeMetadata derives the aggregate fields of a ranking from its entries.
// LastFullRebuild and Version are left to the caller.
func ComputeMetadata(entries []domain.ClassRankingEntry) domain.RankingMetadata {
	var m domain.RankingMetadata
	if len(entries) == 0 {
		return m
	}
	total, completed := 0.0, 0
	for _, e := range entries {
		total += e.TotalNormalizedScore
		if e.TotalNormalizedScore >= CompletionThreshold {
			completed++
		}
		if e.IsActive {
			m.ActiveStudents++
		}
	}
	n := float64(len(entries))
	m.AverageScore = round1(total / n)
	m.CompletionRate = round1(float64(completed) / n * 100)
	return m
}

// refold re-ranks entries into doc and recomputes its derived fields.
func refold(doc *domain.ClassRankingDocument, entries []domain.ClassRankingEntry) {
	doc.Rankings = Rerank(entries)
	doc.StudentsCount = len(doc.Rankings)
	m := ComputeMetadata(doc.Rankings)
	m.LastFullRebuild = doc.Metadata.LastFullRebuild
	m.Version = doc.Metadata.Version
	if m.Version == "" {
		m.Version = SchemaVersion
	}
	doc.Metadata = m
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
