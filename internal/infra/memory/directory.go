package memory

import (
	"context"
	"sort"
	"sync"

	"quizrank-service/internal/domain"
)

// Directory holds students, classes, enrollments and unified scores in memory.
// It implements app.ScoreStore and ranking.ScoreRepository.
type Directory struct {
	mu          sync.RWMutex
	students    map[string]domain.StudentProfile
	classes     map[string]domain.ClassInfo
	classOrder  []string
	enrollments map[string][]enrollment
	scores      map[string]domain.UnifiedScore
}

type enrollment struct {
	studentID string
	status    string
}

func NewDirectory() *Directory {
	return &Directory{
		students:    make(map[string]domain.StudentProfile),
		classes:     make(map[string]domain.ClassInfo),
		enrollments: make(map[string][]enrollment),
		scores:      make(map[string]domain.UnifiedScore),
	}
}

func (d *Directory) PutStudent(p domain.StudentProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students[p.ID] = p
}

func (d *Directory) PutClass(c domain.ClassInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.classes[c.ID]; !ok {
		d.classOrder = append(d.classOrder, c.ID)
	}
	d.classes[c.ID] = c
}

// Enroll sets the enrollment status of studentID in classID, keeping first-enrollment order.
func (d *Directory) Enroll(classID, studentID, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.enrollments[classID]
	for i := range list {
		if list[i].studentID == studentID {
			list[i].status = status
			return
		}
	}
	d.enrollments[classID] = append(list, enrollment{studentID: studentID, status: status})
}

// DeleteScore removes the unified score of studentID. It reports false when none existed.
func (d *Directory) DeleteScore(_ context.Context, studentID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.scores[studentID]
	delete(d.scores, studentID)
	return ok, nil
}

func (d *Directory) GetClass(_ context.Context, classID string) (domain.ClassInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.classes[classID]
	if !ok {
		return domain.ClassInfo{}, domain.ErrClassNotFound
	}
	return c, nil
}

func (d *Directory) ListActiveClasses(_ context.Context) ([]domain.ClassInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.ClassInfo
	for _, id := range d.classOrder {
		if c := d.classes[id]; c.Status == domain.ClassStatusActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *Directory) ActiveStudentIDs(_ context.Context, classID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for _, e := range d.enrollments[classID] {
		if e.status == domain.ClassStatusActive {
			out = append(out, e.studentID)
		}
	}
	return out, nil
}

func (d *Directory) ActiveClassIDs(_ context.Context, studentID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for classID, list := range d.enrollments {
		for _, e := range list {
			if e.studentID == studentID && e.status == domain.ClassStatusActive {
				out = append(out, classID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (d *Directory) GetStudent(_ context.Context, studentID string) (domain.StudentProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.students[studentID]
	if !ok {
		return domain.StudentProfile{}, domain.ErrStudentNotFound
	}
	return p, nil
}

func (d *Directory) GetScore(_ context.Context, studentID string) (domain.UnifiedScore, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.scores[studentID]
	if !ok {
		return domain.UnifiedScore{StudentID: studentID}, false, nil
	}
	return cloneScore(s), true, nil
}

func (d *Directory) SaveScore(_ context.Context, s domain.UnifiedScore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scores[s.StudentID] = cloneScore(s)
	return nil
}

func cloneScore(s domain.UnifiedScore) domain.UnifiedScore {
	modules := make(map[string]float64, len(s.ModuleScores))
	for k, v := range s.ModuleScores {
		modules[k] = v
	}
	s.ModuleScores = modules
	return s
}
