package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quizrank-service/internal/domain"
)

// DirectorySeed is the YAML shape of a directory fixture: classes, students and enrollments.
type DirectorySeed struct {
	Classes []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Status string `yaml:"status"`
	} `yaml:"classes"`
	Students []struct {
		ID          string `yaml:"id"`
		DisplayName string `yaml:"displayName"`
		Name        string `yaml:"name"`
		AnonymousID string `yaml:"anonymousId"`
		Email       string `yaml:"email"`
	} `yaml:"students"`
	Enrollments []struct {
		ClassID   string `yaml:"classId"`
		StudentID string `yaml:"studentId"`
		Status    string `yaml:"status"`
	} `yaml:"enrollments"`
}

// ReadDirectorySeed decodes a directory fixture file.
func ReadDirectorySeed(path string) (DirectorySeed, error) {
	var seed DirectorySeed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("parse directory seed %s: %w", path, err)
	}
	return seed, nil
}

// Seed adds the classes, students and enrollments of seed. Empty statuses mean active.
func (d *Directory) Seed(seed DirectorySeed) {
	for _, c := range seed.Classes {
		d.PutClass(domain.ClassInfo{ID: c.ID, Name: c.Name, Status: statusOrActive(c.Status)})
	}
	for _, s := range seed.Students {
		d.PutStudent(domain.StudentProfile{
			ID:          s.ID,
			DisplayName: s.DisplayName,
			Name:        s.Name,
			AnonymousID: s.AnonymousID,
			Email:       s.Email,
		})
	}
	for _, e := range seed.Enrollments {
		d.Enroll(e.ClassID, e.StudentID, statusOrActive(e.Status))
	}
}

func statusOrActive(status string) string {
	if status == "" {
		return domain.ClassStatusActive
	}
	return status
}
