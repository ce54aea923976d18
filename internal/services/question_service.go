// Package services – QuestionService
//
// This file implements the question-bank service. Bank entries seed the
// interviewer's retrieval index, so the write path validates the same enums
// the test lifecycle uses.
package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// QuestionRepo defines the repository contract required by QuestionService.
type QuestionRepo interface {
	Create(ctx context.Context, db *gorm.DB, q *domain.Question) error
	List(ctx context.Context, db *gorm.DB) ([]domain.Question, error)
	ListByJobTitle(ctx context.Context, db *gorm.DB, jobTitle string) ([]domain.Question, error)
}

// QuestionService provides question-bank operations.
type QuestionService struct {
	DB   *gorm.DB
	Repo QuestionRepo
}

// NewQuestionService constructs a QuestionService.
func NewQuestionService(db *gorm.DB, r QuestionRepo) *QuestionService {
	return &QuestionService{DB: db, Repo: r}
}

// CreateQuestionInput carries the fields accepted when adding a bank entry.
type CreateQuestionInput struct {
	Question          string
	Answer            string
	JobTitle          string
	ExaminationPoints []string
	Language          string
	Difficulty        string
}

// Create validates and persists a question-bank entry.
func (s *QuestionService) Create(ctx context.Context, in CreateQuestionInput) (*domain.Question, error) {
	text := strings.TrimSpace(in.Question)
	if text == "" {
		return nil, &ValidationError{Field: "question", Reason: "question text is required"}
	}
	if in.Difficulty != "" && !validDifficulty(in.Difficulty) {
		return nil, &ValidationError{Field: "difficulty", Reason: "unknown difficulty " + in.Difficulty}
	}

	q := &domain.Question{
		Question:          text,
		Answer:            strings.TrimSpace(in.Answer),
		JobTitle:          strings.TrimSpace(in.JobTitle),
		ExaminationPoints: in.ExaminationPoints,
		Language:          normalizeLanguage(in.Language),
		Difficulty:        in.Difficulty,
	}
	if err := s.Repo.Create(ctx, s.DB, q); err != nil {
		return nil, err
	}
	return q, nil
}

// List returns bank entries, restricted to a job title when one is given.
func (s *QuestionService) List(ctx context.Context, jobTitle string) ([]domain.Question, error) {
	if jobTitle = strings.TrimSpace(jobTitle); jobTitle != "" {
		return s.Repo.ListByJobTitle(ctx, s.DB, jobTitle)
	}
	return s.Repo.List(ctx, s.DB)
}
