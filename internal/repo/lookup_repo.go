// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read-side lookups for jobs, users,
// and the question bank, used to enrich tests and to verify references on
// the validated result-creation path.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// GetJob fetches a job by ID, or ErrNotFound.
func GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error) {
	var j domain.Job
	if err := db.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// GetUser fetches a user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateQuestion inserts a question-bank entry, generating its ID.
func CreateQuestion(ctx context.Context, db *gorm.DB, q *domain.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.CreatedAt = time.Now().UTC()
	q.UpdatedAt = q.CreatedAt
	return db.WithContext(ctx).Create(q).Error
}

// ListQuestions returns all bank entries, oldest first. The bank is expected
// to stay small enough to index in memory at startup.
func ListQuestions(ctx context.Context, db *gorm.DB) ([]domain.Question, error) {
	var out []domain.Question
	err := db.WithContext(ctx).Order("created_at asc, id asc").Find(&out).Error
	return out, err
}

// ListQuestionsByJobTitle returns bank entries for a job title.
func ListQuestionsByJobTitle(ctx context.Context, db *gorm.DB, jobTitle string) ([]domain.Question, error) {
	var out []domain.Question
	err := db.WithContext(ctx).
		Where("job_title = ?", jobTitle).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}
