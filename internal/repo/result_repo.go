// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the TestResult
// model. The one-row-per-test invariant lives here: writes go through
// UpsertResult, which updates in place when a row for the test already
// exists.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// GetResultByTestID fetches the result row for a test, or ErrNotFound.
func GetResultByTestID(ctx context.Context, db *gorm.DB, testID string) (*domain.TestResult, error) {
	var r domain.TestResult
	if err := db.WithContext(ctx).Where("test_id = ?", testID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResultsByUserID returns all results belonging to a user, most recent
// first.
func ListResultsByUserID(ctx context.Context, db *gorm.DB, userID string) ([]domain.TestResult, error) {
	var out []domain.TestResult
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// UpsertResult persists r as the single result row for r.TestID: when a row
// already exists its mutable fields are overwritten, otherwise a new row is
// inserted. The stored row is returned.
//
// The read-then-write is not atomic; the unique index on test_id backstops
// concurrent first-completions, and a loser of that race falls back to the
// update path.
func UpsertResult(ctx context.Context, db *gorm.DB, r *domain.TestResult) (*domain.TestResult, error) {
	existing, err := GetResultByTestID(ctx, db, r.TestID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if existing != nil {
		existing.Summary = r.Summary
		existing.Score = r.Score
		existing.QuestionNumber = r.QuestionNumber
		existing.CorrectNumber = r.CorrectNumber
		existing.ElapseTime = r.ElapseTime
		existing.QAHistory = r.QAHistory
		existing.UpdatedAt = time.Now().UTC()
		if err := db.WithContext(ctx).Save(existing).Error; err != nil {
			return nil, err
		}
		return existing, nil
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race; the row now exists, update it instead.
			return UpsertResult(ctx, db, r)
		}
		return nil, err
	}
	return r, nil
}

// isUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
