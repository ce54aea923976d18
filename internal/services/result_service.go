// Package services – ResultService
//
// This file implements ResultService, which owns the single authoritative
// result row per test. Two write paths exist with different trust levels:
//
//   - Finalize is the internal completion handoff. Its payload comes from the
//     workflow engine and is stored as-is, without range validation.
//   - Create is the externally reachable path. It verifies that the test and
//     user exist and that every numeric field is inside its allowed domain
//     before writing.
//
// Both paths converge on the same upsert, so repeated completion of the same
// test updates the existing row instead of inserting a second one.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// ResultRepo defines the repository contract required by ResultService.
type ResultRepo interface {
	Upsert(ctx context.Context, db *gorm.DB, r *domain.TestResult) (*domain.TestResult, error)
	GetByTestID(ctx context.Context, db *gorm.DB, testID string) (*domain.TestResult, error)
	ListByUserID(ctx context.Context, db *gorm.DB, userID string) ([]domain.TestResult, error)
}

// ResultService coordinates result persistence and reads.
type ResultService struct {
	DB      *gorm.DB
	Repo    ResultRepo
	Lookups LookupRepo
	Tests   TestRepo
}

// NewResultService constructs a ResultService.
func NewResultService(db *gorm.DB, r ResultRepo, l LookupRepo, t TestRepo) *ResultService {
	return &ResultService{DB: db, Repo: r, Lookups: l, Tests: t}
}

// ResultInput carries the fields of a result write.
type ResultInput struct {
	TestID         string
	UserID         string
	Summary        string
	Score          float64
	QuestionNumber int
	CorrectNumber  int
	ElapseTime     int // minutes
	QAHistory      []domain.QARecord
}

// Finalize records the engine's interview outcome for a test. The payload is
// trusted: no range validation is applied, and neither the test nor the user
// is re-verified. The upsert keeps the one-row-per-test invariant even when a
// completion is replayed.
func (s *ResultService) Finalize(ctx context.Context, in ResultInput) (*domain.TestResult, error) {
	tr := otel.Tracer("services/ResultService")
	ctx, span := tr.Start(ctx, "Finalize",
		trace.WithAttributes(
			attribute.String("test.id", in.TestID),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	return s.Repo.Upsert(ctx, s.DB, &domain.TestResult{
		TestID:         in.TestID,
		UserID:         in.UserID,
		Summary:        in.Summary,
		Score:          in.Score,
		QuestionNumber: in.QuestionNumber,
		CorrectNumber:  in.CorrectNumber,
		ElapseTime:     in.ElapseTime,
		QAHistory:      in.QAHistory,
	})
}

// Create records a result supplied by an external caller. It verifies that
// the referenced test and user exist and that every numeric field is within
// its allowed domain, then performs the same upsert Finalize uses.
func (s *ResultService) Create(ctx context.Context, in ResultInput) (*domain.TestResult, error) {
	tr := otel.Tracer("services/ResultService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("test.id", in.TestID),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	if err := validateResult(in); err != nil {
		return nil, err
	}
	if _, err := s.Tests.Get(ctx, s.DB, in.TestID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	if _, err := s.Lookups.GetUser(ctx, s.DB, in.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.Repo.Upsert(ctx, s.DB, &domain.TestResult{
		TestID:         in.TestID,
		UserID:         in.UserID,
		Summary:        in.Summary,
		Score:          in.Score,
		QuestionNumber: in.QuestionNumber,
		CorrectNumber:  in.CorrectNumber,
		ElapseTime:     in.ElapseTime,
		QAHistory:      in.QAHistory,
	})
}

// GetByTestID returns the result recorded for a test, or ErrResultNotFound.
func (s *ResultService) GetByTestID(ctx context.Context, testID string) (*domain.TestResult, error) {
	r, err := s.Repo.GetByTestID(ctx, s.DB, testID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResultNotFound
	}
	return r, err
}

// ListByUserID returns all results recorded for a user, most recent first.
func (s *ResultService) ListByUserID(ctx context.Context, userID string) ([]domain.TestResult, error) {
	return s.Repo.ListByUserID(ctx, s.DB, userID)
}

// validateResult enforces the numeric domains of the externally reachable
// write path. Each violation names the offending field.
func validateResult(in ResultInput) error {
	switch {
	case in.TestID == "":
		return &ValidationError{Field: "test_id", Reason: "must not be empty"}
	case in.UserID == "":
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	case in.Score < 0 || in.Score > 100:
		return &ValidationError{Field: "score", Reason: "must be between 0 and 100"}
	case in.QuestionNumber < 0:
		return &ValidationError{Field: "question_number", Reason: "must not be negative"}
	case in.CorrectNumber < 0:
		return &ValidationError{Field: "correct_number", Reason: "must not be negative"}
	case in.CorrectNumber > in.QuestionNumber:
		return &ValidationError{Field: "correct_number", Reason: "must not exceed question_number"}
	case in.ElapseTime < 0:
		return &ValidationError{Field: "elapse_time", Reason: "must not be negative"}
	}
	return nil
}
