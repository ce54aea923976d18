// Package services – TestService
//
// This file implements the TestService, which owns the test lifecycle:
// creation (including activation-code allocation), lookups, updates, the
// paginated listings, and the one-way transition to the completed state.
//
// Service-level errors (e.g., ErrTestNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// TestRepo defines the repository contract required by TestService.
type TestRepo interface {
	Create(ctx context.Context, db *gorm.DB, t *domain.Test) error
	Get(ctx context.Context, db *gorm.DB, id string) (*domain.Test, error)
	GetByActivateCode(ctx context.Context, db *gorm.DB, code string) (*domain.Test, error)
	Save(ctx context.Context, db *gorm.DB, t *domain.Test) error
	Delete(ctx context.Context, db *gorm.DB, id string) error
	// UpdateStatus is the atomic conditional status transition; it never
	// moves a test out of the completed state.
	UpdateStatus(ctx context.Context, db *gorm.DB, id string, status domain.TestStatus) (*domain.Test, error)
	Count(ctx context.Context, db *gorm.DB, filter map[string]any) (int64, error)
	ListPage(ctx context.Context, db *gorm.DB, filter map[string]any, offset, limit int) ([]domain.Test, error)
}

// LookupRepo provides the read-side enrichment lookups.
type LookupRepo interface {
	GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error)
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
}

// CodeFunc produces a candidate activation code of n decimal digits.
// The default draws uniformly at random; tests inject deterministic
// sequences.
type CodeFunc func(n int) string

// randDigits is the default CodeFunc.
func randDigits(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + rand.IntN(10)))
	}
	return b.String()
}

// Activation-code allocation parameters: up to maxCodeAttempts draws at each
// length before growing the code by one digit and resetting the budget.
const (
	defaultCodeLength = 4
	maxCodeAttempts   = 10
)

// Defaults applied when a creation request leaves fields empty.
const (
	defaultTestTime   = 60 // minutes
	defaultExpireDays = 7
)

// TestService provides test lifecycle operations.
type TestService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the test repository used by this service.
	Repo TestRepo
	// Lookups resolves job/user references for enrichment.
	Lookups LookupRepo

	// Codes generates candidate activation codes; defaults to a uniform
	// random draw.
	Codes CodeFunc
	// CodeLength is the starting activation-code length in digits.
	CodeLength int
	// DefaultTime is the time allowance in minutes applied when a creation
	// request omits test_time.
	DefaultTime int
	// ExpireDays is the number of days before an unused test expires.
	ExpireDays int
}

// NewTestService constructs a TestService with default code generation.
func NewTestService(db *gorm.DB, r TestRepo, l LookupRepo) *TestService {
	return &TestService{
		DB:         db,
		Repo:       r,
		Lookups:    l,
		Codes:      randDigits,
		CodeLength: defaultCodeLength,
	}
}

// CreateTestInput carries the fields accepted when issuing a test.
type CreateTestInput struct {
	Type              string
	Language          string
	Difficulty        string
	JobID             string
	UserID            string
	QuestionIDs       []string
	ExaminationPoints []string
	TestTime          int // minutes; 0 means default
}

// Create issues a new test: validates the enums, allocates a unique
// activation code, enriches job/user names, and persists an OPEN test with
// the default timing window.
func (s *TestService) Create(ctx context.Context, in CreateTestInput) (*domain.Test, error) {
	if !validTestType(in.Type) {
		return nil, &ValidationError{Field: "type", Reason: "unknown test type " + in.Type}
	}
	if !validDifficulty(in.Difficulty) {
		return nil, &ValidationError{Field: "difficulty", Reason: "unknown difficulty " + in.Difficulty}
	}
	lang := normalizeLanguage(in.Language)
	if lang == "" {
		return nil, &ValidationError{Field: "language", Reason: "language is required"}
	}

	testTime := in.TestTime
	if testTime <= 0 {
		testTime = s.defaultTime()
	}

	var jobTitle string
	if in.JobID != "" {
		if job, err := s.Lookups.GetJob(ctx, s.DB, in.JobID); err == nil {
			jobTitle = job.JobTitle
		}
	}
	var userName string
	if in.UserID != "" {
		if user, err := s.Lookups.GetUser(ctx, s.DB, in.UserID); err == nil {
			userName = user.UserName
		}
	}

	now := time.Now().UTC()
	t := &domain.Test{
		ID:                uuid.NewString(),
		Type:              in.Type,
		Language:          lang,
		Difficulty:        in.Difficulty,
		Status:            domain.TestStatusOpen,
		JobID:             in.JobID,
		JobTitle:          jobTitle,
		UserID:            in.UserID,
		UserName:          userName,
		QuestionIDs:       in.QuestionIDs,
		ExaminationPoints: in.ExaminationPoints,
		TestTime:          testTime,
		CreateDate:        now,
		StartDate:         now,
		ExpireDate:        now.AddDate(0, 0, s.expireDays()),
		UpdateDate:        now,
	}

	// The allocator's uniqueness check and this insert are not atomic; the
	// unique index on activate_code is the backstop, and a conflict here
	// re-enters allocation.
	for {
		code, err := s.allocateCode(ctx, s.codeLength())
		if err != nil {
			return nil, err
		}
		t.ActivateCode = code
		err = s.Repo.Create(ctx, s.DB, t)
		if err == nil {
			return t, nil
		}
		if !isUniqueCodeConflict(err) {
			return nil, err
		}
	}
}

// allocateCode draws candidate codes of the given length, checking each
// against the store; after maxCodeAttempts collisions it grows the length by
// one digit and resets the attempt budget. The code space is infinite, so
// allocation never gives up.
func (s *TestService) allocateCode(ctx context.Context, length int) (string, error) {
	for {
		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code := s.Codes(length)
			_, err := s.Repo.GetByActivateCode(ctx, s.DB, code)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return code, nil
			}
			if err != nil {
				return "", err
			}
			// Collision: some test already holds this code.
		}
		length++
	}
}

func (s *TestService) codeLength() int {
	if s.CodeLength > 0 {
		return s.CodeLength
	}
	return defaultCodeLength
}

func (s *TestService) defaultTime() int {
	if s.DefaultTime > 0 {
		return s.DefaultTime
	}
	return defaultTestTime
}

func (s *TestService) expireDays() int {
	if s.ExpireDays > 0 {
		return s.ExpireDays
	}
	return defaultExpireDays
}

// Get returns a test by ID or ErrTestNotFound.
func (s *TestService) Get(ctx context.Context, id string) (*domain.Test, error) {
	t, err := s.Repo.Get(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTestNotFound
	}
	return t, err
}

// GetByActivateCode returns the test a candidate's activation code refers
// to. Completed tests are not activatable and surface as ErrTestNotFound.
func (s *TestService) GetByActivateCode(ctx context.Context, code string) (*domain.Test, error) {
	t, err := s.Repo.GetByActivateCode(ctx, s.DB, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTestNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Status == domain.TestStatusCompleted {
		return nil, ErrTestNotFound
	}
	return t, nil
}

// UpdateTestInput carries optional field updates; nil pointers are left
// unchanged.
type UpdateTestInput struct {
	Type              *string
	Language          *string
	Difficulty        *string
	JobID             *string
	UserID            *string
	QuestionIDs       []string
	ExaminationPoints []string
	TestTime          *int
}

// Update applies the provided fields to a test. The status is deliberately
// not updatable here; the only status transition is AdvanceToCompleted and
// the orchestrator's in-progress mark.
func (s *TestService) Update(ctx context.Context, id string, in UpdateTestInput) (*domain.Test, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Type != nil {
		if !validTestType(*in.Type) {
			return nil, &ValidationError{Field: "type", Reason: "unknown test type " + *in.Type}
		}
		t.Type = *in.Type
	}
	if in.Language != nil {
		t.Language = normalizeLanguage(*in.Language)
	}
	if in.Difficulty != nil {
		if !validDifficulty(*in.Difficulty) {
			return nil, &ValidationError{Field: "difficulty", Reason: "unknown difficulty " + *in.Difficulty}
		}
		t.Difficulty = *in.Difficulty
	}
	if in.JobID != nil {
		t.JobID = *in.JobID
	}
	if in.UserID != nil {
		t.UserID = *in.UserID
	}
	if in.QuestionIDs != nil {
		t.QuestionIDs = in.QuestionIDs
	}
	if in.ExaminationPoints != nil {
		t.ExaminationPoints = in.ExaminationPoints
	}
	if in.TestTime != nil {
		t.TestTime = *in.TestTime
	}
	if err := s.Repo.Save(ctx, s.DB, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a test, returning ErrTestNotFound when missing.
func (s *TestService) Delete(ctx context.Context, id string) error {
	err := s.Repo.Delete(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTestNotFound
	}
	return err
}

// ListPage returns a page of tests plus the total count, optionally filtered
// by exact-match columns.
func (s *TestService) ListPage(ctx context.Context, filter map[string]any, page, pageSize int) ([]domain.Test, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.Count(ctx, s.DB, filter)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Test{}, 0, nil
	}

	items, err := s.Repo.ListPage(ctx, s.DB, filter, offset, pageSize)
	return items, total, err
}

// AdvanceToCompleted atomically moves a test to the completed state, setting
// close_date exactly once. Repeated calls after the first are no-ops that
// still return the stored completed record. Fails with ErrTestNotFound when
// no such test exists.
func (s *TestService) AdvanceToCompleted(ctx context.Context, id string) (*domain.Test, error) {
	t, err := s.Repo.UpdateStatus(ctx, s.DB, id, domain.TestStatusCompleted)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTestNotFound
	}
	return t, err
}

// MarkInProgress moves an open test to in_progress. The conditional update
// never touches completed tests, so this is safe to call on any interaction.
func (s *TestService) MarkInProgress(ctx context.Context, id string) (*domain.Test, error) {
	t, err := s.Repo.UpdateStatus(ctx, s.DB, id, domain.TestStatusInProgress)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTestNotFound
	}
	return t, err
}

func validTestType(t string) bool {
	switch t {
	case domain.TestTypeInterview, domain.TestTypeCoding, domain.TestTypeBehavior:
		return true
	}
	return false
}

func validDifficulty(d string) bool {
	switch d {
	case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
		return true
	}
	return false
}

// normalizeLanguage canonicalizes BCP-47 inputs ("EN-us" -> "en-US") and
// leaves free-text language names ("English") untouched.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	if tag, err := language.Parse(lang); err == nil {
		return tag.String()
	}
	return lang
}

// isUniqueCodeConflict reports whether err is the activation-code unique
// index rejecting an insert.
func isUniqueCodeConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "activate_code") &&
		(strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate"))
}
