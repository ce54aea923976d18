// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Test model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a test is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service layer
// and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateTest inserts a new test row. The caller supplies the ID and the
// activation code; a duplicate code surfaces as a unique-constraint error
// (the allocator treats that as a collision and retries).
func CreateTest(ctx context.Context, db *gorm.DB, t *domain.Test) error {
	return db.WithContext(ctx).Create(t).Error
}

// GetTest fetches a test by ID, or ErrNotFound if missing.
func GetTest(ctx context.Context, db *gorm.DB, id string) (*domain.Test, error) {
	var t domain.Test
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTestByActivateCode fetches a test by its activation code, or ErrNotFound.
func GetTestByActivateCode(ctx context.Context, db *gorm.DB, code string) (*domain.Test, error) {
	var t domain.Test
	if err := db.WithContext(ctx).Where("activate_code = ?", code).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTest persists field updates on an existing test and bumps UpdateDate.
func SaveTest(ctx context.Context, db *gorm.DB, t *domain.Test) error {
	t.UpdateDate = time.Now().UTC()
	return db.WithContext(ctx).Save(t).Error
}

// DeleteTest removes a test by ID. Returns ErrNotFound when no row matched.
func DeleteTest(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Test{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTestStatus performs the atomic conditional status transition: it
// updates status (and close_date when moving to completed) only when the
// stored status is not already terminal. The updated row is returned in all
// cases, so repeating the call after the first transition is a no-op that
// still yields the stored record.
//
// Returns ErrNotFound when no test with the given id exists.
func UpdateTestStatus(ctx context.Context, db *gorm.DB, id string, status domain.TestStatus) (*domain.Test, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":      status,
		"update_date": now,
	}
	if status == domain.TestStatusCompleted {
		updates["close_date"] = now
	}
	res := db.WithContext(ctx).
		Model(&domain.Test{}).
		Where("id = ? AND status <> ?", id, domain.TestStatusCompleted).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	// Zero rows affected means either the test is already completed (fine,
	// idempotent) or it does not exist; the follow-up read distinguishes.
	return GetTest(ctx, db, id)
}

// CountTests returns the total number of tests, optionally filtered.
func CountTests(ctx context.Context, db *gorm.DB, filter map[string]any) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.Test{})
	for k, v := range filter {
		q = q.Where(k+" = ?", v)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListTestsPage returns a page of tests ordered by creation time descending,
// optionally filtered by exact-match columns (user_id, job_id, status, type).
func ListTestsPage(ctx context.Context, db *gorm.DB, filter map[string]any, offset, limit int) ([]domain.Test, error) {
	var out []domain.Test
	q := db.WithContext(ctx).Order("create_date desc, id desc")
	for k, v := range filter {
		q = q.Where(k+" = ?", v)
	}
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}
