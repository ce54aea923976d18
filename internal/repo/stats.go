// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// TestsStats returns aggregate metadata for a user's tests: the total number
// of rows and the maximum UpdateDate timestamp among those rows.
//
// When the user has no tests, the returned count is 0 and maxUpdated is nil.
func TestsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdated *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Test{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest update_date (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdateDate time.Time
	}
	if err = q.Select("update_date").Order("update_date DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdateDate, nil
}

// ResultsStats returns aggregate metadata for a user's results: the total
// number of rows and the maximum UpdatedAt timestamp among those rows.
func ResultsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdated *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.TestResult{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
