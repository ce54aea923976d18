// Package domain defines the persistence models for tests, test results,
// questions, jobs, and users. These types are mapped with GORM and form the
// core data layer of the interview backend.
package domain

import (
	"time"
)

// TestStatus is the lifecycle state of a test. The only terminal state is
// TestStatusCompleted; once set it never changes.
type TestStatus string

const (
	TestStatusOpen       TestStatus = "open"
	TestStatusInProgress TestStatus = "in_progress"
	TestStatusCompleted  TestStatus = "completed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s TestStatus) Valid() bool {
	switch s {
	case TestStatusOpen, TestStatusInProgress, TestStatusCompleted:
		return true
	}
	return false
}

// Test types supported by the interview flow.
const (
	TestTypeInterview = "interview"
	TestTypeCoding    = "coding"
	TestTypeBehavior  = "behavior"
)

// Difficulty levels accepted for a test.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// QARecord is one question/answer/summary triple from an interview
// transcript. It appears both in workflow checkpoints and in the persisted
// TestResult snapshot.
type QARecord struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Summary  string `json:"summary"`
}

// Test represents one issued interview test: who it is for, which job it
// examines, the activation code a candidate types to start it, and the
// lifecycle window.
//
// Invariants:
//   - ActivateCode is unique among stored tests (the DB unique index
//     backstops the allocator's check-then-act race).
//   - Once Status is TestStatusCompleted it never changes, and CloseDate is
//     set exactly once at that transition.
type Test struct {
	ID                string     `json:"test_id"        gorm:"type:char(36);primaryKey"`
	ActivateCode      string     `json:"activate_code"  gorm:"type:varchar(16);not null;uniqueIndex:ux_tests_activate_code"`
	Type              string     `json:"type"           gorm:"type:varchar(32);not null"`
	Language          string     `json:"language"       gorm:"type:varchar(32);not null"`
	Difficulty        string     `json:"difficulty"     gorm:"type:varchar(16);not null"`
	Status            TestStatus `json:"status"         gorm:"type:varchar(16);not null;index"`
	JobID             string     `json:"job_id,omitempty"    gorm:"type:char(36);index"`
	JobTitle          string     `json:"job_title,omitempty" gorm:"type:varchar(255)"`
	UserID            string     `json:"user_id,omitempty"   gorm:"type:varchar(64);index"`
	UserName          string     `json:"user_name,omitempty" gorm:"type:varchar(255)"`
	QuestionIDs       []string   `json:"question_ids"        gorm:"serializer:json"`
	ExaminationPoints []string   `json:"examination_points"  gorm:"serializer:json"`
	TestTime          int        `json:"test_time"      gorm:"not null"` // minutes
	CreateDate        time.Time  `json:"create_date"`
	StartDate         time.Time  `json:"start_date"`
	ExpireDate        time.Time  `json:"expire_date"`
	UpdateDate        time.Time  `json:"update_date"`
	CloseDate         *time.Time `json:"close_date,omitempty"`
}

// TableName returns the database table name for Test.
func (Test) TableName() string { return "tests" }

// TestResult is the single authoritative outcome of a test. At most one row
// exists per test; a repeated completion updates the existing row instead of
// inserting a second one.
type TestResult struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	TestID         string     `json:"test_id"         gorm:"type:char(36);not null;uniqueIndex:ux_results_test"`
	UserID         string     `json:"user_id"         gorm:"type:varchar(64);not null;index"`
	Summary        string     `json:"summary"         gorm:"type:text"`
	Score          float64    `json:"score"           gorm:"not null"` // 0..100
	QuestionNumber int        `json:"question_number" gorm:"not null"`
	CorrectNumber  int        `json:"correct_number"  gorm:"not null"`
	ElapseTime     int        `json:"elapse_time"     gorm:"not null"` // minutes
	QAHistory      []QARecord `json:"qa_history"      gorm:"serializer:json"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for TestResult.
func (TestResult) TableName() string { return "test_results" }

// Question is a bank entry used to seed interview prompts for a job title.
type Question struct {
	ID                string    `json:"question_id"  gorm:"type:char(36);primaryKey"`
	Question          string    `json:"question"     gorm:"type:text;not null"`
	Answer            string    `json:"answer"       gorm:"type:text"`
	JobTitle          string    `json:"job_title"    gorm:"type:varchar(255);index"`
	ExaminationPoints []string  `json:"examination_points" gorm:"serializer:json"`
	Language          string    `json:"language"     gorm:"type:varchar(32)"`
	Difficulty        string    `json:"difficulty"   gorm:"type:varchar(16)"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Question.
func (Question) TableName() string { return "questions" }

// Job is the position a test examines. Read-only from the core's point of
// view; used to enrich tests with a title.
type Job struct {
	ID              string    `json:"job_id"          gorm:"type:char(36);primaryKey"`
	JobTitle        string    `json:"job_title"       gorm:"type:varchar(255);not null"`
	JobDescription  string    `json:"job_description" gorm:"type:text"`
	TechnicalSkills []string  `json:"technical_skills" gorm:"serializer:json"`
	SoftSkills      []string  `json:"soft_skills"      gorm:"serializer:json"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string { return "jobs" }

// User is a candidate account. Only existence checks and name enrichment are
// performed by this service.
type User struct {
	ID        string    `json:"user_id"   gorm:"type:varchar(64);primaryKey"`
	UserName  string    `json:"user_name" gorm:"type:varchar(255);not null"`
	Email     string    `json:"email"     gorm:"type:varchar(255);index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
