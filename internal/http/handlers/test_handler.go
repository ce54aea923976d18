// Test HTTP handlers.
//
// This file exposes REST endpoints for test resources:
//   - POST   /tests                    (create, allocates activation code)
//   - GET    /tests                    (list, paginated, ETag support)
//   - GET    /tests/{id}               (fetch)
//   - PUT    /tests/{id}               (update)
//   - DELETE /tests/{id}               (delete)
//   - GET    /tests/activate/{code}    (resolve an activation code)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/domain"
	"github.com/hireloop/go-interview-backend/internal/repo"
	"github.com/hireloop/go-interview-backend/internal/services"
	"github.com/hireloop/go-interview-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// TestService defines test lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TestService interface {
	// Create issues a new test with a fresh activation code.
	Create(ctx context.Context, in services.CreateTestInput) (*domain.Test, error)
	// Get fetches a test by id.
	Get(ctx context.Context, id string) (*domain.Test, error)
	// GetByActivateCode resolves an activation code to its (non-completed) test.
	GetByActivateCode(ctx context.Context, code string) (*domain.Test, error)
	// Update applies partial field updates.
	Update(ctx context.Context, id string, in services.UpdateTestInput) (*domain.Test, error)
	// Delete removes a test.
	Delete(ctx context.Context, id string) error
	// ListPage returns a page of tests and the total count.
	ListPage(ctx context.Context, filter map[string]any, page, pageSize int) ([]domain.Test, int64, error)
}

// ResultService defines result operations consumed by HTTP handlers.
type ResultService interface {
	// Create records a result after validating references and ranges.
	Create(ctx context.Context, in services.ResultInput) (*domain.TestResult, error)
	// GetByTestID fetches the result recorded for a test.
	GetByTestID(ctx context.Context, testID string) (*domain.TestResult, error)
	// ListByUserID lists a user's results, most recent first.
	ListByUserID(ctx context.Context, userID string) ([]domain.TestResult, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for sessions, tests, results, and the
// question bank. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	sessionSvc  SessionService
	testSvc     TestService
	resultSvc   ResultService
	questionSvc QuestionService

	recordIdem IdempotencyRecorder
}

// IdempotencyRecorder persists a served idempotency key so a later retry with
// the same (user, test, key) tuple is recognized as a replay. A duplicate
// insert is not an error; implementations swallow it.
type IdempotencyRecorder func(ctx context.Context, userID, testID, key, responseID string, status int) error

// New constructs and returns a Handlers instance bound to the given services.
func New(sessionSvc SessionService, testSvc TestService, resultSvc ResultService) *Handlers {
	return &Handlers{sessionSvc: sessionSvc, testSvc: testSvc, resultSvc: resultSvc}
}

// WithQuestions attaches the question-bank service. Returns h for chaining.
func (h *Handlers) WithQuestions(q QuestionService) *Handlers {
	h.questionSvc = q
	return h
}

// WithIdempotencyRecorder attaches the recorder the answer endpoint uses to
// remember served keys. Returns h for chaining.
func (h *Handlers) WithIdempotencyRecorder(fn IdempotencyRecorder) *Handlers {
	h.recordIdem = fn
	return h
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateTestRequest is the JSON payload for issuing a test.
type CreateTestRequest struct {
	Type              string   `json:"type" binding:"required" example:"interview"`
	Language          string   `json:"language" binding:"required" example:"en"`
	Difficulty        string   `json:"difficulty" binding:"required" example:"medium"`
	JobID             string   `json:"job_id,omitempty"`
	UserID            string   `json:"user_id,omitempty"`
	QuestionIDs       []string `json:"question_ids,omitempty"`
	ExaminationPoints []string `json:"examination_points,omitempty"`
	// TestTime is the time allowance in minutes; defaults when omitted.
	TestTime int `json:"test_time,omitempty" example:"60"`
}

// UpdateTestRequest is the JSON payload for partial test updates. Absent
// fields are left unchanged.
type UpdateTestRequest struct {
	Type              *string  `json:"type,omitempty"`
	Language          *string  `json:"language,omitempty"`
	Difficulty        *string  `json:"difficulty,omitempty"`
	JobID             *string  `json:"job_id,omitempty"`
	UserID            *string  `json:"user_id,omitempty"`
	QuestionIDs       []string `json:"question_ids,omitempty"`
	ExaminationPoints []string `json:"examination_points,omitempty"`
	TestTime          *int     `json:"test_time,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTestsResponse wraps a page of tests and pagination information.
type ListTestsResponse struct {
	Tests      []domain.Test `json:"tests"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	return utils.PageWindow(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
}

// listFilter builds the exact-match column filter for test listings from
// whitelisted query parameters.
func listFilter(c *gin.Context) map[string]any {
	filter := map[string]any{}
	for _, col := range []string{"user_id", "job_id", "status", "type"} {
		if v := strings.TrimSpace(c.Query(col)); v != "" {
			filter[col] = v
		}
	}
	return filter
}

//
// Handlers
//

// CreateTest godoc
// @ID          createTest
// @Summary     Issue a new test
// @Description Creates a test with a freshly allocated, unique activation code and returns the test resource.
// @Tags        Tests
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateTestRequest  true  "Create test payload"
//
// @Success     201  {object}  domain.Test
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tests [post]
func (h *Handlers) CreateTest(c *gin.Context) {
	var req CreateTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var in services.CreateTestInput
	if err := copier.Copy(&in, &req); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	t, err := h.testSvc.Create(c.Request.Context(), in)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			fail(c, http.StatusBadRequest, ErrCodeValidation, ve.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, t)
}

// ListTests godoc
// @ID          listTests
// @Summary     List tests (paginated)
// @Description Returns a page of tests, optionally filtered by user_id, job_id, status, or type. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Tests
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       user_id        query   string  false "Filter by owning user"
// @Param       status         query   string  false "Filter by lifecycle status"  Enums(open, in_progress, completed)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListTestsResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tests [get]
func (h *Handlers) ListTests(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)
	filter := listFilter(c)

	// ETag pre-check (best effort), only for single-user listings.
	var db *gorm.DB
	if svc, ok := h.testSvc.(*services.TestService); ok {
		db = svc.DB
	}
	if uid, _ := filter["user_id"].(string); db != nil && uid != "" {
		count, maxTS, err := repo.TestsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"tests:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.testSvc.ListPage(ctx, filter, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListTestsResponse{
		Tests: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// GetTest godoc
// @ID          getTest
// @Summary     Fetch a test
// @Tags        Tests
// @Produce     json
//
// @Param       id  path  string  true  "Test ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Test
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Test not found"
// @Router      /tests/{id} [get]
func (h *Handlers) GetTest(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "test id must be a UUID")
		return
	}
	t, err := h.testSvc.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "test not found")
		return
	}
	ok(c, http.StatusOK, t)
}

// UpdateTest godoc
// @ID          updateTest
// @Summary     Update a test
// @Description Applies partial field updates to a test. The lifecycle status cannot be changed here.
// @Tags        Tests
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Test ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateTestRequest  true  "Field updates"
//
// @Success     200  {object} domain.Test
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Test not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tests/{id} [put]
func (h *Handlers) UpdateTest(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "test id must be a UUID")
		return
	}
	var req UpdateTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var in services.UpdateTestInput
	if err := copier.Copy(&in, &req); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	t, err := h.testSvc.Update(c.Request.Context(), id, in)
	if err != nil {
		var ve *services.ValidationError
		switch {
		case errors.As(err, &ve):
			fail(c, http.StatusBadRequest, ErrCodeValidation, ve.Error())
		case errors.Is(err, services.ErrTestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "test not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteTest godoc
// @ID          deleteTest
// @Summary     Delete a test
// @Tags        Tests
//
// @Param       id  path  string  true  "Test ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Test not found"
// @Router      /tests/{id} [delete]
func (h *Handlers) DeleteTest(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "test id must be a UUID")
		return
	}
	if err := h.testSvc.Delete(c.Request.Context(), id); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "test not found")
		return
	}
	noContent(c)
}

// ActivateTest godoc
// @ID          activateTest
// @Summary     Resolve an activation code
// @Description Returns the test an activation code refers to. Completed tests are not activatable and yield 404.
// @Tags        Tests
// @Produce     json
//
// @Param       code  path  string  true  "Activation code"  example(4821)
//
// @Success     200  {object} domain.Test
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "No activatable test for this code"
// @Router      /tests/activate/{code} [get]
func (h *Handlers) ActivateTest(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "activation code required")
		return
	}
	t, err := h.testSvc.GetByActivateCode(c.Request.Context(), code)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no activatable test for this code")
		return
	}
	ok(c, http.StatusOK, t)
}
