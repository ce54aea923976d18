// Test result HTTP handlers.
//
// This file exposes REST endpoints for result resources:
//   - POST /results                   (validated external write)
//   - GET  /results/{test_id}         (fetch the result of a test)
//   - GET  /users/{user_id}/results   (list a user's results)
//
// The internal completion path (engine handoff) does not go through these
// handlers; it writes via the trusted Finalize service method.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/hireloop/go-interview-backend/internal/domain"
	"github.com/hireloop/go-interview-backend/internal/repo"
	"github.com/hireloop/go-interview-backend/internal/services"
)

// CreateResultRequest is the JSON payload for recording a result externally.
type CreateResultRequest struct {
	TestID         string            `json:"test_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	UserID         string            `json:"user_id" binding:"required" example:"user123"`
	Summary        string            `json:"summary"`
	Score          float64           `json:"score" example:"86.5"`
	QuestionNumber int               `json:"question_number" example:"8"`
	CorrectNumber  int               `json:"correct_number" example:"6"`
	ElapseTime     int               `json:"elapse_time" example:"42"`
	QAHistory      []domain.QARecord `json:"qa_history,omitempty"`
}

// CreateResult godoc
// @ID          createResult
// @Summary     Record a test result
// @Description Validates references and numeric ranges, then records the result. At most one result exists per test; a repeated write updates it.
// @Tags        Results
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateResultRequest  true  "Result payload"
//
// @Success     201  {object}  domain.TestResult
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Test or user not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /results [post]
func (h *Handlers) CreateResult(c *gin.Context) {
	var req CreateResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var in services.ResultInput
	if err := copier.Copy(&in, &req); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	in.TestID = strings.TrimSpace(in.TestID)
	in.UserID = strings.TrimSpace(in.UserID)

	res, err := h.resultSvc.Create(c.Request.Context(), in)
	if err != nil {
		var ve *services.ValidationError
		switch {
		case errors.As(err, &ve):
			fail(c, http.StatusBadRequest, ErrCodeValidation, ve.Error())
		case errors.Is(err, services.ErrTestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "test not found")
		case errors.Is(err, services.ErrUserNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, res)
}

// GetResult godoc
// @ID          getResult
// @Summary     Fetch the result of a test
// @Tags        Results
// @Produce     json
//
// @Param       test_id  path  string  true  "Test ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.TestResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "No result for this test"
// @Router      /results/{test_id} [get]
func (h *Handlers) GetResult(c *gin.Context) {
	testID := c.Param("test_id")
	if _, err := uuid.Parse(testID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "test id must be a UUID")
		return
	}
	res, err := h.resultSvc.GetByTestID(c.Request.Context(), testID)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no result for this test")
		return
	}
	ok(c, http.StatusOK, res)
}

// ListUserResults godoc
// @ID          listUserResults
// @Summary     List a user's results
// @Description Returns the user's results, most recent first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Results
// @Produce     json
//
// @Param       user_id        path    string  true  "User ID"                      example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"   example(W/\"abc123\")
//
// @Success     200  {array}  domain.TestResult
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{user_id}/results [get]
func (h *Handlers) ListUserResults(c *gin.Context) {
	uid := strings.TrimSpace(c.Param("user_id"))
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id required")
		return
	}

	// ETag pre-check (best effort).
	if svc, ok := h.resultSvc.(*services.ResultService); ok && svc.DB != nil {
		count, maxTS, err := repo.ResultsStats(c.Request.Context(), svc.DB, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"results:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.resultSvc.ListByUserID(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}
