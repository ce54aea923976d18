// Question bank HTTP handlers.
//
// This file exposes REST endpoints for the question bank:
//   - POST /questions   (add a bank entry)
//   - GET  /questions   (list, optionally filtered by job title)
//
// Bank entries feed the retrieval index the interviewer uses to ground
// question generation; entries added here are picked up on the next index
// rebuild.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/hireloop/go-interview-backend/internal/domain"
	"github.com/hireloop/go-interview-backend/internal/services"
)

// QuestionService defines question-bank operations consumed by HTTP handlers.
type QuestionService interface {
	// Create validates and stores a bank entry.
	Create(ctx context.Context, in services.CreateQuestionInput) (*domain.Question, error)
	// List returns bank entries, restricted to a job title when given.
	List(ctx context.Context, jobTitle string) ([]domain.Question, error)
}

// CreateQuestionRequest is the JSON payload for adding a bank entry.
type CreateQuestionRequest struct {
	Question          string   `json:"question" binding:"required" example:"What does a goroutine cost at startup?"`
	Answer            string   `json:"answer,omitempty"`
	JobTitle          string   `json:"job_title,omitempty" example:"Backend Engineer"`
	ExaminationPoints []string `json:"examination_points,omitempty"`
	Language          string   `json:"language,omitempty" example:"en"`
	Difficulty        string   `json:"difficulty,omitempty" example:"medium"`
}

// CreateQuestion godoc
// @ID          createQuestion
// @Summary     Add a question-bank entry
// @Description Stores a question the interviewer can draw on when generating interview questions.
// @Tags        Questions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateQuestionRequest  true  "Question payload"
//
// @Success     201  {object}  domain.Question
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /questions [post]
func (h *Handlers) CreateQuestion(c *gin.Context) {
	var req CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var in services.CreateQuestionInput
	if err := copier.Copy(&in, &req); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	q, err := h.questionSvc.Create(c.Request.Context(), in)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			fail(c, http.StatusBadRequest, ErrCodeValidation, ve.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, q)
}

// ListQuestions godoc
// @ID          listQuestions
// @Summary     List question-bank entries
// @Tags        Questions
// @Produce     json
//
// @Param       job_title  query  string  false "Filter by job title"  example(Backend Engineer)
//
// @Success     200  {array}  domain.Question
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /questions [get]
func (h *Handlers) ListQuestions(c *gin.Context) {
	items, err := h.questionSvc.List(c.Request.Context(), strings.TrimSpace(c.Query("job_title")))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}
