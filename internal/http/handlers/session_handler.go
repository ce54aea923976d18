// Interview session HTTP handlers.
//
// This file exposes the two conversational endpoints:
//   - POST /chat/start   (start a session, or replay its current state)
//   - POST /chat/answer  (submit an answer, receive the next question or result)
//
// Handlers are transport-thin: they validate input, call the session
// orchestrator, and translate results into HTTP responses. Both endpoints are
// safe to retry; repeating a call never advances the interview past a
// suspension point or records a second result.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/go-interview-backend/internal/http/middleware"
	"github.com/hireloop/go-interview-backend/internal/services"
)

// SessionService defines the interview session operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SessionService interface {
	// StartOrResume begins an interview or replays its current state.
	StartOrResume(ctx context.Context, testID string) (*services.SessionReply, error)
	// SubmitAnswer feeds an answer into a suspended interview. A non-empty
	// questionToken must match the pending question.
	SubmitAnswer(ctx context.Context, testID, answer, questionToken string) (*services.SessionReply, error)
}

// StartChatRequest is the JSON payload for starting (or resuming) a session.
type StartChatRequest struct {
	// TestID identifies the test whose interview session to start.
	TestID string `json:"test_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// SubmitAnswerRequest is the JSON payload for answering the current question.
type SubmitAnswerRequest struct {
	// TestID identifies the test whose session receives the answer.
	TestID string `json:"test_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Answer is the candidate's answer text.
	Answer string `json:"answer" binding:"required"`
	// QuestionToken optionally echoes the token of the question being
	// answered; when present it must match the pending question or the
	// submission is rejected with 409.
	QuestionToken string `json:"question_token,omitempty"`
}

// StartChat godoc
// @ID          startChat
// @Summary     Start or resume an interview session
// @Description Starts the interview for a test and returns the first question. Calling it again replays the pending question (or the final result) without advancing the conversation.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.StartChatRequest  true  "Start payload"
//
// @Success     200  {object}  services.SessionReply
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Test not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/start [post]
func (h *Handlers) StartChat(c *gin.Context) {
	var req StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TestID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "test_id required")
		return
	}

	reply, err := h.sessionSvc.StartOrResume(c.Request.Context(), strings.TrimSpace(req.TestID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "test not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeStartFailed, err.Error())
		}
		return
	}

	if !reply.IsOver {
		middleware.ObserveSessionStarted()
	}
	ok(c, http.StatusOK, reply)
}

// SubmitAnswer godoc
// @ID          submitAnswer
// @Summary     Submit an answer to the current question
// @Description Feeds the candidate's answer into the session and returns the next question, or the final result when this answer concluded the interview. Repeating the call after completion replays the result.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Client retry deduplication key"
// @Param       body             body    handlers.SubmitAnswerRequest  true  "Answer payload"
//
// @Success     200  {object}  services.SessionReply
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "No session for this test"
// @Failure     409  {object}  handlers.ErrorResponse  "Stale question token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/answer [post]
func (h *Handlers) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		strings.TrimSpace(req.TestID) == "" || strings.TrimSpace(req.Answer) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "test_id and answer required")
		return
	}
	testID := strings.TrimSpace(req.TestID)

	// A replay of an already-served submission: the answer was applied the
	// first time, so redisplay the current session state instead of feeding
	// the answer into the engine again.
	if middleware.IsReplay(c) {
		reply, err := h.sessionSvc.StartOrResume(c.Request.Context(), testID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTestNotFound), errors.Is(err, services.ErrSessionNotFound):
				fail(c, http.StatusNotFound, ErrCodeSessionNotStarted, "no interview session exists for this test")
			default:
				fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
			}
			return
		}
		ok(c, http.StatusOK, reply)
		return
	}

	reply, err := h.sessionSvc.SubmitAnswer(c.Request.Context(), testID, req.Answer, strings.TrimSpace(req.QuestionToken))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeSessionNotStarted, "no interview session exists for this test")
		case errors.Is(err, services.ErrStaleQuestionToken):
			fail(c, http.StatusConflict, ErrCodeConflict, "question_token does not match the pending question")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
		}
		return
	}

	// Remember the served key so a client retry of this submission becomes a
	// replay instead of a second engine step.
	if key, found := middleware.GetIdempotencyKey(c); found && h.recordIdem != nil {
		uid, scopeTestID := middleware.RequestIdentity(c)
		responseID := reply.QuestionToken
		if responseID == "" {
			responseID = testID
		}
		if err := h.recordIdem(c.Request.Context(), uid, scopeTestID, key, responseID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
		}
	}

	middleware.ObserveAnswerSubmitted()
	if reply.IsOver {
		middleware.ObserveSessionCompleted(reply.Score)
	}
	ok(c, http.StatusOK, reply)
}
