package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hireloop/go-interview-backend/internal/http/middleware"
	"github.com/hireloop/go-interview-backend/internal/services"
)

// Flexible session service stub; unset functions return a canned question.
type stubSessionSvc struct {
	start  func(context.Context, string) (*services.SessionReply, error)
	submit func(context.Context, string, string, string) (*services.SessionReply, error)
}

func (s stubSessionSvc) StartOrResume(ctx context.Context, testID string) (*services.SessionReply, error) {
	if s.start != nil {
		return s.start(ctx, testID)
	}
	return &services.SessionReply{Feedback: "q1?", Type: services.ReplyTypeQuestion}, nil
}

func (s stubSessionSvc) SubmitAnswer(ctx context.Context, testID, answer, questionToken string) (*services.SessionReply, error) {
	if s.submit != nil {
		return s.submit(ctx, testID, answer, questionToken)
	}
	return &services.SessionReply{Feedback: "q2?", Type: services.ReplyTypeQuestion}, nil
}

func newSessionRouter(svc SessionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(svc, stubTestSvc{}, stubResultSvc{})
	r.POST("/chat/start", h.StartChat)
	r.POST("/chat/answer", h.SubmitAnswer)
	return r
}

// newSessionRouterWithIdem mounts the answer endpoint behind the real
// idempotency validator so replay detection and key recording are exercised
// end to end.
func newSessionRouterWithIdem(svc SessionService, replay bool, rec IdempotencyRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{},
		func(context.Context, string, string, string, time.Time) (bool, error) {
			return replay, nil
		}))
	h := New(svc, stubTestSvc{}, stubResultSvc{}).WithIdempotencyRecorder(rec)
	r.POST("/chat/answer", h.SubmitAnswer)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartChat_OK(t *testing.T) {
	var gotTestID string
	r := newSessionRouter(stubSessionSvc{
		start: func(_ context.Context, testID string) (*services.SessionReply, error) {
			gotTestID = testID
			return &services.SessionReply{
				Feedback:      "What is a goroutine?",
				QuestionToken: "tok-1",
				Type:          services.ReplyTypeQuestion,
			}, nil
		},
	})

	w := postJSON(t, r, "/chat/start", gin.H{"test_id": "  t1  "})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if gotTestID != "t1" {
		t.Fatalf("test id not trimmed: %q", gotTestID)
	}

	var reply services.SessionReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Feedback != "What is a goroutine?" || reply.QuestionToken != "tok-1" {
		t.Fatalf("reply unexpected: %+v", reply)
	}
}

func TestStartChat_BadRequest(t *testing.T) {
	r := newSessionRouter(stubSessionSvc{})

	for _, body := range []any{gin.H{}, gin.H{"test_id": "   "}} {
		w := postJSON(t, r, "/chat/start", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d for body %v", w.Code, body)
		}
		var resp ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Code != ErrCodeBadRequest {
			t.Fatalf("code = %q", resp.Code)
		}
	}
}

func TestStartChat_TestNotFound(t *testing.T) {
	r := newSessionRouter(stubSessionSvc{
		start: func(context.Context, string) (*services.SessionReply, error) {
			return nil, services.ErrTestNotFound
		},
	})

	w := postJSON(t, r, "/chat/start", gin.H{"test_id": "t1"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodeNotFound {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestStartChat_EngineFailure(t *testing.T) {
	r := newSessionRouter(stubSessionSvc{
		start: func(context.Context, string) (*services.SessionReply, error) {
			return nil, errors.New("engine exploded")
		},
	})

	w := postJSON(t, r, "/chat/start", gin.H{"test_id": "t1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodeStartFailed {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestSubmitAnswer_OK(t *testing.T) {
	var gotAnswer, gotToken string
	r := newSessionRouter(stubSessionSvc{
		submit: func(_ context.Context, _, answer, token string) (*services.SessionReply, error) {
			gotAnswer = answer
			gotToken = token
			return &services.SessionReply{
				Feedback:      "Next question?",
				QuestionToken: "tok-2",
				Type:          services.ReplyTypeQuestion,
			}, nil
		},
	})

	w := postJSON(t, r, "/chat/answer", gin.H{"test_id": "t1", "answer": "channels", "question_token": " tok-1 "})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if gotAnswer != "channels" {
		t.Fatalf("answer = %q", gotAnswer)
	}
	if gotToken != "tok-1" {
		t.Fatalf("token not trimmed and forwarded: %q", gotToken)
	}
}

func TestSubmitAnswer_CompletionPayload(t *testing.T) {
	r := newSessionRouter(stubSessionSvc{
		submit: func(context.Context, string, string, string) (*services.SessionReply, error) {
			return &services.SessionReply{
				Feedback: "Thanks for your time.",
				Type:     services.ReplyTypeResult,
				IsOver:   true,
				Summary:  "Strong candidate.",
				Score:    85,
			}, nil
		},
	})

	w := postJSON(t, r, "/chat/answer", gin.H{"test_id": "t1", "answer": "done"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var reply services.SessionReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reply.IsOver || reply.Score != 85 || reply.Type != services.ReplyTypeResult {
		t.Fatalf("closing payload unexpected: %+v", reply)
	}
}

func TestSubmitAnswer_BadRequest(t *testing.T) {
	r := newSessionRouter(stubSessionSvc{})

	cases := []any{
		gin.H{"answer": "hi"},
		gin.H{"test_id": "t1"},
		gin.H{"test_id": "t1", "answer": "   "},
	}
	for _, body := range cases {
		w := postJSON(t, r, "/chat/answer", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d for body %v", w.Code, body)
		}
	}
}

func TestSubmitAnswer_StaleTokenConflict(t *testing.T) {
	r := newSessionRouter(stubSessionSvc{
		submit: func(context.Context, string, string, string) (*services.SessionReply, error) {
			return nil, services.ErrStaleQuestionToken
		},
	})

	w := postJSON(t, r, "/chat/answer", gin.H{"test_id": "t1", "answer": "hi", "question_token": "old"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodeConflict {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestSubmitAnswer_Replay_RedisplaysWithoutResubmitting(t *testing.T) {
	submits := 0
	starts := 0
	svc := stubSessionSvc{
		start: func(context.Context, string) (*services.SessionReply, error) {
			starts++
			return &services.SessionReply{Feedback: "pending?", Type: services.ReplyTypeQuestion}, nil
		},
		submit: func(context.Context, string, string, string) (*services.SessionReply, error) {
			submits++
			return &services.SessionReply{Feedback: "next?", Type: services.ReplyTypeQuestion}, nil
		},
	}
	r := newSessionRouterWithIdem(svc, true, nil)

	raw, _ := json.Marshal(gin.H{"test_id": "t1", "answer": "again"})
	req := httptest.NewRequest(http.MethodPost, "/chat/answer", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderIdempotencyKey, "retry-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if submits != 0 || starts != 1 {
		t.Fatalf("replay must redisplay, not resubmit: submits=%d starts=%d", submits, starts)
	}
	var reply services.SessionReply
	_ = json.Unmarshal(w.Body.Bytes(), &reply)
	if reply.Feedback != "pending?" {
		t.Fatalf("reply unexpected: %+v", reply)
	}
}

func TestSubmitAnswer_RecordsIdempotencyKey(t *testing.T) {
	var recKey, recUser, recResp string
	var recStatus int
	rec := func(_ context.Context, userID, testID, key, responseID string, status int) error {
		recUser, recKey, recResp, recStatus = userID, key, responseID, status
		return nil
	}
	svc := stubSessionSvc{
		submit: func(context.Context, string, string, string) (*services.SessionReply, error) {
			return &services.SessionReply{Feedback: "next?", QuestionToken: "tok-9", Type: services.ReplyTypeQuestion}, nil
		},
	}
	r := newSessionRouterWithIdem(svc, false, rec)

	raw, _ := json.Marshal(gin.H{"test_id": "t1", "answer": "first"})
	req := httptest.NewRequest(http.MethodPost, "/chat/answer", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderIdempotencyKey, "retry-2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if recKey != "retry-2" || recUser != "demo-user" || recResp != "tok-9" || recStatus != http.StatusOK {
		t.Fatalf("recorded tuple unexpected: user=%q key=%q resp=%q status=%d", recUser, recKey, recResp, recStatus)
	}
}

func TestSubmitAnswer_NoKey_SkipsRecording(t *testing.T) {
	recorded := false
	rec := func(context.Context, string, string, string, string, int) error {
		recorded = true
		return nil
	}
	r := newSessionRouterWithIdem(stubSessionSvc{}, false, rec)

	w := postJSON(t, r, "/chat/answer", gin.H{"test_id": "t1", "answer": "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if recorded {
		t.Fatalf("no Idempotency-Key header, nothing to record")
	}
}

func TestSubmitAnswer_SessionNotStarted(t *testing.T) {
	r := newSessionRouter(stubSessionSvc{
		submit: func(context.Context, string, string, string) (*services.SessionReply, error) {
			return nil, services.ErrSessionNotFound
		},
	})

	w := postJSON(t, r, "/chat/answer", gin.H{"test_id": "t1", "answer": "hi"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodeSessionNotStarted {
		t.Fatalf("code = %q", resp.Code)
	}
}
