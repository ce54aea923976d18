// Package services – SessionService
//
// This file implements SessionService, the orchestrator of timed interview
// sessions. It sits between the HTTP layer and the workflow engine: it maps a
// test id to an engine thread, classifies the conversation state from the
// durable checkpoint, drives the engine to its next suspension point, and on
// completion performs the handoff that persists the result and closes the
// test.
//
// Completion handoff order is load-bearing: the result row is finalized
// BEFORE the test advances to completed. A crash between the two leaves a
// completed-looking result with an in-progress test, which the next
// interaction repairs; the reverse order could close a test with no result.
//
// Concurrency: interactions on the same test are serialized by a per-key
// mutex so two racing submits cannot interleave engine steps on one thread.
package services

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hireloop/go-interview-backend/internal/domain"
	"github.com/hireloop/go-interview-backend/internal/engine"
)

// Reply types surfaced to clients.
const (
	ReplyTypeQuestion = "question"
	ReplyTypeResult   = "result"
)

// WorkflowEngine is the engine contract the orchestrator consumes. The
// concrete implementation is engine.Runner; tests substitute fakes.
type WorkflowEngine interface {
	// GetState returns the checkpoint for a thread, or (nil, nil) when the
	// conversation has never started.
	GetState(ctx context.Context, threadID string) (*engine.Checkpoint, error)
	// Run starts or drives a conversation to its next suspension point.
	Run(ctx context.Context, input engine.StartInput, threadID string) error
	// Resume feeds an answer into a suspended conversation.
	Resume(ctx context.Context, threadID, answer string) error
}

// TestLifecycle is the slice of test operations the orchestrator needs.
type TestLifecycle interface {
	Get(ctx context.Context, id string) (*domain.Test, error)
	MarkInProgress(ctx context.Context, id string) (*domain.Test, error)
	AdvanceToCompleted(ctx context.Context, id string) (*domain.Test, error)
}

// ResultFinalizer persists the engine's interview outcome.
type ResultFinalizer interface {
	Finalize(ctx context.Context, in ResultInput) (*domain.TestResult, error)
}

// SessionReply is what both session operations return: either the question to
// display next, or the closing payload once the interview is over.
type SessionReply struct {
	// Feedback is the text shown to the candidate: the current question, or
	// the closing feedback when the interview is over.
	Feedback string `json:"feedback"`
	// QuestionToken correlates an answer submission with the question it
	// answers. Stable across retries of the same suspension point.
	QuestionToken string `json:"question_token,omitempty"`
	// Type is ReplyTypeQuestion or ReplyTypeResult.
	Type string `json:"type"`
	// IsOver reports whether the interview has concluded.
	IsOver bool `json:"is_over"`
	// QAHistory is the transcript recorded so far, so a reconnecting client
	// can restore the conversation. Empty until the first answer is analyzed.
	QAHistory []domain.QARecord `json:"qa_history,omitempty"`
	// Summary and Score echo the recorded result; set only on completion.
	Summary string  `json:"summary,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// SessionService orchestrates interview sessions over the workflow engine.
type SessionService struct {
	Engine  WorkflowEngine
	Tests   TestLifecycle
	Results ResultFinalizer

	locks keyedMutex
}

// NewSessionService constructs a SessionService.
func NewSessionService(e WorkflowEngine, t TestLifecycle, r ResultFinalizer) *SessionService {
	return &SessionService{Engine: e, Tests: t, Results: r}
}

// StartOrResume begins a new interview for the test or, when one already
// exists, replays the current state: the pending question when the session is
// suspended, the closing payload when it already concluded. Safe to call any
// number of times; a repeated call never advances the conversation past a
// suspension point.
func (s *SessionService) StartOrResume(ctx context.Context, testID string) (*SessionReply, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "StartOrResume",
		trace.WithAttributes(attribute.String("test.id", testID)),
	)
	defer span.End()

	unlock := s.locks.lock(testID)
	defer unlock()

	cp, err := s.Engine.GetState(ctx, testID)
	if err != nil {
		return nil, &EngineError{Op: "get state", Err: err}
	}

	switch {
	case cp == nil:
		// Never started: verify the test and launch the first question.
		t, err := s.Tests.Get(ctx, testID)
		if err != nil {
			return nil, err
		}
		if err := s.Engine.Run(ctx, startInputFor(t), testID); err != nil {
			return nil, &EngineError{Op: "run", Err: err}
		}
		if _, err := s.Tests.MarkInProgress(ctx, testID); err != nil {
			log.Warn().Err(err).Str("test_id", testID).Msg("mark in_progress failed")
		}

	case cp.Completed():
		// Already over: replay the closing payload without side effects.
		return completedReply(cp), nil

	case cp.Next.Kind == engine.StepAwaitAnswer:
		// Suspended at a question: redisplay it without advancing.
		return questionReply(cp), nil

	default:
		// Interrupted mid-transition (e.g. crash between steps): drive the
		// engine the rest of the way to the next suspension point.
		if err := s.Engine.Run(ctx, engine.StartInput{}, testID); err != nil {
			return nil, &EngineError{Op: "run", Err: err}
		}
	}

	cp, err = s.Engine.GetState(ctx, testID)
	if err != nil {
		return nil, &EngineError{Op: "get state", Err: err}
	}
	if cp == nil {
		return nil, ErrSessionNotFound
	}
	if cp.Completed() {
		return s.finishSession(ctx, testID, cp)
	}
	return questionReply(cp), nil
}

// SubmitAnswer feeds the candidate's answer into the session and returns the
// next question, or the closing payload when this answer concluded the
// interview. Submitting to a session that never started is an error; a
// repeated submit after completion replays the closing payload without
// re-finalizing anything.
//
// When token is non-empty it must match the token of the pending question,
// otherwise ErrStaleQuestionToken is returned and the engine is not touched.
// An empty token skips the check.
func (s *SessionService) SubmitAnswer(ctx context.Context, testID, answer, token string) (*SessionReply, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SubmitAnswer",
		trace.WithAttributes(attribute.String("test.id", testID)),
	)
	defer span.End()

	unlock := s.locks.lock(testID)
	defer unlock()

	cp, err := s.Engine.GetState(ctx, testID)
	if err != nil {
		return nil, &EngineError{Op: "get state", Err: err}
	}
	if cp == nil {
		return nil, ErrSessionNotFound
	}
	if cp.Completed() {
		return completedReply(cp), nil
	}
	if token != "" && cp.Next.Kind == engine.StepAwaitAnswer &&
		token != questionToken(cp.ThreadID, cp.QuestionIndex()) {
		return nil, ErrStaleQuestionToken
	}

	err = s.Engine.Resume(ctx, testID, answer)
	if errors.Is(err, engine.ErrNotAwaitingAnswer) {
		// A previous interaction stopped mid-transition. Drive to the next
		// suspension point, then apply the answer there.
		if err := s.Engine.Run(ctx, engine.StartInput{}, testID); err != nil {
			return nil, &EngineError{Op: "run", Err: err}
		}
		err = s.Engine.Resume(ctx, testID, answer)
	}
	if errors.Is(err, engine.ErrConversationOver) {
		// Driving mid-transition steps concluded the interview on its own;
		// fall through to the completion handoff below.
		err = nil
	}
	if err != nil {
		if errors.Is(err, engine.ErrNoCheckpoint) {
			return nil, ErrSessionNotFound
		}
		return nil, &EngineError{Op: "resume", Err: err}
	}

	cp, err = s.Engine.GetState(ctx, testID)
	if err != nil {
		return nil, &EngineError{Op: "get state", Err: err}
	}
	if cp == nil {
		return nil, ErrSessionNotFound
	}
	if cp.Completed() {
		return s.finishSession(ctx, testID, cp)
	}
	return questionReply(cp), nil
}

// finishSession performs the completion handoff: persist the result, then
// advance the test to completed. The result write comes first; if advancing
// fails afterwards the error is surfaced but the result row is already
// durable, and the next interaction retries the transition.
func (s *SessionService) finishSession(ctx context.Context, testID string, cp *engine.Checkpoint) (*SessionReply, error) {
	res := cp.Result
	if _, err := s.Results.Finalize(ctx, ResultInput{
		TestID:         testID,
		UserID:         cp.UserID,
		Summary:        res.Summary,
		Score:          res.Score,
		QuestionNumber: res.TotalQuestionNumber,
		CorrectNumber:  res.CorrectQuestionNumber,
		ElapseTime:     res.InterviewTime,
		QAHistory:      cp.QAHistory,
	}); err != nil {
		return nil, err
	}
	if _, err := s.Tests.AdvanceToCompleted(ctx, testID); err != nil {
		log.Error().Err(err).Str("test_id", testID).Msg("advance to completed failed after finalize")
		return nil, err
	}
	return completedReply(cp), nil
}

// questionReply builds the reply for a session suspended at a question. It
// carries the transcript so far so a client that lost its state can rebuild
// the conversation from the replay alone.
func questionReply(cp *engine.Checkpoint) *SessionReply {
	return &SessionReply{
		Feedback:      cp.Feedback,
		QuestionToken: questionToken(cp.ThreadID, cp.QuestionIndex()),
		Type:          ReplyTypeQuestion,
		QAHistory:     cp.QAHistory,
	}
}

// completedReply builds the closing payload for a concluded session.
func completedReply(cp *engine.Checkpoint) *SessionReply {
	r := &SessionReply{
		Feedback:  cp.Feedback,
		Type:      ReplyTypeResult,
		IsOver:    true,
		QAHistory: cp.QAHistory,
	}
	if cp.Result != nil {
		r.Summary = cp.Result.Summary
		r.Score = cp.Result.Score
	}
	return r
}

// questionToken derives a stable correlation token for the question at the
// given index of a thread. Deterministic: retrying the same suspension point
// yields the same token, so clients can detect a redisplayed question.
func questionToken(threadID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(threadID+"#"+strconv.Itoa(index))).String()
}

// startInputFor maps a test record onto the engine's start parameters.
func startInputFor(t *domain.Test) engine.StartInput {
	points := ""
	for i, p := range t.ExaminationPoints {
		if i > 0 {
			points += ", "
		}
		points += p
	}
	return engine.StartInput{
		UserID:            t.UserID,
		JobTitle:          t.JobTitle,
		ExaminationPoints: points,
		TestTime:          t.TestTime,
		Language:          t.Language,
		Difficulty:        t.Difficulty,
	}
}

// keyedMutex serializes callers per string key. Entries are reference-counted
// and removed once the last holder releases, so the map does not grow with
// the number of distinct tests ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	e := k.entries[key]
	if e == nil {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
