// The step runner: sequencing and durability for interview conversations.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

const (
	// minutesPerQuestion sizes the question budget from the test's time
	// allowance.
	minutesPerQuestion = 5
	minQuestions       = 3
	maxQuestions       = 10
)

// Runner executes interview conversations one step at a time, persisting the
// checkpoint after every step. It implements the engine contract the session
// orchestrator consumes: GetState, Run, Resume.
//
// Runner does not serialize concurrent access per thread; callers that may
// race on the same thread key must gate calls themselves.
type Runner struct {
	store CheckpointStore
	iv    Interviewer
}

// NewRunner builds a Runner over the given store and interviewer.
func NewRunner(store CheckpointStore, iv Interviewer) *Runner {
	return &Runner{store: store, iv: iv}
}

// GetState returns the checkpoint for threadID, or (nil, nil) when the
// conversation has never started.
func (r *Runner) GetState(ctx context.Context, threadID string) (*Checkpoint, error) {
	return r.store.Get(ctx, threadID)
}

// Run starts a new conversation for threadID (when none exists) or drives an
// existing one forward with no new input, in both cases until the next
// suspension point or completion.
//
// Starting is idempotent at the checkpoint level: if a checkpoint already
// exists, input is ignored and the existing conversation is driven instead.
func (r *Runner) Run(ctx context.Context, input StartInput, threadID string) error {
	cp, err := r.store.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &Checkpoint{
			ThreadID:          threadID,
			UserID:            input.UserID,
			JobTitle:          input.JobTitle,
			ExaminationPoints: input.ExaminationPoints,
			TestTime:          input.TestTime,
			Language:          input.Language,
			Difficulty:        input.Difficulty,
			StartTime:         time.Now().UTC(),
			Next:              otherStep(stepGenerateQuestion),
		}
		if err := r.store.Put(ctx, cp); err != nil {
			return err
		}
	}
	return r.drive(ctx, cp)
}

// Resume feeds the candidate's answer into a conversation suspended at an
// answer boundary and drives it until the next suspension point or
// completion.
func (r *Runner) Resume(ctx context.Context, threadID, answer string) error {
	cp, err := r.store.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if cp == nil {
		return ErrNoCheckpoint
	}
	if cp.Completed() {
		return ErrConversationOver
	}
	if cp.Next.Kind != StepAwaitAnswer {
		return ErrNotAwaitingAnswer
	}
	cp.PendingAnswer = answer
	cp.Next = otherStep(stepAnalyzeAnswer)
	if err := r.store.Put(ctx, cp); err != nil {
		return err
	}
	return r.drive(ctx, cp)
}

// drive executes steps until the checkpoint reaches a suspension point
// (awaiting an answer) or completion. The checkpoint is persisted after
// every executed step so a crash never loses more than the in-flight step.
func (r *Runner) drive(ctx context.Context, cp *Checkpoint) error {
	for cp.Next.Kind == StepOther {
		if err := r.step(ctx, cp); err != nil {
			return err
		}
		if err := r.store.Put(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// step executes the single step named by cp.Next and advances the pointer.
func (r *Runner) step(ctx context.Context, cp *Checkpoint) error {
	switch cp.Next.Name {
	case stepGenerateQuestion:
		q, err := r.iv.NextQuestion(ctx, cp)
		if err != nil {
			return fmt.Errorf("generate question: %w", err)
		}
		cp.Feedback = q
		cp.Next = awaitAnswer()

	case stepAnalyzeAnswer:
		a, err := r.iv.AnalyzeAnswer(ctx, cp, cp.PendingAnswer)
		if err != nil {
			return fmt.Errorf("analyze answer: %w", err)
		}
		cp.QAHistory = append(cp.QAHistory, domain.QARecord{
			Question: cp.Feedback,
			Answer:   cp.PendingAnswer,
			Summary:  a.Summary,
		})
		cp.PendingAnswer = ""
		if a.Correct {
			cp.CorrectCount++
		}
		cp.Feedback = a.Feedback
		if len(cp.QAHistory) >= questionBudget(cp.TestTime) || r.outOfTime(cp) {
			cp.Next = otherStep(stepConclude)
		} else {
			cp.Next = otherStep(stepGenerateQuestion)
		}

	case stepConclude:
		res, err := r.iv.Conclude(ctx, cp)
		if err != nil {
			return fmt.Errorf("conclude interview: %w", err)
		}
		cp.Result = res
		cp.Next = noStep()
		log.Info().
			Str("thread_id", cp.ThreadID).
			Float64("score", res.Score).
			Int("questions", res.TotalQuestionNumber).
			Msg("interview concluded")

	default:
		return fmt.Errorf("unknown step %q for thread %s", cp.Next.Name, cp.ThreadID)
	}
	return nil
}

// outOfTime reports whether the interview exceeded its time allowance.
// The allowance is advisory for candidates but hard for the engine: once
// elapsed, the next analyzed answer concludes the conversation.
func (r *Runner) outOfTime(cp *Checkpoint) bool {
	if cp.TestTime <= 0 {
		return false
	}
	return time.Since(cp.StartTime) > time.Duration(cp.TestTime)*time.Minute
}

// questionBudget derives how many questions an interview of the given time
// allowance asks.
func questionBudget(testTime int) int {
	n := testTime / minutesPerQuestion
	if n < minQuestions {
		n = minQuestions
	}
	if n > maxQuestions {
		n = maxQuestions
	}
	return n
}
