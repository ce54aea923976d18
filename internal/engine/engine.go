// Package engine implements the durable interview workflow: a step-wise
// question/answer conversation that can be paused at any suspension point and
// resumed later, surviving process restarts.
//
// The engine persists a Checkpoint per thread (thread key = test id) after
// every executed step. Callers never observe a half-executed step: they see
// the checkpoint as it was at the last suspension or completion.
//
// The conversation itself (question generation, answer analysis, the final
// verdict) is delegated to an Interviewer implementation; the engine owns
// only sequencing and durability.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// Step names used by the runner. AnalyzeAnswer is special: a checkpoint whose
// next step is analyze_answer is suspended waiting for candidate input.
const (
	stepGenerateQuestion = "generate_question"
	stepAnalyzeAnswer    = "analyze_answer"
	stepConclude         = "conclude"
)

// StepKind classifies what runs next for a checkpointed conversation.
// It is a closed variant so state detection is a total function rather than
// string comparison against sentinels.
type StepKind int

const (
	// StepNone means the conversation is terminal; nothing left to run.
	StepNone StepKind = iota
	// StepAwaitAnswer means the engine is suspended pending the candidate's
	// answer to the question currently held in Checkpoint.Feedback.
	StepAwaitAnswer
	// StepOther means a named intermediate step must still run before the
	// next question is ready.
	StepOther
)

// Step is the "what runs next" pointer stored in a checkpoint.
type Step struct {
	Kind StepKind `json:"kind"`
	// Name is the intermediate step name; set only when Kind is StepOther.
	Name string `json:"name,omitempty"`
}

// awaitAnswer marks the suspension point: the next step is named, but the
// engine will not run it until Resume supplies an answer.
func awaitAnswer() Step { return Step{Kind: StepAwaitAnswer, Name: stepAnalyzeAnswer} }

func otherStep(name string) Step { return Step{Kind: StepOther, Name: name} }

func noStep() Step { return Step{Kind: StepNone} }

// InterviewResult is the terminal payload an interview produces: the overall
// verdict plus counters the result store persists verbatim.
type InterviewResult struct {
	Summary               string  `json:"summary"`
	Score                 float64 `json:"score"` // clamped to [0,100] at parse time
	TotalQuestionNumber   int     `json:"total_question_number"`
	CorrectQuestionNumber int     `json:"correct_question_number"`
	InterviewTime         int     `json:"interview_time"` // minutes
}

// Checkpoint is the durable snapshot of one interview conversation, keyed by
// thread id. It is created on the first interaction, mutated by every step
// the engine executes, and never deleted by this service.
type Checkpoint struct {
	ThreadID string `json:"thread_id"`

	// Immutable interview parameters captured at start.
	UserID            string    `json:"user_id"`
	JobTitle          string    `json:"job_title"`
	ExaminationPoints string    `json:"examination_points"`
	TestTime          int       `json:"test_time"` // minutes
	Language          string    `json:"language"`
	Difficulty        string    `json:"difficulty"`
	StartTime         time.Time `json:"start_time"`

	// Conversation state.
	QAHistory     []domain.QARecord `json:"qa_history"`
	Feedback      string            `json:"feedback"`       // current question or closing feedback
	PendingAnswer string            `json:"pending_answer"` // set by Resume, consumed by analyze_answer
	CorrectCount  int               `json:"correct_count"`

	// Result is the terminal payload; present only once the conversation
	// has concluded.
	Result *InterviewResult `json:"result,omitempty"`

	// Next is the "what runs next" pointer. StepNone plus a non-nil Result
	// means the conversation is complete.
	Next Step `json:"next"`

	UpdatedAt time.Time `json:"updated_at"`
}

// QuestionIndex identifies the currently displayed question within the
// conversation: the number of questions asked so far. It is stable across
// retries of the same suspension point, which makes it suitable for deriving
// a question correlation token.
func (c *Checkpoint) QuestionIndex() int { return len(c.QAHistory) + 1 }

// Completed reports whether the conversation reached its terminal state.
func (c *Checkpoint) Completed() bool { return c.Next.Kind == StepNone && c.Result != nil }

// StartInput carries the parameters of a brand-new interview run.
type StartInput struct {
	UserID            string
	JobTitle          string
	ExaminationPoints string
	TestTime          int // minutes
	Language          string
	Difficulty        string
}

// Assessment is the Interviewer's judgement of one candidate answer.
type Assessment struct {
	// Feedback is shown to the candidate together with the next question.
	Feedback string
	// Summary is the transcript entry recorded for this exchange.
	Summary string
	// Correct counts toward the final correct-answer tally.
	Correct bool
}

// Interviewer produces the conversational content of an interview. The
// engine calls exactly one of these methods per executed step.
//
// Implementations may be slow (remote model calls) but must be bounded; the
// engine treats each call as a synchronous step and honors ctx cancellation.
type Interviewer interface {
	// NextQuestion returns the next question to ask given the transcript
	// accumulated so far.
	NextQuestion(ctx context.Context, cp *Checkpoint) (string, error)
	// AnalyzeAnswer judges the candidate's answer to the question currently
	// held in cp.Feedback.
	AnalyzeAnswer(ctx context.Context, cp *Checkpoint, answer string) (Assessment, error)
	// Conclude produces the terminal result payload for the conversation.
	Conclude(ctx context.Context, cp *Checkpoint) (*InterviewResult, error)
}

// Sentinel errors surfaced by the engine.
var (
	// ErrNoCheckpoint is returned by Resume when no conversation exists for
	// the thread key.
	ErrNoCheckpoint = errors.New("no checkpoint for thread")
	// ErrNotAwaitingAnswer is returned by Resume when the conversation is
	// not suspended at an answer boundary.
	ErrNotAwaitingAnswer = errors.New("conversation is not awaiting an answer")
	// ErrConversationOver is returned by Resume when the conversation has
	// already concluded.
	ErrConversationOver = errors.New("conversation already concluded")
)
