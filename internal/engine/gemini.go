// Gemini-backed Interviewer. Prompts are grounded with question-bank entries
// matching the test's job title and examination points.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/hireloop/go-interview-backend/internal/search"
)

// GeminiInterviewer generates questions, judges answers, and produces the
// final verdict using a Gemini model.
type GeminiInterviewer struct {
	model *genai.GenerativeModel
	// Bank, when set, is used to pull reference questions for the prompt.
	Bank search.Index
}

// NewGeminiInterviewer creates an Interviewer over the named Gemini model.
// An empty API key is an error; callers wanting a keyless mode should use
// the scripted interviewer instead.
func NewGeminiInterviewer(ctx context.Context, apiKey, modelName string, bank search.Index) (*GeminiInterviewer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiInterviewer{model: client.GenerativeModel(modelName), Bank: bank}, nil
}

// NextQuestion asks the model for the next interview question, avoiding
// topics already covered by the transcript.
func (g *GeminiInterviewer) NextQuestion(ctx context.Context, cp *Checkpoint) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a technical interviewer for the position %q.\n", cp.JobTitle)
	fmt.Fprintf(&b, "Examination points: %s.\n", cp.ExaminationPoints)
	fmt.Fprintf(&b, "Difficulty: %s. Respond in %s.\n", cp.Difficulty, cp.Language)
	if refs := g.referenceQuestions(cp); len(refs) > 0 {
		b.WriteString("Reference questions from our bank (adapt, do not copy verbatim):\n")
		for _, r := range refs {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if len(cp.QAHistory) > 0 {
		b.WriteString("Topics already covered:\n")
		for _, qa := range cp.QAHistory {
			fmt.Fprintf(&b, "- %s\n", qa.Summary)
		}
	}
	b.WriteString("Ask exactly one new interview question. Reply with the question text only.\n")

	out, err := g.generate(ctx, b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// AnalyzeAnswer judges one candidate answer. The model replies with
// prefix-tagged lines which are parsed into an Assessment.
func (g *GeminiInterviewer) AnalyzeAnswer(ctx context.Context, cp *Checkpoint, answer string) (Assessment, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are grading an interview answer for the position %q.\n", cp.JobTitle)
	fmt.Fprintf(&b, "Question: %s\n", cp.Feedback)
	fmt.Fprintf(&b, "Candidate answer: %s\n", answer)
	fmt.Fprintf(&b, "Respond in %s using exactly this format:\n", cp.Language)
	b.WriteString("Correct: yes or no\n")
	b.WriteString("Feedback: <one short paragraph for the candidate>\n")
	b.WriteString("Summary: <one sentence for the interview transcript>\n")

	out, err := g.generate(ctx, b.String())
	if err != nil {
		return Assessment{}, err
	}
	a := Assessment{
		Correct:  strings.EqualFold(taggedLine(out, "Correct:"), "yes"),
		Feedback: taggedLine(out, "Feedback:"),
		Summary:  taggedLine(out, "Summary:"),
	}
	if a.Feedback == "" {
		a.Feedback = strings.TrimSpace(out)
	}
	if a.Summary == "" {
		a.Summary = a.Feedback
	}
	return a, nil
}

// Conclude produces the terminal verdict from the full transcript.
func (g *GeminiInterviewer) Conclude(ctx context.Context, cp *Checkpoint) (*InterviewResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "An interview for the position %q has finished.\n", cp.JobTitle)
	b.WriteString("Transcript summaries:\n")
	for _, qa := range cp.QAHistory {
		fmt.Fprintf(&b, "- %s\n", qa.Summary)
	}
	fmt.Fprintf(&b, "%d of %d answers were judged correct.\n", cp.CorrectCount, len(cp.QAHistory))
	fmt.Fprintf(&b, "Respond in %s using exactly this format:\n", cp.Language)
	b.WriteString("Score: <0-100>\n")
	b.WriteString("Summary: <short overall evaluation>\n")

	out, err := g.generate(ctx, b.String())
	if err != nil {
		return nil, err
	}
	score, perr := strconv.ParseFloat(firstField(taggedLine(out, "Score:")), 64)
	if perr != nil {
		log.Warn().Str("thread_id", cp.ThreadID).Str("raw", out).Msg("unparseable score, deriving from correct count")
		score = fallbackScore(cp)
	}
	summary := taggedLine(out, "Summary:")
	if summary == "" {
		summary = strings.TrimSpace(out)
	}
	return &InterviewResult{
		Summary:               summary,
		Score:                 clampScore(score),
		TotalQuestionNumber:   len(cp.QAHistory),
		CorrectQuestionNumber: cp.CorrectCount,
		InterviewTime:         elapsedMinutes(cp.StartTime),
	}, nil
}

// referenceQuestions pulls up to three bank questions relevant to the test.
func (g *GeminiInterviewer) referenceQuestions(cp *Checkpoint) []string {
	if g.Bank == nil {
		return nil
	}
	hits := g.Bank.TopK(cp.JobTitle+" "+cp.ExaminationPoints, 3)
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Snippet)
	}
	return out
}

// generate performs one model call and flattens the response to text.
func (g *GeminiInterviewer) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// taggedLine extracts the remainder of the first line starting with prefix.
func taggedLine(raw, prefix string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), strings.ToLower(prefix)) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}

// firstField returns the first whitespace-separated token of s.
func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// fallbackScore derives a score from the correct-answer ratio when the model
// reply cannot be parsed.
func fallbackScore(cp *Checkpoint) float64 {
	if len(cp.QAHistory) == 0 {
		return 0
	}
	return 100 * float64(cp.CorrectCount) / float64(len(cp.QAHistory))
}

func elapsedMinutes(start time.Time) int {
	m := int(time.Since(start).Minutes())
	if m < 0 {
		return 0
	}
	return m
}
