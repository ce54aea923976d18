package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/hireloop/go-interview-backend/internal/domain"
)

// fakeQuestionRepo is an in-memory QuestionRepo.
type fakeQuestionRepo struct {
	items []domain.Question
	err   error
}

func (f *fakeQuestionRepo) Create(_ context.Context, _ *gorm.DB, q *domain.Question) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, *q)
	return nil
}

func (f *fakeQuestionRepo) List(_ context.Context, _ *gorm.DB) ([]domain.Question, error) {
	return f.items, f.err
}

func (f *fakeQuestionRepo) ListByJobTitle(_ context.Context, _ *gorm.DB, jobTitle string) ([]domain.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Question
	for _, q := range f.items {
		if q.JobTitle == jobTitle {
			out = append(out, q)
		}
	}
	return out, nil
}

func TestQuestionCreate_TrimsAndNormalizes(t *testing.T) {
	r := &fakeQuestionRepo{}
	svc := NewQuestionService(nil, r)

	q, err := svc.Create(context.Background(), CreateQuestionInput{
		Question:   "  What is a goroutine?  ",
		Answer:     " A lightweight thread. ",
		JobTitle:   " Backend Engineer ",
		Language:   "EN-us",
		Difficulty: domain.DifficultyMedium,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if q.Question != "What is a goroutine?" || q.Answer != "A lightweight thread." {
		t.Fatalf("text not trimmed: %+v", q)
	}
	if q.Language != "en-US" {
		t.Fatalf("language not canonicalized: %q", q.Language)
	}
	if len(r.items) != 1 {
		t.Fatalf("entry not persisted")
	}
}

func TestQuestionCreate_Validation(t *testing.T) {
	svc := NewQuestionService(nil, &fakeQuestionRepo{})

	var ve *ValidationError
	if _, err := svc.Create(context.Background(), CreateQuestionInput{Question: "   "}); !errors.As(err, &ve) || ve.Field != "question" {
		t.Fatalf("expected validation error on question, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateQuestionInput{Question: "q?", Difficulty: "brutal"}); !errors.As(err, &ve) || ve.Field != "difficulty" {
		t.Fatalf("expected validation error on difficulty, got %v", err)
	}
	// Difficulty is optional; empty passes.
	if _, err := svc.Create(context.Background(), CreateQuestionInput{Question: "q?"}); err != nil {
		t.Fatalf("empty difficulty must pass: %v", err)
	}
}

func TestQuestionList_FiltersByJobTitle(t *testing.T) {
	r := &fakeQuestionRepo{items: []domain.Question{
		{Question: "q1", JobTitle: "Backend Engineer"},
		{Question: "q2", JobTitle: "Data Engineer"},
	}}
	svc := NewQuestionService(nil, r)

	all, err := svc.List(context.Background(), "")
	if err != nil || len(all) != 2 {
		t.Fatalf("unfiltered list: %v %d", err, len(all))
	}
	backend, err := svc.List(context.Background(), "  Backend Engineer  ")
	if err != nil || len(backend) != 1 || backend[0].Question != "q1" {
		t.Fatalf("filtered list: %v %+v", err, backend)
	}
}
