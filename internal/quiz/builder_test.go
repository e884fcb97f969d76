package quiz

import (
	"errors"
	"testing"

	"github.com/opsdeck/opsdeck/internal/models"
)

func TestBuilderSlugDerivation(t *testing.T) {
	b := NewBuilder()
	b.SetTitle("Подбор квартиры")
	if got := b.Quiz().Slug; got != "podbor-kvartiry" {
		t.Fatalf("slug = %q, want podbor-kvartiry", got)
	}

	// A second title change never touches an existing slug.
	b.SetTitle("Новое название")
	if got := b.Quiz().Slug; got != "podbor-kvartiry" {
		t.Fatalf("slug changed on retitle: %q", got)
	}

	b.SetSlug("custom")
	b.SetTitle("Ещё одно")
	if got := b.Quiz().Slug; got != "custom" {
		t.Fatalf("manual slug overwritten: %q", got)
	}
}

func TestBuilderQuestionTree(t *testing.T) {
	b := NewBuilder()
	q1 := b.AddQuestion("Район?", "district")
	q2 := b.AddQuestion("Бюджет?", "budget")

	a1, err := b.AddAnswer(q1, "Центр", "center")
	if err != nil {
		t.Fatalf("add answer: %v", err)
	}
	if _, err := b.AddAnswer(q1, "Окраина", "suburb"); err != nil {
		t.Fatalf("add answer: %v", err)
	}

	if err := b.UpdateQuestion(q2, "Какой бюджет?", "budget"); err != nil {
		t.Fatalf("update question: %v", err)
	}
	if err := b.UpdateAnswer(q1, a1, "Самый центр", "center"); err != nil {
		t.Fatalf("update answer: %v", err)
	}

	quiz := b.Quiz()
	if len(quiz.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(quiz.Questions))
	}
	if quiz.Questions[0].QuestionOrder != 1 || quiz.Questions[1].QuestionOrder != 2 {
		t.Fatalf("question order wrong: %+v", quiz.Questions)
	}
	if quiz.Questions[1].QuestionText != "Какой бюджет?" {
		t.Fatalf("question text = %q", quiz.Questions[1].QuestionText)
	}
	if quiz.Questions[0].Answers[0].AnswerText != "Самый центр" {
		t.Fatalf("answer text = %q", quiz.Questions[0].Answers[0].AnswerText)
	}

	if err := b.DeleteQuestion(q1); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	quiz = b.Quiz()
	if len(quiz.Questions) != 1 || quiz.Questions[0].ID != q2 {
		t.Fatalf("questions after delete = %+v", quiz.Questions)
	}
	// Deletion renumbers the survivors.
	if quiz.Questions[0].QuestionOrder != 1 {
		t.Fatalf("order after delete = %d, want 1", quiz.Questions[0].QuestionOrder)
	}
}

func TestBuilderAnswerDeletionRenumbers(t *testing.T) {
	b := NewBuilder()
	q := b.AddQuestion("Район?", "district")
	a1, _ := b.AddAnswer(q, "A", "a")
	a2, _ := b.AddAnswer(q, "B", "b")
	a3, _ := b.AddAnswer(q, "C", "c")
	_ = a3

	if err := b.DeleteAnswer(q, a1); err != nil {
		t.Fatalf("delete answer: %v", err)
	}
	answers := b.Quiz().Questions[0].Answers
	if len(answers) != 2 {
		t.Fatalf("answers = %d, want 2", len(answers))
	}
	if answers[0].ID != a2 || answers[0].AnswerOrder != 1 || answers[1].AnswerOrder != 2 {
		t.Fatalf("answers after delete = %+v", answers)
	}
}

func TestBuilderUnknownIDs(t *testing.T) {
	b := NewBuilder()
	q := b.AddQuestion("Q", "g")
	if err := b.UpdateQuestion(99, "x", "y"); err == nil {
		t.Fatal("expected error for unknown question")
	}
	if err := b.DeleteQuestion(99); err == nil {
		t.Fatal("expected error for unknown question")
	}
	if _, err := b.AddAnswer(99, "x", "y"); err == nil {
		t.Fatal("expected error for unknown question")
	}
	if err := b.UpdateAnswer(q, 99, "x", "y"); err == nil {
		t.Fatal("expected error for unknown answer")
	}
	if err := b.DeleteAnswer(q, 99); err == nil {
		t.Fatal("expected error for unknown answer")
	}
}

func TestBuilderValidate(t *testing.T) {
	b := NewBuilder()
	if err := b.Validate(); !errors.Is(err, ErrInvalidQuiz) {
		t.Fatalf("empty draft: err = %v, want ErrInvalidQuiz", err)
	}
	b.SetTitle("Подбор квартиры")
	if err := b.Validate(); !errors.Is(err, ErrInvalidQuiz) {
		t.Fatalf("draft without questions: err = %v, want ErrInvalidQuiz", err)
	}
	b.AddQuestion("Район?", "district")
	if err := b.Validate(); err != nil {
		t.Fatalf("complete draft: %v", err)
	}
}

func TestBuilderResume(t *testing.T) {
	b := NewBuilderFrom(models.Quiz{
		Title: "Т", Slug: "t",
		Questions: []models.Question{
			{ID: 7, QuestionText: "Q", QuestionOrder: 1, Answers: []models.Answer{{ID: 12, AnswerValue: "v", AnswerOrder: 1}}},
		},
	})
	id := b.AddQuestion("Q2", "g")
	if id <= 12 {
		t.Fatalf("resumed draft reused id %d", id)
	}
}
