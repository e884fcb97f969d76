package quiz

import (
	"context"
	"errors"
	"testing"

	"github.com/opsdeck/opsdeck/internal/models"
)

type recordedGoal struct {
	counter string
	goal    string
}

type fakeGoals struct {
	goals []recordedGoal
}

func (g *fakeGoals) ReachGoal(_ context.Context, counterID, goal string) {
	g.goals = append(g.goals, recordedGoal{counterID, goal})
}

type fakeLeads struct {
	leads  []models.Lead
	nextID int
	err    error
}

func (l *fakeLeads) SubmitLead(_ context.Context, lead models.Lead) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	l.leads = append(l.leads, lead)
	l.nextID++
	return l.nextID, nil
}

func twoQuestionQuiz() models.Quiz {
	return models.Quiz{
		ID:        1,
		Title:     "Подбор квартиры",
		Slug:      "podbor-kvartiry",
		MetrikaID: "12345678",
		IsActive:  true,
		Questions: []models.Question{
			{
				ID: 10, QuestionText: "Район?", QuestionOrder: 1, MetrikaGoalPrefix: "district",
				Answers: []models.Answer{
					{ID: 100, AnswerText: "Центр", AnswerValue: "center", AnswerOrder: 1},
					{ID: 101, AnswerText: "Окраина", AnswerValue: "suburb", AnswerOrder: 2},
				},
			},
			{
				ID: 11, QuestionText: "Бюджет?", QuestionOrder: 2, MetrikaGoalPrefix: "budget",
				Answers: []models.Answer{
					{ID: 110, AnswerText: "До 5 млн", AnswerValue: "low", AnswerOrder: 1},
					{ID: 111, AnswerText: "Выше", AnswerValue: "high", AnswerOrder: 2},
				},
			},
		},
	}
}

func TestRuntimeHappyPath(t *testing.T) {
	ctx := context.Background()
	leads := &fakeLeads{}
	goals := &fakeGoals{}
	r := NewRuntime(twoQuestionQuiz(), leads, goals)

	if r.Stage().Kind != StageIntro {
		t.Fatalf("initial stage = %v, want intro", r.Stage())
	}
	if err := r.Advance(); err != nil {
		t.Fatalf("advance from intro: %v", err)
	}
	if r.Stage() != (Stage{Kind: StageQuestion, Question: 0}) {
		t.Fatalf("stage = %v, want question 0", r.Stage())
	}

	if err := r.Select(ctx, 10, 100); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := r.Advance(); err != nil {
		t.Fatalf("advance to question 1: %v", err)
	}
	if err := r.Select(ctx, 11, 111); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := r.Advance(); err != nil {
		t.Fatalf("advance to contact: %v", err)
	}
	if r.Stage().Kind != StageContact {
		t.Fatalf("stage = %v, want contact", r.Stage())
	}

	if key := r.SegmentKey(); key != "center_high" {
		t.Fatalf("segment key = %q, want center_high", key)
	}

	err := r.Submit(ctx, models.ContactInfo{Name: "Иван", Phone: "+79990000000"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Stage().Kind != StageComplete {
		t.Fatalf("stage = %v, want complete", r.Stage())
	}
	if r.LeadID() != 1 {
		t.Fatalf("lead id = %d, want 1", r.LeadID())
	}

	if len(leads.leads) != 1 {
		t.Fatalf("submitted leads = %d, want 1", len(leads.leads))
	}
	lead := leads.leads[0]
	if lead.SegmentKey != "center_high" {
		t.Fatalf("lead segment key = %q", lead.SegmentKey)
	}
	if lead.Answers[10] != 100 || lead.Answers[11] != 111 {
		t.Fatalf("lead answers = %v", lead.Answers)
	}

	want := []recordedGoal{
		{"12345678", "district_center"},
		{"12345678", "budget_high"},
		{"12345678", "quiz_complete"},
	}
	if len(goals.goals) != len(want) {
		t.Fatalf("goals = %v, want %v", goals.goals, want)
	}
	for i := range want {
		if goals.goals[i] != want[i] {
			t.Fatalf("goal[%d] = %v, want %v", i, goals.goals[i], want[i])
		}
	}
}

func TestAdvanceRequiresAnswer(t *testing.T) {
	r := NewRuntime(twoQuestionQuiz(), &fakeLeads{}, nil)
	if err := r.Advance(); err != nil {
		t.Fatalf("advance from intro: %v", err)
	}
	if err := r.Advance(); !errors.Is(err, ErrAnswerRequired) {
		t.Fatalf("advance without answer: err = %v, want ErrAnswerRequired", err)
	}
	if r.Stage() != (Stage{Kind: StageQuestion, Question: 0}) {
		t.Fatalf("rejected advance moved the stage: %v", r.Stage())
	}
}

func TestSelectOverwritesAndSkipsGoalsWithoutCounter(t *testing.T) {
	ctx := context.Background()
	q := twoQuestionQuiz()
	q.MetrikaID = ""
	goals := &fakeGoals{}
	r := NewRuntime(q, &fakeLeads{}, goals)
	r.Advance()

	if err := r.Select(ctx, 10, 100); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := r.Select(ctx, 10, 101); err != nil {
		t.Fatalf("re-select: %v", err)
	}
	if r.Answers()[10] != 101 {
		t.Fatalf("answer not overwritten: %v", r.Answers())
	}
	if len(goals.goals) != 0 {
		t.Fatalf("goals fired without a counter: %v", goals.goals)
	}
}

func TestSelectRejectsUnknownIDs(t *testing.T) {
	r := NewRuntime(twoQuestionQuiz(), &fakeLeads{}, nil)
	r.Advance()
	if err := r.Select(context.Background(), 99, 100); err == nil {
		t.Fatal("expected error for unknown question")
	}
	if err := r.Select(context.Background(), 10, 999); err == nil {
		t.Fatal("expected error for unknown answer")
	}
}

func TestBackNavigation(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(twoQuestionQuiz(), &fakeLeads{}, nil)
	r.Advance()
	r.Select(ctx, 10, 100)
	r.Advance()
	r.Select(ctx, 11, 110)
	r.Advance() // contact

	if err := r.Back(); err != nil {
		t.Fatalf("back from contact: %v", err)
	}
	if r.Stage() != (Stage{Kind: StageQuestion, Question: 1}) {
		t.Fatalf("stage = %v, want question 1", r.Stage())
	}
	r.Back()
	r.Back()
	if r.Stage().Kind != StageIntro {
		t.Fatalf("stage = %v, want intro", r.Stage())
	}
	// Floor: back at intro stays at intro.
	if err := r.Back(); err != nil {
		t.Fatalf("back at intro: %v", err)
	}
	if r.Stage().Kind != StageIntro {
		t.Fatalf("stage = %v, want intro", r.Stage())
	}
	// Back never drops recorded answers.
	if len(r.Answers()) != 2 {
		t.Fatalf("answers lost on back: %v", r.Answers())
	}
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	leads := &fakeLeads{}
	r := NewRuntime(twoQuestionQuiz(), leads, nil)

	if err := r.Submit(ctx, models.ContactInfo{Name: "A", Phone: "1"}); !errors.Is(err, ErrNotAtContact) {
		t.Fatalf("submit from intro: err = %v, want ErrNotAtContact", err)
	}

	r.Advance()
	r.Select(ctx, 10, 100)
	r.Advance()
	r.Select(ctx, 11, 110)
	r.Advance()

	if err := r.Submit(ctx, models.ContactInfo{Name: "", Phone: "1"}); !errors.Is(err, ErrContactRequired) {
		t.Fatalf("submit without name: err = %v, want ErrContactRequired", err)
	}
	if err := r.Submit(ctx, models.ContactInfo{Name: "A", Phone: "  "}); !errors.Is(err, ErrContactRequired) {
		t.Fatalf("submit without phone: err = %v, want ErrContactRequired", err)
	}
	if len(leads.leads) != 0 {
		t.Fatalf("invalid submit reached the backend: %v", leads.leads)
	}
}

func TestSubmitFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	leads := &fakeLeads{err: errors.New("upstream down")}
	goals := &fakeGoals{}
	r := NewRuntime(twoQuestionQuiz(), leads, goals)
	r.Advance()
	r.Select(ctx, 10, 100)
	r.Advance()
	r.Select(ctx, 11, 110)
	r.Advance()
	firedBefore := len(goals.goals)

	err := r.Submit(ctx, models.ContactInfo{Name: "A", Phone: "1"})
	if err == nil {
		t.Fatal("expected submit error")
	}
	if r.Stage().Kind != StageContact {
		t.Fatalf("failed submit moved the stage: %v", r.Stage())
	}
	if len(goals.goals) != firedBefore {
		t.Fatal("quiz_complete fired for a failed submit")
	}

	// Retry after the upstream recovers.
	leads.err = nil
	if err := r.Submit(ctx, models.ContactInfo{Name: "A", Phone: "1"}); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if r.Stage().Kind != StageComplete {
		t.Fatalf("stage = %v, want complete", r.Stage())
	}
}

func TestSegmentKeySkipsUnanswered(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(twoQuestionQuiz(), &fakeLeads{}, nil)
	r.Advance()
	r.Select(ctx, 11, 111)
	if key := r.SegmentKey(); key != "high" {
		t.Fatalf("segment key = %q, want high", key)
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(twoQuestionQuiz(), &fakeLeads{}, nil)
	r.Advance()
	r.Select(ctx, 10, 100)
	r.Advance()
	r.Select(ctx, 11, 110)
	r.Advance()
	if err := r.Submit(ctx, models.ContactInfo{Name: "A", Phone: "1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := r.Advance(); !errors.Is(err, ErrComplete) {
		t.Fatalf("advance after complete: %v", err)
	}
	if err := r.Back(); !errors.Is(err, ErrComplete) {
		t.Fatalf("back after complete: %v", err)
	}
	if err := r.Select(ctx, 10, 101); !errors.Is(err, ErrComplete) {
		t.Fatalf("select after complete: %v", err)
	}
	if err := r.Submit(ctx, models.ContactInfo{Name: "A", Phone: "1"}); !errors.Is(err, ErrComplete) {
		t.Fatalf("re-submit after complete: %v", err)
	}
}
