// Package quiz implements the public quiz funnel: a staged runtime that
// walks a respondent through questions to a submitted lead, and a builder
// for composing the question tree before it is saved upstream.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opsdeck/opsdeck/internal/models"
)

// completeGoal is reported once per successful submission.
const completeGoal = "quiz_complete"

var (
	// ErrAnswerRequired rejects advancing past a question nobody answered.
	ErrAnswerRequired = errors.New("select an answer first")
	// ErrContactRequired rejects a submission without name and phone.
	ErrContactRequired = errors.New("name and phone are required")
	// ErrNotAtContact rejects a submission from any stage but the contact form.
	ErrNotAtContact = errors.New("not at the contact stage")
	// ErrComplete rejects any transition out of the terminal stage.
	ErrComplete = errors.New("quiz already submitted")
)

// StageKind discriminates the runtime's stages.
type StageKind int

const (
	// StageIntro is the landing step before the first question.
	StageIntro StageKind = iota
	// StageQuestion presents one question; Stage.Question holds its index.
	StageQuestion
	// StageContact is the contact form after the last question.
	StageContact
	// StageComplete is terminal; no transition leaves it.
	StageComplete
)

// Stage is the runtime's current position. Question is meaningful only
// when Kind is StageQuestion.
type Stage struct {
	Kind     StageKind
	Question int
}

func (s Stage) String() string {
	switch s.Kind {
	case StageIntro:
		return "intro"
	case StageQuestion:
		return fmt.Sprintf("question %d", s.Question)
	case StageContact:
		return "contact"
	default:
		return "complete"
	}
}

// GoalReporter sends an analytics goal to a Metrika counter. Reporting is
// fire-and-forget: failures are the reporter's problem, never the caller's.
type GoalReporter interface {
	ReachGoal(ctx context.Context, counterID, goal string)
}

// LeadSubmitter posts a completed lead upstream and returns the stored
// lead's id.
type LeadSubmitter interface {
	SubmitLead(ctx context.Context, lead models.Lead) (int, error)
}

// Runtime steps one respondent through one quiz. It is not safe for
// concurrent use; the daemon serializes access per session.
type Runtime struct {
	quiz    models.Quiz
	stage   Stage
	answers map[int]int
	leads   LeadSubmitter
	goals   GoalReporter
	leadID  int
}

// NewRuntime starts a session at the intro stage. goals may be nil when the
// quiz has no Metrika counter.
func NewRuntime(quiz models.Quiz, leads LeadSubmitter, goals GoalReporter) *Runtime {
	return &Runtime{
		quiz:    quiz,
		stage:   Stage{Kind: StageIntro},
		answers: make(map[int]int),
		leads:   leads,
		goals:   goals,
	}
}

// Stage returns the current position.
func (r *Runtime) Stage() Stage { return r.stage }

// Answers returns a copy of the recorded question→answer choices.
func (r *Runtime) Answers() map[int]int {
	out := make(map[int]int, len(r.answers))
	for q, a := range r.answers {
		out[q] = a
	}
	return out
}

// LeadID returns the upstream lead id after a successful Submit, 0 before.
func (r *Runtime) LeadID() int { return r.leadID }

// Select records an answer for a question, overwriting any prior choice,
// and reports the answer's goal when the quiz carries a Metrika counter.
// Selection is allowed at any non-terminal stage; it does not move the
// stage.
func (r *Runtime) Select(ctx context.Context, questionID, answerID int) error {
	if r.stage.Kind == StageComplete {
		return ErrComplete
	}
	question, answer := r.find(questionID, answerID)
	if question == nil {
		return fmt.Errorf("unknown question %d", questionID)
	}
	if answer == nil {
		return fmt.Errorf("question %d has no answer %d", questionID, answerID)
	}
	r.answers[questionID] = answerID
	if r.goals != nil && r.quiz.MetrikaID != "" {
		r.goals.ReachGoal(ctx, r.quiz.MetrikaID, question.MetrikaGoalPrefix+"_"+answer.AnswerValue)
	}
	return nil
}

// Advance moves forward one stage. From a question it requires a recorded
// answer for that question; the rejection leaves the stage unchanged.
func (r *Runtime) Advance() error {
	switch r.stage.Kind {
	case StageIntro:
		if len(r.quiz.Questions) == 0 {
			r.stage = Stage{Kind: StageContact}
		} else {
			r.stage = Stage{Kind: StageQuestion, Question: 0}
		}
		return nil
	case StageQuestion:
		question := r.quiz.Questions[r.stage.Question]
		if _, ok := r.answers[question.ID]; !ok {
			return ErrAnswerRequired
		}
		if r.stage.Question+1 < len(r.quiz.Questions) {
			r.stage = Stage{Kind: StageQuestion, Question: r.stage.Question + 1}
		} else {
			r.stage = Stage{Kind: StageContact}
		}
		return nil
	case StageContact:
		return ErrNotAtContact
	default:
		return ErrComplete
	}
}

// Back moves one stage toward the intro. It never re-validates answers and
// is a no-op at the intro; the terminal stage cannot be left.
func (r *Runtime) Back() error {
	switch r.stage.Kind {
	case StageIntro:
		return nil
	case StageQuestion:
		if r.stage.Question == 0 {
			r.stage = Stage{Kind: StageIntro}
		} else {
			r.stage = Stage{Kind: StageQuestion, Question: r.stage.Question - 1}
		}
		return nil
	case StageContact:
		if len(r.quiz.Questions) == 0 {
			r.stage = Stage{Kind: StageIntro}
		} else {
			r.stage = Stage{Kind: StageQuestion, Question: len(r.quiz.Questions) - 1}
		}
		return nil
	default:
		return ErrComplete
	}
}

// Submit posts the lead from the contact stage. On success it reports the
// completion goal and moves to the terminal stage; on failure the stage and
// answers are untouched so the respondent can retry.
func (r *Runtime) Submit(ctx context.Context, contact models.ContactInfo) error {
	if r.stage.Kind != StageContact {
		if r.stage.Kind == StageComplete {
			return ErrComplete
		}
		return ErrNotAtContact
	}
	if strings.TrimSpace(contact.Name) == "" || strings.TrimSpace(contact.Phone) == "" {
		return ErrContactRequired
	}
	lead := models.Lead{
		QuizID:     r.quiz.ID,
		Answers:    r.Answers(),
		Contact:    contact,
		SegmentKey: r.SegmentKey(),
	}
	id, err := r.leads.SubmitLead(ctx, lead)
	if err != nil {
		return fmt.Errorf("submit lead: %w", err)
	}
	if r.goals != nil && r.quiz.MetrikaID != "" {
		r.goals.ReachGoal(ctx, r.quiz.MetrikaID, completeGoal)
	}
	r.leadID = id
	r.stage = Stage{Kind: StageComplete}
	return nil
}

// SegmentKey joins the selected answer values with "_" in question order.
// Questions without a recorded answer are skipped, so the key is complete
// exactly when every question was answered.
func (r *Runtime) SegmentKey() string {
	parts := make([]string, 0, len(r.quiz.Questions))
	for _, question := range r.quiz.Questions {
		answerID, ok := r.answers[question.ID]
		if !ok {
			continue
		}
		for _, answer := range question.Answers {
			if answer.ID == answerID {
				parts = append(parts, answer.AnswerValue)
				break
			}
		}
	}
	return strings.Join(parts, "_")
}

func (r *Runtime) find(questionID, answerID int) (*models.Question, *models.Answer) {
	for i := range r.quiz.Questions {
		question := &r.quiz.Questions[i]
		if question.ID != questionID {
			continue
		}
		for j := range question.Answers {
			if question.Answers[j].ID == answerID {
				return question, &question.Answers[j]
			}
		}
		return question, nil
	}
	return nil, nil
}
