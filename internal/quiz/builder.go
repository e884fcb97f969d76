package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opsdeck/opsdeck/internal/models"
)

// ErrInvalidQuiz rejects saving a draft without a title, a slug, and at
// least one question.
var ErrInvalidQuiz = errors.New("quiz needs a title, a slug, and at least one question")

// Builder edits one quiz draft in memory. IDs are assigned locally and are
// only placeholders until the upstream store persists the tree. Not safe
// for concurrent use.
type Builder struct {
	quiz   models.Quiz
	nextID int
}

// NewBuilder starts an empty draft.
func NewBuilder() *Builder {
	return &Builder{nextID: 1}
}

// NewBuilderFrom resumes editing an existing quiz tree.
func NewBuilderFrom(quiz models.Quiz) *Builder {
	b := &Builder{quiz: quiz, nextID: 1}
	for _, q := range quiz.Questions {
		if q.ID >= b.nextID {
			b.nextID = q.ID + 1
		}
		for _, a := range q.Answers {
			if a.ID >= b.nextID {
				b.nextID = a.ID + 1
			}
		}
	}
	return b
}

// Quiz returns the current draft.
func (b *Builder) Quiz() models.Quiz { return b.quiz }

// SetTitle updates the title. The first title set while the slug is still
// empty also derives the slug; after that the slug only changes through
// SetSlug.
func (b *Builder) SetTitle(title string) {
	b.quiz.Title = title
	if b.quiz.Slug == "" {
		b.quiz.Slug = Slugify(title)
	}
}

// SetSlug overrides the derived slug.
func (b *Builder) SetSlug(slug string) { b.quiz.Slug = slug }

// SetDescription updates the description shown on the intro stage.
func (b *Builder) SetDescription(desc string) { b.quiz.Description = desc }

// SetMetrikaID attaches a Metrika counter; empty detaches it.
func (b *Builder) SetMetrikaID(id string) { b.quiz.MetrikaID = id }

// SetActive toggles whether the quiz is publicly reachable.
func (b *Builder) SetActive(active bool) { b.quiz.IsActive = active }

// AddQuestion appends a question and returns its draft id.
func (b *Builder) AddQuestion(text, goalPrefix string) int {
	id := b.nextID
	b.nextID++
	b.quiz.Questions = append(b.quiz.Questions, models.Question{
		ID:                id,
		QuestionText:      text,
		QuestionOrder:     len(b.quiz.Questions) + 1,
		MetrikaGoalPrefix: goalPrefix,
	})
	return id
}

// UpdateQuestion rewrites a question's text and goal prefix.
func (b *Builder) UpdateQuestion(id int, text, goalPrefix string) error {
	q := b.question(id)
	if q == nil {
		return fmt.Errorf("unknown question %d", id)
	}
	q.QuestionText = text
	q.MetrikaGoalPrefix = goalPrefix
	return nil
}

// DeleteQuestion removes a question and renumbers the remaining ones.
func (b *Builder) DeleteQuestion(id int) error {
	for i := range b.quiz.Questions {
		if b.quiz.Questions[i].ID != id {
			continue
		}
		b.quiz.Questions = append(b.quiz.Questions[:i], b.quiz.Questions[i+1:]...)
		for j := range b.quiz.Questions {
			b.quiz.Questions[j].QuestionOrder = j + 1
		}
		return nil
	}
	return fmt.Errorf("unknown question %d", id)
}

// AddAnswer appends an answer to a question and returns its draft id.
func (b *Builder) AddAnswer(questionID int, text, value string) (int, error) {
	q := b.question(questionID)
	if q == nil {
		return 0, fmt.Errorf("unknown question %d", questionID)
	}
	id := b.nextID
	b.nextID++
	q.Answers = append(q.Answers, models.Answer{
		ID:          id,
		AnswerText:  text,
		AnswerValue: value,
		AnswerOrder: len(q.Answers) + 1,
	})
	return id, nil
}

// UpdateAnswer rewrites an answer's text and value.
func (b *Builder) UpdateAnswer(questionID, answerID int, text, value string) error {
	q := b.question(questionID)
	if q == nil {
		return fmt.Errorf("unknown question %d", questionID)
	}
	for i := range q.Answers {
		if q.Answers[i].ID == answerID {
			q.Answers[i].AnswerText = text
			q.Answers[i].AnswerValue = value
			return nil
		}
	}
	return fmt.Errorf("question %d has no answer %d", questionID, answerID)
}

// DeleteAnswer removes an answer from a question and renumbers the rest.
func (b *Builder) DeleteAnswer(questionID, answerID int) error {
	q := b.question(questionID)
	if q == nil {
		return fmt.Errorf("unknown question %d", questionID)
	}
	for i := range q.Answers {
		if q.Answers[i].ID != answerID {
			continue
		}
		q.Answers = append(q.Answers[:i], q.Answers[i+1:]...)
		for j := range q.Answers {
			q.Answers[j].AnswerOrder = j + 1
		}
		return nil
	}
	return fmt.Errorf("question %d has no answer %d", questionID, answerID)
}

// Validate checks the draft is saveable.
func (b *Builder) Validate() error {
	if strings.TrimSpace(b.quiz.Title) == "" ||
		strings.TrimSpace(b.quiz.Slug) == "" ||
		len(b.quiz.Questions) == 0 {
		return ErrInvalidQuiz
	}
	return nil
}

func (b *Builder) question(id int) *models.Question {
	for i := range b.quiz.Questions {
		if b.quiz.Questions[i].ID == id {
			return &b.quiz.Questions[i]
		}
	}
	return nil
}
