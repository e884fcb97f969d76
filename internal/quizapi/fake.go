package quizapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/opsdeck/opsdeck/internal/models"
)

// FakeStore implements Store in memory for tests.
type FakeStore struct {
	mu       sync.Mutex
	quizzes  map[string]models.Quiz
	leads    []models.Lead
	nextLead int

	SubmitErr error
	GoalsErr  error
}

var _ Store = (*FakeStore)(nil)

// NewFakeStore returns an empty fake.
func NewFakeStore() *FakeStore {
	return &FakeStore{quizzes: make(map[string]models.Quiz)}
}

// AddQuiz seeds a quiz, keyed by slug.
func (s *FakeStore) AddQuiz(quiz models.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.Slug] = quiz
}

// Leads returns a copy of every submitted lead.
func (s *FakeStore) Leads() []models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Lead, len(s.leads))
	copy(out, s.leads)
	return out
}

func (s *FakeStore) GetQuiz(_ context.Context, slug string) (models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[slug]
	if !ok {
		return models.Quiz{}, fmt.Errorf("quiz %s not found", slug)
	}
	return quiz, nil
}

func (s *FakeStore) ListQuizzes(_ context.Context) ([]models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		quiz.Questions = nil
		out = append(out, quiz)
	}
	return out, nil
}

func (s *FakeStore) SubmitLead(_ context.Context, lead models.Lead) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SubmitErr != nil {
		return 0, s.SubmitErr
	}
	s.leads = append(s.leads, lead)
	s.nextLead++
	return s.nextLead, nil
}

func (s *FakeStore) CreateGoals(_ context.Context, quiz models.Quiz) (GoalsResult, error) {
	if s.GoalsErr != nil {
		return GoalsResult{}, s.GoalsErr
	}
	res := GoalsResult{Success: true}
	for _, q := range quiz.Questions {
		for _, a := range q.Answers {
			name := q.MetrikaGoalPrefix + "_" + a.AnswerValue
			res.CreatedGoals = append(res.CreatedGoals, GoalStatus{Name: name, Status: "created"})
			res.CreatedSegments = append(res.CreatedSegments, GoalStatus{Name: name, Status: "created"})
		}
	}
	res.CreatedGoals = append(res.CreatedGoals, GoalStatus{Name: "quiz_complete", Status: "created"})
	return res, nil
}
