package quizapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsdeck/opsdeck/internal/cloud"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/models"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(config.Endpoints{QuizAPI: srv.URL, MetrikaGoals: srv.URL + "/goals"})
	return client, srv
}

func TestGetQuiz(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "get" {
			t.Errorf("action = %q, want get", r.URL.Query().Get("action"))
		}
		if r.URL.Query().Get("slug") != "podbor-kvartiry" {
			t.Errorf("slug = %q", r.URL.Query().Get("slug"))
		}
		json.NewEncoder(w).Encode(models.Quiz{ID: 1, Slug: "podbor-kvartiry", Title: "Подбор квартиры"})
	}))

	quiz, err := client.GetQuiz(context.Background(), "podbor-kvartiry")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.ID != 1 || quiz.Title != "Подбор квартиры" {
		t.Fatalf("quiz = %+v", quiz)
	}
}

func TestSubmitLead(t *testing.T) {
	var got models.Lead
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Query().Get("action") != "submit" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode lead: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "lead_id": 42})
	}))

	lead := models.Lead{
		QuizID:     1,
		Answers:    map[int]int{10: 100},
		Contact:    models.ContactInfo{Name: "Иван", Phone: "+7999"},
		SegmentKey: "center",
	}
	id, err := client.SubmitLead(context.Background(), lead)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != 42 {
		t.Fatalf("lead id = %d, want 42", id)
	}
	if got.SegmentKey != "center" || got.Contact.Name != "Иван" {
		t.Fatalf("posted lead = %+v", got)
	}
}

func TestSubmitLeadErrorBody(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "quiz is inactive"})
	}))

	_, err := client.SubmitLead(context.Background(), models.Lead{QuizID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *cloud.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *cloud.APIError", err)
	}
	if apiErr.Message != "quiz is inactive" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestCreateGoals(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/goals" {
			t.Errorf("path = %q, want /goals", r.URL.Path)
		}
		var body struct {
			Quiz models.Quiz `json:"quiz"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Quiz.Slug != "s" {
			t.Errorf("quiz slug = %q", body.Quiz.Slug)
		}
		json.NewEncoder(w).Encode(GoalsResult{
			Success:      true,
			CreatedGoals: []GoalStatus{{Name: "quiz_complete", Status: "created"}},
		})
	}))

	res, err := client.CreateGoals(context.Background(), models.Quiz{Slug: "s", MetrikaID: "1"})
	if err != nil {
		t.Fatalf("create goals: %v", err)
	}
	if !res.Success || len(res.CreatedGoals) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestMissingEndpoints(t *testing.T) {
	client := NewClient(config.Endpoints{})
	if _, err := client.GetQuiz(context.Background(), "s"); err == nil {
		t.Fatal("expected error for missing quiz-api endpoint")
	}
	if _, err := client.CreateGoals(context.Background(), models.Quiz{}); err == nil {
		t.Fatal("expected error for missing metrika-goals endpoint")
	}
}
