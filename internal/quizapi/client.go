// Package quizapi talks to the quiz-api and metrika-goals serverless
// functions: quiz lookup, lead submission, and analytics goal/segment
// provisioning for a saved quiz.
package quizapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/opsdeck/opsdeck/internal/cloud"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/models"
)

// GoalStatus reports one goal or segment the metrika-goals function
// created (or found already present).
type GoalStatus struct {
	Name   string `json:"name"`
	ID     int    `json:"id,omitempty"`
	Status string `json:"status"`
}

// GoalsResult is the metrika-goals response: every goal and audience
// segment provisioned for a quiz's counter.
type GoalsResult struct {
	Success         bool         `json:"success"`
	CreatedGoals    []GoalStatus `json:"created_goals"`
	CreatedSegments []GoalStatus `json:"created_segments"`
}

// Store is the quiz-api surface the daemon consumes. Split from Client so
// the quiz runtime and the API handlers can run against a fake in tests.
type Store interface {
	GetQuiz(ctx context.Context, slug string) (models.Quiz, error)
	ListQuizzes(ctx context.Context) ([]models.Quiz, error)
	SubmitLead(ctx context.Context, lead models.Lead) (int, error)
	CreateGoals(ctx context.Context, quiz models.Quiz) (GoalsResult, error)
}

// Client implements Store against the deployed functions. Lookups retry,
// submissions do not: a replayed submit would store a duplicate lead.
type Client struct {
	quizAPI      string
	metrikaGoals string
	get          *retryablehttp.Client
	post         *http.Client
}

var _ Store = (*Client)(nil)

// NewClient binds a client to the resolved endpoint table.
func NewClient(endpoints config.Endpoints) *Client {
	get := retryablehttp.NewClient()
	get.RetryMax = 2
	get.Logger = nil
	return &Client{
		quizAPI:      endpoints.QuizAPI,
		metrikaGoals: endpoints.MetrikaGoals,
		get:          get,
		post:         &http.Client{},
	}
}

// GetQuiz fetches one quiz with its full question tree by slug.
func (c *Client) GetQuiz(ctx context.Context, slug string) (models.Quiz, error) {
	if c.quizAPI == "" {
		return models.Quiz{}, fmt.Errorf("quiz-api endpoint not deployed")
	}
	target := c.quizAPI + "/?action=get&slug=" + url.QueryEscape(slug)
	var quiz models.Quiz
	if err := c.getJSON(ctx, target, &quiz); err != nil {
		return models.Quiz{}, fmt.Errorf("get quiz %s: %w", slug, err)
	}
	return quiz, nil
}

// ListQuizzes fetches all quizzes without their questions.
func (c *Client) ListQuizzes(ctx context.Context) ([]models.Quiz, error) {
	if c.quizAPI == "" {
		return nil, fmt.Errorf("quiz-api endpoint not deployed")
	}
	var quizzes []models.Quiz
	if err := c.getJSON(ctx, c.quizAPI+"/?action=list", &quizzes); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// SubmitLead posts a completed lead and returns the stored lead id.
func (c *Client) SubmitLead(ctx context.Context, lead models.Lead) (int, error) {
	if c.quizAPI == "" {
		return 0, fmt.Errorf("quiz-api endpoint not deployed")
	}
	var res struct {
		Success bool `json:"success"`
		LeadID  int  `json:"lead_id"`
	}
	if err := c.postJSON(ctx, c.quizAPI+"/?action=submit", lead, &res); err != nil {
		return 0, fmt.Errorf("submit lead for quiz %d: %w", lead.QuizID, err)
	}
	return res.LeadID, nil
}

// CreateGoals asks the metrika-goals function to provision one goal per
// answer value plus the completion goal, and an audience segment per goal,
// on the quiz's counter.
func (c *Client) CreateGoals(ctx context.Context, quiz models.Quiz) (GoalsResult, error) {
	if c.metrikaGoals == "" {
		return GoalsResult{}, fmt.Errorf("metrika-goals endpoint not deployed")
	}
	body := map[string]models.Quiz{"quiz": quiz}
	var res GoalsResult
	if err := c.postJSON(ctx, c.metrikaGoals, body, &res); err != nil {
		return GoalsResult{}, fmt.Errorf("create goals for quiz %s: %w", quiz.Slug, err)
	}
	return res, nil
}

func (c *Client) getJSON(ctx context.Context, target string, dest any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.get.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return cloud.NewAPIError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, target string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.post.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return cloud.NewAPIError(resp.StatusCode, data)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
