// Package testing provides shared test utilities for opsdeck.
//
// It contains model factories and small helpers used across package test
// suites, built on github.com/stretchr/testify.
package testing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/models"
)

// FixedTime is a fixed timestamp for deterministic tests.
var FixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Common test constants.
const (
	TestRepo   = "acme/realty-leads"
	TestDomain = "leads.example.com"
	TestSlug   = "podbor-kvartiry"
)

// AssertJSONEqual asserts that two values are semantically equal after a
// JSON round trip, ignoring key order.
func AssertJSONEqual(t *testing.T, want, got any, msgAndArgs ...interface{}) {
	t.Helper()
	wantBytes, err := json.Marshal(want)
	require.NoError(t, err, "failed to marshal 'want' to JSON")
	gotBytes, err := json.Marshal(got)
	require.NoError(t, err, "failed to marshal 'got' to JSON")

	var wantAny, gotAny any
	require.NoError(t, json.Unmarshal(wantBytes, &wantAny), "failed to unmarshal 'want'")
	require.NoError(t, json.Unmarshal(gotBytes, &gotAny), "failed to unmarshal 'got'")

	assert.Equal(t, wantAny, gotAny, msgAndArgs...)
}

// TempFile creates a file with the given content under the test's temp
// directory and returns its path.
func TempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testfile")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write temp file")
	return path
}

// MkdirTempInDir creates a temporary directory under parentDir, cleaned up
// with the test.
func MkdirTempInDir(t *testing.T, parentDir string) string {
	t.Helper()
	path, err := os.MkdirTemp(parentDir, "testdir*")
	require.NoError(t, err, "failed to create temp dir")
	t.Cleanup(func() {
		_ = os.RemoveAll(path)
	})
	return path
}

// VMOpts holds optional overrides for NewTestVM.
type VMOpts struct {
	ID      int
	Name    string
	IP      string
	Status  models.VMStatus
	CloudID string
}

// NewTestVM creates a visible VM instance with sensible defaults.
func NewTestVM(opts VMOpts) models.VMInstance {
	if opts.ID == 0 {
		opts.ID = 1
	}
	if opts.Name == "" {
		opts.Name = "vm-test-1"
	}
	if opts.IP == "" {
		opts.IP = "10.128.0.10"
	}
	if opts.Status == "" {
		opts.Status = models.StatusReady
	}
	if opts.CloudID == "" {
		opts.CloudID = "cloud-test-1"
	}
	return models.VMInstance{
		ID:        opts.ID,
		Name:      opts.Name,
		IPAddress: opts.IP,
		SSHUser:   "deploy",
		Status:    opts.Status,
		CloudID:   opts.CloudID,
	}
}

// ConfigOpts holds optional overrides for NewTestConfig.
type ConfigOpts struct {
	ID     int
	Name   string
	Domain string
	Repo   string
	VMID   int
}

// NewTestConfig creates a deploy config with sensible defaults.
func NewTestConfig(opts ConfigOpts) models.DeployConfig {
	if opts.ID == 0 {
		opts.ID = 1
	}
	if opts.Name == "" {
		opts.Name = "config-test-1"
	}
	if opts.Domain == "" {
		opts.Domain = TestDomain
	}
	if opts.Repo == "" {
		opts.Repo = TestRepo
	}
	if opts.VMID == 0 {
		opts.VMID = 1
	}
	return models.DeployConfig{
		ID:           opts.ID,
		Name:         opts.Name,
		Domain:       opts.Domain,
		GithubRepo:   opts.Repo,
		VMInstanceID: opts.VMID,
	}
}

// NewTestQuiz creates a two-question quiz tree with a Metrika counter.
func NewTestQuiz() models.Quiz {
	return models.Quiz{
		ID:        1,
		Title:     "Подбор квартиры",
		Slug:      TestSlug,
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
