package daemon

import (
	"time"

	"github.com/opsdeck/opsdeck/internal/cloud"
	"github.com/opsdeck/opsdeck/internal/deploy"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/quizapi"
)

type V1ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type V1StatusResponse struct {
	VMs        map[string]int `json:"vms"`
	Configs    int            `json:"configs"`
	Operations []V1Operation  `json:"recent_operations"`
	Metrics    bool           `json:"metrics_enabled"`
	ChatReady  bool           `json:"chat_ready"`
	Version    string         `json:"version"`
}

type V1VMListResponse struct {
	VMs []models.VMInstance `json:"vms"`
}

type V1VMCreateRequest struct {
	Name string `json:"name,omitempty"`
}

type V1VMCreateResponse struct {
	IPAddress string   `json:"ip_address"`
	Logs      []string `json:"logs,omitempty"`
}

type V1VMDeleteResponse struct {
	Message       string   `json:"message,omitempty"`
	Logs          []string `json:"logs,omitempty"`
	LinkedConfigs []string `json:"linked_configs,omitempty"`
}

type V1SSHKeyResponse struct {
	PrivateKey string `json:"private_key"`
}

type V1SyncResponse struct {
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted,omitempty"`
	Logs    []string `json:"logs,omitempty"`
}

type V1ConfigListResponse struct {
	Configs []models.DeployConfig `json:"configs"`
}

type V1ConfigRequest struct {
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	GithubRepo   string `json:"github_repo"`
	VMInstanceID int    `json:"vm_instance_id,omitempty"`
}

type V1DeployFrontendRequest struct {
	Config string `json:"config"`
}

type V1DeployResponse struct {
	URL  string   `json:"url,omitempty"`
	Logs []string `json:"logs,omitempty"`
}

type V1DeployFunctionsRequest struct {
	GithubRepo string `json:"github_repo"`
}

type V1DeployFunctionsResponse struct {
	deploy.BatchResult
}

type V1DatabaseResponse struct {
	DatabaseURL string   `json:"database_url,omitempty"`
	DBPassword  string   `json:"db_password,omitempty"`
	Logs        []string `json:"logs,omitempty"`
}

type V1MigrateRequest struct {
	GithubRepo    string            `json:"github_repo"`
	SchemaFrom    string            `json:"schema_from,omitempty"`
	SchemaTo      string            `json:"schema_to,omitempty"`
	TableReplaces map[string]string `json:"table_replaces,omitempty"`
}

type V1MigrateResponse struct {
	cloud.MigrationResult
}

type V1Operation struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	OK      bool      `json:"ok"`
	Message string    `json:"message,omitempty"`
	Logs    []string  `json:"logs,omitempty"`
}

type V1OperationsResponse struct {
	Operations []V1Operation `json:"operations"`
}

type V1QuizListResponse struct {
	Quizzes []models.Quiz `json:"quizzes"`
}

type V1QuizSessionCreateRequest struct {
	Slug string `json:"slug"`
}

type V1QuizSessionResponse struct {
	SessionID string      `json:"session_id"`
	QuizID    int         `json:"quiz_id"`
	Slug      string      `json:"slug"`
	Stage     string      `json:"stage"`
	Question  *V1Question `json:"question,omitempty"`
	Answers   map[int]int `json:"answers,omitempty"`
	LeadID    int         `json:"lead_id,omitempty"`
}

// V1Question is the runtime view of the current question: enough for a
// client to render the step without the full quiz tree.
type V1Question struct {
	ID      int             `json:"id"`
	Index   int             `json:"index"`
	Total   int             `json:"total"`
	Text    string          `json:"text"`
	Answers []models.Answer `json:"answers"`
}

type V1QuizSelectRequest struct {
	QuestionID int `json:"question_id"`
	AnswerID   int `json:"answer_id"`
}

type V1QuizSubmitRequest struct {
	Contact models.ContactInfo `json:"contactInfo"`
}

type V1QuizSubmitResponse struct {
	Success    bool   `json:"success"`
	LeadID     int    `json:"lead_id"`
	SegmentKey string `json:"segment_key"`
}

type V1DraftSaveRequest struct {
	Quiz models.Quiz `json:"quiz"`
}

type V1DraftListResponse struct {
	Drafts []V1DraftSummary `json:"drafts"`
}

type V1DraftSummary struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

type V1GoalsResponse struct {
	quizapi.GoalsResult
}

type V1ChatCreateResponse struct {
	ConversationID string `json:"conversation_id"`
}

type V1ChatListResponse struct {
	Conversations []string `json:"conversations"`
}

type V1ChatSendRequest struct {
	Text string `json:"text"`
}

type V1ChatSendResponse struct {
	Message models.ChatMessage `json:"message"`
}

type V1ChatHistoryResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

type V1ChatResetResponse struct {
	Deleted int `json:"deleted"`
}
