// Package models provides data structures and constants for opsdeck.
//
// This package contains the core domain models used throughout opsdeck:
//   - VMInstance: a cloud virtual machine tracked by the remote backend
//   - DeployConfig: a named association of domain, repository, and target VM
//   - Quiz / Question / Answer: the lead-generation quiz tree
//   - Lead: a completed quiz submission
//   - ChatMessage: one turn of a Gemini chat conversation
//
// All models are designed for JSON serialization against the external
// serverless endpoints; the daemon never owns the authoritative copy of
// VM or config state.
package models

import "time"

// VMStatus represents the remote backend's view of a VM lifecycle state.
//
// The status vocabulary is owned by the cloud backend; opsdeck only reads
// it. Instances in StatusError or StatusDeleted, or without a cloud id,
// are filtered out of every listing.
type VMStatus string

const (
	// StatusReady means the VM is provisioned and reachable.
	StatusReady VMStatus = "ready"
	// StatusCreating means provisioning is still in progress.
	StatusCreating VMStatus = "creating"
	// StatusStopped means the VM exists but is powered off.
	StatusStopped VMStatus = "stopped"
	// StatusError means provisioning or a later operation failed.
	StatusError VMStatus = "error"
	// StatusDeleted means the VM is gone from the cloud provider.
	StatusDeleted VMStatus = "deleted"
)

// VMInstance is a cloud VM as reported by the vm-list endpoint.
type VMInstance struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	IPAddress string   `json:"ip_address,omitempty"`
	SSHUser   string   `json:"ssh_user"`
	Status    VMStatus `json:"status"`
	CloudID   string   `json:"yandex_vm_id,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// Visible reports whether the instance should be shown at all: it must be
// known to the cloud provider and not in a terminal failure state.
func (vm VMInstance) Visible() bool {
	return vm.CloudID != "" && vm.Status != StatusError && vm.Status != StatusDeleted
}

// DeployConfig binds a domain and a source repository to a target VM.
//
// The external deploy-config endpoint keys update and delete operations off
// Name, not ID. Name is therefore the stable identifier on the wire and must
// be unique; the daemon enforces uniqueness before issuing a create.
type DeployConfig struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	GithubRepo   string `json:"github_repo"`
	VMInstanceID int    `json:"vm_instance_id,omitempty"`
	VMIP         string `json:"vm_ip,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// Answer is one selectable option of a quiz question. AnswerValue feeds both
// the analytics goal name and the lead's segment key.
type Answer struct {
	ID          int    `json:"id"`
	AnswerText  string `json:"answer_text"`
	AnswerValue string `json:"answer_value"`
	AnswerOrder int    `json:"answer_order"`
}

// Question is a single quiz step with its ordered answers.
type Question struct {
	ID                int      `json:"id"`
	QuestionText      string   `json:"question_text"`
	QuestionOrder     int      `json:"question_order"`
	MetrikaGoalPrefix string   `json:"metrika_goal_prefix"`
	Answers           []Answer `json:"answers"`
}

// Quiz is the full question tree for one funnel, keyed by Slug in public
// URLs. MetrikaID is the Yandex Metrika counter; empty disables goal
// reporting for the quiz.
type Quiz struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	MetrikaID   string     `json:"yandex_metrika_id,omitempty"`
	IsActive    bool       `json:"is_active"`
	Questions   []Question `json:"questions,omitempty"`
}

// ContactInfo is the respondent contact block of a lead. Name and Phone are
// required at submission time; Email is optional.
type ContactInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Lead is a completed quiz submission as posted to the quiz-api endpoint.
//
// Answers maps question id to the selected answer id. SegmentKey is the
// "_"-joined concatenation of every selected answer's value in ascending
// question order; it is deterministic for a complete answer set.
type Lead struct {
	QuizID     int         `json:"quiz_id"`
	Answers    map[int]int `json:"answers"`
	Contact    ContactInfo `json:"contactInfo"`
	SegmentKey string      `json:"segment_key"`
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	// RoleUser marks a message typed by the operator.
	RoleUser ChatRole = "user"
	// RoleAssistant marks a model reply.
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a Gemini conversation. Conversations are
// append-only ordered lists of messages.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
