// Package cloud talks to the external serverless endpoints that own all
// deploy-dashboard state: VM provisioning, deploy configs, frontend and
// backend-function deployment, SSL setup, database provisioning, cloud
// sync, and schema migrations.
//
// The package only issues requests and decodes responses; nothing here is
// authoritative. Backend is the seam the daemon and tests program against,
// APIBackend is the HTTP implementation, and FakeBackend is the scripted
// test double.
package cloud

import (
	"context"

	"github.com/opsdeck/opsdeck/internal/models"
)

// Backend abstracts the deploy-dashboard serverless endpoints.
type Backend interface {
	// ListVMs returns every instance the vm-list endpoint reports,
	// unfiltered. Callers apply models.VMInstance.Visible.
	ListVMs(ctx context.Context) ([]models.VMInstance, error)
	// CreateVM provisions a new VM; name may be empty for a generated one.
	CreateVM(ctx context.Context, name string) (VMCreateResult, error)
	// DeleteVM deletes a VM by id. Configs referencing the VM are not
	// cascade-deleted by the backend.
	DeleteVM(ctx context.Context, id int) (OpResult, error)
	// FetchSSHKey returns the private SSH key for a VM.
	FetchSSHKey(ctx context.Context, id int) (string, error)

	ListConfigs(ctx context.Context) ([]models.DeployConfig, error)
	CreateConfig(ctx context.Context, cfg models.DeployConfig) error
	// UpdateConfig renames/updates the config identified by oldName. The
	// endpoint keys off name, not id.
	UpdateConfig(ctx context.Context, oldName string, cfg models.DeployConfig) error
	DeleteConfig(ctx context.Context, name string) error

	// DeployFrontend triggers a long-running frontend build for the named
	// config. The call is awaited synchronously.
	DeployFrontend(ctx context.Context, configName string) (DeployResult, error)
	// DeployFunctionsBatch deploys one slice of backend functions. On a
	// non-2xx response the returned BatchResponse still carries whatever
	// logs and function URLs the error body included, alongside the error.
	DeployFunctionsBatch(ctx context.Context, req BatchRequest) (BatchResponse, error)
	SetupSSL(ctx context.Context, configName string) (DeployResult, error)
	SetupDatabase(ctx context.Context, dbName, dbUser string) (DatabaseResult, error)
	// SyncVMs reconciles the VM list against the cloud provider's view.
	SyncVMs(ctx context.Context) (SyncResult, error)
	ApplyMigrations(ctx context.Context, req MigrationRequest) (MigrationResult, error)
}

// VMCreateResult is the vm-setup endpoint's success payload.
type VMCreateResult struct {
	IPAddress string   `json:"ip_address"`
	Logs      []string `json:"logs,omitempty"`
}

// OpResult is the generic message+logs payload several endpoints return.
type OpResult struct {
	Message string   `json:"message,omitempty"`
	Logs    []string `json:"logs,omitempty"`
}

// DeployResult is returned by the frontend-deploy and SSL endpoints.
type DeployResult struct {
	URL  string   `json:"url,omitempty"`
	Logs []string `json:"logs,omitempty"`
}

// DatabaseResult is the setup-database endpoint's payload.
type DatabaseResult struct {
	DatabaseURL string   `json:"database_url,omitempty"`
	DBPassword  string   `json:"db_password,omitempty"`
	Logs        []string `json:"logs,omitempty"`
}

// SyncResult is the yc-sync endpoint's payload.
type SyncResult struct {
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted,omitempty"`
	Logs    []string `json:"logs,omitempty"`
}

// BatchRequest is one slice request of the function-deployment loop.
type BatchRequest struct {
	GithubRepo string   `json:"github_repo"`
	Secrets    []string `json:"secrets"`
	Offset     int      `json:"offset"`
	BatchSize  int      `json:"batch_size"`
}

// BatchResponse is the deploy-functions endpoint's per-slice payload.
//
// FunctionURLs is decoded loosely: the server has been observed to mix
// non-string values into the map, and only string URLs are usable.
type BatchResponse struct {
	Logs           []string       `json:"logs,omitempty"`
	FunctionURLs   map[string]any `json:"function_urls,omitempty"`
	Deployed       []string       `json:"deployed,omitempty"`
	TotalFunctions *int           `json:"total_functions,omitempty"`
	HasMore        bool           `json:"has_more"`
	NextOffset     *int           `json:"next_offset,omitempty"`
}

// MigrationRequest targets a repository's db/migrations directory,
// optionally remapping schemas and table names on the fly.
type MigrationRequest struct {
	GithubRepo    string            `json:"github_repo"`
	SchemaFrom    string            `json:"schema_from,omitempty"`
	SchemaTo      string            `json:"schema_to,omitempty"`
	TableReplaces map[string]string `json:"table_replaces,omitempty"`
}

// MigrationResult is the migrate endpoint's payload.
type MigrationResult struct {
	Success           bool     `json:"success"`
	Logs              []string `json:"logs,omitempty"`
	AppliedCount      int      `json:"applied_count,omitempty"`
	SkippedCount      int      `json:"skipped_count,omitempty"`
	MigrationsApplied []string `json:"migrations_applied,omitempty"`
}
