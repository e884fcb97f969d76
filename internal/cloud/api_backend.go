package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/models"
)

const contentTypeJSON = "application/json"

// APIBackend implements Backend against the deployed serverless functions.
//
// Idempotent GET lookups go through a retrying client; every mutating call
// and the batch-deploy protocol use a plain client, because the loop's
// failure contract is "any batch failure aborts, no retry" and the mutating
// endpoints are not safe to replay.
type APIBackend struct {
	endpoints config.Endpoints
	get       *retryablehttp.Client
	post      *http.Client
}

var _ Backend = (*APIBackend)(nil)

// NewAPIBackend builds a backend bound to the resolved endpoint table.
func NewAPIBackend(endpoints config.Endpoints) *APIBackend {
	get := retryablehttp.NewClient()
	get.RetryMax = 2
	get.Logger = nil
	return &APIBackend{
		endpoints: endpoints,
		get:       get,
		post:      &http.Client{},
	}
}

// ListVMs fetches all instances from the vm-list endpoint.
func (b *APIBackend) ListVMs(ctx context.Context) ([]models.VMInstance, error) {
	var vms []models.VMInstance
	if err := b.getJSON(ctx, b.endpoints.VMList, &vms); err != nil {
		return nil, fmt.Errorf("list vms: %w", err)
	}
	return vms, nil
}

// CreateVM asks the vm-setup endpoint to provision a new instance.
func (b *APIBackend) CreateVM(ctx context.Context, name string) (VMCreateResult, error) {
	body := map[string]string{}
	if name != "" {
		body["name"] = name
	}
	var res VMCreateResult
	if err := b.doJSON(ctx, http.MethodPost, b.endpoints.VMSetup, body, &res); err != nil {
		return VMCreateResult{}, fmt.Errorf("create vm: %w", err)
	}
	return res, nil
}

// DeleteVM removes an instance by id via the vm-list endpoint.
func (b *APIBackend) DeleteVM(ctx context.Context, id int) (OpResult, error) {
	target := b.endpoints.VMList + "?id=" + strconv.Itoa(id)
	var res OpResult
	if err := b.doJSON(ctx, http.MethodDelete, target, nil, &res); err != nil {
		return res, fmt.Errorf("delete vm %d: %w", id, err)
	}
	return res, nil
}

// FetchSSHKey retrieves the private SSH key for a VM. It prefers the
// dedicated vm-ssh-key function and falls back to vm-list?id= when that
// function has not been deployed yet.
func (b *APIBackend) FetchSSHKey(ctx context.Context, id int) (string, error) {
	target := b.endpoints.VMSSHKey
	if target == "" {
		target = b.endpoints.VMList
	}
	target += "?id=" + strconv.Itoa(id)
	var res struct {
		SSHPrivateKey string `json:"ssh_private_key"`
	}
	if err := b.getJSON(ctx, target, &res); err != nil {
		return "", fmt.Errorf("fetch ssh key for vm %d: %w", id, err)
	}
	if res.SSHPrivateKey == "" {
		return "", fmt.Errorf("ssh key for vm %d not found: deploy the vm-ssh-key function", id)
	}
	return res.SSHPrivateKey, nil
}

// ListConfigs fetches all deploy configs.
func (b *APIBackend) ListConfigs(ctx context.Context) ([]models.DeployConfig, error) {
	var configs []models.DeployConfig
	if err := b.getJSON(ctx, b.endpoints.DeployConfig, &configs); err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	return configs, nil
}

// CreateConfig registers a new deploy config.
func (b *APIBackend) CreateConfig(ctx context.Context, cfg models.DeployConfig) error {
	body := map[string]any{
		"name":           cfg.Name,
		"domain":         cfg.Domain,
		"github_repo":    cfg.GithubRepo,
		"vm_instance_id": cfg.VMInstanceID,
	}
	if err := b.doJSON(ctx, http.MethodPost, b.endpoints.DeployConfig, body, nil); err != nil {
		return fmt.Errorf("create config %s: %w", cfg.Name, err)
	}
	return nil
}

// UpdateConfig updates the config identified by oldName.
func (b *APIBackend) UpdateConfig(ctx context.Context, oldName string, cfg models.DeployConfig) error {
	body := map[string]any{
		"old_name":       oldName,
		"name":           cfg.Name,
		"domain":         cfg.Domain,
		"github_repo":    cfg.GithubRepo,
		"vm_instance_id": cfg.VMInstanceID,
	}
	if err := b.doJSON(ctx, http.MethodPut, b.endpoints.DeployConfig, body, nil); err != nil {
		return fmt.Errorf("update config %s: %w", oldName, err)
	}
	return nil
}

// DeleteConfig removes a config by name.
func (b *APIBackend) DeleteConfig(ctx context.Context, name string) error {
	target := b.endpoints.DeployConfig + "?name=" + url.QueryEscape(name)
	if err := b.doJSON(ctx, http.MethodDelete, target, nil, nil); err != nil {
		return fmt.Errorf("delete config %s: %w", name, err)
	}
	return nil
}

// DeployFrontend triggers a frontend build for the named config. The build
// continues in the background on the server; the response only acknowledges
// the start and reports the site URL when known.
func (b *APIBackend) DeployFrontend(ctx context.Context, configName string) (DeployResult, error) {
	body := map[string]string{"config_name": configName}
	var res DeployResult
	if err := b.doJSON(ctx, http.MethodPost, b.endpoints.DeployLong, body, &res); err != nil {
		return res, fmt.Errorf("deploy frontend %s: %w", configName, err)
	}
	return res, nil
}

// DeployFunctionsBatch posts one slice request to the deploy-functions
// endpoint. Unlike the other calls, the response body is decoded even on a
// non-2xx status: the error body carries partial logs and function URLs the
// batch loop must keep.
func (b *APIBackend) DeployFunctionsBatch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	if b.endpoints.DeployFunctions == "" {
		return BatchResponse{}, notDeployedErr("deploy-functions", "deploy the function deployer first")
	}
	if req.Secrets == nil {
		req.Secrets = []string{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return BatchResponse{}, fmt.Errorf("marshal batch request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoints.DeployFunctions, bytes.NewReader(payload))
	if err != nil {
		return BatchResponse{}, fmt.Errorf("build batch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	resp, err := b.post.Do(httpReq)
	if err != nil {
		return BatchResponse{}, fmt.Errorf("deploy functions batch at offset %d: %w", req.Offset, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return BatchResponse{}, fmt.Errorf("read batch response: %w", err)
	}
	var out BatchResponse
	// Best effort even for error bodies; a decode failure on a non-2xx
	// status is reported as the status error, not the decode error.
	decodeErr := json.Unmarshal(data, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, NewAPIError(resp.StatusCode, data)
	}
	if decodeErr != nil {
		return BatchResponse{}, fmt.Errorf("decode batch response: %w", decodeErr)
	}
	return out, nil
}

// SetupSSL provisions a certificate for the named config's domain.
func (b *APIBackend) SetupSSL(ctx context.Context, configName string) (DeployResult, error) {
	if b.endpoints.SetupSSL == "" {
		return DeployResult{}, notDeployedErr("setup-ssl",
			"deploy backend/setup-ssl and set setup_ssl_url in the daemon config")
	}
	body := map[string]string{"config_name": configName}
	var res DeployResult
	if err := b.doJSON(ctx, http.MethodPost, b.endpoints.SetupSSL, body, &res); err != nil {
		return res, fmt.Errorf("setup ssl %s: %w", configName, err)
	}
	return res, nil
}

// SetupDatabase provisions a PostgreSQL VM.
func (b *APIBackend) SetupDatabase(ctx context.Context, dbName, dbUser string) (DatabaseResult, error) {
	if b.endpoints.SetupDatabase == "" {
		return DatabaseResult{}, notDeployedErr("setup-database",
			"deploy the setup-database function via the backend-function deploy first")
	}
	body := map[string]string{"db_name": dbName, "db_user": dbUser}
	var res DatabaseResult
	if err := b.doJSON(ctx, http.MethodPost, b.endpoints.SetupDatabase, body, &res); err != nil {
		return res, fmt.Errorf("setup database: %w", err)
	}
	return res, nil
}

// SyncVMs reconciles against the cloud provider's instance list.
func (b *APIBackend) SyncVMs(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if err := b.doJSON(ctx, http.MethodPost, b.endpoints.SyncVMs, map[string]any{}, &res); err != nil {
		return res, fmt.Errorf("sync vms: %w", err)
	}
	return res, nil
}

// ApplyMigrations runs pending schema migrations from the target repo.
func (b *APIBackend) ApplyMigrations(ctx context.Context, req MigrationRequest) (MigrationResult, error) {
	if b.endpoints.Migrate == "" {
		return MigrationResult{}, notDeployedErr("migrate",
			"deploy backend/migrate and set migrate_url in the daemon config")
	}
	var res MigrationResult
	if err := b.doJSON(ctx, http.MethodPost, b.endpoints.Migrate, req, &res); err != nil {
		return res, fmt.Errorf("apply migrations %s: %w", req.GithubRepo, err)
	}
	return res, nil
}

// getJSON performs an idempotent GET with retries and decodes the response.
func (b *APIBackend) getJSON(ctx context.Context, target string, dest any) error {
	if target == "" {
		return notDeployedErr("endpoint", "function URL is not configured")
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := b.get.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewAPIError(resp.StatusCode, data)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doJSON performs a mutating request without retries. A nil dest discards
// the success body.
func (b *APIBackend) doJSON(ctx context.Context, method, target string, body, dest any) error {
	if target == "" {
		return notDeployedErr("endpoint", "function URL is not configured")
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	resp, err := b.post.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewAPIError(resp.StatusCode, data)
	}
	if dest == nil {
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
