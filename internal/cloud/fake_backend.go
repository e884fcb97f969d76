// This file provides a deterministic in-memory cloud backend for tests.
// It implements the Backend interface and simulates the serverless
// endpoints' VM/config lifecycle plus scripted batch-deploy responses.
package cloud

import (
	"context"
	"fmt"
	"sync"

	"github.com/opsdeck/opsdeck/internal/models"
)

// FakeBackend implements Backend with in-memory state for tests.
// It is deterministic and safe for concurrent use.
//
// The function-deploy protocol is scripted: each call to
// DeployFunctionsBatch consumes the next entry of BatchScript (repeating
// the last entry once the script is exhausted, which lets tests simulate a
// server that paginates forever).
type FakeBackend struct {
	mu         sync.Mutex
	vms        map[int]models.VMInstance
	configs    map[string]models.DeployConfig
	nextVMID   int
	nextCfgID  int
	sshKeys    map[int]string
	syncResult SyncResult

	BatchScript []ScriptedBatch
	batchIndex  int
	BatchCalls  []BatchRequest

	MigrateResult MigrationResult
	MigrateErr    error
	DeployErr     error
	SSLResult     DeployResult
	SSLErr        error
	DBResult      DatabaseResult
}

// ScriptedBatch pairs one batch response with an optional error, mirroring
// the real backend's "body plus status error" contract.
type ScriptedBatch struct {
	Response BatchResponse
	Err      error
}

var _ Backend = (*FakeBackend)(nil)

// NewFakeBackend returns a FakeBackend with empty state.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		vms:       make(map[int]models.VMInstance),
		configs:   make(map[string]models.DeployConfig),
		sshKeys:   make(map[int]string),
		nextVMID:  1,
		nextCfgID: 1,
	}
}

// AddVM seeds an instance into the fake backend and returns its id.
func (b *FakeBackend) AddVM(vm models.VMInstance) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if vm.ID == 0 {
		vm.ID = b.nextVMID
	}
	if vm.ID >= b.nextVMID {
		b.nextVMID = vm.ID + 1
	}
	b.vms[vm.ID] = vm
	return vm.ID
}

// AddConfig seeds a deploy config and returns its id.
func (b *FakeBackend) AddConfig(cfg models.DeployConfig) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cfg.ID == 0 {
		cfg.ID = b.nextCfgID
	}
	if cfg.ID >= b.nextCfgID {
		b.nextCfgID = cfg.ID + 1
	}
	b.configs[cfg.Name] = cfg
	return cfg.ID
}

// SetSSHKey seeds a private key for a VM id.
func (b *FakeBackend) SetSSHKey(id int, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sshKeys[id] = key
}

// SetSyncResult scripts the next SyncVMs payload.
func (b *FakeBackend) SetSyncResult(res SyncResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncResult = res
}

func (b *FakeBackend) ListVMs(_ context.Context) ([]models.VMInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.VMInstance, 0, len(b.vms))
	for _, vm := range b.vms {
		out = append(out, vm)
	}
	return out, nil
}

func (b *FakeBackend) CreateVM(_ context.Context, name string) (VMCreateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextVMID
	b.nextVMID++
	if name == "" {
		name = fmt.Sprintf("vm-%d", id)
	}
	ip := fmt.Sprintf("10.128.0.%d", id)
	b.vms[id] = models.VMInstance{
		ID:        id,
		Name:      name,
		IPAddress: ip,
		SSHUser:   "ubuntu",
		Status:    models.StatusReady,
		CloudID:   fmt.Sprintf("fhm%08d", id),
	}
	return VMCreateResult{IPAddress: ip}, nil
}

func (b *FakeBackend) DeleteVM(_ context.Context, id int) (OpResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vm, ok := b.vms[id]
	if !ok {
		return OpResult{}, &APIError{StatusCode: 404, Message: fmt.Sprintf("vm %d not found", id)}
	}
	delete(b.vms, id)
	return OpResult{
		Message: fmt.Sprintf("VM %s deleted", vm.Name),
		Logs:    []string{fmt.Sprintf("deleted instance %s", vm.CloudID)},
	}, nil
}

func (b *FakeBackend) FetchSSHKey(_ context.Context, id int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key, ok := b.sshKeys[id]
	if !ok {
		return "", fmt.Errorf("ssh key for vm %d not found", id)
	}
	return key, nil
}

func (b *FakeBackend) ListConfigs(_ context.Context) ([]models.DeployConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.DeployConfig, 0, len(b.configs))
	for _, cfg := range b.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (b *FakeBackend) CreateConfig(_ context.Context, cfg models.DeployConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.configs[cfg.Name]; ok {
		return &APIError{StatusCode: 409, Message: fmt.Sprintf("config %s already exists", cfg.Name)}
	}
	cfg.ID = b.nextCfgID
	b.nextCfgID++
	b.configs[cfg.Name] = cfg
	return nil
}

func (b *FakeBackend) UpdateConfig(_ context.Context, oldName string, cfg models.DeployConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.configs[oldName]
	if !ok {
		return &APIError{StatusCode: 404, Message: fmt.Sprintf("config %s not found", oldName)}
	}
	cfg.ID = existing.ID
	delete(b.configs, oldName)
	b.configs[cfg.Name] = cfg
	return nil
}

func (b *FakeBackend) DeleteConfig(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.configs[name]; !ok {
		return &APIError{StatusCode: 404, Message: fmt.Sprintf("config %s not found", name)}
	}
	delete(b.configs, name)
	return nil
}

func (b *FakeBackend) DeployFrontend(_ context.Context, configName string) (DeployResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DeployErr != nil {
		return DeployResult{}, b.DeployErr
	}
	cfg, ok := b.configs[configName]
	if !ok {
		return DeployResult{}, &APIError{StatusCode: 404, Message: fmt.Sprintf("config %s not found", configName)}
	}
	return DeployResult{URL: "https://" + cfg.Domain}, nil
}

func (b *FakeBackend) DeployFunctionsBatch(_ context.Context, req BatchRequest) (BatchResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.BatchCalls = append(b.BatchCalls, req)
	if len(b.BatchScript) == 0 {
		return BatchResponse{HasMore: false}, nil
	}
	idx := b.batchIndex
	if idx >= len(b.BatchScript) {
		idx = len(b.BatchScript) - 1
	}
	b.batchIndex++
	entry := b.BatchScript[idx]
	return entry.Response, entry.Err
}

func (b *FakeBackend) SetupSSL(_ context.Context, configName string) (DeployResult, error) {
	if b.SSLErr != nil {
		return b.SSLResult, b.SSLErr
	}
	return b.SSLResult, nil
}

func (b *FakeBackend) SetupDatabase(_ context.Context, dbName, dbUser string) (DatabaseResult, error) {
	if b.DBResult.DatabaseURL == "" {
		return DatabaseResult{
			DatabaseURL: fmt.Sprintf("postgresql://%s@10.128.0.99:5432/%s", dbUser, dbName),
			DBPassword:  "generated",
		}, nil
	}
	return b.DBResult, nil
}

func (b *FakeBackend) SyncVMs(_ context.Context) (SyncResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncResult, nil
}

func (b *FakeBackend) ApplyMigrations(_ context.Context, req MigrationRequest) (MigrationResult, error) {
	if b.MigrateErr != nil {
		return b.MigrateResult, b.MigrateErr
	}
	return b.MigrateResult, nil
}
