package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/opsdeck/opsdeck/internal/cloud"
	"github.com/opsdeck/opsdeck/internal/models"
)

// Database provisioning always uses the fixed application name and role;
// the endpoint generates the password.
const (
	setupDBName = "deployer"
	setupDBUser = "deployer_user"
)

// ErrConfigExists is returned when a create names an already-known config.
var ErrConfigExists = errors.New("deploy config already exists")

// Service owns every deploy-dashboard operation. It renders the cloud
// backend's collections, guards client-side invariants (visible-VM filter,
// unique config names, linked-config warnings), and sequences the
// multi-step operations.
type Service struct {
	backend cloud.Backend
	batcher *BatchDeployer
	secrets []string
	logger  *log.Logger
}

// NewService wires a deploy service. secrets are forwarded verbatim to the
// function deployer with every batch request.
func NewService(backend cloud.Backend, policy Policy, secrets []string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		backend: backend,
		batcher: NewBatchDeployer(backend, policy),
		secrets: secrets,
		logger:  logger,
	}
}

// ListVMs returns the instances worth showing: cloud-known and not in a
// terminal failure state, sorted by id.
func (s *Service) ListVMs(ctx context.Context) ([]models.VMInstance, error) {
	vms, err := s.backend.ListVMs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.VMInstance, 0, len(vms))
	for _, vm := range vms {
		if vm.Visible() {
			out = append(out, vm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateVM provisions a new instance; name may be empty.
func (s *Service) CreateVM(ctx context.Context, name string) (cloud.VMCreateResult, error) {
	res, err := s.backend.CreateVM(ctx, strings.TrimSpace(name))
	if err != nil {
		return res, err
	}
	s.logger.Printf("opsdeck: created vm %q at %s", name, res.IPAddress)
	return res, nil
}

// DeleteVM removes an instance. Before sending, it computes the names of
// deploy configs still referencing the VM; those are returned as a warning
// alongside the result. The warning never blocks deletion, and the configs
// are left untouched.
func (s *Service) DeleteVM(ctx context.Context, id int) (cloud.OpResult, []string, error) {
	linked := s.linkedConfigNames(ctx, id)
	res, err := s.backend.DeleteVM(ctx, id)
	if err != nil {
		return res, linked, err
	}
	if len(linked) > 0 {
		s.logger.Printf("opsdeck: vm %d deleted with %d configs still referencing it: %s",
			id, len(linked), strings.Join(linked, ", "))
	}
	return res, linked, nil
}

// linkedConfigNames enumerates configs whose vm_instance_id equals id.
// A failed listing degrades to no warning rather than blocking the delete.
func (s *Service) linkedConfigNames(ctx context.Context, id int) []string {
	configs, err := s.backend.ListConfigs(ctx)
	if err != nil {
		s.logger.Printf("opsdeck: could not enumerate configs for vm %d delete warning: %v", id, err)
		return nil
	}
	var linked []string
	for _, cfg := range configs {
		if cfg.VMInstanceID == id {
			linked = append(linked, cfg.Name)
		}
	}
	sort.Strings(linked)
	return linked
}

// FetchSSHKey returns the private key for an instance.
func (s *Service) FetchSSHKey(ctx context.Context, id int) (string, error) {
	return s.backend.FetchSSHKey(ctx, id)
}

// ListConfigs returns all deploy configs sorted by name.
func (s *Service) ListConfigs(ctx context.Context) ([]models.DeployConfig, error) {
	configs, err := s.backend.ListConfigs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}

// CreateConfig validates and registers a new config. Name, domain, and
// repository are required, and the name must not collide with an existing
// config: the external API routes updates and deletes by name, so a
// duplicate would make one of the two unreachable.
func (s *Service) CreateConfig(ctx context.Context, cfg models.DeployConfig) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Domain = strings.TrimSpace(cfg.Domain)
	cfg.GithubRepo = strings.TrimSpace(cfg.GithubRepo)
	if cfg.Name == "" || cfg.Domain == "" || cfg.GithubRepo == "" {
		return errors.New("name, domain, and github_repo are required")
	}
	if cfg.VMInstanceID == 0 {
		vms, err := s.ListVMs(ctx)
		if err != nil {
			return err
		}
		if len(vms) == 0 {
			return errors.New("no available vms: create a vm first")
		}
		cfg.VMInstanceID = vms[0].ID
	}
	existing, err := s.backend.ListConfigs(ctx)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.Name == cfg.Name {
			return fmt.Errorf("%w: %s", ErrConfigExists, cfg.Name)
		}
	}
	return s.backend.CreateConfig(ctx, cfg)
}

// UpdateConfig updates the config currently known as oldName.
func (s *Service) UpdateConfig(ctx context.Context, oldName string, cfg models.DeployConfig) error {
	oldName = strings.TrimSpace(oldName)
	if oldName == "" {
		return errors.New("old config name is required")
	}
	return s.backend.UpdateConfig(ctx, oldName, cfg)
}

// DeleteConfig removes a config by name.
func (s *Service) DeleteConfig(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("config name is required")
	}
	return s.backend.DeleteConfig(ctx, name)
}

// DeployFrontend starts a frontend build for the named config.
func (s *Service) DeployFrontend(ctx context.Context, configName string) (cloud.DeployResult, error) {
	return s.backend.DeployFrontend(ctx, configName)
}

// DeployFunctions runs the full batch-deploy protocol for a config's
// repository, forwarding the configured deploy secrets.
func (s *Service) DeployFunctions(ctx context.Context, githubRepo string) (BatchResult, error) {
	githubRepo = strings.TrimSpace(githubRepo)
	if githubRepo == "" {
		return BatchResult{}, errors.New("github_repo is required")
	}
	result, err := s.batcher.Run(ctx, githubRepo, s.secrets)
	if err != nil {
		return result, err
	}
	if result.TotalFunctions != nil {
		s.logger.Printf("opsdeck: deployed %d of %d functions from %s in %d batches",
			result.TotalDeployed, *result.TotalFunctions, githubRepo, result.Batches)
	} else {
		s.logger.Printf("opsdeck: deployed %d functions from %s in %d batches",
			result.TotalDeployed, githubRepo, result.Batches)
	}
	return result, nil
}

// SetupSSL provisions a certificate for the named config.
func (s *Service) SetupSSL(ctx context.Context, configName string) (cloud.DeployResult, error) {
	return s.backend.SetupSSL(ctx, configName)
}

// SetupDatabase provisions the PostgreSQL VM with the fixed db name and
// role.
func (s *Service) SetupDatabase(ctx context.Context) (cloud.DatabaseResult, error) {
	return s.backend.SetupDatabase(ctx, setupDBName, setupDBUser)
}

// Sync reconciles the VM list against the cloud provider.
func (s *Service) Sync(ctx context.Context) (cloud.SyncResult, error) {
	return s.backend.SyncVMs(ctx)
}

// ApplyMigrations runs pending schema migrations from the repository.
func (s *Service) ApplyMigrations(ctx context.Context, req cloud.MigrationRequest) (cloud.MigrationResult, error) {
	req.GithubRepo = strings.TrimSpace(req.GithubRepo)
	if req.GithubRepo == "" {
		return cloud.MigrationResult{}, errors.New("github_repo is required")
	}
	return s.backend.ApplyMigrations(ctx, req)
}
