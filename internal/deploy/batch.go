// Package deploy drives the external deployment operations: the paginated
// backend-function deploy protocol, frontend deploys, SSL and database
// setup, cloud sync, and schema migrations. All state lives behind the
// cloud endpoints; this package only sequences calls and accumulates their
// output.
package deploy

import (
	"context"
	"fmt"
	"sort"

	"github.com/opsdeck/opsdeck/internal/cloud"
)

// Policy parameterizes the batch-deploy loop so tests can drive both the
// convergence and the circuit-breaker paths deterministically.
type Policy struct {
	// BatchSize is the slice size requested from the server.
	BatchSize int
	// MaxBatches is the client-side circuit breaker: after this many
	// slices the loop gives up without retry or backoff.
	MaxBatches int
}

// DefaultPolicy matches the production defaults of the function deployer.
func DefaultPolicy() Policy {
	return Policy{BatchSize: 5, MaxBatches: 20}
}

// FunctionURL is one deployed function with its public URL.
type FunctionURL struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BatchResult is the accumulated outcome of a full batch-deploy run.
//
// Functions is the union of every slice's function_urls, sorted by name;
// it is populated even when the run failed partway, because the server has
// already persisted those deployments. TotalDeployed is the sum of every
// slice's deployed count.
type BatchResult struct {
	Logs           []string      `json:"logs"`
	Functions      []FunctionURL `json:"functions"`
	TotalDeployed  int           `json:"total_deployed"`
	TotalFunctions *int          `json:"total_functions,omitempty"`
	Batches        int           `json:"batches"`
	CapReached     bool          `json:"cap_reached"`
}

// BatchDeployer runs the client-driven pagination protocol against the
// deploy-functions endpoint. The loop is strictly serial: each slice is
// awaited before the next is requested.
type BatchDeployer struct {
	backend cloud.Backend
	policy  Policy
}

// NewBatchDeployer wires a deployer to a backend with the given policy.
// Zero policy fields fall back to the defaults.
func NewBatchDeployer(backend cloud.Backend, policy Policy) *BatchDeployer {
	def := DefaultPolicy()
	if policy.BatchSize <= 0 {
		policy.BatchSize = def.BatchSize
	}
	if policy.MaxBatches <= 0 {
		policy.MaxBatches = def.MaxBatches
	}
	return &BatchDeployer{backend: backend, policy: policy}
}

// Run deploys the repository's backend functions slice by slice until the
// server reports no more work, a slice fails, or the batch cap trips.
//
// Failure semantics: any single slice failure aborts the whole run and is
// returned as the error; the BatchResult still carries everything
// accumulated up to and including the failing slice's partial output.
// There is no retry and no resumption; a re-run starts again at offset 0.
func (d *BatchDeployer) Run(ctx context.Context, githubRepo string, secrets []string) (BatchResult, error) {
	var result BatchResult
	urls := make(map[string]string)
	offset := 0

	for batch := 1; ; batch++ {
		resp, err := d.backend.DeployFunctionsBatch(ctx, cloud.BatchRequest{
			GithubRepo: githubRepo,
			Secrets:    secrets,
			Offset:     offset,
			BatchSize:  d.policy.BatchSize,
		})
		result.Batches = batch

		if len(resp.Logs) > 0 {
			result.Logs = append(result.Logs, fmt.Sprintf("=== batch %d (offset %d) ===", batch, offset))
			result.Logs = append(result.Logs, resp.Logs...)
		}
		for name, value := range resp.FunctionURLs {
			if url, ok := value.(string); ok {
				urls[name] = url
			}
		}

		if err != nil {
			result.Functions = sortedFunctions(urls)
			return result, fmt.Errorf("batch %d (offset %d): %w", batch, offset, err)
		}

		result.TotalDeployed += len(resp.Deployed)
		if resp.TotalFunctions != nil {
			total := *resp.TotalFunctions
			result.TotalFunctions = &total
		}

		if !resp.HasMore {
			break
		}
		if batch >= d.policy.MaxBatches {
			result.CapReached = true
			result.Logs = append(result.Logs,
				fmt.Sprintf("warning: stopped client-side after %d batches; the server kept reporting more work", batch))
			break
		}
		if resp.NextOffset != nil {
			offset = *resp.NextOffset
		} else {
			offset += d.policy.BatchSize
		}
	}

	result.Functions = sortedFunctions(urls)
	return result, nil
}

func sortedFunctions(urls map[string]string) []FunctionURL {
	out := make([]FunctionURL, 0, len(urls))
	for name, url := range urls {
		out = append(out, FunctionURL{Name: name, URL: url})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
