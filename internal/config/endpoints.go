package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Endpoints resolves logical operation names to the URLs of the deployed
// serverless functions. The table is built once at startup from the
// generated func2url.json file the function deployer emits, plus the two
// hand-maintained overrides (migrate and setup-ssl) from the YAML config.
//
// Optional endpoints that have not been deployed yet resolve to the empty
// string; callers must treat an empty URL as "feature not deployed" and
// return a guiding message instead of issuing a request. There is no
// runtime re-resolution: redeploying functions requires a daemon restart.
type Endpoints struct {
	MetrikaGoals    string
	QuizAPI         string
	Migrate         string
	SetupSSL        string
	DeployFunctions string
	SyncVMs         string
	Deploy          string
	DeployLong      string
	DeployConfig    string
	VMSetup         string
	VMList          string
	VMSSHKey        string
	SetupDatabase   string
}

// required endpoints without which the daemon cannot operate at all.
// Everything else degrades to a guiding error at the call site.
var requiredEndpoints = []string{"vm-list", "deploy-config"}

// LoadEndpoints reads the generated name→URL table and applies the config
// overrides. Missing optional entries resolve to "".
func LoadEndpoints(cfg Config) (Endpoints, error) {
	data, err := os.ReadFile(cfg.EndpointsPath)
	if err != nil {
		return Endpoints{}, fmt.Errorf("read endpoints %s: %w", cfg.EndpointsPath, err)
	}
	var table map[string]string
	if err := json.Unmarshal(data, &table); err != nil {
		return Endpoints{}, fmt.Errorf("parse endpoints %s: %w", cfg.EndpointsPath, err)
	}
	var missing []string
	for _, name := range requiredEndpoints {
		if strings.TrimSpace(table[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Endpoints{}, fmt.Errorf("endpoints %s: missing required functions: %s",
			cfg.EndpointsPath, strings.Join(missing, ", "))
	}
	eps := Endpoints{
		MetrikaGoals:    table["metrika-goals"],
		QuizAPI:         table["quiz-api"],
		Migrate:         cfg.MigrateURL,
		SetupSSL:        cfg.SetupSSLURL,
		DeployFunctions: table["deploy-functions"],
		SyncVMs:         table["yc-sync"],
		Deploy:          table["deploy"],
		DeployLong:      table["deploy-long"],
		DeployConfig:    table["deploy-config"],
		VMSetup:         table["vm-setup"],
		VMList:          table["vm-list"],
		VMSSHKey:        table["vm-ssh-key"],
		SetupDatabase:   table["setup-database"],
	}
	if eps.Migrate == "" {
		eps.Migrate = table["migrate"]
	}
	if eps.SetupSSL == "" {
		eps.SetupSSL = table["setup-ssl"]
	}
	return eps, nil
}
