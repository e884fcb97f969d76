package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds daemon configuration paths and listener settings.
type Config struct {
	ConfigPath       string
	DataDir          string
	DBPath           string
	Listen           string
	MetricsListen    string
	EndpointsPath    string
	MigrateURL       string
	SetupSSLURL      string
	SecretsDir       string
	SecretsBundle    string
	SecretsAgeKey    string
	GeminiModel      string
	DeployBatchSize  int
	DeployMaxBatches int
}

// FileConfig represents supported YAML config overrides.
type FileConfig struct {
	DataDir          string `yaml:"data_dir"`
	DBPath           string `yaml:"db_path"`
	Listen           string `yaml:"listen"`
	MetricsListen    string `yaml:"metrics_listen"`
	EndpointsPath    string `yaml:"endpoints_path"`
	MigrateURL       string `yaml:"migrate_url"`
	SetupSSLURL      string `yaml:"setup_ssl_url"`
	SecretsDir       string `yaml:"secrets_dir"`
	SecretsBundle    string `yaml:"secrets_bundle"`
	SecretsAgeKey    string `yaml:"secrets_age_key_path"`
	GeminiModel      string `yaml:"gemini_model"`
	DeployBatchSize  int    `yaml:"deploy_batch_size"`
	DeployMaxBatches int    `yaml:"deploy_max_batches"`
}

func DefaultConfig() Config {
	dataDir := "/var/lib/opsdeck"
	return Config{
		ConfigPath:       "/etc/opsdeck/config.yaml",
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "opsdeck.db"),
		Listen:           "127.0.0.1:8960",
		MetricsListen:    "",
		EndpointsPath:    "/etc/opsdeck/func2url.json",
		SecretsDir:       "/etc/opsdeck/secrets",
		SecretsBundle:    "default",
		SecretsAgeKey:    "/etc/opsdeck/keys/age.key",
		GeminiModel:      "gemini-2.5-pro",
		DeployBatchSize:  5,
		DeployMaxBatches: 20,
	}
}

// Load reads the YAML config file and applies overrides to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		cfg.ConfigPath = path
	}
	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", cfg.ConfigPath, err)
	}
	var fileCfg FileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", cfg.ConfigPath, err)
	}
	applyFileConfig(&cfg, fileCfg)
	if fileCfg.DataDir != "" && fileCfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "opsdeck.db")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fileCfg FileConfig) {
	if fileCfg.DataDir != "" {
		cfg.DataDir = fileCfg.DataDir
	}
	if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	}
	if fileCfg.Listen != "" {
		cfg.Listen = fileCfg.Listen
	}
	if fileCfg.MetricsListen != "" {
		cfg.MetricsListen = fileCfg.MetricsListen
	}
	if fileCfg.EndpointsPath != "" {
		cfg.EndpointsPath = fileCfg.EndpointsPath
	}
	if fileCfg.MigrateURL != "" {
		cfg.MigrateURL = fileCfg.MigrateURL
	}
	if fileCfg.SetupSSLURL != "" {
		cfg.SetupSSLURL = fileCfg.SetupSSLURL
	}
	if fileCfg.SecretsDir != "" {
		cfg.SecretsDir = fileCfg.SecretsDir
	}
	if fileCfg.SecretsBundle != "" {
		cfg.SecretsBundle = fileCfg.SecretsBundle
	}
	if fileCfg.SecretsAgeKey != "" {
		cfg.SecretsAgeKey = fileCfg.SecretsAgeKey
	}
	if fileCfg.GeminiModel != "" {
		cfg.GeminiModel = fileCfg.GeminiModel
	}
	if fileCfg.DeployBatchSize > 0 {
		cfg.DeployBatchSize = fileCfg.DeployBatchSize
	}
	if fileCfg.DeployMaxBatches > 0 {
		cfg.DeployMaxBatches = fileCfg.DeployMaxBatches
	}
}

// Validate performs basic validation without exposing secrets.
func (c Config) Validate() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("config_path is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.EndpointsPath == "" {
		return fmt.Errorf("endpoints_path is required")
	}
	if c.DeployBatchSize <= 0 {
		return fmt.Errorf("deploy_batch_size must be positive")
	}
	if c.DeployMaxBatches <= 0 {
		return fmt.Errorf("deploy_max_batches must be positive")
	}
	host, _, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return fmt.Errorf("listen must be host:port: %w", err)
	}
	if !isLoopbackHost(host) {
		return fmt.Errorf("listen must be localhost-only (got %q)", host)
	}
	if strings.TrimSpace(c.MetricsListen) != "" {
		host, _, err := net.SplitHostPort(c.MetricsListen)
		if err != nil {
			return fmt.Errorf("metrics_listen must be host:port: %w", err)
		}
		if !isLoopbackHost(host) {
			return fmt.Errorf("metrics_listen must be localhost-only (got %q)", host)
		}
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
