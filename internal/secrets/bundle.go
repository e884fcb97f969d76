// Package secrets manages the daemon's encrypted credential bundle.
//
// The bundle holds everything the daemon presents to outside services on
// the operator's behalf: the Gemini API key, the Metrika OAuth token, and
// the environment secrets forwarded to backend-function deploys. It is an
// age-encrypted YAML file; plaintext is accepted only when explicitly
// allowed, for development. Decryption happens entirely in memory.
package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

// BundleVersion is the current bundle format version.
const BundleVersion = 1

// Bundle is the decrypted credential set.
type Bundle struct {
	Version int               `json:"version" yaml:"version"`
	Gemini  GeminiBundle      `json:"gemini,omitempty" yaml:"gemini,omitempty"`
	Metrika MetrikaBundle     `json:"metrika,omitempty" yaml:"metrika,omitempty"`
	Deploy  DeployBundle      `json:"deploy,omitempty" yaml:"deploy,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// GeminiBundle holds the generative-AI credential. The key never leaves
// the daemon; chat clients talk to the daemon, not to Google.
type GeminiBundle struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// MetrikaBundle holds the analytics API token used by the goal/segment
// provisioning call.
type MetrikaBundle struct {
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// DeployBundle holds environment secrets injected into every
// backend-function deploy.
type DeployBundle struct {
	Secrets map[string]string `json:"secrets,omitempty" yaml:"secrets,omitempty"`
}

// SecretLines renders the deploy secrets as sorted KEY=VALUE lines, the
// shape the deploy-functions endpoint expects.
func (b Bundle) SecretLines() []string {
	if len(b.Deploy.Secrets) == 0 {
		return nil
	}
	keys := make([]string, 0, len(b.Deploy.Secrets))
	for k := range b.Deploy.Secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+b.Deploy.Secrets[k])
	}
	return lines
}

// Store locates and decrypts the bundle.
type Store struct {
	Dir            string
	AgeKeyPath     string
	AllowPlaintext bool
}

// Load resolves name to a bundle file and decrypts it. name may be a bare
// bundle name searched under Dir, or an absolute or relative path. Files
// ending in .age are decrypted with the configured identity; anything else
// is plaintext and requires AllowPlaintext.
func (s Store) Load(name string) (Bundle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Bundle{}, errors.New("bundle name is required")
	}
	path, err := s.resolvePath(name)
	if err != nil {
		return Bundle{}, err
	}
	payload, err := s.decrypt(path)
	if err != nil {
		return Bundle{}, err
	}
	bundle, err := parseBundle(payload)
	if err != nil {
		return Bundle{}, fmt.Errorf("parse bundle %s: %w", path, err)
	}
	return bundle, nil
}

func (s Store) resolvePath(name string) (string, error) {
	candidates := []string{}
	if filepath.IsAbs(name) {
		candidates = append(candidates, name)
	} else {
		if s.Dir != "" {
			candidates = append(candidates, filepath.Join(s.Dir, name))
		}
		candidates = append(candidates, name)
	}
	if filepath.Ext(name) != "" {
		for _, candidate := range candidates {
			if fileExists(candidate) {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("bundle %s not found", name)
	}
	exts := []string{".age"}
	if s.AllowPlaintext {
		exts = append(exts, ".yaml", ".yml", ".json")
	}
	for _, candidate := range candidates {
		for _, ext := range exts {
			if fileExists(candidate + ext) {
				return candidate + ext, nil
			}
		}
	}
	return "", fmt.Errorf("bundle %s not found", name)
}

func (s Store) decrypt(path string) ([]byte, error) {
	if strings.HasSuffix(strings.ToLower(path), ".age") {
		return decryptAge(path, s.AgeKeyPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", path, err)
	}
	if !s.AllowPlaintext {
		return nil, fmt.Errorf("bundle %s is not encrypted (.age)", path)
	}
	return data, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func parseBundle(data []byte) (Bundle, error) {
	var bundle Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return Bundle{}, err
	}
	if bundle.Version == 0 {
		bundle.Version = BundleVersion
	}
	if bundle.Version != BundleVersion {
		return Bundle{}, fmt.Errorf("unsupported bundle version %d", bundle.Version)
	}
	return bundle, nil
}

func decryptAge(path, keyPath string) ([]byte, error) {
	if strings.TrimSpace(keyPath) == "" {
		return nil, errors.New("age key path is required for .age bundles")
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read age key %s: %w", keyPath, err)
	}
	identities, err := parseAgeIdentities(keyData)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle %s: %w", path, err)
	}
	defer file.Close()
	reader, err := age.Decrypt(file, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypt bundle %s: %w", path, err)
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read bundle %s: %w", path, err)
	}
	return payload, nil
}

func parseAgeIdentities(data []byte) ([]age.Identity, error) {
	var identities []age.Identity
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "AGE-SECRET-KEY-") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse age identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read age key: %w", err)
	}
	if len(identities) == 0 {
		return nil, errors.New("no age identities found")
	}
	return identities, nil
}
