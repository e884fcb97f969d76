package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

func TestLoadBundleAge(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	bundle := Bundle{
		Version: BundleVersion,
		Gemini:  GeminiBundle{APIKey: "test-gemini-key"},
		Metrika: MetrikaBundle{Token: "test-metrika-token"},
		Deploy:  DeployBundle{Secrets: map[string]string{"DB_URL": "postgres://x", "API_KEY": "abc"}},
		Env:     map[string]string{"REGION": "ru-central1"},
	}
	payload, err := yaml.Marshal(bundle)
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate age identity: %v", err)
	}
	var encrypted bytes.Buffer
	writer, err := age.Encrypt(&encrypted, identity.Recipient())
	if err != nil {
		t.Fatalf("age encrypt: %v", err)
	}
	if _, err := writer.Write(payload); err != nil {
		t.Fatalf("write age payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close age writer: %v", err)
	}

	bundlePath := filepath.Join(tmp, "default.age")
	if err := os.WriteFile(bundlePath, encrypted.Bytes(), 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	keyPath := filepath.Join(tmp, "age.key")
	if err := os.WriteFile(keyPath, []byte(identity.String()+"\n"), 0o600); err != nil {
		t.Fatalf("write age key: %v", err)
	}

	store := Store{Dir: tmp, AgeKeyPath: keyPath}
	loaded, err := store.Load("default")
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	if loaded.Gemini.APIKey != "test-gemini-key" {
		t.Fatalf("gemini key = %q", loaded.Gemini.APIKey)
	}
	if loaded.Metrika.Token != "test-metrika-token" {
		t.Fatalf("metrika token = %q", loaded.Metrika.Token)
	}
	lines := loaded.SecretLines()
	if len(lines) != 2 || lines[0] != "API_KEY=abc" || lines[1] != "DB_URL=postgres://x" {
		t.Fatalf("secret lines = %v", lines)
	}
}

func TestLoadBundlePlaintextRequiresOptIn(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	payload := "version: 1\ngemini:\n  api_key: plain-key\n"
	if err := os.WriteFile(filepath.Join(tmp, "dev.yaml"), []byte(payload), 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	locked := Store{Dir: tmp}
	if _, err := locked.Load("dev"); err == nil {
		t.Fatal("plaintext bundle loaded without AllowPlaintext")
	}

	open := Store{Dir: tmp, AllowPlaintext: true}
	bundle, err := open.Load("dev")
	if err != nil {
		t.Fatalf("load plaintext bundle: %v", err)
	}
	if bundle.Gemini.APIKey != "plain-key" {
		t.Fatalf("gemini key = %q", bundle.Gemini.APIKey)
	}
}

func TestLoadBundleVersionCheck(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "future.yaml"), []byte("version: 99\n"), 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	store := Store{Dir: tmp, AllowPlaintext: true}
	if _, err := store.Load("future"); err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestLoadBundleMissing(t *testing.T) {
	t.Parallel()
	store := Store{Dir: t.TempDir()}
	if _, err := store.Load("absent"); err == nil {
		t.Fatal("expected not-found error")
	}
	if _, err := store.Load("  "); err == nil {
		t.Fatal("expected name-required error")
	}
}
