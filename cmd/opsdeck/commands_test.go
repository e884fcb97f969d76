package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newFakeDaemon serves canned JSON per path and returns commonFlags bound
// to the server's address.
func newFakeDaemon(t *testing.T, routes map[string]any) commonFlags {
	t.Helper()
	mux := http.NewServeMux()
	for path, payload := range routes {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal route %s: %v", path, err)
		}
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return commonFlags{addr: strings.TrimPrefix(srv.URL, "http://")}
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	old := stdout
	stdout = buf
	t.Cleanup(func() { stdout = old })
	return buf
}

func TestVMListOutput(t *testing.T) {
	base := newFakeDaemon(t, map[string]any{
		"/v1/vms": map[string]any{"vms": []map[string]any{
			{"id": 1, "name": "web-1", "status": "ready", "ip_address": "10.128.0.10", "ssh_user": "deploy"},
		}},
	})
	out := captureOutput(t)

	if err := runVMList(context.Background(), nil, base); err != nil {
		t.Fatalf("vm list: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "web-1") || !strings.Contains(got, "ready") {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestVMListJSONOutput(t *testing.T) {
	base := newFakeDaemon(t, map[string]any{
		"/v1/vms": map[string]any{"vms": []map[string]any{}},
	})
	base.jsonOutput = true
	out := captureOutput(t)

	if err := runVMList(context.Background(), nil, base); err != nil {
		t.Fatalf("vm list: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("--json output is not json: %v", err)
	}
}

func TestVMDeleteRequiresForceNonInteractive(t *testing.T) {
	base := newFakeDaemon(t, nil)
	err := runVMDelete(context.Background(), []string{"3"}, base)
	if err == nil {
		t.Fatal("expected a confirmation error")
	}
	if !strings.Contains(err.Error(), "--force") {
		t.Fatalf("expected the --force hint, got %q", err.Error())
	}
}

func TestVMDeleteRejectsBadID(t *testing.T) {
	base := newFakeDaemon(t, nil)
	err := runVMDelete(context.Background(), []string{"--force", "zero"}, base)
	if err == nil || !strings.Contains(err.Error(), "positive integer") {
		t.Fatalf("expected an id error, got %v", err)
	}
}

func TestDeployFunctionsOutput(t *testing.T) {
	base := newFakeDaemon(t, map[string]any{
		"/v1/deploy/functions": map[string]any{
			"logs":           []string{"=== batch 1 (offset 0) ==="},
			"functions":      []map[string]string{{"name": "quiz-api", "url": "https://fn/quiz"}},
			"total_deployed": 1,
			"batches":        1,
		},
	})
	out := captureOutput(t)

	if err := runDeployFunctions(context.Background(), []string{"--repo", "acme/realty-leads"}, base); err != nil {
		t.Fatalf("deploy functions: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "quiz-api\thttps://fn/quiz") {
		t.Fatalf("missing function line in %q", got)
	}
	if !strings.Contains(got, "deployed 1 functions in 1 batches") {
		t.Fatalf("missing summary in %q", got)
	}
}

func TestDeployFunctionsRequiresRepo(t *testing.T) {
	base := newFakeDaemon(t, nil)
	err := runDeployFunctions(context.Background(), nil, base)
	if err == nil || !strings.Contains(err.Error(), "--repo") {
		t.Fatalf("expected a --repo error, got %v", err)
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/configs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"deploy config already exists"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base := commonFlags{addr: strings.TrimPrefix(srv.URL, "http://")}

	err := runConfigCreate(context.Background(), []string{"--name", "site", "--domain", "d", "--repo", "r", "--vm", "1"}, base)
	if err == nil || !strings.Contains(err.Error(), "deploy config already exists") {
		t.Fatalf("expected the daemon error, got %v", err)
	}
}

func TestChatSendOutput(t *testing.T) {
	base := newFakeDaemon(t, map[string]any{
		"/v1/chat/abc/messages": map[string]any{
			"message": map[string]any{"role": "assistant", "content": "Здравствуйте!"},
		},
	})
	out := captureOutput(t)

	if err := runChatSend(context.Background(), []string{"abc", "Привет"}, base); err != nil {
		t.Fatalf("chat send: %v", err)
	}
	if !strings.Contains(out.String(), "Здравствуйте!") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestStatusOutput(t *testing.T) {
	base := newFakeDaemon(t, map[string]any{
		"/v1/status": map[string]any{
			"vms":          map[string]int{"ready": 2},
			"configs":      1,
			"chat_ready":   true,
			"version":      "0.3.0",
			"recent_operations": []any{},
		},
	})
	out := captureOutput(t)

	if err := runStatusCommand(context.Background(), nil, base); err != nil {
		t.Fatalf("status: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "opsdeckd 0.3.0") || !strings.Contains(got, "vms ready: 2") {
		t.Fatalf("unexpected output: %q", got)
	}
	if !strings.Contains(got, "chat: enabled") {
		t.Fatalf("missing chat readiness in %q", got)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	err := dispatch(context.Background(), []string{"bogus"}, commonFlags{})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected an unknown command error, got %v", err)
	}
}

func TestParseGlobalDefaults(t *testing.T) {
	opts, args, err := parseGlobal([]string{"vm", "list"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.addr != defaultAddr {
		t.Fatalf("addr = %q, want %q", opts.addr, defaultAddr)
	}
	if opts.timeout != defaultRequestTimeout {
		t.Fatalf("timeout = %v, want %v", opts.timeout, defaultRequestTimeout)
	}
	if len(args) != 2 || args[0] != "vm" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestParseGlobalOverrides(t *testing.T) {
	opts, args, err := parseGlobal([]string{"--addr", "127.0.0.1:9999", "--json", "status"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.addr != "127.0.0.1:9999" || !opts.jsonOutput {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if len(args) != 1 || args[0] != "status" {
		t.Fatalf("unexpected args: %v", args)
	}
}
