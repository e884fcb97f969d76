package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/internal/models"
)

var stdout io.Writer = os.Stdout

// Local views of the daemon's v1 payloads. Only the fields the CLI renders
// are declared; --json passes the raw body through untouched.
type vmListResponse struct {
	VMs []models.VMInstance `json:"vms"`
}

type vmCreateResponse struct {
	IPAddress string   `json:"ip_address"`
	Logs      []string `json:"logs,omitempty"`
}

type vmDeleteResponse struct {
	Message       string   `json:"message,omitempty"`
	Logs          []string `json:"logs,omitempty"`
	LinkedConfigs []string `json:"linked_configs,omitempty"`
}

type sshKeyResponse struct {
	PrivateKey string `json:"private_key"`
}

type syncResponse struct {
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted,omitempty"`
	Logs    []string `json:"logs,omitempty"`
}

type configListResponse struct {
	Configs []models.DeployConfig `json:"configs"`
}

type deployResponse struct {
	URL  string   `json:"url,omitempty"`
	Logs []string `json:"logs,omitempty"`
}

type functionURL struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type deployFunctionsResponse struct {
	Logs          []string      `json:"logs"`
	Functions     []functionURL `json:"functions"`
	TotalDeployed int           `json:"total_deployed"`
	Batches       int           `json:"batches"`
	CapReached    bool          `json:"cap_reached"`
	Error         string        `json:"error,omitempty"`
}

type databaseResponse struct {
	DatabaseURL string   `json:"database_url,omitempty"`
	DBPassword  string   `json:"db_password,omitempty"`
	Logs        []string `json:"logs,omitempty"`
}

type migrateResponse struct {
	Success           bool     `json:"success"`
	Logs              []string `json:"logs,omitempty"`
	AppliedCount      int      `json:"applied_count,omitempty"`
	SkippedCount      int      `json:"skipped_count,omitempty"`
	MigrationsApplied []string `json:"migrations_applied,omitempty"`
}

type operationView struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	OK      bool      `json:"ok"`
	Message string    `json:"message,omitempty"`
}

type opsResponse struct {
	Operations []operationView `json:"operations"`
}

type statusResponse struct {
	VMs       map[string]int  `json:"vms"`
	Configs   int             `json:"configs"`
	Recent    []operationView `json:"recent_operations"`
	Metrics   bool            `json:"metrics_enabled"`
	ChatReady bool            `json:"chat_ready"`
	Version   string          `json:"version"`
}

type quizListResponse struct {
	Quizzes []models.Quiz `json:"quizzes"`
}

type draftListResponse struct {
	Drafts []struct {
		Slug      string    `json:"slug"`
		Title     string    `json:"title"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"drafts"`
}

type goalsResponse struct {
	Success      bool `json:"success"`
	CreatedGoals []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"created_goals"`
}

type chatCreateResponse struct {
	ConversationID string `json:"conversation_id"`
}

type chatListResponse struct {
	Conversations []string `json:"conversations"`
}

type chatSendResponse struct {
	Message models.ChatMessage `json:"message"`
}

type chatHistoryResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

type chatResetResponse struct {
	Deleted int `json:"deleted"`
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// render decodes into dest for human output, or pretty-prints the raw body
// with --json. dest must be a pointer; human runs only in text mode.
func render(base commonFlags, data []byte, dest any, human func()) error {
	if base.jsonOutput {
		return prettyPrintJSON(stdout, data)
	}
	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return err
		}
	}
	if human != nil {
		human()
	}
	return nil
}

func printLogs(logs []string) {
	for _, line := range logs {
		fmt.Fprintln(stdout, line)
	}
}

// --- status / ops ---

func runStatusCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) > 0 {
		return fmt.Errorf("status takes no arguments")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/status", nil)
	if err != nil {
		return err
	}
	var resp statusResponse
	return render(base, data, &resp, func() {
		fmt.Fprintf(stdout, "opsdeckd %s\n", resp.Version)
		fmt.Fprintf(stdout, "configs: %d\n", resp.Configs)
		for status, count := range resp.VMs {
			fmt.Fprintf(stdout, "vms %s: %d\n", status, count)
		}
		fmt.Fprintf(stdout, "chat: %s\n", readiness(resp.ChatReady))
		fmt.Fprintf(stdout, "metrics: %s\n", readiness(resp.Metrics))
		for _, op := range resp.Recent {
			fmt.Fprintln(stdout, formatOperation(op))
		}
	})
}

func readiness(ready bool) string {
	if ready {
		return "enabled"
	}
	return "disabled"
}

func formatOperation(op operationView) string {
	result := "ok"
	if !op.OK {
		result = "failed"
	}
	line := fmt.Sprintf("%s %s %s", op.Time.Format(time.RFC3339), op.Kind, result)
	if op.Subject != "" {
		line += " " + op.Subject
	}
	if op.Message != "" {
		line += ": " + op.Message
	}
	return line
}

func runOpsCommand(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("ops")
	limit := fs.Int("limit", 20, "number of journal entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/operations?limit="+strconv.Itoa(*limit), nil)
	if err != nil {
		return err
	}
	var resp opsResponse
	return render(base, data, &resp, func() {
		for _, op := range resp.Operations {
			fmt.Fprintln(stdout, formatOperation(op))
		}
	})
}

// --- vm ---

func runVMCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		return newCLIError("vm needs a subcommand", "one of: list, create, delete, ssh-key, sync")
	}
	switch args[0] {
	case "list":
		return runVMList(ctx, args[1:], base)
	case "create":
		return runVMCreate(ctx, args[1:], base)
	case "delete":
		return runVMDelete(ctx, args[1:], base)
	case "ssh-key":
		return runVMSSHKey(ctx, args[1:], base)
	case "sync":
		return runVMSync(ctx, args[1:], base)
	default:
		return fmt.Errorf("unknown vm command %q", args[0])
	}
}

func runVMList(ctx context.Context, args []string, base commonFlags) error {
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/vms", nil)
	if err != nil {
		return err
	}
	var resp vmListResponse
	return render(base, data, &resp, func() {
		for _, vm := range resp.VMs {
			fmt.Fprintf(stdout, "%d\t%s\t%s\t%s\t%s\n", vm.ID, vm.Name, vm.Status, vm.IPAddress, vm.SSHUser)
		}
	})
}

func runVMCreate(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("vm create")
	name := fs.String("name", "", "vm name (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, "/v1/vms", map[string]string{"name": *name})
	if err != nil {
		return err
	}
	var resp vmCreateResponse
	return render(base, data, &resp, func() {
		printLogs(resp.Logs)
		fmt.Fprintf(stdout, "created vm at %s\n", resp.IPAddress)
	})
}

func runVMDelete(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("vm delete")
	force := fs.Bool("force", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return newCLIError("vm delete needs a vm id", "usage: opsdeck vm delete <id> [--force]")
	}
	id, err := strconv.Atoi(rest[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("vm id must be a positive integer")
	}
	if err := requireConfirmation(confirmOptions{
		action:     fmt.Sprintf("delete vm %d", id),
		force:      *force,
		jsonOutput: base.jsonOutput,
	}); err != nil {
		return err
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodDelete, "/v1/vms/"+strconv.Itoa(id), nil)
	if err != nil {
		return err
	}
	var resp vmDeleteResponse
	return render(base, data, &resp, func() {
		printLogs(resp.Logs)
		if resp.Message != "" {
			fmt.Fprintln(stdout, resp.Message)
		}
		if len(resp.LinkedConfigs) > 0 {
			fmt.Fprintf(stdout, "warning: configs still reference this vm: %s\n", strings.Join(resp.LinkedConfigs, ", "))
		}
	})
}

func runVMSSHKey(ctx context.Context, args []string, base commonFlags) error {
	if len(args) != 1 {
		return newCLIError("vm ssh-key needs a vm id", "usage: opsdeck vm ssh-key <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("vm id must be a positive integer")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/vms/"+strconv.Itoa(id)+"/ssh-key", nil)
	if err != nil {
		return err
	}
	var resp sshKeyResponse
	return render(base, data, &resp, func() {
		fmt.Fprintln(stdout, resp.PrivateKey)
	})
}

func runVMSync(ctx context.Context, args []string, base commonFlags) error {
	if len(args) > 0 {
		return fmt.Errorf("vm sync takes no arguments")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, "/v1/vms/sync", nil)
	if err != nil {
		return err
	}
	var resp syncResponse
	return render(base, data, &resp, func() {
		printLogs(resp.Logs)
		fmt.Fprintf(stdout, "synced: %d updated, %d deleted\n", resp.Updated, resp.Deleted)
	})
}

// --- config ---

func runConfigCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		return newCLIError("config needs a subcommand", "one of: list, create, update, delete")
	}
	switch args[0] {
	case "list":
		return runConfigList(ctx, args[1:], base)
	case "create":
		return runConfigCreate(ctx, args[1:], base)
	case "update":
		return runConfigUpdate(ctx, args[1:], base)
	case "delete":
		return runConfigDelete(ctx, args[1:], base)
	default:
		return fmt.Errorf("unknown config command %q", args[0])
	}
}

func runConfigList(ctx context.Context, args []string, base commonFlags) error {
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/configs", nil)
	if err != nil {
		return err
	}
	var resp configListResponse
	return render(base, data, &resp, func() {
		for _, cfg := range resp.Configs {
			fmt.Fprintf(stdout, "%s\t%s\t%s\tvm=%d\n", cfg.Name, cfg.Domain, cfg.GithubRepo, cfg.VMInstanceID)
		}
	})
}

func parseConfigFlags(name string, args []string) (map[string]any, []string, error) {
	fs := newFlagSet(name)
	cfgName := fs.String("name", "", "config name")
	domain := fs.String("domain", "", "site domain")
	repo := fs.String("repo", "", "github repository (owner/repo)")
	vmID := fs.Int("vm", 0, "target vm id")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	payload := map[string]any{
		"name":           *cfgName,
		"domain":         *domain,
		"github_repo":    *repo,
		"vm_instance_id": *vmID,
	}
	return payload, fs.Args(), nil
}

func runConfigCreate(ctx context.Context, args []string, base commonFlags) error {
	payload, rest, err := parseConfigFlags("config create", args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument %q", rest[0])
	}
	client := newAPIClient(base.addr, base.timeout)
	if _, err := client.doJSON(ctx, http.MethodPost, "/v1/configs", payload); err != nil {
		return err
	}
	if !base.jsonOutput {
		fmt.Fprintln(stdout, "config created")
	}
	return nil
}

func runConfigUpdate(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return newCLIError("config update needs the current config name first", "usage: opsdeck config update <name> --name <new> --domain <d> --repo <r> --vm <id>")
	}
	oldName := args[0]
	payload, rest, err := parseConfigFlags("config update", args[1:])
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument %q", rest[0])
	}
	client := newAPIClient(base.addr, base.timeout)
	if _, err := client.doJSON(ctx, http.MethodPut, "/v1/configs/"+oldName, payload); err != nil {
		return err
	}
	if !base.jsonOutput {
		fmt.Fprintln(stdout, "config updated")
	}
	return nil
}

func runConfigDelete(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("config delete")
	force := fs.Bool("force", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return newCLIError("config delete needs a config name", "usage: opsdeck config delete <name> [--force]")
	}
	if err := requireConfirmation(confirmOptions{
		action:     fmt.Sprintf("delete config %s", rest[0]),
		force:      *force,
		jsonOutput: base.jsonOutput,
	}); err != nil {
		return err
	}
	client := newAPIClient(base.addr, base.timeout)
	if _, err := client.doJSON(ctx, http.MethodDelete, "/v1/configs/"+rest[0], nil); err != nil {
		return err
	}
	if !base.jsonOutput {
		fmt.Fprintln(stdout, "config deleted")
	}
	return nil
}

// --- deploy ---

func runDeployCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		return newCLIError("deploy needs a subcommand", "one of: frontend, functions, ssl, database, migrate")
	}
	switch args[0] {
	case "frontend":
		return runDeployFrontend(ctx, args[1:], base)
	case "functions":
		return runDeployFunctions(ctx, args[1:], base)
	case "ssl":
		return runDeploySSL(ctx, args[1:], base)
	case "database":
		return runDeployDatabase(ctx, args[1:], base)
	case "migrate":
		return runDeployMigrate(ctx, args[1:], base)
	default:
		return fmt.Errorf("unknown deploy command %q", args[0])
	}
}

func runDeployFrontend(ctx context.Context, args []string, base commonFlags) error {
	return runConfigDeploy(ctx, args, base, "deploy frontend", "/v1/deploy/frontend")
}

func runDeploySSL(ctx context.Context, args []string, base commonFlags) error {
	return runConfigDeploy(ctx, args, base, "deploy ssl", "/v1/deploy/ssl")
}

func runConfigDeploy(ctx context.Context, args []string, base commonFlags, name, path string) error {
	fs := newFlagSet(name)
	configName := fs.String("config", "", "deploy config name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configName == "" {
		return newCLIError(name+" needs --config", "usage: opsdeck "+name+" --config <name>")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, path, map[string]string{"config": *configName})
	if err != nil {
		return err
	}
	var resp deployResponse
	return render(base, data, &resp, func() {
		printLogs(resp.Logs)
		if resp.URL != "" {
			fmt.Fprintln(stdout, resp.URL)
		}
	})
}

func runDeployFunctions(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("deploy functions")
	repo := fs.String("repo", "", "github repository (owner/repo)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *repo == "" {
		return newCLIError("deploy functions needs --repo", "usage: opsdeck deploy functions --repo <owner/repo>")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, "/v1/deploy/functions", map[string]string{"github_repo": *repo})
	if err != nil {
		return err
	}
	var resp deployFunctionsResponse
	return render(base, data, &resp, func() {
		printLogs(resp.Logs)
		for _, fn := range resp.Functions {
			fmt.Fprintf(stdout, "%s\t%s\n", fn.Name, fn.URL)
		}
		fmt.Fprintf(stdout, "deployed %d functions in %d batches\n", resp.TotalDeployed, resp.Batches)
		if resp.CapReached {
			fmt.Fprintln(stdout, "warning: batch cap reached before the server finished")
		}
	})
}

func runDeployDatabase(ctx context.Context, args []string, base commonFlags) error {
	if len(args) > 0 {
		return fmt.Errorf("deploy database takes no arguments")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, "/v1/deploy/database", nil)
	if err != nil {
		return err
	}
	var resp databaseResponse
	return render(base, data, &resp, func() {
		printLogs(resp.Logs)
		fmt.Fprintln(stdout, resp.DatabaseURL)
	})
}

func runDeployMigrate(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("deploy migrate")
	repo := fs.String("repo", "", "github repository (owner/repo)")
	schemaFrom := fs.String("schema-from", "", "source schema to remap")
	schemaTo := fs.String("schema-to", "", "target schema")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *repo == "" {
		return newCLIError("deploy migrate needs --repo", "usage: opsdeck deploy migrate --repo <owner/repo>")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, "/v1/deploy/migrations", map[string]string{
		"github_repo": *repo,
		"schema_from": *schemaFrom,
		"schema_to":   *schemaTo,
	})
	if err != nil {
		return err
	}
	var resp migrateResponse
	return render(base, data, &resp, func() {
		printLogs(resp.Logs)
		fmt.Fprintf(stdout, "applied %d, skipped %d\n", resp.AppliedCount, resp.SkippedCount)
	})
}

// --- draft ---

func runDraftCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		return newCLIError("draft needs a subcommand", "one of: save, list, show, delete, goals")
	}
	switch args[0] {
	case "save":
		return runDraftSave(ctx, args[1:], base)
	case "list":
		return runDraftList(ctx, args[1:], base)
	case "show":
		return runDraftShow(ctx, args[1:], base)
	case "delete":
		return runDraftDelete(ctx, args[1:], base)
	case "goals":
		return runDraftGoals(ctx, args[1:], base)
	default:
		return fmt.Errorf("unknown draft command %q", args[0])
	}
}

func runDraftSave(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("draft save")
	file := fs.String("file", "", "path to a quiz json file ('-' for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return newCLIError("draft save needs --file", "usage: opsdeck draft save --file <path>")
	}
	var data []byte
	var err error
	if *file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		return err
	}
	var q models.Quiz
	if err := json.Unmarshal(data, &q); err != nil {
		return wrapCLIError(err, "quiz file is not valid json", "")
	}
	client := newAPIClient(base.addr, base.timeout)
	body, err := client.doJSON(ctx, http.MethodPost, "/v1/drafts", map[string]any{"quiz": q})
	if err != nil {
		return err
	}
	var resp struct {
		Slug string `json:"slug"`
	}
	return render(base, body, &resp, func() {
		fmt.Fprintf(stdout, "saved draft %s\n", resp.Slug)
	})
}

func runDraftList(ctx context.Context, args []string, base commonFlags) error {
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/drafts", nil)
	if err != nil {
		return err
	}
	var resp draftListResponse
	return render(base, data, &resp, func() {
		for _, d := range resp.Drafts {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", d.Slug, d.Title, d.UpdatedAt.Format(time.RFC3339))
		}
	})
}

func runDraftShow(ctx context.Context, args []string, base commonFlags) error {
	if len(args) != 1 {
		return newCLIError("draft show needs a slug", "usage: opsdeck draft show <slug>")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/drafts/"+args[0], nil)
	if err != nil {
		return err
	}
	return prettyPrintJSON(stdout, data)
}

func runDraftDelete(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("draft delete")
	force := fs.Bool("force", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return newCLIError("draft delete needs a slug", "usage: opsdeck draft delete <slug> [--force]")
	}
	if err := requireConfirmation(confirmOptions{
		action:     fmt.Sprintf("delete draft %s", rest[0]),
		force:      *force,
		jsonOutput: base.jsonOutput,
	}); err != nil {
		return err
	}
	client := newAPIClient(base.addr, base.timeout)
	if _, err := client.doJSON(ctx, http.MethodDelete, "/v1/drafts/"+rest[0], nil); err != nil {
		return err
	}
	if !base.jsonOutput {
		fmt.Fprintln(stdout, "draft deleted")
	}
	return nil
}

func runDraftGoals(ctx context.Context, args []string, base commonFlags) error {
	if len(args) != 1 {
		return newCLIError("draft goals needs a slug", "usage: opsdeck draft goals <slug>")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, "/v1/drafts/"+args[0]+"/goals", nil)
	if err != nil {
		return err
	}
	var resp goalsResponse
	return render(base, data, &resp, func() {
		for _, goal := range resp.CreatedGoals {
			fmt.Fprintf(stdout, "%s\t%s\n", goal.Name, goal.Status)
		}
	})
}

// --- chat ---

func runChatCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		return newCLIError("chat needs a subcommand", "one of: new, list, history, send, reset")
	}
	switch args[0] {
	case "new":
		return runChatNew(ctx, args[1:], base)
	case "list":
		return runChatList(ctx, args[1:], base)
	case "history":
		return runChatHistory(ctx, args[1:], base)
	case "send":
		return runChatSend(ctx, args[1:], base)
	case "reset":
		return runChatReset(ctx, args[1:], base)
	default:
		return fmt.Errorf("unknown chat command %q", args[0])
	}
}

func runChatNew(ctx context.Context, args []string, base commonFlags) error {
	if len(args) > 0 {
		return fmt.Errorf("chat new takes no arguments")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, "/v1/chat", nil)
	if err != nil {
		return err
	}
	var resp chatCreateResponse
	return render(base, data, &resp, func() {
		fmt.Fprintln(stdout, resp.ConversationID)
	})
}

func runChatList(ctx context.Context, args []string, base commonFlags) error {
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/chat", nil)
	if err != nil {
		return err
	}
	var resp chatListResponse
	return render(base, data, &resp, func() {
		for _, id := range resp.Conversations {
			fmt.Fprintln(stdout, id)
		}
	})
}

func runChatHistory(ctx context.Context, args []string, base commonFlags) error {
	if len(args) != 1 {
		return newCLIError("chat history needs a conversation id", "usage: opsdeck chat history <conversation>")
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodGet, "/v1/chat/"+args[0]+"/messages", nil)
	if err != nil {
		return err
	}
	var resp chatHistoryResponse
	return render(base, data, &resp, func() {
		for _, msg := range resp.Messages {
			fmt.Fprintf(stdout, "%s: %s\n", msg.Role, msg.Content)
		}
	})
}

func runChatSend(ctx context.Context, args []string, base commonFlags) error {
	if len(args) < 2 {
		return newCLIError("chat send needs a conversation id and a message", "usage: opsdeck chat send <conversation> <message...>")
	}
	conversation := args[0]
	text := strings.Join(args[1:], " ")
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodPost, "/v1/chat/"+conversation+"/messages", map[string]string{"text": text})
	if err != nil {
		return err
	}
	var resp chatSendResponse
	return render(base, data, &resp, func() {
		fmt.Fprintln(stdout, resp.Message.Content)
	})
}

func runChatReset(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("chat reset")
	force := fs.Bool("force", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return newCLIError("chat reset needs a conversation id", "usage: opsdeck chat reset <conversation> [--force]")
	}
	if err := requireConfirmation(confirmOptions{
		action:     fmt.Sprintf("reset conversation %s", rest[0]),
		force:      *force,
		jsonOutput: base.jsonOutput,
	}); err != nil {
		return err
	}
	client := newAPIClient(base.addr, base.timeout)
	data, err := client.doJSON(ctx, http.MethodDelete, "/v1/chat/"+rest[0], nil)
	if err != nil {
		return err
	}
	var resp chatResetResponse
	return render(base, data, &resp, func() {
		fmt.Fprintf(stdout, "conversation reset, %d messages dropped\n", resp.Deleted)
	})
}
