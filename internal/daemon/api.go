package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/buildinfo"
	"github.com/opsdeck/opsdeck/internal/cloud"
	"github.com/opsdeck/opsdeck/internal/db"
	"github.com/opsdeck/opsdeck/internal/deploy"
	"github.com/opsdeck/opsdeck/internal/gemini"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/quiz"
	"github.com/opsdeck/opsdeck/internal/quizapi"
)

const (
	maxJSONBytes          = 1 << 20 // Maximum size for JSON request bodies (1MB)
	defaultOperationsTail = 20
	maxOperationsTail     = 200
	statusOperationsTail  = 10
)

// Operation journal kinds, one per outbound deploy-dashboard action.
const (
	opVMCreate       = "vm.create"
	opVMDelete       = "vm.delete"
	opVMSync         = "vm.sync"
	opDeployFrontend = "deploy.frontend"
	opDeployFuncs    = "deploy.functions"
	opDeploySSL      = "deploy.ssl"
	opDeployDatabase = "deploy.database"
	opDeployMigrate  = "deploy.migrate"
)

// ControlAPI handles local control plane HTTP requests.
//
// It provides the v1 API the opsdeck CLI talks to. Every external side
// effect (cloud calls, lead submission, Gemini generation) flows through
// here; the daemon is the only process holding credentials.
//
// Endpoints:
//   - GET    /v1/status                      - daemon status summary
//   - GET    /v1/vms                         - list visible VMs
//   - POST   /v1/vms                         - create a VM
//   - DELETE /v1/vms/{id}                    - delete a VM
//   - GET    /v1/vms/{id}/ssh-key            - fetch a VM's private SSH key
//   - POST   /v1/vms/sync                    - reconcile VMs with the cloud
//   - GET    /v1/configs                     - list deploy configs
//   - POST   /v1/configs                     - create a deploy config
//   - PUT    /v1/configs/{name}              - update a deploy config
//   - DELETE /v1/configs/{name}              - delete a deploy config
//   - POST   /v1/deploy/frontend             - run a frontend deploy
//   - POST   /v1/deploy/functions            - run the batched function deploy
//   - POST   /v1/deploy/ssl                  - set up SSL for a config
//   - POST   /v1/deploy/database             - provision the application database
//   - POST   /v1/deploy/migrations           - apply repository migrations
//   - GET    /v1/operations                  - tail the operation journal
//   - GET    /v1/quizzes                     - list quizzes
//   - GET    /v1/quizzes/{slug}              - get one quiz by slug
//   - POST   /v1/quiz-sessions               - start a quiz runtime session
//   - GET    /v1/quiz-sessions/{id}          - get session state
//   - POST   /v1/quiz-sessions/{id}/select   - record an answer
//   - POST   /v1/quiz-sessions/{id}/advance  - move forward one stage
//   - POST   /v1/quiz-sessions/{id}/back     - move back one stage
//   - POST   /v1/quiz-sessions/{id}/submit   - submit contact info and the lead
//   - GET    /v1/drafts                      - list builder drafts
//   - POST   /v1/drafts                      - save a builder draft
//   - GET    /v1/drafts/{slug}               - get a builder draft
//   - DELETE /v1/drafts/{slug}               - delete a builder draft
//   - POST   /v1/drafts/{slug}/goals         - create Metrika goals for a draft
//   - POST   /v1/chat                        - open a chat conversation
//   - GET    /v1/chat                        - list persisted conversations
//   - GET    /v1/chat/{id}/messages          - get conversation history
//   - POST   /v1/chat/{id}/messages          - send a message, returns the reply
//   - DELETE /v1/chat/{id}                   - reset a conversation
type ControlAPI struct {
	store          *db.Store
	deploys        *deploy.Service
	quizzes        quizapi.Store
	goals          quiz.GoalReporter
	chat           *gemini.Chat
	metrics        *Metrics
	metricsEnabled bool
	logger         *log.Logger
	now            func() time.Time

	sessionMu sync.Mutex
	sessions  map[string]*quizSession
}

// quizSession pins one runtime to one session id. The per-session mutex
// serializes stage transitions; Runtime itself is not concurrency-safe.
type quizSession struct {
	mu      sync.Mutex
	quiz    models.Quiz
	runtime *quiz.Runtime
}

// NewControlAPI creates a new control API instance. chat may be nil when no
// Gemini credential is configured; chat routes then answer 503.
func NewControlAPI(store *db.Store, deploys *deploy.Service, quizzes quizapi.Store, goals quiz.GoalReporter, chat *gemini.Chat, logger *log.Logger) *ControlAPI {
	if logger == nil {
		logger = log.Default()
	}
	return &ControlAPI{
		store:    store,
		deploys:  deploys,
		quizzes:  quizzes,
		goals:    goals,
		chat:     chat,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*quizSession),
	}
}

// WithMetrics registers the metrics collector.
func (api *ControlAPI) WithMetrics(metrics *Metrics) *ControlAPI {
	if api == nil {
		return api
	}
	api.metrics = metrics
	return api
}

// WithMetricsEnabled annotates the status response with metrics listener state.
func (api *ControlAPI) WithMetricsEnabled(enabled bool) *ControlAPI {
	if api == nil {
		return api
	}
	api.metricsEnabled = enabled
	return api
}

// Register registers all control API handlers with the provided mux.
func (api *ControlAPI) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/v1/status", api.handleStatus)
	mux.HandleFunc("/v1/vms", api.handleVMs)
	mux.HandleFunc("/v1/vms/", api.handleVMByID)
	mux.HandleFunc("/v1/vms/sync", api.handleVMSync)
	mux.HandleFunc("/v1/configs", api.handleConfigs)
	mux.HandleFunc("/v1/configs/", api.handleConfigByName)
	mux.HandleFunc("/v1/deploy/frontend", api.handleDeployFrontend)
	mux.HandleFunc("/v1/deploy/functions", api.handleDeployFunctions)
	mux.HandleFunc("/v1/deploy/ssl", api.handleDeploySSL)
	mux.HandleFunc("/v1/deploy/database", api.handleDeployDatabase)
	mux.HandleFunc("/v1/deploy/migrations", api.handleDeployMigrations)
	mux.HandleFunc("/v1/operations", api.handleOperations)
	mux.HandleFunc("/v1/quizzes", api.handleQuizzes)
	mux.HandleFunc("/v1/quizzes/", api.handleQuizBySlug)
	mux.HandleFunc("/v1/quiz-sessions", api.handleQuizSessions)
	mux.HandleFunc("/v1/quiz-sessions/", api.handleQuizSessionByID)
	mux.HandleFunc("/v1/drafts", api.handleDrafts)
	mux.HandleFunc("/v1/drafts/", api.handleDraftBySlug)
	mux.HandleFunc("/v1/chat", api.handleChat)
	mux.HandleFunc("/v1/chat/", api.handleChatByID)
}

func (api *ControlAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	ctx := r.Context()
	resp := V1StatusResponse{
		VMs:       map[string]int{},
		Metrics:   api.metricsEnabled,
		ChatReady: api.chat != nil,
		Version:   buildinfo.Version,
	}
	vms, err := api.deploys.ListVMs(ctx)
	if err != nil {
		api.logger.Printf("opsdeckd: status vm list failed: %v", err)
	}
	for _, vm := range vms {
		resp.VMs[string(vm.Status)]++
	}
	configs, err := api.deploys.ListConfigs(ctx)
	if err != nil {
		api.logger.Printf("opsdeckd: status config list failed: %v", err)
	}
	resp.Configs = len(configs)
	if api.store != nil {
		ops, err := api.store.ListOperationsTail(ctx, statusOperationsTail)
		if err != nil {
			api.logger.Printf("opsdeckd: status operations tail failed: %v", err)
		}
		resp.Operations = toV1Operations(ops)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- VMs ---

func (api *ControlAPI) handleVMs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		vms, err := api.deploys.ListVMs(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, "vm list failed", err)
			return
		}
		writeJSON(w, http.StatusOK, V1VMListResponse{VMs: vms})
	case http.MethodPost:
		api.handleVMCreate(w, r)
	default:
		writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
	}
}

func (api *ControlAPI) handleVMCreate(w http.ResponseWriter, r *http.Request) {
	var req V1VMCreateRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	started := api.now()
	result, err := api.deploys.CreateVM(r.Context(), strings.TrimSpace(req.Name))
	api.recordOperation(r.Context(), db.Operation{
		Kind:    opVMCreate,
		Subject: strings.TrimSpace(req.Name),
		OK:      err == nil,
		Message: result.IPAddress,
		Logs:    result.Logs,
	}, started, err)
	if err != nil {
		writeError(w, http.StatusBadGateway, "vm create failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, V1VMCreateResponse{IPAddress: result.IPAddress, Logs: result.Logs})
}

func (api *ControlAPI) handleVMByID(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/v1/vms/")
	parts := strings.Split(strings.Trim(tail, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "vm not found")
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "vm id must be a positive integer")
		return
	}

	switch len(parts) {
	case 1:
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w, []string{http.MethodDelete})
			return
		}
		api.handleVMDelete(w, r, id)
		return
	case 2:
		if parts[1] == "ssh-key" {
			if r.Method != http.MethodGet {
				writeMethodNotAllowed(w, []string{http.MethodGet})
				return
			}
			key, err := api.deploys.FetchSSHKey(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusBadGateway, "ssh key fetch failed", err)
				return
			}
			writeJSON(w, http.StatusOK, V1SSHKeyResponse{PrivateKey: key})
			return
		}
	}
	writeError(w, http.StatusNotFound, "vm not found")
}

func (api *ControlAPI) handleVMDelete(w http.ResponseWriter, r *http.Request, id int) {
	started := api.now()
	result, linked, err := api.deploys.DeleteVM(r.Context(), id)
	api.recordOperation(r.Context(), db.Operation{
		Kind:    opVMDelete,
		Subject: strconv.Itoa(id),
		OK:      err == nil,
		Message: result.Message,
		Logs:    result.Logs,
	}, started, err)
	if err != nil {
		writeError(w, http.StatusBadGateway, "vm delete failed", err)
		return
	}
	writeJSON(w, http.StatusOK, V1VMDeleteResponse{
		Message:       result.Message,
		Logs:          result.Logs,
		LinkedConfigs: linked,
	})
}

func (api *ControlAPI) handleVMSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	started := api.now()
	result, err := api.deploys.Sync(r.Context())
	api.recordOperation(r.Context(), db.Operation{
		Kind:    opVMSync,
		OK:      err == nil,
		Message: syncMessage(result),
		Logs:    result.Logs,
	}, started, err)
	if err != nil {
		writeError(w, http.StatusBadGateway, "vm sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, V1SyncResponse{Updated: result.Updated, Deleted: result.Deleted, Logs: result.Logs})
}

// --- Deploy configs ---

func (api *ControlAPI) handleConfigs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		configs, err := api.deploys.ListConfigs(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, "config list failed", err)
			return
		}
		writeJSON(w, http.StatusOK, V1ConfigListResponse{Configs: configs})
	case http.MethodPost:
		var req V1ConfigRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		err := api.deploys.CreateConfig(r.Context(), configFromRequest(req))
		if err != nil {
			if errors.Is(err, deploy.ErrConfigExists) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "config create failed", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	default:
		writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
	}
}

func (api *ControlAPI) handleConfigByName(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/configs/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req V1ConfigRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := api.deploys.UpdateConfig(r.Context(), name, configFromRequest(req)); err != nil {
			writeError(w, http.StatusBadGateway, "config update failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := api.deploys.DeleteConfig(r.Context(), name); err != nil {
			writeError(w, http.StatusBadGateway, "config delete failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w, []string{http.MethodPut, http.MethodDelete})
	}
}

func configFromRequest(req V1ConfigRequest) models.DeployConfig {
	return models.DeployConfig{
		Name:         strings.TrimSpace(req.Name),
		Domain:       strings.TrimSpace(req.Domain),
		GithubRepo:   strings.TrimSpace(req.GithubRepo),
		VMInstanceID: req.VMInstanceID,
	}
}

// --- Deploy actions ---

func (api *ControlAPI) handleDeployFrontend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	var req V1DeployFrontendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Config = strings.TrimSpace(req.Config)
	if req.Config == "" {
		writeError(w, http.StatusBadRequest, "config is required")
		return
	}
	started := api.now()
	result, err := api.deploys.DeployFrontend(r.Context(), req.Config)
	api.recordOperation(r.Context(), db.Operation{
		Kind:    opDeployFrontend,
		Subject: req.Config,
		OK:      err == nil,
		Message: result.URL,
		Logs:    result.Logs,
	}, started, err)
	if err != nil {
		writeError(w, http.StatusBadGateway, "frontend deploy failed", err)
		return
	}
	writeJSON(w, http.StatusOK, V1DeployResponse{URL: result.URL, Logs: result.Logs})
}

func (api *ControlAPI) handleDeployFunctions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	var req V1DeployFunctionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.GithubRepo = strings.TrimSpace(req.GithubRepo)
	if req.GithubRepo == "" {
		writeError(w, http.StatusBadRequest, "github_repo is required")
		return
	}
	started := api.now()
	result, err := api.deploys.DeployFunctions(r.Context(), req.GithubRepo)
	api.metrics.AddFunctionBatches(result.Batches)
	api.metrics.AddFunctionsDeployed(result.TotalDeployed)
	api.recordOperation(r.Context(), db.Operation{
		Kind:    opDeployFuncs,
		Subject: req.GithubRepo,
		OK:      err == nil,
		Message: functionDeployMessage(result),
		Logs:    result.Logs,
	}, started, err)
	if err != nil {
		// The accumulated result still matters: deployed slices are live.
		writeJSON(w, http.StatusBadGateway, struct {
			V1DeployFunctionsResponse
			Error string `json:"error"`
		}{V1DeployFunctionsResponse{result}, err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, V1DeployFunctionsResponse{result})
}

func (api *ControlAPI) handleDeploySSL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	var req V1DeployFrontendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Config = strings.TrimSpace(req.Config)
	if req.Config == "" {
		writeError(w, http.StatusBadRequest, "config is required")
		return
	}
	started := api.now()
	result, err := api.deploys.SetupSSL(r.Context(), req.Config)
	api.recordOperation(r.Context(), db.Operation{
		Kind:    opDeploySSL,
		Subject: req.Config,
		OK:      err == nil,
		Message: result.URL,
		Logs:    result.Logs,
	}, started, err)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ssl setup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, V1DeployResponse{URL: result.URL, Logs: result.Logs})
}

func (api *ControlAPI) handleDeployDatabase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	started := api.now()
	result, err := api.deploys.SetupDatabase(r.Context())
	api.recordOperation(r.Context(), db.Operation{
		Kind:    opDeployDatabase,
		OK:      err == nil,
		Message: result.DatabaseURL,
		Logs:    result.Logs,
	}, started, err)
	if err != nil {
		writeError(w, http.StatusBadGateway, "database setup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, V1DatabaseResponse{
		DatabaseURL: result.DatabaseURL,
		DBPassword:  result.DBPassword,
		Logs:        result.Logs,
	})
}

func (api *ControlAPI) handleDeployMigrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	var req V1MigrateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.GithubRepo = strings.TrimSpace(req.GithubRepo)
	if req.GithubRepo == "" {
		writeError(w, http.StatusBadRequest, "github_repo is required")
		return
	}
	started := api.now()
	result, err := api.deploys.ApplyMigrations(r.Context(), cloud.MigrationRequest{
		GithubRepo:    req.GithubRepo,
		SchemaFrom:    strings.TrimSpace(req.SchemaFrom),
		SchemaTo:      strings.TrimSpace(req.SchemaTo),
		TableReplaces: req.TableReplaces,
	})
	api.recordOperation(r.Context(), db.Operation{
		Kind:    opDeployMigrate,
		Subject: req.GithubRepo,
		OK:      err == nil && result.Success,
		Message: migrateMessage(result),
		Logs:    result.Logs,
	}, started, err)
	if err != nil {
		writeError(w, http.StatusBadGateway, "migration run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, V1MigrateResponse{result})
}

// --- Operation journal ---

func (api *ControlAPI) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	limit := defaultOperationsTail
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > maxOperationsTail {
			parsed = maxOperationsTail
		}
		limit = parsed
	}
	ops, err := api.store.ListOperationsTail(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load operations", err)
		return
	}
	writeJSON(w, http.StatusOK, V1OperationsResponse{Operations: toV1Operations(ops)})
}

// --- Quizzes ---

func (api *ControlAPI) handleQuizzes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	quizzes, err := api.quizzes.ListQuizzes(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "quiz list failed", err)
		return
	}
	writeJSON(w, http.StatusOK, V1QuizListResponse{Quizzes: quizzes})
}

func (api *ControlAPI) handleQuizBySlug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	slug := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/quizzes/"), "/")
	if slug == "" || strings.Contains(slug, "/") {
		writeError(w, http.StatusNotFound, "quiz not found")
		return
	}
	q, err := api.quizzes.GetQuiz(r.Context(), slug)
	if err != nil {
		writeError(w, http.StatusBadGateway, "quiz fetch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// --- Quiz runtime sessions ---

func (api *ControlAPI) handleQuizSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, []string{http.MethodPost})
		return
	}
	var req V1QuizSessionCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Slug = strings.TrimSpace(req.Slug)
	if req.Slug == "" {
		writeError(w, http.StatusBadRequest, "slug is required")
		return
	}
	q, err := api.quizzes.GetQuiz(r.Context(), req.Slug)
	if err != nil {
		writeError(w, http.StatusBadGateway, "quiz fetch failed", err)
		return
	}
	if !q.IsActive {
		writeError(w, http.StatusConflict, "quiz is not active")
		return
	}
	sess := &quizSession{
		quiz:    q,
		runtime: quiz.NewRuntime(q, api.leadSubmitter(), api.goals),
	}
	id := uuid.NewString()
	api.sessionMu.Lock()
	api.sessions[id] = sess
	api.metrics.SetActiveQuizSessions(len(api.sessions))
	api.sessionMu.Unlock()
	writeJSON(w, http.StatusCreated, api.sessionResponse(id, sess))
}

func (api *ControlAPI) handleQuizSessionByID(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/v1/quiz-sessions/")
	parts := strings.Split(strings.Trim(tail, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	api.sessionMu.Lock()
	sess, ok := api.sessions[parts[0]]
	api.sessionMu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch len(parts) {
	case 1:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, []string{http.MethodGet})
			return
		}
		sess.mu.Lock()
		resp := api.sessionResponse(parts[0], sess)
		sess.mu.Unlock()
		writeJSON(w, http.StatusOK, resp)
		return
	case 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, []string{http.MethodPost})
			return
		}
		switch parts[1] {
		case "select":
			api.handleQuizSelect(w, r, parts[0], sess)
			return
		case "advance":
			api.handleQuizStep(w, r, parts[0], sess, (*quiz.Runtime).Advance)
			return
		case "back":
			api.handleQuizStep(w, r, parts[0], sess, (*quiz.Runtime).Back)
			return
		case "submit":
			api.handleQuizSubmit(w, r, parts[0], sess)
			return
		}
	}
	writeError(w, http.StatusNotFound, "session not found")
}

func (api *ControlAPI) handleQuizSelect(w http.ResponseWriter, r *http.Request, id string, sess *quizSession) {
	var req V1QuizSelectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.runtime.Select(r.Context(), req.QuestionID, req.AnswerID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.sessionResponse(id, sess))
}

func (api *ControlAPI) handleQuizStep(w http.ResponseWriter, r *http.Request, id string, sess *quizSession, step func(*quiz.Runtime) error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := step(sess.runtime); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.sessionResponse(id, sess))
}

func (api *ControlAPI) handleQuizSubmit(w http.ResponseWriter, r *http.Request, id string, sess *quizSession) {
	var req V1QuizSubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	segment := sess.runtime.SegmentKey()
	if err := sess.runtime.Submit(r.Context(), req.Contact); err != nil {
		api.metrics.IncLeadSubmission(false)
		status := http.StatusConflict
		if errors.Is(err, quiz.ErrContactRequired) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	api.metrics.IncLeadSubmission(true)
	writeJSON(w, http.StatusOK, V1QuizSubmitResponse{
		Success:    true,
		LeadID:     sess.runtime.LeadID(),
		SegmentKey: segment,
	})
}

func (api *ControlAPI) sessionResponse(id string, sess *quizSession) V1QuizSessionResponse {
	stage := sess.runtime.Stage()
	resp := V1QuizSessionResponse{
		SessionID: id,
		QuizID:    sess.quiz.ID,
		Slug:      sess.quiz.Slug,
		Stage:     stageName(stage),
		Answers:   sess.runtime.Answers(),
		LeadID:    sess.runtime.LeadID(),
	}
	if stage.Kind == quiz.StageQuestion && stage.Question < len(sess.quiz.Questions) {
		question := sess.quiz.Questions[stage.Question]
		resp.Question = &V1Question{
			ID:      question.ID,
			Index:   stage.Question,
			Total:   len(sess.quiz.Questions),
			Text:    question.QuestionText,
			Answers: question.Answers,
		}
	}
	return resp
}

func stageName(stage quiz.Stage) string {
	switch stage.Kind {
	case quiz.StageIntro:
		return "intro"
	case quiz.StageQuestion:
		return "question"
	case quiz.StageContact:
		return "contact"
	default:
		return "complete"
	}
}

// leadSubmitter forwards leads upstream and keeps a local journal copy.
// The local copy is best-effort; losing it never fails the submission.
type leadSubmitter struct {
	quizzes quizapi.Store
	store   *db.Store
	logger  *log.Logger
}

func (s leadSubmitter) SubmitLead(ctx context.Context, lead models.Lead) (int, error) {
	id, err := s.quizzes.SubmitLead(ctx, lead)
	if err != nil {
		return 0, err
	}
	if s.store != nil {
		if err := s.store.RecordLead(ctx, lead, id); err != nil {
			s.logger.Printf("opsdeckd: record lead copy failed: %v", err)
		}
	}
	return id, nil
}

func (api *ControlAPI) leadSubmitter() quiz.LeadSubmitter {
	return leadSubmitter{quizzes: api.quizzes, store: api.store, logger: api.logger}
}

// --- Builder drafts ---

func (api *ControlAPI) handleDrafts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		drafts, err := api.store.ListDrafts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load drafts", err)
			return
		}
		resp := V1DraftListResponse{Drafts: make([]V1DraftSummary, 0, len(drafts))}
		for _, d := range drafts {
			resp.Drafts = append(resp.Drafts, V1DraftSummary{Slug: d.Slug, Title: d.Title, UpdatedAt: d.UpdatedAt})
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req V1DraftSaveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q := req.Quiz
		if strings.TrimSpace(q.Slug) == "" {
			q.Slug = quiz.Slugify(q.Title)
		}
		if q.Slug == "" {
			writeError(w, http.StatusBadRequest, "draft needs a slug or a title to derive one from")
			return
		}
		if err := api.store.SaveDraft(r.Context(), q); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save draft", err)
			return
		}
		writeJSON(w, http.StatusOK, V1DraftSummary{Slug: q.Slug, Title: q.Title, UpdatedAt: api.now()})
	default:
		writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
	}
}

func (api *ControlAPI) handleDraftBySlug(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/v1/drafts/")
	parts := strings.Split(strings.Trim(tail, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}
	slug := parts[0]

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			draft, err := api.store.GetDraft(r.Context(), slug)
			if err != nil {
				if errors.Is(err, db.ErrDraftNotFound) {
					writeError(w, http.StatusNotFound, "draft not found")
					return
				}
				writeError(w, http.StatusInternalServerError, "failed to load draft", err)
				return
			}
			writeJSON(w, http.StatusOK, draft.Quiz)
		case http.MethodDelete:
			if err := api.store.DeleteDraft(r.Context(), slug); err != nil {
				if errors.Is(err, db.ErrDraftNotFound) {
					writeError(w, http.StatusNotFound, "draft not found")
					return
				}
				writeError(w, http.StatusInternalServerError, "failed to delete draft", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodDelete})
		}
		return
	case 2:
		if parts[1] == "goals" {
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, []string{http.MethodPost})
				return
			}
			api.handleDraftGoals(w, r, slug)
			return
		}
	}
	writeError(w, http.StatusNotFound, "draft not found")
}

func (api *ControlAPI) handleDraftGoals(w http.ResponseWriter, r *http.Request, slug string) {
	draft, err := api.store.GetDraft(r.Context(), slug)
	if err != nil {
		if errors.Is(err, db.ErrDraftNotFound) {
			writeError(w, http.StatusNotFound, "draft not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load draft", err)
		return
	}
	if strings.TrimSpace(draft.Quiz.MetrikaID) == "" {
		writeError(w, http.StatusBadRequest, "draft has no metrika counter id")
		return
	}
	if err := quiz.NewBuilderFrom(draft.Quiz).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := api.quizzes.CreateGoals(r.Context(), draft.Quiz)
	if err != nil {
		writeError(w, http.StatusBadGateway, "goal creation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, V1GoalsResponse{result})
}

// --- Chat ---

func (api *ControlAPI) handleChat(w http.ResponseWriter, r *http.Request) {
	if api.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured; add a gemini api key to the secrets bundle")
		return
	}
	switch r.Method {
	case http.MethodPost:
		writeJSON(w, http.StatusCreated, V1ChatCreateResponse{ConversationID: uuid.NewString()})
	case http.MethodGet:
		var conversations []string
		if api.store != nil {
			var err error
			conversations, err = api.store.ListConversations(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to list conversations", err)
				return
			}
		}
		if conversations == nil {
			conversations = []string{}
		}
		writeJSON(w, http.StatusOK, V1ChatListResponse{Conversations: conversations})
	default:
		writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
	}
}

func (api *ControlAPI) handleChatByID(w http.ResponseWriter, r *http.Request) {
	if api.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured; add a gemini api key to the secrets bundle")
		return
	}
	tail := strings.TrimPrefix(r.URL.Path, "/v1/chat/")
	parts := strings.Split(strings.Trim(tail, "/"), "/")
	if len(parts) == 1 && parts[0] != "" {
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w, []string{http.MethodDelete})
			return
		}
		dropped, err := api.store.DeleteConversation(r.Context(), parts[0])
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to reset conversation", err)
			return
		}
		if dropped == 0 {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		api.chat.Reset(parts[0])
		writeJSON(w, http.StatusOK, V1ChatResetResponse{Deleted: dropped})
		return
	}
	if len(parts) != 2 || parts[0] == "" || parts[1] != "messages" {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	conversationID := parts[0]

	switch r.Method {
	case http.MethodGet:
		history, err := api.chat.History(conversationID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load history", err)
			return
		}
		if history == nil {
			history = []models.ChatMessage{}
		}
		writeJSON(w, http.StatusOK, V1ChatHistoryResponse{Messages: history})
	case http.MethodPost:
		var req V1ChatSendRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		reply, err := api.chat.Send(r.Context(), conversationID, req.Text)
		if err != nil {
			if errors.Is(err, gemini.ErrEmptyMessage) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusBadGateway, "chat generation failed", err)
			return
		}
		api.metrics.IncChatMessage(models.RoleUser)
		api.metrics.IncChatMessage(reply.Role)
		writeJSON(w, http.StatusOK, V1ChatSendResponse{Message: reply})
	default:
		writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
	}
}

// --- helpers ---

// recordOperation writes one journal row and reports metrics. Journal
// failures are logged, never surfaced: the operation itself already
// happened.
func (api *ControlAPI) recordOperation(ctx context.Context, op db.Operation, started time.Time, opErr error) {
	if opErr != nil && op.Message == "" {
		op.Message = opErr.Error()
	}
	api.metrics.ObserveOperation(op.Kind, op.OK, api.now().Sub(started))
	if api.store == nil {
		return
	}
	op.Time = api.now()
	if err := api.store.RecordOperation(ctx, op); err != nil {
		api.logger.Printf("opsdeckd: record operation %s failed: %v", op.Kind, err)
	}
}

func toV1Operations(ops []db.Operation) []V1Operation {
	out := make([]V1Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, V1Operation{
			ID:      op.ID,
			Time:    op.Time,
			Kind:    op.Kind,
			Subject: op.Subject,
			OK:      op.OK,
			Message: op.Message,
			Logs:    op.Logs,
		})
	}
	return out
}

func syncMessage(result cloud.SyncResult) string {
	return "updated " + strconv.Itoa(result.Updated) + ", deleted " + strconv.Itoa(result.Deleted)
}

func functionDeployMessage(result deploy.BatchResult) string {
	msg := "deployed " + strconv.Itoa(result.TotalDeployed) + " functions in " + strconv.Itoa(result.Batches) + " batches"
	if result.CapReached {
		msg += " (batch cap reached)"
	}
	return msg
}

func migrateMessage(result cloud.MigrationResult) string {
	names := append([]string(nil), result.MigrationsApplied...)
	sort.Strings(names)
	msg := "applied " + strconv.Itoa(result.AppliedCount) + ", skipped " + strconv.Itoa(result.SkippedCount)
	if len(names) > 0 {
		msg += ": " + strings.Join(names, ", ")
	}
	return msg
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string, err ...error) {
	payload := V1ErrorResponse{Error: msg}
	if len(err) > 0 {
		payload.Details = err[0].Error()
	}
	writeJSON(w, status, payload)
}

func writeMethodNotAllowed(w http.ResponseWriter, methods []string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
