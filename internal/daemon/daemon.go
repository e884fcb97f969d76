// Package daemon serves the opsdeckd local control API: the deploy
// dashboard, quiz runtime and builder, and the Gemini chat, all behind a
// loopback-only HTTP listener. The daemon is the single holder of
// credentials; clients never see the Gemini key or deploy secrets.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/internal/cloud"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/db"
	"github.com/opsdeck/opsdeck/internal/deploy"
	"github.com/opsdeck/opsdeck/internal/gemini"
	"github.com/opsdeck/opsdeck/internal/metrika"
	"github.com/opsdeck/opsdeck/internal/quizapi"
	"github.com/opsdeck/opsdeck/internal/secrets"
)

const shutdownTimeout = 5 * time.Second

// Service wires the control listener and the optional metrics listener.
type Service struct {
	cfg             config.Config
	store           *db.Store
	deploys         *deploy.Service
	listener        net.Listener
	metricsListener net.Listener
	server          *http.Server
	metricsServer   *http.Server
	logger          *log.Logger
}

// Run loads endpoints and secrets, binds listeners, and serves until ctx
// is canceled.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	endpoints, err := config.LoadEndpoints(cfg)
	if err != nil {
		return err
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	service, err := NewService(ctx, cfg, endpoints, store)
	if err != nil {
		_ = store.Close()
		return err
	}
	return service.Serve(ctx)
}

// NewService constructs a service with bound listeners.
func NewService(ctx context.Context, cfg config.Config, endpoints config.Endpoints, store *db.Store) (*Service, error) {
	logger := log.Default()

	bundle := loadBundle(cfg, logger)
	backend := cloud.NewAPIBackend(endpoints)
	policy := deploy.Policy{BatchSize: cfg.DeployBatchSize, MaxBatches: cfg.DeployMaxBatches}
	deploys := deploy.NewService(backend, policy, bundle.SecretLines(), logger)
	quizzes := quizapi.NewClient(endpoints)
	goals := metrika.NewReporter(logger)

	chat, err := buildChat(ctx, cfg, bundle, store, logger)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	metricsEnabled := strings.TrimSpace(cfg.MetricsListen) != ""

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	NewControlAPI(store, deploys, quizzes, goals, chat, logger).
		WithMetrics(metrics).
		WithMetricsEnabled(metricsEnabled).
		Register(mux)

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	var metricsListener net.Listener
	var metricsServer *http.Server
	if metricsEnabled {
		metricsListener, err = net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsListen, err)
		}
		metricsMux := http.NewServeMux()
		metricsMux.HandleFunc("/healthz", healthHandler)
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		}
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return &Service{
		cfg:             cfg,
		store:           store,
		deploys:         deploys,
		listener:        listener,
		metricsListener: metricsListener,
		server:          server,
		metricsServer:   metricsServer,
		logger:          logger,
	}, nil
}

// Serve blocks until shutdown or a listener error occurs. The cloud VM
// list is reconciled once at startup; a failed sync is logged, not fatal.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.Printf("opsdeckd: listening on %s", s.cfg.Listen)
	if s.metricsListener != nil {
		s.logger.Printf("opsdeckd: metrics on %s", s.cfg.MetricsListen)
	}
	s.startupSync(ctx)

	servers := 1
	errCh := make(chan error, 2)
	go func() { errCh <- s.server.Serve(s.listener) }()
	if s.metricsServer != nil {
		servers = 2
		go func() { errCh <- s.metricsServer.Serve(s.metricsListener) }()
	}

	remaining := servers
	var serveErr error

	select {
	case <-ctx.Done():
		// graceful shutdown
	case err := <-errCh:
		remaining--
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	s.shutdown()
	for i := 0; i < remaining; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) && serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.server.Shutdown(ctx)
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *Service) startupSync(ctx context.Context) {
	result, err := s.deploys.Sync(ctx)
	op := db.Operation{
		Kind:    opVMSync,
		Time:    time.Now(),
		OK:      err == nil,
		Message: syncMessage(result),
		Logs:    result.Logs,
	}
	if err != nil {
		op.Message = err.Error()
		s.logger.Printf("opsdeckd: startup vm sync failed: %v", err)
	} else {
		s.logger.Printf("opsdeckd: startup vm sync: %s", op.Message)
	}
	if recordErr := s.store.RecordOperation(ctx, op); recordErr != nil {
		s.logger.Printf("opsdeckd: record startup sync failed: %v", recordErr)
	}
}

// loadBundle reads the secrets bundle. A missing or unreadable bundle
// degrades the daemon (no chat, no deploy secrets) instead of stopping it.
func loadBundle(cfg config.Config, logger *log.Logger) secrets.Bundle {
	store := secrets.Store{
		Dir:        cfg.SecretsDir,
		AgeKeyPath: cfg.SecretsAgeKey,
	}
	bundle, err := store.Load(cfg.SecretsBundle)
	if err != nil {
		logger.Printf("opsdeckd: secrets bundle %q unavailable: %v", cfg.SecretsBundle, err)
		return secrets.Bundle{}
	}
	return bundle
}

func buildChat(ctx context.Context, cfg config.Config, bundle secrets.Bundle, store *db.Store, logger *log.Logger) (*gemini.Chat, error) {
	if strings.TrimSpace(bundle.Gemini.APIKey) == "" {
		logger.Printf("opsdeckd: gemini api key missing; chat disabled")
		return nil, nil
	}
	client, err := gemini.NewClient(ctx, bundle.Gemini.APIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	return gemini.NewChat(client, store), nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
