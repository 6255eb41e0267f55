// ABOUTME: Entry point for the sigil scanning service.
// ABOUTME: Handles configuration parsing, wiring, and the HTTP server lifecycle.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/catalog"
	"github.com/sigil-dev/sigil/internal/engine"
	"github.com/sigil-dev/sigil/internal/intel"
	"github.com/sigil-dev/sigil/internal/metrics"
	"github.com/sigil-dev/sigil/internal/quarantine"
	"github.com/sigil-dev/sigil/internal/reputation"
	"github.com/sigil-dev/sigil/internal/server"
)

// Config holds the service configuration.
type Config struct {
	Port            int
	DataDir         string
	RulesFile       string
	IntelURL        string
	IntelToken      string
	RefreshInterval time.Duration
	PushMetadata    bool
	Parallel        int
}

func main() {
	config := parseConfig()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	service, err := NewService(config, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create service")
	}

	if err := service.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start service")
	}
}

func parseConfig() *Config {
	config := &Config{}

	flag.IntVar(&config.Port, "port", 8750, "Port to serve the HTTP API on")
	flag.StringVar(&config.DataDir, "data-dir", defaultDataDir(), "Directory for quarantine state and cached signatures")
	flag.StringVar(&config.RulesFile, "rules-file", "", "Optional YAML file with additional detection rules")
	flag.StringVar(&config.IntelURL, "intel-url", "", "Base URL of the threat intelligence service (empty disables sync)")
	flag.StringVar(&config.IntelToken, "intel-token", "", "Bearer token for authenticated intelligence access")
	flag.DurationVar(&config.RefreshInterval, "refresh-interval", time.Hour, "Interval between signature refresh attempts")
	flag.BoolVar(&config.PushMetadata, "push-metadata", false, "Submit scan metadata to the intelligence service (requires token)")
	flag.IntVar(&config.Parallel, "parallel", 8, "Per-file scan concurrency")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if n, err := fmt.Sscanf(envPort, "%d", &config.Port); err != nil || n != 1 {
			log.Printf("Invalid PORT environment variable: %s", envPort)
		}
	}
	if envDataDir := os.Getenv("SIGIL_DATA_DIR"); envDataDir != "" {
		config.DataDir = envDataDir
	}
	if envRules := os.Getenv("SIGIL_RULES_FILE"); envRules != "" {
		config.RulesFile = envRules
	}
	if envURL := os.Getenv("SIGIL_INTEL_URL"); envURL != "" {
		config.IntelURL = envURL
	}
	if envToken := os.Getenv("SIGIL_INTEL_TOKEN"); envToken != "" {
		config.IntelToken = envToken
	}
	if envInterval := os.Getenv("SIGIL_REFRESH_INTERVAL"); envInterval != "" {
		if interval, err := time.ParseDuration(envInterval); err == nil {
			config.RefreshInterval = interval
		}
	}
	if envPush := os.Getenv("SIGIL_PUSH_METADATA"); envPush == "true" || envPush == "1" {
		config.PushMetadata = true
	}

	if config.PushMetadata && config.IntelToken == "" {
		log.Fatal("Metadata push requires an intelligence token")
	}

	return config
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sigil"
	}
	return filepath.Join(home, ".sigil")
}

// Service wires the engine, quarantine store, and HTTP surface together.
type Service struct {
	config   *Config
	logger   *logrus.Logger
	engine   *engine.Engine
	store    *quarantine.Store
	recorder *metrics.Recorder
	handler  *server.Handler
}

func NewService(config *Config, logger *logrus.Logger) (*Service, error) {
	logger.WithFields(logrus.Fields{
		"port":             config.Port,
		"data_dir":         config.DataDir,
		"intel_url":        config.IntelURL,
		"refresh_interval": config.RefreshInterval,
	}).Info("Initializing sigil")

	cat, err := buildCatalog(config.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule catalog: %w", err)
	}

	var signatures engine.SignatureSource
	var sink engine.MetadataSink
	if config.IntelURL != "" {
		client := intel.NewClient(config.IntelURL, config.IntelToken, logger)
		sigCache, err := intel.NewSignatureCache(client,
			filepath.Join(config.DataDir, "signatures.json"),
			intel.DefaultTTL, logger, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open signature cache: %w", err)
		}
		signatures = sigCache
		if config.IntelToken != "" {
			sink = client
		}
	}

	tracker := reputation.NewTracker(logger)
	e := engine.New(cat, signatures, sink, tracker, engine.Config{
		RefreshInterval: config.RefreshInterval,
		Parallel:        config.Parallel,
		PushMetadata:    config.PushMetadata,
	}, logger)

	store, err := quarantine.NewStore(
		filepath.Join(config.DataDir, "quarantine"),
		filepath.Join(config.DataDir, "workspace"), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open quarantine store: %w", err)
	}

	recorder := metrics.NewRecorder()
	return &Service{
		config:   config,
		logger:   logger,
		engine:   e,
		store:    store,
		recorder: recorder,
		handler:  server.NewHandler(e, store, recorder, logger),
	}, nil
}

// buildCatalog combines the builtin rules with an optional operator-supplied
// rules file. File rules override builtins with the same id.
func buildCatalog(rulesFile string) (*catalog.Catalog, error) {
	builtin, err := catalog.Builtin()
	if err != nil {
		return nil, err
	}
	if rulesFile == "" {
		return builtin, nil
	}

	extra, err := catalog.LoadRulesFile(rulesFile)
	if err != nil {
		return nil, err
	}
	overridden := make(map[string]bool, len(extra))
	for _, r := range extra {
		overridden[r.ID] = true
	}
	combined := extra
	for _, r := range builtin.Rules() {
		if !overridden[r.ID] {
			combined = append(combined, r)
		}
	}
	return catalog.New(combined)
}

func (s *Service) Start(ctx context.Context) error {
	go s.engine.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/scan", s.securityMiddleware(s.handler.HandleScan))
	mux.HandleFunc("/results", s.securityMiddleware(s.handler.HandleResults))
	mux.HandleFunc("/quarantine", s.securityMiddleware(s.handler.HandleQuarantineList))
	mux.HandleFunc("/quarantine/", s.securityMiddleware(s.handler.HandleQuarantineDecision))
	mux.HandleFunc("/metrics", s.securityMiddleware(metrics.NewHandler(s.recorder, catalogView{s.engine}, s.store, s.logger).ServeHTTP))
	mux.HandleFunc("/health", s.securityMiddleware(s.healthHandler))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// catalogView adapts the engine's swappable catalog to the metrics provider.
type catalogView struct {
	engine *engine.Engine
}

func (v catalogView) Version() int64 { return v.engine.Catalog().Version() }
func (v catalogView) Len() int       { return v.engine.Catalog().Len() }

func (s *Service) securityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; script-src 'none'; object-src 'none'; frame-ancestors 'none'")

		if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"remote_ip":  r.RemoteAddr,
			"user_agent": r.UserAgent(),
		}).Debug("HTTP request received")

		next(w, r)
	}
}

func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok"}`)
}
