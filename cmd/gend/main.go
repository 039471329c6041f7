package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gend/internal/admission"
	"gend/internal/catalog"
	"gend/internal/config"
	"gend/internal/download"
	"gend/internal/engine"
	"gend/internal/httpapi"
	"gend/internal/lifecycle"
	"gend/internal/routing"
	"gend/internal/session"
	"gend/pkg/types"
)

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envStr("GEND_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	configFile := flag.String("config", envStr("GEND_CONFIG", ""), "Optional config file (yaml/json/toml)")
	catalogFile := flag.String("catalog", envStr("GEND_CATALOG", ""), "Engine catalog file (yaml/json/toml)")
	artifactsDir := flag.String("artifacts-dir", envStr("GEND_ARTIFACTS_DIR", "~/models"), "Directory scanned for *.gguf local model artifacts")
	capacityBudget := flag.Int("capacity-budget", envInt("GEND_CAPACITY_BUDGET", 0), "Shared capacity budget in cost units (0=unlimited)")
	pinnedEngine := flag.String("pinned-engine", envStr("GEND_PINNED_ENGINE", ""), "Engine loaded at startup and exempt from eviction")
	defaultEngine := flag.String("default-engine", envStr("GEND_DEFAULT_ENGINE", ""), "Engine preferred on routing ties")
	maxQueueDepth := flag.Int("max-queue-depth", envInt("GEND_MAX_QUEUE_DEPTH", 0), "Per-engine admission queue depth (0=default)")
	logLevel := flag.String("log-level", envStr("GEND_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	var cfg config.Config
	if *configFile != "" {
		c, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = c
	}
	// Flags and env win over the config file.
	if cfg.Addr == "" || *addr != ":8080" {
		cfg.Addr = *addr
	}
	if *catalogFile != "" {
		cfg.CatalogFile = *catalogFile
	}
	if cfg.ArtifactsDir == "" || *artifactsDir != "~/models" {
		cfg.ArtifactsDir = *artifactsDir
	}
	if *capacityBudget != 0 {
		cfg.CapacityBudget = *capacityBudget
	}
	if *pinnedEngine != "" {
		cfg.PinnedEngine = *pinnedEngine
	}
	if *defaultEngine != "" {
		cfg.DefaultEngine = *defaultEngine
	}
	if *maxQueueDepth != 0 {
		cfg.MaxQueueDepth = *maxQueueDepth
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = cfg.ArtifactsDir
	}
	if cfg.DefaultEngine == "" {
		cfg.DefaultEngine = cfg.PinnedEngine
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("svc", "gend").Logger()

	// Build the catalog: explicit file first, then local artifact scan.
	var handles []types.EngineHandle
	if cfg.CatalogFile != "" {
		hs, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.CatalogFile).Msg("failed to load catalog")
		}
		handles = append(handles, hs...)
	}
	if cfg.ArtifactsDir != "" {
		hs, err := catalog.ScanDir(cfg.ArtifactsDir)
		if err != nil {
			logger.Warn().Err(err).Str("dir", cfg.ArtifactsDir).Msg("artifact scan failed")
		}
		handles = append(handles, hs...)
	}
	cat := catalog.New(handles...)

	reg := engine.NewRegistry()
	queue := admission.New(admission.Config{MaxDepth: cfg.MaxQueueDepth})

	runtime := engine.NewLlamaRuntime(cfg.LlamaCtx, cfg.LlamaThreads)
	lm := lifecycle.New(lifecycle.Config{
		Budget:       cfg.CapacityBudget,
		Pinned:       cfg.PinnedEngine,
		IdleWindow:   time.Duration(cfg.IdleUnloadSec) * time.Second,
		FailCooldown: time.Duration(cfg.FailCooldownSec) * time.Second,
		Runtime:      runtime,
		Handles:      cat.GetEngineHandle,
		QueueIdle:    queue.Idle,
		Publisher:    lifecycle.NewLogPublisher(logger),
	})

	registerEngines(cat, reg, lm, logger)

	sessions := session.NewManager(session.Config{
		Window:     cfg.SessionWindow,
		TitleLimit: cfg.SessionTitleLimit,
		IdleExpiry: time.Duration(cfg.SessionIdleSec) * time.Second,
	})

	downloads := download.NewManager(download.Config{
		Dir:     cfg.DownloadDir,
		Workers: cfg.DownloadWorkers,
		OnComplete: func(modelID, artifactPath string) {
			h := types.EngineHandle{
				ID:           modelID,
				Name:         modelID,
				Kind:         types.KindLocal,
				ArtifactPath: artifactPath,
				CapacityCost: catalog.EstimateCost(artifactPath),
			}
			cat.Register(h)
			reg.Register(lm.Engine(h))
			logger.Info().Str("engine", modelID).Str("path", artifactPath).Msg("artifact registered")
		},
	})

	dispatcher := routing.New(routing.Config{
		Catalog:       cat,
		Registry:      reg,
		Queue:         queue,
		Sessions:      sessions,
		Logger:        logger,
		DefaultEngine: cfg.DefaultEngine,
		CallTimeout:   time.Duration(cfg.CallTimeoutSec) * time.Second,
	})

	gw := &gateway{
		dispatcher: dispatcher,
		catalog:    cat,
		lifecycle:  lm,
		queue:      queue,
		sessions:   sessions,
		downloads:  downloads,
		pinned:     cfg.PinnedEngine,
		started:    time.Now(),
	}

	httpapi.SetLogger(logger)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins,
		splitCSV(envStr("GEND_CORS_METHODS", "GET,POST,OPTIONS")),
		splitCSV(envStr("GEND_CORS_HEADERS", "Content-Type,Authorization")))

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)

	lm.Start()
	sessions.Start()
	downloads.Start()

	if cfg.PinnedEngine != "" {
		go func() {
			if err := lm.Preload(baseCtx); err != nil {
				logger.Error().Err(err).Str("engine", cfg.PinnedEngine).Msg("pinned preload failed")
			}
		}()
	}

	mux := httpapi.NewMux(gw)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Int("engines", len(cat.ListEngines(""))).Msg("gend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	baseCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	downloads.Close()
	sessions.Stop()
	lm.Close()
}

// registerEngines wires every catalog handle to a runnable engine: local
// handles go through the lifecycle manager, remote handles through the
// provider HTTP adapter.
func registerEngines(cat *catalog.Catalog, reg *engine.Registry, lm *lifecycle.Manager, logger zerolog.Logger) {
	for _, h := range cat.ListEngines("") {
		if h.Kind == types.KindLocal {
			reg.Register(lm.Engine(h))
			continue
		}
		baseURL, apiKey := providerCreds(h.Provider)
		if baseURL == "" {
			logger.Warn().Str("engine", h.ID).Str("provider", h.Provider).Msg("no provider endpoint configured, engine not runnable")
			continue
		}
		p := engine.NewHTTPProvider(baseURL, apiKey, nil)
		reg.Register(engine.NewRemote(h, p.Invoke(h.ID)))
	}
}

// providerCreds resolves GEND_PROVIDER_<NAME>_URL / _KEY for a provider.
func providerCreds(provider string) (baseURL, apiKey string) {
	if provider == "" {
		return "", ""
	}
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(provider))
	return os.Getenv("GEND_PROVIDER_" + name + "_URL"), os.Getenv("GEND_PROVIDER_" + name + "_KEY")
}
