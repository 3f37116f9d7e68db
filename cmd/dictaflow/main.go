// Command dictaflow is the main entry point for the Dictaflow dictation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/dictaflow/internal/archive"
	"github.com/MrWong99/dictaflow/internal/config"
	"github.com/MrWong99/dictaflow/internal/enrich"
	"github.com/MrWong99/dictaflow/internal/gateway"
	"github.com/MrWong99/dictaflow/internal/health"
	"github.com/MrWong99/dictaflow/internal/live"
	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/internal/resilience"
	filestore "github.com/MrWong99/dictaflow/internal/store/file"
	"github.com/MrWong99/dictaflow/internal/transcript"
	"github.com/MrWong99/dictaflow/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/dictaflow/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/dictaflow/pkg/provider/embeddings/openai"
	"github.com/MrWong99/dictaflow/pkg/provider/llm"
	"github.com/MrWong99/dictaflow/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/dictaflow/pkg/provider/llm/openai"
	"github.com/MrWong99/dictaflow/pkg/provider/stt"
	oaistt "github.com/MrWong99/dictaflow/pkg/provider/stt/openai"
	"github.com/MrWong99/dictaflow/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dictaflow: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dictaflow: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can change it at
	// runtime without rebuilding the handler.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	slog.Info("dictaflow starting",
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "dictaflow"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	transcriber, llmProvider, embedder, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if transcriber == nil {
		slog.Error("no STT provider configured; set providers.stt in the config")
		return 1
	}

	// ── Project store ─────────────────────────────────────────────────────────
	var projects *filestore.Store
	if cfg.Store.Root != "" {
		projects, err = filestore.New(cfg.Store.Root)
		if err != nil {
			slog.Error("failed to open project store", "root", cfg.Store.Root, "err", err)
			return 1
		}
		slog.Info("project store opened", "root", cfg.Store.Root)
	}

	// ── Transcript corrector ──────────────────────────────────────────────────
	// Held behind an atomic pointer so a vocabulary change in the config file
	// swaps the corrector without touching running sessions.
	var corrector atomic.Pointer[transcript.Corrector]
	if len(cfg.Vocabulary) > 0 {
		corrector.Store(transcript.New(cfg.Vocabulary))
		slog.Info("custom vocabulary loaded", "terms", len(cfg.Vocabulary))
	}
	correct := func(text string) string {
		if c := corrector.Load(); c != nil {
			return c.Correct(text)
		}
		return text
	}

	// ── Archive (optional) ────────────────────────────────────────────────────
	var segmentArchive *archive.Store
	if cfg.Archive.PostgresDSN != "" && embedder != nil {
		archiveOpts := []archive.Option{archive.WithMetrics(metrics)}
		if cfg.Archive.EmbeddingDimensions > 0 {
			archiveOpts = append(archiveOpts, archive.WithDimensions(cfg.Archive.EmbeddingDimensions))
		}
		segmentArchive, err = archive.NewStore(ctx, cfg.Archive.PostgresDSN, embedder, archiveOpts...)
		if err != nil {
			slog.Error("failed to open segment archive", "err", err)
			return 1
		}
		defer segmentArchive.Close()
		slog.Info("segment archive connected", "dimensions", cfg.Archive.EmbeddingDimensions)
	}

	// ── Enrichment service (optional) ─────────────────────────────────────────
	var enricher *enrich.Service
	if llmProvider != nil && projects != nil {
		enricher = enrich.NewService(llmProvider, projects, enrich.WithMetrics(metrics))
	}

	// ── Websocket gateway ─────────────────────────────────────────────────────
	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithPipelineOptions(
			live.WithMetrics(metrics),
			live.WithCorrector(correct),
		),
	}
	if projects != nil {
		gwOpts = append(gwOpts, gateway.WithProjects(projects), gateway.WithPrompts(projects))
	}
	if enricher != nil {
		gwOpts = append(gwOpts, gateway.WithEnricher(enricher))
	}
	if segmentArchive != nil {
		gwOpts = append(gwOpts, gateway.WithArchive(segmentArchive))
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		gwOpts = append(gwOpts, gateway.WithOriginPatterns(cfg.Server.AllowedOrigins...))
	}
	gw := gateway.NewHandler(cfg.Pipeline.LiveConfig(), transcriber, gwOpts...)

	// ── Health checks ─────────────────────────────────────────────────────────
	var checkers []health.Checker
	if projects != nil {
		checkers = append(checkers, health.StoreCheck(projects))
	}
	if segmentArchive != nil {
		checkers = append(checkers, health.PingCheck("archive", segmentArchive))
	}
	healthHandler := health.New(checkers...)

	// ── HTTP mux ──────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	gw.Register(mux)
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.Empty() {
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(d.NewLogLevel.SlogLevel())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.VocabularyChanged {
			if len(new.Vocabulary) > 0 {
				corrector.Store(transcript.New(new.Vocabulary))
			} else {
				corrector.Store(nil)
			}
			slog.Info("custom vocabulary reloaded", "terms", len(new.Vocabulary))
		}
		if d.PipelineChanged {
			gw.UpdatePipeline(new.Pipeline.LiveConfig())
			slog.Info("pipeline tuning updated; applies to the next session")
		}
		if d.RestartRequired {
			slog.Warn("provider, server, store, or archive settings changed; restart to apply")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, listenAddr)

	// ── Serve ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// Stop a running dictation session first so its queue drains and the
		// final manifest lands before the listener goes away.
		if err := gw.Controller().Stop(shutdownCtx); err != nil && !errors.Is(err, live.ErrSessionNotActive) {
			slog.Warn("stopping active session", "err", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Dictaflow. Used for startup logging.
var builtinProviders = map[string][]string{
	"stt":        {"whisper", "whisper-native", "openai"},
	"llm":        {"openai", "anyllm", "ollama", "gemini", "openrouter"},
	"embeddings": {"openai", "ollama"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// gemini and openrouter share the anyllm pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{"gemini", "openrouter"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(providerName, entry.Model, anyllmOptions(entry)...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// anyllm is the escape hatch: options.provider names any backend the
	// any-llm library supports.
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		providerName := optString(entry.Options, "provider")
		if providerName == "" {
			return nil, fmt.Errorf("llm provider %q needs options.provider", entry.Name)
		}
		return anyllm.New(providerName, entry.Model, anyllmOptions(entry)...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.Model != "" {
			opts = append(opts, oaembed.WithModel(entry.Model))
		}
		return oaembed.New(entry.APIKey, entry.BaseURL, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if entry.Model != "" {
			opts = append(opts, ollamaembed.WithModel(entry.Model))
		}
		return ollamaembed.New(entry.BaseURL, opts...), nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
// The STT result is wrapped in a circuit-breaking fallback group when
// stt_fallbacks are configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (stt.Transcriber, llm.Provider, embeddings.Provider, error) {
	var (
		transcriber stt.Transcriber
		llmProvider llm.Provider
		embedder    embeddings.Provider
	)

	if name := cfg.Providers.STT.Name; name != "" {
		t, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		transcriber = t
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if transcriber != nil && len(cfg.Providers.STTFallbacks) > 0 {
		group := resilience.NewSTTFallback(transcriber, cfg.Providers.STT.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.STTFallbacks {
			t, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, t)
			slog.Info("provider created", "kind", "stt-fallback", "name", entry.Name)
		}
		transcriber = group
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		llmProvider = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		embedder = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return transcriber, llmProvider, embedder, nil
}

// anyllmOptions converts the shared APIKey/BaseURL entry fields into any-llm
// client options.
func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Dictaflow — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	fmt.Printf("║  STT fallbacks   : %-19d ║\n", len(cfg.Providers.STTFallbacks))
	if cfg.Store.Root != "" {
		printField("Store", cfg.Store.Root)
	} else {
		printField("Store", "(in-memory only)")
	}
	if cfg.Archive.PostgresDSN != "" {
		printField("Archive", "postgres")
	} else {
		printField("Archive", "(disabled)")
	}
	fmt.Printf("║  Vocabulary      : %-19d ║\n", len(cfg.Vocabulary))
	printField("Listen addr", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printField(kind, value)
}

func printField(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
