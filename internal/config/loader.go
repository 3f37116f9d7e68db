package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native", "openai"},
	"llm":        {"openai", "anyllm", "ollama", "gemini", "openrouter"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Pipeline — negative tunings are always mistakes; zero means default.
	if cfg.Pipeline.IdleThresholdMS < 0 {
		errs = append(errs, fmt.Errorf("pipeline.idle_threshold_ms %d must not be negative", cfg.Pipeline.IdleThresholdMS))
	}
	if cfg.Pipeline.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("pipeline.silence_threshold %.2f must not be negative", cfg.Pipeline.SilenceThreshold))
	}
	if cfg.Pipeline.MinChunks < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_chunks %d must not be negative", cfg.Pipeline.MinChunks))
	}
	if cfg.Pipeline.MinBlobBytes < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_blob_bytes %d must not be negative", cfg.Pipeline.MinBlobBytes))
	}
	if cfg.Pipeline.TickIntervalMS < 0 {
		errs = append(errs, fmt.Errorf("pipeline.tick_interval_ms %d must not be negative", cfg.Pipeline.TickIntervalMS))
	}
	if cfg.Pipeline.SealWaitMS < 0 {
		errs = append(errs, fmt.Errorf("pipeline.seal_wait_ms %d must not be negative", cfg.Pipeline.SealWaitMS))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for i, entry := range cfg.Providers.STTFallbacks {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", entry.Name)
	}
	if len(cfg.Providers.STTFallbacks) > 0 && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallbacks is set but providers.stt is not configured"))
	}

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; dictation sessions cannot transcribe")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; transcript enrichment will not be available")
	}

	// Archive ↔ embeddings cross-validation
	if cfg.Archive.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("archive.postgres_dsn is set but providers.embeddings is not configured; semantic search needs embeddings"))
	}
	if cfg.Archive.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("archive.embedding_dimensions %d must not be negative", cfg.Archive.EmbeddingDimensions))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Archive.PostgresDSN != "" && cfg.Archive.EmbeddingDimensions == 0 {
		slog.Warn("archive.embedding_dimensions is not set; the archive will probe the embeddings provider at startup")
	}

	// Store availability
	if cfg.Store.Root == "" {
		slog.Warn("store.root is empty; sessions will be in-memory only and nothing is persisted")
	}

	// Vocabulary
	for i, term := range cfg.Vocabulary {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Errorf("vocabulary[%d] is blank", i))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
