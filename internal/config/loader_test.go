package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/config"
)

const fullConfigYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
pipeline:
  idle_threshold_ms: 2000
  silence_threshold: 350
  min_chunks: 10
  min_blob_bytes: 2048
  tick_interval_ms: 50
  seal_wait_ms: 3000
  language: de
providers:
  stt:
    name: whisper
    base_url: http://localhost:8178
  stt_fallbacks:
    - name: openai
      api_key: sk-fallback
      model: whisper-1
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  embeddings:
    name: ollama
    model: nomic-embed-text
store:
  root: /var/lib/dictaflow
archive:
  postgres_dsn: postgres://localhost:5432/dictaflow
  embedding_dimensions: 768
vocabulary:
  - Dictaflow
  - Eldrinax
`

func TestLoadFromReaderFullConfig(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(fullConfigYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Providers.STT.Name != "whisper" || cfg.Providers.STT.BaseURL != "http://localhost:8178" {
		t.Errorf("providers.stt = %+v, want whisper at localhost:8178", cfg.Providers.STT)
	}
	if cfg.Providers.LLM.APIKey != "sk-test" {
		t.Errorf("providers.llm.api_key = %q, want sk-test", cfg.Providers.LLM.APIKey)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].Name != "openai" {
		t.Errorf("providers.stt_fallbacks = %+v, want one openai entry", cfg.Providers.STTFallbacks)
	}
	if cfg.Store.Root != "/var/lib/dictaflow" {
		t.Errorf("store.root = %q", cfg.Store.Root)
	}
	if cfg.Archive.EmbeddingDimensions != 768 {
		t.Errorf("archive.embedding_dimensions = %d, want 768", cfg.Archive.EmbeddingDimensions)
	}
	if len(cfg.Vocabulary) != 2 || cfg.Vocabulary[0] != "Dictaflow" {
		t.Errorf("vocabulary = %v, want [Dictaflow Eldrinax]", cfg.Vocabulary)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":8080\"\n"))
	if err == nil {
		t.Fatal("LoadFromReader() accepted a misspelled field, want error")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
pipeline:
  idle_threshold_ms: -1
  min_chunks: -5
archive:
  postgres_dsn: postgres://localhost/dictaflow
`))
	if err == nil {
		t.Fatal("LoadFromReader() accepted an invalid config, want error")
	}
	for _, want := range []string{
		"server.log_level",
		"pipeline.idle_threshold_ms",
		"pipeline.min_chunks",
		"archive.postgres_dsn",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateRejectsBlankVocabularyEntry(t *testing.T) {
	err := config.Validate(&config.Config{Vocabulary: []string{"Dictaflow", "  "}})
	if err == nil || !strings.Contains(err.Error(), "vocabulary[1]") {
		t.Errorf("Validate() error = %v, want blank vocabulary entry flagged", err)
	}
}

func TestValidateRejectsFallbacksWithoutPrimarySTT(t *testing.T) {
	err := config.Validate(&config.Config{
		Providers: config.ProvidersConfig{
			STTFallbacks: []config.ProviderEntry{{Name: "openai"}},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "providers.stt_fallbacks") {
		t.Errorf("Validate() error = %v, want fallbacks-without-primary flagged", err)
	}
}

func TestValidateRejectsUnnamedFallback(t *testing.T) {
	err := config.Validate(&config.Config{
		Providers: config.ProvidersConfig{
			STT:          config.ProviderEntry{Name: "whisper"},
			STTFallbacks: []config.ProviderEntry{{Model: "whisper-1"}},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "stt_fallbacks[0].name") {
		t.Errorf("Validate() error = %v, want unnamed fallback flagged", err)
	}
}

func TestValidateRejectsIncompleteTLS(t *testing.T) {
	err := config.Validate(&config.Config{
		Server: config.ServerConfig{TLS: &config.TLSConfig{CertFile: "cert.pem"}},
	})
	if err == nil || !strings.Contains(err.Error(), "server.tls.key_file") {
		t.Errorf("Validate() error = %v, want missing key_file flagged", err)
	}
}

func TestLiveConfigOverlaysDefaults(t *testing.T) {
	p := config.PipelineConfig{
		IdleThresholdMS: 2000,
		Language:        "de",
	}
	cfg := p.LiveConfig()

	if cfg.IdleThreshold != 2*time.Second {
		t.Errorf("IdleThreshold = %v, want 2s", cfg.IdleThreshold)
	}
	if cfg.Language != "de" {
		t.Errorf("Language = %q, want de", cfg.Language)
	}
	// Unset fields keep their defaults.
	if cfg.MinChunks != 15 {
		t.Errorf("MinChunks = %d, want default 15", cfg.MinChunks)
	}
	if cfg.TickInterval != 33*time.Millisecond {
		t.Errorf("TickInterval = %v, want default 33ms", cfg.TickInterval)
	}
}
