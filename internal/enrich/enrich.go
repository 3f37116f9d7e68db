// Package enrich applies user-defined prompts to finished transcripts
// through an LLM provider.
//
// A prompt is a stored instruction ("Summarize as meeting minutes",
// "Rewrite as a formal email") that becomes the system prompt of a single
// completion call; the transcript itself is sent as the user message. The
// service resolves prompts by name from the prompt store so the UI only
// ever refers to them by name.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/internal/store"
	"github.com/MrWong99/dictaflow/pkg/provider/llm"
)

// ErrEmptyTranscript is returned when there is no text to enrich.
var ErrEmptyTranscript = errors.New("enrich: transcript is empty")

// ErrEmptyResponse is returned when the LLM replies with no content.
var ErrEmptyResponse = errors.New("enrich: provider returned empty response")

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink. A nil sink disables recording.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithTemperature sets the completion temperature. Default: 0, meaning the
// provider's default.
func WithTemperature(temperature float64) Option {
	return func(s *Service) {
		s.temperature = temperature
	}
}

// WithMaxTokens caps the completion length. Default: 0, meaning the
// provider's default.
func WithMaxTokens(maxTokens int) Option {
	return func(s *Service) {
		s.maxTokens = maxTokens
	}
}

// Service turns a transcript plus a named prompt into enriched text.
// It is safe for concurrent use.
type Service struct {
	provider    llm.Provider
	prompts     store.PromptStore
	logger      *slog.Logger
	metrics     *observe.Metrics
	temperature float64
	maxTokens   int
}

// NewService creates an enrichment service backed by the given LLM provider
// and prompt store.
func NewService(provider llm.Provider, prompts store.PromptStore, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		prompts:  prompts,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich resolves promptName from the prompt store and applies it to
// transcriptText. Returns store.ErrNotFound (wrapped) when the prompt does
// not exist.
func (s *Service) Enrich(ctx context.Context, promptName, transcriptText string) (string, error) {
	prompt, err := s.prompts.GetPrompt(ctx, promptName)
	if err != nil {
		return "", fmt.Errorf("enrich: resolving prompt %q: %w", promptName, err)
	}
	return s.Apply(ctx, prompt.Text, transcriptText)
}

// Apply sends transcriptText through the LLM with promptText as the system
// prompt and returns the model's reply with surrounding whitespace trimmed.
func (s *Service) Apply(ctx context.Context, promptText, transcriptText string) (string, error) {
	if strings.TrimSpace(transcriptText) == "" {
		return "", ErrEmptyTranscript
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: promptText,
		Messages: []llm.Message{
			{Role: "user", Content: transcriptText},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", "completion")
		return "", fmt.Errorf("enrich: completion failed: %w", err)
	}
	s.metrics.RecordEnrichment(ctx, elapsed.Seconds())
	s.metrics.RecordProviderRequest(ctx, "llm", "completion", "ok")

	result := strings.TrimSpace(resp.Content)
	if result == "" {
		return "", ErrEmptyResponse
	}
	s.logger.Debug("transcript enriched",
		"input_chars", len(transcriptText),
		"output_chars", len(result),
		"duration", elapsed,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return result, nil
}
