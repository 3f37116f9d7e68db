package enrich_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/dictaflow/internal/enrich"
	"github.com/MrWong99/dictaflow/internal/store"
	storemock "github.com/MrWong99/dictaflow/internal/store/mock"
	llmmock "github.com/MrWong99/dictaflow/pkg/provider/llm/mock"
	"github.com/MrWong99/dictaflow/pkg/types"
)

func newService(t *testing.T, provider *llmmock.Provider, opts ...enrich.Option) (*enrich.Service, *storemock.PromptStore) {
	t.Helper()
	prompts := &storemock.PromptStore{}
	if err := prompts.SavePrompt(context.Background(), types.Prompt{
		Name: "minutes",
		Text: "Rewrite the transcript as meeting minutes.",
	}); err != nil {
		t.Fatalf("SavePrompt() error = %v", err)
	}
	return enrich.NewService(provider, prompts, opts...), prompts
}

func TestEnrichUsesStoredPromptAsSystemPrompt(t *testing.T) {
	provider := &llmmock.Provider{Responses: []string{"  # Minutes\n- we met  "}}
	svc, _ := newService(t, provider)

	got, err := svc.Enrich(context.Background(), "minutes", "we met and talked")
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if want := "# Minutes\n- we met"; got != want {
		t.Errorf("Enrich() = %q, want %q", got, want)
	}

	if len(provider.Requests) != 1 {
		t.Fatalf("provider received %d requests, want 1", len(provider.Requests))
	}
	req := provider.Requests[0]
	if req.SystemPrompt != "Rewrite the transcript as meeting minutes." {
		t.Errorf("system prompt = %q, want stored prompt text", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "we met and talked" {
		t.Errorf("messages = %+v, want single user message with the transcript", req.Messages)
	}
}

func TestEnrichUnknownPrompt(t *testing.T) {
	provider := &llmmock.Provider{Default: "unused"}
	svc, _ := newService(t, provider)

	_, err := svc.Enrich(context.Background(), "missing", "some text")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Enrich() error = %v, want store.ErrNotFound", err)
	}
	if provider.CallCount() != 0 {
		t.Errorf("provider called %d times, want 0", provider.CallCount())
	}
}

func TestApplyRejectsEmptyTranscript(t *testing.T) {
	provider := &llmmock.Provider{Default: "unused"}
	svc, _ := newService(t, provider)

	_, err := svc.Apply(context.Background(), "any prompt", "   \n\t ")
	if !errors.Is(err, enrich.ErrEmptyTranscript) {
		t.Errorf("Apply() error = %v, want ErrEmptyTranscript", err)
	}
	if provider.CallCount() != 0 {
		t.Errorf("provider called %d times, want 0", provider.CallCount())
	}
}

func TestApplyWrapsProviderError(t *testing.T) {
	boom := errors.New("backend unavailable")
	provider := &llmmock.Provider{Err: boom}
	svc, _ := newService(t, provider)

	_, err := svc.Apply(context.Background(), "prompt", "transcript")
	if !errors.Is(err, boom) {
		t.Errorf("Apply() error = %v, want wrapped %v", err, boom)
	}
}

func TestApplyRejectsEmptyResponse(t *testing.T) {
	provider := &llmmock.Provider{Responses: []string{"   "}}
	svc, _ := newService(t, provider)

	_, err := svc.Apply(context.Background(), "prompt", "transcript")
	if !errors.Is(err, enrich.ErrEmptyResponse) {
		t.Errorf("Apply() error = %v, want ErrEmptyResponse", err)
	}
}

func TestApplyForwardsCompletionSettings(t *testing.T) {
	provider := &llmmock.Provider{Default: "ok"}
	svc, _ := newService(t, provider,
		enrich.WithTemperature(0.3),
		enrich.WithMaxTokens(512),
	)

	if _, err := svc.Apply(context.Background(), "prompt", "transcript"); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	req := provider.Requests[0]
	if req.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", req.Temperature)
	}
	if req.MaxTokens != 512 {
		t.Errorf("max tokens = %d, want 512", req.MaxTokens)
	}
}
