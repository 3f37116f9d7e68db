package resilience

import (
	"context"
	"errors"
	"testing"

	embmock "github.com/MrWong99/dictaflow/pkg/provider/embeddings/mock"
)

func TestEmbeddingsFallback_PrimarySucceeds(t *testing.T) {
	primary := &embmock.Provider{Dim: 4}
	backup := &embmock.Provider{Dim: 4}

	f := NewEmbeddingsFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	vec, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("len(vec) = %d, want 4", len(vec))
	}
	if len(backup.Calls()) != 0 {
		t.Errorf("backup embedded %v, want no calls", backup.Calls())
	}
}

func TestEmbeddingsFallback_FailsOverToBackup(t *testing.T) {
	primary := &embmock.Provider{Dim: 4, Err: errTest}
	backup := &embmock.Provider{Dim: 4}

	f := NewEmbeddingsFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	vecs, err := f.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("len(vecs) = %d, want 2", len(vecs))
	}
	if calls := backup.Calls(); len(calls) != 2 {
		t.Errorf("backup calls = %v, want [a b]", calls)
	}
}

func TestEmbeddingsFallback_AllFail(t *testing.T) {
	primary := &embmock.Provider{Err: errTest}

	f := NewEmbeddingsFallback(primary, "only", FallbackConfig{})

	_, err := f.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestEmbeddingsFallback_MetadataFromPrimary(t *testing.T) {
	primary := &embmock.Provider{Dim: 16}
	f := NewEmbeddingsFallback(primary, "primary", FallbackConfig{})

	if got := f.Dimensions(); got != 16 {
		t.Errorf("Dimensions() = %d, want 16", got)
	}
	if got := f.ModelID(); got != "mock-embed" {
		t.Errorf("ModelID() = %q, want mock-embed", got)
	}
}
