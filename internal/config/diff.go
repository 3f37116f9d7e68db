package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// server changes require a restart and are surfaced as RestartRequired.
type ConfigDiff struct {
	// LogLevelChanged is true when the log verbosity changed; NewLogLevel
	// holds the value to apply.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VocabularyChanged is true when the custom vocabulary changed. The
	// transcript corrector can be rebuilt without touching live sessions.
	VocabularyChanged bool

	// PipelineChanged is true when detector tunings changed. They apply to
	// the next session; a running session keeps its original tuning.
	PipelineChanged bool

	// RestartRequired is true when provider, server, store, or archive
	// settings changed. These are wired at startup and cannot be swapped
	// under a live session.
	RestartRequired bool
}

// Empty reports whether no tracked change was detected.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VocabularyChanged && !d.PipelineChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Vocabulary, new.Vocabulary) {
		d.VocabularyChanged = true
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
	}

	if !providersEqual(old.Providers, new.Providers) ||
		old.Server.ListenAddr != new.Server.ListenAddr ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		old.Store != new.Store ||
		old.Archive != new.Archive {
		d.RestartRequired = true
	}

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) &&
		entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.Embeddings, b.Embeddings) &&
		slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, entryEqual)
}

// entryEqual compares provider entries field by field. Options may hold
// nested maps, so reflect.DeepEqual does the comparison there.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
