// Package archive provides an optional PostgreSQL store of finished
// dictation segments for cross-project search.
//
// Each archived segment carries both a pgvector embedding (for semantic
// search via cosine distance) and a full-text index (for keyword search).
// The pgvector extension must be available in the target database;
// [Migrate] installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	ar, err := archive.NewStore(ctx, dsn, embedder)
//	if err != nil { … }
//	defer ar.Close()
//
//	_ = ar.IndexSegment(ctx, "notes", segment)
//	hits, _ := ar.SemanticSearch(ctx, "the database migration plan", 5, archive.Filter{})
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/pkg/provider/embeddings"
	"github.com/MrWong99/dictaflow/pkg/types"
)

// Entry is one archived segment together with its project of origin.
type Entry struct {
	// ProjectID names the project the segment was dictated into.
	ProjectID string

	// Segment is the transcribed segment as stored in the project manifest.
	Segment types.Segment

	// RecordedAt is the wall-clock time the segment was archived.
	RecordedAt time.Time
}

// Result is a semantic search hit.
type Result struct {
	Entry Entry

	// Distance is the cosine distance between the query embedding and the
	// archived segment; smaller is more similar.
	Distance float64
}

// Filter narrows archive searches. Zero-value fields are ignored.
type Filter struct {
	// ProjectID restricts results to a single project.
	ProjectID string

	// After/Before bound the archival time.
	After  time.Time
	Before time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics sets the metrics sink. A nil sink disables recording.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

// WithDimensions overrides the embedding column dimension. Default: the
// embedder's own Dimensions(). Changing this after the first migration
// requires a manual schema change.
func WithDimensions(d int) Option {
	return func(s *Store) { s.dimensions = d }
}

// Store is the PostgreSQL-backed segment archive. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool       *pgxpool.Pool
	embedder   embeddings.Provider
	logger     *slog.Logger
	metrics    *observe.Metrics
	dimensions int
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to
// ensure the segment table and its indexes exist.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider, opts ...Option) (*Store, error) {
	s := &Store{
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dimensions <= 0 {
		s.dimensions = embedder.Dimensions()
	}
	if s.dimensions <= 0 {
		return nil, fmt.Errorf("archive: embedding dimension unknown for model %q", embedder.ModelID())
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}

	if err := Migrate(ctx, pool, s.dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}

	s.pool = pool
	return s, nil
}

// Ping verifies the database connection. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// IndexSegment embeds the segment text and upserts it into the archive.
// Re-archiving the same (project, segment) pair replaces the previous row.
func (s *Store) IndexSegment(ctx context.Context, projectID string, seg types.Segment) error {
	start := time.Now()
	vec, err := s.embedder.Embed(ctx, seg.Text)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "embeddings", "embed")
		return fmt.Errorf("archive: embed segment %d: %w", seg.ID, err)
	}
	s.metrics.RecordEmbedding(ctx, time.Since(start).Seconds())

	return s.upsert(ctx, projectID, seg, vec)
}

// IndexProject archives all segments of a project in one batch embedding
// call. Segments with empty text are skipped.
func (s *Store) IndexProject(ctx context.Context, projectID string, segments []types.Segment) error {
	kept := make([]types.Segment, 0, len(segments))
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		kept = append(kept, seg)
		texts = append(texts, seg.Text)
	}
	if len(kept) == 0 {
		return nil
	}

	start := time.Now()
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "embeddings", "embed_batch")
		return fmt.Errorf("archive: embed project %q: %w", projectID, err)
	}
	s.metrics.RecordEmbedding(ctx, time.Since(start).Seconds())
	if len(vecs) != len(kept) {
		return fmt.Errorf("archive: embedder returned %d vectors for %d texts", len(vecs), len(kept))
	}

	for i, seg := range kept {
		if err := s.upsert(ctx, projectID, seg, vecs[i]); err != nil {
			return err
		}
	}
	s.logger.Info("project archived", "project", projectID, "segments", len(kept))
	return nil
}

// DeleteProject removes all archived segments of a project.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM archived_segments WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("archive: delete project %q: %w", projectID, err)
	}
	return nil
}
