package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/dictaflow/pkg/types"
)

// ddlArchivedSegments returns the archive DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlArchivedSegments(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS archived_segments (
    project_id  TEXT         NOT NULL,
    segment_id  BIGINT       NOT NULL,
    text        TEXT         NOT NULL,
    uncertain   BOOLEAN      NOT NULL DEFAULT false,
    start_ns    BIGINT       NOT NULL DEFAULT 0,
    end_ns      BIGINT       NOT NULL DEFAULT 0,
    audio_file  TEXT         NOT NULL DEFAULT '',
    embedding   vector(%d),
    recorded_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (project_id, segment_id)
);

CREATE INDEX IF NOT EXISTS idx_archived_segments_project
    ON archived_segments (project_id);

CREATE INDEX IF NOT EXISTS idx_archived_segments_recorded_at
    ON archived_segments (recorded_at);

CREATE INDEX IF NOT EXISTS idx_archived_segments_fts
    ON archived_segments USING GIN (to_tsvector('english', text));

CREATE INDEX IF NOT EXISTS idx_archived_segments_embedding
    ON archived_segments USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the archive table and its indexes exist. It is
// idempotent and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for the
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlArchivedSegments(embeddingDimensions)); err != nil {
		return fmt.Errorf("archive migrate: %w", err)
	}
	return nil
}

// upsert writes one embedded segment row.
func (s *Store) upsert(ctx context.Context, projectID string, seg types.Segment, vec []float32) error {
	const q = `
		INSERT INTO archived_segments
		    (project_id, segment_id, text, uncertain, start_ns, end_ns, audio_file, embedding, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (project_id, segment_id) DO UPDATE SET
		    text        = EXCLUDED.text,
		    uncertain   = EXCLUDED.uncertain,
		    start_ns    = EXCLUDED.start_ns,
		    end_ns      = EXCLUDED.end_ns,
		    audio_file  = EXCLUDED.audio_file,
		    embedding   = EXCLUDED.embedding,
		    recorded_at = EXCLUDED.recorded_at`

	_, err := s.pool.Exec(ctx, q,
		projectID,
		seg.ID,
		seg.Text,
		seg.Uncertain,
		seg.Start.Nanoseconds(),
		seg.End.Nanoseconds(),
		seg.AudioFile,
		pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("archive: upsert segment %d of %q: %w", seg.ID, projectID, err)
	}
	return nil
}
