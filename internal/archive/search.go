package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/dictaflow/pkg/types"
)

// SemanticSearch embeds the query and returns the topK archived segments
// closest to it by cosine distance, most similar first, optionally narrowed
// by filter.
func (s *Store) SemanticSearch(ctx context.Context, query string, topK int, filter Filter) ([]Result, error) {
	start := time.Now()
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "embeddings", "embed")
		return nil, fmt.Errorf("archive: embed query: %w", err)
	}
	s.metrics.RecordEmbedding(ctx, time.Since(start).Seconds())

	args := []any{pgvector.NewVector(queryVec)} // $1 = query vector
	where := filterConditions(filter, &args)

	args = append(args, topK)
	q := fmt.Sprintf(`
		SELECT project_id, segment_id, text, uncertain, start_ns, end_ns, audio_file, recorded_at,
		       embedding <=> $1 AS distance
		FROM   archived_segments
		%s
		ORDER  BY distance
		LIMIT  $%d`, where, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: semantic search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var (
			r       Result
			startNS int64
			endNS   int64
		)
		if err := row.Scan(
			&r.Entry.ProjectID,
			&r.Entry.Segment.ID,
			&r.Entry.Segment.Text,
			&r.Entry.Segment.Uncertain,
			&startNS,
			&endNS,
			&r.Entry.Segment.AudioFile,
			&r.Entry.RecordedAt,
			&r.Distance,
		); err != nil {
			return Result{}, err
		}
		r.Entry.Segment.Start = time.Duration(startNS)
		r.Entry.Segment.End = time.Duration(endNS)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// TextSearch performs a PostgreSQL full-text search over archived segment
// text, newest first. The query is passed to plainto_tsquery so no special
// operator syntax is required.
func (s *Store) TextSearch(ctx context.Context, query string, limit int, filter Filter) ([]Entry, error) {
	args := []any{query} // $1 = FTS query string
	where := filterConditions(filter, &args)
	if where == "" {
		where = "WHERE to_tsvector('english', text) @@ plainto_tsquery('english', $1)"
	} else {
		where += "\n  AND  to_tsvector('english', text) @@ plainto_tsquery('english', $1)"
	}

	q := `SELECT project_id, segment_id, text, uncertain, start_ns, end_ns, audio_file, recorded_at
FROM   archived_segments
` + where + `
ORDER  BY recorded_at DESC`

	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: text search: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e       Entry
			startNS int64
			endNS   int64
		)
		if err := row.Scan(
			&e.ProjectID,
			&e.Segment.ID,
			&e.Segment.Text,
			&e.Segment.Uncertain,
			&startNS,
			&endNS,
			&e.Segment.AudioFile,
			&e.RecordedAt,
		); err != nil {
			return Entry{}, err
		}
		e.Segment.Start = time.Duration(startNS)
		e.Segment.End = time.Duration(endNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// ProjectSegments returns all archived segments of a project in segment
// order. Useful for verifying an archive after IndexProject.
func (s *Store) ProjectSegments(ctx context.Context, projectID string) ([]types.Segment, error) {
	const q = `
		SELECT segment_id, text, uncertain, start_ns, end_ns, audio_file
		FROM   archived_segments
		WHERE  project_id = $1
		ORDER  BY segment_id`

	rows, err := s.pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("archive: project segments: %w", err)
	}

	segs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Segment, error) {
		var (
			seg     types.Segment
			startNS int64
			endNS   int64
		)
		if err := row.Scan(&seg.ID, &seg.Text, &seg.Uncertain, &startNS, &endNS, &seg.AudioFile); err != nil {
			return types.Segment{}, err
		}
		seg.Start = time.Duration(startNS)
		seg.End = time.Duration(endNS)
		return seg, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if segs == nil {
		segs = []types.Segment{}
	}
	return segs, nil
}

// filterConditions renders filter into a WHERE clause, appending bind
// arguments to args. Returns "" when the filter is empty.
func filterConditions(filter Filter, args *[]any) string {
	next := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	var conditions []string
	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = "+next(filter.ProjectID))
	}
	if !filter.After.IsZero() {
		conditions = append(conditions, "recorded_at > "+next(filter.After))
	}
	if !filter.Before.IsZero() {
		conditions = append(conditions, "recorded_at < "+next(filter.Before))
	}
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, "\n  AND  ")
}
