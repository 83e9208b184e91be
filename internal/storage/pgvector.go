package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PgvectorStorage implements Index on a PostgreSQL table with the vector
// extension. The table plays the role of the collection.
type PgvectorStorage struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

// NewPgvectorStorage connects to PostgreSQL, retrying the first ping with
// the same backoff policy as the Qdrant backend.
func NewPgvectorStorage(ctx context.Context, connStr, table string, dimension int) (*PgvectorStorage, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	s := &PgvectorStorage{pool: pool, table: table, dimension: dimension}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(b, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrVectorStoreUnreachable, err)
	}
	return s, nil
}

func (s *PgvectorStorage) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (s *PgvectorStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgvectorStorage) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			source text NOT NULL,
			department text NOT NULL,
			generation text NOT NULL,
			chunk_index integer NOT NULL,
			text text NOT NULL,
			uploaded_at timestamptz NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_generation_idx ON %s (generation)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure table: %w", err)
		}
	}
	return nil
}

func (s *PgvectorStorage) exists(ctx context.Context) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.table).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check table: %w", err)
	}
	return ok, nil
}

// Upsert writes all points in one transaction.
func (s *PgvectorStorage) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := checkDimensions(points, s.dimension); err != nil {
		return err
	}

	q := fmt.Sprintf(`INSERT INTO %s
		(id, source, department, generation, chunk_index, text, uploaded_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			department = EXCLUDED.department,
			generation = EXCLUDED.generation,
			chunk_index = EXCLUDED.chunk_index,
			text = EXCLUDED.text,
			uploaded_at = EXCLUDED.uploaded_at,
			embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(q, p.ID, p.Source, p.Department, p.Generation, p.ChunkIndex, p.Text,
			p.UploadedAt.UTC(), pgvector.NewVector(p.Vector))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := range points {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to upsert point %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PgvectorStorage) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if len(req.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(req.Vector), s.dimension)
	}
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return nil, err
	}

	department := req.Department
	if IsWildcardDepartment(department) {
		department = ""
	}
	excluded := req.ExcludeGenerations
	if excluded == nil {
		excluded = []string{}
	}

	q := fmt.Sprintf(`SELECT id, source, department, generation, chunk_index, text, uploaded_at,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE ($2 = '' OR department = $2 OR department = 'all')
			AND NOT (generation = ANY($3))
		ORDER BY embedding <=> $1
		LIMIT $4`, s.table)

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(req.Vector), department, excluded, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Source, &h.Department, &h.Generation, &h.ChunkIndex,
			&h.Text, &h.UploadedAt, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PgvectorStorage) Delete(ctx context.Context, sel Selector) error {
	if err := checkSelector(sel); err != nil {
		return err
	}
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return err
	}

	var (
		where []string
		args  []any
	)
	add := func(cond, val string) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if sel.Source != "" {
		add("source = $%d", sel.Source)
	}
	if sel.Generation != "" {
		add("generation = $%d", sel.Generation)
	}
	if sel.ExceptGeneration != "" {
		add("generation <> $%d", sel.ExceptGeneration)
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.table, strings.Join(where, " AND "))
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (s *PgvectorStorage) ListGenerations(ctx context.Context) ([]GenerationInfo, error) {
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT source, generation, max(department), max(uploaded_at), count(*)
		FROM %s
		GROUP BY source, generation
		ORDER BY source, max(uploaded_at) DESC`, s.table)
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	var out []GenerationInfo
	for rows.Next() {
		var info GenerationInfo
		if err := rows.Scan(&info.Source, &info.Generation, &info.Department, &info.UploadedAt, &info.Chunks); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *PgvectorStorage) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return s.EnsureCollection(ctx)
}
