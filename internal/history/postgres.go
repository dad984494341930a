package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

// PostgresStore keeps history in the query_history table and searches it
// with pgvector cosine distance.
type PostgresStore struct {
	db            *sql.DB
	embedder      Embedder
	minSimilarity float64
}

// Open connects to the history database
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// NewPostgresStore creates a store over db. The query_history migration must have run.
func NewPostgresStore(db *sql.DB, embedder Embedder) *PostgresStore {
	return &PostgresStore{db: db, embedder: embedder, minSimilarity: DefaultMinSimilarity}
}

// WithMinSimilarity overrides the similarity threshold
func (s *PostgresStore) WithMinSimilarity(min float64) *PostgresStore {
	s.minSimilarity = min
	return s
}

// Ping tests the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Record stores or replaces the SQL for query
func (s *PostgresStore) Record(ctx context.Context, query, sqlText string) error {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	insertQuery := `
		INSERT INTO query_history (id, query_text, sql_text, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (query_text) DO UPDATE SET
			sql_text = EXCLUDED.sql_text,
			embedding = EXCLUDED.embedding,
			hits = query_history.hits + 1,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err = s.db.ExecContext(ctx, insertQuery,
		uuid.New().String(), normalizeQuery(query), sqlText, pgvector.NewVector(embedding), start)
	observability.RecordDBMetrics("history_record", time.Since(start), 1, err)
	if err != nil {
		return fmt.Errorf("failed to store query history: %w", err)
	}
	return nil
}

// Similar returns up to limit examples at or above the similarity threshold
func (s *PostgresStore) Similar(ctx context.Context, query string, limit int) ([]Example, error) {
	if limit <= 0 {
		limit = DefaultExamples
	}
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	similarQuery := `
		SELECT id, query_text, sql_text,
		       1 - (embedding <=> $1) AS similarity,
		       created_at
		FROM query_history
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY similarity DESC
		LIMIT $3
	`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, similarQuery, pgvector.NewVector(embedding), s.minSimilarity, limit)
	if err != nil {
		observability.RecordDBMetrics("history_similar", time.Since(start), 0, err)
		return nil, fmt.Errorf("failed to query similar queries: %w", err)
	}
	defer rows.Close()

	examples := make([]Example, 0)
	for rows.Next() {
		var ex Example
		if err := rows.Scan(&ex.ID, &ex.Query, &ex.SQL, &ex.Similarity, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan similar query row: %w", err)
		}
		examples = append(examples, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating similar query rows: %w", err)
	}
	observability.RecordDBMetrics("history_similar", time.Since(start), len(examples), nil)

	return examples, nil
}
