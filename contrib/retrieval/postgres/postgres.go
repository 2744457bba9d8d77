// Package postgres implements retrieval.Retriever over PostgreSQL
// full-text search.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/deliberate/retrieval"
)

// Store retrieves course passages from a PostgreSQL table with a tsvector
// column. A connection failure surfaces as an error; a query matching
// nothing returns an empty slice.
type Store struct {
	db    *sql.DB
	table string
	limit int
}

// Config holds PostgreSQL retriever configuration
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	TableName string // Table name (default: passages)
	Limit     int    // Max rows per query (default: 10)
}

// DefaultConfig returns default PostgreSQL configuration
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		Password:  "",
		DBName:    "deliberate",
		SSLMode:   "disable",
		TableName: "passages",
		Limit:     10,
	}
}

// New creates a PostgreSQL-backed retriever
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TableName == "" {
		config.TableName = "passages"
	}
	if config.Limit <= 0 {
		config.Limit = 10
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &Store{db: db, table: config.TableName, limit: config.Limit}
	if err := store.setup(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to setup passages table: %w", err)
	}
	return store, nil
}

func (s *Store) setup(ctx context.Context) error {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		scope_id TEXT NOT NULL,
		source TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB DEFAULT '{}',
		tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return err
	}
	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tsv_idx ON %s USING GIN (tsv)`, s.table, s.table)
	_, err := s.db.ExecContext(ctx, index)
	return err
}

// Add inserts one passage into the store.
func (s *Store) Add(ctx context.Context, scopeID, source, content string, metadata map[string]string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (scope_id, source, content, metadata) VALUES ($1, $2, $3, $4)`, s.table)
	if _, err := s.db.ExecContext(ctx, insert, scopeID, source, content, meta); err != nil {
		return fmt.Errorf("failed to insert passage: %w", err)
	}
	return nil
}

// Retrieve implements retrieval.Retriever.
func (s *Store) Retrieve(ctx context.Context, query, scopeID string) ([]retrieval.Passage, error) {
	q := fmt.Sprintf(`SELECT content, source, metadata, ts_rank_cd(tsv, websearch_to_tsquery('english', $1)) AS score
		FROM %s
		WHERE scope_id = $2 AND tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $3`, s.table)

	rows, err := s.db.QueryContext(ctx, q, query, scopeID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var passages []retrieval.Passage
	for rows.Next() {
		var (
			p    retrieval.Passage
			meta []byte
		)
		if err := rows.Scan(&p.Text, &p.Source, &meta, &p.Score); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &p.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passages: %w", err)
	}
	return passages, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
