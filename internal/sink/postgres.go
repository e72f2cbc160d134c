package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Schema is the DDL for the block table. Ordering is by the insert-assigned
// sequence, which matches chain order because the ledger serializes appends.
const Schema = `
CREATE TABLE IF NOT EXISTS attestation_blocks (
    seq  BIGSERIAL PRIMARY KEY,
    data BYTEA NOT NULL
);`

// Postgres is a durable Store backed by PostgreSQL. Blocks are stored as
// opaque serialized bytes; a committed INSERT is the durability point.
// Unlike an advisory-lock design, no database-side serialization is needed:
// the ledger guarantees at most one concurrent append.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a Postgres store backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// EnsureSchema creates the block table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure block table: %w", err)
	}
	return nil
}

// Write implements ledger.AppendSink.
func (s *Postgres) Write(ctx context.Context, data []byte) error {
	if _, err := s.pool.Exec(ctx,
		"INSERT INTO attestation_blocks (data) VALUES ($1)", data,
	); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

// ReadAll implements ledger.ReadSource. Rows stream back in insert order.
func (s *Postgres) ReadAll(ctx context.Context) ([][]byte, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT data FROM attestation_blocks ORDER BY seq ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan block row: %w", err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	s.logger.Debug("blocks loaded from postgres", zap.Int("rows", len(out)))
	return out, nil
}
