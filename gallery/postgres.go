package gallery

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads galleries from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("gallery: parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("gallery: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("gallery: ping postgres %s: %w", redact(dbURL), err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the gallery_images table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(schema, "GENERATED BY DEFAULT AS IDENTITY", "TIMESTAMPTZ"))
	if err != nil {
		return fmt.Errorf("gallery: migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Assets implements Store.
func (s *PostgresStore) Assets(ctx context.Context, galleryID string, ids []string) ([]Asset, error) {
	query := `
		SELECT immich_asset_id, filename, created_at
		FROM gallery_images
		WHERE gallery_id = $1`
	args := []any{galleryID}
	if len(ids) > 0 {
		query += ` AND immich_asset_id = ANY($2)`
		args = append(args, ids)
	}
	query += ` ORDER BY created_at ASC NULLS LAST, immich_asset_id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("gallery: query %s: %w", galleryID, err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		var (
			id       string
			filename *string
			created  *time.Time
		)
		if err := rows.Scan(&id, &filename, &created); err != nil {
			return nil, fmt.Errorf("gallery: scan %s: %w", galleryID, err)
		}
		out = append(out, finish(id, filename, created))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gallery: rows %s: %w", galleryID, err)
	}
	return out, nil
}
