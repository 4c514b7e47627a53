package gallery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLStore reads galleries from a SQLite database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens the SQLite database at path.
func NewSQLStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("gallery: open sqlite %s: %w", path, err)
	}
	if strings.Contains(path, ":memory:") {
		// Every new connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("gallery: ping sqlite %s: %w", path, err)
	}
	return &SQLStore{db: db}, nil
}

// Migrate creates the gallery_images table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schema, "AUTOINCREMENT", "DATETIME")); err != nil {
		return fmt.Errorf("gallery: migrate: %w", err)
	}
	return nil
}

// Add inserts or replaces one gallery row. A zero capturedAt is stored as NULL.
func (s *SQLStore) Add(ctx context.Context, galleryID string, a Asset) error {
	var filename, created any
	if a.Filename != "" {
		filename = a.Filename
	}
	if !a.CapturedAt.IsZero() {
		created = a.CapturedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gallery_images (gallery_id, immich_asset_id, filename, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (gallery_id, immich_asset_id)
		DO UPDATE SET filename = excluded.filename, created_at = excluded.created_at`,
		galleryID, a.ID, filename, created)
	if err != nil {
		return fmt.Errorf("gallery: add %s/%s: %w", galleryID, a.ID, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Assets implements Store.
func (s *SQLStore) Assets(ctx context.Context, galleryID string, ids []string) ([]Asset, error) {
	query := `
		SELECT immich_asset_id, filename, created_at
		FROM gallery_images
		WHERE gallery_id = ?`
	args := []any{galleryID}
	if len(ids) > 0 {
		query += ` AND immich_asset_id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at IS NULL, created_at ASC, immich_asset_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("gallery: query %s: %w", galleryID, err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		var (
			id       string
			filename sql.NullString
			created  sql.NullTime
		)
		if err := rows.Scan(&id, &filename, &created); err != nil {
			return nil, fmt.Errorf("gallery: scan %s: %w", galleryID, err)
		}
		var fn *string
		if filename.Valid {
			fn = &filename.String
		}
		var ct *time.Time
		if created.Valid {
			ct = &created.Time
		}
		out = append(out, finish(id, fn, ct))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gallery: rows %s: %w", galleryID, err)
	}
	return out, nil
}
