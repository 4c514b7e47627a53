// Package gallery lists the photos that belong to a gallery. Two backends
// share one schema: PostgreSQL through pgx and SQLite through go-sqlite3.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedDSN is returned by Open for a DSN it cannot route.
var ErrUnsupportedDSN = errors.New("gallery: unsupported dsn")

// Asset is one photo of a gallery.
type Asset struct {
	ID         string    // Immich asset id
	Filename   string    // never empty; falls back to IMG_<id8>.jpg
	CapturedAt time.Time // zero when unknown
}

// Incomplete reports whether the row lacked a capture time or a filename,
// so that a caller may look them up at the asset source.
func (a Asset) Incomplete() bool {
	return a.CapturedAt.IsZero() || a.Filename == FallbackFilename(a.ID)
}

// Store reads gallery membership.
type Store interface {
	// Assets returns the assets of galleryID ordered by capture time
	// (unknown times last, then by id). A non-empty ids restricts the
	// result to that selection.
	Assets(ctx context.Context, galleryID string, ids []string) ([]Asset, error)
	Close() error
}

// Migrate creates the schema on stores that manage one. Stores without a
// Migrate method are left untouched.
func Migrate(ctx context.Context, s Store) error {
	m, ok := s.(interface{ Migrate(context.Context) error })
	if !ok {
		return nil
	}
	return m.Migrate(ctx)
}

// schema is the table both backends read; the verbs fill in the
// dialect-specific id and timestamp types.
const schema = `
CREATE TABLE IF NOT EXISTS gallery_images (
	id              INTEGER PRIMARY KEY %s,
	gallery_id      TEXT NOT NULL,
	immich_asset_id TEXT NOT NULL,
	filename        TEXT,
	created_at      %s,
	UNIQUE (gallery_id, immich_asset_id)
);
CREATE INDEX IF NOT EXISTS idx_gallery_images_gallery ON gallery_images (gallery_id, created_at);`

// Open connects to the store named by dsn:
//
//	postgres://..., postgresql://...   PostgresStore
//	sqlite:<path>, file:<path>, *.db  SQLStore
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgresql+psycopg:"):
		// SQLAlchemy-style URLs shared with the Python tooling.
		return NewPostgresStore(ctx, "postgres:"+strings.TrimPrefix(dsn, "postgresql+psycopg:"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		return NewSQLStore(ctx, strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//"))
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return NewSQLStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
	}
}

// FallbackFilename is the name given to assets whose row has no filename.
func FallbackFilename(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "IMG_" + short + ".jpg"
}

func finish(id string, filename *string, captured *time.Time) Asset {
	a := Asset{ID: id}
	if filename != nil && strings.TrimSpace(*filename) != "" {
		a.Filename = *filename
	} else {
		a.Filename = FallbackFilename(id)
	}
	if captured != nil {
		a.CapturedAt = captured.UTC()
	}
	return a
}

// redact hides credentials before a dsn reaches an error or a log line.
func redact(dsn string) string {
	at := strings.LastIndexByte(dsn, '@')
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
