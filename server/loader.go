package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	dupefy "github.com/anatolykoptev/go-dupefy"
	"github.com/anatolykoptev/go-dupefy/gallery"
)

// Download phase boundaries, in percent of the whole request.
const (
	downloadStart = 0
	downloadEnd   = 20
	progressEvery = 10
)

// load downloads every asset on a bounded pool and returns the records in
// gallery order. Download failures are logged and counted, never fatal.
func (s *Server) load(ctx context.Context, assets []gallery.Asset, rep dupefy.ProgressReporter) ([]dupefy.ImageRecord, int, error) {
	slots := make([]*dupefy.ImageRecord, len(assets))
	var done, failed atomic.Int64
	total := int64(len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.downloadConcurrency)
	for i, a := range assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			asset, err := s.assets.Fetch(gctx, a.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				slog.Warn("dupefy: asset download failed", "asset", a.ID, "error", err.Error())
			} else {
				a = s.complete(gctx, a)
				slots[i] = &dupefy.ImageRecord{
					ID:         a.ID,
					Content:    asset.Data,
					Filename:   a.Filename,
					CapturedAt: a.CapturedAt,
					DisplayURL: s.assets.ThumbnailURL(a.ID),
				}
			}

			n := done.Add(1)
			if n%progressEvery == 0 || n == total {
				rep.Report(downloadStart+int((downloadEnd-downloadStart)*n/total),
					fmt.Sprintf("Downloading: %d/%d (errors: %d)", n, total, failed.Load()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	records := make([]dupefy.ImageRecord, 0, len(assets))
	for _, r := range slots {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, int(failed.Load()), nil
}

// complete fills a missing capture time or filename from the asset source.
// Lookup failures keep the row as it is; the engine may still find an EXIF
// time in the downloaded bytes.
func (s *Server) complete(ctx context.Context, a gallery.Asset) gallery.Asset {
	if !a.Incomplete() {
		return a
	}
	info, err := s.assets.AssetInfo(ctx, a.ID)
	if err != nil {
		slog.Debug("dupefy: asset info lookup failed", "asset", a.ID, "error", err.Error())
		return a
	}

	if a.CapturedAt.IsZero() {
		switch {
		case !info.FileCreatedAt.IsZero():
			a.CapturedAt = info.FileCreatedAt
		case !info.LocalDateTime.IsZero():
			a.CapturedAt = info.LocalDateTime
		}
	}
	if info.OriginalFileName != "" && a.Filename == gallery.FallbackFilename(a.ID) {
		a.Filename = info.OriginalFileName
	}
	return a
}
