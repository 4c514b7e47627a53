// Package dupefy groups near-duplicate photos, ranks each group by visual
// quality and designates one primary image per group.
package dupefy

import (
	"runtime"
	"time"
)

const (
	// DefaultThreshold is the minimum similarity for two images to be grouped.
	DefaultThreshold = 0.85
	// DefaultTimeWindowHours is the maximum capture-time gap between grouped images.
	DefaultTimeWindowHours = 24.0

	defaultWorkSize      = 512
	defaultMaxPixels     = 100_000_000
	defaultProgressEvery = 10
)

// ImageRecord is one input image. Content holds the already-resolved bytes;
// the engine never fetches anything itself.
type ImageRecord struct {
	ID         string    // unique within a batch
	Content    []byte    // encoded image (JPEG, PNG, GIF, WebP, BMP, TIFF)
	Filename   string    // original file name, reported back as-is
	CapturedAt time.Time // zero = unknown; EXIF DateTimeOriginal is tried
	DisplayURL string    // reported back as GroupedImage.ThumbnailURL
}

// GroupedImage is one member of a DuplicateGroup.
type GroupedImage struct {
	AssetID      string    `json:"asset_id"`
	Similarity   float64   `json:"similarity"` // similarity to the group's primary
	Filename     string    `json:"filename"`
	Date         time.Time `json:"date"`
	ThumbnailURL string    `json:"thumbnail_url"`
	IsPrimary    bool      `json:"is_primary"`
	QualityScore float64   `json:"quality_score"`
	BlurScore    float64   `json:"blur_score"`
}

// DuplicateGroup is a set of at least two near-duplicate images.
// Images[0] is always the primary.
type DuplicateGroup struct {
	GroupID       string         `json:"group_id"`
	Images        []GroupedImage `json:"images"`
	SimilarityAvg float64        `json:"similarity_avg"`
	TotalImages   int            `json:"total_images"`
}

// SkippedImage records an input that was excluded from clustering.
type SkippedImage struct {
	ID     string `json:"asset_id"`
	Reason string `json:"reason"`
}

// Result is the full outcome of one analysis run.
type Result struct {
	Groups   []DuplicateGroup `json:"groups"`
	Total    int              `json:"total_images"`
	Analyzed int              `json:"analyzed_images"`
	Skipped  []SkippedImage   `json:"skipped,omitempty"`
}

// Config holds engine tuning and optional callbacks.
// Zero values mean "use defaults".
type Config struct {
	Concurrency   int // parallel extractions (default: runtime.NumCPU())
	WorkSize      int // longest side of the quality work image (default: 512)
	MaxPixels     int // decode guard, width*height (default: 100M)
	ProgressEvery int // extraction progress granularity in images (default: 10)

	// Optional callbacks for metrics/logging.
	OnPanic func(tag string, r any)
	OnSkip  func(id string, err error)
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.WorkSize <= 0 {
		c.WorkSize = defaultWorkSize
	}
	if c.MaxPixels <= 0 {
		c.MaxPixels = defaultMaxPixels
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = defaultProgressEvery
	}
}
