package dupefy

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errEmptyContent = errors.New("empty content")

// Features are the per-image values derived during extraction.
type Features struct {
	Fingerprint Fingerprint
	Quality     QualityAssessment
	Width       int
	Height      int
	Format      string
	CapturedAt  time.Time // record time, or the EXIF fallback; zero = unknown
}

// Extract decodes one record and computes its fingerprint and quality
// scores. Any failure to read the image is reported as a *DecodeError.
func (e *Engine) Extract(rec ImageRecord) (Features, error) {
	img, format, err := decodeImage(rec.Content, e.cfg.MaxPixels)
	if err != nil {
		return Features{}, &DecodeError{ID: rec.ID, Err: err}
	}

	fp, err := ComputeFingerprint(img)
	if err != nil {
		return Features{}, &DecodeError{ID: rec.ID, Err: err}
	}

	captured := rec.CapturedAt
	if captured.IsZero() {
		if t, ok := CaptureTime(rec.Content); ok {
			captured = t
		}
	}

	b := img.Bounds()
	return Features{
		Fingerprint: fp,
		Quality:     AssessQuality(img, e.cfg.WorkSize),
		Width:       b.Dx(),
		Height:      b.Dy(),
		Format:      format,
		CapturedAt:  captured,
	}, nil
}

// decodeImage checks the header dimensions before committing to a full
// decode so that one oversized image cannot exhaust memory. A decoder panic
// on malformed input is returned as an error for that image alone.
func decodeImage(data []byte, maxPixels int) (img image.Image, format string, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, format, err = nil, "", fmt.Errorf("decoder panic: %v", r)
		}
	}()

	if len(data) == 0 {
		return nil, "", errEmptyContent
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, "", fmt.Errorf("image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}
