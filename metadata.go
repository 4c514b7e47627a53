package dupefy

import (
	"bytes"
	"strings"
	"time"

	"github.com/bep/imagemeta"
)

// exifTimeLayout is the EXIF 2.x date/time format.
const exifTimeLayout = "2006:01:02 15:04:05"

// wantedEXIFTags lists the EXIF tags that can carry a capture time,
// in order of preference.
var wantedEXIFTags = map[string]int{
	"DateTimeOriginal":  0,
	"DateTimeDigitized": 1,
	"DateTime":          2,
}

// CaptureTime reads the capture time from EXIF metadata in raw image bytes.
// Returns false if the container is not recognized, has no EXIF block, or no
// parseable date. Graceful degradation: never returns an error.
func CaptureTime(data []byte) (time.Time, bool) {
	format, ok := sniffFormat(data)
	if !ok {
		return time.Time{}, false
	}

	var best time.Time
	bestRank := len(wantedEXIFTags)

	_, err := imagemeta.Decode(imagemeta.Options{
		R:           bytes.NewReader(data),
		ImageFormat: format,
		Sources:     imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			_, ok := wantedEXIFTags[ti.Tag]
			return ti.Source == imagemeta.EXIF && ok
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			rank := wantedEXIFTags[ti.Tag]
			if rank >= bestRank {
				return nil
			}
			if t, ok := exifTimeValue(ti.Value); ok {
				best, bestRank = t, rank
			}
			return nil
		},
	})
	if err != nil && best.IsZero() {
		return time.Time{}, false
	}

	return best, !best.IsZero()
}

// sniffFormat maps the container magic bytes to the decoder imagemeta needs;
// imagemeta does no detection of its own.
func sniffFormat(data []byte) (imagemeta.ImageFormat, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return imagemeta.JPEG, true
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return imagemeta.PNG, true
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return imagemeta.WebP, true
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return imagemeta.TIFF, true
	case len(data) >= 12 && string(data[4:8]) == "ftyp":
		switch string(data[8:12]) {
		case "avif", "avis":
			return imagemeta.AVIF, true
		case "heic", "heix", "heim", "heis", "mif1", "msf1":
			return imagemeta.HEIF, true
		}
	}
	return imagemeta.ImageFormatAuto, false
}

// exifTimeValue converts a decoded tag value to a time.
// imagemeta may hand back the raw EXIF string or an already parsed time.
func exifTimeValue(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case string:
		s := strings.TrimSpace(strings.TrimRight(val, "\x00"))
		if s == "" || strings.HasPrefix(s, "0000") {
			return time.Time{}, false
		}
		t, err := time.Parse(exifTimeLayout, s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
