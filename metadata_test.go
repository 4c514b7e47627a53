package dupefy

import (
	"testing"
	"time"

	"github.com/bep/imagemeta"
)

func TestCaptureTime_NoMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "nil data",
			data: nil,
		},
		{
			name: "empty data",
			data: []byte{},
		},
		{
			name: "garbage data",
			data: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x11, 0x22, 0x33},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := CaptureTime(tc.data)
			if ok || !got.IsZero() {
				t.Errorf("CaptureTime(%v) = %v, %v, want zero, false", tc.data, got, ok)
			}
		})
	}
}

func TestCaptureTime_PNGWithoutEXIF(t *testing.T) {
	t.Parallel()

	data := encodePNG(t, makePattern(1, 16, 16))
	if got, ok := CaptureTime(data); ok {
		t.Errorf("CaptureTime(png) = %v, true, want false", got)
	}
}

func TestCaptureTime_JPEGWithEXIF(t *testing.T) {
	t.Parallel()

	data := encodeJPEGWithEXIF(t, makePattern(2, 32, 32), "2021:07:04 10:11:12")
	got, ok := CaptureTime(data)
	if !ok {
		t.Fatal("CaptureTime(jpeg with exif) = false, want true")
	}
	want := time.Date(2021, 7, 4, 10, 11, 12, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CaptureTime = %v, want %v", got, want)
	}
}

func TestSniffFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		data   []byte
		want   imagemeta.ImageFormat
		wantOK bool
	}{
		{name: "jpeg", data: []byte{0xFF, 0xD8, 0xFF, 0xE0}, want: imagemeta.JPEG, wantOK: true},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n...."), want: imagemeta.PNG, wantOK: true},
		{name: "webp", data: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), want: imagemeta.WebP, wantOK: true},
		{name: "tiff little endian", data: []byte("II*\x00\x08\x00\x00\x00"), want: imagemeta.TIFF, wantOK: true},
		{name: "tiff big endian", data: []byte("MM\x00*\x00\x00\x00\x08"), want: imagemeta.TIFF, wantOK: true},
		{name: "heic", data: []byte("\x00\x00\x00\x18ftypheic"), want: imagemeta.HEIF, wantOK: true},
		{name: "avif", data: []byte("\x00\x00\x00\x1cftypavif"), want: imagemeta.AVIF, wantOK: true},
		{name: "unknown brand", data: []byte("\x00\x00\x00\x18ftypmp42")},
		{name: "gif", data: []byte("GIF89a")},
		{name: "empty", data: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := sniffFormat(tc.data)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("sniffFormat = %v, %v, want %v, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestExifTimeValue(t *testing.T) {
	t.Parallel()

	want := time.Date(2023, 8, 14, 9, 30, 5, 0, time.UTC)

	tests := []struct {
		name   string
		value  any
		want   time.Time
		wantOK bool
	}{
		{name: "exif string", value: "2023:08:14 09:30:05", want: want, wantOK: true},
		{name: "nul padded string", value: "2023:08:14 09:30:05\x00", want: want, wantOK: true},
		{name: "parsed time", value: want, want: want, wantOK: true},
		{name: "zeroed exif date", value: "0000:00:00 00:00:00", wantOK: false},
		{name: "blank", value: "   ", wantOK: false},
		{name: "wrong layout", value: "2023-08-14T09:30:05Z", wantOK: false},
		{name: "unsupported type", value: 42, wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := exifTimeValue(tc.value)
			if ok != tc.wantOK {
				t.Fatalf("exifTimeValue(%v) ok = %v, want %v", tc.value, ok, tc.wantOK)
			}
			if ok && !got.Equal(tc.want) {
				t.Errorf("exifTimeValue(%v) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}
