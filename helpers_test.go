package dupefy

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"
)

// baseTime anchors every capture timestamp in tests.
var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// makePattern returns a deterministic grayscale block pattern. Different
// seeds give visually unrelated images.
func makePattern(seed int64, w, h int) *image.RGBA {
	const block = 16
	rng := rand.New(rand.NewSource(seed))
	cols, rows := (w+block-1)/block, (h+block-1)/block
	levels := make([]uint8, cols*rows)
	for i := range levels {
		levels[i] = uint8(rng.Intn(256))
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := levels[(y/block)*cols+x/block]
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// boxBlur returns img smoothed with a (2r+1)² box filter.
func boxBlur(img *image.RGBA, r int) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var sum, n int
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					p := image.Pt(x+dx, y+dy)
					if !p.In(b) {
						continue
					}
					sum += int(img.RGBAAt(p.X, p.Y).R)
					n++
				}
			}
			v := uint8(sum / n)
			out.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// encodeJPEGWithEXIF encodes img as JPEG and inserts an APP1 segment whose
// EXIF sub-IFD carries DateTimeOriginal.
func encodeJPEGWithEXIF(t testing.TB, img image.Image, taken string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	if len(taken) != 19 {
		t.Fatalf("taken %q is not in EXIF layout", taken)
	}

	// Little-endian TIFF: header(8) | IFD0(18) at 8 | Exif IFD(18) at 26 | date(20) at 44.
	le := binary.LittleEndian
	tiff := make([]byte, 0, 64)
	tiff = append(tiff, 'I', 'I')
	tiff = le.AppendUint16(tiff, 42)
	tiff = le.AppendUint32(tiff, 8)

	tiff = le.AppendUint16(tiff, 1)
	tiff = le.AppendUint16(tiff, 0x8769) // ExifIFDPointer
	tiff = le.AppendUint16(tiff, 4)      // LONG
	tiff = le.AppendUint32(tiff, 1)
	tiff = le.AppendUint32(tiff, 26)
	tiff = le.AppendUint32(tiff, 0)

	tiff = le.AppendUint16(tiff, 1)
	tiff = le.AppendUint16(tiff, 0x9003) // DateTimeOriginal
	tiff = le.AppendUint16(tiff, 2)      // ASCII
	tiff = le.AppendUint32(tiff, 20)
	tiff = le.AppendUint32(tiff, 44)
	tiff = le.AppendUint32(tiff, 0)

	tiff = append(tiff, taken...)
	tiff = append(tiff, 0)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1}
	seg = binary.BigEndian.AppendUint16(seg, uint16(len(payload)+2))
	seg = append(seg, payload...)

	src := buf.Bytes()
	out := make([]byte, 0, len(src)+len(seg))
	out = append(out, src[:2]...) // SOI
	out = append(out, seg...)
	return append(out, src[2:]...)
}

func record(id string, content []byte, offset time.Duration) ImageRecord {
	return ImageRecord{
		ID:         id,
		Content:    content,
		Filename:   id + ".png",
		CapturedAt: baseTime.Add(offset),
		DisplayURL: "/thumb/" + id,
	}
}

// progressRecorder captures every Report call.
type progressRecorder struct {
	mu       sync.Mutex
	percents []int
	messages []string
}

func (p *progressRecorder) Report(percent int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percents = append(p.percents, percent)
	p.messages = append(p.messages, message)
}

func (p *progressRecorder) snapshot() ([]int, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.percents...), append([]string(nil), p.messages...)
}

// checkGroupInvariants verifies the structural guarantees every result must hold.
func checkGroupInvariants(t *testing.T, groups []DuplicateGroup) {
	t.Helper()
	seen := make(map[string]string)
	ids := make(map[string]bool)
	for _, g := range groups {
		if ids[g.GroupID] {
			t.Errorf("duplicate group id %q", g.GroupID)
		}
		ids[g.GroupID] = true

		if len(g.Images) < 2 {
			t.Errorf("group %s has %d images, want >= 2", g.GroupID, len(g.Images))
		}
		if g.TotalImages != len(g.Images) {
			t.Errorf("group %s TotalImages = %d, len(Images) = %d", g.GroupID, g.TotalImages, len(g.Images))
		}
		if g.SimilarityAvg < 0 || g.SimilarityAvg > 1 {
			t.Errorf("group %s SimilarityAvg = %v, want in [0,1]", g.GroupID, g.SimilarityAvg)
		}

		primaries := 0
		for i, img := range g.Images {
			if prev, ok := seen[img.AssetID]; ok {
				t.Errorf("asset %s in groups %s and %s", img.AssetID, prev, g.GroupID)
			}
			seen[img.AssetID] = g.GroupID
			if img.IsPrimary {
				primaries++
				if i != 0 {
					t.Errorf("group %s primary at position %d, want 0", g.GroupID, i)
				}
			}
			if img.QualityScore > g.Images[0].QualityScore {
				t.Errorf("group %s member %s quality %v exceeds primary %v",
					g.GroupID, img.AssetID, img.QualityScore, g.Images[0].QualityScore)
			}
		}
		if primaries != 1 {
			t.Errorf("group %s has %d primaries, want 1", g.GroupID, primaries)
		}
	}
}
