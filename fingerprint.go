package dupefy

import (
	"fmt"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"
)

// fingerprintBits is the total number of hash bits compared by Similarity.
const fingerprintBits = 128

// Fingerprint is a perceptual summary of an image: a DCT perception hash
// and a gradient difference hash, 64 bits each.
type Fingerprint struct {
	Perception uint64
	Difference uint64
}

// ComputeFingerprint hashes a decoded image.
func ComputeFingerprint(img image.Image) (Fingerprint, error) {
	ph, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("perception hash: %w", err)
	}
	dh, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("difference hash: %w", err)
	}
	return Fingerprint{Perception: ph.GetHash(), Difference: dh.GetHash()}, nil
}

// Distance returns the number of differing hash bits, 0..128.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(f.Perception^other.Perception) +
		bits.OnesCount64(f.Difference^other.Difference)
}

// Similarity returns the fraction of matching hash bits in [0,1];
// 1 means the fingerprints are identical. It is symmetric.
func Similarity(a, b Fingerprint) float64 {
	return 1 - float64(a.Distance(b))/fingerprintBits
}

// String renders both hashes the way goimagehash does ("p:<hex>").
func (f Fingerprint) String() string {
	p := goimagehash.NewImageHash(f.Perception, goimagehash.PHash)
	d := goimagehash.NewImageHash(f.Difference, goimagehash.DHash)
	return p.ToString() + "/" + d.ToString()
}
