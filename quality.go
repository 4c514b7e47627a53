package dupefy

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/nfnt/resize"
)

const (
	// laplacianHalfPoint is the Laplacian variance mapped to sharpness 0.5.
	// Variances under ~100 are the usual "blurry" cut-off on 8-bit luminance.
	laplacianHalfPoint = 100.0

	clipLow  = 5
	clipHigh = 250

	contrastFullStdDev = 64.0
	resolutionFullMP   = 12.0
)

// Quality signal weights; they sum to 1.
const (
	weightSharpness  = 0.5
	weightExposure   = 0.2
	weightContrast   = 0.15
	weightResolution = 0.15
)

// QualitySignal is one normalized heuristic contributing to a QualityAssessment.
type QualitySignal struct {
	Name   string  // "sharpness", "exposure", "contrast", "resolution"
	Value  float64 // normalized to [0,1], higher is better
	Weight float64
}

// QualityAssessment combines several signals into the scores reported per image.
type QualityAssessment struct {
	Score   float64         // 0..100, higher is better
	Blur    float64         // 0..100, higher is blurrier
	Signals []QualitySignal // contributing evidence
}

// AssessQuality scores a decoded image. The image is first reduced so that its
// longest side is at most workSize; origW/origH are the decoded dimensions and
// feed the resolution signal.
func AssessQuality(img image.Image, workSize int) QualityAssessment {
	b := img.Bounds()
	origW, origH := b.Dx(), b.Dy()

	work := img
	if origW > workSize || origH > workSize {
		work = resize.Thumbnail(uint(workSize), uint(workSize), img, resize.Bilinear)
	}
	gray := effect.Grayscale(work)

	sharpness := sharpnessFromVariance(laplacianVariance(gray))
	mean, std, clipped := lumStats(gray)

	exposure := 1 - math.Abs(mean-128)/128 - clipped
	if exposure < 0 {
		exposure = 0
	}
	contrast := math.Min(1, std/contrastFullStdDev)
	mp := float64(origW) * float64(origH) / 1e6
	res := math.Min(1, mp/resolutionFullMP)

	signals := []QualitySignal{
		{Name: "sharpness", Value: sharpness, Weight: weightSharpness},
		{Name: "exposure", Value: exposure, Weight: weightExposure},
		{Name: "contrast", Value: contrast, Weight: weightContrast},
		{Name: "resolution", Value: res, Weight: weightResolution},
	}
	var score float64
	for _, s := range signals {
		score += s.Value * s.Weight
	}

	return QualityAssessment{
		Score:   clamp100(100 * score),
		Blur:    clamp100(100 * (1 - sharpness)),
		Signals: signals,
	}
}

// laplacianKernel is the 4-neighbour discrete Laplacian.
var laplacianKernel = &convolution.Kernel{
	Matrix: []float64{
		0, 1, 0,
		1, -4, 1,
		0, 1, 0,
	},
	Stride: 3,
}

// laplacianBias re-centres the signed Laplacian response in the 8-bit output.
const laplacianBias = 128.0

// laplacianVariance returns the variance of the Laplacian response over the
// interior pixels. Images smaller than 3x3 have no interior and score 0.
func laplacianVariance(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	out := convolution.Convolve(g, laplacianKernel, &convolution.Options{Bias: laplacianBias, KeepAlpha: true})
	ob := out.Bounds()
	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := float64(out.Pix[out.PixOffset(ob.Min.X+x, ob.Min.Y+y)]) - laplacianBias
			sum += v
			sumSq += v * v
			n++
		}
	}
	m := sum / float64(n)
	return sumSq/float64(n) - m*m
}

func sharpnessFromVariance(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v / (v + laplacianHalfPoint)
}

func lumStats(g *image.Gray) (mean, std, clipped float64) {
	b := g.Bounds()
	if b.Empty() {
		return 0, 0, 0
	}
	var sum, sumSq float64
	nClip := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):g.PixOffset(b.Max.X, y)]
		for _, px := range row {
			v := float64(px)
			sum += v
			sumSq += v * v
			if v <= clipLow || v >= clipHigh {
				nClip++
			}
		}
	}
	n := float64(b.Dx() * b.Dy())
	mean = sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance), float64(nClip) / n
}

func clamp100(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
