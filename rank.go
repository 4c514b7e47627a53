package dupefy

import (
	"fmt"
	"sort"
)

// candidate pairs an input record with its extracted features.
type candidate struct {
	rec  *ImageRecord
	feat *Features
}

// better reports whether a should be preferred over b as a group's primary:
// higher quality, then less blur, then earlier capture, then smaller ID.
func better(a, b candidate) bool {
	if a.feat.Quality.Score != b.feat.Quality.Score {
		return a.feat.Quality.Score > b.feat.Quality.Score
	}
	if a.feat.Quality.Blur != b.feat.Quality.Blur {
		return a.feat.Quality.Blur < b.feat.Quality.Blur
	}
	if !a.feat.CapturedAt.Equal(b.feat.CapturedAt) {
		return a.feat.CapturedAt.Before(b.feat.CapturedAt)
	}
	return a.rec.ID < b.rec.ID
}

// rankGroup turns one cluster into a DuplicateGroup. members must hold at
// least two candidates.
func rankGroup(groupID string, members []candidate) DuplicateGroup {
	primary := 0
	for i := 1; i < len(members); i++ {
		if better(members[i], members[primary]) {
			primary = i
		}
	}
	pfp := members[primary].feat.Fingerprint

	images := make([]GroupedImage, len(members))
	for i, c := range members {
		sim := 1.0
		if i != primary {
			sim = Similarity(c.feat.Fingerprint, pfp)
		}
		images[i] = GroupedImage{
			AssetID:      c.rec.ID,
			Similarity:   sim,
			Filename:     c.rec.Filename,
			Date:         c.feat.CapturedAt,
			ThumbnailURL: c.rec.DisplayURL,
			IsPrimary:    i == primary,
			QualityScore: c.feat.Quality.Score,
			BlurScore:    c.feat.Quality.Blur,
		}
	}

	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		if a.IsPrimary != b.IsPrimary {
			return a.IsPrimary
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return a.AssetID < b.AssetID
	})

	return DuplicateGroup{
		GroupID:       groupID,
		Images:        images,
		SimilarityAvg: meanPairwiseSimilarity(members),
		TotalImages:   len(images),
	}
}

// meanPairwiseSimilarity averages Similarity over every unordered pair.
func meanPairwiseSimilarity(members []candidate) float64 {
	var sum float64
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sum += Similarity(members[i].feat.Fingerprint, members[j].feat.Fingerprint)
			pairs++
		}
	}
	if pairs == 0 {
		return 1
	}
	return sum / float64(pairs)
}

func groupID(n int) string {
	return fmt.Sprintf("group-%d", n)
}
