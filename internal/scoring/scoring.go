// Package scoring ranks fetched image candidates against a keyword.
// Both functions are pure: identical inputs always yield identical output.
package scoring

import (
	"sort"
	"strings"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
)

var allowedFormats = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// Score computes the relevance score of a single candidate.
func Score(img domain.Image, keyword string) int {
	score := 0
	kw := strings.ToLower(keyword)

	if kw != "" && strings.Contains(strings.ToLower(img.Name), kw) {
		score += 10
	}
	if img.Width > img.Height {
		score += 5
	}
	if img.Width >= 800 {
		score += 5
	}
	if _, ok := allowedFormats[strings.ToLower(img.Format)]; ok {
		score += 3
	}
	if img.FamilyFriendly {
		score += 2
	}
	return score
}

// Rank returns the candidates re-sorted descending by score. The sort is
// stable: ties keep their original relative order.
func Rank(candidates []domain.Image, keyword string) []domain.Image {
	ranked := make([]domain.Image, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i], keyword) > Score(ranked[j], keyword)
	})
	return ranked
}

// Dedup removes candidates whose URL appeared earlier in the slice,
// keeping the first occurrence.
func Dedup(candidates []domain.Image) []domain.Image {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]domain.Image, 0, len(candidates))

	for _, img := range candidates {
		if _, dup := seen[img.URL]; dup {
			continue
		}
		seen[img.URL] = struct{}{}
		out = append(out, img)
	}
	return out
}
