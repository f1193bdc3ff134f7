package retriever

import (
	"sort"
	"strings"

	"manifold/internal/discovery"
)

func toLower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func sortBySimilarityDesc(matches []discovery.ProfileMatch) {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].SimilarityScore > matches[j].SimilarityScore })
}
