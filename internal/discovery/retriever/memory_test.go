package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/discovery"
)

func TestMemoryRetrieverSearchSemanticFiltersAndSorts(t *testing.T) {
	r := NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1, SimilarityScore: 0.4, ProfileText: "low"})
	r.Add(discovery.ProfileMatch{ProfileID: 2, SimilarityScore: 0.9, ProfileText: "high"})
	r.Add(discovery.ProfileMatch{ProfileID: 3, SimilarityScore: 0.6, ProfileText: "mid"})

	got, err := r.SearchSemantic(context.Background(), "tax advisor", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].ProfileID)
	require.Equal(t, int64(3), got[1].ProfileID)
}

func TestMemoryRetrieverSearchTagsMatchAllVsAny(t *testing.T) {
	r := NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1}, "Tax", "Immigration")
	r.Add(discovery.ProfileMatch{ProfileID: 2}, "Tax")

	all, err := r.SearchTags(context.Background(), []string{"tax", "immigration"}, true, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, int64(1), all[0].ProfileID)
	require.Equal(t, 1.0, all[0].SimilarityScore)

	any, err := r.SearchTags(context.Background(), []string{"tax", "immigration"}, false, 10)
	require.NoError(t, err)
	require.Len(t, any, 2)
	require.Equal(t, int64(1), any[0].ProfileID)
	require.InDelta(t, 0.5, any[1].SimilarityScore, 0.001)
}

func TestMemoryRetrieverSearchTagsEmptyReturnsNil(t *testing.T) {
	r := NewMemoryRetriever()
	got, err := r.SearchTags(context.Background(), nil, true, 10)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryRetrieverSearchHybridBoostsTaggedAndClamps(t *testing.T) {
	r := NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1, SimilarityScore: 0.85}, "tax")
	r.Add(discovery.ProfileMatch{ProfileID: 2, SimilarityScore: 0.80})
	r.Add(discovery.ProfileMatch{ProfileID: 3, SimilarityScore: 0.50}, "tax")

	got, err := r.SearchHybrid(context.Background(), "tax advisor", []string{"tax"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// profile 1: 0.85 + 0.3 clamped to 1.0, stays first.
	require.Equal(t, int64(1), got[0].ProfileID)
	require.Equal(t, 1.0, got[0].SimilarityScore)
	// profile 3: 0.50 + 0.3 = 0.80 ties profile 2's bare 0.80; semantic
	// tie-break favors the higher raw semantic score (profile 2).
	require.Equal(t, int64(2), got[1].ProfileID)
	require.Equal(t, int64(3), got[2].ProfileID)
}

func TestMemoryRetrieverCountTotal(t *testing.T) {
	r := NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1})
	r.Add(discovery.ProfileMatch{ProfileID: 2})
	n, err := r.CountTotal(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
