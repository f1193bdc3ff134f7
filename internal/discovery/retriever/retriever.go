// Package retriever implements the read-only Profile Retriever from
// spec.md §4.3: semantic (vector), tag (structured), and hybrid search over
// the provider database. Adapted from manifold's
// internal/persistence/databases qdrant_vector.go (semantic leg) and the
// Postgres query style of chat_store_postgres.go (tag leg).
package retriever

import (
	"context"
	"sort"

	"manifold/internal/discovery"
)

// Embedder turns a query string into the vector space the semantic leg
// searches over. Provided by the caller so the retriever stays storage-only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever is the Profile Retriever contract (spec.md §4.3).
type Retriever interface {
	SearchSemantic(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]discovery.ProfileMatch, error)
	SearchTags(ctx context.Context, tags []string, matchAll bool, maxResults int) ([]discovery.ProfileMatch, error)
	SearchHybrid(ctx context.Context, query string, tags []string, maxResults int) ([]discovery.ProfileMatch, error)
	CountTotal(ctx context.Context) (int, error)
}

// hybridBoost is the flat bonus applied when any requested tag matches,
// clamped to 1.0 (spec.md §4.3).
const hybridBoost = 0.3

// combineHybrid implements spec.md §4.3's combining rule: semantic score
// plus hybridBoost when any requested tag matched, capped at 1.0, ordered
// descending by combined score with ties broken by semantic score.
func combineHybrid(semantic []discovery.ProfileMatch, tagged map[int64]bool, maxResults int) []discovery.ProfileMatch {
	type scored struct {
		match    discovery.ProfileMatch
		semScore float64
		combined float64
	}
	out := make([]scored, 0, len(semantic))
	seen := make(map[int64]bool, len(semantic))
	for _, m := range semantic {
		combined := m.SimilarityScore
		if tagged[m.ProfileID] {
			combined += hybridBoost
		}
		if combined > 1.0 {
			combined = 1.0
		}
		out = append(out, scored{match: m, semScore: m.SimilarityScore, combined: combined})
		seen[m.ProfileID] = true
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].combined != out[j].combined {
			return out[i].combined > out[j].combined
		}
		return out[i].semScore > out[j].semScore
	})
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	results := make([]discovery.ProfileMatch, len(out))
	for i, s := range out {
		m := s.match
		m.SimilarityScore = s.combined
		results[i] = m
	}
	return results
}
