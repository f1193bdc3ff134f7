package retriever

import (
	"context"

	"manifold/internal/discovery"
)

// MemoryRetriever is an in-process fake Retriever for agent/workflow tests,
// paralleling chat_store_memory.go's role for the Session Store: no network
// dependency, same contract as the Postgres+Qdrant production pair.
type MemoryRetriever struct {
	Profiles []discovery.ProfileMatch
	// Tags maps profile id to its lowercase tag set.
	Tags map[int64]map[string]bool
}

func NewMemoryRetriever() *MemoryRetriever {
	return &MemoryRetriever{Tags: map[int64]map[string]bool{}}
}

func (m *MemoryRetriever) Add(profile discovery.ProfileMatch, tags ...string) {
	m.Profiles = append(m.Profiles, profile)
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[toLower(t)] = true
	}
	m.Tags[profile.ProfileID] = set
}

func (m *MemoryRetriever) SearchSemantic(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]discovery.ProfileMatch, error) {
	out := make([]discovery.ProfileMatch, 0, len(m.Profiles))
	for _, p := range m.Profiles {
		if p.SimilarityScore >= minSimilarity {
			out = append(out, p)
		}
	}
	sortBySimilarityDesc(out)
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func (m *MemoryRetriever) SearchTags(ctx context.Context, tags []string, matchAll bool, maxResults int) ([]discovery.ProfileMatch, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	requested := make([]string, len(tags))
	for i, t := range tags {
		requested[i] = toLower(t)
	}
	out := make([]discovery.ProfileMatch, 0)
	for _, p := range m.Profiles {
		set := m.Tags[p.ProfileID]
		matched := 0
		for _, t := range requested {
			if set[t] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		if matchAll && matched < len(requested) {
			continue
		}
		cp := p
		if matchAll {
			cp.SimilarityScore = 1.0
		} else {
			cp.SimilarityScore = float64(matched) / float64(len(requested))
		}
		out = append(out, cp)
	}
	sortBySimilarityDesc(out)
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func (m *MemoryRetriever) SearchHybrid(ctx context.Context, query string, tags []string, maxResults int) ([]discovery.ProfileMatch, error) {
	semantic, _ := m.SearchSemantic(ctx, query, 0, 0)
	lowerTags := make(map[string]bool, len(tags))
	for _, t := range tags {
		lowerTags[toLower(t)] = true
	}
	tagged := map[int64]bool{}
	for id, set := range m.Tags {
		for t := range set {
			if lowerTags[t] {
				tagged[id] = true
				break
			}
		}
	}
	return combineHybrid(semantic, tagged, maxResults), nil
}

func (m *MemoryRetriever) CountTotal(ctx context.Context) (int, error) {
	return len(m.Profiles), nil
}
