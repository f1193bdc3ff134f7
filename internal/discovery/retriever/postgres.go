package retriever

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/discovery"
)

// PostgresRetriever composes the semantic leg (Qdrant) with a Postgres-backed
// tag leg, following the read-only query style of chat_store_postgres.go.
// Tags and profile metadata (including deep-links) live in a
// `service_provider_profiles` / `profile_tags` schema that the separate,
// out-of-scope onboarding pipeline populates.
type PostgresRetriever struct {
	pool     *pgxpool.Pool
	semantic *QdrantStore
}

func NewPostgresRetriever(pool *pgxpool.Pool, semantic *QdrantStore) *PostgresRetriever {
	return &PostgresRetriever{pool: pool, semantic: semantic}
}

func (r *PostgresRetriever) SearchSemantic(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]discovery.ProfileMatch, error) {
	matches, err := r.semantic.SearchSemantic(ctx, query, maxResults, minSimilarity)
	if err != nil {
		return nil, err
	}
	return r.hydrateDeepLinks(ctx, matches)
}

// SearchTags matches spec.md §4.3's scoring rule: similarity is
// matched_tags / requested_tags, 1.0 when match_all holds fully. Tag
// comparison is case-insensitive, following search_profiles_by_service_tags's
// `iexact` semantics in the original Python implementation.
func (r *PostgresRetriever) SearchTags(ctx context.Context, tags []string, matchAll bool, maxResults int) ([]discovery.ProfileMatch, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
SELECT p.profile_id, p.profile_text, p.deep_link, COUNT(DISTINCT lower(t.tag)) AS matched
FROM service_provider_profiles p
JOIN profile_tags t ON t.profile_id = p.profile_id
WHERE lower(t.tag) = ANY($1)
GROUP BY p.profile_id, p.profile_text, p.deep_link
`, lowerAll(tags))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requested := len(tags)
	out := make([]discovery.ProfileMatch, 0)
	for rows.Next() {
		var m discovery.ProfileMatch
		var matched int
		if err := rows.Scan(&m.ProfileID, &m.ProfileText, &m.DeepLink, &matched); err != nil {
			return nil, err
		}
		if matched == 0 {
			continue
		}
		if matchAll && matched < requested {
			continue
		}
		if matchAll {
			m.SimilarityScore = 1.0
		} else {
			m.SimilarityScore = float64(matched) / float64(requested)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortBySimilarityDesc(out)
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// SearchHybrid runs the semantic leg and flags which hits also match a
// requested tag, then applies the shared combineHybrid scoring rule.
func (r *PostgresRetriever) SearchHybrid(ctx context.Context, query string, tags []string, maxResults int) ([]discovery.ProfileMatch, error) {
	semantic, err := r.semantic.SearchSemantic(ctx, query, maxResults*2, 0)
	if err != nil {
		return nil, err
	}
	semantic, err = r.hydrateDeepLinks(ctx, semantic)
	if err != nil {
		return nil, err
	}
	tagged := map[int64]bool{}
	if len(tags) > 0 {
		rows, err := r.pool.Query(ctx, `
SELECT DISTINCT p.profile_id
FROM service_provider_profiles p
JOIN profile_tags t ON t.profile_id = p.profile_id
WHERE lower(t.tag) = ANY($1)`, lowerAll(tags))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			tagged[id] = true
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return combineHybrid(semantic, tagged, maxResults), nil
}

func (r *PostgresRetriever) CountTotal(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM service_provider_profiles`).Scan(&n)
	return n, err
}

func (r *PostgresRetriever) hydrateDeepLinks(ctx context.Context, matches []discovery.ProfileMatch) ([]discovery.ProfileMatch, error) {
	if len(matches) == 0 {
		return matches, nil
	}
	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.ProfileID
	}
	rows, err := r.pool.Query(ctx, `SELECT profile_id, deep_link FROM service_provider_profiles WHERE profile_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	links := map[int64]string{}
	for rows.Next() {
		var id int64
		var link string
		if err := rows.Scan(&id, &link); err != nil {
			return nil, err
		}
		links[id] = link
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range matches {
		matches[i].DeepLink = links[matches[i].ProfileID]
	}
	return matches, nil
}

func lowerAll(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = toLower(t)
	}
	return out
}
