package retriever

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"manifold/internal/discovery"
)

// payloadIDField stashes the profile's canonical int64 id in the point
// payload since Qdrant point ids must be UUIDs or positive integers
// (adapted from manifold's qdrant_vector.go).
const payloadIDField = "_profile_id"

// QdrantStore is the semantic leg of the Profile Retriever: vector similarity
// search over provider-profile embeddings, grounded on
// internal/persistence/databases/qdrant_vector.go's collection-ensure and
// deterministic-UUID-point idioms.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	embedder   Embedder
}

// NewQdrantStore dials Qdrant's gRPC API (default port 6334) and ensures the
// profile collection exists with a cosine-distance vector space.
func NewQdrantStore(dsn, collection string, dimension int, embedder Embedder) (*QdrantStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	store := &QdrantStore{client: client, collection: collection, dimension: dimension, embedder: embedder}
	if err := store.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return store, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimension > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Upsert indexes a profile's embedding vector and minimal payload. Used by
// the (separate, out-of-scope) ingestion pipeline but kept here since it
// shares the client and point-id scheme with SearchSemantic.
func (q *QdrantStore) Upsert(ctx context.Context, profileID int64, vector []float32, profileText string) error {
	pointUUID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.FormatInt(profileID, 10))).String()
	payload := qdrant.NewValueMap(map[string]any{
		payloadIDField: profileID,
		"profile_text":  profileText,
	})
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointUUID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}},
	})
	return err
}

// SearchSemantic embeds the query and runs cosine similarity search,
// normalizing Qdrant's raw score to the spec's [0,1] similarity
// (1 - cosine distance, clamped), adapted from qdrant_vector.go's
// SimilaritySearch + QueryPoints pattern.
func (q *QdrantStore) SearchSemantic(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]discovery.ProfileMatch, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	vec, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	limit := uint64(maxResults)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]discovery.ProfileMatch, 0, len(hits))
	for _, hit := range hits {
		similarity := clampSimilarity(float64(hit.Score))
		if similarity < minSimilarity {
			continue
		}
		var profileID int64
		var text string
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadIDField]; ok {
				profileID = v.GetIntegerValue()
			}
			if v, ok := hit.Payload["profile_text"]; ok {
				text = v.GetStringValue()
			}
		}
		out = append(out, discovery.ProfileMatch{ProfileID: profileID, SimilarityScore: similarity, ProfileText: text})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SimilarityScore > out[j].SimilarityScore })
	return out, nil
}

func clampSimilarity(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (q *QdrantStore) Close() error { return q.client.Close() }
