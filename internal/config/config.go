// manifold/config.go

package config

// OpenAIConfig configures the OpenAI-compatible provider (also used for the
// "local" provider against an OpenAI-compatible self-hosted server).
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	API         string // "completions" (default) or "responses"
	LogPayloads bool
	ExtraParams map[string]any
}

// AnthropicPromptCacheConfig controls Anthropic prompt-cache breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
}

type AnthropicConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	PromptCache AnthropicPromptCacheConfig
}

type GoogleConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout int // seconds
}

// LLMClientConfig selects and configures the active LLM provider used by the
// Search/Adjudicator/Summarizer agents, the Orchestrator's classifier, and
// the Conversational Responder.
type LLMClientConfig struct {
	Provider   string // "openai" (default), "local", "anthropic", "google"
	Model      string
	Timeout    int // seconds; loaded from LLM_TIMEOUT_SECONDS but not passed to llmclient.Options, which defaults to 30s
	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig
	Google     GoogleConfig
}

// ObsConfig controls logging and OpenTelemetry export.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string // OTLP endpoint; empty disables tracing/metrics export
	ClickHouse     ClickHouseConfig
}

// ClickHouseConfig backs the best-effort stage-timing sink.
type ClickHouseConfig struct {
	DSN   string
	Table string
}

// PostgresConfig backs the Session Store and the Profile Retriever's tag leg.
type PostgresConfig struct {
	DSN string
}

// QdrantConfig backs the Profile Retriever's semantic leg.
type QdrantConfig struct {
	Addr       string
	Collection string
	APIKey     string
}

// EmbeddingConfig points at the embeddings endpoint used to vectorize
// queries before they reach Qdrant.
type EmbeddingConfig struct {
	Host       string
	APIKey     string
	Model      string
	Dimensions int
}

// RedisConfig backs the optional semantic-search cache in front of the
// Profile Retriever.
type RedisConfig struct {
	Addr string
	TTL  int // seconds
}

// KafkaConfig backs the fire-and-forget workflow.completed publisher.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// Config is the discovery platform's full runtime configuration, assembled
// by Load from environment variables (and an optional .env file).
type Config struct {
	Host string
	Port int

	LLMClient LLMClientConfig

	SessionDeactivateAfterDays int
	MaxResults                 int
	RelevanceThreshold         float64
	MinSimilarity              float64
	CountryList                []string
	ServiceTypeList            []string

	Postgres  PostgresConfig
	Qdrant    QdrantConfig
	Embedding EmbeddingConfig
	Redis     RedisConfig
	Kafka     KafkaConfig

	LogPath string
	LogLevel string

	Obs ObsConfig
}
