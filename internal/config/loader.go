package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

const (
	defaultModel              = "claude-3-5-haiku-20241022"
	defaultMaxResults          = 5
	defaultRelevanceThreshold  = 0.7
	defaultMinSimilarity       = 0.5
	defaultDeactivateAfterDays = 7
)

// Load reads configuration from environment variables (optionally a .env
// file in the working directory, which takes priority over the ambient
// environment so local/dev runs are deterministic).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	cfg.Host = firstNonEmpty(strings.TrimSpace(os.Getenv("HOST")), "0.0.0.0")
	cfg.Port = intFromEnv("PORT", 8080)

	cfg.LLMClient.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	cfg.LLMClient.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_MODEL")), defaultModel)
	cfg.LLMClient.Timeout = intFromEnv("LLM_TIMEOUT_SECONDS", 30)

	apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	cfg.LLMClient.OpenAI.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_API_KEY")), apiKey)
	cfg.LLMClient.OpenAI.Model = cfg.LLMClient.Model
	cfg.LLMClient.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	cfg.LLMClient.OpenAI.API = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_API_MODE")), "completions")
	if v := strings.TrimSpace(os.Getenv("LOG_LLM_PAYLOADS")); v != "" {
		cfg.LLMClient.OpenAI.LogPayloads = strings.EqualFold(v, "true") || v == "1"
	}

	cfg.LLMClient.Anthropic.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")), apiKey)
	cfg.LLMClient.Anthropic.Model = cfg.LLMClient.Model
	cfg.LLMClient.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_PROMPT_CACHE")); v != "" {
		cfg.LLMClient.Anthropic.PromptCache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	cfg.LLMClient.Google.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")), apiKey)
	cfg.LLMClient.Google.Model = cfg.LLMClient.Model
	cfg.LLMClient.Google.BaseURL = strings.TrimSpace(os.Getenv("GOOGLE_BASE_URL"))
	cfg.LLMClient.Google.Timeout = intFromEnv("GOOGLE_TIMEOUT_SECONDS", 30)

	cfg.SessionDeactivateAfterDays = intFromEnv("SESSION_DEACTIVATE_AFTER_DAYS", defaultDeactivateAfterDays)
	cfg.MaxResults = intFromEnv("MAX_RESULTS", defaultMaxResults)
	if v := strings.TrimSpace(os.Getenv("RELEVANCE_THRESHOLD")); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.RelevanceThreshold = f
		}
	}
	if cfg.RelevanceThreshold == 0 {
		cfg.RelevanceThreshold = defaultRelevanceThreshold
	}
	if v := strings.TrimSpace(os.Getenv("MIN_SIMILARITY")); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.MinSimilarity = f
		}
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = defaultMinSimilarity
	}

	countries, serviceTypes, err := loadOptionLists(strings.TrimSpace(os.Getenv("OPTIONS_FILE")))
	if err != nil {
		return cfg, err
	}
	cfg.CountryList = firstNonEmptyList(parseCommaSeparatedList(os.Getenv("COUNTRY_LIST")), countries)
	cfg.ServiceTypeList = firstNonEmptyList(parseCommaSeparatedList(os.Getenv("SERVICE_TYPE_LIST")), serviceTypes)

	cfg.Postgres.DSN = firstNonEmpty(strings.TrimSpace(os.Getenv("DATABASE_URL")), strings.TrimSpace(os.Getenv("POSTGRES_DSN")))

	cfg.Qdrant.Addr = strings.TrimSpace(os.Getenv("QDRANT_ADDR"))
	cfg.Qdrant.Collection = firstNonEmpty(strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")), "provider_profiles")
	cfg.Qdrant.APIKey = strings.TrimSpace(os.Getenv("QDRANT_API_KEY"))

	cfg.Embedding.Host = strings.TrimSpace(os.Getenv("EMBED_HOST"))
	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBED_API_KEY"))
	cfg.Embedding.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBED_MODEL")), "nomic-embed-text-v1.5.Q8_0")
	cfg.Embedding.Dimensions = intFromEnv("EMBED_DIMENSIONS", 768)

	cfg.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.Redis.TTL = intFromEnv("REDIS_CACHE_TTL_SECONDS", 300)

	cfg.Kafka.Brokers = firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_BROKERS")), strings.TrimSpace(os.Getenv("KAFKA_BOOTSTRAP_SERVERS")))
	cfg.Kafka.Topic = firstNonEmpty(strings.TrimSpace(os.Getenv("KAFKA_WORKFLOW_TOPIC")), "workflow.completed")

	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")

	cfg.Obs.ServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "discoveryd")
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = firstNonEmpty(strings.TrimSpace(os.Getenv("ENVIRONMENT")), "dev")
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.Obs.ClickHouse.DSN = strings.TrimSpace(os.Getenv("CLICKHOUSE_DSN"))
	cfg.Obs.ClickHouse.Table = firstNonEmpty(strings.TrimSpace(os.Getenv("CLICKHOUSE_STAGE_TABLE")), "workflow_stage_log")

	return cfg, nil
}

// optionsFile is the shape of the YAML fixture backing the allowed-value
// dropdowns (spec.md §6's /country/ endpoint); COUNTRY_LIST/SERVICE_TYPE_LIST
// env vars take priority over the fixture when set.
type optionsFile struct {
	Countries    []string `yaml:"countries"`
	ServiceTypes []string `yaml:"service_types"`
}

func loadOptionLists(path string) ([]string, []string, error) {
	if path == "" {
		return nil, nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var parsed optionsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, nil, err
	}
	return parsed.Countries, parsed.ServiceTypes, nil
}

func firstNonEmptyList(preferred, fallback []string) []string {
	if len(preferred) > 0 {
		return preferred
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := parseInt(v); err == nil {
			return n
		}
	}
	return def
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
