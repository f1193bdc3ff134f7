// Command discoveryd is the HTTP entrypoint for the conversational
// service-provider discovery platform (spec.md §6), wiring the Session
// Store, Profile Retriever, agent pipeline, Orchestrator, and optional
// ambient infra, grounded on manifold's cmd/orchestrator/main.go startup
// idiom: load config, init logging/OTel, install the provider HTTP client,
// listen until SIGINT/SIGTERM, then drain in-flight requests.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"manifold/internal/config"
	"manifold/internal/discovery/agents"
	"manifold/internal/discovery/events"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/discovery/orchestrator"
	"manifold/internal/discovery/retriever"
	"manifold/internal/discovery/sessionstore"
	"manifold/internal/discovery/workflow"
	"manifold/internal/httpapi"
	"manifold/internal/llm/providers"
	"manifold/internal/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("discoveryd")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()
	shutdownOTel, err := observability.InitOTel(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)
	provider, err := providers.Build(cfg, httpClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}
	llm := llmclient.New(provider)

	sessions, closeSessions, err := buildSessionStore(baseCtx, cfg)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}
	defer closeSessions()

	profiles, closeRetriever, err := buildRetriever(baseCtx, cfg)
	if err != nil {
		return fmt.Errorf("build profile retriever: %w", err)
	}
	defer closeRetriever()

	coord := &workflow.Coordinator{
		Search:      &agents.SearchAgent{LLM: llm, Retriever: profiles, Model: cfg.LLMClient.Model},
		Adjudicator: &agents.AdjudicatorAgent{LLM: llm, Model: cfg.LLMClient.Model},
		Summarizer:  &agents.SummarizerAgent{LLM: llm, Model: cfg.LLMClient.Model},
		Threshold:   cfg.RelevanceThreshold,
	}

	if brokers := parseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		publisher := events.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
		defer func() { _ = publisher.Close() }()
		coord.Events = publisher
	} else {
		coord.Events = events.NopPublisher{}
	}
	if sink, err := events.NewStageSink(baseCtx, cfg.Obs.ClickHouse.DSN, cfg.Obs.ClickHouse.Table); err != nil {
		log.Warn().Err(err).Msg("clickhouse stage sink init failed, continuing without it")
	} else if sink != nil {
		defer func() { _ = sink.Close() }()
		coord.Stages = sink
	}

	responder := &orchestrator.ConversationalResponder{LLM: llm, Model: cfg.LLMClient.Model}
	orch := orchestrator.New(sessions, llm, coord, responder, cfg.LLMClient.Model, cfg.MaxResults)

	server := httpapi.NewServer(sessions, orch, cfg.CountryList, cfg.ServiceTypeList)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: server}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopDeactivation := startDeactivationLoop(ctx, sessions, cfg.SessionDeactivateAfterDays)
	defer stopDeactivation()

	go func() {
		log.Info().Str("addr", addr).Msg("discoveryd listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildSessionStore picks Postgres when a DSN is configured, else falls
// back to the in-memory store so the service still runs for local/dev use
// (mirrors cmd/agentd/main.go's "works without external credentials" style).
func buildSessionStore(ctx context.Context, cfg config.Config) (sessionstore.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		log.Warn().Msg("no POSTGRES_DSN/DATABASE_URL configured, using in-memory session store")
		return sessionstore.NewMemoryStore(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return sessionstore.NewPostgresStore(pool), pool.Close, nil
}

// buildRetriever wires Qdrant+Postgres when both are configured, else an
// in-memory retriever for local/dev use. The semantic-search cache (Redis)
// wraps whichever retriever is chosen when REDIS_ADDR is set.
func buildRetriever(ctx context.Context, cfg config.Config) (retriever.Retriever, func(), error) {
	var base retriever.Retriever
	closeFn := func() {}

	switch {
	case cfg.Qdrant.Addr != "" && cfg.Postgres.DSN != "":
		embedder := &retriever.HTTPEmbedder{Host: cfg.Embedding.Host, APIKey: cfg.Embedding.APIKey, Model: cfg.Embedding.Model}
		semantic, err := retriever.NewQdrantStore(cfg.Qdrant.Addr, cfg.Qdrant.Collection, cfg.Embedding.Dimensions, embedder)
		if err != nil {
			return nil, nil, fmt.Errorf("connect qdrant: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		base = retriever.NewPostgresRetriever(pool, semantic)
		closeFn = pool.Close
	default:
		log.Warn().Msg("no QDRANT_ADDR/POSTGRES_DSN configured, using in-memory profile retriever")
		base = retriever.NewMemoryRetriever()
	}

	if cfg.Redis.Addr == "" {
		return base, closeFn, nil
	}
	cached := retriever.NewCachedRetriever(base, cfg.Redis.Addr, time.Duration(cfg.Redis.TTL)*time.Second)
	prevClose := closeFn
	return cached, func() { _ = cached.Close(); prevClose() }, nil
}

func parseBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// startDeactivationLoop runs deactivate_older_than every 7 days, deactivating
// sessions idle for longer than afterDays (spec.md §5's weekly maintenance
// task, grounded on cmd/agentd/main.go's background-task launch pattern).
func startDeactivationLoop(ctx context.Context, store sessionstore.Store, afterDays int) func() {
	if afterDays <= 0 {
		afterDays = 7
	}
	ticker := time.NewTicker(7 * 24 * time.Hour)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-ticker.C:
				n, err := store.DeactivateOlderThan(ctx, time.Duration(afterDays)*24*time.Hour)
				if err != nil {
					log.Error().Err(err).Msg("deactivate_older_than failed")
					continue
				}
				log.Info().Int("deactivated", n).Msg("deactivate_older_than swept sessions")
			}
		}
	}()
	return func() { <-done }
}
