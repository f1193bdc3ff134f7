// Package agents implements the Search, Adjudicator, and Summarizer agents
// from spec.md §4.4–§4.6. Each agent's run method emits discovery.Event
// values onto a caller-owned channel — the bounded (≈32) backpressure
// buffer spec.md §5 describes lives in the channel the caller allocates,
// not here; a producer blocks on a full channel rather than dropping.
package agents

import (
	"context"
	"time"

	"manifold/internal/discovery"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/discovery/retriever"
)

const searchAgentName = "search"

// SearchAgent is stage 1 of the pipeline (spec.md §4.4): picks a retrieval
// strategy via the LLM, then executes it against the Profile Retriever.
type SearchAgent struct {
	LLM       *llmclient.Client
	Retriever retriever.Retriever
	Model     string
}

const searchStrategySystemPrompt = `You choose a retrieval strategy for a service-provider search.
Respond with strict JSON: {"strategy": "semantic"|"tags"|"hybrid", "extracted_tags": [string], "rewritten_query": string, "rationale": string}.
"rewritten_query" must be phrased the way a provider would describe themselves, not as a question.`

// Run executes the Search Agent and emits its event stream onto events.
// It returns the terminal output even on a strategy-parse fallback; the
// only error return is a fatal Retriever failure, which also emits an
// {type: error} event before returning.
func (a *SearchAgent) Run(ctx context.Context, events chan<- discovery.Event, query string, maxResults int, minSimilarity float64) (discovery.SearchAgentOutput, error) {
	started := time.Now()
	emit(ctx, events, discovery.Event{Agent: searchAgentName, Type: "strategy_start"})

	decision := a.decideStrategy(ctx, query)
	emit(ctx, events, discovery.Event{Agent: searchAgentName, Type: "strategy_complete", Fields: discovery.F(
		"strategy", string(decision.Strategy),
		"extracted_tags", decision.ExtractedTags,
		"rewritten_query", decision.RewrittenQuery,
		"rationale", decision.Rationale,
	)})

	emit(ctx, events, discovery.Event{Agent: searchAgentName, Type: "search_start"})
	matches, err := a.dispatch(ctx, decision, maxResults, minSimilarity)
	if err != nil {
		emit(ctx, events, discovery.Event{Agent: searchAgentName, Type: "error", Fields: discovery.F("message", err.Error())})
		return discovery.SearchAgentOutput{}, err
	}

	total, _ := a.Retriever.CountTotal(ctx)
	emit(ctx, events, discovery.Event{Agent: searchAgentName, Type: "search_progress", Fields: discovery.F(
		"found", len(matches),
		"total_searched", total,
	)})

	out := discovery.SearchAgentOutput{
		CandidateProfiles:     matches,
		TotalProfilesSearched: total,
		SearchTimeSeconds:     time.Since(started).Seconds(),
		SearchStrategy:        string(decision.Strategy),
	}
	emit(ctx, events, discovery.Event{Agent: searchAgentName, Type: "complete", Fields: discovery.F("data", out)})
	return out, nil
}

// decideStrategy calls the LLM for a SearchStrategyDecision, falling back to
// semantic search over the original query on any ParseError (spec.md §4.4
// Failure).
func (a *SearchAgent) decideStrategy(ctx context.Context, query string) discovery.SearchStrategyDecision {
	var parsed struct {
		Strategy       string   `json:"strategy"`
		ExtractedTags  []string `json:"extracted_tags"`
		RewrittenQuery string   `json:"rewritten_query"`
		Rationale      string   `json:"rationale"`
	}
	_, err := a.LLM.Complete(ctx, searchStrategySystemPrompt, query, llmclient.Options{
		Model:       a.Model,
		Temperature: 0.3,
		MaxTokens:   1024,
	}, &parsed)
	if err != nil {
		return discovery.SearchStrategyDecision{
			Strategy:       discovery.StrategySemantic,
			RewrittenQuery: query,
			Rationale:      "fallback",
		}
	}
	return discovery.SearchStrategyDecision{
		Strategy:       discovery.SearchStrategy(parsed.Strategy),
		ExtractedTags:  parsed.ExtractedTags,
		RewrittenQuery: parsed.RewrittenQuery,
		Rationale:      parsed.Rationale,
	}
}

// dispatch picks the Retriever call per spec.md §4.4 step 3's precedence:
// tags only when strategy=tags and tags are non-empty; hybrid only when
// strategy=hybrid and tags are present; semantic otherwise.
func (a *SearchAgent) dispatch(ctx context.Context, decision discovery.SearchStrategyDecision, maxResults int, minSimilarity float64) ([]discovery.ProfileMatch, error) {
	switch {
	case decision.Strategy == discovery.StrategyTags && len(decision.ExtractedTags) > 0:
		return a.Retriever.SearchTags(ctx, decision.ExtractedTags, false, maxResults)
	case decision.Strategy == discovery.StrategyHybrid && len(decision.ExtractedTags) > 0:
		return a.Retriever.SearchHybrid(ctx, decision.RewrittenQuery, decision.ExtractedTags, maxResults)
	default:
		return a.Retriever.SearchSemantic(ctx, decision.RewrittenQuery, maxResults, minSimilarity)
	}
}
