package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/discovery"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/llm"
)

func TestSummarizerParsesStructuredOutputAndComputesConfidence(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
		return llm.Message{Content: `{"executive_summary":"Found 2 providers.","provider_recommendations":["Acme"],"key_insights":["good fit"]}`}, nil
	}}
	agent := &SummarizerAgent{LLM: llmclient.New(p), Model: "test-model"}
	relevant := []discovery.ProfileMatch{
		{ProfileID: 1, ProfileText: "Company Name: Acme\nCountry: USA\nProvider Type: Law Firm", SimilarityScore: 0.9},
		{ProfileID: 2, ProfileText: "Company Name: Beta\nCountry: USA\nProvider Type: Accountant", SimilarityScore: 0.8},
	}
	events := make(chan discovery.Event, 32)
	var out discovery.SummarizerOutput
	go func() {
		defer close(events)
		out, _ = agent.Run(context.Background(), events, "query", relevant, StyleBrief)
	}()
	evts := drain(events)

	require.Equal(t, "Found 2 providers.", out.ExecutiveSummary)
	require.InDelta(t, 0.8, out.Confidence, 0.001)
	require.Equal(t, 2, out.SummaryStatistics["total_count"])

	require.Equal(t, "statistics_complete", evts[0].Type)
	require.Equal(t, "complete", evts[len(evts)-1].Type)
}

func TestSummarizerFallsBackOnParseFailure(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
		return llm.Message{Content: "not json"}, nil
	}}
	agent := &SummarizerAgent{LLM: llmclient.New(p), Model: "test-model"}
	relevant := []discovery.ProfileMatch{
		{ProfileID: 1, ProfileText: "Company Name: Acme\nCountry: USA", SimilarityScore: 0.9, DeepLink: "https://example.com/acme"},
	}
	events := make(chan discovery.Event, 32)
	var out discovery.SummarizerOutput
	go func() {
		defer close(events)
		out, _ = agent.Run(context.Background(), events, "query", relevant, StyleBrief)
	}()
	drain(events)

	require.Len(t, out.ProviderRecommendations, 1)
	require.Contains(t, out.ProviderRecommendations[0], "Acme")
	require.Contains(t, out.ProviderRecommendations[0], "https://example.com/acme")
	require.Len(t, out.KeyInsights, 3)
}

func TestSummarizerConfidenceCapsAtPointNine(t *testing.T) {
	require.Equal(t, 0.9, summarizerConfidence(10))
	require.InDelta(t, 0.7, summarizerConfidence(1), 0.001)
}
