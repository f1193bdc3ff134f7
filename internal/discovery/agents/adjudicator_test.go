package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/discovery"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/llm"
)

func TestAdjudicatorProcessesCandidatesInOrderWithoutInterleaving(t *testing.T) {
	calls := 0
	p := &fakeProvider{chatFn: func(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
		calls++
		if calls == 1 {
			return llm.Message{Content: `{"relevance_score":0.9,"reasoning":"good service match","confidence":0.8}`}, nil
		}
		return llm.Message{Content: `{"relevance_score":0.2,"reasoning":"wrong location","confidence":0.7}`}, nil
	}}
	agent := &AdjudicatorAgent{LLM: llmclient.New(p), Model: "test-model"}
	candidates := []discovery.ProfileMatch{
		{ProfileID: 1, ProfileText: "Company Name: Acme\nCountry: USA"},
		{ProfileID: 2, ProfileText: "Company Name: Beta\nCountry: France"},
	}
	events := make(chan discovery.Event, 32)
	var out discovery.AdjudicatorOutput
	go func() {
		defer close(events)
		out, _ = agent.Run(context.Background(), events, "query", candidates, 0.7)
	}()
	evts := drain(events)

	require.Len(t, out.AdjudicatedProfiles, 2)
	require.True(t, out.AdjudicatedProfiles[0].IsRelevant)
	require.False(t, out.AdjudicatedProfiles[1].IsRelevant)
	require.Len(t, out.RelevantProfiles, 1)
	require.Contains(t, out.RejectionSummary, "location")

	// index-0 events must all precede index-1 events (no interleaving).
	sawIndex1 := false
	for _, e := range evts {
		idx, ok := e.Fields["index"]
		if !ok {
			continue
		}
		if idx == 1 {
			sawIndex1 = true
		}
		if idx == 0 && sawIndex1 {
			t.Fatalf("event for candidate 0 arrived after candidate 1 event: %+v", e)
		}
	}
}

func TestAdjudicatorRecordsFailedVerdictOnParseError(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
		return llm.Message{Content: "not json"}, nil
	}}
	agent := &AdjudicatorAgent{LLM: llmclient.New(p), Model: "test-model"}
	candidates := []discovery.ProfileMatch{{ProfileID: 1, ProfileText: "Company Name: Acme"}}
	events := make(chan discovery.Event, 32)
	var out discovery.AdjudicatorOutput
	go func() {
		defer close(events)
		out, _ = agent.Run(context.Background(), events, "query", candidates, 0.7)
	}()
	evts := drain(events)

	require.False(t, out.AdjudicatedProfiles[0].IsRelevant)
	require.Equal(t, 0.0, out.AdjudicatedProfiles[0].RelevanceScore)
	require.Contains(t, out.AdjudicatedProfiles[0].Reasoning, "Failed to evaluate")

	var sawProfileError bool
	for _, e := range evts {
		if e.Type == "profile_error" {
			sawProfileError = true
		}
	}
	require.True(t, sawProfileError)
}

func TestExtractProfileNameFallsBackToUnknown(t *testing.T) {
	require.Equal(t, "Unknown Company", extractProfileName("no relevant line here"))
	require.Equal(t, "Acme", extractProfileName("Country: USA\nCompany Name: Acme\n"))
}
