package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/discovery"
	"manifold/internal/discovery/agents"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/discovery/retriever"
	"manifold/internal/llm"
)

type scriptedProvider struct {
	responses []string
	i         int
}

func (s *scriptedProvider) next() string {
	if s.i >= len(s.responses) {
		return s.responses[len(s.responses)-1]
	}
	r := s.responses[s.i]
	s.i++
	return r
}

func (s *scriptedProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	return llm.Message{Content: s.next()}, nil
}

func (s *scriptedProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	h.OnDelta(s.next())
	return nil
}

func drainEvents(ch <-chan discovery.Event) []discovery.Event {
	var out []discovery.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func buildCoordinator(llmProvider llm.Provider, r retriever.Retriever, threshold float64) *Coordinator {
	client := llmclient.New(llmProvider)
	return &Coordinator{
		Search:      &agents.SearchAgent{LLM: client, Retriever: r, Model: "test-model"},
		Adjudicator: &agents.AdjudicatorAgent{LLM: client, Model: "test-model"},
		Summarizer:  &agents.SummarizerAgent{LLM: client, Model: "test-model"},
		Threshold:   threshold,
	}
}

func TestCoordinatorRunsFullPipelineToComplete(t *testing.T) {
	r := retriever.NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1, SimilarityScore: 0.9, ProfileText: "Company Name: Acme\nCountry: USA\nProvider Type: Law Firm"})

	p := &scriptedProvider{responses: []string{
		`{"strategy":"semantic","extracted_tags":[],"rewritten_query":"tax advisory","rationale":"r"}`,
		`{"relevance_score":0.9,"reasoning":"great service match","confidence":0.8}`,
		`{"executive_summary":"Found a great match.","provider_recommendations":["Acme"],"key_insights":["solid fit"]}`,
	}}
	coord := buildCoordinator(p, r, 0.7)
	events := make(chan discovery.Event, 64)
	var state discovery.WorkflowState
	go func() {
		defer close(events)
		state = coord.Run(context.Background(), events, "wf-1", "need a tax advisor", 5, 0.5)
	}()
	evts := drainEvents(events)

	require.NotNil(t, state.Summary)
	require.Equal(t, "Found a great match.", state.Summary.ExecutiveSummary)
	require.Equal(t, evts[len(evts)-1].Type, "complete")
	require.Len(t, state.StageLog, 3)
}

func TestCoordinatorShortCircuitsOnNoSearchResults(t *testing.T) {
	r := retriever.NewMemoryRetriever()
	p := &scriptedProvider{responses: []string{
		`{"strategy":"semantic","extracted_tags":[],"rewritten_query":"x","rationale":"r"}`,
	}}
	coord := buildCoordinator(p, r, 0.7)
	events := make(chan discovery.Event, 64)
	var state discovery.WorkflowState
	go func() {
		defer close(events)
		state = coord.Run(context.Background(), events, "wf-2", "obscure query", 5, 0.5)
	}()
	evts := drainEvents(events)

	require.Nil(t, state.AdjudicationResult)
	var sawNoResults bool
	for _, e := range evts {
		if e.Type == "no_results" {
			sawNoResults = true
		}
	}
	require.True(t, sawNoResults)
}

func TestCoordinatorShortCircuitsWhenNoCandidateIsRelevant(t *testing.T) {
	r := retriever.NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1, SimilarityScore: 0.9, ProfileText: "Company Name: Acme"})
	p := &scriptedProvider{responses: []string{
		`{"strategy":"semantic","extracted_tags":[],"rewritten_query":"x","rationale":"r"}`,
		`{"relevance_score":0.1,"reasoning":"bad location match","confidence":0.5}`,
	}}
	coord := buildCoordinator(p, r, 0.7)
	events := make(chan discovery.Event, 64)
	var state discovery.WorkflowState
	go func() {
		defer close(events)
		state = coord.Run(context.Background(), events, "wf-3", "query", 5, 0.5)
	}()
	evts := drainEvents(events)

	require.Nil(t, state.Summary)
	var sawNoResults bool
	for _, e := range evts {
		if e.Type == "no_results" {
			sawNoResults = true
		}
	}
	require.True(t, sawNoResults)
}

func TestCoordinatorEmitsExactlyOneTerminalEvent(t *testing.T) {
	r := retriever.NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1, SimilarityScore: 0.9, ProfileText: "Company Name: Acme"})
	p := &scriptedProvider{responses: []string{
		`{"strategy":"semantic","extracted_tags":[],"rewritten_query":"x","rationale":"r"}`,
		`{"relevance_score":0.9,"reasoning":"great fit","confidence":0.8}`,
		`{"executive_summary":"done","provider_recommendations":[],"key_insights":[]}`,
	}}
	coord := buildCoordinator(p, r, 0.7)
	events := make(chan discovery.Event, 64)
	go func() {
		defer close(events)
		coord.Run(context.Background(), events, "wf-4", "query", 5, 0.5)
	}()
	evts := drainEvents(events)

	terminal := 0
	for _, e := range evts {
		switch e.Type {
		case "complete", "no_results", "error", "cancelled":
			if e.Agent == "" {
				terminal++
			}
		}
	}
	require.Equal(t, 1, terminal)
}
