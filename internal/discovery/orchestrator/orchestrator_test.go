package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/discovery"
	"manifold/internal/discovery/agents"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/discovery/retriever"
	"manifold/internal/discovery/sessionstore"
	"manifold/internal/discovery/workflow"
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

func newOrchestrator(t *testing.T, p llm.Provider) (*Orchestrator, sessionstore.Store) {
	t.Helper()
	store := sessionstore.NewMemoryStore()
	client := llmclient.New(p)
	r := retriever.NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1, SimilarityScore: 0.9, ProfileText: "Company Name: Acme\nCountry: USA"})
	coord := &workflow.Coordinator{
		Search:      &agents.SearchAgent{LLM: client, Retriever: r, Model: "test"},
		Adjudicator: &agents.AdjudicatorAgent{LLM: client, Model: "test"},
		Summarizer:  &agents.SummarizerAgent{LLM: client, Model: "test"},
		Threshold:   0.7,
	}
	responder := &ConversationalResponder{LLM: client, Model: "test"}
	return New(store, client, coord, responder, "test", 5), store
}

func TestOrchestratorRoutesGreetingToConversationalResponder(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		`{"tool_needed":false,"tool":"conversational","summary":"greeting","direct_response":null}`,
		"Hello there!",
	}}
	orch, store := newOrchestrator(t, p)
	session, _, err := store.GetOrCreate(context.Background(), nil, nil, "USA", "Legal")
	require.NoError(t, err)

	events := make(chan discovery.Event, 32)
	go func() {
		defer close(events)
		err := orch.Handle(context.Background(), events, session.SessionID, "hello!", "USA", "Legal")
		require.NoError(t, err)
	}()
	for range events {
	}

	history, err := store.History(context.Background(), session.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, discovery.RoleUser, history[0].Role)
	require.Equal(t, discovery.RoleAssistant, history[1].Role)
	require.Equal(t, "Hello there!", history[1].Content)
}

func TestOrchestratorRoutesSearchToWorkflowAndPersistsFinalSummary(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		`{"tool_needed":true,"tool":"search","summary":"Find Legal providers in USA: need a lawyer","direct_response":null}`,
		`{"strategy":"semantic","extracted_tags":[],"rewritten_query":"legal services","rationale":"r"}`,
		`{"relevance_score":0.9,"reasoning":"great fit","confidence":0.8}`,
		`{"executive_summary":"Found Acme for you.","provider_recommendations":["Acme"],"key_insights":["good match"]}`,
	}}
	orch, store := newOrchestrator(t, p)
	session, _, err := store.GetOrCreate(context.Background(), nil, nil, "USA", "Legal")
	require.NoError(t, err)

	events := make(chan discovery.Event, 64)
	go func() {
		defer close(events)
		err := orch.Handle(context.Background(), events, session.SessionID, "need a lawyer", "USA", "Legal")
		require.NoError(t, err)
	}()
	for range events {
	}

	history, err := store.History(context.Background(), session.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "Found Acme for you.", history[1].Content)
}

func TestHeuristicClassifyFallsBackOnGreetingVsSearch(t *testing.T) {
	greeting := heuristicClassify("hey there, thanks!", "USA", "Legal")
	require.Equal(t, discovery.ToolConversational, greeting.Tool)

	search := heuristicClassify("I need to find a lawyer", "USA", "Legal")
	require.Equal(t, discovery.ToolSearch, search.Tool)
	require.Contains(t, search.Summary, "Legal")
	require.Contains(t, search.Summary, "USA")
}
