package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/discovery"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/discovery/retriever"
	"manifold/internal/llm"
)

type fakeProvider struct {
	chatFn func(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error)
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	return f.chatFn(ctx, msgs, tools, model)
}

func (f *fakeProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	msg, err := f.chatFn(ctx, msgs, tools, model)
	if err != nil {
		return err
	}
	h.OnDelta(msg.Content)
	return nil
}

func drain(ch <-chan discovery.Event) []discovery.Event {
	var out []discovery.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestSearchAgentDispatchesSemanticByDefault(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
		return llm.Message{Content: `{"strategy":"semantic","extracted_tags":[],"rewritten_query":"tax advisory services","rationale":"best fit"}`}, nil
	}}
	r := retriever.NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1, SimilarityScore: 0.9, ProfileText: "Company Name: Acme Tax"})

	agent := &SearchAgent{LLM: llmclient.New(p), Retriever: r, Model: "test-model"}
	events := make(chan discovery.Event, 32)
	var out discovery.SearchAgentOutput
	var err error
	go func() {
		defer close(events)
		out, err = agent.Run(context.Background(), events, "need a tax advisor", 5, 0.5)
	}()
	evts := drain(events)

	require.NoError(t, err)
	require.Equal(t, "semantic", out.SearchStrategy)
	require.Len(t, out.CandidateProfiles, 1)
	require.Equal(t, "complete", evts[len(evts)-1].Type)
}

func TestSearchAgentFallsBackToSemanticOnParseFailure(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
		return llm.Message{Content: "not json"}, nil
	}}
	r := retriever.NewMemoryRetriever()
	agent := &SearchAgent{LLM: llmclient.New(p), Retriever: r, Model: "test-model"}
	events := make(chan discovery.Event, 32)
	var out discovery.SearchAgentOutput
	go func() {
		defer close(events)
		out, _ = agent.Run(context.Background(), events, "original query", 5, 0.5)
	}()
	drain(events)
	require.Equal(t, "semantic", out.SearchStrategy)
}

func TestSearchAgentDispatchesTagsOnlyWhenTagsPresent(t *testing.T) {
	p := &fakeProvider{chatFn: func(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
		return llm.Message{Content: `{"strategy":"tags","extracted_tags":["tax"],"rewritten_query":"tax","rationale":"r"}`}, nil
	}}
	r := retriever.NewMemoryRetriever()
	r.Add(discovery.ProfileMatch{ProfileID: 1}, "tax")
	r.Add(discovery.ProfileMatch{ProfileID: 2}, "immigration")

	agent := &SearchAgent{LLM: llmclient.New(p), Retriever: r, Model: "test-model"}
	events := make(chan discovery.Event, 32)
	var out discovery.SearchAgentOutput
	go func() {
		defer close(events)
		out, _ = agent.Run(context.Background(), events, "q", 5, 0.5)
	}()
	drain(events)
	require.Len(t, out.CandidateProfiles, 1)
	require.Equal(t, int64(1), out.CandidateProfiles[0].ProfileID)
}
