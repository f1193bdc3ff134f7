package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/discovery/llmclient"
	"manifold/internal/llm"
)

type erroringProvider struct{}

func (erroringProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	return llm.Message{}, errors.New("upstream down")
}

func (erroringProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return errors.New("upstream down")
}

func TestConversationalResponderFallsBackToTemplateOnLLMFailure(t *testing.T) {
	responder := &ConversationalResponder{LLM: llmclient.New(erroringProvider{}), Model: "test"}
	got := responder.Respond(context.Background(), "hello", "USA", "Legal", nil)
	require.Contains(t, got, "Hello!")
}

func TestConversationalResponderUsesLLMWhenAvailable(t *testing.T) {
	p := &scriptedProvider{responses: []string{"Hi! How can I help you find a provider today?"}}
	responder := &ConversationalResponder{LLM: llmclient.New(p), Model: "test"}
	got := responder.Respond(context.Background(), "hello", "USA", "Legal", nil)
	require.Equal(t, "Hi! How can I help you find a provider today?", got)
}
