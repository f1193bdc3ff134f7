package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"manifold/internal/discovery"
	"manifold/internal/discovery/llmclient"
)

const responderMaxChars = 600

const responderSystemPrompt = `You are a concise assistant for a service-provider discovery chat.
Answer greetings, thanks, and meta-questions about yourself briefly and warmly. Do not perform a provider search.
Keep the reply under 600 characters.`

// ConversationalResponder is spec.md §4.9: a single LLM call for
// greetings/meta-questions, with a deterministic template fallback.
type ConversationalResponder struct {
	LLM   *llmclient.Client
	Model string
}

// Respond issues the single LLM call with country, service type, and the
// last 3 turns, falling back to a deterministic template keyed by the
// message on LLM failure.
func (r *ConversationalResponder) Respond(ctx context.Context, message, country, serviceType string, turns []discovery.Turn) string {
	recent := turns
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	prompt := fmt.Sprintf("Country: %s\nService type: %s\nRecent turns: %s\n\nUser: %s", country, serviceType, formatTurns(recent), message)
	text, err := r.LLM.Complete(ctx, responderSystemPrompt, prompt, llmclient.Options{Model: r.Model, Temperature: 0.5, MaxTokens: 256}, nil)
	if err != nil {
		return templateResponse(message)
	}
	if len(text) > responderMaxChars {
		text = text[:responderMaxChars]
	}
	return text
}

func templateResponse(message string) string {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, []string{"thanks", "thank you"}):
		return "You're welcome! Let me know if you'd like help finding another provider."
	case containsAny(lower, greetingWords):
		return "Hello! Tell me what kind of service provider you're looking for and I'll help you find one."
	default:
		return "I'm here to help you find service providers. Could you tell me a bit more about what you need?"
	}
}
