// Package orchestrator implements the Orchestrator and Conversational
// Responder from spec.md §4.8–§4.9: the per-turn classifier that decides
// between the Workflow and a direct conversational reply, and owns
// persistence of the turn.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"manifold/internal/discovery"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/discovery/sessionstore"
	"manifold/internal/discovery/workflow"
)

// Orchestrator routes one turn to either the Workflow Coordinator or the
// Conversational Responder, persisting the user turn before dispatch and
// the assistant's final turn after the terminal event.
type Orchestrator struct {
	Sessions    sessionstore.Store
	LLM         *llmclient.Client
	Workflow    *workflow.Coordinator
	Responder   *ConversationalResponder
	Model       string
	MaxResults  int

	mu          sync.Mutex
	sessionLock map[uuid.UUID]*sync.Mutex
}

func New(sessions sessionstore.Store, client *llmclient.Client, coord *workflow.Coordinator, responder *ConversationalResponder, model string, maxResults int) *Orchestrator {
	return &Orchestrator{
		Sessions:    sessions,
		LLM:         client,
		Workflow:    coord,
		Responder:   responder,
		Model:       model,
		MaxResults:  maxResults,
		sessionLock: make(map[uuid.UUID]*sync.Mutex),
	}
}

const classifierSystemPrompt = `You classify a user's message in a service-provider discovery chat.
Respond with strict JSON: {"tool_needed": bool, "tool": "search"|"conversational", "summary": string, "direct_response": string|null}.
Use "conversational" only for greetings, thanks, or meta-questions about the assistant itself; everything else needing provider information is "search".`

var greetingWords = []string{"hi", "hello", "hey", "thanks", "thank you", "good morning", "good afternoon", "good evening"}
var searchVerbs = []string{"find", "search", "looking for", "need a", "recommend", "who can", "show me"}

// Handle runs one turn: persist the user message, classify it, dispatch to
// the Workflow or the Conversational Responder, and persist the assistant's
// final content. Per-session in-flight concurrency is serialized to 1
// (spec.md §5) so interleaved assistant turns for the same session cannot
// occur.
func (o *Orchestrator) Handle(ctx context.Context, events chan<- discovery.Event, sessionID uuid.UUID, message, country, serviceType string) error {
	lock := o.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := o.Sessions.AppendMessage(ctx, sessionID, discovery.RoleUser, message); err != nil {
		return err
	}

	turns, err := o.Sessions.HistoryAsTurns(ctx, sessionID, 5)
	if err != nil {
		return err
	}

	decision := o.classify(ctx, message, country, serviceType, turns)

	var finalText string
	if decision.Tool == discovery.ToolSearch {
		emitEvent(ctx, events, "analysis", discovery.F("summary", decision.Summary))
		state := o.Workflow.Run(ctx, events, sessionID.String(), decision.Summary, o.MaxResults, 0.5)
		finalText = lastSubstantiveText(state)
	} else {
		finalText = o.Responder.Respond(ctx, message, country, serviceType, turns)
		emitEvent(ctx, events, "final", discovery.F("content", finalText))
	}

	if ctx.Err() != nil {
		_, _ = o.Sessions.AppendMessage(context.Background(), sessionID, discovery.RoleAssistant, "Request was cancelled before completion.")
		return ctx.Err()
	}

	_, err = o.Sessions.AppendMessage(ctx, sessionID, discovery.RoleAssistant, finalText)
	return err
}

func (o *Orchestrator) lockFor(sessionID uuid.UUID) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.sessionLock[sessionID]
	if !ok {
		l = &sync.Mutex{}
		o.sessionLock[sessionID] = l
	}
	return l
}

// classify calls the LLM for an OrchestratorDecision, falling back to a
// keyword heuristic on error (spec.md §4.8 step 3).
func (o *Orchestrator) classify(ctx context.Context, message, country, serviceType string, turns []discovery.Turn) discovery.OrchestratorDecision {
	var parsed struct {
		ToolNeeded     bool    `json:"tool_needed"`
		Tool           string  `json:"tool"`
		Summary        string  `json:"summary"`
		DirectResponse *string `json:"direct_response"`
	}
	prompt := fmt.Sprintf("Country: %s\nService type: %s\nRecent turns: %s\n\nMessage: %s", country, serviceType, formatTurns(turns), message)
	_, err := o.LLM.Complete(ctx, classifierSystemPrompt, prompt, llmclient.Options{Model: o.Model, Temperature: 0.2, MaxTokens: 512}, &parsed)
	if err != nil {
		return heuristicClassify(message, country, serviceType)
	}
	decision := discovery.OrchestratorDecision{
		ToolNeeded: parsed.ToolNeeded,
		Tool:       discovery.OrchestratorTool(parsed.Tool),
		Summary:    parsed.Summary,
	}
	if parsed.DirectResponse != nil {
		decision.DirectResponse = *parsed.DirectResponse
	}
	return decision
}

func heuristicClassify(message, country, serviceType string) discovery.OrchestratorDecision {
	lower := strings.ToLower(message)
	isGreeting := containsAny(lower, greetingWords)
	isSearch := containsAny(lower, searchVerbs)
	if isGreeting && !isSearch {
		return discovery.OrchestratorDecision{ToolNeeded: false, Tool: discovery.ToolConversational, Summary: "greeting"}
	}
	return discovery.OrchestratorDecision{
		ToolNeeded: true,
		Tool:       discovery.ToolSearch,
		Summary:    fmt.Sprintf("Find %s providers in %s: %s", serviceType, country, message),
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func formatTurns(turns []discovery.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "user: %s\nassistant: %s\n", t.User.Content, t.Assistant.Content)
	}
	return b.String()
}

func emitEvent(ctx context.Context, events chan<- discovery.Event, eventType string, fields map[string]any) {
	if events == nil {
		return
	}
	select {
	case events <- discovery.Event{Type: eventType, Fields: fields}:
	case <-ctx.Done():
	}
}

// lastSubstantiveText extracts the content to persist: the summary text of
// the final workflow outcome (spec.md §4.8 step 6 — only the final
// summary, not intermediate statuses, is persisted).
func lastSubstantiveText(state discovery.WorkflowState) string {
	if state.Summary != nil {
		return state.Summary.ExecutiveSummary
	}
	if len(state.Errors) > 0 {
		return "Sorry, something went wrong while searching. Please try again shortly."
	}
	if state.AdjudicationResult != nil {
		return "No candidates were found relevant to this search."
	}
	return "No matching providers were found for this search."
}
