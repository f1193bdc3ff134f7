// Package discovery holds the shared data model for the conversational
// service-provider discovery pipeline: sessions, messages, profile matches,
// adjudication verdicts, and the streaming event envelope that ties the
// Search, Adjudicator, and Summarizer agents to the Workflow Coordinator.
package discovery

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a persisted Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is a durable conversation scoped to (owner, country, service type).
type Session struct {
	SessionID    uuid.UUID
	OwnerID      *int64
	Country      string
	ServiceType  string
	Title        string
	CreatedAt    time.Time
	LastActivity time.Time
	Active       bool
}

// Message is one append-only turn entry in a Session's history.
type Message struct {
	SessionID uuid.UUID
	Seq       int64
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Turn pairs a user message with its following assistant message.
type Turn struct {
	User      Message
	Assistant Message
}

// ProfileMatch is a service-provider profile returned by the Retriever.
type ProfileMatch struct {
	ProfileID       int64
	SimilarityScore float64
	ProfileText     string
	DeepLink        string
}

// SearchStrategy is the retrieval mode chosen for a query.
type SearchStrategy string

const (
	StrategySemantic SearchStrategy = "semantic"
	StrategyTags     SearchStrategy = "tags"
	StrategyHybrid   SearchStrategy = "hybrid"
)

// SearchStrategyDecision is the LLM's pick of retrieval strategy plus a
// provider-self-description rewrite of the user's query.
type SearchStrategyDecision struct {
	Strategy       SearchStrategy
	ExtractedTags  []string
	RewrittenQuery string
	Rationale      string
}

// SearchAgentOutput is the terminal payload of the Search Agent.
type SearchAgentOutput struct {
	CandidateProfiles     []ProfileMatch
	TotalProfilesSearched int
	SearchTimeSeconds     float64
	SearchStrategy        string
}

// AdjudicationResult is the per-candidate relevance verdict.
type AdjudicationResult struct {
	Profile        ProfileMatch
	RelevanceScore float64
	IsRelevant     bool
	Reasoning      string
	Confidence     float64
}

// AdjudicatorOutput is the terminal payload of the Adjudicator Agent.
type AdjudicatorOutput struct {
	AdjudicatedProfiles []AdjudicationResult
	RelevantProfiles    []ProfileMatch
	RejectionSummary    string
	AdjudicationConf    float64
}

// SummarizerOutput is the terminal payload of the Summarizer Agent.
type SummarizerOutput struct {
	ExecutiveSummary      string
	ProviderRecommendations []string
	KeyInsights           []string
	SummaryStatistics     map[string]any
	Confidence            float64
}

// StageLogEntry records one agent's execution window within a workflow run.
type StageLogEntry struct {
	Agent     string
	StartedAt time.Time
	EndedAt   time.Time
	OK        bool
	Message   string
}

// WorkflowState is the per-request state owned by a single Workflow
// Coordinator instance for the duration of a request.
type WorkflowState struct {
	WorkflowID          string
	OriginalQuery       string
	MaxResults          int
	SearchResult        *SearchAgentOutput
	AdjudicationResult  *AdjudicatorOutput
	Summary             *SummarizerOutput
	StartedAt           time.Time
	EndedAt             time.Time
	Errors              []string
	StageLog            []StageLogEntry
}

// OrchestratorTool names the downstream handler a turn is routed to.
type OrchestratorTool string

const (
	ToolSearch         OrchestratorTool = "search"
	ToolConversational OrchestratorTool = "conversational"
)

// OrchestratorDecision is the classifier's routing decision for one turn.
type OrchestratorDecision struct {
	ToolNeeded     bool
	Tool           OrchestratorTool
	Summary        string
	DirectResponse string
}

// Event is the immutable streaming envelope emitted by any agent or the
// workflow coordinator. Fields is a flat payload bag so producers can add
// event-specific keys without changing the envelope's shape on the wire.
type Event struct {
	Agent  string         `json:"agent,omitempty"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"-"`
}

// MarshalMap flattens the event into a single JSON-able map: {agent, type,
// ...fields}. Used by the HTTP SSE handler so the wire format matches
// spec.md §6's "framed JSON objects with a required type, optional agent,
// and payload fields" contract exactly.
func (e Event) MarshalMap() map[string]any {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["type"] = e.Type
	if e.Agent != "" {
		out["agent"] = e.Agent
	}
	return out
}

// F is a convenience constructor for an Event's Fields map.
func F(pairs ...any) map[string]any {
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if k, ok := pairs[i].(string); ok {
			m[k] = pairs[i+1]
		}
	}
	return m
}
