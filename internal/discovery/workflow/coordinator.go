// Package workflow implements the Workflow Coordinator from spec.md §4.7:
// the state machine that drives Search → Adjudicator → Summarizer,
// applies the no-results short-circuit, and forwards every downstream
// agent event wrapped as {agent, ...original}.
package workflow

import (
	"context"
	"time"

	"manifold/internal/discovery"
	"manifold/internal/discovery/agents"
	"manifold/internal/discovery/events"
)

// State is one node of the per-request state machine.
type State string

const (
	StateInit         State = "init"
	StateSearching    State = "searching"
	StateAdjudicating State = "adjudicating"
	StateSummarizing  State = "summarizing"
	StateNoResults    State = "no_results"
	StateDone         State = "done"
	StateError        State = "error"
	StateCancelled    State = "cancelled"
)

// Coordinator owns a single request's WorkflowState for its duration.
type Coordinator struct {
	Search      *agents.SearchAgent
	Adjudicator *agents.AdjudicatorAgent
	Summarizer  *agents.SummarizerAgent
	Threshold   float64

	// Events and Stages are optional ambient sinks (SPEC_FULL.md domain
	// stack): a fire-and-forget workflow.completed publisher and a
	// best-effort per-stage timing recorder. Both default to no-ops when
	// nil/unset so Kafka/ClickHouse outages never affect a request.
	Events events.WorkflowPublisher
	Stages *events.StageSink
}

const workflowAgentName = "workflow"

// Run drives one request end to end, emitting a workflow-level start event,
// every downstream agent event forwarded verbatim, and exactly one terminal
// event: complete, no_results, error, or cancelled (spec.md §8 invariant 3).
func (c *Coordinator) Run(ctx context.Context, events chan<- discovery.Event, workflowID, query string, maxResults int, minSimilarity float64) discovery.WorkflowState {
	state := discovery.WorkflowState{
		WorkflowID:    workflowID,
		OriginalQuery: query,
		MaxResults:    maxResults,
		StartedAt:     time.Now(),
	}
	emitEvent(ctx, events, "", "start", discovery.F("workflow_id", workflowID, "query", query))

	current := StateSearching
	searchOut, err := runStage(&state, "search", func() (discovery.SearchAgentOutput, error) {
		return c.Search.Run(ctx, events, query, maxResults, minSimilarity)
	})
	if ctx.Err() != nil {
		return c.finish(ctx, events, &state, StateCancelled)
	}
	if err != nil {
		state.Errors = append(state.Errors, err.Error())
		emitEvent(ctx, events, "", "error", discovery.F("error", true, "message", err.Error()))
		return c.finish(ctx, events, &state, StateError)
	}
	state.SearchResult = &searchOut

	if len(searchOut.CandidateProfiles) == 0 {
		current = StateNoResults
		emitEvent(ctx, events, "", "no_results", discovery.F(
			"no_results", true,
			"message", "No matching providers were found for this search.",
			"total_searched", searchOut.TotalProfilesSearched,
			"candidates_considered", len(searchOut.CandidateProfiles),
		))
		return c.finish(ctx, events, &state, current)
	}

	current = StateAdjudicating
	adjOut, err := runStage(&state, "adjudicator", func() (discovery.AdjudicatorOutput, error) {
		return c.Adjudicator.Run(ctx, events, query, searchOut.CandidateProfiles, c.Threshold)
	})
	if ctx.Err() != nil {
		return c.finish(ctx, events, &state, StateCancelled)
	}
	if err != nil {
		state.Errors = append(state.Errors, err.Error())
		emitEvent(ctx, events, "", "error", discovery.F("error", true, "message", err.Error()))
		return c.finish(ctx, events, &state, StateError)
	}
	state.AdjudicationResult = &adjOut

	if len(adjOut.RelevantProfiles) == 0 {
		current = StateNoResults
		emitEvent(ctx, events, "", "no_results", discovery.F(
			"no_results", true,
			"message", "No candidates were found relevant to this search.",
			"total_searched", searchOut.TotalProfilesSearched,
			"candidates_considered", len(searchOut.CandidateProfiles),
		))
		return c.finish(ctx, events, &state, current)
	}

	current = StateSummarizing
	summaryOut, err := runStage(&state, "summarizer", func() (discovery.SummarizerOutput, error) {
		return c.Summarizer.Run(ctx, events, query, adjOut.RelevantProfiles, agents.StyleComprehensive)
	})
	if ctx.Err() != nil {
		return c.finish(ctx, events, &state, StateCancelled)
	}
	if err != nil {
		state.Errors = append(state.Errors, err.Error())
		emitEvent(ctx, events, "", "error", discovery.F("error", true, "message", err.Error()))
		return c.finish(ctx, events, &state, StateError)
	}
	state.Summary = &summaryOut

	emitEvent(ctx, events, "", "complete", discovery.F(
		"success", true,
		"summary", summaryOut.ExecutiveSummary,
		"statistics", summaryOut.SummaryStatistics,
	))
	return c.finish(ctx, events, &state, StateDone)
}

func (c *Coordinator) finish(ctx context.Context, out chan<- discovery.Event, state *discovery.WorkflowState, final State) discovery.WorkflowState {
	state.EndedAt = time.Now()
	if final == StateCancelled {
		emitEvent(ctx, out, "", "cancelled", discovery.F("cancelled", true))
	}
	if c.Events != nil {
		c.Events.PublishCompleted(ctx, string(final), *state)
	}
	if c.Stages != nil {
		c.Stages.Record(ctx, *state)
	}
	return *state
}

// runStage times a stage and appends a stage_log entry regardless of
// outcome. A free function, not a method, since Go methods can't carry
// their own type parameters.
func runStage[T any](state *discovery.WorkflowState, name string, fn func() (T, error)) (T, error) {
	started := time.Now()
	result, err := fn()
	entry := discovery.StageLogEntry{
		Agent:     name,
		StartedAt: started,
		EndedAt:   time.Now(),
		OK:        err == nil,
	}
	if err != nil {
		entry.Message = err.Error()
	}
	state.StageLog = append(state.StageLog, entry)
	return result, err
}

func emitEvent(ctx context.Context, events chan<- discovery.Event, agent, eventType string, fields map[string]any) {
	if events == nil {
		return
	}
	select {
	case events <- discovery.Event{Agent: agent, Type: eventType, Fields: fields}:
	case <-ctx.Done():
	}
}
