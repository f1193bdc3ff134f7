// Package events publishes best-effort workflow telemetry to the optional
// ambient infra named in SPEC_FULL.md's domain stack: a Kafka
// "workflow.completed" event per finished request, and a ClickHouse sink for
// per-stage timing. Neither is on the request's critical path: publish
// failures are logged and swallowed, never surfaced to the caller.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"manifold/internal/discovery"
	"manifold/internal/observability"
)

// WorkflowPublisher emits one event per finished workflow run.
type WorkflowPublisher interface {
	PublishCompleted(ctx context.Context, finalState string, state discovery.WorkflowState)
}

// NopPublisher is used when no Kafka brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishCompleted(context.Context, string, discovery.WorkflowState) {}

// KafkaPublisher publishes a JSON-encoded summary of each finished workflow
// run to a single topic, fire-and-forget.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher constructs a publisher against the given brokers/topic.
// It does not verify connectivity eagerly; WriteMessages failures are logged
// and discarded by PublishCompleted.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
	}}
}

type completedPayload struct {
	WorkflowID      string `json:"workflow_id"`
	FinalState      string `json:"final_state"`
	CandidatesFound int    `json:"candidates_found"`
	RelevantFound   int    `json:"relevant_found"`
	Stages          int    `json:"stage_count"`
}

// PublishCompleted writes one record describing the workflow run. Errors are
// logged at warn level; the caller's streaming response is never blocked or
// failed by a Kafka outage.
func (p *KafkaPublisher) PublishCompleted(ctx context.Context, finalState string, state discovery.WorkflowState) {
	if p == nil || p.writer == nil {
		return
	}
	payload := completedPayload{
		WorkflowID: state.WorkflowID,
		FinalState: finalState,
		Stages:     len(state.StageLog),
	}
	if state.SearchResult != nil {
		payload.CandidatesFound = len(state.SearchResult.CandidateProfiles)
	}
	if state.AdjudicationResult != nil {
		payload.RelevantFound = len(state.AdjudicationResult.RelevantProfiles)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("marshal workflow.completed payload")
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(state.WorkflowID),
		Value: body,
	}); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("publish workflow.completed")
	}
}

// Close releases the underlying Kafka writer's connections.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
