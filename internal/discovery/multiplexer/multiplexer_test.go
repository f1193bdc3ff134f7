package multiplexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/discovery"
)

func TestClassifyWorkflowCompleteIsFinal(t *testing.T) {
	evt := discovery.Event{Type: "complete", Fields: discovery.F("summary", "Found great providers for your tax needs in the region.")}
	f := Classify(evt)
	require.Equal(t, FrameFinal, f.Kind)
}

func TestClassifyStatusKeywordStaysStatus(t *testing.T) {
	evt := discovery.Event{Agent: "search", Type: "strategy_complete", Fields: discovery.F("message", "Searching and analyzing profiles to find the best match for your query.")}
	f := Classify(evt)
	require.Equal(t, FrameStatus, f.Kind)
}

func TestClassifyShortProseStaysStatus(t *testing.T) {
	evt := discovery.Event{Agent: "adjudicator", Type: "profile_streaming", Fields: discovery.F("content", "short")}
	f := Classify(evt)
	require.Equal(t, FrameStatus, f.Kind)
}

func TestClassifyLongProseWithoutStatusKeywordsIsFinal(t *testing.T) {
	evt := discovery.Event{Agent: "adjudicator", Type: "profile_complete", Fields: discovery.F("reasoning", "This provider offers exactly the kind of specialized legal counsel the client needs.")}
	f := Classify(evt)
	require.Equal(t, FrameFinal, f.Kind)
}

func TestClassifyFinalEventTypeIsAlwaysFinal(t *testing.T) {
	evt := discovery.Event{Type: "final", Fields: discovery.F("content", "Hello!")}
	f := Classify(evt)
	require.Equal(t, FrameFinal, f.Kind)
}
