// Package multiplexer implements the Stream Multiplexer from spec.md
// §4.10: it classifies each inbound event as a transient status frame or a
// final frame to append to the conversation.
package multiplexer

import (
	"strings"

	"manifold/internal/discovery"
)

// FrameKind is the multiplexer's classification of one event.
type FrameKind string

const (
	FrameStatus FrameKind = "status"
	FrameFinal  FrameKind = "final"
)

// Frame is a display-ready unit derived from one discovery.Event.
type Frame struct {
	Kind    FrameKind
	Event   discovery.Event
	Content string
}

// minFinalProseLength is the "small minimum length" spec.md §4.10 names for
// a final frame's prose content.
const minFinalProseLength = 40

var statusKeywords = []string{"searching", "analyzing", "processing", "strategy", "progress", "found profiles", "complete", "step"}

// Classify applies spec.md §4.10's rule: any event whose type is complete
// for the workflow (agent == ""), any event of type final (the
// Conversational Responder's reply), or any event which contains prose at
// least minFinalProseLength runes long and lacks every status keyword, is
// final; everything else is status.
func Classify(evt discovery.Event) Frame {
	content := proseContent(evt)
	if evt.Agent == "" && evt.Type == "complete" {
		return Frame{Kind: FrameFinal, Event: evt, Content: content}
	}
	if evt.Type == "final" {
		return Frame{Kind: FrameFinal, Event: evt, Content: content}
	}
	if len([]rune(content)) >= minFinalProseLength && !containsStatusKeyword(content) {
		return Frame{Kind: FrameFinal, Event: evt, Content: content}
	}
	return Frame{Kind: FrameStatus, Event: evt, Content: content}
}

func containsStatusKeyword(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range statusKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// proseContent extracts the best-effort human-readable text from an
// event's fields, checking the keys agents and the workflow actually use
// for prose payloads.
func proseContent(evt discovery.Event) string {
	for _, key := range []string{"content", "summary", "message", "direct_response", "reasoning"} {
		if v, ok := evt.Fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Run drains in, classifying each event into a Frame on out, until in
// closes; callers use this to bridge an agent/workflow event channel to a
// UI frame channel.
func Run(in <-chan discovery.Event, out chan<- Frame) {
	for evt := range in {
		out <- Classify(evt)
	}
}
