package agents

import (
	"context"
	"fmt"
	"strings"

	"manifold/internal/discovery"
	"manifold/internal/discovery/llmclient"
)

const adjudicatorAgentName = "adjudicator"

// AdjudicatorAgent is stage 2 of the pipeline (spec.md §4.5): an
// independent relevance classification per candidate, with live token
// streaming. Candidates are processed strictly sequentially — parallel
// per-candidate evaluation is explicitly disallowed so events never
// interleave across candidates.
type AdjudicatorAgent struct {
	LLM   *llmclient.Client
	Model string
}

const adjudicatorSystemPromptTemplate = `You evaluate whether a service-provider profile is relevant to a user's query.
Judge on four axes: service match, location relevance, expertise alignment, capacity to serve.
Respond with strict JSON: {"relevance_score": number in [0,1], "reasoning": string, "confidence": number in [0,1]}.
A profile is relevant when relevance_score >= %.2f.`

// Run classifies each candidate in order, emitting profile_start,
// profile_streaming (one per token fragment, carrying the cumulative
// partial text), and profile_complete or
// profile_error per candidate, then a single terminal complete event.
func (a *AdjudicatorAgent) Run(ctx context.Context, events chan<- discovery.Event, query string, candidates []discovery.ProfileMatch, threshold float64) (discovery.AdjudicatorOutput, error) {
	results := make([]discovery.AdjudicationResult, 0, len(candidates))
	total := len(candidates)

	for i, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		name := extractProfileName(candidate.ProfileText)
		emit(ctx, events, discovery.Event{Agent: adjudicatorAgentName, Type: "profile_start", Fields: discovery.F(
			"index", i, "total", total, "profile_name", name,
		)})

		result := a.adjudicateOne(ctx, events, i, total, query, candidate, threshold)
		results = append(results, result)
	}

	relevant := make([]discovery.ProfileMatch, 0, len(results))
	for _, r := range results {
		if r.IsRelevant {
			relevant = append(relevant, r.Profile)
		}
	}

	rejectionSummary := summarizeRejections(results)
	avgConfidence := averageConfidence(results)

	out := discovery.AdjudicatorOutput{
		AdjudicatedProfiles: results,
		RelevantProfiles:    relevant,
		RejectionSummary:    rejectionSummary,
		AdjudicationConf:    avgConfidence,
	}
	emit(ctx, events, discovery.Event{Agent: adjudicatorAgentName, Type: "complete", Fields: discovery.F("data", out)})
	return out, nil
}

// adjudicateOne runs a single streaming evaluation, emitting profile_streaming
// fragments as they arrive and either profile_complete or (parse/call
// failure) a synthetic failed verdict plus profile_error.
func (a *AdjudicatorAgent) adjudicateOne(ctx context.Context, events chan<- discovery.Event, index, total int, query string, candidate discovery.ProfileMatch, threshold float64) discovery.AdjudicationResult {
	systemPrompt := fmt.Sprintf(adjudicatorSystemPromptTemplate, threshold)
	userPrompt := fmt.Sprintf("User query: %s\n\nCandidate profile:\n%s", query, candidate.ProfileText)

	var partial strings.Builder
	text, err := a.LLM.Stream(ctx, systemPrompt, userPrompt, llmclient.Options{
		Model:       a.Model,
		Temperature: 0.2,
		MaxTokens:   2048,
	}, func(fragment string) {
		partial.WriteString(fragment)
		emit(ctx, events, discovery.Event{Agent: adjudicatorAgentName, Type: "profile_streaming", Fields: discovery.F(
			"index", index, "partial_text", partial.String(),
		)})
	})

	var parsed struct {
		RelevanceScore float64 `json:"relevance_score"`
		Reasoning      string  `json:"reasoning"`
		Confidence     float64 `json:"confidence"`
	}
	parseErr := err
	if err == nil {
		parseErr = decodeJSON(text, &parsed)
	}
	if parseErr != nil {
		result := discovery.AdjudicationResult{
			Profile:        candidate,
			RelevanceScore: 0.0,
			IsRelevant:     false,
			Reasoning:      fmt.Sprintf("Failed to evaluate: %v", parseErr),
			Confidence:     0,
		}
		emit(ctx, events, discovery.Event{Agent: adjudicatorAgentName, Type: "profile_error", Fields: discovery.F("index", index)})
		return result
	}

	isRelevant := parsed.RelevanceScore >= threshold
	result := discovery.AdjudicationResult{
		Profile:        candidate,
		RelevanceScore: parsed.RelevanceScore,
		IsRelevant:     isRelevant,
		Reasoning:      parsed.Reasoning,
		Confidence:     parsed.Confidence,
	}
	emit(ctx, events, discovery.Event{Agent: adjudicatorAgentName, Type: "profile_complete", Fields: discovery.F(
		"index", index, "is_relevant", isRelevant, "relevance_score", parsed.RelevanceScore, "reasoning", parsed.Reasoning,
	)})
	return result
}

// extractProfileName locates the "Company Name:" line in profile_text,
// falling back to "Unknown Company" (spec.md §4.5 step 1).
func extractProfileName(profileText string) string {
	for _, line := range strings.Split(profileText, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Company Name:") {
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "Company Name:"))
			if name != "" {
				return name
			}
		}
	}
	return "Unknown Company"
}

// summarizeRejections buckets rejected verdicts' reasoning by coarse
// keyword (location, service, expertise, other) into a single sentence with
// counts (spec.md §4.5 step 4).
func summarizeRejections(results []discovery.AdjudicationResult) string {
	var location, service, expertise, other int
	for _, r := range results {
		if r.IsRelevant {
			continue
		}
		lower := strings.ToLower(r.Reasoning)
		switch {
		case strings.Contains(lower, "location") || strings.Contains(lower, "region") || strings.Contains(lower, "country"):
			location++
		case strings.Contains(lower, "service") || strings.Contains(lower, "capacity"):
			service++
		case strings.Contains(lower, "expertise") || strings.Contains(lower, "experience") || strings.Contains(lower, "specializ"):
			expertise++
		default:
			other++
		}
	}
	if location+service+expertise+other == 0 {
		return "No candidates were rejected."
	}
	var parts []string
	if location > 0 {
		parts = append(parts, fmt.Sprintf("%d for location mismatch", location))
	}
	if service > 0 {
		parts = append(parts, fmt.Sprintf("%d for service mismatch", service))
	}
	if expertise > 0 {
		parts = append(parts, fmt.Sprintf("%d for expertise mismatch", expertise))
	}
	if other > 0 {
		parts = append(parts, fmt.Sprintf("%d for other reasons", other))
	}
	return "Rejected " + strings.Join(parts, ", ") + "."
}

func averageConfidence(results []discovery.AdjudicationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}
