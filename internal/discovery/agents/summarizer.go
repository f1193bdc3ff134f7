package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"manifold/internal/discovery"
	"manifold/internal/discovery/llmclient"
	"manifold/internal/util"
)

const summarizerAgentName = "summarizer"

// SummaryStyle controls prose depth only (spec.md §4.6).
type SummaryStyle string

const (
	StyleBrief         SummaryStyle = "brief"
	StyleComprehensive SummaryStyle = "comprehensive"
	StyleDetailed      SummaryStyle = "detailed"
)

// SummarizerAgent is stage 3 of the pipeline (spec.md §4.6): produces the
// final user-facing artifact from the surviving candidates.
type SummarizerAgent struct {
	LLM   *llmclient.Client
	Model string
}

const summarizerSystemPromptTemplate = `You write an executive summary of service-provider search results in a %s style.
Respond with strict JSON: {"executive_summary": string, "provider_recommendations": [string], "key_insights": [string]}.
Each provider_recommendations entry is one short line; when the profile includes a deep-link, render it as a bold blue Markdown link, e.g. [**Name**](url).`

// Run computes statistics, calls the LLM for the narrative artifact (with a
// deterministic fallback on parse failure), and emits the event stream.
func (s *SummarizerAgent) Run(ctx context.Context, events chan<- discovery.Event, query string, relevant []discovery.ProfileMatch, style SummaryStyle) (discovery.SummarizerOutput, error) {
	stats := computeStatistics(relevant)
	emit(ctx, events, discovery.Event{Agent: summarizerAgentName, Type: "statistics_complete", Fields: discovery.F("statistics", stats)})

	emit(ctx, events, discovery.Event{Agent: summarizerAgentName, Type: "preparation_start"})
	block := buildProfileBlock(relevant)
	for i, p := range relevant {
		emit(ctx, events, discovery.Event{Agent: summarizerAgentName, Type: "profile_prepared", Fields: discovery.F("index", i, "profile_id", p.ProfileID)})
	}

	emit(ctx, events, discovery.Event{Agent: summarizerAgentName, Type: "summarization_start", Fields: discovery.F("prompt_tokens_estimate", util.CountTokens(block))})
	out := s.summarize(ctx, query, block, relevant, style, stats)
	emit(ctx, events, discovery.Event{Agent: summarizerAgentName, Type: "complete", Fields: discovery.F("data", out)})
	return out, nil
}

func (s *SummarizerAgent) summarize(ctx context.Context, query, block string, relevant []discovery.ProfileMatch, style SummaryStyle, stats map[string]any) discovery.SummarizerOutput {
	systemPrompt := fmt.Sprintf(summarizerSystemPromptTemplate, style)
	userPrompt := fmt.Sprintf("User query: %s\n\nCandidates:\n%s", query, block)

	var parsed struct {
		ExecutiveSummary        string   `json:"executive_summary"`
		ProviderRecommendations []string `json:"provider_recommendations"`
		KeyInsights             []string `json:"key_insights"`
	}
	_, err := s.LLM.Complete(ctx, systemPrompt, userPrompt, llmclient.Options{
		Model:       s.Model,
		Temperature: 0.4,
		MaxTokens:   3000,
	}, &parsed)

	confidence := summarizerConfidence(len(relevant))
	if err != nil {
		return fallbackSummary(relevant, stats, confidence)
	}
	return discovery.SummarizerOutput{
		ExecutiveSummary:        parsed.ExecutiveSummary,
		ProviderRecommendations: parsed.ProviderRecommendations,
		KeyInsights:             parsed.KeyInsights,
		SummaryStatistics:       stats,
		Confidence:              confidence,
	}
}

// summarizerConfidence implements spec.md §4.6 step 5:
// min(0.9, 0.6 + 0.1 * count_of_relevant_profiles).
func summarizerConfidence(count int) float64 {
	c := 0.6 + 0.1*float64(count)
	if c > 0.9 {
		return 0.9
	}
	return c
}

// fallbackSummary is the deterministic basic summary used on LLM parse
// failure (spec.md §4.6 step 4): a list of "<name> (<country>)" lines and a
// three-bullet insight list.
func fallbackSummary(relevant []discovery.ProfileMatch, stats map[string]any, confidence float64) discovery.SummarizerOutput {
	recs := make([]string, 0, len(relevant))
	for _, p := range relevant {
		name := extractProfileName(p.ProfileText)
		country := extractField(p.ProfileText, "Country:")
		line := name
		if country != "" {
			line = fmt.Sprintf("%s (%s)", name, country)
		}
		if p.DeepLink != "" {
			line = fmt.Sprintf("[**%s**](%s)", line, p.DeepLink)
		}
		recs = append(recs, line)
	}
	insights := []string{
		fmt.Sprintf("%d provider(s) matched the search criteria.", len(relevant)),
		"Results are ranked by relevance to the original query.",
		"Contact each provider directly to confirm current availability.",
	}
	return discovery.SummarizerOutput{
		ExecutiveSummary:        fmt.Sprintf("Found %d matching provider(s).", len(relevant)),
		ProviderRecommendations: recs,
		KeyInsights:             insights,
		SummaryStatistics:       stats,
		Confidence:              confidence,
	}
}

// computeStatistics tallies by country and provider type using the
// "Country:" / "Provider Type:" line prefixes in profile_text (spec.md
// §4.6 step 1).
func computeStatistics(relevant []discovery.ProfileMatch) map[string]any {
	byCountry := map[string]int{}
	byType := map[string]int{}
	for _, p := range relevant {
		if c := extractField(p.ProfileText, "Country:"); c != "" {
			byCountry[c]++
		}
		if t := extractField(p.ProfileText, "Provider Type:"); t != "" {
			byType[t]++
		}
	}
	return map[string]any{
		"total_count":     len(relevant),
		"by_country":      byCountry,
		"by_provider_type": byType,
	}
}

func extractField(profileText, prefix string) string {
	for _, line := range strings.Split(profileText, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
	}
	return ""
}

// buildProfileBlock concatenates profiles into a numbered block with their
// similarity scores (spec.md §4.6 step 3).
func buildProfileBlock(relevant []discovery.ProfileMatch) string {
	ordered := make([]discovery.ProfileMatch, len(relevant))
	copy(ordered, relevant)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SimilarityScore > ordered[j].SimilarityScore })

	var b strings.Builder
	for i, p := range ordered {
		fmt.Fprintf(&b, "%d. (score %.2f) %s\n\n", i+1, p.SimilarityScore, p.ProfileText)
	}
	return b.String()
}
